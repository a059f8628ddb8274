// Package secrets resolves credential references such as embedding API keys.
//
// A reference is one of:
//
//	env:NAME          value of the environment variable NAME
//	file:PATH         whole contents of PATH, trimmed
//	file:PATH#KEY     entry KEY of the JSON object stored in PATH
//
// Anything else is returned unchanged as a literal.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// ErrNotFound is returned when a referenced secret does not exist.
var ErrNotFound = errors.New("secret not found")

// Provider is a read-only secret backend.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Name() string
}

// Resolver resolves references and caches the results.
type Resolver struct {
	env   *EnvProvider
	mu    sync.RWMutex
	files map[string]*FileProvider
	cache map[string]string
}

// NewResolver creates a Resolver. envPrefix is tried before the bare name
// for env references.
func NewResolver(envPrefix string) *Resolver {
	return &Resolver{
		env:   NewEnvProvider(envPrefix),
		files: make(map[string]*FileProvider),
		cache: make(map[string]string),
	}
}

// IsReference reports whether s uses a reference scheme.
func IsReference(s string) bool {
	return strings.HasPrefix(s, "env:") || strings.HasPrefix(s, "file:")
}

// Resolve returns the secret ref points to, or ref itself for literals.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	if !IsReference(ref) {
		return ref, nil
	}

	r.mu.RLock()
	val, ok := r.cache[ref]
	r.mu.RUnlock()
	if ok {
		return val, nil
	}

	var err error
	switch scheme, rest, _ := strings.Cut(ref, ":"); scheme {
	case "env":
		val, err = r.env.Get(ctx, rest)
	case "file":
		path, key, hasKey := strings.Cut(rest, "#")
		if !hasKey {
			var data []byte
			data, err = os.ReadFile(path)
			val = strings.TrimSpace(string(data))
			if err == nil && val == "" {
				err = fmt.Errorf("%w: %s is empty", ErrNotFound, path)
			}
			break
		}
		var fp *FileProvider
		fp, err = r.file(path)
		if err == nil {
			val, err = fp.Get(ctx, key)
		}
	}
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", ref, err)
	}

	r.mu.Lock()
	r.cache[ref] = val
	r.mu.Unlock()
	return val, nil
}

func (r *Resolver) file(path string) (*FileProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fp, ok := r.files[path]; ok {
		return fp, nil
	}
	fp, err := NewFileProvider(path)
	if err != nil {
		return nil, err
	}
	r.files[path] = fp
	return fp, nil
}

// EnvProvider reads secrets from environment variables.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an environment-based secrets provider.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix}
}

func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) Get(_ context.Context, key string) (string, error) {
	if p.prefix != "" {
		if val := os.Getenv(p.prefix + strings.ToUpper(key)); val != "" {
			return val, nil
		}
	}
	if val := os.Getenv(key); val != "" {
		return val, nil
	}
	return "", fmt.Errorf("%w: env var %s", ErrNotFound, key)
}
