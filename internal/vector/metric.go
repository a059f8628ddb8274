package vector

import (
	"fmt"
	"strings"

	"github.com/viant/vec/search"
)

// Metric enumerates supported distance metrics.
type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricEuclidean Metric = "euclidean"

	// DefaultMetric matches the similarity ranking of the managed service.
	DefaultMetric = MetricCosine
)

// ParseMetric resolves a metric name. The empty string yields DefaultMetric.
func ParseMetric(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return DefaultMetric, nil
	case "cosine", "cos":
		return MetricCosine, nil
	case "euclidean", "l2":
		return MetricEuclidean, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
}

// Valid reports whether m is a supported metric.
func (m Metric) Valid() bool {
	return m == MetricCosine || m == MetricEuclidean
}

func (m Metric) String() string { return string(m) }

// Magnitude returns the L2 norm of v.
func Magnitude(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	return search.Float32s(v).Magnitude()
}

// CosineDistance returns 1 - cosine similarity of a and b. It fails with
// ErrInvalidVector if either vector has zero magnitude. Vectors must have
// equal length.
func CosineDistance(a, b []float32) (float64, error) {
	ma, mb := Magnitude(a), Magnitude(b)
	if ma == 0 || mb == 0 {
		return 0, fmt.Errorf("%w: cosine distance of zero-magnitude vector", ErrInvalidVector)
	}
	return cosineDistance(a, b), nil
}

// EuclideanDistance returns the L2 distance between a and b. Vectors must have
// equal length.
func EuclideanDistance(a, b []float32) float64 {
	return float64(search.Float32s(a).EuclideanDistance(b))
}

// cosineDistance expects non-zero magnitudes; callers check them first. The
// result is clamped to [0, 2] so rounding never produces a negative distance
// for identical directions.
func cosineDistance(a, b []float32) float64 {
	// CosineDistanceWithMagnitude is only exported on arm64 builds.
	d := float64(search.Float32s(a).CosineDistance(b))
	switch {
	case d < 0:
		return 0
	case d > 2:
		return 2
	}
	return d
}
