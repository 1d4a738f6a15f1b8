package segmenter

import (
	"fmt"
	"math"
)

// Parameters configures a segmentation run.
type Parameters struct {
	// Strategy selects the dissimilarity criterion: "mean" or "baatz".
	Strategy MergerKind `json:"strategy" yaml:"strategy"`

	// MinSegmentSize is the size floor enforced by the final pass.
	// A value of 1 disables that pass.
	MinSegmentSize int `json:"min_segment_size" yaml:"min_segment_size"`

	// SimilarityThreshold is the largest dissimilarity the last
	// threshold step accepts.
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold"`

	// SimilarityIncreaseSteps is the number of threshold steps ramping up
	// to SimilarityThreshold.
	SimilarityIncreaseSteps int `json:"similarity_increase_steps" yaml:"similarity_increase_steps"`

	// BandsWeights weights each band in the Baatz spectral term. Empty means
	// equal weights. Validate normalizes them to sum 1.
	BandsWeights []float64 `json:"bands_weights,omitempty" yaml:"bands_weights,omitempty"`

	// ColorWeight balances spectral against shape heterogeneity (Baatz).
	ColorWeight float64 `json:"color_weight" yaml:"color_weight"`

	// CompactnessWeight balances compactness against smoothness (Baatz).
	CompactnessWeight float64 `json:"compactness_weight" yaml:"compactness_weight"`

	EnableMutualBestFitting   bool `json:"enable_mutual_best_fitting" yaml:"enable_mutual_best_fitting"`
	EnableSameIterationMerges bool `json:"enable_same_iteration_merges" yaml:"enable_same_iteration_merges"`

	// MaxIterations caps the global merge iteration counter of one tile.
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`
}

// DefaultMaxIterations is the iteration cap used when none is configured.
const DefaultMaxIterations = math.MaxUint16

// DefaultParameters returns the stock configuration.
func DefaultParameters() Parameters {
	return Parameters{
		Strategy:                BaatzMerger,
		MinSegmentSize:          100,
		SimilarityThreshold:     0.03,
		SimilarityIncreaseSteps: 2,
		ColorWeight:             0.9,
		CompactnessWeight:       0.5,
		MaxIterations:           DefaultMaxIterations,
	}
}

// Validate checks p for a raster with the given number of bands and returns a
// copy with normalized band weights.
func (p Parameters) Validate(bands int) (Parameters, error) {
	if bands < 1 {
		return p, &ConfigError{Field: "bands", Reason: "at least one band is required"}
	}
	if p.Strategy != MeanMerger && p.Strategy != BaatzMerger {
		return p, &ConfigError{Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", p.Strategy)}
	}
	if p.MinSegmentSize < 1 {
		return p, &ConfigError{Field: "min_segment_size", Reason: fmt.Sprintf("must be positive, got %d", p.MinSegmentSize)}
	}
	if math.IsNaN(p.SimilarityThreshold) || p.SimilarityThreshold < 0 {
		return p, &ConfigError{Field: "similarity_threshold", Reason: fmt.Sprintf("must be non-negative, got %g", p.SimilarityThreshold)}
	}
	if p.SimilarityIncreaseSteps < 1 {
		return p, &ConfigError{Field: "similarity_increase_steps", Reason: fmt.Sprintf("must be positive, got %d", p.SimilarityIncreaseSteps)}
	}
	if !inUnitRange(p.ColorWeight) {
		return p, &ConfigError{Field: "color_weight", Reason: fmt.Sprintf("must be in [0,1], got %g", p.ColorWeight)}
	}
	if !inUnitRange(p.CompactnessWeight) {
		return p, &ConfigError{Field: "compactness_weight", Reason: fmt.Sprintf("must be in [0,1], got %g", p.CompactnessWeight)}
	}
	if p.MaxIterations < 1 {
		return p, &ConfigError{Field: "max_iterations", Reason: fmt.Sprintf("must be positive, got %d", p.MaxIterations)}
	}

	weights, err := normalizeWeights(p.BandsWeights, bands)
	if err != nil {
		return p, err
	}
	p.BandsWeights = weights
	return p, nil
}

func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}

func normalizeWeights(w []float64, bands int) ([]float64, error) {
	out := make([]float64, bands)
	if len(w) == 0 {
		for i := range out {
			out[i] = 1 / float64(bands)
		}
		return out, nil
	}
	if len(w) != bands {
		return nil, &ConfigError{Field: "bands_weights", Reason: fmt.Sprintf("expected %d weights, got %d", bands, len(w))}
	}

	var sum float64
	for i, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, &ConfigError{Field: "bands_weights", Reason: fmt.Sprintf("weight %d is %g", i, v)}
		}
		sum += v
	}
	if sum == 0 {
		return nil, &ConfigError{Field: "bands_weights", Reason: "weights sum to zero"}
	}
	for i, v := range w {
		out[i] = v / sum
	}
	return out, nil
}

// EstimateMemory returns the bytes one engine needs to segment a tile of the
// given pixel count: the arena plus the id matrix.
func (p Parameters) EstimateMemory(bands, pixels int) int64 {
	merger := Merger{Kind: p.Strategy}
	return ArenaBytes(pixels+scratchSegments, merger.FeatureSize(bands)) + int64(pixels)*4
}

// OptimalBlockOverlap is the overlap width, in pixels, that tiles should share so
// that segments of MinSegmentSize pixels can straddle a cut line.
func (p Parameters) OptimalBlockOverlap() int {
	return int(math.Sqrt(float64(p.MinSegmentSize)))
}
