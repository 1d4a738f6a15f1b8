package segmenter

import (
	"fmt"
	"strings"
)

// MergerKind selects the dissimilarity criterion.
type MergerKind string

const (
	// MeanMerger compares per-band mean values.
	MeanMerger MergerKind = "mean"
	// BaatzMerger weighs spectral against shape heterogeneity.
	BaatzMerger MergerKind = "baatz"
)

// ParseMergerKind accepts "mean" or "baatz", case-insensitively.
func ParseMergerKind(s string) (MergerKind, error) {
	switch k := MergerKind(strings.ToLower(strings.TrimSpace(s))); k {
	case MeanMerger, BaatzMerger:
		return k, nil
	default:
		return "", &ConfigError{Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", s)}
	}
}

// Merger computes dissimilarities and merged features for one tile.
//
// It is a closed variant: Kind picks the feature layout and the formulas.
// A Merger holds per-tile state (Baatz normalizers and the id matrix) and must
// not be shared between engines.
type Merger struct {
	Kind  MergerKind
	bands int

	weights           []float64
	colorWeight       float64
	compactnessWeight float64
	matrix            *IDMatrix

	// normalizers refreshed by Update
	compactOffset, compactGain float64
	smoothOffset, smoothGain   float64
	stdOffset, stdGain         float64
}

// NewMerger builds the merger selected by p, which must be validated.
func NewMerger(p Parameters, bands int, matrix *IDMatrix) *Merger {
	m := &Merger{
		Kind:              p.Strategy,
		bands:             bands,
		weights:           p.BandsWeights,
		colorWeight:       p.ColorWeight,
		compactnessWeight: p.CompactnessWeight,
		matrix:            matrix,
		compactGain:       1,
		smoothGain:        1,
		stdGain:           1,
	}
	return m
}

// FeatureSize is the feature vector length for the given band count.
func (m *Merger) FeatureSize(bands int) int {
	switch m.Kind {
	case BaatzMerger:
		return baatzFeatureSize(bands)
	default:
		return bands
	}
}

// InitFeatures sets the features of a single-pixel segment from the pixel's
// normalized band values.
func (m *Merger) InitFeatures(s *Segment, values []float64) {
	switch m.Kind {
	case BaatzMerger:
		m.baatzInit(s, values)
	default:
		copy(s.Features, values)
	}
}

// Dissimilarity returns the cost of merging a and b, never negative. The merged
// segment is previewed into preview so MergeFeatures can reuse it.
func (m *Merger) Dissimilarity(a, b, preview *Segment) float64 {
	preview.Size = a.Size + b.Size
	preview.XStart = min(a.XStart, b.XStart)
	preview.YStart = min(a.YStart, b.YStart)
	preview.XBound = max(a.XBound, b.XBound)
	preview.YBound = max(a.YBound, b.YBound)

	switch m.Kind {
	case BaatzMerger:
		return m.baatzDissimilarity(a, b, preview)
	default:
		return m.meanDissimilarity(a, b, preview)
	}
}

// MergeFeatures turns a into the union of a and b as previewed by the
// Dissimilarity call that produced preview.
func (m *Merger) MergeFeatures(a, b, preview *Segment) {
	a.CopyFrom(preview)
}

// Update refreshes state derived from all active segments. It runs once
// before every pass.
func (m *Merger) Update(arena *Arena, head Handle) {
	if m.Kind == BaatzMerger {
		m.baatzUpdate(arena, head)
	}
}
