package segmenter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaNextUntilExhausted(t *testing.T) {
	a, err := NewArena(3, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, a.Cap())
	assert.Equal(t, 2, a.FeatureSize())

	for i := 0; i < 3; i++ {
		h, err := a.Next()
		require.NoError(t, err)
		assert.Equal(t, Handle(i), h)
		assert.Len(t, a.Get(h).Features, 2)
		assert.Equal(t, Active, a.Get(h).State)
	}

	_, err = a.Next()
	assert.ErrorIs(t, err, ErrArenaExhausted)
	assert.Equal(t, 3, a.Len())
}

func TestArenaFeatureVectorsDoNotOverlap(t *testing.T) {
	a, err := NewArena(2, 3, 0)
	require.NoError(t, err)

	h0, _ := a.Next()
	h1, _ := a.Next()
	s0, s1 := a.Get(h0), a.Get(h1)
	s0.Features = append(s0.Features, 99) // capacity is clipped, must reallocate

	for i := range s1.Features {
		s1.Features[i] = 7
	}
	assert.Equal(t, []float64{0, 0, 0, 99}, s0.Features)
}

func TestNewArenaRejects(t *testing.T) {
	tests := []struct {
		name        string
		capacity    int
		featureSize int
		budget      int64
		wantBudget  bool
	}{
		{name: "zero capacity", capacity: 0, featureSize: 1},
		{name: "zero features", capacity: 10, featureSize: 0},
		{name: "over budget", capacity: 1000, featureSize: 4, budget: 1024, wantBudget: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewArena(tt.capacity, tt.featureSize, tt.budget)
			require.Error(t, err)
			assert.Nil(t, a)

			var re *ResourceError
			if tt.wantBudget {
				assert.True(t, errors.As(err, &re))
				assert.ErrorIs(t, err, ErrMemoryBudget)
				assert.Equal(t, int64(1024), re.Budget)
			} else {
				var ce *ConfigError
				assert.True(t, errors.As(err, &ce))
			}
		})
	}
}

func TestSegmentNeighbors(t *testing.T) {
	var s Segment

	s.AddNeighbor(4)
	s.AddNeighbor(2)
	s.AddNeighbor(4)
	s.AddNeighbor(9)
	assert.Equal(t, []Handle{4, 2, 9}, s.Neighbors)
	assert.True(t, s.HasNeighbor(2))

	s.RemoveNeighbor(2)
	assert.Equal(t, []Handle{4, 9}, s.Neighbors)
	assert.False(t, s.HasNeighbor(2))

	s.RemoveNeighbor(100)
	assert.Equal(t, []Handle{4, 9}, s.Neighbors)

	s.ID, s.Size = 5, 3
	s.Disable()
	assert.Empty(t, s.Neighbors)
	assert.Equal(t, Disabled, s.State)
	assert.Zero(t, s.ID)
	assert.Zero(t, s.Size)
}

func TestSegmentCopyFrom(t *testing.T) {
	src := Segment{Size: 4, XStart: 1, XBound: 3, YStart: 2, YBound: 4, Features: []float64{0.5, 0.25}}
	dst := Segment{ID: 8, Features: make([]float64, 2), Neighbors: []Handle{1}}

	dst.CopyFrom(&src)

	assert.Equal(t, uint32(8), dst.ID)
	assert.Equal(t, 4, dst.Size)
	assert.Equal(t, 2, dst.Width())
	assert.Equal(t, 2, dst.Height())
	assert.Equal(t, []float64{0.5, 0.25}, dst.Features)
	assert.Equal(t, []Handle{1}, dst.Neighbors)
}
