package classify

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelect_Scenarios(t *testing.T) {
	tests := []struct {
		name      string
		vec       Vector
		threshold float64
		want      Result
	}{
		{
			name: "confident winner in the middle",
			vec: Vector{
				{ClassName: "cat", Probability: 0.2},
				{ClassName: "dog", Probability: 0.9},
				{ClassName: "fox", Probability: 0.1},
			},
			threshold: 0.85,
			want:      Result{ClassName: "dog", Probability: 0.9, Index: 1, Confident: true},
		},
		{
			name: "exact tie keeps first entry",
			vec: Vector{
				{ClassName: "cat", Probability: 0.5},
				{ClassName: "dog", Probability: 0.5},
			},
			threshold: 0.85,
			want:      Result{ClassName: "cat", Probability: 0.5, Index: 0, Confident: false},
		},
		{
			name:      "probability equal to threshold is not confident",
			vec:       Vector{{ClassName: "cat", Probability: 0.85}},
			threshold: 0.85,
			want:      Result{ClassName: "cat", Probability: 0.85, Index: 0, Confident: false},
		},
		{
			name: "winner last",
			vec: Vector{
				{ClassName: "a", Probability: 0},
				{ClassName: "b", Probability: 0.3},
				{ClassName: "c", Probability: 1},
			},
			threshold: 0.99,
			want:      Result{ClassName: "c", Probability: 1, Index: 2, Confident: true},
		},
		{
			name:      "all zero",
			vec:       Vector{{ClassName: "a"}, {ClassName: "b"}},
			threshold: 0,
			want:      Result{ClassName: "a", Index: 0, Confident: false},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Select(tc.vec, tc.threshold)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSelect_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		vec  Vector
	}{
		{"nil vector", nil},
		{"empty vector", Vector{}},
		{"negative probability", Vector{{ClassName: "a", Probability: 0.5}, {ClassName: "b", Probability: -0.1}}},
		{"probability above one", Vector{{ClassName: "a", Probability: 1.01}}},
		{"NaN probability", Vector{{ClassName: "a", Probability: math.NaN()}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Select(tc.vec, DefaultThreshold)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))
			assert.Equal(t, Result{}, got)
		})
	}
}

func TestSelect_ProbabilityErrorDetails(t *testing.T) {
	_, err := Select(Vector{{ClassName: "ok", Probability: 0.1}, {ClassName: "bad", Probability: 2}}, 0.5)

	var pe *ProbabilityError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 1, pe.Index)
	assert.Equal(t, "bad", pe.ClassName)
	assert.Equal(t, 2.0, pe.Probability)
}

func TestSelect_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 500; iter++ {
		n := 1 + rng.Intn(12)
		vec := make(Vector, n)
		for i := range vec {
			p := rng.Float64()
			if rng.Intn(4) == 0 {
				// Quantize so exact ties happen.
				p = math.Round(p*4) / 4
			}
			vec[i] = Prediction{ClassName: string(rune('a' + i)), Probability: p}
		}
		threshold := rng.Float64()
		if rng.Intn(5) == 0 {
			threshold = vec[rng.Intn(n)].Probability
		}

		got, err := Select(vec, threshold)
		require.NoError(t, err)

		for i, p := range vec {
			require.GreaterOrEqual(t, got.Probability, p.Probability)
			if i < got.Index {
				require.Less(t, p.Probability, got.Probability, "earlier entry must lose")
			}
		}
		require.Equal(t, got.Probability > threshold, got.Confident)
		require.Equal(t, vec[got.Index].ClassName, got.ClassName)

		again, err := Select(vec, threshold)
		require.NoError(t, err)
		require.Equal(t, got, again)
	}
}

func TestSelect_DoesNotMutateInput(t *testing.T) {
	vec := Vector{{ClassName: "a", Probability: 0.1}, {ClassName: "b", Probability: 0.7}}
	orig := append(Vector(nil), vec...)

	_, err := Select(vec, 0.5)
	require.NoError(t, err)
	assert.Equal(t, orig, vec)
}

func TestVector_Top(t *testing.T) {
	vec := Vector{
		{ClassName: "a", Probability: 0.1},
		{ClassName: "b", Probability: 0.6},
		{ClassName: "c", Probability: 0.1},
		{ClassName: "d", Probability: 0.2},
	}

	top := vec.Top(3)
	assert.Equal(t, []string{"b", "d", "a"}, top.Labels())
	assert.Equal(t, []string{"b", "d", "a", "c"}, vec.Top(0).Labels())
	assert.Equal(t, []string{"a", "b", "c", "d"}, vec.Labels(), "Top must not reorder the receiver")
}

func TestFromScores(t *testing.T) {
	v := FromScores([]string{"x", "y"}, []float32{0.25, 0.75, 0.5})
	require.Len(t, v, 2)
	assert.Equal(t, "y", v[1].ClassName)
	assert.InDelta(t, 0.75, v[1].Probability, 1e-6)

	unnamed := FromScores(nil, []float32{0.1, 0.9})
	assert.Equal(t, []string{"class_0", "class_1"}, unnamed.Labels())
}

func TestSoftmax(t *testing.T) {
	out := Softmax([]float32{1, 2, 3})

	var sum float64
	for _, v := range out {
		sum += float64(v)
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
	assert.Greater(t, out[2], out[1])
	assert.Greater(t, out[1], out[0])
	assert.Empty(t, Softmax(nil))
}

func TestStatusLine(t *testing.T) {
	assert.Equal(t, "Recognized: dog!", StatusLine(Result{ClassName: "dog", Confident: true}))
	assert.Equal(t, StatusSearching, StatusLine(Result{ClassName: "dog"}))
	assert.Equal(t, "dog (90.0%)", Describe(Result{ClassName: "dog", Probability: 0.9}))
}
