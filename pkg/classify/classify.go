// Package classify reduces a classifier's per-class probabilities to a single
// top-1 result gated by a confidence threshold.
//
// Example:
//
//	res, err := classify.Select(classify.Vector{
//	    {ClassName: "cat", Probability: 0.2},
//	    {ClassName: "dog", Probability: 0.9},
//	}, classify.DefaultThreshold)
//	// res.ClassName == "dog", res.Confident == true
package classify

import (
	"math"
	"sort"
	"strconv"
)

// DefaultThreshold is the minimum probability treated as a positive identification.
const DefaultThreshold = 0.85

// Prediction is the probability a model assigns to one class.
type Prediction struct {
	ClassName   string  `json:"className"`
	Probability float64 `json:"probability"`
}

// Vector is the ordered per-class output of a classifier for one frame.
// Probabilities usually sum to 1 (softmax) but that is not required.
type Vector []Prediction

// Result is the top-1 class of a Vector.
type Result struct {
	ClassName   string  `json:"class_name"`
	Probability float64 `json:"probability"`
	Index       int     `json:"index"`
	Confident   bool    `json:"confident"`
}

// Percent returns the probability as a percentage.
func (r Result) Percent() float64 {
	return r.Probability * 100
}

// Select returns the highest-probability entry of v.
// Ties keep the first entry. Confident is set only when the probability is
// strictly greater than threshold.
func Select(v Vector, threshold float64) (Result, error) {
	if err := v.Validate(); err != nil {
		return Result{}, err
	}

	best := 0
	for i := 1; i < len(v); i++ {
		if v[i].Probability > v[best].Probability {
			best = i
		}
	}

	return Result{
		ClassName:   v[best].ClassName,
		Probability: v[best].Probability,
		Index:       best,
		Confident:   v[best].Probability > threshold,
	}, nil
}

// Validate reports whether v can be passed to Select.
func (v Vector) Validate() error {
	if len(v) == 0 {
		return ErrEmptyVector
	}
	for i, p := range v {
		if math.IsNaN(p.Probability) || p.Probability < 0 || p.Probability > 1 {
			return &ProbabilityError{Index: i, ClassName: p.ClassName, Probability: p.Probability}
		}
	}
	return nil
}

// Labels returns the class names in order.
func (v Vector) Labels() []string {
	labels := make([]string, len(v))
	for i, p := range v {
		labels[i] = p.ClassName
	}
	return labels
}

// Top returns up to n entries ordered by descending probability.
// Equal probabilities keep their original order. n <= 0 returns all entries.
func (v Vector) Top(n int) Vector {
	sorted := make(Vector, len(v))
	copy(sorted, v)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Probability > sorted[j].Probability
	})
	if n > 0 && n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// FromScores pairs raw scores with class names. Scores beyond the number of
// labels are ignored; with no labels at all, classes are named by index.
func FromScores(labels []string, scores []float32) Vector {
	n := len(scores)
	if len(labels) > 0 && len(labels) < n {
		n = len(labels)
	}
	v := make(Vector, n)
	for i := 0; i < n; i++ {
		name := "class_" + strconv.Itoa(i)
		if i < len(labels) {
			name = labels[i]
		}
		v[i] = Prediction{ClassName: name, Probability: float64(scores[i])}
	}
	return v
}

// Softmax converts raw logits to probabilities in place and returns them.
func Softmax(scores []float32) []float32 {
	if len(scores) == 0 {
		return scores
	}
	maxScore := scores[0]
	for _, s := range scores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}
	var sum float64
	for i, s := range scores {
		e := math.Exp(float64(s - maxScore))
		scores[i] = float32(e)
		sum += e
	}
	for i := range scores {
		scores[i] = float32(float64(scores[i]) / sum)
	}
	return scores
}
