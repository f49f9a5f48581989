// Package attribution derives multi-touch attribution records from a
// contact's touchpoint timeline and deal state.
package attribution

import (
	"math"
	"time"

	"github.com/sells-group/attribution-engine/internal/model"
)

// Weighting assigns a credit weight to each touchpoint in a contact's
// chronological timeline. Weights need not sum to 1; the calculator
// normalizes the per-source totals.
type Weighting interface {
	Name() string
	Weights(tps []model.Touchpoint, now time.Time) []float64
}

// EvenSplit gives every contributing source equal credit regardless of
// how many touchpoints it produced: each touchpoint carries the inverse
// of its source's touchpoint count, so per-source totals come out equal
// after normalization. This is the default strategy.
type EvenSplit struct{}

func (EvenSplit) Name() string { return "even_split" }

func (EvenSplit) Weights(tps []model.Touchpoint, _ time.Time) []float64 {
	perSource := make(map[model.Source]int, 3)
	for i := range tps {
		perSource[tps[i].Source]++
	}
	w := make([]float64, len(tps))
	for i := range tps {
		w[i] = 1 / float64(perSource[tps[i].Source])
	}
	return w
}

// PositionBased is the U-shaped model: 40% to the first touch, 40% to
// the last, and the remaining 20% spread evenly over the middle. With
// one touchpoint it gets everything; with two they split evenly.
type PositionBased struct{}

func (PositionBased) Name() string { return "position_based" }

func (PositionBased) Weights(tps []model.Touchpoint, _ time.Time) []float64 {
	n := len(tps)
	w := make([]float64, n)
	switch n {
	case 0:
	case 1:
		w[0] = 1
	case 2:
		w[0], w[1] = 0.5, 0.5
	default:
		w[0] = 0.4
		w[n-1] = 0.4
		middle := 0.2 / float64(n-2)
		for i := 1; i < n-1; i++ {
			w[i] = middle
		}
	}
	return w
}

// TimeDecay weights touchpoints by recency with an exponential half-life:
// weight = 2^(-ageDays / halfLifeDays). Recent interactions dominate
// without older ones dropping to zero.
type TimeDecay struct {
	HalfLifeDays float64
}

func (TimeDecay) Name() string { return "time_decay" }

func (t TimeDecay) Weights(tps []model.Touchpoint, now time.Time) []float64 {
	halfLife := t.HalfLifeDays
	if halfLife <= 0 {
		halfLife = 30
	}
	w := make([]float64, len(tps))
	for i := range tps {
		ageDays := now.Sub(tps[i].OccurredAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		w[i] = math.Pow(2, -ageDays/halfLife)
	}
	return w
}

// StrategyByName resolves a strategy identifier from config or CLI flags.
// Unknown names fall back to the even split.
func StrategyByName(name string) Weighting {
	switch name {
	case "position_based":
		return PositionBased{}
	case "time_decay":
		return TimeDecay{HalfLifeDays: 30}
	default:
		return EvenSplit{}
	}
}
