package utils

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// RecencyMode decides whether the age signal raises or lowers a score.
type RecencyMode string

const (
	// RecencyBonus feeds the creation instant (Unix seconds) into the recency
	// factor and adds it, so newer posts score marginally higher.
	RecencyBonus RecencyMode = "bonus"
	// RecencyPenalty feeds the age in seconds and subtracts the factor.
	RecencyPenalty RecencyMode = "penalty"
)

// RankConfig holds the weight of every signal, in percent.
type RankConfig struct {
	Recency     float64     `yaml:"recency"`
	Readings    float64     `yaml:"readings"`
	Bookmarks   float64     `yaml:"bookmarks"`
	Shares      float64     `yaml:"shares"`
	Rating      float64     `yaml:"rating"`
	RecencyMode RecencyMode `yaml:"recency_mode"`
}

var DefaultConfig = RankConfig{
	Recency:     99,
	Readings:    0.05,
	Bookmarks:   0.30,
	Shares:      0.30,
	Rating:      0.35,
	RecencyMode: RecencyBonus,
}

func (c RankConfig) Validate() error {
	for name, w := range map[string]float64{
		"recency":   c.Recency,
		"readings":  c.Readings,
		"bookmarks": c.Bookmarks,
		"shares":    c.Shares,
		"rating":    c.Rating,
	} {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("ranking: weight %s must be a finite non-negative number, got %v", name, w)
		}
	}
	switch c.RecencyMode {
	case RecencyBonus, RecencyPenalty:
		return nil
	}
	return fmt.Errorf("ranking: unknown recency mode %q", c.RecencyMode)
}

// Signals are the inputs of a post score.
type Signals struct {
	Created   time.Time
	Readings  int
	Bookmarks int
	Shares    int
	Rating    float64
}

// Factor is the diminishing-returns transform (1 - 1/x) * weight/100. It is 0
// when x is 0 and approaches weight/100 as x grows.
func Factor(weightPercent, x float64) float64 {
	if x == 0 {
		return 0
	}
	return (1 - 1/x) * (weightPercent / 100)
}

// CalculateScore computes a post score at instant now.
func CalculateScore(cfg RankConfig, s Signals, now time.Time) float64 {
	score := Factor(cfg.Readings, float64(s.Readings)) +
		Factor(cfg.Bookmarks, float64(s.Bookmarks)) +
		Factor(cfg.Shares, float64(s.Shares)) +
		Factor(cfg.Rating, s.Rating)

	if s.Created.IsZero() {
		return score
	}
	if cfg.RecencyMode == RecencyPenalty {
		age := now.Sub(s.Created).Seconds()
		if age < 0 {
			age = 0
		}
		return score - Factor(cfg.Recency, age)
	}
	return score + Factor(cfg.Recency, float64(s.Created.Unix()))
}

// Round rounds v to precision decimal places, halves away from zero.
func Round(v float64, precision int) float64 {
	m := math.Pow(10, float64(precision))
	return math.Round(v*m) / m
}

// Mean is the arithmetic mean of values, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// MostFrequent returns the id that occurs most often, breaking ties with the
// smallest id. Empty ids are ignored; the result is "" when none remain.
func MostFrequent(ids []string) string {
	counts := make(map[string]int)
	for _, id := range ids {
		if id != "" {
			counts[id]++
		}
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	best := ""
	for _, k := range keys {
		if best == "" || counts[k] > counts[best] {
			best = k
		}
	}
	return best
}
