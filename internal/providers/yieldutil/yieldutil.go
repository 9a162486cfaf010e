package yieldutil

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ggonzalez94/safepilot/internal/model"
)

const (
	// FeeRate is the per-trade fee assumed when estimating pool yield.
	FeeRate = 0.002
	// MinEstimatedAPY is the sanity floor below which the pool's own APY wins.
	MinEstimatedAPY = 1.0
)

// PositiveFirst returns the first finite positive value, or 0.
func PositiveFirst(values ...float64) float64 {
	for _, value := range values {
		if value > 0 && !math.IsNaN(value) && !math.IsInf(value, 0) {
			return value
		}
	}
	return 0
}

// EstimateAPY annualizes 24h fee income as a percentage of TVL. When the
// estimate is below MinEstimatedAPY the pool's self-reported APY is used.
func EstimateAPY(p model.Pool) float64 {
	if p.TVL <= 0 {
		return sanitize(p.APY)
	}
	est := p.Volume24h * FeeRate * 365 / p.TVL * 100
	if math.IsNaN(est) || math.IsInf(est, 0) || est < MinEstimatedAPY {
		return sanitize(p.APY)
	}
	return est
}

// TopByTVL keeps pools strictly above floor, sorted by TVL descending with a
// stable id tie-break, truncated to limit.
func TopByTVL(pools []model.Pool, floor float64, limit int) []model.Pool {
	filtered := make([]model.Pool, 0, len(pools))
	for _, p := range pools {
		if p.TVL > floor && !math.IsNaN(p.TVL) && !math.IsInf(p.TVL, 0) {
			filtered = append(filtered, p)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].TVL != filtered[j].TVL {
			return filtered[i].TVL > filtered[j].TVL
		}
		return strings.Compare(filtered[i].ID, filtered[j].ID) < 0
	})
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered
}

func FormatAPY(v float64) string {
	return fmt.Sprintf("%.2f%%", sanitize(v))
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
