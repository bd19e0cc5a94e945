// Package scoring holds the end-of-session score and rank formulas.
package scoring

import "math"

// Counter indexes Counters.
const (
	PathCount = iota
	PathLength
	ForestCount
	ForestArea
	DeepForestCount
	TownCount
	ChurchCount

	NumCounters
)

// Counters are the seven score-board values, encoded as a JSON array in the
// order of the index constants above.
type Counters [NumCounters]int

// MaxRank is the top rank tier.
const MaxRank = 8

type Rates struct {
	// Alpha is the region size exponent, Beta its multiplier.
	Alpha float64
	Beta  float64
	// Score are r0..r5: path, forest, deep forest weight, town, church, placed.
	Score   [6]float64
	Perfect float64
	// Ranking is (x, y, z): threshold(k) = z * x^(k*y).
	Ranking [3]float64
}

type Forest struct {
	Area int
	Deep int
}

type Input struct {
	Paths    []int
	Forests  []Forest
	Counters Counters
	Placed   int
	// Perfect is set when every tile was drawn in a non-tutorial session.
	Perfect bool
}

type Breakdown struct {
	Path   float64
	Forest float64
	Town   float64
	Church float64
	Placed float64
	Bonus  bool
	Total  float64
}

func Compute(in Input, r Rates) Breakdown {
	var b Breakdown
	for _, n := range in.Paths {
		b.Path += math.Pow(float64(n), r.Alpha) * r.Beta * r.Score[0]
	}
	for _, f := range in.Forests {
		size := float64(f.Area) + float64(f.Deep)*r.Score[2]
		b.Forest += math.Pow(size, r.Alpha) * r.Beta * r.Score[1]
	}
	b.Town = float64(in.Counters[TownCount]) * r.Score[3]
	b.Church = float64(in.Counters[ChurchCount]) * r.Score[4]
	b.Placed = float64(in.Placed) * r.Score[5]

	b.Total = b.Path + b.Forest + b.Town + b.Church + b.Placed
	if in.Perfect {
		b.Bonus = true
		b.Total *= r.Perfect
	}
	return b
}

// Total truncates the computed score to an integer.
func Total(in Input, r Rates) int {
	return int(Compute(in, r).Total)
}

// Threshold is the minimum score for rank k+1.
func Threshold(k int, r Rates) int {
	return int(math.Pow(r.Ranking[0], float64(k)*r.Ranking[1]) * r.Ranking[2])
}

// Rank is the smallest k in [0, MaxRank] with score < Threshold(k), or MaxRank.
func Rank(score int, r Rates) int {
	for k := 0; k <= MaxRank; k++ {
		if score < Threshold(k, r) {
			return k
		}
	}
	return MaxRank
}
