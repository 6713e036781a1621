package tuning

import "math"

// sizeEps absorbs rounding in f^s products before ceil.
const sizeEps = 1e-9

// RoundPlan is one round of one Hyperband bracket.
type RoundPlan struct {
	Bracket int
	Round   int
	Trials  int
	Epochs  int
}

// numBrackets counts how often maxEpochs can be divided by factor while
// staying at or above minEpochs.
func numBrackets(maxEpochs, minEpochs, factor int) int {
	epochs := float64(maxEpochs)
	brackets := 0
	for epochs >= float64(minEpochs) {
		epochs /= float64(factor)
		brackets++
	}
	return brackets
}

// bracketSize is the number of trials trained in round r of bracket s.
func bracketSize(s, r, maxEpochs, factor int) int {
	f := float64(factor)
	end0 := math.Ceil(1 + math.Log(float64(maxEpochs))/math.Log(f) - sizeEps)
	end := end0 / math.Pow(f, float64(s))
	return int(math.Ceil(end*math.Pow(f, float64(s-r)) - sizeEps))
}

// roundEpochs is the epoch count trials reach in round r of bracket s.
func roundEpochs(s, r, maxEpochs, factor int) int {
	return int(math.Ceil(float64(maxEpochs)/math.Pow(float64(factor), float64(s-r)) - sizeEps))
}

// Schedule lists the rounds of one Hyperband iteration, most exploratory
// bracket first.
func Schedule(maxEpochs, minEpochs, factor int) []RoundPlan {
	var plan []RoundPlan
	for s := numBrackets(maxEpochs, minEpochs, factor) - 1; s >= 0; s-- {
		for r := 0; r <= s; r++ {
			plan = append(plan, RoundPlan{
				Bracket: s,
				Round:   r,
				Trials:  bracketSize(s, r, maxEpochs, factor),
				Epochs:  roundEpochs(s, r, maxEpochs, factor),
			})
		}
	}
	return plan
}
