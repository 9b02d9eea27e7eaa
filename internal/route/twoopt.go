package route

import "fieldserve/internal/model"

// improve2Opt applies a 2-opt pass to reduce straight-line tour length.
// The first and last stops stay fixed, so a pinned start anchor and the
// final stop are preserved. Deterministic for identical input.
func improve2Opt(stops []model.Stop) []model.Stop {
	best := append([]model.Stop(nil), stops...)
	bestDist := tourMiles(best)
	n := len(best)
	for {
		improved := false
		for i := 1; i < n-2; i++ {
			for k := i + 1; k < n-1; k++ {
				cand := twoOptSwap(best, i, k)
				if d := tourMiles(cand); d+1e-6 < bestDist {
					best = cand
					bestDist = d
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return best
}

func twoOptSwap(ord []model.Stop, i, k int) []model.Stop {
	out := make([]model.Stop, len(ord))
	copy(out, ord[:i])
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}

func tourMiles(stops []model.Stop) float64 {
	total := 0.0
	for i := 0; i < len(stops)-1; i++ {
		a, b := stops[i].Location, stops[i+1].Location
		total += haversineMiles(a.Lat, a.Lon, b.Lat, b.Lon)
	}
	return total
}
