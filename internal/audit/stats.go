package audit

import (
	"math"
	"sort"
)

// numericStats computes distribution stats and IQR outliers. rows[i] is the
// table index of values[i].
func numericStats(values []float64, rows []int) *NumericStats {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	q1 := quantile(sorted, 0.25)
	q3 := quantile(sorted, 0.75)
	iqr := q3 - q1
	lower := q1 - 1.5*iqr
	upper := q3 + 1.5*iqr

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	ns := &NumericStats{
		Count:       len(values),
		Min:         sorted[0],
		Max:         sorted[len(sorted)-1],
		Mean:        round2(sum / float64(len(values))),
		Q1:          round2(q1),
		Median:      round2(quantile(sorted, 0.5)),
		Q3:          round2(q3),
		IQR:         round2(iqr),
		LowerFence:  round2(lower),
		UpperFence:  round2(upper),
		OutlierRows: []int{},
	}
	for i, v := range values {
		if v < lower || v > upper {
			ns.Outliers++
			ns.OutlierRows = append(ns.OutlierRows, rows[i])
		}
	}
	return ns
}

// quantile returns the p-quantile of sorted data, interpolating linearly
// between the closest ranks.
func quantile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	h := float64(len(sorted)-1) * p
	lo := math.Floor(h)
	i := int(lo)
	if i+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
