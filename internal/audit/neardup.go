package audit

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/albapepper/gamedeals-data/internal/provider"
)

type NearDuplicates struct {
	Threshold float64         `json:"threshold"`
	Count     int             `json:"count"`
	Samples   []NearDuplicate `json:"samples"`
}

// NearDuplicate is a pair of distinct titles from one source that are likely
// the same listing ("Elden Ring" and "ELDEN RING").
type NearDuplicate struct {
	Source     provider.SourceID `json:"source"`
	Left       string            `json:"left"`
	Right      string            `json:"right"`
	Similarity float64           `json:"similarity"`
}

// findNearDuplicates compares the distinct titles within each source. Exact
// duplicates are the assembler's concern and are not reported here.
func findNearDuplicates(records []provider.Record, threshold float64, samples int) NearDuplicates {
	nd := NearDuplicates{Threshold: threshold, Samples: []NearDuplicate{}}
	if threshold <= 0 {
		return nd
	}

	var order []provider.SourceID
	titles := make(map[provider.SourceID][]string)
	seen := make(map[provider.SourceID]map[string]bool)
	for _, r := range records {
		if seen[r.Source] == nil {
			seen[r.Source] = make(map[string]bool)
			order = append(order, r.Source)
		}
		if seen[r.Source][r.Title] {
			continue
		}
		seen[r.Source][r.Title] = true
		titles[r.Source] = append(titles[r.Source], r.Title)
	}

	for _, src := range order {
		list := titles[src]
		folded := make([]string, len(list))
		for i, t := range list {
			folded[i] = strings.ToLower(t)
		}
		for i := 0; i < len(list); i++ {
			for j := i + 1; j < len(list); j++ {
				sim := matchr.JaroWinkler(folded[i], folded[j], false)
				if sim < threshold {
					continue
				}
				nd.Count++
				if len(nd.Samples) < samples {
					nd.Samples = append(nd.Samples, NearDuplicate{
						Source:     src,
						Left:       list[i],
						Right:      list[j],
						Similarity: round2(sim),
					})
				}
			}
		}
	}
	return nd
}
