package dataset

import (
	"github.com/pkg/errors"
)

// OversampleIndices builds an index pool for a weighted-replacement sampler.
// It repeatedly passes over the dataset in order, retaining a sample while its
// class still has budget left in targetCounts and decrementing the budget on
// retention. Passes continue until every budget is spent or a full pass
// retains nothing, so the pool may be longer than the dataset when a class's
// budget exceeds its availability. targetCounts is indexed by class label.
// The result is an index pool, not replicated samples.
func OversampleIndices(src Source, targetCounts []int) ([]int, error) {
	budget := append([]int{}, targetCounts...)

	var selected []int
	for {
		retained := false
		for i := 0; i < src.Len(); i++ {
			label := src.Label(i)
			if label < 0 || label >= len(budget) {
				return nil, errors.Errorf("label %d at index %d outside target counts of length %d", label, i, len(budget))
			}
			if budget[label] > 0 {
				selected = append(selected, i)
				budget[label]--
				retained = true
			}
		}
		if !retained {
			break
		}
	}

	return selected, nil
}
