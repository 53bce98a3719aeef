package training

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// ErrInvalidClassCount is returned when a class count of zero or less would
// reach the effective-number formula and corrupt the weights.
var ErrInvalidClassCount = errors.New("class count must be at least 1")

// drwBetas is the two-stage deferred re-weighting schedule: uniform weights
// first, effective-number weights after the breakpoint.
var drwBetas = [2]float64{0, 0.9999}

// DRWBreakpoint returns the epoch at which deferred re-weighting switches
// from uniform to effective-number weights.
func DRWBreakpoint(totalEpochs int) int {
	if totalEpochs == 300 {
		return 250
	}
	return 160
}

// PerClassWeights computes the DRW weight vector for an epoch. Before the
// breakpoint beta is 0 and the formula degenerates to uniform weights; after
// it, weights follow the effective number of samples per class. The result
// is L1-normalized and rescaled so the weights sum to the number of classes.
func PerClassWeights(epoch, totalEpochs int, clsNumList []int) ([]float64, error) {
	if len(clsNumList) == 0 {
		return nil, errors.New("class count list is empty")
	}

	idx := epoch / DRWBreakpoint(totalEpochs)
	if idx < 0 {
		idx = 0
	}
	if idx > 1 {
		idx = 1
	}
	beta := drwBetas[idx]

	weights := make([]float64, len(clsNumList))
	for i, n := range clsNumList {
		if n <= 0 {
			return nil, errors.Wrapf(ErrInvalidClassCount, "class %d has count %d", i, n)
		}
		effectiveNum := 1.0 - math.Pow(beta, float64(n))
		weights[i] = (1.0 - beta) / effectiveNum
	}

	floats.Scale(float64(len(clsNumList))/floats.Sum(weights), weights)

	return weights, nil
}
