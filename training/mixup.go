package training

import (
	"github.com/pkg/errors"
	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/tsawler/go-longtail/tensor"
)

// MixupData linearly interpolates a batch with a randomly permuted copy of
// itself. lam is drawn from Beta(alpha, alpha); alpha <= 0 disables mixing
// (lam = 1). Returns the mixed batch, both target views and lam.
func MixupData(input *tensor.Tensor, target []int32, alpha float64, rng *exprand.Rand) (*tensor.Tensor, []int32, []int32, float64, error) {
	if len(input.Shape) == 0 {
		return nil, nil, nil, 0, errors.New("input batch must have at least one dimension")
	}
	batchSize := input.Shape[0]
	if len(target) != batchSize {
		return nil, nil, nil, 0, errors.Errorf("batch size mismatch: input %d, target %d", batchSize, len(target))
	}

	lam := 1.0
	if alpha > 0 {
		beta := distuv.Beta{Alpha: alpha, Beta: alpha, Src: rng}
		lam = beta.Rand()
	}

	perm := rng.Perm(batchSize)

	data, err := input.Float32Data()
	if err != nil {
		return nil, nil, nil, 0, errors.Wrap(err, "input batch must be Float32")
	}

	sampleSize := input.NumElems / batchSize
	mixed := make([]float32, len(data))
	for i := 0; i < batchSize; i++ {
		src := perm[i] * sampleSize
		dst := i * sampleSize
		for j := 0; j < sampleSize; j++ {
			mixed[dst+j] = float32(lam)*data[dst+j] + float32(1-lam)*data[src+j]
		}
	}

	mixedTensor, err := tensor.NewTensor(input.Shape, tensor.Float32, mixed)
	if err != nil {
		return nil, nil, nil, 0, err
	}

	targetA := append([]int32{}, target...)
	targetB := make([]int32, batchSize)
	for i := 0; i < batchSize; i++ {
		targetB[i] = target[perm[i]]
	}

	return mixedTensor, targetA, targetB, lam, nil
}

// MixupCriterion evaluates a criterion against both target views of a mixed
// batch: loss and gradient are lam * L(pred, ya) + (1-lam) * L(pred, yb),
// exactly linear in lam.
func MixupCriterion(criterion Loss, pred *tensor.Tensor, targetA, targetB []int32, lam float64) (float32, *tensor.Tensor, error) {
	lossesA, err := criterion.PerSample(pred, targetA)
	if err != nil {
		return 0, nil, errors.Wrap(err, "criterion on first target view")
	}
	lossesB, err := criterion.PerSample(pred, targetB)
	if err != nil {
		return 0, nil, errors.Wrap(err, "criterion on second target view")
	}

	loss := float32(lam)*MeanLoss(lossesA) + float32(1-lam)*MeanLoss(lossesB)

	gradA, err := criterion.Backward(pred, targetA)
	if err != nil {
		return 0, nil, errors.Wrap(err, "gradient on first target view")
	}
	gradB, err := criterion.Backward(pred, targetB)
	if err != nil {
		return 0, nil, errors.Wrap(err, "gradient on second target view")
	}

	ga := gradA.Data.([]float32)
	gb := gradB.Data.([]float32)
	for j := range ga {
		ga[j] = float32(lam)*ga[j] + float32(1-lam)*gb[j]
	}

	return loss, gradA, nil
}
