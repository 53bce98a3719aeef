package training

import (
	"math"

	"github.com/pkg/errors"

	"github.com/tsawler/go-longtail/tensor"
)

// Loss is the criterion contract the trainers drive. PerSample computes
// reduction-free losses; Reduce folds them into the batch loss the criterion
// defines, and Backward returns the gradient of that reduced loss with
// respect to the logits.
type Loss interface {
	PerSample(logits *tensor.Tensor, target []int32) ([]float32, error)
	Reduce(perSample []float32, target []int32) float32
	Backward(logits *tensor.Tensor, target []int32) (*tensor.Tensor, error)
}

// MeanLoss reduces per-sample losses to their batch mean.
func MeanLoss(perSample []float32) float32 {
	if len(perSample) == 0 {
		return 0
	}
	var sum float32
	for _, l := range perSample {
		sum += l
	}
	return sum / float32(len(perSample))
}

// checkLogits validates a [batch, numClasses] logits tensor against its
// targets and returns the dimensions.
func checkLogits(logits *tensor.Tensor, target []int32) (batchSize, numClasses int, err error) {
	if logits.DType != tensor.Float32 {
		return 0, 0, errors.Errorf("logits must be Float32, got %s", logits.DType)
	}
	if len(logits.Shape) != 2 {
		return 0, 0, errors.Errorf("logits must be 2D [batch, numClasses], got shape %v", logits.Shape)
	}

	batchSize = logits.Shape[0]
	numClasses = logits.Shape[1]

	if len(target) != batchSize {
		return 0, 0, errors.Errorf("batch size mismatch: logits %d, target %d", batchSize, len(target))
	}
	for i, t := range target {
		if t < 0 || int(t) >= numClasses {
			return 0, 0, errors.Errorf("target class %d at position %d out of range [0, %d)", t, i, numClasses)
		}
	}

	return batchSize, numClasses, nil
}

// softmaxRows applies a numerically stable softmax to each row of a
// [batch, numClasses] logit block.
func softmaxRows(data []float32, batchSize, numClasses int) []float32 {
	result := make([]float32, len(data))

	for i := 0; i < batchSize; i++ {
		offset := i * numClasses

		maxVal := data[offset]
		for j := 1; j < numClasses; j++ {
			if data[offset+j] > maxVal {
				maxVal = data[offset+j]
			}
		}

		var sum float32
		for j := 0; j < numClasses; j++ {
			exp := float32(math.Exp(float64(data[offset+j] - maxVal)))
			result[offset+j] = exp
			sum += exp
		}

		for j := 0; j < numClasses; j++ {
			result[offset+j] /= sum
		}
	}

	return result
}

// CrossEntropyLoss is softmax cross-entropy over class logits with optional
// per-class weights. A nil weight vector means unweighted.
type CrossEntropyLoss struct {
	weight []float64 // indexed by class, may be nil
}

// NewCrossEntropyLoss creates a cross-entropy criterion. weight, when
// non-nil, must have one entry per class.
func NewCrossEntropyLoss(weight []float64) *CrossEntropyLoss {
	return &CrossEntropyLoss{weight: weight}
}

// PerSample computes the weighted negative log likelihood of each sample.
func (ce *CrossEntropyLoss) PerSample(logits *tensor.Tensor, target []int32) ([]float32, error) {
	batchSize, numClasses, err := checkLogits(logits, target)
	if err != nil {
		return nil, err
	}
	if ce.weight != nil && len(ce.weight) != numClasses {
		return nil, errors.Errorf("weight vector has %d entries for %d classes", len(ce.weight), numClasses)
	}

	data := logits.Data.([]float32)
	probs := softmaxRows(data, batchSize, numClasses)

	losses := make([]float32, batchSize)
	for i := 0; i < batchSize; i++ {
		p := probs[i*numClasses+int(target[i])]
		if p < 1e-10 {
			p = 1e-10 // prevent log(0)
		}
		l := -float32(math.Log(float64(p)))
		if ce.weight != nil {
			l *= float32(ce.weight[target[i]])
		}
		losses[i] = l
	}

	return losses, nil
}

// Reduce takes the plain batch mean. Per-class weights scale the individual
// losses only; the denominator stays the batch size.
func (ce *CrossEntropyLoss) Reduce(perSample []float32, target []int32) float32 {
	return MeanLoss(perSample)
}

// Backward computes the gradient of the batch-mean loss with respect to the
// logits.
func (ce *CrossEntropyLoss) Backward(logits *tensor.Tensor, target []int32) (*tensor.Tensor, error) {
	batchSize, numClasses, err := checkLogits(logits, target)
	if err != nil {
		return nil, err
	}

	data := logits.Data.([]float32)
	grad := softmaxRows(data, batchSize, numClasses)

	for i := 0; i < batchSize; i++ {
		grad[i*numClasses+int(target[i])] -= 1.0

		scale := 1.0 / float32(batchSize)
		if ce.weight != nil {
			scale *= float32(ce.weight[target[i]])
		}
		for j := 0; j < numClasses; j++ {
			grad[i*numClasses+j] *= scale
		}
	}

	return tensor.NewTensor(logits.Shape, tensor.Float32, grad)
}

// LDAMLoss is the label-distribution-aware margin loss: the true-class logit
// is pushed down by a class-dependent margin proportional to n_c^{-1/4}
// before a scaled, optionally weighted cross-entropy is applied.
type LDAMLoss struct {
	margins []float32
	scale   float64
	weight  []float64 // may be nil
	ce      *CrossEntropyLoss
}

// NewLDAMLoss builds an LDAM criterion from per-class sample counts. maxM is
// the largest margin (assigned to the rarest class) and s is the logit scale.
// Every class count must be positive.
func NewLDAMLoss(clsNumList []int, maxM, s float64, weight []float64) (*LDAMLoss, error) {
	if len(clsNumList) == 0 {
		return nil, errors.New("class count list is empty")
	}
	if maxM <= 0 {
		maxM = 0.5
	}
	if s <= 0 {
		s = 30
	}

	margins := make([]float32, len(clsNumList))
	maxMargin := 0.0
	for i, n := range clsNumList {
		if n <= 0 {
			return nil, errors.Wrapf(ErrInvalidClassCount, "class %d has count %d", i, n)
		}
		m := 1.0 / math.Sqrt(math.Sqrt(float64(n)))
		margins[i] = float32(m)
		if m > maxMargin {
			maxMargin = m
		}
	}
	for i := range margins {
		margins[i] = float32(float64(margins[i]) * (maxM / maxMargin))
	}

	return &LDAMLoss{
		margins: margins,
		scale:   s,
		weight:  weight,
		ce:      NewCrossEntropyLoss(weight),
	}, nil
}

// targetWeightSum sums the per-class weights of the batch's targets.
func (l *LDAMLoss) targetWeightSum(target []int32) float64 {
	var sum float64
	for _, t := range target {
		sum += l.weight[t]
	}
	return sum
}

// adjusted returns s * (logits - margin * onehot(target)).
func (l *LDAMLoss) adjusted(logits *tensor.Tensor, target []int32) (*tensor.Tensor, error) {
	batchSize, numClasses, err := checkLogits(logits, target)
	if err != nil {
		return nil, err
	}
	if len(l.margins) != numClasses {
		return nil, errors.Errorf("loss built for %d classes, logits have %d", len(l.margins), numClasses)
	}

	data := logits.Data.([]float32)
	out := make([]float32, len(data))
	copy(out, data)

	for i := 0; i < batchSize; i++ {
		out[i*numClasses+int(target[i])] -= l.margins[target[i]]
	}
	for j := range out {
		out[j] *= float32(l.scale)
	}

	return tensor.NewTensor(logits.Shape, tensor.Float32, out)
}

// PerSample computes the per-sample LDAM losses.
func (l *LDAMLoss) PerSample(logits *tensor.Tensor, target []int32) ([]float32, error) {
	adj, err := l.adjusted(logits, target)
	if err != nil {
		return nil, err
	}
	return l.ce.PerSample(adj, target)
}

// Reduce folds per-sample losses into the weighted batch mean: when a weight
// vector is present the denominator is the summed target weights, not the
// batch size, so the reduced loss is invariant to batch composition.
func (l *LDAMLoss) Reduce(perSample []float32, target []int32) float32 {
	if l.weight == nil {
		return MeanLoss(perSample)
	}

	wsum := l.targetWeightSum(target)
	if wsum <= 0 {
		return MeanLoss(perSample)
	}

	var sum float32
	for _, v := range perSample {
		sum += v
	}
	return sum / float32(wsum)
}

// Backward computes the gradient of the reduced LDAM loss with respect to the
// raw logits. The margin shift is constant in the logits, so the chain rule
// only contributes the scale factor; the weighted reduction swaps the
// batch-size denominator for the summed target weights.
func (l *LDAMLoss) Backward(logits *tensor.Tensor, target []int32) (*tensor.Tensor, error) {
	adj, err := l.adjusted(logits, target)
	if err != nil {
		return nil, err
	}

	grad, err := l.ce.Backward(adj, target)
	if err != nil {
		return nil, err
	}

	factor := l.scale
	if l.weight != nil {
		if wsum := l.targetWeightSum(target); wsum > 0 {
			factor *= float64(len(target)) / wsum
		}
	}

	data := grad.Data.([]float32)
	for j := range data {
		data[j] *= float32(factor)
	}

	return grad, nil
}
