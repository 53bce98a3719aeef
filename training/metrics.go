package training

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/tsawler/go-longtail/tensor"
)

// AverageMeter tracks the current value and running average of a metric.
type AverageMeter struct {
	Name  string
	Val   float64
	Avg   float64
	Sum   float64
	Count int
}

// NewAverageMeter creates a named meter.
func NewAverageMeter(name string) *AverageMeter {
	return &AverageMeter{Name: name}
}

// Reset clears the meter.
func (m *AverageMeter) Reset() {
	m.Val = 0
	m.Avg = 0
	m.Sum = 0
	m.Count = 0
}

// Update records a value observed over n samples.
func (m *AverageMeter) Update(val float64, n int) {
	m.Val = val
	m.Sum += val * float64(n)
	m.Count += n
	if m.Count > 0 {
		m.Avg = m.Sum / float64(m.Count)
	}
}

func (m *AverageMeter) String() string {
	return fmt.Sprintf("%s %.4f (%.4f)", m.Name, m.Val, m.Avg)
}

// Accuracy computes top-k accuracies, in percent, for the requested k values.
// k values larger than the class count are capped.
func Accuracy(output *tensor.Tensor, target []int32, topk ...int) ([]float64, error) {
	if len(topk) == 0 {
		topk = []int{1}
	}

	data, err := output.Float32Data()
	if err != nil {
		return nil, errors.Wrap(err, "output must be Float32")
	}
	if len(output.Shape) != 2 {
		return nil, errors.Errorf("output must be 2D [batch, numClasses], got shape %v", output.Shape)
	}

	batchSize := output.Shape[0]
	numClasses := output.Shape[1]
	if len(target) != batchSize {
		return nil, errors.Errorf("batch size mismatch: output %d, target %d", batchSize, len(target))
	}

	maxK := 0
	for _, k := range topk {
		if k > numClasses {
			k = numClasses
		}
		if k > maxK {
			maxK = k
		}
	}

	// correctAt[i] is the rank (0-based) at which sample i's true class
	// appears, or maxK if it is outside the top maxK scores.
	correctAt := make([]int, batchSize)
	ranked := make([]int, numClasses)
	for i := 0; i < batchSize; i++ {
		row := data[i*numClasses : (i+1)*numClasses]
		for j := range ranked {
			ranked[j] = j
		}
		sort.SliceStable(ranked, func(a, b int) bool {
			return row[ranked[a]] > row[ranked[b]]
		})

		correctAt[i] = maxK
		for r := 0; r < maxK; r++ {
			if int32(ranked[r]) == target[i] {
				correctAt[i] = r
				break
			}
		}
	}

	results := make([]float64, len(topk))
	for ki, k := range topk {
		if k > numClasses {
			k = numClasses
		}
		correct := 0
		for i := 0; i < batchSize; i++ {
			if correctAt[i] < k {
				correct++
			}
		}
		results[ki] = float64(correct) / float64(batchSize) * 100.0
	}

	return results, nil
}

// Predictions returns the argmax class of each row of a logits tensor.
func Predictions(output *tensor.Tensor) ([]int32, error) {
	data, err := output.Float32Data()
	if err != nil {
		return nil, errors.Wrap(err, "output must be Float32")
	}
	if len(output.Shape) != 2 {
		return nil, errors.Errorf("output must be 2D [batch, numClasses], got shape %v", output.Shape)
	}

	batchSize := output.Shape[0]
	numClasses := output.Shape[1]

	preds := make([]int32, batchSize)
	for i := 0; i < batchSize; i++ {
		maxIdx := 0
		maxVal := data[i*numClasses]
		for j := 1; j < numClasses; j++ {
			if data[i*numClasses+j] > maxVal {
				maxVal = data[i*numClasses+j]
				maxIdx = j
			}
		}
		preds[i] = int32(maxIdx)
	}

	return preds, nil
}

// ConfusionMatrix accumulates prediction/target pairs for classification.
type ConfusionMatrix struct {
	NumClasses   int
	Matrix       [][]int // [true class][predicted class]
	TotalSamples int
}

// NewConfusionMatrix creates an empty numClasses x numClasses matrix.
func NewConfusionMatrix(numClasses int) *ConfusionMatrix {
	matrix := make([][]int, numClasses)
	for i := range matrix {
		matrix[i] = make([]int, numClasses)
	}

	return &ConfusionMatrix{
		NumClasses: numClasses,
		Matrix:     matrix,
	}
}

// Reset clears the confusion matrix.
func (cm *ConfusionMatrix) Reset() {
	for i := range cm.Matrix {
		for j := range cm.Matrix[i] {
			cm.Matrix[i][j] = 0
		}
	}
	cm.TotalSamples = 0
}

// Update accumulates prediction/target pairs into the matrix.
func (cm *ConfusionMatrix) Update(preds, targets []int32) error {
	if len(preds) != len(targets) {
		return errors.Errorf("length mismatch: %d predictions, %d targets", len(preds), len(targets))
	}

	for i := range preds {
		trueClass := int(targets[i])
		predClass := int(preds[i])
		if trueClass < 0 || trueClass >= cm.NumClasses || predClass < 0 || predClass >= cm.NumClasses {
			return errors.Errorf("class out of range at %d: true %d, pred %d", i, trueClass, predClass)
		}

		cm.Matrix[trueClass][predClass]++
		cm.TotalSamples++
	}

	return nil
}

// Accuracy returns overall accuracy in [0, 1].
func (cm *ConfusionMatrix) Accuracy() float64 {
	if cm.TotalSamples == 0 {
		return 0
	}

	correct := 0
	for i := 0; i < cm.NumClasses; i++ {
		correct += cm.Matrix[i][i]
	}
	return float64(correct) / float64(cm.TotalSamples)
}

// PerClassAccuracy returns each class's recall in [0, 1]. Classes with no
// samples report zero.
func (cm *ConfusionMatrix) PerClassAccuracy() []float64 {
	acc := make([]float64, cm.NumClasses)
	for i := 0; i < cm.NumClasses; i++ {
		total := 0
		for j := 0; j < cm.NumClasses; j++ {
			total += cm.Matrix[i][j]
		}
		if total > 0 {
			acc[i] = float64(cm.Matrix[i][i]) / float64(total)
		}
	}
	return acc
}

// EpochMetrics carries the accumulated results of one training epoch,
// created fresh per epoch and discarded after reporting.
type EpochMetrics struct {
	Epoch int
	Loss  float64 // epoch average
	Top1  float64 // epoch average, percent
	Top5  float64 // epoch average, percent
	LR    float64

	// Raw prediction/target pairs for downstream confusion-matrix analysis.
	Preds   []int32
	Targets []int32
}

// Confusion builds a confusion matrix from the accumulated predictions.
func (em *EpochMetrics) Confusion(numClasses int) (*ConfusionMatrix, error) {
	cm := NewConfusionMatrix(numClasses)
	if err := cm.Update(em.Preds, em.Targets); err != nil {
		return nil, err
	}
	return cm, nil
}
