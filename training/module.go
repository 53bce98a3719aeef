// Package training implements training strategies for class-imbalanced image
// classification: plain cross-entropy (ERM), label-distribution-aware margin
// loss with deferred re-weighting (LDAM-DRW), and input mixing with deferred
// re-weighting (Mixup-DRW). Each strategy drives one gradient-descent epoch
// at a time against an externally owned model and optimizer.
package training

import (
	"github.com/pkg/errors"

	"github.com/tsawler/go-longtail/dataset"
	"github.com/tsawler/go-longtail/tensor"
)

// Strategy names a training strategy.
type Strategy string

const (
	ERM      Strategy = "ERM"
	LDAMDRW  Strategy = "LDAM_DRW"
	MixupDRW Strategy = "Mixup_DRW"
)

// ErrUnsupportedStrategy is returned when a strategy name is not recognized.
// There is no silent fallback.
var ErrUnsupportedStrategy = errors.New("strategy is not supported")

// Parameter pairs a model parameter tensor with its gradient accumulator.
// Both are owned by the model; the optimizer mutates Value in place and the
// model accumulates into Grad during its backward pass.
type Parameter struct {
	Value *tensor.Tensor
	Grad  *tensor.Tensor
}

// Module is the forward-pass contract the trainers consume. Forward takes a
// float input batch and returns class logits of shape [batch, numClasses]
// plus an auxiliary feature tensor that the losses ignore. Backward
// propagates a gradient with respect to the logits of the most recent
// Forward call and accumulates parameter gradients.
type Module interface {
	Forward(input *tensor.Tensor) (logits, features *tensor.Tensor, err error)
	Backward(gradLogits *tensor.Tensor) error
	Parameters() []*Parameter
	Train()
	Eval()
}

// Optimizer applies accumulated gradients to model parameters.
type Optimizer interface {
	Step() error
	ZeroGrad()
	GetLR() float64
	SetLR(lr float64)
}

// MetricsSink receives the periodic training report. Sink failures are
// swallowed by the trainers; training progress is never lost to an
// observability failure.
type MetricsSink interface {
	Log(metrics map[string]float64) error
}

// Config carries the read-only fields the trainers consume. It is passed by
// value into each trainer.
type Config struct {
	Strategy   Strategy
	Epochs     int
	PrintFreq  int
	ClsNumList []int // retained sample count per class, ascending class order
	ImbType    dataset.ImbType
	ImbFactor  float64
	BaseLR     float64
}
