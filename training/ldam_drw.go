package training

import (
	"github.com/pkg/errors"

	"github.com/tsawler/go-longtail/tensor"
)

// Default LDAM margin cap and logit scale.
const (
	ldamMaxMargin  = 0.5
	ldamLogitScale = 30
)

// LDAMDRWTrainer trains with the label-distribution-aware margin loss under
// the deferred re-weighting schedule.
type LDAMDRWTrainer struct {
	base
}

func (t *LDAMDRWTrainer) Strategy() Strategy {
	return LDAMDRW
}

// SetCriterion rebuilds the LDAM criterion with this epoch's DRW weights.
// The weights must be recomputed every epoch; caching them across the
// schedule breakpoint would train with stale weights.
func (t *LDAMDRWTrainer) SetCriterion(epoch int) error {
	if t.cfg.Strategy != LDAMDRW {
		return errors.Wrapf(ErrUnsupportedStrategy, "%q", t.cfg.Strategy)
	}

	weights, err := PerClassWeights(epoch, t.cfg.Epochs, t.cfg.ClsNumList)
	if err != nil {
		return errors.Wrap(err, "deferred re-weighting")
	}

	criterion, err := NewLDAMLoss(t.cfg.ClsNumList, ldamMaxMargin, ldamLogitScale, weights)
	if err != nil {
		return errors.Wrap(err, "building LDAM criterion")
	}

	t.criterion = criterion
	return nil
}

// TrainOneEpoch runs one full traversal of the loader.
func (t *LDAMDRWTrainer) TrainOneEpoch(loader *DataLoader, epoch int) (*EpochMetrics, error) {
	if err := t.SetCriterion(epoch); err != nil {
		return nil, err
	}

	return t.runEpoch(loader, epoch, func(input *tensor.Tensor, target []int32) (float32, *tensor.Tensor, error) {
		logits, _, err := t.model.Forward(input)
		if err != nil {
			return 0, nil, errors.Wrap(err, "forward pass")
		}

		perSample, err := t.criterion.PerSample(logits, target)
		if err != nil {
			return 0, nil, errors.Wrap(err, "loss computation")
		}

		grad, err := t.criterion.Backward(logits, target)
		if err != nil {
			return 0, nil, errors.Wrap(err, "loss gradient")
		}
		if err := t.model.Backward(grad); err != nil {
			return 0, nil, errors.Wrap(err, "backward pass")
		}

		return t.criterion.Reduce(perSample, target), logits, nil
	})
}
