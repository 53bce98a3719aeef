package training

import (
	"github.com/pkg/errors"

	"github.com/tsawler/go-longtail/tensor"
)

// ERMTrainer trains with plain unweighted cross-entropy: empirical risk
// minimization, every class sharing the same weight.
type ERMTrainer struct {
	base
}

func (t *ERMTrainer) Strategy() Strategy {
	return ERM
}

// SetCriterion installs the unweighted cross-entropy criterion. ERM has no
// schedule dependency, but the criterion is still rebuilt per epoch to match
// the shared trainer contract.
func (t *ERMTrainer) SetCriterion(epoch int) error {
	if t.cfg.Strategy != ERM {
		return errors.Wrapf(ErrUnsupportedStrategy, "%q", t.cfg.Strategy)
	}

	t.criterion = NewCrossEntropyLoss(nil)
	return nil
}

// TrainOneEpoch runs one full traversal of the loader.
func (t *ERMTrainer) TrainOneEpoch(loader *DataLoader, epoch int) (*EpochMetrics, error) {
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
