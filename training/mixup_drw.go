package training

import (
	"github.com/pkg/errors"

	"github.com/tsawler/go-longtail/tensor"
)

// MixupDRWTrainer trains on linearly mixed input batches with a DRW-weighted
// cross-entropy. Accuracy is measured on a separate unmixed forward pass,
// since a mixed batch has no single correct class per sample.
type MixupDRWTrainer struct {
	base
}

func (t *MixupDRWTrainer) Strategy() Strategy {
	return MixupDRW
}

// SetCriterion rebuilds the weighted cross-entropy with this epoch's DRW
// weights.
func (t *MixupDRWTrainer) SetCriterion(epoch int) error {
	if t.cfg.Strategy != MixupDRW {
		return errors.Wrapf(ErrUnsupportedStrategy, "%q", t.cfg.Strategy)
	}

	weights, err := PerClassWeights(epoch, t.cfg.Epochs, t.cfg.ClsNumList)
	if err != nil {
		return errors.Wrap(err, "deferred re-weighting")
	}

	t.criterion = NewCrossEntropyLoss(weights)
	return nil
}

// TrainOneEpoch runs one full traversal of the loader.
func (t *MixupDRWTrainer) TrainOneEpoch(loader *DataLoader, epoch int) (*EpochMetrics, error) {
	if err := t.SetCriterion(epoch); err != nil {
		return nil, err
	}

	return t.runEpoch(loader, epoch, func(input *tensor.Tensor, target []int32) (float32, *tensor.Tensor, error) {
		mixed, targetA, targetB, lam, err := MixupData(input, target, t.mixupAlpha, t.rng)
		if err != nil {
			return 0, nil, errors.Wrap(err, "mixing batch")
		}

		// Unmixed pass first: its logits drive accuracy and the confusion
		// matrix.
		scoreLogits, _, err := t.model.Forward(input)
		if err != nil {
			return 0, nil, errors.Wrap(err, "unmixed forward pass")
		}

		mixLogits, _, err := t.model.Forward(mixed)
		if err != nil {
			return 0, nil, errors.Wrap(err, "mixed forward pass")
		}

		loss, grad, err := MixupCriterion(t.criterion, mixLogits, targetA, targetB, lam)
		if err != nil {
			return 0, nil, errors.Wrap(err, "mixup loss")
		}
		if err := t.model.Backward(grad); err != nil {
			return 0, nil, errors.Wrap(err, "backward pass")
		}

		return loss, scoreLogits, nil
	})
}
