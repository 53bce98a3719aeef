package training

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	exprand "golang.org/x/exp/rand"

	"github.com/tsawler/go-longtail/tensor"
)

// Trainer drives one training epoch at a time for a fixed strategy. The
// criterion is rebuilt at the start of every epoch so schedule-dependent
// weights are never stale. Trainers mutate the model and optimizer in place
// but do not own their lifecycle; only one trainer may drive a given
// model/optimizer pair at a time.
type Trainer interface {
	Strategy() Strategy
	SetCriterion(epoch int) error
	TrainOneEpoch(loader *DataLoader, epoch int) (*EpochMetrics, error)
}

// Option configures optional trainer collaborators.
type Option func(*base)

// WithTrainingLog attaches an append-only text log. It is flushed after each
// periodic report when it implements Flush() error.
func WithTrainingLog(w io.Writer) Option {
	return func(b *base) { b.logW = w }
}

// WithMetricsSink attaches an external metrics sink. Sink failures are
// non-fatal.
func WithMetricsSink(s MetricsSink) Option {
	return func(b *base) { b.sink = s }
}

// WithMixupAlpha sets the Beta(alpha, alpha) parameter for the Mixup-DRW
// strategy. The default is 1.0.
func WithMixupAlpha(alpha float64) Option {
	return func(b *base) { b.mixupAlpha = alpha }
}

// WithSeed seeds the trainer's random source (mixup draws and batch
// permutations).
func WithSeed(seed uint64) Option {
	return func(b *base) { b.rng = exprand.New(exprand.NewSource(seed)) }
}

// base holds the state shared by every strategy.
type base struct {
	model      Module
	optimizer  Optimizer
	cfg        Config
	criterion  Loss
	logW       io.Writer
	sink       MetricsSink
	mixupAlpha float64
	rng        *exprand.Rand
}

// NewTrainer builds the trainer for the configured strategy. An unrecognized
// strategy name is rejected with ErrUnsupportedStrategy.
func NewTrainer(model Module, optimizer Optimizer, cfg Config, opts ...Option) (Trainer, error) {
	if model == nil {
		return nil, errors.New("model must not be nil")
	}
	if optimizer == nil {
		return nil, errors.New("optimizer must not be nil")
	}

	b := base{
		model:      model,
		optimizer:  optimizer,
		cfg:        cfg,
		mixupAlpha: 1.0,
		rng:        exprand.New(exprand.NewSource(0)),
	}
	for _, opt := range opts {
		opt(&b)
	}

	switch cfg.Strategy {
	case ERM:
		return &ERMTrainer{base: b}, nil
	case LDAMDRW:
		return &LDAMDRWTrainer{base: b}, nil
	case MixupDRW:
		return &MixupDRWTrainer{base: b}, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedStrategy, "%q", cfg.Strategy)
	}
}

// stepFunc runs one batch's forward/loss/backward sequence and returns the
// batch loss plus the logits accuracy should be measured on.
type stepFunc func(input *tensor.Tensor, target []int32) (float32, *tensor.Tensor, error)

// runEpoch is the shared epoch traversal: batches are consumed strictly in
// order, each batch's optimizer update completes before the next forward
// pass, and a report is emitted every PrintFreq batches.
func (b *base) runEpoch(loader *DataLoader, epoch int, step stepFunc) (*EpochMetrics, error) {
	losses := NewAverageMeter("Loss")
	top1 := NewAverageMeter("Prec@1")
	top5 := NewAverageMeter("Prec@5")

	var allPreds []int32
	var allTargets []int32

	b.model.Train()
	loader.Reset()
	numBatches := loader.Len()

	for i := 0; ; i++ {
		batch, err := loader.Next()
		if err != nil {
			return nil, errors.Wrapf(err, "loading batch %d", i)
		}
		if batch == nil {
			break
		}

		target, err := batchTargets(batch.Labels)
		if err != nil {
			return nil, errors.Wrapf(err, "batch %d", i)
		}

		b.optimizer.ZeroGrad()

		lossVal, scoreLogits, err := step(batch.Data, target)
		if err != nil {
			return nil, errors.Wrapf(err, "batch %d", i)
		}

		if err := b.optimizer.Step(); err != nil {
			return nil, errors.Wrapf(err, "optimizer step on batch %d", i)
		}

		accs, err := Accuracy(scoreLogits, target, 1, 5)
		if err != nil {
			return nil, errors.Wrapf(err, "accuracy on batch %d", i)
		}
		preds, err := Predictions(scoreLogits)
		if err != nil {
			return nil, errors.Wrapf(err, "predictions on batch %d", i)
		}
		allPreds = append(allPreds, preds...)
		allTargets = append(allTargets, target...)

		batchSize := batch.Data.Shape[0]
		losses.Update(float64(lossVal), batchSize)
		top1.Update(accs[0], batchSize)
		top5.Update(accs[1], batchSize)

		if b.cfg.PrintFreq > 0 && i%b.cfg.PrintFreq == 0 {
			b.report(epoch, i, numBatches, losses, top1, top5)
		}
	}

	return &EpochMetrics{
		Epoch:   epoch,
		Loss:    losses.Avg,
		Top1:    top1.Avg,
		Top5:    top5.Avg,
		LR:      b.optimizer.GetLR(),
		Preds:   allPreds,
		Targets: allTargets,
	}, nil
}

// report emits the periodic training line to stdout, the text log and the
// metrics sink. Observability failures never abort training.
func (b *base) report(epoch, batch, totalBatches int, losses, top1, top5 *AverageMeter) {
	line := fmt.Sprintf("Epoch: [%d][%d/%d], lr: %.5f\tLoss %.4f (%.4f)\tPrec@1 %.3f (%.3f)\tPrec@5 %.3f (%.3f)",
		epoch, batch, totalBatches, b.optimizer.GetLR(),
		losses.Val, losses.Avg, top1.Val, top1.Avg, top5.Val, top5.Avg)

	fmt.Println(line)

	if b.logW != nil {
		if _, err := io.WriteString(b.logW, line+"\n"); err == nil {
			if f, ok := b.logW.(interface{ Flush() error }); ok {
				_ = f.Flush()
			}
		}
	}

	if b.sink != nil {
		_ = b.sink.Log(map[string]float64{
			"epoch":             float64(epoch),
			"epoch_train_loss":  losses.Avg,
			"epoch_train_acc@1": top1.Avg,
			"epoch_train_acc@5": top5.Avg,
			"lr":                b.optimizer.GetLR(),
		})
	}
}
