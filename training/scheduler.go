package training

import (
	"math"
)

// LRScheduler computes the learning rate for an epoch. Schedulers are pure
// functions of the epoch so the surrounding training controller can apply
// them before each call to TrainOneEpoch.
type LRScheduler interface {
	GetLR(epoch int, baseLR float64) float64
	GetName() string
}

// StepLR reduces the learning rate by a factor every StepSize epochs.
type StepLR struct {
	StepSize int
	Gamma    float64
}

// NewStepLR creates a step learning rate scheduler.
func NewStepLR(stepSize int, gamma float64) *StepLR {
	if stepSize <= 0 {
		stepSize = 30
	}
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.1
	}
	return &StepLR{
		StepSize: stepSize,
		Gamma:    gamma,
	}
}

func (s *StepLR) GetLR(epoch int, baseLR float64) float64 {
	times := epoch / s.StepSize
	return baseLR * math.Pow(s.Gamma, float64(times))
}

func (s *StepLR) GetName() string {
	return "StepLR"
}

// MultiStepLR reduces the learning rate by Gamma at each milestone epoch.
// The LDAM-DRW recipe decays at epochs 160 and 180 of a 200-epoch run.
type MultiStepLR struct {
	Milestones []int
	Gamma      float64
}

// NewMultiStepLR creates a milestone-based scheduler. Milestones must be in
// ascending order.
func NewMultiStepLR(milestones []int, gamma float64) *MultiStepLR {
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.1
	}
	return &MultiStepLR{
		Milestones: append([]int{}, milestones...),
		Gamma:      gamma,
	}
}

func (s *MultiStepLR) GetLR(epoch int, baseLR float64) float64 {
	lr := baseLR
	for _, m := range s.Milestones {
		if epoch >= m {
			lr *= s.Gamma
		}
	}
	return lr
}

func (s *MultiStepLR) GetName() string {
	return "MultiStepLR"
}

// ConstantLR maintains a constant learning rate.
type ConstantLR struct{}

func (s *ConstantLR) GetLR(epoch int, baseLR float64) float64 {
	return baseLR
}

func (s *ConstantLR) GetName() string {
	return "ConstantLR"
}
