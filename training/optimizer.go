package training

import (
	"sync"

	"github.com/pkg/errors"
)

// SGD implements stochastic gradient descent with momentum, weight decay and
// optional Nesterov acceleration over a model's parameters.
type SGD struct {
	parameters   []*Parameter
	learningRate float64
	momentum     float64
	weightDecay  float64
	dampening    float64
	nesterov     bool
	velocities   map[*Parameter][]float32
	mutex        sync.RWMutex
}

// NewSGD creates a new SGD optimizer over the given parameters.
func NewSGD(parameters []*Parameter, lr, momentum, weightDecay, dampening float64, nesterov bool) *SGD {
	sgd := &SGD{
		parameters:   parameters,
		learningRate: lr,
		momentum:     momentum,
		weightDecay:  weightDecay,
		dampening:    dampening,
		nesterov:     nesterov,
		velocities:   make(map[*Parameter][]float32),
	}

	if momentum > 0 {
		for _, param := range parameters {
			sgd.velocities[param] = make([]float32, param.Value.NumElems)
		}
	}

	return sgd
}

// Step applies accumulated gradients to the parameters.
func (sgd *SGD) Step() error {
	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()

	for i, param := range sgd.parameters {
		if param.Grad == nil {
			continue
		}

		values, err := param.Value.Float32Data()
		if err != nil {
			return errors.Wrapf(err, "parameter %d", i)
		}
		grads, err := param.Grad.Float32Data()
		if err != nil {
			return errors.Wrapf(err, "parameter %d gradient", i)
		}
		if len(values) != len(grads) {
			return errors.Errorf("parameter %d: value has %d elements, gradient has %d", i, len(values), len(grads))
		}

		for j := range values {
			g := float64(grads[j])

			if sgd.weightDecay > 0 {
				g += sgd.weightDecay * float64(values[j])
			}

			if sgd.momentum > 0 {
				v := sgd.velocities[param]
				vj := sgd.momentum*float64(v[j]) + (1-sgd.dampening)*g
				v[j] = float32(vj)

				if sgd.nesterov {
					g += sgd.momentum * vj
				} else {
					g = vj
				}
			}

			values[j] -= float32(sgd.learningRate * g)
		}
	}

	return nil
}

// ZeroGrad resets all parameter gradients to zero.
func (sgd *SGD) ZeroGrad() {
	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()

	for _, param := range sgd.parameters {
		if param.Grad == nil {
			continue
		}
		if grads, ok := param.Grad.Data.([]float32); ok {
			for j := range grads {
				grads[j] = 0
			}
		}
	}
}

// GetLR returns the current learning rate.
func (sgd *SGD) GetLR() float64 {
	sgd.mutex.RLock()
	defer sgd.mutex.RUnlock()
	return sgd.learningRate
}

// SetLR sets the learning rate.
func (sgd *SGD) SetLR(lr float64) {
	sgd.mutex.Lock()
	defer sgd.mutex.Unlock()
	sgd.learningRate = lr
}
