// Package dataset builds long-tailed variants of balanced image
// classification datasets. A source dataset exposes its samples and integer
// labels; the long-tail builder derives a per-class target count from a decay
// profile and subsamples each class to match.
package dataset

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/tsawler/go-longtail/tensor"
)

// Source is any balanced base dataset exposing samples and labels. The
// long-tail builder composes over a Source rather than inheriting from a
// concrete dataset type.
type Source interface {
	Len() int
	Label(idx int) int
	Sample(idx int) (*tensor.Tensor, error)
}

// SliceSource is an in-memory Source backed by parallel sample and label
// slices.
type SliceSource struct {
	samples []*tensor.Tensor
	labels  []int
}

// NewSliceSource creates a SliceSource. Samples and labels must have the same
// length.
func NewSliceSource(samples []*tensor.Tensor, labels []int) (*SliceSource, error) {
	if len(samples) != len(labels) {
		return nil, errors.Errorf("samples and labels must have the same length: got %d and %d", len(samples), len(labels))
	}

	return &SliceSource{
		samples: samples,
		labels:  labels,
	}, nil
}

// Len returns the number of samples in the source.
func (s *SliceSource) Len() int {
	return len(s.samples)
}

// Label returns the class label of the sample at idx.
func (s *SliceSource) Label(idx int) int {
	return s.labels[idx]
}

// Sample returns the sample tensor at idx.
func (s *SliceSource) Sample(idx int) (*tensor.Tensor, error) {
	if idx < 0 || idx >= len(s.samples) {
		return nil, errors.Errorf("index %d out of range [0, %d)", idx, len(s.samples))
	}
	return s.samples[idx], nil
}

// Classes returns the distinct class labels of a source in ascending order.
func Classes(src Source) []int {
	seen := make(map[int]bool)
	for i := 0; i < src.Len(); i++ {
		seen[src.Label(i)] = true
	}

	classes := make([]int, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	return classes
}

// classIndices gathers, per class, the source indices carrying that label.
// Index order within a class follows source order.
func classIndices(src Source) map[int][]int {
	byClass := make(map[int][]int)
	for i := 0; i < src.Len(); i++ {
		c := src.Label(i)
		byClass[c] = append(byClass[c], i)
	}
	return byClass
}
