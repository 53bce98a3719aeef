package tensor

import (
	"fmt"
)

// DType identifies the element type of a Tensor.
type DType int

const (
	Float32 DType = iota
	Int32
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "Float32"
	case Int32:
		return "Int32"
	default:
		return "Unknown"
	}
}

// Tensor is a CPU-resident n-dimensional array. Data is either []float32 or
// []int32 depending on DType, stored in row-major order.
type Tensor struct {
	Shape    []int
	Strides  []int
	DType    DType
	Data     interface{}
	NumElems int
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, dtype=%s, elements=%d)", t.Shape, t.DType, t.NumElems)
}

func calculateStrides(shape []int) []int {
	if len(shape) == 0 {
		return []int{}
	}

	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func calculateNumElements(shape []int) int {
	if len(shape) == 0 {
		return 0
	}

	elements := 1
	for _, dim := range shape {
		elements *= dim
	}
	return elements
}

func validateShape(shape []int) error {
	for i, dim := range shape {
		if dim <= 0 {
			return fmt.Errorf("invalid shape: dimension %d has size %d, must be positive", i, dim)
		}
	}
	return nil
}

// NewTensor creates a tensor with the given shape and data. The data slice
// type must match the dtype and its length must equal the shape's element
// count. Pass nil data to allocate a zero-filled tensor.
func NewTensor(shape []int, dtype DType, data interface{}) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	t := &Tensor{
		Shape:    append([]int{}, shape...),
		Strides:  calculateStrides(shape),
		DType:    dtype,
		NumElems: calculateNumElements(shape),
	}

	if data == nil {
		t.allocate()
		return t, nil
	}

	if err := t.setData(data); err != nil {
		return nil, err
	}

	return t, nil
}

// Zeros creates a zero-filled tensor with the given shape and dtype.
func Zeros(shape []int, dtype DType) (*Tensor, error) {
	return NewTensor(shape, dtype, nil)
}

// Ones creates a one-filled tensor with the given shape and dtype.
func Ones(shape []int, dtype DType) (*Tensor, error) {
	t, err := NewTensor(shape, dtype, nil)
	if err != nil {
		return nil, err
	}

	switch dtype {
	case Float32:
		data := t.Data.([]float32)
		for i := range data {
			data[i] = 1
		}
	case Int32:
		data := t.Data.([]int32)
		for i := range data {
			data[i] = 1
		}
	}

	return t, nil
}

func (t *Tensor) allocate() {
	switch t.DType {
	case Float32:
		t.Data = make([]float32, t.NumElems)
	case Int32:
		t.Data = make([]int32, t.NumElems)
	}
}

func (t *Tensor) setData(data interface{}) error {
	switch t.DType {
	case Float32:
		d, ok := data.([]float32)
		if !ok {
			return fmt.Errorf("data type mismatch: expected []float32 for dtype %s", t.DType)
		}
		if len(d) != t.NumElems {
			return fmt.Errorf("data length mismatch: expected %d elements, got %d", t.NumElems, len(d))
		}
		t.Data = d

	case Int32:
		d, ok := data.([]int32)
		if !ok {
			return fmt.Errorf("data type mismatch: expected []int32 for dtype %s", t.DType)
		}
		if len(d) != t.NumElems {
			return fmt.Errorf("data length mismatch: expected %d elements, got %d", t.NumElems, len(d))
		}
		t.Data = d

	default:
		return fmt.Errorf("unsupported dtype: %s", t.DType)
	}

	return nil
}

// Clone returns a deep copy of the tensor.
func (t *Tensor) Clone() (*Tensor, error) {
	clone, err := NewTensor(t.Shape, t.DType, nil)
	if err != nil {
		return nil, err
	}

	switch t.DType {
	case Float32:
		copy(clone.Data.([]float32), t.Data.([]float32))
	case Int32:
		copy(clone.Data.([]int32), t.Data.([]int32))
	}

	return clone, nil
}

// Reshape returns a view-copy of the tensor with a new shape. The new shape
// must describe the same number of elements.
func (t *Tensor) Reshape(newShape []int) (*Tensor, error) {
	if err := validateShape(newShape); err != nil {
		return nil, err
	}

	if calculateNumElements(newShape) != t.NumElems {
		return nil, fmt.Errorf("cannot reshape tensor of %d elements into shape %v", t.NumElems, newShape)
	}

	return &Tensor{
		Shape:    append([]int{}, newShape...),
		Strides:  calculateStrides(newShape),
		DType:    t.DType,
		Data:     t.Data,
		NumElems: t.NumElems,
	}, nil
}

// Float32Data returns the underlying []float32, or an error for non-float
// tensors.
func (t *Tensor) Float32Data() ([]float32, error) {
	data, ok := t.Data.([]float32)
	if !ok {
		return nil, fmt.Errorf("tensor dtype is %s, not Float32", t.DType)
	}
	return data, nil
}

// Int32Data returns the underlying []int32, or an error for non-int tensors.
func (t *Tensor) Int32Data() ([]int32, error) {
	data, ok := t.Data.([]int32)
	if !ok {
		return nil, fmt.Errorf("tensor dtype is %s, not Int32", t.DType)
	}
	return data, nil
}

// SameShape reports whether two tensors have identical shapes.
func SameShape(a, b *Tensor) bool {
	if len(a.Shape) != len(b.Shape) {
		return false
	}
	for i, dim := range a.Shape {
		if dim != b.Shape[i] {
			return false
		}
	}
	return true
}
