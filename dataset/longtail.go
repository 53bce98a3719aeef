package dataset

import (
	"math"
	"math/rand"
	"sort"

	"github.com/pkg/errors"

	"github.com/tsawler/go-longtail/tensor"
)

// ErrInsufficientSamples is returned when a class's target count exceeds the
// number of samples the source holds for that class.
var ErrInsufficientSamples = errors.New("insufficient samples for class target count")

// ImbType selects the per-class count decay profile.
type ImbType string

const (
	// Exp decays counts exponentially from the majority cap down to
	// cap*factor for the last class.
	Exp ImbType = "exp"
	// Step gives the first half of classes the majority cap and the second
	// half cap*factor.
	Step ImbType = "step"
	// Balanced keeps every class at the majority cap.
	Balanced ImbType = "none"
)

// Options configures long-tail construction.
type Options struct {
	ImbType   ImbType
	ImbFactor float64
	// ImgMax is the majority-class cap. When zero, the smallest per-class
	// count available in the source is used, so every target is satisfiable.
	ImgMax int
	// Seed drives the per-class subsampling shuffle. Construction is
	// deterministic for a fixed seed.
	Seed int64
	// Shuffle controls whether each class's index pool is shuffled before
	// truncation. Without it the first ImgNum samples in source order are
	// kept.
	Shuffle bool
	// Reorder optionally permutes the ascending class list before target
	// counts are assigned, so a structurally distinct class can be rotated
	// into the tail. See RotateToTail. Most datasets should leave this nil.
	Reorder func(classes []int) []int
}

// LongTail is an imbalanced dataset materialized from a balanced Source.
// It is immutable after construction.
type LongTail struct {
	data        []*tensor.Tensor
	labels      []int
	numPerClass map[int]int
	imgNumList  []int
	classes     []int
}

// ImgNumPerCls computes the target sample count for each of clsNum classes.
// imgMax is the majority-class cap; imbFactor in (0, 1] scales the tail.
// Counts use floor rounding and are monotonically non-increasing for Exp.
// The exponential profile needs at least two classes; its decay exponent
// divides by clsNum-1.
func ImgNumPerCls(clsNum int, imbType ImbType, imbFactor float64, imgMax int) ([]int, error) {
	imgNumPerCls := make([]int, 0, clsNum)

	switch imbType {
	case Exp:
		if clsNum < 2 {
			return nil, errors.Errorf("exponential profile needs at least 2 classes, got %d", clsNum)
		}
		for clsIdx := 0; clsIdx < clsNum; clsIdx++ {
			num := float64(imgMax) * math.Pow(imbFactor, float64(clsIdx)/float64(clsNum-1))
			imgNumPerCls = append(imgNumPerCls, int(num))
		}
	case Step:
		for clsIdx := 0; clsIdx < clsNum/2; clsIdx++ {
			imgNumPerCls = append(imgNumPerCls, imgMax)
		}
		for clsIdx := 0; clsIdx < clsNum-clsNum/2; clsIdx++ {
			imgNumPerCls = append(imgNumPerCls, int(float64(imgMax)*imbFactor))
		}
	default:
		for clsIdx := 0; clsIdx < clsNum; clsIdx++ {
			imgNumPerCls = append(imgNumPerCls, imgMax)
		}
	}

	return imgNumPerCls, nil
}

// RotateToTail returns a Reorder hook that moves the first k classes of the
// ascending class list to the end. SVHN-style label encodings place the digit
// zero at label index 0 even though it behaves like a tail class, so its
// loaders rotate one class to the tail before counts are assigned.
func RotateToTail(k int) func(classes []int) []int {
	return func(classes []int) []int {
		if k <= 0 || k >= len(classes) {
			return classes
		}
		rotated := make([]int, 0, len(classes))
		rotated = append(rotated, classes[k:]...)
		rotated = append(rotated, classes[:k]...)
		return rotated
	}
}

// NewLongTail subsamples a balanced source into a long-tailed dataset.
// The i-th class in the (optionally reordered) ascending class list receives
// the i-th target count.
func NewLongTail(src Source, opt Options) (*LongTail, error) {
	if src.Len() == 0 {
		return nil, errors.New("source dataset is empty")
	}
	if opt.ImbFactor <= 0 || opt.ImbFactor > 1 {
		return nil, errors.Errorf("imb factor must be in (0, 1], got %v", opt.ImbFactor)
	}

	byClass := classIndices(src)
	classes := Classes(src)
	if opt.Reorder != nil {
		classes = opt.Reorder(classes)
	}

	imgMax := opt.ImgMax
	if imgMax == 0 {
		for _, c := range classes {
			if n := len(byClass[c]); imgMax == 0 || n < imgMax {
				imgMax = n
			}
		}
	}

	imgNumList, err := ImgNumPerCls(len(classes), opt.ImbType, opt.ImbFactor, imgMax)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(opt.Seed))

	lt := &LongTail{
		numPerClass: make(map[int]int, len(classes)),
		imgNumList:  imgNumList,
		classes:     classes,
	}

	for i, class := range classes {
		target := imgNumList[i]
		idx := byClass[class]
		if target > len(idx) {
			return nil, errors.Wrapf(ErrInsufficientSamples,
				"class %d has %d samples, target is %d", class, len(idx), target)
		}

		pool := append([]int{}, idx...)
		if opt.Shuffle {
			rng.Shuffle(len(pool), func(a, b int) {
				pool[a], pool[b] = pool[b], pool[a]
			})
		}

		for _, srcIdx := range pool[:target] {
			sample, err := src.Sample(srcIdx)
			if err != nil {
				return nil, errors.Wrapf(err, "loading sample %d of class %d", srcIdx, class)
			}
			lt.data = append(lt.data, sample)
			lt.labels = append(lt.labels, class)
		}
		lt.numPerClass[class] = target
	}

	if len(lt.data) != len(lt.labels) {
		return nil, errors.Errorf("length of data %d and labels %d do not match", len(lt.data), len(lt.labels))
	}

	return lt, nil
}

// Len returns the number of retained samples.
func (lt *LongTail) Len() int {
	return len(lt.labels)
}

// Get returns the sample and label at idx in the layout the training
// dataloader expects.
func (lt *LongTail) Get(idx int) (*tensor.Tensor, *tensor.Tensor, error) {
	if idx < 0 || idx >= len(lt.data) {
		return nil, nil, errors.Errorf("index %d out of range [0, %d)", idx, len(lt.data))
	}

	label, err := tensor.NewTensor([]int{1}, tensor.Int32, []int32{int32(lt.labels[idx])})
	if err != nil {
		return nil, nil, err
	}

	return lt.data[idx], label, nil
}

// Label returns the class label of the retained sample at idx.
func (lt *LongTail) Label(idx int) int {
	return lt.labels[idx]
}

// Sample returns the retained sample tensor at idx, so a LongTail can itself
// serve as a Source.
func (lt *LongTail) Sample(idx int) (*tensor.Tensor, error) {
	if idx < 0 || idx >= len(lt.data) {
		return nil, errors.Errorf("index %d out of range [0, %d)", idx, len(lt.data))
	}
	return lt.data[idx], nil
}

// NumPerClass returns the retained sample count keyed by actual class id.
func (lt *LongTail) NumPerClass() map[int]int {
	out := make(map[int]int, len(lt.numPerClass))
	for c, n := range lt.numPerClass {
		out[c] = n
	}
	return out
}

// ImgNumList returns the target counts in class-assignment order.
func (lt *LongTail) ImgNumList() []int {
	return append([]int{}, lt.imgNumList...)
}

// ClsNumList returns retained counts ordered by ascending class id, the
// layout loss reweighting consumes.
func (lt *LongTail) ClsNumList() []int {
	ordered := append([]int{}, lt.classes...)
	sort.Ints(ordered)

	out := make([]int, 0, len(ordered))
	for _, c := range ordered {
		out = append(out, lt.numPerClass[c])
	}
	return out
}
