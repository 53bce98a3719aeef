package dataset

import (
	"math"
	"testing"

	"github.com/pkg/errors"

	"github.com/tsawler/go-longtail/tensor"
)

// balancedSource builds a source with perClass samples for each of clsNum
// classes. Each sample is a 1-element tensor carrying its source index so
// tests can track which samples were retained.
func balancedSource(t *testing.T, clsNum, perClass int) *SliceSource {
	t.Helper()

	var samples []*tensor.Tensor
	var labels []int
	for c := 0; c < clsNum; c++ {
		for i := 0; i < perClass; i++ {
			idx := len(samples)
			s, err := tensor.NewTensor([]int{1}, tensor.Float32, []float32{float32(idx)})
			if err != nil {
				t.Fatalf("Failed to create sample tensor: %v", err)
			}
			samples = append(samples, s)
			labels = append(labels, c)
		}
	}

	src, err := NewSliceSource(samples, labels)
	if err != nil {
		t.Fatalf("Failed to create source: %v", err)
	}
	return src
}

func TestImgNumPerCls(t *testing.T) {
	t.Run("Exponential decay", func(t *testing.T) {
		counts, err := ImgNumPerCls(3, Exp, 0.1, 1000)
		if err != nil {
			t.Fatalf("ImgNumPerCls failed: %v", err)
		}

		expected := []int{1000, 316, 100}
		for i, want := range expected {
			if counts[i] != want {
				t.Errorf("Class %d: expected %d, got %d", i, want, counts[i])
			}
		}
	})

	t.Run("Exponential tail ratio matches factor", func(t *testing.T) {
		for _, factor := range []float64{0.1, 0.01, 0.5} {
			counts, err := ImgNumPerCls(10, Exp, factor, 5000)
			if err != nil {
				t.Fatalf("ImgNumPerCls failed: %v", err)
			}

			ratio := float64(counts[len(counts)-1]) / float64(counts[0])
			// Floor rounding can push the ratio slightly below the factor.
			if math.Abs(ratio-factor) > 1.0/float64(counts[0]) {
				t.Errorf("Factor %v: tail/head ratio %v too far from factor", factor, ratio)
			}

			for i := 1; i < len(counts); i++ {
				if counts[i] > counts[i-1] {
					t.Errorf("Factor %v: counts not monotonically non-increasing at %d: %v", factor, i, counts)
				}
			}
		}
	})

	t.Run("Step decay", func(t *testing.T) {
		counts, err := ImgNumPerCls(4, Step, 0.5, 1000)
		if err != nil {
			t.Fatalf("ImgNumPerCls failed: %v", err)
		}

		expected := []int{1000, 1000, 500, 500}
		for i, want := range expected {
			if counts[i] != want {
				t.Errorf("Class %d: expected %d, got %d", i, want, counts[i])
			}
		}
	})

	t.Run("Step decay first half keeps cap", func(t *testing.T) {
		for _, clsNum := range []int{2, 6, 10} {
			counts, err := ImgNumPerCls(clsNum, Step, 0.1, 200)
			if err != nil {
				t.Fatalf("ImgNumPerCls failed: %v", err)
			}
			for i := 0; i < clsNum/2; i++ {
				if counts[i] != 200 {
					t.Errorf("clsNum %d: head class %d expected 200, got %d", clsNum, i, counts[i])
				}
			}
			for i := clsNum / 2; i < clsNum; i++ {
				if counts[i] != 20 {
					t.Errorf("clsNum %d: tail class %d expected 20, got %d", clsNum, i, counts[i])
				}
			}
		}
	})

	t.Run("Balanced keeps cap for all classes", func(t *testing.T) {
		counts, err := ImgNumPerCls(5, Balanced, 0.1, 300)
		if err != nil {
			t.Fatalf("ImgNumPerCls failed: %v", err)
		}
		for i, n := range counts {
			if n != 300 {
				t.Errorf("Class %d: expected 300, got %d", i, n)
			}
		}
	})

	t.Run("Exponential rejects a single class", func(t *testing.T) {
		// The decay exponent divides by clsNum-1; one class would produce a
		// NaN count and a nonsense truncation downstream.
		if _, err := ImgNumPerCls(1, Exp, 0.1, 100); err == nil {
			t.Error("Expected error for exponential profile with one class")
		}

		src := balancedSource(t, 1, 10)
		if _, err := NewLongTail(src, Options{ImbType: Exp, ImbFactor: 0.1}); err == nil {
			t.Error("Expected error building a one-class exponential long tail")
		}
	})
}

func TestNewLongTail(t *testing.T) {
	t.Run("Exponential end to end", func(t *testing.T) {
		src := balancedSource(t, 3, 1000)

		lt, err := NewLongTail(src, Options{
			ImbType:   Exp,
			ImbFactor: 0.1,
			ImgMax:    1000,
			Seed:      0,
			Shuffle:   true,
		})
		if err != nil {
			t.Fatalf("NewLongTail failed: %v", err)
		}

		counts := lt.ClsNumList()
		expected := []int{1000, 316, 100}
		for i, want := range expected {
			if counts[i] != want {
				t.Errorf("Class %d: expected count %d, got %d", i, want, counts[i])
			}
		}
	})

	t.Run("Counts sum to dataset length", func(t *testing.T) {
		for _, imbType := range []ImbType{Exp, Step, Balanced} {
			src := balancedSource(t, 4, 100)

			lt, err := NewLongTail(src, Options{
				ImbType:   imbType,
				ImbFactor: 0.1,
				Seed:      7,
				Shuffle:   true,
			})
			if err != nil {
				t.Fatalf("NewLongTail(%s) failed: %v", imbType, err)
			}

			total := 0
			for _, n := range lt.NumPerClass() {
				total += n
			}

			if total != lt.Len() {
				t.Errorf("%s: counts sum %d != dataset length %d", imbType, total, lt.Len())
			}
		}
	})

	t.Run("Deterministic under fixed seed", func(t *testing.T) {
		build := func() *LongTail {
			src := balancedSource(t, 5, 200)
			lt, err := NewLongTail(src, Options{
				ImbType:   Exp,
				ImbFactor: 0.05,
				Seed:      42,
				Shuffle:   true,
			})
			if err != nil {
				t.Fatalf("NewLongTail failed: %v", err)
			}
			return lt
		}

		a := build()
		b := build()

		if a.Len() != b.Len() {
			t.Fatalf("Lengths differ: %d vs %d", a.Len(), b.Len())
		}

		for i := 0; i < a.Len(); i++ {
			if a.Label(i) != b.Label(i) {
				t.Fatalf("Labels differ at %d: %d vs %d", i, a.Label(i), b.Label(i))
			}

			sa, _ := a.Sample(i)
			sb, _ := b.Sample(i)
			va := sa.Data.([]float32)[0]
			vb := sb.Data.([]float32)[0]
			if va != vb {
				t.Fatalf("Samples differ at %d: %v vs %v", i, va, vb)
			}
		}
	})

	t.Run("Insufficient samples rejected", func(t *testing.T) {
		src := balancedSource(t, 3, 50)

		_, err := NewLongTail(src, Options{
			ImbType:   Exp,
			ImbFactor: 0.1,
			ImgMax:    1000, // more than the 50 available per class
			Shuffle:   true,
		})
		if err == nil {
			t.Fatal("Expected error for target exceeding available samples")
		}
		if !errors.Is(err, ErrInsufficientSamples) {
			t.Errorf("Expected ErrInsufficientSamples, got %v", err)
		}
	})

	t.Run("Invalid imbalance factor rejected", func(t *testing.T) {
		src := balancedSource(t, 2, 10)

		for _, factor := range []float64{0, -0.5, 1.5} {
			if _, err := NewLongTail(src, Options{ImbType: Exp, ImbFactor: factor}); err == nil {
				t.Errorf("Expected error for imb factor %v", factor)
			}
		}
	})

	t.Run("Counts keyed by actual class id", func(t *testing.T) {
		// Labels 5 and 9 only; positional indexing would lose the mapping.
		var samples []*tensor.Tensor
		var labels []int
		for i := 0; i < 40; i++ {
			s, _ := tensor.NewTensor([]int{1}, tensor.Float32, []float32{float32(i)})
			samples = append(samples, s)
			if i < 20 {
				labels = append(labels, 5)
			} else {
				labels = append(labels, 9)
			}
		}
		src, err := NewSliceSource(samples, labels)
		if err != nil {
			t.Fatalf("Failed to create source: %v", err)
		}

		lt, err := NewLongTail(src, Options{ImbType: Step, ImbFactor: 0.5, ImgMax: 20})
		if err != nil {
			t.Fatalf("NewLongTail failed: %v", err)
		}

		counts := lt.NumPerClass()
		if counts[5] != 20 || counts[9] != 10 {
			t.Errorf("Expected counts {5:20, 9:10}, got %v", counts)
		}
	})
}

func TestRotateToTail(t *testing.T) {
	t.Run("Moves first class to the tail", func(t *testing.T) {
		rotated := RotateToTail(1)([]int{0, 1, 2, 3})

		expected := []int{1, 2, 3, 0}
		for i, want := range expected {
			if rotated[i] != want {
				t.Errorf("Position %d: expected %d, got %d", i, want, rotated[i])
			}
		}
	})

	t.Run("Rotated class receives the tail count", func(t *testing.T) {
		src := balancedSource(t, 4, 100)

		lt, err := NewLongTail(src, Options{
			ImbType:   Step,
			ImbFactor: 0.1,
			ImgMax:    100,
			Reorder:   RotateToTail(1),
		})
		if err != nil {
			t.Fatalf("NewLongTail failed: %v", err)
		}

		counts := lt.NumPerClass()
		// Assignment order is 1,2,3,0 with step counts 100,100,10,10.
		if counts[1] != 100 || counts[2] != 100 || counts[3] != 10 || counts[0] != 10 {
			t.Errorf("Unexpected counts after rotation: %v", counts)
		}
	})

	t.Run("Out of range rotation is identity", func(t *testing.T) {
		classes := []int{0, 1}
		if got := RotateToTail(5)(classes); len(got) != 2 || got[0] != 0 {
			t.Errorf("Expected identity, got %v", got)
		}
	})
}
