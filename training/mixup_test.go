package training

import (
	"math"
	"testing"

	exprand "golang.org/x/exp/rand"

	"github.com/tsawler/go-longtail/tensor"
)

func TestMixupData(t *testing.T) {
	t.Run("Lambda lies in unit interval", func(t *testing.T) {
		rng := exprand.New(exprand.NewSource(1))
		input, _ := tensor.NewTensor([]int{4, 2}, tensor.Float32, []float32{1, 2, 3, 4, 5, 6, 7, 8})
		target := []int32{0, 1, 0, 1}

		for i := 0; i < 50; i++ {
			_, _, _, lam, err := MixupData(input, target, 1.0, rng)
			if err != nil {
				t.Fatalf("MixupData failed: %v", err)
			}
			if lam < 0 || lam > 1 {
				t.Fatalf("Draw %d: lambda %v outside [0, 1]", i, lam)
			}
		}
	})

	t.Run("Alpha zero disables mixing", func(t *testing.T) {
		rng := exprand.New(exprand.NewSource(1))
		input, _ := tensor.NewTensor([]int{2, 2}, tensor.Float32, []float32{1, 2, 3, 4})
		target := []int32{0, 1}

		mixed, targetA, _, lam, err := MixupData(input, target, 0, rng)
		if err != nil {
			t.Fatalf("MixupData failed: %v", err)
		}
		if lam != 1.0 {
			t.Errorf("Expected lambda 1 for alpha 0, got %v", lam)
		}

		data := mixed.Data.([]float32)
		orig := input.Data.([]float32)
		for i := range data {
			if data[i] != orig[i] {
				t.Errorf("Element %d: expected unchanged input %v, got %v", i, orig[i], data[i])
			}
		}
		for i := range targetA {
			if targetA[i] != target[i] {
				t.Errorf("targetA[%d]: expected %d, got %d", i, target[i], targetA[i])
			}
		}
	})

	t.Run("Mixed batch is a convex combination", func(t *testing.T) {
		rng := exprand.New(exprand.NewSource(3))
		input, _ := tensor.NewTensor([]int{3, 1}, tensor.Float32, []float32{0, 10, 20})
		target := []int32{0, 1, 2}

		mixed, _, _, _, err := MixupData(input, target, 1.0, rng)
		if err != nil {
			t.Fatalf("MixupData failed: %v", err)
		}

		// Every mixed value must stay within the range of the inputs.
		for i, v := range mixed.Data.([]float32) {
			if v < 0 || v > 20 {
				t.Errorf("Element %d: mixed value %v outside input range", i, v)
			}
		}
	})

	t.Run("Batch size mismatch rejected", func(t *testing.T) {
		rng := exprand.New(exprand.NewSource(1))
		input, _ := tensor.NewTensor([]int{2, 2}, tensor.Float32, []float32{1, 2, 3, 4})

		if _, _, _, _, err := MixupData(input, []int32{0}, 1.0, rng); err == nil {
			t.Error("Expected error for target length mismatch")
		}
	})
}

func TestMixupCriterion(t *testing.T) {
	logits, _ := tensor.NewTensor([]int{2, 3}, tensor.Float32, []float32{2, 0, 1, 0, 3, 1})
	targetA := []int32{0, 1}
	targetB := []int32{2, 0}
	ce := NewCrossEntropyLoss(nil)

	t.Run("Lambda one reduces to the first target view", func(t *testing.T) {
		loss, _, err := MixupCriterion(ce, logits, targetA, targetB, 1.0)
		if err != nil {
			t.Fatalf("MixupCriterion failed: %v", err)
		}

		perSample, err := ce.PerSample(logits, targetA)
		if err != nil {
			t.Fatalf("PerSample failed: %v", err)
		}

		if math.Abs(float64(loss-MeanLoss(perSample))) > 1e-6 {
			t.Errorf("Expected %v at lambda 1, got %v", MeanLoss(perSample), loss)
		}
	})

	t.Run("Lambda zero reduces to the second target view", func(t *testing.T) {
		loss, _, err := MixupCriterion(ce, logits, targetA, targetB, 0.0)
		if err != nil {
			t.Fatalf("MixupCriterion failed: %v", err)
		}

		perSample, err := ce.PerSample(logits, targetB)
		if err != nil {
			t.Fatalf("PerSample failed: %v", err)
		}

		if math.Abs(float64(loss-MeanLoss(perSample))) > 1e-6 {
			t.Errorf("Expected %v at lambda 0, got %v", MeanLoss(perSample), loss)
		}
	})

	t.Run("Loss is linear in lambda", func(t *testing.T) {
		lossAt := func(lam float64) float32 {
			loss, _, err := MixupCriterion(ce, logits, targetA, targetB, lam)
			if err != nil {
				t.Fatalf("MixupCriterion failed: %v", err)
			}
			return loss
		}

		l0 := lossAt(0)
		l1 := lossAt(1)
		lHalf := lossAt(0.5)

		want := 0.5*float64(l0) + 0.5*float64(l1)
		if math.Abs(float64(lHalf)-want) > 1e-5 {
			t.Errorf("Expected %v at lambda 0.5, got %v", want, lHalf)
		}
	})

	t.Run("Gradient is linear in lambda", func(t *testing.T) {
		gradAt := func(lam float64) []float32 {
			_, grad, err := MixupCriterion(ce, logits, targetA, targetB, lam)
			if err != nil {
				t.Fatalf("MixupCriterion failed: %v", err)
			}
			return grad.Data.([]float32)
		}

		g0 := gradAt(0)
		g1 := gradAt(1)
		gHalf := gradAt(0.5)

		for i := range gHalf {
			want := 0.5*g0[i] + 0.5*g1[i]
			if math.Abs(float64(gHalf[i]-want)) > 1e-6 {
				t.Errorf("Gradient element %d: expected %v, got %v", i, want, gHalf[i])
			}
		}
	})
}
