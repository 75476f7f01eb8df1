package toolbox

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMakeAF32RejectsBadShape(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("MakeAF32(3, 0) did not panic")
		}
	}()
	MakeAF32(3, 0)
}

func TestAF32Transpose(t *testing.T) {
	in := MakeAF32FromSlice([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	out := MakeAF32(3, 2)
	AF32Transpose(in, out)

	want := &AF32{V: []float32{1, 4, 2, 5, 3, 6}, Shape: []int{3, 2}}
	if diff := cmp.Diff(out, want); diff != "" {
		t.Fatalf("Wrong output; diff (-got +want)\n%s", diff)
	}
}

func TestAF32ReshapeSharesStorage(t *testing.T) {
	a := MakeAF32(2, 3)
	b := AF32Reshape(a, 3, 2)
	b.Set2(2, 1, 7)

	if got := a.At2(1, 2); got != 7 {
		t.Errorf("a.At2(1, 2) = %v, want 7", got)
	}
}

func TestAF32CopyIsDeep(t *testing.T) {
	a := MakeAF32FromSlice([]float32{1, 2}, 1, 2)
	b := AF32Copy(a)
	b.V[0] = 9
	b.Shape[0] = 5

	want := &AF32{V: []float32{1, 2}, Shape: []int{1, 2}}
	if diff := cmp.Diff(a, want); diff != "" {
		t.Fatalf("Copy aliased the input; diff (-got +want)\n%s", diff)
	}
}

func TestRandNormAF32Statistics(t *testing.T) {
	r := rand.New(rand.NewSource(12345))
	a := RandNormAF32(r, 64, 1000)

	var sum, sumSq float64
	for _, v := range a.V {
		sum += float64(v)
		sumSq += float64(v) * float64(v)
	}
	n := float64(len(a.V))
	mean := sum / n
	variance := sumSq/n - mean*mean

	if mean < -0.02 || mean > 0.02 {
		t.Errorf("mean = %v, want close to 0", mean)
	}
	if variance < 0.97 || variance > 1.03 {
		t.Errorf("variance = %v, want close to 1", variance)
	}
}

func TestRandUniformAF32Bounds(t *testing.T) {
	r := rand.New(rand.NewSource(12345))
	a := RandUniformAF32(r, -0.5, 0.25, 100, 10)
	for i, v := range a.V {
		if v < -0.5 || v > 0.25 {
			t.Fatalf("a.V[%d] = %v outside [-0.5, 0.25]", i, v)
		}
	}
}
