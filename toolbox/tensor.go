package toolbox

import (
	"fmt"
	"math/rand"
	"slices"

	"gonum.org/v1/gonum/blas/blas32"
)

// AF32 is a dense, row-major float32 array.
type AF32 struct {
	V     []float32
	Shape []int
}

func MakeAF32(shape ...int) *AF32 {
	for _, s := range shape {
		if s <= 0 {
			panic(fmt.Sprintf("invalid shape: %v", shape))
		}
	}
	size := 1
	for _, s := range shape {
		size *= s
	}

	return &AF32{
		V:     make([]float32, size),
		Shape: slices.Clone(shape),
	}
}

func MakeScalarAF32(scalar float32) *AF32 {
	return &AF32{
		V:     []float32{scalar},
		Shape: []int{1},
	}
}

// MakeAF32FromSlice wraps v (no copy) in a tensor of the given shape.
func MakeAF32FromSlice(v []float32, shape ...int) *AF32 {
	return AF32Reshape(&AF32{V: v}, shape...)
}

// RandNormAF32 fills a new tensor with samples from the standard normal
// distribution.
func RandNormAF32(r *rand.Rand, shape ...int) *AF32 {
	a := MakeAF32(shape...)
	for i := range a.V {
		a.V[i] = float32(r.NormFloat64())
	}
	return a
}

// RandUniformAF32 fills a new tensor with samples from U(lo, hi).
func RandUniformAF32(r *rand.Rand, lo, hi float32, shape ...int) *AF32 {
	a := MakeAF32(shape...)
	for i := range a.V {
		a.V[i] = lo + (hi-lo)*r.Float32()
	}
	return a
}

// AF32Copy returns a deep copy of in.
func AF32Copy(in *AF32) *AF32 {
	return &AF32{
		V:     slices.Clone(in.V),
		Shape: slices.Clone(in.Shape),
	}
}

func AF32Transpose(in *AF32, out *AF32) {
	if len(in.Shape) != 2 {
		panic("cannot transpose if len(shape) != 2")
	}
	if len(in.V) != len(out.V) {
		panic("output storage is not correctly sized to store the transpose of the input")
	}
	out.Shape = []int{in.Shape[1], in.Shape[0]}

	for i := 0; i < in.Shape[0]; i++ {
		for j := 0; j < in.Shape[1]; j++ {
			out.Set2(j, i, in.At2(i, j))
		}
	}
}

// AF32Reshape reshapes the input tensor.  The overall number of elements must
// be the same.  The returned tensor shares storage with the input tensor (no
// data is copied).
func AF32Reshape(a *AF32, shape ...int) *AF32 {
	newSize := 1
	for _, s := range shape {
		if s <= 0 {
			panic(fmt.Sprintf("invalid shape: %v", shape))
		}
		newSize *= s
	}

	if newSize != len(a.V) {
		panic("invalid reshape")
	}

	return &AF32{
		V:     a.V,
		Shape: slices.Clone(shape),
	}
}

func (a *AF32) At1(idx int) float32 {
	return a.V[idx]
}

func (a *AF32) At2(idx0, idx1 int) float32 {
	if len(a.Shape) != 2 {
		panic("At2() invalid for len(shape) != 2")
	}
	return a.V[idx0*a.Shape[1]+idx1]
}

func (a *AF32) Set2(idx0, idx1 int, v float32) {
	if len(a.Shape) != 2 {
		panic("Set2() invalid for len(shape) != 2")
	}
	a.V[idx0*a.Shape[1]+idx1] = v
}

// Zero sets every element to 0, keeping the storage.
func (a *AF32) Zero() {
	clear(a.V)
}

// General views a 2-D tensor as a BLAS matrix sharing its storage.
func (a *AF32) General() blas32.General {
	if len(a.Shape) != 2 {
		panic(fmt.Sprintf("General() invalid for shape %v", a.Shape))
	}
	return blas32.General{
		Rows:   a.Shape[0],
		Cols:   a.Shape[1],
		Stride: a.Shape[1],
		Data:   a.V,
	}
}

func mustShape(name string, a *AF32, shape ...int) {
	if !slices.Equal(a.Shape, shape) {
		panic(fmt.Sprintf("dimension mismatch: %s has shape %v, want %v", name, a.Shape, shape))
	}
}
