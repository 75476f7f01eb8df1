package toolbox

import (
	"fmt"
	"math/rand"

	"github.com/chewxy/math32"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Parameter is a trainable tensor together with its gradient buffer.
//
// Backward passes add into Grad; nothing clears it except ZeroGrad.
type Parameter struct {
	Name  string
	Value *AF32
	Grad  *AF32
}

func MakeParameter(name string, value *AF32) *Parameter {
	return &Parameter{
		Name:  name,
		Value: value,
		Grad:  MakeAF32(value.Shape...),
	}
}

func (p *Parameter) ZeroGrad() {
	p.Grad.Zero()
}

// Module is one stage of a Network.
//
// Forward remembers whatever Backward needs, so Backward always refers to the
// most recent Forward call.
type Module interface {
	// Forward maps x, shape (batchSize, in), to an output of shape (batchSize, out).
	Forward(x *AF32) *AF32

	// Backward takes dJda, the gradient of the loss wrt the last output,
	// accumulates parameter gradients, and returns the gradient wrt the last
	// input.
	Backward(dJda *AF32) *AF32

	Parameters() []*Parameter
}

type ActivationType int

const (
	ReLU ActivationType = iota
	Linear
	Sigmoid
)

func (t ActivationType) String() string {
	switch t {
	case ReLU:
		return "relu"
	case Linear:
		return "linear"
	case Sigmoid:
		return "sigmoid"
	default:
		return fmt.Sprintf("ActivationType(%d)", int(t))
	}
}

func ParseActivationType(s string) (ActivationType, error) {
	switch s {
	case "relu":
		return ReLU, nil
	case "linear":
		return Linear, nil
	case "sigmoid":
		return Sigmoid, nil
	default:
		return 0, fmt.Errorf("unknown activation %q", s)
	}
}

// MakeActivation returns the module for t, or nil for Linear (identity).
func MakeActivation(t ActivationType) Module {
	switch t {
	case ReLU:
		return &ReLULayer{}
	case Sigmoid:
		return &SigmoidLayer{}
	case Linear:
		return nil
	default:
		panic("unhandled activation function")
	}
}

// Dense is an affine layer: a = x W^T + b.
type Dense struct {
	W *Parameter // Shape (OutputSize, InputSize)
	B *Parameter // Shape (OutputSize)

	InputSize  int
	OutputSize int

	// Input of the last Forward call.
	x *AF32
}

var _ Module = (*Dense)(nil)

// MakeDense initializes W and B from U(-1/sqrt(inputSize), 1/sqrt(inputSize)).
func MakeDense(inputSize, outputSize int, r *rand.Rand) *Dense {
	bound := 1 / math32.Sqrt(float32(inputSize))
	return &Dense{
		W:          MakeParameter("weight", RandUniformAF32(r, -bound, bound, outputSize, inputSize)),
		B:          MakeParameter("bias", RandUniformAF32(r, -bound, bound, outputSize)),
		InputSize:  inputSize,
		OutputSize: outputSize,
	}
}

// Forward applies the layer.
//
// x (input) is the layer input.  Shape (batchSize, lay.InputSize)
// returns the layer's output.  Shape (batchSize, lay.OutputSize)
func (lay *Dense) Forward(x *AF32) *AF32 {
	if len(x.Shape) != 2 {
		panic(fmt.Sprintf("dimension mismatch: input shape %v is not 2-D", x.Shape))
	}
	batchSize := x.Shape[0]
	mustShape("x", x, batchSize, lay.InputSize)
	mustShape("W", lay.W.Value, lay.OutputSize, lay.InputSize)
	mustShape("B", lay.B.Value, lay.OutputSize)

	// Seed every row of a with the bias, then a += x W^T.
	a := MakeAF32(batchSize, lay.OutputSize)
	for k := 0; k < batchSize; k++ {
		copy(a.V[k*lay.OutputSize:(k+1)*lay.OutputSize], lay.B.Value.V)
	}
	blas32.Gemm(blas.NoTrans, blas.Trans, 1, x.General(), lay.W.Value.General(), 1, a.General())

	lay.x = x
	return a
}

// Backward is equivalent to
//
//	djdw[i, j] += sum_k djda[k, i] * x[k, j]
//	djdb[i]    += sum_k djda[k, i]
//	djdx[k, j]  = sum_i djda[k, i] * W[i, j]
func (lay *Dense) Backward(djda *AF32) *AF32 {
	if lay.x == nil {
		panic("Backward called before Forward")
	}
	batchSize := lay.x.Shape[0]
	mustShape("djda", djda, batchSize, lay.OutputSize)

	blas32.Gemm(blas.Trans, blas.NoTrans, 1, djda.General(), lay.x.General(), 1, lay.W.Grad.General())

	djdb := lay.B.Grad.V
	for k := 0; k < batchSize; k++ {
		row := djda.V[k*lay.OutputSize : (k+1)*lay.OutputSize]
		for i, g := range row {
			djdb[i] += g
		}
	}

	djdx := MakeAF32(batchSize, lay.InputSize)
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, djda.General(), lay.W.Value.General(), 0, djdx.General())
	return djdx
}

func (lay *Dense) Parameters() []*Parameter {
	return []*Parameter{lay.W, lay.B}
}

// ReLULayer maps negative values to zero.
type ReLULayer struct {
	a *AF32
}

var _ Module = (*ReLULayer)(nil)

func (lay *ReLULayer) Forward(z *AF32) *AF32 {
	a := AF32Copy(z)
	reluActivation(a.V)
	lay.a = a
	return a
}

func (lay *ReLULayer) Backward(djda *AF32) *AF32 {
	if lay.a == nil {
		panic("Backward called before Forward")
	}
	mustShape("djda", djda, lay.a.Shape...)

	djdz := MakeAF32(djda.Shape...)
	reluActivationGradient(lay.a.V, djdz.V)
	for i := range djdz.V {
		djdz.V[i] *= djda.V[i]
	}
	return djdz
}

func (lay *ReLULayer) Parameters() []*Parameter {
	return nil
}

// SigmoidLayer applies the logistic function elementwise.
type SigmoidLayer struct {
	a *AF32
}

var _ Module = (*SigmoidLayer)(nil)

func (lay *SigmoidLayer) Forward(z *AF32) *AF32 {
	a := AF32Copy(z)
	sigmoidActivation(a.V)
	lay.a = a
	return a
}

func (lay *SigmoidLayer) Backward(djda *AF32) *AF32 {
	if lay.a == nil {
		panic("Backward called before Forward")
	}
	mustShape("djda", djda, lay.a.Shape...)

	djdz := MakeAF32(djda.Shape...)
	sigmoidActivationGradient(lay.a.V, djdz.V)
	for i := range djdz.V {
		djdz.V[i] *= djda.V[i]
	}
	return djdz
}

func (lay *SigmoidLayer) Parameters() []*Parameter {
	return nil
}

// z (input/output)
func reluActivation(z []float32) {
	for i, v := range z {
		if v < 0 {
			z[i] = 0
		}
	}
}

// reluActivationGradient computes the derivative of the ReLU function.
//
// a (input) is the activated output of the layer.  Since ReLU keeps positive
// values unchanged, a > 0 exactly where z > 0.
//
// dadz (output) is the derivative of ReLU(z)
func reluActivationGradient(a, dadz []float32) {
	if len(a) != len(dadz) {
		panic("len(a) != len(dadz)")
	}

	for i := 0; i < len(a); i++ {
		if a[i] <= 0 {
			dadz[i] = 0
		} else {
			dadz[i] = 1
		}
	}
}

func sigmoidActivation(z []float32) {
	for i := 0; i < len(z); i++ {
		z[i] = 1 / (1 + math32.Exp(-z[i]))
	}
}

// a (input) is the activated output sigmoid(z).
func sigmoidActivationGradient(a, dadz []float32) {
	if len(a) != len(dadz) {
		panic("len(a) != len(dadz)")
	}

	for i := 0; i < len(a); i++ {
		dadz[i] = a[i] * (1 - a[i])
	}
}
