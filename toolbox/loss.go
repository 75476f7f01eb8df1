package toolbox

import (
	"fmt"
	"slices"
)

type LossFunctionType int

const (
	SumSquaredError LossFunctionType = iota
	MeanSquaredError
)

func (t LossFunctionType) String() string {
	switch t {
	case SumSquaredError:
		return "sum"
	case MeanSquaredError:
		return "mean"
	default:
		return fmt.Sprintf("LossFunctionType(%d)", int(t))
	}
}

// ParseLossFunctionType accepts the reduction names "sum" and "mean".
func ParseLossFunctionType(s string) (LossFunctionType, error) {
	switch s {
	case "sum":
		return SumSquaredError, nil
	case "mean":
		return MeanSquaredError, nil
	default:
		return 0, fmt.Errorf("unknown loss reduction %q", s)
	}
}

// y is the ground truth output.  Shape (batchSize, outputSize)
// a is the network's forward output.  Shape (batchSize, outputSize)
func (t LossFunctionType) Loss(y, a *AF32) float32 {
	switch t {
	case SumSquaredError:
		return SumSquaredErrorLoss(y, a)
	case MeanSquaredError:
		return MeanSquaredErrorLoss(y, a)
	default:
		panic("unimplemented loss function type")
	}
}

// dJda (output) is storage for the gradient of the loss wrt a.  Shape (batchSize, outputSize)
func (t LossFunctionType) Gradient(y, a, dJda *AF32) {
	switch t {
	case SumSquaredError:
		SumSquaredErrorLossGradient(y, a, dJda)
	case MeanSquaredError:
		MeanSquaredErrorLossGradient(y, a, dJda)
	default:
		panic("unimplemented loss function type")
	}
}

func checkLossShapes(y, a *AF32) {
	if len(y.Shape) != 2 {
		panic("len(y.Shape) != 2")
	}
	if !slices.Equal(y.Shape, a.Shape) {
		panic(fmt.Sprintf("dimension mismatch: y has shape %v, a has shape %v", y.Shape, a.Shape))
	}
}

// SumSquaredErrorLoss is sum_ki (a_ki - y_ki)^2.
func SumSquaredErrorLoss(y, a *AF32) float32 {
	checkLossShapes(y, a)

	loss := float32(0)
	for i := range a.V {
		diff := a.V[i] - y.V[i]
		loss += diff * diff
	}
	return loss
}

func SumSquaredErrorLossGradient(y, a, dJda *AF32) {
	checkLossShapes(y, a)
	if !slices.Equal(y.Shape, dJda.Shape) {
		panic("y and dJda must have same shape")
	}

	for i := range a.V {
		dJda.V[i] = 2 * (a.V[i] - y.V[i])
	}
}

// MeanSquaredErrorLoss is SumSquaredErrorLoss divided by the element count.
func MeanSquaredErrorLoss(y, a *AF32) float32 {
	return SumSquaredErrorLoss(y, a) / float32(len(a.V))
}

func MeanSquaredErrorLossGradient(y, a, dJda *AF32) {
	SumSquaredErrorLossGradient(y, a, dJda)
	n := float32(len(a.V))
	for i := range dJda.V {
		dJda.V[i] /= n
	}
}
