package toolbox

import (
	"fmt"
	"math/rand"
	"slices"
)

// Network runs its layers in order.
type Network struct {
	Layers []Module
}

// MakeTwoLayerNet builds Dense(inputSize, hiddenSize) -> activation ->
// Dense(hiddenSize, outputSize).
func MakeTwoLayerNet(inputSize, hiddenSize, outputSize int, activation ActivationType, r *rand.Rand) *Network {
	net := &Network{}
	net.Layers = append(net.Layers, MakeDense(inputSize, hiddenSize, r))
	if act := MakeActivation(activation); act != nil {
		net.Layers = append(net.Layers, act)
	}
	net.Layers = append(net.Layers, MakeDense(hiddenSize, outputSize, r))
	return net
}

// x is the input.  Shape (batchSize, layers[0].InputSize)
func (net *Network) Forward(x *AF32) *AF32 {
	a := x
	for _, lay := range net.Layers {
		a = lay.Forward(a)
	}
	return a
}

// Apply is Forward for callers that never backpropagate.
func (net *Network) Apply(x *AF32) *AF32 {
	return net.Forward(x)
}

// Backward propagates djda, the gradient of the loss wrt the output of the
// last Forward, through every layer.  djdx of layer l is the djda of layer l-1.
func (net *Network) Backward(djda *AF32) *AF32 {
	g := djda
	for l := len(net.Layers) - 1; l >= 0; l-- {
		g = net.Layers[l].Backward(g)
	}
	return g
}

// Parameters lists every trainable parameter, in layer order.
func (net *Network) Parameters() []*Parameter {
	params := []*Parameter{}
	for _, lay := range net.Layers {
		params = append(params, lay.Parameters()...)
	}
	return params
}

func (net *Network) ZeroGrad() {
	for _, p := range net.Parameters() {
		p.ZeroGrad()
	}
}

func (net *Network) DumpTensors(tensors map[string]*AF32) {
	for l, lay := range net.Layers {
		for _, p := range lay.Parameters() {
			tensors[fmt.Sprintf("net.%d.%s", l, p.Name)] = p.Value
		}
	}
}

// LoadTensors copies saved values into the existing parameters, so an
// optimizer already bound to them keeps working.
func (net *Network) LoadTensors(tensors map[string]*AF32) error {
	for l, lay := range net.Layers {
		for _, p := range lay.Parameters() {
			key := fmt.Sprintf("net.%d.%s", l, p.Name)
			tensor, ok := tensors[key]
			if !ok {
				return fmt.Errorf("no entry for %s", key)
			}
			if !slices.Equal(tensor.Shape, p.Value.Shape) {
				return fmt.Errorf("wrong shape for %s; got %v want %v", key, tensor.Shape, p.Value.Shape)
			}
			copy(p.Value.V, tensor.V)
		}
	}

	return nil
}
