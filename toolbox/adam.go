package toolbox

import (
	"fmt"
	"slices"

	"github.com/chewxy/math32"
)

type AdamConfig struct {
	LR      float32 // default 1e-3
	Beta1   float32 // default 0.9
	Beta2   float32 // default 0.999
	Epsilon float32 // default 1e-8
}

// Adam updates a fixed set of parameters from their accumulated gradients,
// keeping running first and second moment estimates for every element.
//
// Each iteration must run ZeroGrad, then the backward pass, then Step.
type Adam struct {
	params []*Parameter

	alpha, beta1, beta2, epsilon float32

	step int

	// First and second moment vectors, one per parameter.
	m []*AF32
	v []*AF32
}

// NewAdam binds the optimizer to params.  Zero config fields take their
// defaults.
func NewAdam(params []*Parameter, cfg AdamConfig) *Adam {
	if cfg.LR == 0 {
		cfg.LR = 1e-3
	}
	if cfg.Beta1 == 0 {
		cfg.Beta1 = 0.9
	}
	if cfg.Beta2 == 0 {
		cfg.Beta2 = 0.999
	}
	if cfg.Epsilon == 0 {
		cfg.Epsilon = 1e-8
	}

	opt := &Adam{
		params:  slices.Clone(params),
		alpha:   cfg.LR,
		beta1:   cfg.Beta1,
		beta2:   cfg.Beta2,
		epsilon: cfg.Epsilon,
		m:       make([]*AF32, len(params)),
		v:       make([]*AF32, len(params)),
	}
	for i, p := range params {
		opt.m[i] = MakeAF32(p.Value.Shape...)
		opt.v[i] = MakeAF32(p.Value.Shape...)
	}
	return opt
}

// ZeroGrad clears the gradient buffers of every bound parameter.
func (opt *Adam) ZeroGrad() {
	for _, p := range opt.params {
		p.ZeroGrad()
	}
}

// Step applies one Adam update using the current gradients.
func (opt *Adam) Step() {
	opt.step++

	beta1 := opt.beta1
	beta2 := opt.beta2
	biasCorrection1 := 1 - math32.Pow(beta1, float32(opt.step))
	biasCorrection2 := 1 - math32.Pow(beta2, float32(opt.step))
	stepSize := opt.alpha / biasCorrection1
	sqrtBiasCorrection2 := math32.Sqrt(biasCorrection2)

	for l, p := range opt.params {
		w := p.Value.V
		g := p.Grad.V
		m := opt.m[l].V
		v := opt.v[l].V
		for i := range w {
			m[i] = beta1*m[i] + (1-beta1)*g[i]
			v[i] = beta2*v[i] + (1-beta2)*g[i]*g[i]
			w[i] -= stepSize * m[i] / (math32.Sqrt(v[i])/sqrtBiasCorrection2 + opt.epsilon)
		}
	}
}

// StepCount is the number of completed Step calls.
func (opt *Adam) StepCount() int {
	return opt.step
}

func (opt *Adam) DumpTensors(tensors map[string]*AF32) {
	// Scalars are saved as {1} tensors.
	tensors["adam.step"] = MakeScalarAF32(float32(opt.step))
	tensors["adam.alpha"] = MakeScalarAF32(opt.alpha)
	tensors["adam.beta1"] = MakeScalarAF32(opt.beta1)
	tensors["adam.beta2"] = MakeScalarAF32(opt.beta2)
	tensors["adam.epsilon"] = MakeScalarAF32(opt.epsilon)

	for l := range opt.params {
		tensors[fmt.Sprintf("adam.%d.m", l)] = opt.m[l]
		tensors[fmt.Sprintf("adam.%d.v", l)] = opt.v[l]
	}
}

func loadIntFromTensor(tensors map[string]*AF32, key string) (int, error) {
	f, err := loadFloat32FromTensor(tensors, key)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

func loadFloat32FromTensor(tensors map[string]*AF32, key string) (float32, error) {
	tensor, ok := tensors[key]
	if !ok {
		return 0, fmt.Errorf("missing tensor %s", key)
	}
	if len(tensor.V) != 1 {
		return 0, fmt.Errorf("tensor %s is not a scalar; shape %v", key, tensor.Shape)
	}
	return tensor.At1(0), nil
}

func (opt *Adam) LoadTensors(tensors map[string]*AF32) error {
	var err error
	opt.step, err = loadIntFromTensor(tensors, "adam.step")
	if err != nil {
		return err
	}
	opt.alpha, err = loadFloat32FromTensor(tensors, "adam.alpha")
	if err != nil {
		return err
	}
	opt.beta1, err = loadFloat32FromTensor(tensors, "adam.beta1")
	if err != nil {
		return err
	}
	opt.beta2, err = loadFloat32FromTensor(tensors, "adam.beta2")
	if err != nil {
		return err
	}
	opt.epsilon, err = loadFloat32FromTensor(tensors, "adam.epsilon")
	if err != nil {
		return err
	}

	for l := range opt.params {
		for _, moment := range []struct {
			key string
			dst *AF32
		}{
			{fmt.Sprintf("adam.%d.m", l), opt.m[l]},
			{fmt.Sprintf("adam.%d.v", l), opt.v[l]},
		} {
			tensor, ok := tensors[moment.key]
			if !ok {
				return fmt.Errorf("missing tensor %s", moment.key)
			}
			if !slices.Equal(tensor.Shape, moment.dst.Shape) {
				return fmt.Errorf("wrong shape for %s; got %v want %v", moment.key, tensor.Shape, moment.dst.Shape)
			}
			copy(moment.dst.V, tensor.V)
		}
	}

	return nil
}
