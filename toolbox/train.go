package toolbox

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"
)

// TrainConfig describes a training run of a two-layer network on one fixed
// batch.
type TrainConfig struct {
	BatchSize  int
	InputSize  int
	HiddenSize int
	OutputSize int

	Activation   ActivationType
	LossFunction LossFunctionType

	LearningRate float32
	Steps        int
}

func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		BatchSize:    64,
		InputSize:    1000,
		HiddenSize:   100,
		OutputSize:   10,
		Activation:   ReLU,
		LossFunction: SumSquaredError,
		LearningRate: 1e-4,
		Steps:        500,
	}
}

func (c TrainConfig) Validate() error {
	var errs []error
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch size must be positive, got %d", c.BatchSize))
	}
	if c.InputSize <= 0 {
		errs = append(errs, fmt.Errorf("input size must be positive, got %d", c.InputSize))
	}
	if c.HiddenSize <= 0 {
		errs = append(errs, fmt.Errorf("hidden size must be positive, got %d", c.HiddenSize))
	}
	if c.OutputSize <= 0 {
		errs = append(errs, fmt.Errorf("output size must be positive, got %d", c.OutputSize))
	}
	if c.Steps < 0 {
		errs = append(errs, fmt.Errorf("steps must not be negative, got %d", c.Steps))
	}
	if !(c.LearningRate > 0) {
		errs = append(errs, fmt.Errorf("learning rate must be positive, got %v", c.LearningRate))
	}
	switch c.Activation {
	case ReLU, Linear, Sigmoid:
	default:
		errs = append(errs, fmt.Errorf("unknown activation %v", c.Activation))
	}
	switch c.LossFunction {
	case SumSquaredError, MeanSquaredError:
	default:
		errs = append(errs, fmt.Errorf("unknown loss function %v", c.LossFunction))
	}
	return errors.Join(errs...)
}

type TrainTimings struct {
	Overall         time.Duration
	Forward         time.Duration
	Loss            time.Duration
	Backpropagation time.Duration
	WeightUpdate    time.Duration
}

// Trainer fits Net to a single fixed batch (X, Y).
type Trainer struct {
	Net          *Network
	Optimizer    *Adam
	LossFunction LossFunctionType

	X *AF32 // Shape (batchSize, inputSize)
	Y *AF32 // Shape (batchSize, outputSize)

	Steps int

	// OnStep, if set, observes the loss of every iteration before the
	// parameters are updated.
	OnStep func(step int, loss float32)

	Timings TrainTimings

	djda *AF32
}

// NewTrainer builds the network and binds an Adam optimizer to its
// parameters.  x and y must agree with cfg's sizes.
func NewTrainer(cfg TrainConfig, x, y *AF32, r *rand.Rand) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if len(x.Shape) != 2 || x.Shape[0] != cfg.BatchSize || x.Shape[1] != cfg.InputSize {
		return nil, fmt.Errorf("input batch has shape %v, want [%d %d]", x.Shape, cfg.BatchSize, cfg.InputSize)
	}
	if len(y.Shape) != 2 || y.Shape[0] != cfg.BatchSize || y.Shape[1] != cfg.OutputSize {
		return nil, fmt.Errorf("target batch has shape %v, want [%d %d]", y.Shape, cfg.BatchSize, cfg.OutputSize)
	}

	net := MakeTwoLayerNet(cfg.InputSize, cfg.HiddenSize, cfg.OutputSize, cfg.Activation, r)
	return &Trainer{
		Net:          net,
		Optimizer:    NewAdam(net.Parameters(), AdamConfig{LR: cfg.LearningRate}),
		LossFunction: cfg.LossFunction,
		X:            x,
		Y:            y,
		Steps:        cfg.Steps,
		djda:         MakeAF32(cfg.BatchSize, cfg.OutputSize),
	}, nil
}

// Step runs iteration t: forward pass, loss, report, gradient reset, backward
// pass and parameter update, in that order.
func (tr *Trainer) Step(w io.Writer, t int) (float32, error) {
	start := time.Now()

	forwardStart := time.Now()
	pred := tr.Net.Forward(tr.X)
	tr.Timings.Forward += time.Since(forwardStart)

	lossStart := time.Now()
	loss := tr.LossFunction.Loss(tr.Y, pred)
	tr.Timings.Loss += time.Since(lossStart)

	if _, err := fmt.Fprintf(w, "%d %v\n", t, loss); err != nil {
		return loss, fmt.Errorf("while writing loss of step %d: %w", t, err)
	}
	if tr.OnStep != nil {
		tr.OnStep(t, loss)
	}

	backpropStart := time.Now()
	tr.Optimizer.ZeroGrad()
	tr.LossFunction.Gradient(tr.Y, pred, tr.djda)
	tr.Net.Backward(tr.djda)
	tr.Timings.Backpropagation += time.Since(backpropStart)

	weightUpdateStart := time.Now()
	tr.Optimizer.Step()
	tr.Timings.WeightUpdate += time.Since(weightUpdateStart)

	tr.Timings.Overall += time.Since(start)
	return loss, nil
}

// Run performs Steps iterations, writing "<iteration> <loss>" per line to w.
func (tr *Trainer) Run(w io.Writer) error {
	for t := 0; t < tr.Steps; t++ {
		if _, err := tr.Step(w, t); err != nil {
			return err
		}
	}
	return nil
}
