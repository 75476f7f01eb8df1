package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/ahmedtd/optimnet/toolbox"
	"github.com/google/subcommands"
)

type EvalCommand struct {
	model modelFlags

	weightsFile string
	dataFile    string
}

var _ subcommands.Command = (*EvalCommand)(nil)

func (*EvalCommand) Name() string {
	return "eval"
}

func (*EvalCommand) Synopsis() string {
	return "Compute the loss of saved weights on a batch"
}

func (*EvalCommand) Usage() string {
	return ``
}

func (c *EvalCommand) SetFlags(f *flag.FlagSet) {
	c.model.setFlags(f)
	f.StringVar(&c.weightsFile, "weights", "optimnet-out.safetensors", "Path to the weights produced by the train command")
	f.StringVar(&c.dataFile, "data-file", "", "Path to an npz batch (x.npy, y.npy); random data if empty")
}

func (c *EvalCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.executeErr(ctx); err != nil {
		log.Printf("Error: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *EvalCommand) executeErr(ctx context.Context) error {
	cfg, err := c.model.config()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	r := c.model.newRand()

	net := toolbox.MakeTwoLayerNet(cfg.InputSize, cfg.HiddenSize, cfg.OutputSize, cfg.Activation, r)
	if err := loadCheckpoint(c.weightsFile, net, nil); err != nil {
		return fmt.Errorf("while loading weights: %w", err)
	}

	x, y, err := loadOrGenerateBatch(c.dataFile, cfg, r)
	if err != nil {
		return err
	}
	if x.Shape[1] != cfg.InputSize || y.Shape[1] != cfg.OutputSize {
		return fmt.Errorf("batch shapes x=%v y=%v do not fit a %d->%d network", x.Shape, y.Shape, cfg.InputSize, cfg.OutputSize)
	}

	pred := net.Apply(x)
	fmt.Printf("%v\n", cfg.LossFunction.Loss(y, pred))
	return nil
}
