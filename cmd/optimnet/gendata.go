package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/ahmedtd/optimnet/toolbox"
	"github.com/google/subcommands"
)

type GenDataCommand struct {
	model modelFlags

	outputFile string
}

var _ subcommands.Command = (*GenDataCommand)(nil)

func (*GenDataCommand) Name() string {
	return "gendata"
}

func (*GenDataCommand) Synopsis() string {
	return "Write a random input/target batch to an npz file"
}

func (*GenDataCommand) Usage() string {
	return ``
}

func (c *GenDataCommand) SetFlags(f *flag.FlagSet) {
	c.model.setFlags(f)
	f.StringVar(&c.outputFile, "output", "batch.npz", "Path of the npz file to write")
}

func (c *GenDataCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.executeErr(ctx); err != nil {
		log.Printf("Error: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *GenDataCommand) executeErr(ctx context.Context) error {
	cfg, err := c.model.config()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	x, y := toolbox.SyntheticBatch(c.model.newRand(), cfg.BatchSize, cfg.InputSize, cfg.OutputSize)
	if err := toolbox.WriteBatchNPZ(c.outputFile, x, y); err != nil {
		return err
	}

	log.Printf("Wrote batch x=%v y=%v to %s", x.Shape, y.Shape, c.outputFile)
	return nil
}
