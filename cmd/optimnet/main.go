// Command optimnet trains a two-layer fully-connected ReLU network on a batch
// of random data with the Adam optimizer, printing the loss at every step.
//
// To train: `go run ./cmd/optimnet train`
//
// To save a batch: `go run ./cmd/optimnet gendata --output=batch.npz`
//
// To evaluate: `go run ./cmd/optimnet eval --weights=optimnet-out.safetensors --data-file=batch.npz`
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"runtime/pprof"
	"time"

	"github.com/ahmedtd/optimnet/toolbox"
	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	subcommands.Register(&TrainCommand{}, "")
	subcommands.Register(&GenDataCommand{}, "")
	subcommands.Register(&EvalCommand{}, "")

	flag.Parse()
	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}

// modelFlags are the sizes and shape options shared by every subcommand.
type modelFlags struct {
	seed int64

	batchSize  int
	inputSize  int
	hiddenSize int
	outputSize int

	activation string
	reduction  string
}

func (m *modelFlags) setFlags(f *flag.FlagSet) {
	def := toolbox.DefaultTrainConfig()
	f.Int64Var(&m.seed, "seed", 0, "Random seed; 0 seeds from the clock")
	f.IntVar(&m.batchSize, "batch-size", def.BatchSize, "Number of samples in the batch (N)")
	f.IntVar(&m.inputSize, "input-size", def.InputSize, "Input dimension (D_in)")
	f.IntVar(&m.hiddenSize, "hidden-size", def.HiddenSize, "Hidden dimension (H)")
	f.IntVar(&m.outputSize, "output-size", def.OutputSize, "Output dimension (D_out)")
	f.StringVar(&m.activation, "activation", def.Activation.String(), "Hidden activation: relu, sigmoid or linear")
	f.StringVar(&m.reduction, "reduction", def.LossFunction.String(), "Squared error reduction: sum or mean")
}

func (m *modelFlags) config() (toolbox.TrainConfig, error) {
	cfg := toolbox.DefaultTrainConfig()
	cfg.BatchSize = m.batchSize
	cfg.InputSize = m.inputSize
	cfg.HiddenSize = m.hiddenSize
	cfg.OutputSize = m.outputSize

	var err error
	cfg.Activation, err = toolbox.ParseActivationType(m.activation)
	if err != nil {
		return cfg, err
	}
	cfg.LossFunction, err = toolbox.ParseLossFunctionType(m.reduction)
	if err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (m *modelFlags) newRand() *rand.Rand {
	seed := m.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	log.Printf("Using random seed %d", seed)
	return rand.New(rand.NewSource(seed))
}

// loadOrGenerateBatch reads the batch from dataFile, or draws a fresh one
// from r when dataFile is empty.
func loadOrGenerateBatch(dataFile string, cfg toolbox.TrainConfig, r *rand.Rand) (x, y *toolbox.AF32, err error) {
	if dataFile == "" {
		x, y = toolbox.SyntheticBatch(r, cfg.BatchSize, cfg.InputSize, cfg.OutputSize)
		return x, y, nil
	}

	x, y, err = toolbox.ReadBatchNPZ(dataFile)
	if err != nil {
		return nil, nil, fmt.Errorf("while loading batch: %w", err)
	}
	log.Printf("Loaded batch x=%v y=%v from %s", x.Shape, y.Shape, dataFile)
	return x, y, nil
}

type TrainCommand struct {
	model modelFlags

	steps        int
	learningRate float64
	dataFile     string

	fromCheckpointFile string
	outputWeightFile   string

	cpuProfileFile string
}

var _ subcommands.Command = (*TrainCommand)(nil)

func (*TrainCommand) Name() string {
	return "train"
}

func (*TrainCommand) Synopsis() string {
	return "Train the model, printing the loss at every step"
}

func (*TrainCommand) Usage() string {
	return `train [flags]:
  Prints "<step> <loss>" on stdout for every training step.
`
}

func (c *TrainCommand) SetFlags(f *flag.FlagSet) {
	def := toolbox.DefaultTrainConfig()
	c.model.setFlags(f)
	f.IntVar(&c.steps, "steps", def.Steps, "Number of training iterations")
	f.Float64Var(&c.learningRate, "learning-rate", float64(def.LearningRate), "Adam learning rate")
	f.StringVar(&c.dataFile, "data-file", "", "Path to an npz batch (x.npy, y.npy); random data if empty")
	f.StringVar(&c.fromCheckpointFile, "from-checkpoint", "", "Path to initial weights to load for training")
	f.StringVar(&c.outputWeightFile, "output-weight-file", "", "Path to save trained weights (safetensors format)")

	f.StringVar(&c.cpuProfileFile, "cpu-profile", "", "Write a CPU profile")
}

func (c *TrainCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.executeErr(ctx); err != nil {
		log.Printf("Error: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *TrainCommand) executeErr(ctx context.Context) error {
	if c.cpuProfileFile != "" {
		f, err := os.Create(c.cpuProfileFile)
		if err != nil {
			return fmt.Errorf("while creating CPU profile file: %w", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("while starting CPU profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	cfg, err := c.model.config()
	if err != nil {
		return err
	}
	cfg.Steps = c.steps
	cfg.LearningRate = float32(c.learningRate)

	r := c.model.newRand()

	x, y, err := loadOrGenerateBatch(c.dataFile, cfg, r)
	if err != nil {
		return err
	}

	tr, err := toolbox.NewTrainer(cfg, x, y, r)
	if err != nil {
		return err
	}

	if c.fromCheckpointFile != "" {
		if err := loadCheckpoint(c.fromCheckpointFile, tr.Net, tr.Optimizer); err != nil {
			return fmt.Errorf("while loading initial checkpoint: %w", err)
		}
		log.Printf("Resuming from %s at Adam step %d", c.fromCheckpointFile, tr.Optimizer.StepCount())
	}

	if err := tr.Run(os.Stdout); err != nil {
		return err
	}

	log.Printf("timings overall=%.1f forward=%.1f loss=%.1f backprop=%.1f weightupdate=%.1f",
		tr.Timings.Overall.Seconds(),
		tr.Timings.Forward.Seconds(),
		tr.Timings.Loss.Seconds(),
		tr.Timings.Backpropagation.Seconds(),
		tr.Timings.WeightUpdate.Seconds(),
	)

	if c.outputWeightFile != "" {
		if err := writeCheckpoint(c.outputWeightFile, tr.Net, tr.Optimizer); err != nil {
			return fmt.Errorf("while writing checkpoint: %w", err)
		}
		log.Printf("Wrote weights to %s", c.outputWeightFile)
	}

	return nil
}

func loadCheckpoint(path string, net *toolbox.Network, opt *toolbox.Adam) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("while opening checkpoint file: %w", err)
	}
	defer f.Close()

	tensors, err := toolbox.ReadSafeTensors(f)
	if err != nil {
		return fmt.Errorf("while reading checkpoint tensors: %w", err)
	}

	if err := net.LoadTensors(tensors); err != nil {
		return fmt.Errorf("while restoring network: %w", err)
	}
	if opt == nil {
		return nil
	}
	if err := opt.LoadTensors(tensors); err != nil {
		return fmt.Errorf("while restoring Adam: %w", err)
	}

	return nil
}

func writeCheckpoint(path string, net *toolbox.Network, opt *toolbox.Adam) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("while creating checkpoint file: %w", err)
	}
	defer f.Close()

	tensors := map[string]*toolbox.AF32{}

	net.DumpTensors(tensors)
	opt.DumpTensors(tensors)

	if err := toolbox.WriteSafeTensors(f, tensors); err != nil {
		return fmt.Errorf("while writing checkpoint tensors: %w", err)
	}

	return f.Close()
}
