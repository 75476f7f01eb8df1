package toolbox

import (
	"bufio"
	"bytes"
	"errors"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func smallTrainConfig() TrainConfig {
	cfg := DefaultTrainConfig()
	cfg.BatchSize = 8
	cfg.InputSize = 20
	cfg.HiddenSize = 6
	cfg.OutputSize = 3
	cfg.Steps = 30
	cfg.LearningRate = 1e-2
	return cfg
}

func runTraining(t *testing.T, cfg TrainConfig, seed int64) (string, *Trainer) {
	t.Helper()

	r := rand.New(rand.NewSource(seed))
	x, y := SyntheticBatch(r, cfg.BatchSize, cfg.InputSize, cfg.OutputSize)
	tr, err := NewTrainer(cfg, x, y, r)
	if err != nil {
		t.Fatalf("NewTrainer: %v", err)
	}

	out := &bytes.Buffer{}
	if err := tr.Run(out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out.String(), tr
}

func parseLossLines(t *testing.T, out string) []float64 {
	t.Helper()

	losses := []float64{}
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			t.Fatalf("line %q does not have the form \"<iteration> <loss>\"", scanner.Text())
		}
		step, err := strconv.Atoi(fields[0])
		if err != nil {
			t.Fatalf("bad iteration index in %q: %v", scanner.Text(), err)
		}
		if step != len(losses) {
			t.Fatalf("got iteration %d, want %d", step, len(losses))
		}
		loss, err := strconv.ParseFloat(fields[1], 32)
		if err != nil {
			t.Fatalf("bad loss in %q: %v", scanner.Text(), err)
		}
		losses = append(losses, loss)
	}
	return losses
}

func TestTrainDefaultConfigConverges(t *testing.T) {
	if testing.Short() {
		t.Skip("full-size training run")
	}

	out, tr := runTraining(t, DefaultTrainConfig(), 12345)
	losses := parseLossLines(t, out)

	if len(losses) != 500 {
		t.Fatalf("got %d loss lines, want 500", len(losses))
	}
	for step, loss := range losses {
		if math.IsNaN(loss) || math.IsInf(loss, 0) || loss < 0 {
			t.Fatalf("loss at step %d is %v, want a finite non-negative number", step, loss)
		}
	}

	first, last := losses[0], losses[len(losses)-1]
	t.Logf("loss step 0 = %v, step 499 = %v", first, last)
	if !(last < first/4) {
		t.Errorf("final loss %v is not substantially below initial loss %v", last, first)
	}

	var early, late float64
	for i := 0; i < 50; i++ {
		early += losses[i]
		late += losses[len(losses)-50+i]
	}
	if !(late < early) {
		t.Errorf("mean loss of the last 50 steps (%v) is not below the first 50 (%v)", late/50, early/50)
	}

	if got := tr.Optimizer.StepCount(); got != 500 {
		t.Errorf("StepCount() = %d, want 500", got)
	}
}

func TestTrainIsDeterministicForSeed(t *testing.T) {
	cfg := smallTrainConfig()

	out1, _ := runTraining(t, cfg, 42)
	out2, _ := runTraining(t, cfg, 42)
	if diff := cmp.Diff(out1, out2); diff != "" {
		t.Fatalf("Same seed produced different output; diff (-first +second)\n%s", diff)
	}

	out3, _ := runTraining(t, cfg, 43)
	if out1 == out3 {
		t.Errorf("Different seeds produced identical output")
	}
}

func TestTrainStepGradientsAreSinglePass(t *testing.T) {
	cfg := smallTrainConfig()
	r := rand.New(rand.NewSource(12345))
	x, y := SyntheticBatch(r, cfg.BatchSize, cfg.InputSize, cfg.OutputSize)
	tr, err := NewTrainer(cfg, x, y, r)
	if err != nil {
		t.Fatalf("NewTrainer: %v", err)
	}

	// A twin network evaluated at the same parameters gives the gradient one
	// backward pass should leave behind.
	twin := MakeTwoLayerNet(cfg.InputSize, cfg.HiddenSize, cfg.OutputSize, cfg.Activation, r)

	for step := 0; step < 5; step++ {
		tensors := map[string]*AF32{}
		tr.Net.DumpTensors(tensors)
		if err := twin.LoadTensors(tensors); err != nil {
			t.Fatalf("LoadTensors: %v", err)
		}
		pred := twin.Forward(x)
		twin.ZeroGrad()
		djda := MakeAF32(pred.Shape...)
		SumSquaredErrorLossGradient(y, pred, djda)
		twin.Backward(djda)

		if _, err := tr.Step(&bytes.Buffer{}, step); err != nil {
			t.Fatalf("Step: %v", err)
		}

		got := tr.Net.Parameters()
		want := twin.Parameters()
		for i := range got {
			if diff := cmp.Diff(got[i].Grad, want[i].Grad, cmpopts.EquateApprox(1e-5, 1e-6)); diff != "" {
				t.Fatalf("step %d: gradient of parameter %d is not the single-pass value; diff (-got +want)\n%s", step, i, diff)
			}
		}
	}
}

func TestTrainOnStepSeesEveryIteration(t *testing.T) {
	cfg := smallTrainConfig()
	r := rand.New(rand.NewSource(12345))
	x, y := SyntheticBatch(r, cfg.BatchSize, cfg.InputSize, cfg.OutputSize)
	tr, err := NewTrainer(cfg, x, y, r)
	if err != nil {
		t.Fatalf("NewTrainer: %v", err)
	}

	seen := []int{}
	tr.OnStep = func(step int, loss float32) {
		seen = append(seen, step)
		if tr.Optimizer.StepCount() != step {
			t.Errorf("OnStep(%d) ran after %d optimizer steps, want before the update", step, tr.Optimizer.StepCount())
		}
	}
	out := &bytes.Buffer{}
	if err := tr.Run(out); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(seen) != cfg.Steps {
		t.Fatalf("OnStep called %d times, want %d", len(seen), cfg.Steps)
	}
	if got := len(parseLossLines(t, out.String())); got != cfg.Steps {
		t.Fatalf("got %d loss lines, want %d", got, cfg.Steps)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestTrainReportsWriteErrors(t *testing.T) {
	cfg := smallTrainConfig()
	r := rand.New(rand.NewSource(12345))
	x, y := SyntheticBatch(r, cfg.BatchSize, cfg.InputSize, cfg.OutputSize)
	tr, err := NewTrainer(cfg, x, y, r)
	if err != nil {
		t.Fatalf("NewTrainer: %v", err)
	}

	if err := tr.Run(failingWriter{}); err == nil {
		t.Fatalf("Run with a failing writer succeeded, want error")
	}
}

func TestNewTrainerRejectsMismatchedBatch(t *testing.T) {
	cfg := smallTrainConfig()
	r := rand.New(rand.NewSource(12345))

	if _, err := NewTrainer(cfg, MakeAF32(cfg.BatchSize, cfg.InputSize+1), MakeAF32(cfg.BatchSize, cfg.OutputSize), r); err == nil {
		t.Errorf("NewTrainer accepted an input batch of the wrong width")
	}
	if _, err := NewTrainer(cfg, MakeAF32(cfg.BatchSize, cfg.InputSize), MakeAF32(cfg.BatchSize+1, cfg.OutputSize), r); err == nil {
		t.Errorf("NewTrainer accepted a target batch of the wrong height")
	}
}

func TestTrainConfigValidate(t *testing.T) {
	if err := DefaultTrainConfig().Validate(); err != nil {
		t.Fatalf("default config is invalid: %v", err)
	}

	for name, mutate := range map[string]func(*TrainConfig){
		"zero batch":         func(c *TrainConfig) { c.BatchSize = 0 },
		"negative hidden":    func(c *TrainConfig) { c.HiddenSize = -1 },
		"zero input":         func(c *TrainConfig) { c.InputSize = 0 },
		"zero output":        func(c *TrainConfig) { c.OutputSize = 0 },
		"negative steps":     func(c *TrainConfig) { c.Steps = -1 },
		"zero learning rate": func(c *TrainConfig) { c.LearningRate = 0 },
		"NaN learning rate":  func(c *TrainConfig) { c.LearningRate = float32(math.NaN()) },
		"bad activation":     func(c *TrainConfig) { c.Activation = ActivationType(99) },
		"bad loss":           func(c *TrainConfig) { c.LossFunction = LossFunctionType(99) },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultTrainConfig()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() succeeded, want error")
			}
		})
	}
}

func TestParseActivationType(t *testing.T) {
	for _, want := range []ActivationType{ReLU, Linear, Sigmoid} {
		got, err := ParseActivationType(want.String())
		if err != nil {
			t.Fatalf("ParseActivationType(%q): %v", want.String(), err)
		}
		if got != want {
			t.Errorf("ParseActivationType(%q) = %v, want %v", want.String(), got, want)
		}
	}
	if _, err := ParseActivationType("tanh"); err == nil {
		t.Errorf("ParseActivationType(\"tanh\") succeeded, want error")
	}
}
