package toolbox

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/sbinet/npyio/npz"
	"gonum.org/v1/gonum/mat"
)

// SyntheticBatch draws an input batch x, shape (batchSize, inputSize), and a
// target batch y, shape (batchSize, outputSize), from the standard normal
// distribution.
func SyntheticBatch(r *rand.Rand, batchSize, inputSize, outputSize int) (x, y *AF32) {
	x = RandNormAF32(r, batchSize, inputSize)
	y = RandNormAF32(r, batchSize, outputSize)
	return x, y
}

// WriteBatchNPZ stores x and y as the 2-D arrays x.npy and y.npy of an npz
// archive.
func WriteBatchNPZ(path string, x, y *AF32) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("while creating batch file: %w", err)
	}
	defer f.Close()

	w := npz.NewWriter(f)
	if err := w.Write("x.npy", toDense(x)); err != nil {
		return fmt.Errorf("while writing x.npy: %w", err)
	}
	if err := w.Write("y.npy", toDense(y)); err != nil {
		return fmt.Errorf("while writing y.npy: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("while finishing npz archive: %w", err)
	}

	return f.Close()
}

// ReadBatchNPZ loads a batch written by WriteBatchNPZ (or by numpy.savez with
// float64 arrays named x and y).
func ReadBatchNPZ(path string) (x, y *AF32, err error) {
	r, err := npz.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("while opening batch file: %w", err)
	}
	defer r.Close()

	x, err = loadMatrix(r, "x.npy")
	if err != nil {
		return nil, nil, fmt.Errorf("while reading x.npy: %w", err)
	}

	y, err = loadMatrix(r, "y.npy")
	if err != nil {
		return nil, nil, fmt.Errorf("while reading y.npy: %w", err)
	}

	if x.Shape[0] != y.Shape[0] {
		return nil, nil, fmt.Errorf("x has %d rows but y has %d", x.Shape[0], y.Shape[0])
	}

	return x, y, nil
}

func loadMatrix(r *npz.Reader, name string) (*AF32, error) {
	header := r.Header(name)
	if header == nil {
		return nil, fmt.Errorf("no entry %s", name)
	}

	// numpy writes C-style (row-major) layouts, matching AF32.
	shape := header.Descr.Shape
	if len(shape) != 2 {
		return nil, fmt.Errorf("want a 2-D array, got shape %v", shape)
	}
	if shape[0] <= 0 || shape[1] <= 0 {
		return nil, fmt.Errorf("bad shape %v", shape)
	}

	var raw []float64
	if err := r.Read(name, &raw); err != nil {
		return nil, fmt.Errorf("while reading float64 array: %w", err)
	}
	if len(raw) != shape[0]*shape[1] {
		return nil, fmt.Errorf("got %d values for shape %v", len(raw), shape)
	}

	result := MakeAF32(shape[0], shape[1])
	for i := range raw {
		result.V[i] = float32(raw[i])
	}

	return result, nil
}

func toDense(a *AF32) *mat.Dense {
	if len(a.Shape) != 2 {
		panic(fmt.Sprintf("toDense() invalid for shape %v", a.Shape))
	}
	data := make([]float64, len(a.V))
	for i, v := range a.V {
		data[i] = float64(v)
	}
	return mat.NewDense(a.Shape[0], a.Shape[1], data)
}
