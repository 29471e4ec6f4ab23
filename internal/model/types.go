package model

import "fmt"

// UnsetPrediction marks a record that has not been through inference yet.
const UnsetPrediction = -1

// InputName is the tensor name the classification model expects.
const InputName = "input1"

type RunMode string

const (
	ModeCPU RunMode = "cpu"
	ModeGPU RunMode = "gpu"
)

func ParseRunMode(s string) (RunMode, error) {
	switch RunMode(s) {
	case ModeCPU, ModeGPU:
		return RunMode(s), nil
	}
	return "", fmt.Errorf("unknown run mode %q (want %q or %q)", s, ModeCPU, ModeGPU)
}

// ManifestRecord is one row of the manifest. PredictedID stays UnsetPrediction
// until the batch runner fills it in.
type ManifestRecord struct {
	ID          string
	Breed       string
	ClassID     int
	PredictedID int
}

// Tensor is a dense float32 array in row-major order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// ElementCount returns the product of the shape dimensions.
func (t Tensor) ElementCount() int64 {
	if len(t.Shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

type NamedTensor struct {
	Name   string
	Tensor Tensor
}

// Session is the narrow contract the batch runner needs from an inference
// engine: named tensors in, named tensors out.
type Session interface {
	Run(inputs []NamedTensor) ([]NamedTensor, error)
	Close() error
}
