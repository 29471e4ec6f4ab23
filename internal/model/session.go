package model

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ErrInferenceEngine covers session construction and run failures.
var ErrInferenceEngine = errors.New("inference engine error")

// cudaDeviceID is the GPU used in ModeGPU.
const cudaDeviceID = "0"

// SessionOptions describes how to build an ONNX Runtime session.
type SessionOptions struct {
	ModelPath   string
	InputName   string
	InputShape  []int64
	Mode        RunMode
	LibraryPath string
}

// OrtSession is a Session backed by onnxruntime with pre-bound input and
// output tensors. It is not safe for concurrent use.
type OrtSession struct {
	session      *ort.AdvancedSession
	inputName    string
	outputName   string
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

var envMu sync.Mutex

func initEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	return ort.InitializeEnvironment()
}

func destroyEnvironment() {
	envMu.Lock()
	defer envMu.Unlock()
	if ort.IsInitialized() {
		ort.DestroyEnvironment()
	}
}

// engineErr keeps both the onnxruntime cause and ErrInferenceEngine in the chain.
func engineErr(err error, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w: %w", fmt.Sprintf(format, args...), err, ErrInferenceEngine)
}

// OpenSession loads the model and prepares it for repeated single-image runs.
func OpenSession(opts SessionOptions) (*OrtSession, error) {
	if opts.InputName == "" {
		opts.InputName = InputName
	}
	if err := initEnvironment(opts.LibraryPath); err != nil {
		return nil, engineErr(err, "failed to initialize ONNX environment")
	}
	s := &OrtSession{inputName: opts.InputName}
	if err := s.open(opts); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *OrtSession) open(opts SessionOptions) error {
	_, outputs, err := ort.GetInputOutputInfo(opts.ModelPath)
	if err != nil {
		return engineErr(err, "failed to read model %s", opts.ModelPath)
	}
	if len(outputs) == 0 {
		return errors.Wrapf(ErrInferenceEngine, "model %s declares no outputs", opts.ModelPath)
	}
	s.outputName = outputs[0].Name

	s.inputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(opts.InputShape...))
	if err != nil {
		return engineErr(err, "failed to create input tensor")
	}

	s.outputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(concreteDims(outputs[0].Dimensions)...))
	if err != nil {
		return engineErr(err, "failed to create output tensor")
	}

	sessionOptions, err := newSessionOptions(opts.Mode)
	if err != nil {
		return err
	}
	defer sessionOptions.Destroy()

	s.session, err = ort.NewAdvancedSession(opts.ModelPath,
		[]string{s.inputName}, []string{s.outputName},
		[]ort.ArbitraryTensor{s.inputTensor}, []ort.ArbitraryTensor{s.outputTensor},
		sessionOptions)
	if err != nil {
		return engineErr(err, "failed to create ONNX session (%s)", opts.Mode)
	}
	return nil
}

func newSessionOptions(mode RunMode) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, engineErr(err, "failed to create session options")
	}
	if mode != ModeGPU {
		return options, nil
	}

	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		options.Destroy()
		return nil, engineErr(err, "failed to create CUDA provider options")
	}
	defer cuda.Destroy()
	if err := cuda.Update(map[string]string{"device_id": cudaDeviceID}); err != nil {
		options.Destroy()
		return nil, engineErr(err, "failed to select CUDA device %s", cudaDeviceID)
	}
	if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
		options.Destroy()
		return nil, engineErr(err, "CUDA execution provider unavailable")
	}
	return options, nil
}

// concreteDims replaces dynamic (negative) dimensions with 1, which is the
// batch size used for every run.
func concreteDims(shape ort.Shape) []int64 {
	dims := make([]int64, len(shape))
	for i, d := range shape {
		if d < 1 {
			d = 1
		}
		dims[i] = d
	}
	return dims
}

// Run copies the single input into the bound tensor, runs the model and
// returns a copy of the output scores.
func (s *OrtSession) Run(inputs []NamedTensor) ([]NamedTensor, error) {
	if len(inputs) != 1 || inputs[0].Name != s.inputName {
		return nil, errors.Wrapf(ErrInferenceEngine, "session expects exactly one input named %q", s.inputName)
	}
	dst := s.inputTensor.GetData()
	if len(inputs[0].Tensor.Data) != len(dst) {
		return nil, errors.Wrapf(ErrInferenceEngine, "expected %d input values, got %d",
			len(dst), len(inputs[0].Tensor.Data))
	}
	copy(dst, inputs[0].Tensor.Data)

	if err := s.session.Run(); err != nil {
		return nil, engineErr(err, "inference failed")
	}

	out := s.outputTensor.GetData()
	scores := make([]float32, len(out))
	copy(scores, out)
	shape := s.outputTensor.GetShape()
	return []NamedTensor{{
		Name:   s.outputName,
		Tensor: Tensor{Shape: append([]int64(nil), shape...), Data: scores},
	}}, nil
}

func (s *OrtSession) Close() error {
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
		s.inputTensor = nil
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
		s.outputTensor = nil
	}
	destroyEnvironment()
	return nil
}
