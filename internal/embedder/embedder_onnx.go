//go:build cgo

// Package embedder: ONNX Runtime-backed implementation (requires CGO and
// the onnxruntime shared library).
package embedder

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXEmbedder drives a single ONNX Runtime session across the whole scan
// (spec §4.3's "cyclic/global resource"). A single session's Run is not
// reentrant, so calls are serialised behind mu. Unlike a fixed-length text
// model, the batch dimension here varies per file, so input and output
// tensors are created fresh for each Run rather than reused.
type ONNXEmbedder struct {
	mu         sync.Mutex
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	nMels      int
	sliceSize  int
	dim        int
}

// New constructs an ONNXEmbedder around modelPath, initialising the ONNX
// Runtime environment if it is not already initialised.
func New(modelPath string) (*ONNXEmbedder, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	inputInfo, outputInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("inspect model io: %w", err)
	}
	if len(inputInfo) == 0 || len(outputInfo) == 0 {
		return nil, fmt.Errorf("model declares no inputs or outputs")
	}

	inDims := inputInfo[0].Dimensions
	if len(inDims) != 4 {
		return nil, fmt.Errorf("unexpected input rank %d", len(inDims))
	}
	outDims := outputInfo[0].Dimensions
	if len(outDims) == 0 {
		return nil, fmt.Errorf("unexpected output rank 0")
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{inputInfo[0].Name},
		[]string{outputInfo[0].Name},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &ONNXEmbedder{
		session:    session,
		inputName:  inputInfo[0].Name,
		outputName: outputInfo[0].Name,
		nMels:      int(inDims[2]),
		sliceSize:  int(inDims[3]),
		dim:        int(outDims[len(outDims)-1]),
	}, nil
}

// InputShape returns the model's declared (n_mels, slice_size).
func (e *ONNXEmbedder) InputShape() (int, int, error) {
	return e.nMels, e.sliceSize, nil
}

// Embed runs the model over a (batch, 1, nMels, sliceSize) tensor.
func (e *ONNXEmbedder) Embed(input []float32, batch, nMels, sliceSize int) ([]float32, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	inTensor, err := ort.NewTensor(ort.NewShape(int64(batch), 1, int64(nMels), int64(sliceSize)), input)
	if err != nil {
		return nil, 0, fmt.Errorf("create input tensor: %w", err)
	}
	defer inTensor.Destroy()

	outData := make([]float32, batch*e.dim)
	outTensor, err := ort.NewTensor(ort.NewShape(int64(batch), int64(e.dim)), outData)
	if err != nil {
		return nil, 0, fmt.Errorf("create output tensor: %w", err)
	}
	defer outTensor.Destroy()

	if err := e.session.Run([]ort.Value{inTensor}, []ort.Value{outTensor}); err != nil {
		return nil, 0, fmt.Errorf("onnx inference: %w", err)
	}

	out := make([]float32, len(outData))
	copy(out, outTensor.GetData())
	return out, e.dim, nil
}

// Close releases the session.
func (e *ONNXEmbedder) Close() error {
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return err
}
