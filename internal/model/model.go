// Package model wraps a single ONNX classification session.
package model

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// InputShape is the fixed spatial layout the model expects, derived from the
// model artifact at load time.
type InputShape struct {
	Channels int
	Height   int
	Width    int
}

func (s InputShape) Len() int {
	return s.Channels * s.Height * s.Width
}

// Handle owns the loaded classifier session and its persistent input/output
// tensors. Infer is NOT safe for concurrent use: the session writes into
// shared tensor memory. Serializing calls is the caller's responsibility.
type Handle struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputShape   InputShape
	numClasses   int
}

// SetRuntimeLibrary overrides the onnxruntime shared library location. Must
// be called before the first Load.
func SetRuntimeLibrary(path string) {
	if path != "" {
		ort.SetSharedLibraryPath(path)
	}
}

// Load opens the model artifact, discovers its input/output shapes and
// allocates the session. Expects a single NCHW image input [1,C,H,W] and a
// single score vector output [1,N].
func Load(path string) (*Handle, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", path, err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("model %s: expected 1 input and 1 output, got %d/%d",
			path, len(inputs), len(outputs))
	}

	inDims := inputs[0].Dimensions
	if len(inDims) != 4 || inDims[0] != 1 {
		return nil, fmt.Errorf("model %s: unsupported input shape %v, want [1,C,H,W]", path, inDims)
	}
	outDims := outputs[0].Dimensions
	if len(outDims) != 2 || outDims[0] != 1 || outDims[1] < 1 {
		return nil, fmt.Errorf("model %s: unsupported output shape %v, want [1,N]", path, outDims)
	}

	inputShape := InputShape{
		Channels: int(inDims[1]),
		Height:   int(inDims[2]),
		Width:    int(inDims[3]),
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(inDims...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(outDims...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(path,
		[]string{inputs[0].Name}, []string{outputs[0].Name},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session for %s: %w", path, err)
	}

	return &Handle{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputShape:   inputShape,
		numClasses:   int(outDims[1]),
	}, nil
}

// Infer runs one forward pass. The returned slice is a copy; the underlying
// output tensor is reused between calls.
func (h *Handle) Infer(input []float32) ([]float32, error) {
	if len(input) != h.inputShape.Len() {
		return nil, fmt.Errorf("input tensor has %d values, model expects %d",
			len(input), h.inputShape.Len())
	}

	copy(h.inputTensor.GetData(), input)
	if err := h.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	scores := h.outputTensor.GetData()
	out := make([]float32, len(scores))
	copy(out, scores)
	return out, nil
}

func (h *Handle) InputShape() InputShape {
	return h.inputShape
}

func (h *Handle) NumClasses() int {
	return h.numClasses
}

func (h *Handle) Close() {
	if h.inputTensor != nil {
		h.inputTensor.Destroy()
	}
	if h.outputTensor != nil {
		h.outputTensor.Destroy()
	}
	if h.session != nil {
		h.session.Destroy()
	}
}
