package scorer

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/klauspost/cpuid/v2"
	"github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates"
	"github.com/tphakala/go-tflite/delegates/xnnpack"

	"github.com/pagd-project/pagd-go/internal/errors"
	"github.com/pagd-project/pagd-go/internal/logger"
)

// Interpreter runs one inference model. Run returns a copy of output
// tensor 0; the input is copied into input tensor 0, zero padded or
// truncated to the tensor length.
type Interpreter interface {
	Run(input []float32) ([]float32, error)
	Close() error
}

// TFLiteOptions tunes interpreter construction.
type TFLiteOptions struct {
	Threads    int  // 0 selects a count from the CPU topology
	UseXNNPACK bool // fall back to the CPU kernels when the delegate is unavailable
}

// TFLiteInterpreter is an Interpreter backed by TensorFlow Lite.
type TFLiteInterpreter struct {
	path string

	mu          sync.Mutex
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	delegate    delegates.Delegater
	interpreter *tflite.Interpreter
}

// ThreadCount resolves a configured thread count, 0 meaning automatic.
func ThreadCount(configured int) int {
	available := runtime.NumCPU()
	if configured > 0 {
		return min(configured, available)
	}
	if cores := cpuid.CPU.PhysicalCores; cores > 0 {
		return min(cores, available)
	}
	if cores := cpuid.CPU.LogicalCores; cores > 0 {
		return min(cores, available)
	}
	return available
}

// LoadTFLite loads a .tflite model file and allocates its tensors.
func LoadTFLite(path string, opts TFLiteOptions) (*TFLiteInterpreter, error) {
	start := time.Now()
	log := GetLogger()
	failed := func(err error) error {
		return errors.New(wrapModelLoad(err)).
			Component("scorer").
			Category(errors.CategoryModelLoad).
			ModelContext(path, "tflite").
			Timing("load_model", time.Since(start)).
			Build()
	}

	if _, err := os.Stat(path); err != nil {
		return nil, failed(err)
	}

	model := tflite.NewModelFromFile(path)
	if model == nil {
		return nil, failed(fmt.Errorf("cannot load TensorFlow Lite model %s", filepath.Base(path)))
	}

	threads := ThreadCount(opts.Threads)
	options := tflite.NewInterpreterOptions()

	var delegate delegates.Delegater
	if opts.UseXNNPACK {
		delegate = xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, threads-1))}) //nolint:gosec // G115: bounded by CPU count
		if delegate == nil {
			log.Warn("failed to create XNNPACK delegate, falling back to default CPU",
				logger.String("model", filepath.Base(path)))
			options.SetNumThread(threads)
		} else {
			options.AddDelegate(delegate)
			options.SetNumThread(1)
		}
	} else {
		options.SetNumThread(threads)
	}

	options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error", logger.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		releaseTFLite(nil, options, delegate, model)
		return nil, failed(fmt.Errorf("cannot create interpreter"))
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		releaseTFLite(interpreter, options, delegate, model)
		return nil, failed(fmt.Errorf("tensor allocation failed"))
	}

	log.Info("model loaded",
		logger.String("model", filepath.Base(path)),
		logger.Int("threads", threads),
		logger.Bool("xnnpack", delegate != nil),
		logger.Duration("elapsed", time.Since(start)))

	return &TFLiteInterpreter{
		path:        path,
		model:       model,
		options:     options,
		delegate:    delegate,
		interpreter: interpreter,
	}, nil
}

// Run implements Interpreter.
func (t *TFLiteInterpreter) Run(input []float32) ([]float32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.interpreter == nil {
		return nil, fmt.Errorf("interpreter for %s is closed", filepath.Base(t.path))
	}

	in := t.interpreter.GetInputTensor(0)
	if in == nil {
		return nil, fmt.Errorf("model %s has no input tensor", filepath.Base(t.path))
	}
	dst := in.Float32s()
	n := copy(dst, input)
	clear(dst[n:])

	if status := t.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed: %v", status)
	}

	out := t.interpreter.GetOutputTensor(0)
	if out == nil {
		return nil, fmt.Errorf("model %s has no output tensor", filepath.Base(t.path))
	}
	result := make([]float32, len(out.Float32s()))
	copy(result, out.Float32s())
	return result, nil
}

// Close releases the interpreter and model. It is safe to call twice.
func (t *TFLiteInterpreter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.interpreter == nil {
		return nil
	}
	releaseTFLite(t.interpreter, t.options, t.delegate, t.model)
	t.interpreter = nil
	t.options = nil
	t.delegate = nil
	t.model = nil
	return nil
}

func releaseTFLite(interpreter *tflite.Interpreter, options *tflite.InterpreterOptions, delegate delegates.Delegater, model *tflite.Model) {
	if interpreter != nil {
		interpreter.Delete()
	}
	if options != nil {
		options.Delete()
	}
	if delegate != nil {
		delegate.Delete()
	}
	if model != nil {
		model.Delete()
	}
}
