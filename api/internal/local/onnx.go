package local

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/image/draw"
)

// Score is one class probability in [0,1].
type Score struct {
	Label string
	Prob  float64
}

// Model is an image classifier returning scores sorted best first.
type Model interface {
	Predict(img image.Image) ([]Score, error)
	Close() error
}

type ONNXConfig struct {
	ModelPath         string // YOLOv8n-cls (ImageNet-1k) export
	LabelsPath        string // JSON array, or {"0": "tench", ...}
	SharedLibraryPath string // empty = probe common locations
	InputName         string // default "images"
	OutputName        string // default "output0"
	Size              int    // square input side; default 224
	TopK              int    // default 5
}

// ONNXModel keeps one session with bound input/output tensors.
type ONNXModel struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	labels  []string
	size    int
	topK    int

	mu sync.Mutex
}

// LoadONNX initializes onnxruntime and opens the classifier session.
func LoadONNX(cfg ONNXConfig) (*ONNXModel, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("model path is empty")
	}
	if cfg.InputName == "" {
		cfg.InputName = "images"
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "output0"
	}
	if cfg.Size <= 0 {
		cfg.Size = 224
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}

	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file missing at %s: %w", cfg.ModelPath, err)
	}

	libPath := resolveSharedLibraryPath(cfg.SharedLibraryPath, filepath.Dir(cfg.ModelPath))
	if libPath == "" {
		return nil, fmt.Errorf("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or install the runtime")
	}
	ort.SetSharedLibraryPath(libPath)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	labels, err := loadLabels(cfg.LabelsPath)
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(cfg.Size), int64(cfg.Size)))
	if err != nil {
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(labels))))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}
	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.Value{input},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &ONNXModel{
		session: session,
		input:   input,
		output:  output,
		labels:  labels,
		size:    cfg.Size,
		topK:    cfg.TopK,
	}, nil
}

func (m *ONNXModel) Predict(img image.Image) ([]Score, error) {
	if m == nil || m.session == nil {
		return nil, errors.New("onnx model not initialized")
	}
	chw := Preprocess(img, m.size)

	m.mu.Lock()
	defer m.mu.Unlock()

	copy(m.input.GetData(), chw)
	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	return TopK(m.output.GetData(), m.labels, m.topK), nil
}

func (m *ONNXModel) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	if m.session != nil {
		errs = append(errs, m.session.Destroy())
		m.session = nil
	}
	if m.input != nil {
		errs = append(errs, m.input.Destroy())
	}
	if m.output != nil {
		errs = append(errs, m.output.Destroy())
	}
	return errors.Join(errs...)
}

// Preprocess center-crops img to a square, scales it to size x size and
// returns the pixels as CHW float32 in [0,1].
func Preprocess(img image.Image, size int) []float32 {
	b := img.Bounds()
	side := min(b.Dx(), b.Dy())
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	crop := image.Rect(x0, y0, x0+side, y0+side)

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, crop, draw.Src, nil)

	plane := size * size
	out := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := dst.PixOffset(x, y)
			p := y*size + x
			out[p] = float32(dst.Pix[i]) / 255
			out[plane+p] = float32(dst.Pix[i+1]) / 255
			out[2*plane+p] = float32(dst.Pix[i+2]) / 255
		}
	}
	return out
}

// TopK pairs raw outputs with labels and keeps the k best. Outputs that do
// not already sum to ~1 are passed through softmax first.
func TopK(raw []float32, labels []string, k int) []Score {
	n := min(len(raw), len(labels))
	probs := make([]float64, n)
	sum := 0.0
	negative := false
	for i := 0; i < n; i++ {
		probs[i] = float64(raw[i])
		sum += probs[i]
		if probs[i] < 0 {
			negative = true
		}
	}
	if negative || math.Abs(sum-1) > 0.01 {
		softmax(probs)
	}
	scores := make([]Score, n)
	for i := range probs {
		scores[i] = Score{Label: labels[i], Prob: probs[i]}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Prob > scores[j].Prob })
	if k > 0 && len(scores) > k {
		scores = scores[:k]
	}
	return scores
}

func softmax(v []float64) {
	if len(v) == 0 {
		return
	}
	hi := v[0]
	for _, x := range v[1:] {
		hi = max(hi, x)
	}
	sum := 0.0
	for i, x := range v {
		v[i] = math.Exp(x - hi)
		sum += v[i]
	}
	for i := range v {
		v[i] /= sum
	}
}

// loadLabels reads a JSON array or an index→name object. Underscores in
// class names become spaces.
func loadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil && len(arr) > 0 {
		return canonicalLabels(arr), nil
	}

	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, errors.New("labels file is empty")
	}
	out := make([]string, len(m))
	for k, v := range m {
		idx, convErr := strconv.Atoi(k)
		if convErr != nil {
			return nil, fmt.Errorf("invalid label index %q: %w", k, convErr)
		}
		if idx < 0 || idx >= len(m) {
			return nil, fmt.Errorf("label index %d out of range", idx)
		}
		out[idx] = v
	}
	return canonicalLabels(out), nil
}

func canonicalLabels(in []string) []string {
	for i, s := range in {
		in[i] = strings.TrimSpace(strings.ReplaceAll(s, "_", " "))
	}
	return in
}

// resolveSharedLibraryPath returns explicit when set, else the env var, else
// the first onnxruntime library found in the usual places.
func resolveSharedLibraryPath(explicit, modelDir string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}

	names := []string{
		"libonnxruntime.dylib",
		"onnxruntime.dylib",
		"libonnxruntime.so",
		"onnxruntime.so",
		"onnxruntime.dll",
	}
	dirs := []string{
		modelDir,
		filepath.Join(modelDir, "lib"),
		".",
		"/opt/homebrew/lib",
		"/usr/local/lib",
		"/usr/lib",
	}
	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}
