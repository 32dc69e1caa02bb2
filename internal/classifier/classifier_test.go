package classifier

import (
	"context"
	"errors"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"landuse-api/internal/labels"
	"landuse-api/internal/model"
)

var eurosatLabels = []string{
	"AnnualCrop", "Forest", "HerbaceousVegetation", "Highway", "Industrial",
	"Pasture", "PermanentCrop", "Residential", "River", "SeaLake",
}

func loadTestLabels(t *testing.T) *labels.LabelMap {
	t.Helper()
	path := filepath.Join(t.TempDir(), "labels.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`["AnnualCrop","Forest","HerbaceousVegetation","Highway","Industrial","Pasture","PermanentCrop","Residential","River","SeaLake"]`),
		0o644))
	lm, err := labels.Load(path)
	require.NoError(t, err)
	return lm
}

// fakeModel predicts class round(gray/25) for solid gray inputs, so each
// test image maps to a known label. It also records whether two Infer calls
// ever overlapped in time.
type fakeModel struct {
	classes int
	// outLen overrides the emitted vector length; negative means empty.
	outLen   int
	delay    time.Duration
	inferErr error

	busy     int32
	overlaps int32
	calls    int32
}

func (f *fakeModel) Infer(input []float32) ([]float32, error) {
	if !atomic.CompareAndSwapInt32(&f.busy, 0, 1) {
		atomic.AddInt32(&f.overlaps, 1)
	}
	defer atomic.StoreInt32(&f.busy, 0)
	atomic.AddInt32(&f.calls, 1)

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.inferErr != nil {
		return nil, f.inferErr
	}

	if f.outLen < 0 {
		return []float32{}, nil
	}
	n := f.classes
	if f.outLen > 0 {
		n = f.outLen
	}
	out := make([]float32, n)
	idx := int(math.Round(float64(input[0]) * 255.0 / 25.0))
	if idx >= n {
		idx = n - 1
	}
	out[idx] = 1
	return out, nil
}

func (f *fakeModel) InputShape() model.InputShape { return testShape }
func (f *fakeModel) NumClasses() int              { return f.classes }
func (f *fakeModel) Close()                       {}

func grayTile(t *testing.T, class int) []byte {
	t.Helper()
	g := uint8(class * 25)
	return solidPNG(t, color.RGBA{R: g, G: g, B: g, A: 255})
}

func newTestService(t *testing.T, m *fakeModel, opts ...Option) *Service {
	t.Helper()
	svc, err := NewFromModel(m, loadTestLabels(t), nil, opts...)
	require.NoError(t, err)
	return svc
}

func TestClassifyReturnsKnownLabel(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &fakeModel{classes: 10})

	label, err := svc.Classify(context.Background(), grayTile(t, 4))
	require.NoError(t, err)
	require.Equal(t, "Industrial", label)

	label, err = svc.Classify(context.Background(), grayTile(t, 9))
	require.NoError(t, err)
	require.Equal(t, "SeaLake", label)
}

func TestClassifyAlwaysInLabelSet(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &fakeModel{classes: 10})

	for class := 0; class < 10; class++ {
		label, err := svc.Classify(context.Background(), grayTile(t, class))
		require.NoError(t, err)
		require.NotEmpty(t, label)
		require.Contains(t, eurosatLabels, label)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &fakeModel{classes: 10})
	raw := grayTile(t, 7)

	first, err := svc.Classify(context.Background(), raw)
	require.NoError(t, err)
	second, err := svc.Classify(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestClassifyConcurrentSerialized(t *testing.T) {
	t.Parallel()

	fm := &fakeModel{classes: 10, delay: time.Millisecond}
	svc := newTestService(t, fm)

	const n = 40
	tiles := make([][]byte, n)
	for i := range tiles {
		tiles[i] = grayTile(t, i%10)
	}

	results := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Classify(context.Background(), tiles[i])
		}(i)
	}
	wg.Wait()

	require.Zero(t, atomic.LoadInt32(&fm.overlaps), "inference calls overlapped")
	require.EqualValues(t, n, atomic.LoadInt32(&fm.calls))
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, eurosatLabels[i%10], results[i], "result %d does not match its input", i)
	}
}

func TestClassifyBadBytesDoesNotPoisonService(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &fakeModel{classes: 10})

	_, err := svc.Classify(context.Background(), []byte("\x01garbage"))
	var perr *PreprocessError
	require.ErrorAs(t, err, &perr)

	_, err = svc.Classify(context.Background(), nil)
	require.ErrorAs(t, err, &perr)

	// The shared state must survive bad requests.
	label, err := svc.Classify(context.Background(), grayTile(t, 1))
	require.NoError(t, err)
	require.Equal(t, "Forest", label)
}

func TestClassifyInferenceFailure(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &fakeModel{classes: 10, inferErr: errors.New("runtime exploded")})

	_, err := svc.Classify(context.Background(), grayTile(t, 0))
	var ierr *InferenceError
	require.ErrorAs(t, err, &ierr)
}

func TestClassifyOutputDimensionMismatch(t *testing.T) {
	t.Parallel()

	// NumClasses passes startup validation but the runtime emits a
	// different vector length. Defensive path, surfaced as IndexError.
	svc := newTestService(t, &fakeModel{classes: 10, outLen: 7})

	_, err := svc.Classify(context.Background(), grayTile(t, 0))
	var xerr *labels.IndexError
	require.ErrorAs(t, err, &xerr)
}

func TestClassifyEmptyOutputVector(t *testing.T) {
	t.Parallel()

	// A runtime handing back nothing at all must surface as an error,
	// not crash the request.
	svc := newTestService(t, &fakeModel{classes: 10, outLen: -1})

	_, err := svc.Classify(context.Background(), grayTile(t, 0))
	var xerr *labels.IndexError
	require.ErrorAs(t, err, &xerr)
	require.Equal(t, -1, xerr.Index)
	require.Equal(t, 10, xerr.Size)
}

func TestNewFromModelDimensionMismatch(t *testing.T) {
	t.Parallel()

	_, err := NewFromModel(&fakeModel{classes: 7}, loadTestLabels(t), nil)
	require.Error(t, err)
}

func TestClassifyQueueTimeout(t *testing.T) {
	t.Parallel()

	fm := &fakeModel{classes: 10, delay: 300 * time.Millisecond}
	svc := newTestService(t, fm, WithInferTimeout(50*time.Millisecond))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Holds the inference slot; the timeout bounds queueing, not a
		// running inference, so this call succeeds.
		_, err := svc.Classify(context.Background(), grayTile(t, 2))
		require.NoError(t, err)
	}()

	time.Sleep(30 * time.Millisecond)
	_, err := svc.Classify(context.Background(), grayTile(t, 3))
	var ierr *InferenceError
	require.ErrorAs(t, err, &ierr)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	wg.Wait()
}
