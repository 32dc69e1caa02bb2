// Package classifier is the single point of coordination that makes image
// classification safe under concurrent requests. It owns the model handle,
// serializes inference calls and maps output indices to label names.
package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"landuse-api/internal/labels"
	"landuse-api/internal/metrics"
	"landuse-api/internal/model"
	"landuse-api/internal/shared"
)

// PreprocessError marks a per-request failure decoding the submitted image.
type PreprocessError struct {
	Err error
}

func (e *PreprocessError) Error() string {
	return fmt.Sprintf("failed to preprocess image: %v", e.Err)
}

func (e *PreprocessError) Unwrap() error {
	return e.Err
}

// InferenceError marks a per-request runtime failure during inference,
// including queueing timeouts.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed: %v", e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// ModelSession is the slice of model.Handle the service needs. Infer is
// assumed unsafe for concurrent use.
type ModelSession interface {
	Infer(input []float32) ([]float32, error)
	InputShape() model.InputShape
	NumClasses() int
	Close()
}

type Config struct {
	ModelPath    string
	LabelsPath   string
	InferTimeout time.Duration
	Redis        *redis.Client
	Log          *zap.SugaredLogger
}

type Option func(*Service)

func WithInferTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.inferTimeout = d
	}
}

func WithResultCache(client *redis.Client) Option {
	return func(s *Service) {
		s.redis = client
	}
}

// Service pairs one model handle with one label map for the life of the
// process. No per-request state is retained between calls.
type Service struct {
	model  ModelSession
	labels *labels.LabelMap

	// Single inference slot. A channel instead of a mutex so acquisition
	// can respect context deadlines while requests queue.
	slot chan struct{}

	inferTimeout time.Duration
	redis        *redis.Client
	log          *zap.SugaredLogger
}

// New loads the model artifact and label file and validates that they agree
// on output dimensionality. Any error here is a startup failure; the caller
// must not serve degraded.
func New(cfg Config) (*Service, error) {
	lm, err := labels.Load(cfg.LabelsPath)
	if err != nil {
		return nil, err
	}

	handle, err := model.Load(cfg.ModelPath)
	if err != nil {
		return nil, err
	}

	opts := []Option{WithInferTimeout(cfg.InferTimeout)}
	if cfg.Redis != nil {
		opts = append(opts, WithResultCache(cfg.Redis))
	}

	svc, err := NewFromModel(handle, lm, cfg.Log, opts...)
	if err != nil {
		handle.Close()
		return nil, err
	}
	return svc, nil
}

// NewFromModel wires an already-loaded session to a label map.
func NewFromModel(m ModelSession, lm *labels.LabelMap, log *zap.SugaredLogger, opts ...Option) (*Service, error) {
	if m.NumClasses() != lm.Len() {
		return nil, fmt.Errorf("model emits %d classes but label map has %d entries",
			m.NumClasses(), lm.Len())
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	s := &Service{
		model:  m,
		labels: lm,
		slot:   make(chan struct{}, 1),
		log:    log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Classify turns raw image bytes into a category label. Preprocessing runs
// outside the inference slot; only the call into the model is exclusive.
func (s *Service) Classify(ctx context.Context, imageBytes []byte) (string, error) {
	if len(imageBytes) == 0 {
		return "", &PreprocessError{Err: fmt.Errorf("empty image payload")}
	}

	key := cacheKey(imageBytes)
	if label, ok := s.cachedLabel(ctx, key); ok {
		return label, nil
	}

	preStart := time.Now()
	input, err := tensorFromImage(imageBytes, s.model.InputShape())
	if err != nil {
		return "", err
	}
	metrics.PreprocessDuration.Observe(time.Since(preStart).Seconds())

	if s.inferTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.inferTimeout)
		defer cancel()
	}

	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return "", &InferenceError{Err: ctx.Err()}
	}
	inferStart := time.Now()
	scores, err := s.model.Infer(input)
	<-s.slot
	metrics.InferenceDuration.Observe(time.Since(inferStart).Seconds())

	if err != nil {
		return "", &InferenceError{Err: err}
	}

	// Defensive: output dimensionality is validated at startup, so a
	// divergence here means the runtime misbehaved.
	if len(scores) != s.labels.Len() {
		idx := -1
		if len(scores) > 0 {
			idx = argmax(scores)
		}
		return "", &labels.IndexError{Index: idx, Size: s.labels.Len()}
	}
	label, err := s.labels.NameFor(argmax(scores))
	if err != nil {
		return "", err
	}

	s.storeLabel(key, label)
	return label, nil
}

// Labels returns the ordered label set.
func (s *Service) Labels() []string {
	return s.labels.Names()
}

func (s *Service) ShutDown() {
	s.model.Close()
}

func cacheKey(imageBytes []byte) string {
	sum := sha256.Sum256(imageBytes)
	return shared.ResultCacheKeyPrefix + hex.EncodeToString(sum[:])
}

// cachedLabel is best effort: weights and preprocessing are fixed for the
// process lifetime, so identical payloads always map to the same label.
func (s *Service) cachedLabel(ctx context.Context, key string) (string, bool) {
	if s.redis == nil {
		return "", false
	}
	label, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			s.log.Debugw("Result cache read failed", "error", err)
		}
		return "", false
	}
	metrics.CacheHits.Inc()
	return label, true
}

func (s *Service) storeLabel(key, label string) {
	if s.redis == nil {
		return
	}
	go func() {
		if err := s.redis.Set(context.Background(), key, label, shared.ResultCacheTTL).Err(); err != nil {
			s.log.Debugw("Result cache write failed", "error", err)
		}
	}()
}
