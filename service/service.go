package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"bodytype/artifact"
	"bodytype/ml"
	"bodytype/monitoring"
)

// ErrNotReady is returned when no bundle has been loaded.
var ErrNotReady = fmt.Errorf("%w: no bundle loaded", artifact.ErrArtifactMissing)

type Options struct {
	// CacheSize enables an LRU of recent predictions when positive.
	CacheSize int
	Metrics   *monitoring.Metrics
	Logger    *zap.Logger
}

// Service answers predictions from the current Context. Each request reads
// the Context pointer once, so a swap never mixes two bundles.
type Service struct {
	current atomic.Pointer[Context]
	cache   *lru.Cache[string, Prediction]
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

func New(initial *Context, opts Options) (*Service, error) {
	s := &Service{
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[string, Prediction](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("prediction cache: %w", err)
		}
		s.cache = cache
	}
	if initial != nil {
		s.Swap(initial)
	}
	return s, nil
}

// Load reads the current bundle from store and builds a service around it.
// Any artifact error is returned as is, so callers can refuse to start.
func Load(store *artifact.Store, expect artifact.Expectation, opts Options) (*Service, error) {
	bundle, err := store.Load(expect)
	if err != nil {
		return nil, err
	}
	ctx, err := NewContext(bundle)
	if err != nil {
		return nil, err
	}
	return New(ctx, opts)
}

// Swap installs next and returns the Context it replaced.
func (s *Service) Swap(next *Context) *Context {
	previous := s.current.Swap(next)
	if next != nil {
		manifest := next.Manifest()
		s.metrics.SetBundle(manifest.RunID, manifest.ModelType, string(manifest.Tag.Labels))
	}
	return previous
}

// Context returns the Context in use, or nil before the first load.
func (s *Service) Context() *Context {
	return s.current.Load()
}

func (s *Service) Ready() bool {
	return s.current.Load() != nil
}

func (s *Service) Predict(ctx context.Context, req Request) (Prediction, error) {
	start := time.Now()
	snapshot := s.current.Load()
	if snapshot == nil {
		s.metrics.ObservePrediction("unavailable", "", time.Since(start))
		return Prediction{}, ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}

	record, err := req.Record()
	if err != nil {
		s.metrics.ObservePrediction("invalid", "", time.Since(start))
		return Prediction{}, err
	}

	var key string
	if s.cache != nil {
		key = cacheKey(snapshot.RunID(), record)
		if cached, ok := s.cache.Get(key); ok {
			s.metrics.ObserveCache(true)
			s.metrics.ObservePrediction("ok", cached.BodyType, time.Since(start))
			return cached, nil
		}
		s.metrics.ObserveCache(false)
	}

	prediction, err := snapshot.Predict(record)
	if err != nil {
		status := "error"
		if ml.IsValidation(err) {
			status = "invalid"
		} else {
			s.logger.Error("prediction failed", zap.String("run_id", snapshot.RunID()), zap.Error(err))
		}
		s.metrics.ObservePrediction(status, "", time.Since(start))
		return Prediction{}, err
	}
	if s.cache != nil {
		s.cache.Add(key, prediction)
	}
	s.metrics.ObservePrediction("ok", prediction.BodyType, time.Since(start))
	return prediction, nil
}

func (s *Service) Schema() (Schema, error) {
	snapshot := s.current.Load()
	if snapshot == nil {
		return Schema{}, ErrNotReady
	}
	return snapshot.Schema(), nil
}

// IsUnavailable reports whether err means the service has nothing valid to
// serve, as opposed to a bad request or an internal failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, artifact.ErrArtifactMissing) ||
		errors.Is(err, artifact.ErrArtifactCorrupt) ||
		errors.Is(err, artifact.ErrVersionMismatch)
}
