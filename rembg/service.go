package rembg

import (
	"context"
	"fmt"

	"github.com/chaos-io/avatarkit/util"
	"go.uber.org/zap"
)

// ResultCache stores background-removal outputs keyed by input digest.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
}

// CacheKey is rembg:<model>:<a><ppm>:<md5 of the input>.
func CacheKey(model Model, opts Options, image []byte) string {
	return fmt.Sprintf("rembg:%s:%s:%s", model, opts.tag(), util.BytesMD5(image))
}

func (o Options) tag() string {
	b := []byte("00")
	if o.AlphaMatting {
		b[0] = '1'
	}
	if o.PostProcessMask {
		b[1] = '1'
	}
	return string(b)
}

// Service resolves the model session, bounds concurrency and consults the
// result cache.
type Service struct {
	sessions *Sessions
	limiter  *Limiter
	cache    ResultCache
}

func NewService(sessions *Sessions, limiter *Limiter, cache ResultCache) *Service {
	return &Service{sessions: sessions, limiter: limiter, cache: cache}
}

func (s *Service) Remove(ctx context.Context, model string, image []byte, opts Options) ([]byte, error) {
	remover, err := s.sessions.Get(ctx, model)
	if err != nil {
		return nil, err
	}

	key := CacheKey(Model(model), opts, image)
	if s.cache != nil {
		if out, ok := s.cache.Get(ctx, key); ok {
			util.Logger.Debug("rembg cache hit", zap.String("key", key))
			return out, nil
		}
	}

	if s.limiter != nil {
		if err := s.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		defer s.limiter.Release()
	}

	defer util.Trace("remove background " + model)()
	out, err := remover.Remove(ctx, image, opts)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, out)
	}
	return out, nil
}
