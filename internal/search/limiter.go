package search

import (
	"context"

	"golang.org/x/time/rate"
)

// Limited wraps a backend with a token-bucket rate limiter
type Limited struct {
	limiter *rate.Limiter
	backend Backend
}

var _ Backend = &Limited{}

// NewLimited allows perSecond requests per second with a burst of one.
// A non-positive rate disables limiting.
func NewLimited(backend Backend, perSecond float64) *Limited {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Limited{
		limiter: rate.NewLimiter(limit, 1),
		backend: backend,
	}
}

func (l *Limited) Name() string {
	return l.backend.Name()
}

func (l *Limited) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.backend.Search(ctx, query, limit)
}
