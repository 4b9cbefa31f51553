package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// LimitedProvider throttles calls to an underlying provider so a burst of
// parallel analyses stays under the backend's requests-per-minute quota.
type LimitedProvider struct {
	Provider
	limiter *rate.Limiter
}

// NewLimited wraps p with a token bucket of rpm requests per minute. A
// non-positive rpm disables limiting and returns p unchanged.
func NewLimited(p Provider, rpm, burst int) Provider {
	if rpm <= 0 {
		return p
	}
	if burst < 1 {
		burst = 1
	}
	return &LimitedProvider{
		Provider: p,
		limiter:  rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst),
	}
}

// Predict waits for a token, then delegates.
func (l *LimitedProvider) Predict(ctx context.Context, systemMessage, userMessage string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return l.Provider.Predict(ctx, systemMessage, userMessage)
}

// Model forwards to the wrapped provider when it knows its model.
func (l *LimitedProvider) Model() string {
	return ModelOf(l.Provider)
}

// ModelOf returns p's model name, or its provider name when unknown.
func ModelOf(p Provider) string {
	if m, ok := p.(Modeler); ok {
		return m.Model()
	}
	return p.Name()
}
