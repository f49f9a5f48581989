package source

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/attribution-engine/internal/model"
)

// TransientError wraps an upstream error that is safe to retry (429,
// 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP
// status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IsTransient returns true if the error chain contains a TransientError
// or matches common transient network failure patterns.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// Retrying wraps an adapter with bounded retries for transient fetch
// failures. Permanent errors pass through on the first attempt.
type Retrying struct {
	inner    Adapter
	attempts int
	backoff  time.Duration
	log      *zap.Logger
}

// WithRetries wraps the adapter. attempts is the total try count
// including the first.
func WithRetries(inner Adapter, attempts int, backoff time.Duration) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrying{
		inner:    inner,
		attempts: attempts,
		backoff:  backoff,
		log:      zap.L().Named("source"),
	}
}

func (r *Retrying) Source() model.Source { return r.inner.Source() }

// Fetch retries transient failures with linear backoff, honoring ctx.
func (r *Retrying) Fetch(ctx context.Context, cursor string, limit int) (*Page, error) {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		page, err := r.inner.Fetch(ctx, cursor, limit)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if !IsTransient(err) || attempt == r.attempts {
			break
		}
		r.log.Warn("transient fetch failure, retrying",
			zap.String("source", string(r.inner.Source())),
			zap.Int("attempt", attempt),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, eris.Wrap(ctx.Err(), "source: retry wait")
		case <-time.After(time.Duration(attempt) * r.backoff):
		}
	}
	return nil, lastErr
}
