package upload

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("upload circuit breaker open")

type breakerState string

const (
	stateClosed   breakerState = "closed"
	stateOpen     breakerState = "open"
	stateHalfOpen breakerState = "half_open"
)

type ProtectedUploaderConfig struct {
	Timeout          time.Duration // hard timeout per upload
	FailureThreshold int           // consecutive failures to open circuit
	Cooldown         time.Duration // how long to stay open before half-open
	HalfOpenMaxCalls int           // allow N trial calls in half-open
}

// ProtectedUploader bounds every upload with a timeout and stops calling a
// failing provider for a cooldown period once it keeps failing.
type ProtectedUploader struct {
	inner Uploader
	cfg   ProtectedUploaderConfig
	now   func() time.Time

	mu                  sync.Mutex
	state               breakerState
	consecutiveFailures int
	openedAt            time.Time
	halfOpenInFlight    int
}

func NewProtectedUploader(inner Uploader, cfg ProtectedUploaderConfig) *ProtectedUploader {
	//defaults
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}

	return &ProtectedUploader{
		inner: inner,
		cfg:   cfg,
		now:   time.Now,
		state: stateClosed,
	}
}

func (p *ProtectedUploader) Upload(ctx context.Context, img Image) (string, error) {
	// fail-fast gate
	if !p.allowRequest() {
		return "", ErrCircuitOpen
	}

	uploadCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	url, err := p.inner.Upload(uploadCtx, img)
	if err == nil && uploadCtx.Err() != nil {
		// provider ignored the deadline; its result arrived too late to trust
		err = uploadCtx.Err()
	}

	// a caller hanging up says nothing about provider health
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		p.release()
		return "", err
	}

	p.afterRequest(err)

	if err != nil {
		return "", err
	}
	return url, nil
}

func (p *ProtectedUploader) State() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return string(p.state)
}

func (p *ProtectedUploader) allowRequest() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case stateClosed:
		return true
	case stateOpen:
		// cooldown has passed? move to half open
		if p.now().Sub(p.openedAt) >= p.cfg.Cooldown {
			p.state = stateHalfOpen
			p.halfOpenInFlight = 1
			return true
		}
		return false
	case stateHalfOpen:
		if p.halfOpenInFlight >= p.cfg.HalfOpenMaxCalls {
			return false
		}
		p.halfOpenInFlight++
		return true
	default:
		return true
	}
}

func (p *ProtectedUploader) release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == stateHalfOpen && p.halfOpenInFlight > 0 {
		p.halfOpenInFlight--
	}
}

func (p *ProtectedUploader) afterRequest(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// half-open call just finished
	if p.state == stateHalfOpen && p.halfOpenInFlight > 0 {
		p.halfOpenInFlight--
	}

	if err == nil {
		p.consecutiveFailures = 0
		p.state = stateClosed
		return
	}

	p.consecutiveFailures++

	// if half-open failed, reopen immediately
	if p.state == stateHalfOpen {
		p.state = stateOpen
		p.openedAt = p.now()
		return
	}

	if p.consecutiveFailures >= p.cfg.FailureThreshold {
		p.state = stateOpen
		p.openedAt = p.now()
	}
}
