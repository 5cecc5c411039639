package util

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// BreakerState is the state of a BreakerTransport.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // requests flow
	BreakerOpen                         // requests fail fast
	BreakerHalfOpen                     // one trial request is allowed through
)

// ErrBreakerOpen is returned instead of sending a request while the remote
// is considered down.
var ErrBreakerOpen = errors.New("remote unavailable, circuit open")

// BreakerTransport stops calling a remote after FailThreshold consecutive
// failures (transport errors and 5xx answers) and lets a single trial request
// through once Cooldown has passed. 4xx answers count as successes: the
// remote is up, it just has nothing for us.
type BreakerTransport struct {
	Base          http.RoundTripper
	FailThreshold int
	Cooldown      time.Duration

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	now      func() time.Time
}

func NewBreakerTransport(base http.RoundTripper, failThreshold int, cooldown time.Duration) *BreakerTransport {
	return &BreakerTransport{
		Base:          base,
		FailThreshold: failThreshold,
		Cooldown:      cooldown,
		now:           time.Now,
	}
}

func (t *BreakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.allow() {
		return nil, ErrBreakerOpen
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	t.record(err != nil || resp.StatusCode >= 500, req)
	return resp, err
}

func (t *BreakerTransport) allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case BreakerOpen:
		if t.now().Sub(t.openedAt) < t.Cooldown {
			return false
		}
		t.state = BreakerHalfOpen
		return true
	case BreakerHalfOpen:
		// A trial request is already in flight.
		return false
	default:
		return true
	}
}

func (t *BreakerTransport) record(failed bool, req *http.Request) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !failed {
		if t.state != BreakerClosed {
			log.Info().Str("host", req.URL.Host).Msg("Remote recovered, circuit closed")
		}
		t.failures = 0
		t.state = BreakerClosed
		return
	}

	t.failures++
	if t.state == BreakerHalfOpen || (t.FailThreshold > 0 && t.failures >= t.FailThreshold) {
		if t.state != BreakerOpen {
			log.Warn().Str("host", req.URL.Host).Int("failures", t.failures).Dur("cooldown", t.Cooldown).Msg("Remote failing, circuit opened")
		}
		t.state = BreakerOpen
		t.openedAt = t.now()
	}
}

// State reports the current breaker state.
func (t *BreakerTransport) State() BreakerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// WithBreaker returns a copy of client whose requests go through a breaker.
func WithBreaker(client *http.Client, failThreshold int, cooldown time.Duration) *http.Client {
	wrapped := *client
	wrapped.Transport = NewBreakerTransport(client.Transport, failThreshold, cooldown)
	return &wrapped
}
