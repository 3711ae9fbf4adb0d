// Package poller watches a checkout session after the shopper has been
// sent to the hosted payment page.  It polls the payment status on a
// fixed interval and re-checks on demand when the shopper comes back
// (Focus), ending in completed or incomplete.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the poller's lifecycle state.
type State string

const (
	StateNone       State = "none"
	StatePending    State = "pending"
	StateCompleted  State = "completed"
	StateIncomplete State = "incomplete"
)

// Reasons passed to the incomplete callback.
const (
	ReasonExpired = "expired"
	ReasonTimeout = "timeout"
	ReasonClosed  = "closed"
)

// Statuses returned by a Checker.
const (
	StatusPaid    = "paid"
	StatusPending = "pending"
	StatusExpired = "expired"
)

// ErrBusy is returned by Start while a session is already being watched.
var ErrBusy = errors.New("poller: already pending")

// Checker fetches the payment status of a session.
type Checker interface {
	Status(ctx context.Context, sessionID string) (string, error)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, sessionID string) (string, error)

func (f CheckerFunc) Status(ctx context.Context, id string) (string, error) { return f(ctx, id) }

// Clearer empties the shopper's cart on success.
type Clearer interface {
	Clear(ctx context.Context) error
}

// Config bounds the interval loop.
type Config struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultConfig polls every five seconds for five minutes.
func DefaultConfig() Config { return Config{Interval: 5 * time.Second, MaxAttempts: 60} }

// Poller is safe for concurrent use.  One session is watched at a time.
type Poller struct {
	check Checker
	cart  Clearer
	cfg   Config

	mu           sync.Mutex
	state        State
	sessionID    string
	attempts     int
	cancel       context.CancelFunc
	done         chan struct{}
	focus        chan bool
	clearErr     error
	onCompleted  func(clearErr error)
	onIncomplete func(reason string)
}

// New returns an idle Poller.  cart may be nil.
func New(check Checker, cart Clearer, cfg Config) *Poller {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	return &Poller{check: check, cart: cart, cfg: cfg, state: StateNone}
}

// clearAttempts bounds how often a failing cart clear is retried.
const clearAttempts = 3

// OnCompleted registers the callback fired once the session is paid.
// clearErr is non-nil when the cart could not be emptied.
func (p *Poller) OnCompleted(fn func(clearErr error)) {
	p.mu.Lock()
	p.onCompleted = fn
	p.mu.Unlock()
}

// OnIncomplete registers the callback fired when the poller gives up.
func (p *Poller) OnIncomplete(fn func(reason string)) {
	p.mu.Lock()
	p.onIncomplete = fn
	p.mu.Unlock()
}

// State returns the current state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ClearErr returns the cart clear failure of the last completed run.
func (p *Poller) ClearErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clearErr
}

// Attempts returns how many interval checks the current or last run made.
func (p *Poller) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// Start enters pending and begins polling sessionID.
func (p *Poller) Start(ctx context.Context, sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StatePending {
		return ErrBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	p.state = StatePending
	p.sessionID = sessionID
	p.attempts = 0
	p.clearErr = nil
	p.cancel = cancel
	p.done = make(chan struct{})
	p.focus = make(chan bool, 1)
	go p.run(ctx, sessionID, p.focus, p.done)
	return nil
}

// Focus asks for an immediate check.  closed reports that the payment
// window has been closed by the shopper; a non-paid result then ends
// the run as incomplete.
func (p *Poller) Focus(closed bool) {
	p.mu.Lock()
	ch := p.focus
	pending := p.state == StatePending
	p.mu.Unlock()
	if !pending || ch == nil {
		return
	}
	select {
	case ch <- closed:
	default:
		// a check is already queued; keep the stronger signal
		if closed {
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- true:
			default:
			}
		}
	}
}

// Reset returns an incomplete poller to none.  Other states are kept.
func (p *Poller) Reset() {
	p.mu.Lock()
	if p.state == StateIncomplete {
		p.state = StateNone
		p.sessionID = ""
	}
	p.mu.Unlock()
}

// Stop cancels a pending run and waits for it.  The state returns to
// none; terminal states are kept.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Wait blocks until the current run ends and returns the final state.
func (p *Poller) Wait() State {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
	return p.State()
}

func (p *Poller) run(ctx context.Context, id string, focus <-chan bool, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(p.cfg.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			p.finish(StateNone, "")
			return
		case <-t.C:
			n := p.bump()
			status, err := p.check.Status(ctx, id)
			if err == nil && p.settle(ctx, status, false) {
				return
			}
			if n >= p.cfg.MaxAttempts {
				p.finish(StateIncomplete, ReasonTimeout)
				return
			}
		case closed := <-focus:
			status, err := p.check.Status(ctx, id)
			if err != nil {
				status = StatusPending
			}
			if p.settle(ctx, status, closed) {
				return
			}
		}
	}
}

// settle applies a status and reports whether the run is over.
func (p *Poller) settle(ctx context.Context, status string, closed bool) bool {
	switch {
	case status == StatusPaid:
		err := p.clearCart(context.WithoutCancel(ctx))
		p.mu.Lock()
		p.clearErr = err
		p.mu.Unlock()
		p.finish(StateCompleted, "")
		return true
	case status == StatusExpired:
		p.finish(StateIncomplete, ReasonExpired)
		return true
	case closed:
		p.finish(StateIncomplete, ReasonClosed)
		return true
	}
	return false
}

func (p *Poller) clearCart(ctx context.Context) error {
	if p.cart == nil {
		return nil
	}
	var err error
	for i := 0; i < clearAttempts; i++ {
		if err = p.cart.Clear(ctx); err == nil {
			return nil
		}
	}
	return fmt.Errorf("poller: clear cart: %w", err)
}

func (p *Poller) bump() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	return p.attempts
}

func (p *Poller) finish(s State, reason string) {
	p.mu.Lock()
	p.state = s
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.focus = nil
	onC, onI, clearErr := p.onCompleted, p.onIncomplete, p.clearErr
	p.mu.Unlock()

	switch s {
	case StateCompleted:
		if onC != nil {
			onC(clearErr)
		}
	case StateIncomplete:
		if onI != nil {
			onI(reason)
		}
	}
}
