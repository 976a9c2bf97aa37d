package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/niksmo/twin-supply/internal/core/domain"
)

var (
	ErrBusy           = errors.New("payment already in progress")
	ErrCancelled      = errors.New("payment cancelled")
	ErrNoPendingPay   = errors.New("no payment awaiting approval")
	ErrNotRestartable = errors.New("session cannot be reset while a payment is in progress")
)

// A Session tracks one funding source button.
//
// At most one intent is pending at a time and no new submission is accepted
// while the session is busy.
type Session struct {
	funding  string
	provider Provider
	fallback Fallback
	env      string

	mu      sync.Mutex
	state   State
	pending *Intent
	lastErr error
}

// NewSession returns an idle session.
//
// The fallback is used only when env is sandbox and the server is unreachable.
func NewSession(funding string, p Provider, env string, fallback Fallback) *Session {
	return &Session{
		funding:  funding,
		provider: p,
		fallback: fallback,
		env:      domain.NormalizeEnv(env),
	}
}

func (s *Session) Funding() string {
	return s.funding
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CanSubmit reports whether a new payment can be started.
func (s *Session) CanSubmit() bool {
	return !s.State().Busy()
}

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Pending returns the intent awaiting approval.
func (s *Session) Pending() (Intent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return Intent{}, false
	}
	return *s.pending, true
}

// Begin creates a provider intent and moves the session to awaiting approval.
func (s *Session) Begin(ctx context.Context, r IntentRequest) (Intent, error) {
	const op = "Session.Begin"
	log := slog.With("op", op, "funding", s.funding, "localOrderID", r.LocalOrderID)

	if err := s.enter(AwaitingProviderApproval); err != nil {
		return Intent{}, fmt.Errorf("%s: %w", op, err)
	}

	intent, err := s.provider.CreateIntent(ctx, r)
	if err != nil && s.canFallBack(err) {
		log.Warn("server unavailable, using sandbox fallback", "err", err)
		intent, err = s.fallback.CreateIntent(ctx, r)
	}
	if err != nil {
		s.fail(err)
		return Intent{}, fmt.Errorf("%s: %w", op, err)
	}

	intent.ShippingMethodID = r.ShippingMethodID

	s.mu.Lock()
	if s.state != AwaitingProviderApproval {
		s.mu.Unlock()
		log.Info("intent dropped, session was cancelled", "providerID", intent.ProviderID)
		return Intent{}, fmt.Errorf("%s: %w", op, ErrCancelled)
	}
	s.pending = &intent
	s.mu.Unlock()

	log.Info("awaiting provider approval", "providerID", intent.ProviderID)
	return intent, nil
}

// Approve captures the pending intent.
//
// An approval for a different provider id leaves the session awaiting.
func (s *Session) Approve(
	ctx context.Context, a Approval, r CaptureRequest,
) (Intent, CaptureOutcome, error) {
	const op = "Session.Approve"
	log := slog.With("op", op, "funding", s.funding)

	s.mu.Lock()
	if s.state != AwaitingProviderApproval || s.pending == nil {
		s.mu.Unlock()
		return Intent{}, CaptureOutcome{}, fmt.Errorf("%s: %w", op, ErrNoPendingPay)
	}
	intent := *s.pending
	if a.ProviderID != "" && a.ProviderID != intent.ProviderID {
		s.mu.Unlock()
		return Intent{}, CaptureOutcome{}, fmt.Errorf("%s: %w", op, ErrApprovalMismatch)
	}
	s.state = Capturing
	s.mu.Unlock()

	r.LocalOrderID = intent.LocalOrderID
	if intent.ShippingMethodID != "" {
		r.ShippingMethodID = intent.ShippingMethodID
	}
	if r.Cart == nil {
		r.Cart = intent.Cart
	}

	var (
		out CaptureOutcome
		err error
	)
	if intent.Sandbox {
		out, err = s.fallback.CaptureIntent(ctx, intent, a, r)
	} else {
		out, err = s.provider.CaptureIntent(ctx, intent, a, r)
		if err != nil && s.canFallBack(err) {
			log.Warn("server unavailable, capturing through sandbox fallback", "err", err)
			out, err = s.fallback.CaptureIntent(ctx, intent, a, r)
		}
	}
	if err != nil {
		s.fail(err)
		return intent, CaptureOutcome{}, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	s.state = Captured
	s.pending = nil
	s.lastErr = nil
	s.mu.Unlock()

	log.Info("payment captured", "localOrderID", intent.LocalOrderID)
	return intent, out, nil
}

// Cancel abandons the pending intent. The cart is left untouched.
func (s *Session) Cancel() error {
	const op = "Session.Cancel"

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != AwaitingProviderApproval {
		return fmt.Errorf("%s: %w", op, ErrNoPendingPay)
	}
	s.state = Cancelled
	s.pending = nil
	return nil
}

// Reset returns a finished session to idle.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Busy() {
		return ErrNotRestartable
	}
	s.state = Idle
	s.pending = nil
	s.lastErr = nil
	return nil
}

func (s *Session) enter(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Busy() {
		return ErrBusy
	}
	s.state = next
	s.pending = nil
	s.lastErr = nil
	return nil
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Failed
	s.pending = nil
	s.lastErr = err
}

func (s *Session) canFallBack(err error) bool {
	return s.fallback != nil &&
		s.env == domain.EnvSandbox &&
		errors.Is(err, domain.ErrServerUnavailable)
}
