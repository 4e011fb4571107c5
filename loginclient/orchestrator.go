package loginclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State of the handshake from the client's point of view.
type State string

const (
	StateIdle               State = "idle"
	StateRequesting         State = "requesting"
	StatePolling            State = "polling"
	StateSessionEstablished State = "session_established"
	StateError              State = "error"
	StateCancelled          State = "cancelled"
)

// Event is emitted on every state transition.
type Event struct {
	State    State
	Token    string
	DeepLink string
	Grant    *SessionGrant
	Err      *FlowError
}

// HandshakeAPI is the server surface the orchestrator drives.
// *APIClient satisfies it; tests substitute fakes.
type HandshakeAPI interface {
	CreateToken(ctx context.Context, token string) (*TokenGrant, error)
	CheckStatus(ctx context.Context, token string) (*StatusReply, error)
	EstablishSession(ctx context.Context, email, securePassword string) (*SessionGrant, error)
}

// BrowserOpener opens the bot deep link in the external Telegram app.
type BrowserOpener interface {
	Open(url string) error
}

// BrowserOpenerFunc adapts a func to BrowserOpener.
type BrowserOpenerFunc func(url string) error

func (f BrowserOpenerFunc) Open(url string) error { return f(url) }

// Options configures an Orchestrator. API and BotUsername are
// required; everything else has working defaults.
type Options struct {
	API         HandshakeAPI
	BotUsername string
	// Browser opens the deep link; nil skips opening (the caller shows
	// the link instead).
	Browser  BrowserOpener
	Recovery RecoveryStore
	Sessions *SessionStore
	Logger   *slog.Logger
	// Events observes every transition; optional.
	Events func(Event)

	// PollBudget caps total polling time. Default 5 minutes; it must
	// stay below the server's token TTL so the client fails first.
	PollBudget time.Duration
	// BackoffSteps are the initial retry delays, after which
	// SteadyInterval applies. Defaults: 1s, 2s, 4s then 10s.
	BackoffSteps   []time.Duration
	SteadyInterval time.Duration
	// RecoveryMaxAge bounds how old a persisted attempt may be before
	// Resume discards it. Default 20 minutes, matching token TTL.
	RecoveryMaxAge time.Duration
}

// Orchestrator drives the whole handshake: registers the token, opens
// the bot conversation, polls with backoff, establishes the session
// and broadcasts it. Only one polling loop is ever active; starting a
// new login cancels the previous loop first.
type Orchestrator struct {
	api      HandshakeAPI
	bot      string
	browser  BrowserOpener
	recovery RecoveryStore
	sessions *SessionStore
	logger   *slog.Logger
	events   func(Event)

	budget         time.Duration
	backoffSteps   []time.Duration
	steadyInterval time.Duration
	recoveryMaxAge time.Duration

	mu      sync.Mutex
	state   State
	token   string
	lastErr *FlowError
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("loginclient: API is required")
	}
	if opts.BotUsername == "" {
		return nil, fmt.Errorf("loginclient: BotUsername is required")
	}
	o := &Orchestrator{
		api:            opts.API,
		bot:            opts.BotUsername,
		browser:        opts.Browser,
		recovery:       opts.Recovery,
		sessions:       opts.Sessions,
		logger:         opts.Logger,
		events:         opts.Events,
		budget:         opts.PollBudget,
		backoffSteps:   opts.BackoffSteps,
		steadyInterval: opts.SteadyInterval,
		recoveryMaxAge: opts.RecoveryMaxAge,
		state:          StateIdle,
	}
	if o.recovery == nil {
		o.recovery = NewMemoryRecoveryStore()
	}
	if o.sessions == nil {
		o.sessions = NewSessionStore()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.budget <= 0 {
		o.budget = 5 * time.Minute
	}
	if len(o.backoffSteps) == 0 {
		o.backoffSteps = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	}
	if o.steadyInterval <= 0 {
		o.steadyInterval = 10 * time.Second
	}
	if o.recoveryMaxAge <= 0 {
		o.recoveryMaxAge = 20 * time.Minute
	}
	return o, nil
}

// Sessions exposes the store for subscribers.
func (o *Orchestrator) Sessions() *SessionStore { return o.sessions }

// State returns the current state and the last terminal error, if any.
func (o *Orchestrator) State() (State, *FlowError) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state, o.lastErr
}

// ActiveToken returns the token of the loop in flight, or "".
func (o *Orchestrator) ActiveToken() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.token
}

// DeepLink builds the t.me link carrying token as the start parameter.
func (o *Orchestrator) DeepLink(token string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", o.bot, token)
}

// LoginWithBot starts a fresh handshake: it cancels any loop already
// in flight, registers a server-minted token, persists the recovery
// record, opens the deep link and begins polling in the background.
// It returns the deep link so callers can also show it directly.
func (o *Orchestrator) LoginWithBot(ctx context.Context) (string, error) {
	o.stopActiveLoop()

	o.transition(Event{State: StateRequesting})
	o.sessions.Set(Session{Loading: true})

	grant, err := o.api.CreateToken(ctx, "")
	if err != nil {
		// Pre-registration is best-effort only when the client minted
		// the token itself; with server minting there is no token to
		// fall back to, so this is fatal for the attempt.
		fe := asFlowError(err)
		o.failNow(fe)
		return "", fe
	}

	startedAt := time.Now()
	if err := o.recovery.Save(PendingAttempt{Token: grant.Token, StartedAt: startedAt}); err != nil {
		o.logger.Warn("persist pending login", "error", err)
	}

	link := o.DeepLink(grant.Token)
	if o.browser != nil {
		if err := o.browser.Open(link); err != nil {
			fe := flowErr(KindBrowserOpen, "could not open Telegram", err)
			o.clearRecovery()
			o.failNow(fe)
			return "", fe
		}
	}

	o.startLoop(grant.Token, startedAt)
	return link, nil
}

// Resume continues a handshake persisted by a previous run. A record
// older than RecoveryMaxAge is discarded silently and ok is false.
func (o *Orchestrator) Resume(ctx context.Context) (resumed bool, err error) {
	attempt, ok, err := o.recovery.Load()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if time.Since(attempt.StartedAt) > o.recoveryMaxAge {
		o.clearRecovery()
		return false, nil
	}

	o.stopActiveLoop()
	o.sessions.Set(Session{Loading: true})
	o.startLoop(attempt.Token, attempt.StartedAt)
	return true, nil
}

// Cancel stops the active polling loop, clears the recovery record and
// returns the machine to idle. Safe to call from any state, including
// after completion.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	active := o.cancel != nil
	o.mu.Unlock()

	o.stopActiveLoop()
	o.clearRecovery()

	// After completion or a terminal error there is nothing to cancel;
	// leaving the final state intact makes repeat calls a no-op.
	if active {
		o.transition(Event{State: StateCancelled})
		o.sessions.Set(Session{})
		o.mu.Lock()
		o.state = StateIdle
		o.mu.Unlock()
	}
}

// Wait blocks until the active loop finishes or ctx is done. It
// returns immediately when nothing is running.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) startLoop(token string, startedAt time.Time) {
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	o.mu.Lock()
	o.cancel = cancel
	o.done = done
	o.token = token
	o.lastErr = nil
	o.mu.Unlock()

	o.transition(Event{State: StatePolling, Token: token, DeepLink: o.DeepLink(token)})

	go func() {
		defer close(done)
		defer cancel()
		o.poll(loopCtx, token, startedAt)
	}()
}

// stopActiveLoop cancels the running loop, if any, and waits for it to
// drain so no poll fires after the caller proceeds.
func (o *Orchestrator) stopActiveLoop() {
	o.mu.Lock()
	cancel := o.cancel
	done := o.done
	o.cancel = nil
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (o *Orchestrator) poll(ctx context.Context, token string, startedAt time.Time) {
	deadline := startedAt.Add(o.budget)
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if time.Now().After(deadline) {
			o.clearRecovery()
			o.fail(flowErr(KindTimeout, "polling budget exhausted", nil))
			return
		}

		reply, err := o.api.CheckStatus(ctx, token)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil && Terminal(err):
			o.clearRecovery()
			o.fail(asFlowError(err))
			return
		case err != nil:
			// Transient network failure: swallowed, retried with the
			// same backoff schedule.
			o.logger.Debug("poll attempt failed", "error", err)
		default:
			switch reply.Status {
			case StatusComplete:
				o.establish(ctx, reply)
				return
			case StatusExpired:
				o.clearRecovery()
				o.fail(flowErr(KindTokenExpired, "token expired before confirmation", nil))
				return
			case StatusUsed:
				o.clearRecovery()
				o.fail(flowErr(KindTokenUsed, "token consumed elsewhere", nil))
				return
			}
		}

		timer := time.NewTimer(o.nextDelay(attempt))
		attempt++
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (o *Orchestrator) nextDelay(attempt int) time.Duration {
	if attempt < len(o.backoffSteps) {
		return o.backoffSteps[attempt]
	}
	return o.steadyInterval
}

func (o *Orchestrator) establish(ctx context.Context, reply *StatusReply) {
	o.clearRecovery()

	if reply.Email == "" || reply.SecurePassword == "" {
		o.fail(flowErr(KindSessionEstablishment, "exchange payload missing credentials", nil))
		return
	}
	grant, err := o.api.EstablishSession(ctx, reply.Email, reply.SecurePassword)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		fe := asFlowError(err)
		if fe.Kind != KindSessionEstablishment {
			fe = flowErr(KindSessionEstablishment, "session sign-in failed", err)
		}
		o.fail(fe)
		return
	}

	o.mu.Lock()
	o.state = StateSessionEstablished
	o.cancel = nil
	o.mu.Unlock()

	user := grant.User
	o.sessions.Set(Session{User: &user})
	o.emit(Event{State: StateSessionEstablished, Grant: grant})
}

func (o *Orchestrator) fail(fe *FlowError) {
	o.mu.Lock()
	o.state = StateError
	o.lastErr = fe
	o.cancel = nil
	o.mu.Unlock()

	o.sessions.Set(Session{})
	o.emit(Event{State: StateError, Err: fe})
}

// failNow is fail for the synchronous requesting phase, before any
// loop exists.
func (o *Orchestrator) failNow(fe *FlowError) {
	o.mu.Lock()
	o.state = StateError
	o.lastErr = fe
	o.mu.Unlock()

	o.sessions.Set(Session{})
	o.emit(Event{State: StateError, Err: fe})
}

func (o *Orchestrator) transition(ev Event) {
	o.mu.Lock()
	o.state = ev.State
	if ev.Token != "" {
		o.token = ev.Token
	}
	o.mu.Unlock()
	o.emit(ev)
}

func (o *Orchestrator) emit(ev Event) {
	if o.events != nil {
		o.events(ev)
	}
}

func (o *Orchestrator) clearRecovery() {
	if err := o.recovery.Clear(); err != nil {
		o.logger.Warn("clear pending login", "error", err)
	}
}

func asFlowError(err error) *FlowError {
	if fe, ok := err.(*FlowError); ok {
		return fe
	}
	return flowErr(KindInternal, "", err)
}
