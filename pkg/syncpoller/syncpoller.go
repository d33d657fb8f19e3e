// Package syncpoller is the client-owned control loop of the sync
// protocol. The transport is stateless polling: the poller heartbeats
// presence, pulls unit state, renews its lease, and pushes saves after a
// typing debounce. Change detection is by content fingerprint, never by
// arrival order, so responses racing each other are harmless.
package syncpoller

import (
	"context"
	"sync"
	"time"
)

// State is one participant's view of a single editable unit.
//
//	Idle -> (keystroke) -> Acquiring -> {Held | Blocked}
//	Held -> (blur / idle timeout) -> Saving -> Idle, or back to Held if
//	typing resumes before release. Blocked polls until the unit frees.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateHeld
	StateBlocked
	StateSaving
)

func (s State) String() string {
	switch s {
	case StateAcquiring:
		return "acquiring"
	case StateHeld:
		return "held"
	case StateBlocked:
		return "blocked"
	case StateSaving:
		return "saving"
	default:
		return "idle"
	}
}

type AcquireResult struct {
	Granted bool
	Holder  string
}

type Update struct {
	Content     string
	Fingerprint string
	Unchanged   bool
	LockHolder  string
	Online      []string
	QueueDepth  int
}

// Backend is the server operation set the poller drives. Implementations
// wrap the HTTP transport; errors are swallowed by the loop and retried
// on the next tick, which is the protocol's only retry mechanism.
type Backend interface {
	Acquire(ctx context.Context, unitID, participantID string) (AcquireResult, error)
	Release(ctx context.Context, unitID, participantID string) error
	Save(ctx context.Context, unitID, participantID, content string) (string, error)
	Heartbeat(ctx context.Context, docID, participantID string) error
	Updates(ctx context.Context, unitID, participantID, since string) (Update, error)
}

// Config carries the loop cadences. Refresh must stay well under the
// server's lock TTL so a single missed renewal leaves margin.
type Config struct {
	Heartbeat time.Duration
	Poll      time.Duration
	Refresh   time.Duration
	Debounce  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Heartbeat <= 0 {
		c.Heartbeat = 2 * time.Second
	}
	if c.Poll <= 0 {
		c.Poll = 2 * time.Second
	}
	if c.Refresh <= 0 {
		c.Refresh = 5 * time.Second
	}
	if c.Debounce <= 0 {
		c.Debounce = 1200 * time.Millisecond
	}
	return c
}

type Poller struct {
	backend       Backend
	cfg           Config
	docID         string
	unitID        string
	participantID string

	onRemote func(content, fingerprint string)
	onState  func(state State, holder string)

	mu            sync.Mutex
	state         State
	content       string
	fingerprint   string
	holder        string
	dirty         bool
	lastKeystroke time.Time
	blurRequested bool

	wake chan struct{}
}

func New(backend Backend, docID, unitID, participantID string, cfg Config) *Poller {
	return &Poller{
		backend:       backend,
		cfg:           cfg.withDefaults(),
		docID:         docID,
		unitID:        unitID,
		participantID: participantID,
		wake:          make(chan struct{}, 1),
	}
}

// OnRemote registers the editor callback applied when remote content
// lands. Called only when the fingerprint actually moved.
func (p *Poller) OnRemote(fn func(content, fingerprint string)) { p.onRemote = fn }

// OnState registers a callback for state transitions, for UI display of
// "locked by X" and friends.
func (p *Poller) OnState(fn func(state State, holder string)) { p.onState = fn }

func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Fingerprint returns the last applied or saved content fingerprint.
func (p *Poller) Fingerprint() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fingerprint
}

// Keystroke records local typing. The first keystroke from Idle starts
// lease acquisition; keystrokes while Blocked keep the local buffer but
// wait for the unit to free.
func (p *Poller) Keystroke(content string) {
	p.mu.Lock()
	p.content = content
	p.dirty = true
	p.lastKeystroke = time.Now()
	start := p.state == StateIdle
	if start {
		p.state = StateAcquiring
	}
	p.mu.Unlock()
	if start {
		p.notifyState()
		p.signal()
	}
}

// Blur forces the save-and-release path without waiting out the debounce,
// the "editing focus lost" flow.
func (p *Poller) Blur() {
	p.mu.Lock()
	p.blurRequested = true
	p.mu.Unlock()
	p.signal()
}

// Run drives the loop until ctx is done. On shutdown a held lease is
// flushed and released; if that fails the server reclaims it by TTL.
func (p *Poller) Run(ctx context.Context) {
	heartbeat := time.NewTicker(p.cfg.Heartbeat)
	defer heartbeat.Stop()
	poll := time.NewTicker(p.cfg.Poll)
	defer poll.Stop()
	refresh := time.NewTicker(p.cfg.Refresh)
	defer refresh.Stop()
	debounce := time.NewTicker(debounceTick(p.cfg.Debounce))
	defer debounce.Stop()

	// Join the room immediately rather than a heartbeat period late.
	_ = p.backend.Heartbeat(ctx, p.docID, p.participantID)

	for {
		select {
		case <-ctx.Done():
			p.shutdown()
			return
		case <-heartbeat.C:
			_ = p.backend.Heartbeat(ctx, p.docID, p.participantID)
		case <-poll.C:
			p.pollOnce(ctx)
		case <-refresh.C:
			p.renewLease(ctx)
		case <-debounce.C:
			p.maybeSave(ctx, false)
		case <-p.wake:
			p.step(ctx)
		}
	}
}

func (p *Poller) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Poller) step(ctx context.Context) {
	p.mu.Lock()
	acquiring := p.state == StateAcquiring
	blur := p.blurRequested
	p.mu.Unlock()

	if acquiring {
		p.acquire(ctx)
	}
	if blur {
		p.maybeSave(ctx, true)
	}
}

func (p *Poller) acquire(ctx context.Context) {
	res, err := p.backend.Acquire(ctx, p.unitID, p.participantID)
	if err != nil {
		return // next keystroke or tick retries
	}
	p.mu.Lock()
	if p.state != StateAcquiring {
		p.mu.Unlock()
		return
	}
	if res.Granted {
		p.state = StateHeld
		p.holder = p.participantID
	} else {
		p.state = StateBlocked
		p.holder = res.Holder
	}
	p.mu.Unlock()
	p.notifyState()
}

// renewLease re-invokes acquire on the refresh cadence; renewal is the
// same server path as acquisition. A denied renewal means the lease
// already expired under us and someone else may hold the unit now.
func (p *Poller) renewLease(ctx context.Context) {
	p.mu.Lock()
	held := p.state == StateHeld
	p.mu.Unlock()
	if !held {
		return
	}
	res, err := p.backend.Acquire(ctx, p.unitID, p.participantID)
	if err != nil {
		return
	}
	if res.Granted {
		return
	}
	p.mu.Lock()
	if p.state == StateHeld {
		p.state = StateBlocked
		p.holder = res.Holder
	}
	p.mu.Unlock()
	p.notifyState()
}

// maybeSave runs the Held -> Saving -> {Idle, Held} edge. When force is
// false the debounce must have elapsed since the last keystroke.
func (p *Poller) maybeSave(ctx context.Context, force bool) {
	p.mu.Lock()
	if p.state != StateHeld || (!p.dirty && !p.blurRequested) {
		p.blurRequested = false
		p.mu.Unlock()
		return
	}
	if !force && time.Since(p.lastKeystroke) < p.cfg.Debounce {
		p.mu.Unlock()
		return
	}
	p.state = StateSaving
	p.blurRequested = false
	content := p.content
	saveStarted := time.Now()
	p.mu.Unlock()
	p.notifyState()

	fp, err := p.backend.Save(ctx, p.unitID, p.participantID, content)

	p.mu.Lock()
	if err != nil {
		// Keep the lease and the dirty flag; the next tick retries.
		p.state = StateHeld
		p.mu.Unlock()
		p.notifyState()
		return
	}
	p.fingerprint = fp
	p.dirty = p.lastKeystroke.After(saveStarted)
	if p.dirty && !force {
		// Typing resumed before release: stay on the lease.
		p.state = StateHeld
		p.mu.Unlock()
		p.notifyState()
		return
	}
	p.mu.Unlock()

	_ = p.backend.Release(ctx, p.unitID, p.participantID)
	p.mu.Lock()
	p.state = StateIdle
	p.holder = ""
	p.mu.Unlock()
	p.notifyState()
}

// pollOnce pulls unit state. Inbound content is suppressed while the
// local participant is typing or holds the lease; an unchanged or
// already-applied fingerprint is a no-op.
func (p *Poller) pollOnce(ctx context.Context) {
	p.mu.Lock()
	since := p.fingerprint
	p.mu.Unlock()

	upd, err := p.backend.Updates(ctx, p.unitID, p.participantID, since)
	if err != nil {
		return
	}

	p.mu.Lock()
	freed := false
	if p.state == StateBlocked {
		p.holder = upd.LockHolder
		if upd.LockHolder == "" {
			p.state = StateIdle
			freed = true
		}
	}

	suppress := p.state == StateHeld || p.state == StateSaving || p.state == StateAcquiring ||
		p.dirty || time.Since(p.lastKeystroke) < p.cfg.Debounce
	apply := !upd.Unchanged && upd.Fingerprint != p.fingerprint && !suppress
	if apply {
		p.content = upd.Content
		p.fingerprint = upd.Fingerprint
	}
	p.mu.Unlock()

	if freed {
		p.notifyState()
	}
	if apply && p.onRemote != nil {
		p.onRemote(upd.Content, upd.Fingerprint)
	}
}

func (p *Poller) shutdown() {
	p.mu.Lock()
	held := p.state == StateHeld || p.state == StateSaving
	dirty := p.dirty
	content := p.content
	p.mu.Unlock()
	if !held {
		return
	}
	// Best effort with a fresh context; an abandoned lease ages out by
	// TTL on the server anyway.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if dirty {
		_, _ = p.backend.Save(ctx, p.unitID, p.participantID, content)
	}
	_ = p.backend.Release(ctx, p.unitID, p.participantID)
}

func (p *Poller) notifyState() {
	if p.onState == nil {
		return
	}
	p.mu.Lock()
	state, holder := p.state, p.holder
	p.mu.Unlock()
	p.onState(state, holder)
}

func debounceTick(d time.Duration) time.Duration {
	tick := d / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	return tick
}
