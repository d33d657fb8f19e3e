package syncpoller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend scripts server behavior for the loop. All methods are safe
// for concurrent use; the poller may call them from the loop goroutine.
type fakeBackend struct {
	mu      sync.Mutex
	grant   bool
	holder  string
	update  Update
	saveErr error

	saved      []string
	releases   int
	heartbeats int
	onSave     func(content string)
}

func (f *fakeBackend) Acquire(ctx context.Context, unitID, participantID string) (AcquireResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.grant {
		return AcquireResult{Granted: true, Holder: participantID}, nil
	}
	return AcquireResult{Granted: false, Holder: f.holder}, nil
}

func (f *fakeBackend) Release(ctx context.Context, unitID, participantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	return nil
}

func (f *fakeBackend) Save(ctx context.Context, unitID, participantID, content string) (string, error) {
	f.mu.Lock()
	err := f.saveErr
	hook := f.onSave
	if err == nil {
		f.saved = append(f.saved, content)
	}
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	if hook != nil {
		hook(content)
	}
	return "fp-" + content, nil
}

func (f *fakeBackend) Heartbeat(ctx context.Context, docID, participantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	return nil
}

func (f *fakeBackend) Updates(ctx context.Context, unitID, participantID, since string) (Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	upd := f.update
	if since != "" && since == upd.Fingerprint {
		upd.Unchanged = true
		upd.Content = ""
	}
	return upd, nil
}

func (f *fakeBackend) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func (f *fakeBackend) releaseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releases
}

func newTestPoller(backend *fakeBackend) *Poller {
	return New(backend, "doc-1", "para-1", "alice", Config{})
}

func TestKeystrokeStartsAcquisition(t *testing.T) {
	backend := &fakeBackend{grant: true}
	p := newTestPoller(backend)

	p.Keystroke("h")
	assert.Equal(t, StateAcquiring, p.State())

	p.acquire(context.Background())
	assert.Equal(t, StateHeld, p.State())
}

func TestDeniedAcquisitionBlocksWithHolder(t *testing.T) {
	backend := &fakeBackend{grant: false, holder: "bob"}
	p := newTestPoller(backend)

	var gotState State
	var gotHolder string
	p.OnState(func(s State, holder string) { gotState, gotHolder = s, holder })

	p.Keystroke("h")
	p.acquire(context.Background())

	assert.Equal(t, StateBlocked, p.State())
	assert.Equal(t, StateBlocked, gotState)
	assert.Equal(t, "bob", gotHolder)
}

func TestDebouncedSaveReleasesLease(t *testing.T) {
	backend := &fakeBackend{grant: true}
	p := newTestPoller(backend)
	ctx := context.Background()

	p.Keystroke("hello")
	p.acquire(ctx)
	require.Equal(t, StateHeld, p.State())

	// Still inside the debounce window: nothing saves.
	p.maybeSave(ctx, false)
	assert.Equal(t, 0, backend.savedCount())
	assert.Equal(t, StateHeld, p.State())

	// Typing went quiet.
	p.mu.Lock()
	p.lastKeystroke = time.Now().Add(-2 * p.cfg.Debounce)
	p.mu.Unlock()

	p.maybeSave(ctx, false)
	assert.Equal(t, []string{"hello"}, backend.saved)
	assert.Equal(t, 1, backend.releaseCount())
	assert.Equal(t, StateIdle, p.State())
	assert.Equal(t, "fp-hello", p.Fingerprint())
}

// Typing that lands while the save is in flight keeps the lease: the
// poller returns to Held with the dirty flag set instead of releasing.
func TestTypingDuringSaveKeepsLease(t *testing.T) {
	backend := &fakeBackend{grant: true}
	p := newTestPoller(backend)
	ctx := context.Background()

	backend.onSave = func(string) { p.Keystroke("hello again") }

	p.Keystroke("hello")
	p.acquire(ctx)
	p.mu.Lock()
	p.lastKeystroke = time.Now().Add(-2 * p.cfg.Debounce)
	p.mu.Unlock()

	p.maybeSave(ctx, false)

	assert.Equal(t, StateHeld, p.State())
	assert.Equal(t, 0, backend.releaseCount())
}

func TestFailedSaveRetainsLeaseAndDirtyState(t *testing.T) {
	backend := &fakeBackend{grant: true, saveErr: context.DeadlineExceeded}
	p := newTestPoller(backend)
	ctx := context.Background()

	p.Keystroke("hello")
	p.acquire(ctx)
	p.mu.Lock()
	p.lastKeystroke = time.Now().Add(-2 * p.cfg.Debounce)
	p.mu.Unlock()

	p.maybeSave(ctx, false)

	assert.Equal(t, StateHeld, p.State())
	assert.Equal(t, 0, backend.savedCount())
	assert.Equal(t, 0, backend.releaseCount())
}

func TestBlurForcesSaveAndRelease(t *testing.T) {
	backend := &fakeBackend{grant: true}
	p := newTestPoller(backend)
	ctx := context.Background()

	p.Keystroke("hello")
	p.acquire(ctx)
	p.Blur()

	// Blur skips the debounce wait entirely.
	p.maybeSave(ctx, true)
	assert.Equal(t, []string{"hello"}, backend.saved)
	assert.Equal(t, 1, backend.releaseCount())
	assert.Equal(t, StateIdle, p.State())
}

func TestPollAppliesEachRemoteChangeOnce(t *testing.T) {
	backend := &fakeBackend{update: Update{Content: "remote text", Fingerprint: "fp-remote"}}
	p := newTestPoller(backend)
	ctx := context.Background()

	applied := 0
	p.OnRemote(func(content, fp string) { applied++ })

	p.pollOnce(ctx)
	p.pollOnce(ctx)
	p.pollOnce(ctx)

	assert.Equal(t, 1, applied)
	assert.Equal(t, "fp-remote", p.Fingerprint())
}

func TestPollSuppressedWhileTyping(t *testing.T) {
	backend := &fakeBackend{grant: false, holder: "bob", update: Update{Content: "remote", Fingerprint: "fp-remote", LockHolder: "bob"}}
	p := newTestPoller(backend)

	applied := 0
	p.OnRemote(func(content, fp string) { applied++ })

	p.Keystroke("local draft")
	p.pollOnce(context.Background())

	assert.Equal(t, 0, applied)
	assert.Empty(t, p.Fingerprint())
}

func TestBlockedUnitFreesOnPoll(t *testing.T) {
	backend := &fakeBackend{grant: false, holder: "bob", update: Update{Fingerprint: "fp-0", LockHolder: "bob"}}
	p := newTestPoller(backend)
	ctx := context.Background()

	p.Keystroke("h")
	p.acquire(ctx)
	require.Equal(t, StateBlocked, p.State())

	// Holder still present: stay blocked.
	p.pollOnce(ctx)
	assert.Equal(t, StateBlocked, p.State())

	backend.mu.Lock()
	backend.update.LockHolder = ""
	backend.mu.Unlock()

	p.pollOnce(ctx)
	assert.Equal(t, StateIdle, p.State())
}

func TestRenewalDenialDemotesToBlocked(t *testing.T) {
	backend := &fakeBackend{grant: true}
	p := newTestPoller(backend)
	ctx := context.Background()

	p.Keystroke("h")
	p.acquire(ctx)
	require.Equal(t, StateHeld, p.State())

	// The server expired the lease and someone else took it.
	backend.mu.Lock()
	backend.grant = false
	backend.holder = "bob"
	backend.mu.Unlock()

	p.renewLease(ctx)
	assert.Equal(t, StateBlocked, p.State())
}

func TestRunLoopHeartbeatsAndShutsDownCleanly(t *testing.T) {
	backend := &fakeBackend{grant: true}
	p := New(backend, "doc-1", "para-1", "alice", Config{
		Heartbeat: 10 * time.Millisecond,
		Poll:      10 * time.Millisecond,
		Refresh:   20 * time.Millisecond,
		Debounce:  20 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	p.Keystroke("typed during session")
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run loop did not stop")
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Greater(t, backend.heartbeats, 1)
	assert.NotEmpty(t, backend.saved)
}
