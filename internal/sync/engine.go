// Package sync provides the synchronization engine between the local
// progress store and the remote document store.
//
// Reconciliation is last-write-wins keyed by the document's lastSynced
// timestamp: pushes stamp a fresh timestamp, pulls are applied only when
// the downloaded copy is strictly newer than anything this client has
// observed or produced.
package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/ruskoloma/bible365/internal/auth"
	"github.com/ruskoloma/bible365/internal/drive"
	"github.com/ruskoloma/bible365/internal/logger"
	"github.com/ruskoloma/bible365/internal/progress"
)

// State is the engine's position in its session lifecycle.
type State int

const (
	// StateDisconnected means no account is linked; mutations stay local.
	StateDisconnected State = iota
	// StateConnecting means a token and profile are being acquired.
	StateConnecting
	// StateReconciling means the one-time connect reconciliation is running.
	StateReconciling
	// StateSteady means debounced pushes and periodic pulls are active.
	StateSteady
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReconciling:
		return "reconciling"
	case StateSteady:
		return "steady"
	default:
		return "unknown"
	}
}

// MergeChoice is the operator's decision when both the local and the remote
// copy already have a started plan.
type MergeChoice int

const (
	// MergeAdoptRemote replaces the local document with the cloud copy.
	MergeAdoptRemote MergeChoice = iota
	// MergePushLocal overwrites the cloud copy with the local document.
	MergePushLocal
)

// Prompter asks the operator to resolve a first-connect conflict. The
// engine never guesses: when both copies have a start date, one side must
// be chosen wholesale.
type Prompter interface {
	ChooseMerge(local, remote *progress.Document) (MergeChoice, error)
}

// Engine coordinates pushes and pulls between the tracker and the remote
// document store.
type Engine struct {
	tracker  *progress.Tracker
	client   *drive.Client
	provider *auth.Provider

	debounce     time.Duration
	pullInterval time.Duration
	grace        time.Duration

	prompter Prompter
	notify   func(msg string)

	mu            gosync.Mutex
	state         State
	timer         *time.Timer
	lastSeen      string // newest lastSynced observed or produced
	suppressUntil time.Time
	stopCh        chan struct{}
	wg            gosync.WaitGroup
}

// NewEngine creates a sync engine. debounceMs is the quiet window after a
// mutation before a push fires; the post-pull grace window reuses it.
func NewEngine(tracker *progress.Tracker, client *drive.Client, provider *auth.Provider, debounceMs int) *Engine {
	debounce := time.Duration(debounceMs) * time.Millisecond
	return &Engine{
		tracker:      tracker,
		client:       client,
		provider:     provider,
		debounce:     debounce,
		pullInterval: 15 * time.Second,
		grace:        debounce,
		lastSeen:     tracker.Snapshot().LastSynced,
	}
}

// SetPullInterval overrides the background pull cadence.
func (e *Engine) SetPullInterval(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pullInterval = d
}

// SetPrompter installs the first-connect merge prompt.
func (e *Engine) SetPrompter(p Prompter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prompter = p
}

// SetNotify installs the callback for user-visible transient sync errors.
func (e *Engine) SetNotify(fn func(msg string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notify = fn
}

// State returns the engine's current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	logger.Debug("sync: state -> %s", s)
}

func (e *Engine) getLastSeen() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSeen
}

func (e *Engine) setLastSeen(ts string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSeen = ts
}

// report surfaces a transient failure to the user without touching the
// in-memory document.
func (e *Engine) report(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Warn("sync: %s", msg)

	e.mu.Lock()
	fn := e.notify
	e.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

// Connect links the account: acquires a token interactively, fetches the
// profile, runs the one-time reconciliation, and enters the steady state.
func (e *Engine) Connect(ctx context.Context) error {
	e.setState(StateConnecting)

	token, err := e.provider.Token(ctx, true)
	if err != nil {
		e.setState(StateDisconnected)
		return fmt.Errorf("failed to sign in: %w", err)
	}
	if token == "" {
		e.setState(StateDisconnected)
		return errors.New("sign-in produced no token")
	}

	if _, err := e.provider.Profile(ctx); err != nil {
		logger.Warn("sync: profile lookup failed: %v", err)
	}

	e.setState(StateReconciling)
	if err := e.reconcile(ctx); err != nil {
		e.setState(StateDisconnected)
		return err
	}

	e.start()
	return nil
}

// Resume re-enters the steady state in a later session without prompting:
// it requires a silently renewable token and skips reconciliation, since
// the periodic pull converges both sides.
func (e *Engine) Resume(ctx context.Context) error {
	token, err := e.provider.Token(ctx, false)
	if err != nil {
		return err
	}
	if token == "" {
		return errors.New("no stored credential; run connect first")
	}

	e.start()
	return nil
}

// reconcile runs the one-time connect-time merge between the local and the
// remote document.
func (e *Engine) reconcile(ctx context.Context) error {
	local := e.tracker.Snapshot()

	data, err := e.client.Download(ctx)
	switch {
	case errors.Is(err, drive.ErrNoDocument):
		// Brand-new account: seed the remote with whatever we have,
		// synthesizing a start date when the plan has not begun locally.
		if local.StartDate == "" {
			today := time.Now().Format(progress.DateLayout)
			if err := e.tracker.SetStartDate(today); err != nil {
				return err
			}
		}
		return e.push(ctx)
	case err != nil:
		return fmt.Errorf("failed to download remote document: %w", err)
	}

	remote, err := progress.Decode(data)
	if err != nil {
		return fmt.Errorf("remote document is unreadable: %w", err)
	}

	switch {
	case remote.StartDate != "" && local.StartDate != "":
		// Both sides have a started plan; the operator decides.
		e.mu.Lock()
		prompter := e.prompter
		e.mu.Unlock()
		if prompter == nil {
			return errors.New("both local and cloud progress exist; a merge choice is required")
		}
		choice, err := prompter.ChooseMerge(local, remote)
		if err != nil {
			return err
		}
		if choice == MergeAdoptRemote {
			return e.applyRemote(remote)
		}
		return e.push(ctx)
	case remote.StartDate != "":
		return e.applyRemote(remote)
	default:
		// Remote file exists but carries no started plan; overwrite it.
		if local.StartDate == "" {
			today := time.Now().Format(progress.DateLayout)
			if err := e.tracker.SetStartDate(today); err != nil {
				return err
			}
		}
		return e.push(ctx)
	}
}

// start wires mutations to the debounce timer and launches the pull loop.
func (e *Engine) start() {
	e.mu.Lock()
	e.state = StateSteady
	e.stopCh = make(chan struct{})
	interval := e.pullInterval
	stopCh := e.stopCh
	e.mu.Unlock()

	e.tracker.OnChange(e.TriggerPush)

	e.wg.Add(1)
	go e.pullLoop(stopCh, interval)
	logger.Debug("sync: steady state entered (pull every %s)", interval)
}

// pullLoop runs the periodic background pull until the engine stops.
func (e *Engine) pullLoop(stopCh chan struct{}, interval time.Duration) {
	defer e.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			e.Pull(context.Background())
		}
	}
}

// TriggerPush schedules a debounced push. Multiple calls within the
// debounce window reset the timer, so a burst of toggles produces one
// upload. Pushes are suppressed during the post-pull grace window to
// prevent a pull-then-push echo loop.
func (e *Engine) TriggerPush() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateSteady {
		return
	}
	if time.Now().Before(e.suppressUntil) {
		logger.Debug("sync: push suppressed (pull grace window)")
		return
	}

	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.debounce, func() {
		e.mu.Lock()
		suppressed := time.Now().Before(e.suppressUntil)
		e.mu.Unlock()
		if suppressed {
			return
		}
		if err := e.push(context.Background()); err != nil {
			e.report("upload failed: %v", err)
		}
	})

	logger.Debug("sync: debounce timer started/reset (%s)", e.debounce)
}

// Push immediately pushes the current document, cancelling any pending
// debounce timer.
func (e *Engine) Push(ctx context.Context) error {
	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.mu.Unlock()

	return e.push(ctx)
}

// push serializes the in-memory document with a fresh lastSynced timestamp
// and replaces the remote copy wholesale. The timestamp is recorded locally
// only after the upload succeeds.
func (e *Engine) push(ctx context.Context) error {
	doc := e.tracker.Snapshot()
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	doc.LastSynced = ts

	data, err := doc.Encode()
	if err != nil {
		return err
	}
	if err := e.client.Upload(ctx, data); err != nil {
		return err
	}

	if err := e.tracker.SetLastSynced(ts); err != nil {
		logger.Warn("sync: failed to record sync timestamp: %v", err)
	}
	e.setLastSeen(ts)
	logger.Debug("sync: pushed document (lastSynced=%s)", ts)
	return nil
}

// Pull downloads the remote document and applies it only when it is
// strictly newer than the last timestamp this client observed or produced.
// A stale download is discarded silently.
func (e *Engine) Pull(ctx context.Context) {
	data, err := e.client.Download(ctx)
	if errors.Is(err, drive.ErrNoDocument) || errors.Is(err, drive.ErrUnauthenticated) {
		// Nothing synced yet, or the token lapsed; the next cycle retries.
		return
	}
	if err != nil {
		e.report("download failed: %v", err)
		return
	}

	remote, err := progress.Decode(data)
	if err != nil {
		e.report("remote document is unreadable: %v", err)
		return
	}

	if !remote.SyncedAfter(e.getLastSeen()) {
		logger.Debug("sync: discarding stale pull (remote=%s, seen=%s)",
			remote.LastSynced, e.getLastSeen())
		return
	}

	if err := e.applyRemote(remote); err != nil {
		e.report("failed to apply remote document: %v", err)
		return
	}
	logger.Info("sync: applied remote document (lastSynced=%s)", remote.LastSynced)
}

// applyRemote replaces the local document with the remote copy and opens
// the push-suppression grace window.
func (e *Engine) applyRemote(remote *progress.Document) error {
	e.mu.Lock()
	e.suppressUntil = time.Now().Add(e.grace)
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.mu.Unlock()

	if err := e.tracker.ApplyRemote(remote); err != nil {
		return err
	}
	e.setLastSeen(remote.LastSynced)
	return nil
}

// Disconnect pushes the current state once more (best-effort), stops the
// background loops, and clears the credential. Local progress is
// preserved.
func (e *Engine) Disconnect(ctx context.Context) error {
	if token, err := e.provider.Token(ctx, false); err == nil && token != "" {
		if err := e.Push(ctx); err != nil {
			logger.Warn("sync: final push before sign-out failed: %v", err)
		}
	}

	e.Stop()
	e.setLastSeen("")

	if err := e.provider.SignOut(); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	e.setState(StateDisconnected)
	return nil
}

// DeleteEverything removes the remote document (best-effort), clears local
// progress, and signs out.
func (e *Engine) DeleteEverything(ctx context.Context) error {
	e.Stop()

	if err := e.client.Delete(ctx); err != nil {
		logger.Warn("sync: remote delete failed: %v", err)
	}
	if err := e.tracker.Reset(); err != nil {
		return err
	}
	e.setLastSeen("")

	if err := e.provider.SignOut(); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	e.setState(StateDisconnected)
	return nil
}

// Stop cancels the pending debounce timer and halts the pull loop. It is
// safe to call more than once.
func (e *Engine) Stop() {
	e.tracker.OnChange(nil)

	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	stopCh := e.stopCh
	e.stopCh = nil
	e.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	e.wg.Wait()
	logger.Debug("sync: engine stopped")
}
