package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/ruskoloma/bible365/internal/plan"
	"github.com/ruskoloma/bible365/internal/store"
)

// Tracker owns the in-memory progress document and mirrors every mutation
// into the local store synchronously. An optional change callback lets the
// sync engine arm its debounce timer, mirroring how edits reach the teacher
// of this pattern: mutate, persist, notify.
type Tracker struct {
	mu       sync.Mutex
	doc      *Document
	store    *store.Store
	onChange func()
}

// Load reads the persisted progress fields from the store and returns a
// tracker over them. Absent keys leave the document empty.
func Load(s *store.Store) (*Tracker, error) {
	doc := NewDocument()

	startDate, err := s.Get(store.KeyStartDate)
	if err != nil {
		return nil, err
	}
	doc.StartDate = startDate

	var completed []string
	if _, err := s.GetJSON(store.KeyCompleted, &completed); err != nil {
		return nil, err
	}
	for _, key := range completed {
		if _, _, err := ParseKey(key); err == nil {
			doc.Completed[key] = struct{}{}
		}
	}

	langRaw, err := s.Get(store.KeyLanguage)
	if err != nil {
		return nil, err
	}
	if lang, err := ParseLanguage(langRaw); err == nil {
		doc.Language = lang
	}

	lastSynced, err := s.Get(store.KeyLastSynced)
	if err != nil {
		return nil, err
	}
	doc.LastSynced = lastSynced

	return &Tracker{doc: doc, store: s}, nil
}

// OnChange registers a callback fired after every user-visible mutation.
// It is not fired when a remote document is applied.
func (t *Tracker) OnChange(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

// Snapshot returns a copy of the current document.
func (t *Tracker) Snapshot() *Document {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.doc.Clone()
}

// Reload re-reads the document from the store, picking up writes made by
// another process. The change callback fires only when the stored document
// actually differs from the in-memory one.
func (t *Tracker) Reload() error {
	fresh, err := Load(t.store)
	if err != nil {
		return err
	}

	t.mu.Lock()
	before, err := t.doc.Encode()
	if err != nil {
		t.mu.Unlock()
		return err
	}
	after, err := fresh.doc.Encode()
	if err != nil {
		t.mu.Unlock()
		return err
	}
	changed := string(before) != string(after)
	t.doc = fresh.doc
	t.mu.Unlock()

	if changed {
		t.notify()
	}
	return nil
}

// notify fires the change callback outside the lock.
func (t *Tracker) notify() {
	t.mu.Lock()
	fn := t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// validateItem checks an item against the plan's defined days and per-day
// reading counts.
func validateItem(day, index int) error {
	count := plan.ReadingCount(day)
	if count == 0 {
		return fmt.Errorf("day %d is outside the reading plan", day)
	}
	if index < 0 || index >= count {
		return fmt.Errorf("day %d has %d readings, index %d out of range", day, count, index)
	}
	return nil
}

// Toggle flips the completion state of one reading and returns the new
// state.
func (t *Tracker) Toggle(day, index int) (bool, error) {
	if err := validateItem(day, index); err != nil {
		return false, err
	}

	t.mu.Lock()
	key := Key(day, index)
	_, wasDone := t.doc.Completed[key]
	if wasDone {
		delete(t.doc.Completed, key)
	} else {
		t.doc.Completed[key] = struct{}{}
	}
	err := t.store.SetJSON(store.KeyCompleted, t.doc.CompletedKeys())
	t.mu.Unlock()
	if err != nil {
		return !wasDone, err
	}

	t.notify()
	return !wasDone, nil
}

// MarkDay sets every reading of a plan day to done (or not done). Marking
// an already-marked day is a no-op beyond the store write.
func (t *Tracker) MarkDay(day int, done bool) error {
	count := plan.ReadingCount(day)
	if count == 0 {
		return fmt.Errorf("day %d is outside the reading plan", day)
	}

	t.mu.Lock()
	for i := 0; i < count; i++ {
		key := Key(day, i)
		if done {
			t.doc.Completed[key] = struct{}{}
		} else {
			delete(t.doc.Completed, key)
		}
	}
	err := t.store.SetJSON(store.KeyCompleted, t.doc.CompletedKeys())
	t.mu.Unlock()
	if err != nil {
		return err
	}

	t.notify()
	return nil
}

// SetStartDate anchors day 1 of the plan. The date must be in 2006-01-02
// form.
func (t *Tracker) SetStartDate(date string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("invalid start date %q: %w", date, err)
	}

	t.mu.Lock()
	t.doc.StartDate = date
	err := t.store.Set(store.KeyStartDate, date)
	t.mu.Unlock()
	if err != nil {
		return err
	}

	t.notify()
	return nil
}

// SetLanguage switches the persisted language preference.
func (t *Tracker) SetLanguage(lang Language) error {
	t.mu.Lock()
	t.doc.Language = lang
	err := t.store.Set(store.KeyLanguage, string(lang))
	t.mu.Unlock()
	if err != nil {
		return err
	}

	t.notify()
	return nil
}

// Reset clears the start date, the completed set, and the sync timestamp.
// The language preference survives a reset.
func (t *Tracker) Reset() error {
	t.mu.Lock()
	t.doc.StartDate = ""
	t.doc.Completed = make(map[string]struct{})
	t.doc.LastSynced = ""
	err := t.store.Delete(store.KeyStartDate, store.KeyCompleted, store.KeyLastSynced)
	t.mu.Unlock()
	if err != nil {
		return err
	}

	t.notify()
	return nil
}

// SetLastSynced records the timestamp of the last successful remote write.
// It does not fire the change callback.
func (t *Tracker) SetLastSynced(ts string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.doc.LastSynced = ts
	return t.store.Set(store.KeyLastSynced, ts)
}

// ApplyRemote replaces all four document fields with the remote copy in one
// step and mirrors them to the store. The change callback is deliberately
// not fired; the sync engine guards against push echo separately.
func (t *Tracker) ApplyRemote(remote *Document) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.doc = remote.Clone()

	if err := t.store.Set(store.KeyStartDate, t.doc.StartDate); err != nil {
		return err
	}
	if err := t.store.SetJSON(store.KeyCompleted, t.doc.CompletedKeys()); err != nil {
		return err
	}
	if err := t.store.Set(store.KeyLanguage, string(t.doc.Language)); err != nil {
		return err
	}
	return t.store.Set(store.KeyLastSynced, t.doc.LastSynced)
}

// LastCompletedDay returns the largest plan day such that every day up to
// and including it has all of its readings completed. Returns 0 when day 1
// is not fully done.
func (t *Tracker) LastCompletedDay() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	for day := 1; day <= plan.TotalDays; day++ {
		count := plan.ReadingCount(day)
		for i := 0; i < count; i++ {
			if _, ok := t.doc.Completed[Key(day, i)]; !ok {
				return day - 1
			}
		}
	}
	return plan.TotalDays
}

// ExpectedDay returns the plan day the reader should be on as of now, based
// on days elapsed since the start date. Clamped to [1, TotalDays]; returns
// 0 when no start date is set.
func (t *Tracker) ExpectedDay(now time.Time) int {
	t.mu.Lock()
	start := t.doc.StartDate
	t.mu.Unlock()

	if start == "" {
		return 0
	}
	startDate, err := time.Parse(DateLayout, start)
	if err != nil {
		return 0
	}

	days := int(now.Sub(startDate).Hours()/24) + 1
	if days < 1 {
		return 1
	}
	if days > plan.TotalDays {
		return plan.TotalDays
	}
	return days
}
