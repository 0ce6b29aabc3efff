package progress

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ruskoloma/bible365/internal/plan"
	"github.com/ruskoloma/bible365/internal/store"
)

func newTestTracker(t *testing.T) (*Tracker, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	tr, err := Load(s)
	if err != nil {
		t.Fatalf("failed to load tracker: %v", err)
	}
	return tr, s
}

func TestToggleParity(t *testing.T) {
	// A key toggled an odd number of times is completed; an even number of
	// times, not.
	tr, _ := newTestTracker(t)

	toggles := map[string]int{
		"1-0": 3,
		"1-1": 2,
		"2-0": 1,
		"3-0": 4,
	}
	for key, n := range toggles {
		day, index, _ := ParseKey(key)
		for i := 0; i < n; i++ {
			if _, err := tr.Toggle(day, index); err != nil {
				t.Fatalf("Toggle(%s) failed: %v", key, err)
			}
		}
	}

	doc := tr.Snapshot()
	for key, n := range toggles {
		_, done := doc.Completed[key]
		wantDone := n%2 == 1
		if done != wantDone {
			t.Errorf("key %s after %d toggles: done = %v, want %v", key, n, done, wantDone)
		}
	}
}

func TestToggleValidatesRange(t *testing.T) {
	tr, _ := newTestTracker(t)

	tests := []struct {
		name  string
		day   int
		index int
	}{
		{"day zero", 0, 0},
		{"day beyond plan", plan.TotalDays + 1, 0},
		{"negative index", 1, -1},
		{"index beyond day", 1, plan.ReadingCount(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tr.Toggle(tt.day, tt.index); err == nil {
				t.Errorf("Toggle(%d, %d) expected error, got nil", tt.day, tt.index)
			}
		})
	}
}

func TestToggleMirrorsToStore(t *testing.T) {
	tr, s := newTestTracker(t)

	if _, err := tr.Toggle(1, 0); err != nil {
		t.Fatal(err)
	}

	var persisted []string
	found, err := s.GetJSON(store.KeyCompleted, &persisted)
	if err != nil || !found {
		t.Fatalf("completed set not mirrored: found=%v err=%v", found, err)
	}
	if len(persisted) != 1 || persisted[0] != "1-0" {
		t.Errorf("persisted completed = %v, want [1-0]", persisted)
	}
}

func TestMarkDayIdempotent(t *testing.T) {
	tr, _ := newTestTracker(t)

	if err := tr.MarkDay(1, true); err != nil {
		t.Fatal(err)
	}
	first := tr.Snapshot()

	if err := tr.MarkDay(1, true); err != nil {
		t.Fatal(err)
	}
	second := tr.Snapshot()

	if len(first.Completed) != plan.ReadingCount(1) {
		t.Errorf("after MarkDay: %d keys, want %d", len(first.Completed), plan.ReadingCount(1))
	}
	if len(second.Completed) != len(first.Completed) {
		t.Errorf("second MarkDay changed the set: %d != %d", len(second.Completed), len(first.Completed))
	}

	if err := tr.MarkDay(1, false); err != nil {
		t.Fatal(err)
	}
	if n := len(tr.Snapshot().Completed); n != 0 {
		t.Errorf("after unmark: %d keys, want 0", n)
	}
}

func TestSetStartDate(t *testing.T) {
	tr, s := newTestTracker(t)

	if err := tr.SetStartDate("2024-01-01"); err != nil {
		t.Fatalf("SetStartDate failed: %v", err)
	}
	if got := tr.Snapshot().StartDate; got != "2024-01-01" {
		t.Errorf("StartDate = %q, want 2024-01-01", got)
	}
	if got, _ := s.Get(store.KeyStartDate); got != "2024-01-01" {
		t.Errorf("persisted StartDate = %q, want 2024-01-01", got)
	}

	if err := tr.SetStartDate("January 1st"); err == nil {
		t.Error("SetStartDate with malformed date expected error")
	}
}

func TestLoadRestoresState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}

	tr, err := Load(s)
	if err != nil {
		t.Fatal(err)
	}
	tr.SetStartDate("2024-02-01")
	tr.Toggle(1, 0)
	tr.SetLanguage(LanguageRU)
	tr.SetLastSynced("2024-06-01T10:00:00Z")
	s.Close()

	s2, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	tr2, err := Load(s2)
	if err != nil {
		t.Fatal(err)
	}
	doc := tr2.Snapshot()
	if doc.StartDate != "2024-02-01" {
		t.Errorf("StartDate = %q, want 2024-02-01", doc.StartDate)
	}
	if _, ok := doc.Completed["1-0"]; !ok {
		t.Error("completed key 1-0 not restored")
	}
	if doc.Language != LanguageRU {
		t.Errorf("Language = %q, want ru", doc.Language)
	}
	if doc.LastSynced != "2024-06-01T10:00:00Z" {
		t.Errorf("LastSynced = %q, want 2024-06-01T10:00:00Z", doc.LastSynced)
	}
}

func TestApplyRemoteReplacesAllFields(t *testing.T) {
	tr, s := newTestTracker(t)
	tr.SetStartDate("2024-01-01")
	tr.Toggle(1, 0)

	remote := NewDocument()
	remote.StartDate = "2024-03-01"
	remote.Completed["5-0"] = struct{}{}
	remote.Language = LanguageRU
	remote.LastSynced = "2024-06-01T10:00:00Z"

	if err := tr.ApplyRemote(remote); err != nil {
		t.Fatalf("ApplyRemote failed: %v", err)
	}

	doc := tr.Snapshot()
	if doc.StartDate != "2024-03-01" {
		t.Errorf("StartDate = %q, want 2024-03-01", doc.StartDate)
	}
	if _, ok := doc.Completed["1-0"]; ok {
		t.Error("local completed key survived ApplyRemote")
	}
	if _, ok := doc.Completed["5-0"]; !ok {
		t.Error("remote completed key missing after ApplyRemote")
	}
	if doc.Language != LanguageRU {
		t.Errorf("Language = %q, want ru", doc.Language)
	}
	if doc.LastSynced != "2024-06-01T10:00:00Z" {
		t.Errorf("LastSynced = %q, want remote timestamp", doc.LastSynced)
	}

	// Mirrored to the store as well.
	if got, _ := s.Get(store.KeyStartDate); got != "2024-03-01" {
		t.Errorf("persisted StartDate = %q, want 2024-03-01", got)
	}
}

func TestOnChangeFiresForMutationsOnly(t *testing.T) {
	tr, _ := newTestTracker(t)

	fired := 0
	tr.OnChange(func() { fired++ })

	tr.Toggle(1, 0)
	tr.MarkDay(2, true)
	tr.SetStartDate("2024-01-01")
	tr.SetLanguage(LanguageRU)
	if fired != 4 {
		t.Errorf("onChange fired %d times, want 4", fired)
	}

	remote := NewDocument()
	remote.LastSynced = "2024-06-01T10:00:00Z"
	tr.ApplyRemote(remote)
	tr.SetLastSynced("2024-06-01T10:00:01Z")
	if fired != 4 {
		t.Errorf("onChange fired for non-mutation operations: %d, want 4", fired)
	}
}

func TestLastCompletedDay(t *testing.T) {
	tr, _ := newTestTracker(t)

	if got := tr.LastCompletedDay(); got != 0 {
		t.Errorf("empty tracker LastCompletedDay = %d, want 0", got)
	}

	tr.MarkDay(1, true)
	tr.MarkDay(2, true)
	if got := tr.LastCompletedDay(); got != 2 {
		t.Errorf("LastCompletedDay = %d, want 2", got)
	}

	// A gap stops the contiguous prefix even with later days done.
	tr.MarkDay(4, true)
	if got := tr.LastCompletedDay(); got != 2 {
		t.Errorf("LastCompletedDay with gap = %d, want 2", got)
	}

	// A partially completed day does not count.
	tr.Toggle(3, 0)
	if plan.ReadingCount(3) > 1 {
		if got := tr.LastCompletedDay(); got != 2 {
			t.Errorf("LastCompletedDay with partial day = %d, want 2", got)
		}
	}
}

func TestExpectedDay(t *testing.T) {
	tr, _ := newTestTracker(t)

	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	if got := tr.ExpectedDay(now); got != 0 {
		t.Errorf("ExpectedDay without start date = %d, want 0", got)
	}

	tests := []struct {
		name  string
		start string
		want  int
	}{
		{"started today", "2024-01-10", 1},
		{"started nine days ago", "2024-01-01", 10},
		{"start in the future clamps to 1", "2024-02-01", 1},
		{"start over a year ago clamps to 365", "2022-01-01", plan.TotalDays},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tr.SetStartDate(tt.start); err != nil {
				t.Fatal(err)
			}
			if got := tr.ExpectedDay(now); got != tt.want {
				t.Errorf("ExpectedDay(start=%s) = %d, want %d", tt.start, got, tt.want)
			}
		})
	}
}

func TestReset(t *testing.T) {
	tr, s := newTestTracker(t)
	tr.SetStartDate("2024-01-01")
	tr.Toggle(1, 0)
	tr.SetLanguage(LanguageRU)
	tr.SetLastSynced("2024-06-01T10:00:00Z")

	if err := tr.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	doc := tr.Snapshot()
	if doc.StartDate != "" || len(doc.Completed) != 0 || doc.LastSynced != "" {
		t.Errorf("Reset left state behind: %+v", doc)
	}
	if doc.Language != LanguageRU {
		t.Errorf("Reset should preserve language, got %q", doc.Language)
	}
	if got, _ := s.Get(store.KeyStartDate); got != "" {
		t.Errorf("persisted start date not cleared: %q", got)
	}
}

func TestReloadPicksUpExternalWrites(t *testing.T) {
	tr, s := newTestTracker(t)
	tr.SetStartDate("2024-01-01")

	fired := 0
	tr.OnChange(func() { fired++ })

	// Another process writes the store directly.
	other, err := Load(s)
	if err != nil {
		t.Fatalf("failed to load second tracker: %v", err)
	}
	if _, err := other.Toggle(5, 0); err != nil {
		t.Fatal(err)
	}

	if err := tr.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if _, ok := tr.Snapshot().Completed["5-0"]; !ok {
		t.Error("Reload did not pick up the external toggle")
	}
	if fired != 1 {
		t.Errorf("expected one change notification, got %d", fired)
	}

	// Reloading an unchanged store stays quiet.
	if err := tr.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if fired != 1 {
		t.Errorf("no-op reload fired the callback, got %d notifications", fired)
	}
}
