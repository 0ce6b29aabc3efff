package store

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetSetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	tests := []struct {
		key   string
		value string
	}{
		{KeyStartDate, "2024-01-01"},
		{KeyLanguage, "ru"},
		{KeyAccessToken, "ya29.token"},
		{KeyCompleted, `["1-0","1-1"]`},
	}

	for _, tt := range tests {
		if err := s.Set(tt.key, tt.value); err != nil {
			t.Fatalf("Set(%s) failed: %v", tt.key, err)
		}
		got, err := s.Get(tt.key)
		if err != nil {
			t.Fatalf("Get(%s) failed: %v", tt.key, err)
		}
		if got != tt.value {
			t.Errorf("Get(%s) = %q, want %q", tt.key, got, tt.value)
		}
	}
}

func TestGetMissingKey(t *testing.T) {
	s := openTestStore(t)

	got, err := s.Get("nonexistent")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "" {
		t.Errorf("Get(missing) = %q, want empty", got)
	}
}

func TestSetReplaces(t *testing.T) {
	s := openTestStore(t)

	if err := s.Set(KeyLanguage, "en"); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(KeyLanguage, "ru"); err != nil {
		t.Fatal(err)
	}

	got, _ := s.Get(KeyLanguage)
	if got != "ru" {
		t.Errorf("Get after replace = %q, want ru", got)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)

	s.Set(KeyAccessToken, "tok")
	s.Set(KeyTokenExpiry, "123")

	if err := s.Delete(KeyAccessToken, KeyTokenExpiry); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	for _, key := range []string{KeyAccessToken, KeyTokenExpiry} {
		if got, _ := s.Get(key); got != "" {
			t.Errorf("Get(%s) after delete = %q, want empty", key, got)
		}
	}

	// Deleting an absent key is fine.
	if err := s.Delete("never-existed"); err != nil {
		t.Errorf("Delete(missing) failed: %v", err)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	s := openTestStore(t)

	in := []string{"1-0", "1-1", "2-0"}
	if err := s.SetJSON(KeyCompleted, in); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	var out []string
	found, err := s.GetJSON(KeyCompleted, &out)
	if err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if !found {
		t.Fatal("GetJSON found = false, want true")
	}
	if len(out) != len(in) {
		t.Fatalf("GetJSON returned %d items, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("item %d = %q, want %q", i, out[i], in[i])
		}
	}
}

func TestGetJSONMissing(t *testing.T) {
	s := openTestStore(t)

	var out []string
	found, err := s.GetJSON("missing", &out)
	if err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if found {
		t.Error("GetJSON found = true for missing key")
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Set(KeyStartDate, "2024-03-01"); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, _ := s2.Get(KeyStartDate)
	if got != "2024-03-01" {
		t.Errorf("value after reopen = %q, want 2024-03-01", got)
	}
}
