package main

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ruskoloma/bible365/internal/plan"
	"github.com/ruskoloma/bible365/internal/progress"
	"github.com/ruskoloma/bible365/internal/store"
)

func TestParseDay(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		want        int
		wantErr     bool
		errContains string
	}{
		{name: "first day", input: "1", want: 1},
		{name: "last day", input: "365", want: 365},
		{name: "middle", input: "200", want: 200},
		{name: "zero", input: "0", wantErr: true, errContains: "out of range"},
		{name: "negative", input: "-3", wantErr: true, errContains: "out of range"},
		{name: "past the end", input: "366", wantErr: true, errContains: "out of range"},
		{name: "not a number", input: "abc", wantErr: true, errContains: "must be a number"},
		{name: "empty", input: "", wantErr: true, errContains: "must be a number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDay(tt.input)

			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseDay(%q) expected error, got nil", tt.input)
				}
				if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("parseDay(%q) error = %q, want error containing %q", tt.input, err.Error(), tt.errContains)
				}
				return
			}

			if err != nil {
				t.Fatalf("parseDay(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("parseDay(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseReading(t *testing.T) {
	count := plan.ReadingCount(1)
	if count < 1 {
		t.Fatal("day 1 has no readings")
	}

	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{name: "first reading", input: "1", want: 0},
		{name: "last reading", input: "2", want: 1},
		{name: "zero is invalid", input: "0", wantErr: true},
		{name: "past the count", input: "99", wantErr: true},
		{name: "not a number", input: "x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseReading(tt.input, 1)

			if tt.wantErr {
				if err == nil {
					t.Errorf("parseReading(%q, 1) expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseReading(%q, 1) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("parseReading(%q, 1) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestRenderDay(t *testing.T) {
	doc := progress.NewDocument()
	doc.Completed[progress.Key(1, 0)] = struct{}{}

	lines := renderDay(doc, 1)
	if len(lines) != plan.ReadingCount(1) {
		t.Fatalf("renderDay produced %d lines, want %d", len(lines), plan.ReadingCount(1))
	}
	if !strings.HasPrefix(lines[0], "[x] 1. ") {
		t.Errorf("completed reading not marked: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "[ ] 2. ") {
		t.Errorf("pending reading wrongly marked: %q", lines[1])
	}
	if !strings.Contains(lines[0], "Genesis") {
		t.Errorf("day 1 should start in Genesis, got %q", lines[0])
	}
}

func TestRenderDayRussian(t *testing.T) {
	doc := progress.NewDocument()
	doc.Language = progress.LanguageRU

	lines := renderDay(doc, 1)
	if len(lines) == 0 {
		t.Fatal("renderDay produced no lines")
	}
	if !strings.Contains(lines[0], "Бытие") {
		t.Errorf("expected Russian book name, got %q", lines[0])
	}
}

func TestRenderDayOutOfRange(t *testing.T) {
	if lines := renderDay(progress.NewDocument(), 400); lines != nil {
		t.Errorf("expected nil for an out-of-range day, got %v", lines)
	}
}

func TestCheckbox(t *testing.T) {
	if checkbox(true) != "[x]" {
		t.Errorf("checkbox(true) = %q", checkbox(true))
	}
	if checkbox(false) != "[ ]" {
		t.Errorf("checkbox(false) = %q", checkbox(false))
	}
}

func TestSyncedAgo(t *testing.T) {
	if got := syncedAgo(""); got != "never" {
		t.Errorf("syncedAgo(\"\") = %q, want \"never\"", got)
	}

	recent := time.Now().Add(-2 * time.Minute).UTC().Format(time.RFC3339Nano)
	if got := syncedAgo(recent); !strings.Contains(got, "ago") {
		t.Errorf("syncedAgo(recent) = %q, want a relative time", got)
	}

	// An unparseable value passes through rather than crashing.
	if got := syncedAgo("garbage"); got != "garbage" {
		t.Errorf("syncedAgo(\"garbage\") = %q", got)
	}
}

func TestTotalReadings(t *testing.T) {
	total := totalReadings()
	if total < plan.TotalDays {
		t.Errorf("totalReadings() = %d, want at least one reading per day", total)
	}

	// Two tracks a day means at least 2*365 entries.
	if total < 2*plan.TotalDays {
		t.Errorf("totalReadings() = %d, want at least two readings per day", total)
	}
}

func TestEnsureDeviceID(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	first, err := ensureDeviceID(s)
	if err != nil {
		t.Fatalf("ensureDeviceID() unexpected error: %v", err)
	}
	if first == "" {
		t.Fatal("ensureDeviceID() returned empty id")
	}

	second, err := ensureDeviceID(s)
	if err != nil {
		t.Fatalf("ensureDeviceID() unexpected error on second call: %v", err)
	}
	if second != first {
		t.Errorf("device id changed between calls: %q then %q", first, second)
	}
}

// Test CLI argument validation through cobra.

func TestToggleCmd_RequiresTwoArgs(t *testing.T) {
	rootCmd.SetArgs([]string{"toggle", "1"})
	if err := rootCmd.Execute(); err == nil {
		t.Error("toggle command should fail with one argument")
	}
}

func TestDayCmd_RequiresOneArg(t *testing.T) {
	rootCmd.SetArgs([]string{"day"})
	if err := rootCmd.Execute(); err == nil {
		t.Error("day command should fail with no arguments")
	}
}

func TestLangCmd_RequiresOneArg(t *testing.T) {
	rootCmd.SetArgs([]string{"lang"})
	if err := rootCmd.Execute(); err == nil {
		t.Error("lang command should fail with no arguments")
	}
}

func TestStatusCmd_RejectsArgs(t *testing.T) {
	rootCmd.SetArgs([]string{"status", "extra"})
	if err := rootCmd.Execute(); err == nil {
		t.Error("status command should fail with an argument")
	}
}

func BenchmarkRenderDay(b *testing.B) {
	doc := progress.NewDocument()
	for i := 0; i < b.N; i++ {
		renderDay(doc, 180)
	}
}
