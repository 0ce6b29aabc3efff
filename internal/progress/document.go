// Package progress defines the reading-progress document and its mutations.
package progress

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format for the plan start date.
const DateLayout = "2006-01-02"

// Language is the persisted UI language preference.
type Language string

const (
	// LanguageEN selects English book names.
	LanguageEN Language = "en"
	// LanguageRU selects Russian book names.
	LanguageRU Language = "ru"
)

// ParseLanguage validates a language string.
func ParseLanguage(s string) (Language, error) {
	switch Language(s) {
	case LanguageEN, LanguageRU:
		return Language(s), nil
	default:
		return LanguageEN, fmt.Errorf("unknown language %q: valid languages are en, ru", s)
	}
}

// Key builds an item key identifying one reading as "<day>-<index>".
func Key(day, index int) string {
	return strconv.Itoa(day) + "-" + strconv.Itoa(index)
}

// ParseKey splits an item key into its plan day and reading index.
// Only structural parsing is performed; range checks are the caller's job.
func ParseKey(key string) (day, index int, err error) {
	parts := strings.SplitN(key, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid item key %q: must be <day>-<index>", key)
	}
	day, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid item key %q: %w", key, err)
	}
	index, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid item key %q: %w", key, err)
	}
	return day, index, nil
}

// Document is the progress snapshot synced between local and remote storage.
// StartDate is "" when no plan has been started; LastSynced is "" when the
// document has never been written to the remote store.
type Document struct {
	StartDate  string
	Completed  map[string]struct{}
	Language   Language
	LastSynced string
}

// NewDocument returns an empty document with the default language.
func NewDocument() *Document {
	return &Document{
		Completed: make(map[string]struct{}),
		Language:  LanguageEN,
	}
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := &Document{
		StartDate:  d.StartDate,
		Completed:  make(map[string]struct{}, len(d.Completed)),
		Language:   d.Language,
		LastSynced: d.LastSynced,
	}
	for k := range d.Completed {
		out.Completed[k] = struct{}{}
	}
	return out
}

// CompletedKeys returns the completed set as a sorted slice.
func (d *Document) CompletedKeys() []string {
	keys := make([]string, 0, len(d.Completed))
	for k := range d.Completed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// wireDocument is the JSON shape stored in the remote file.
type wireDocument struct {
	StartDate  *string  `json:"startDate"`
	Completed  []string `json:"completed"`
	Language   string   `json:"language"`
	LastSynced string   `json:"lastSynced"`
}

// Encode serializes the document to its wire JSON. The completed set is
// sorted so that encoding the same document twice yields identical bytes.
func (d *Document) Encode() ([]byte, error) {
	w := wireDocument{
		Completed:  d.CompletedKeys(),
		Language:   string(d.Language),
		LastSynced: d.LastSynced,
	}
	if d.StartDate != "" {
		w.StartDate = &d.StartDate
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return data, nil
}

// Decode parses wire JSON into a document. Malformed item keys are dropped
// rather than rejected; an unknown language falls back to English.
func Decode(data []byte) (*Document, error) {
	var w wireDocument
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}

	d := NewDocument()
	if w.StartDate != nil {
		d.StartDate = *w.StartDate
	}
	for _, key := range w.Completed {
		if _, _, err := ParseKey(key); err != nil {
			continue
		}
		d.Completed[key] = struct{}{}
	}
	if lang, err := ParseLanguage(w.Language); err == nil {
		d.Language = lang
	}
	d.LastSynced = w.LastSynced
	return d, nil
}

// SyncedAfter reports whether the document's LastSynced timestamp is
// strictly newer than the given one. An unparseable or empty timestamp on
// either side counts as older.
func (d *Document) SyncedAfter(other string) bool {
	mine, err := time.Parse(time.RFC3339, d.LastSynced)
	if err != nil {
		return false
	}
	if other == "" {
		return true
	}
	theirs, err := time.Parse(time.RFC3339, other)
	if err != nil {
		return true
	}
	return mine.After(theirs)
}
