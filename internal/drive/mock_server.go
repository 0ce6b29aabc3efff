package drive

import (
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// MockServer provides a fake remote file API for testing.
type MockServer struct {
	*httptest.Server
	mu      sync.RWMutex
	nextID  int
	files   map[string]*mockFile // id -> file
	failAll bool
}

type mockFile struct {
	ID      string
	Name    string
	Content []byte
	Trashed bool
}

// NewMockServer creates a mock file API server.
func NewMockServer() *MockServer {
	m := &MockServer{
		nextID: 1,
		files:  make(map[string]*mockFile),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/drive/v3/files", m.handleList)
	mux.HandleFunc("/drive/v3/files/", m.handleFile)
	mux.HandleFunc("/upload/drive/v3/files", m.handleCreate)
	mux.HandleFunc("/upload/drive/v3/files/", m.handleUpdate)

	m.Server = httptest.NewServer(m.withChecks(mux))
	return m
}

// withChecks enforces bearer auth and failure injection on every request.
func (m *MockServer) withChecks(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		failAll := m.failAll
		m.mu.RUnlock()
		if failAll {
			http.Error(w, "backend unavailable", http.StatusInternalServerError)
			return
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SetFailAll makes every subsequent request fail with a 500 until reset.
func (m *MockServer) SetFailAll(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAll = fail
}

// PutFile seeds a file directly (for test setup) and returns its id.
func (m *MockServer) PutFile(name string, content []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := "file-" + strconv.Itoa(m.nextID)
	m.nextID++
	m.files[id] = &mockFile{ID: id, Name: name, Content: content}
	return id
}

// SetFileContent overwrites a file's content in place (for test setup).
func (m *MockServer) SetFileContent(id string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.files[id]; ok {
		f.Content = content
	}
}

// TrashFile marks a file as trashed (for test setup).
func (m *MockServer) TrashFile(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.files[id]; ok {
		f.Trashed = true
	}
}

// FileContent returns a file's content, or nil (for test assertions).
func (m *MockServer) FileContent(id string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if f, ok := m.files[id]; ok {
		return append([]byte(nil), f.Content...)
	}
	return nil
}

// FileCount returns the number of live files (for test assertions).
func (m *MockServer) FileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, f := range m.files {
		if !f.Trashed {
			n++
		}
	}
	return n
}

// Reset clears all files.
func (m *MockServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files = make(map[string]*mockFile)
}

func (m *MockServer) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// The only query this server understands is the fixed-name search.
	q := r.URL.Query().Get("q")

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out fileList
	for _, f := range m.files {
		if f.Trashed {
			continue
		}
		if q != "" && !strings.Contains(q, "'"+f.Name+"'") {
			continue
		}
		out.Files = append(out.Files, fileMeta{ID: f.ID, Name: f.Name})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (m *MockServer) handleFile(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/drive/v3/files/")

	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[id]
	if !ok || f.Trashed {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		w.Write(f.Content)
	case http.MethodDelete:
		delete(m.files, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (m *MockServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		http.Error(w, "expected multipart body", http.StatusBadRequest)
		return
	}

	mr := multipart.NewReader(r.Body, params["boundary"])

	metaPart, err := mr.NextPart()
	if err != nil {
		http.Error(w, "missing metadata part", http.StatusBadRequest)
		return
	}
	var meta struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(metaPart).Decode(&meta); err != nil {
		http.Error(w, "invalid metadata", http.StatusBadRequest)
		return
	}

	contentPart, err := mr.NextPart()
	if err != nil {
		http.Error(w, "missing content part", http.StatusBadRequest)
		return
	}
	content, err := io.ReadAll(contentPart)
	if err != nil {
		http.Error(w, "unreadable content", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	id := "file-" + strconv.Itoa(m.nextID)
	m.nextID++
	m.files[id] = &mockFile{ID: id, Name: meta.Name, Content: content}
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(fileMeta{ID: id, Name: meta.Name})
}

func (m *MockServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/upload/drive/v3/files/")

	content, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "unreadable content", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[id]
	if !ok || f.Trashed {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	f.Content = content

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(fileMeta{ID: f.ID, Name: f.Name})
}
