// Package drive provides the client for the remote document store: a single
// JSON file held in the application-private folder of the user's cloud
// drive.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sync"
	"time"

	"github.com/ruskoloma/bible365/internal/logger"
	"github.com/ruskoloma/bible365/internal/store"
)

const (
	apiBaseURL = "https://www.googleapis.com"

	// FileName is the fixed name of the progress document inside the
	// app-private folder. Exactly one such file exists per account.
	FileName = "bible365.json"

	appFolder = "appDataFolder"
)

var (
	// ErrUnauthenticated means no usable bearer token is available.
	ErrUnauthenticated = errors.New("no usable bearer token")
	// ErrNoDocument means no remote document exists yet. This is the
	// expected state for a brand-new account, not a failure.
	ErrNoDocument = errors.New("no remote document")
)

// TokenSource supplies a bearer token. An empty token with a nil error
// means "not authenticated right now".
type TokenSource interface {
	Token(ctx context.Context, interactive bool) (string, error)
}

// Client talks to the remote file API. It caches the resolved file
// identifier (in memory and in the local store) to avoid repeated search
// calls; the identifier is private to the client.
type Client struct {
	tokens     TokenSource
	store      *store.Store
	baseURL    string
	httpClient *http.Client

	mu     sync.Mutex
	fileID string
}

// New creates a client against the production API.
func New(tokens TokenSource, s *store.Store) *Client {
	return NewWithBaseURL(tokens, s, apiBaseURL)
}

// NewWithBaseURL creates a client against a custom base URL (for testing).
func NewWithBaseURL(tokens TokenSource, s *store.Store, baseURL string) *Client {
	c := &Client{
		tokens:     tokens,
		store:      s,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	if id, err := s.Get(store.KeyFileID); err == nil {
		c.fileID = id
	}
	return c
}

// cachedID returns the cached file identifier, or "".
func (c *Client) cachedID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fileID
}

// setCachedID updates the in-memory and persisted file identifier.
func (c *Client) setCachedID(id string) {
	c.mu.Lock()
	c.fileID = id
	c.mu.Unlock()

	var err error
	if id == "" {
		err = c.store.Delete(store.KeyFileID)
	} else {
		err = c.store.Set(store.KeyFileID, id)
	}
	if err != nil {
		logger.Warn("drive: failed to persist file id: %v", err)
	}
}

// token resolves a bearer token for one call.
func (c *Client) token(ctx context.Context) (string, error) {
	token, err := c.tokens.Token(ctx, false)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", ErrUnauthenticated
	}
	return token, nil
}

// doRequest performs an HTTP request with authentication.
func (c *Client) doRequest(ctx context.Context, method, rawURL, contentType string, body io.Reader) (*http.Response, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// fileList is the search endpoint's response shape.
type fileList struct {
	Files []fileMeta `json:"files"`
}

type fileMeta struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Locate searches the app-private folder for the fixed filename and returns
// its identifier. Trashed files never match. Returns ErrNoDocument when no
// file exists.
func (c *Client) Locate(ctx context.Context) (string, error) {
	query := url.Values{
		"spaces": {appFolder},
		"q":      {fmt.Sprintf("name = '%s' and trashed = false", FileName)},
		"fields": {"files(id,name)"},
	}
	resp, err := c.doRequest(ctx, http.MethodGet,
		c.baseURL+"/drive/v3/files?"+query.Encode(), "", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("file search failed: %s - %s", resp.Status, string(body))
	}

	var list fileList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return "", fmt.Errorf("failed to decode file list: %w", err)
	}
	if len(list.Files) == 0 {
		return "", ErrNoDocument
	}

	id := list.Files[0].ID
	c.setCachedID(id)
	return id, nil
}

// resolveID returns the cached identifier or runs a locate.
func (c *Client) resolveID(ctx context.Context) (string, error) {
	if id := c.cachedID(); id != "" {
		return id, nil
	}
	return c.Locate(ctx)
}

// Download fetches the remote document's content. Returns ErrNoDocument
// when no file exists; any other failure also clears the cached identifier
// so the next call re-resolves it.
func (c *Client) Download(ctx context.Context) ([]byte, error) {
	id, err := c.resolveID(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, http.MethodGet,
		c.baseURL+"/drive/v3/files/"+url.PathEscape(id)+"?alt=media", "", nil)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return nil, err
		}
		c.setCachedID("")
		return nil, ErrNoDocument
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.setCachedID("")
		return nil, ErrNoDocument
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		logger.Warn("drive: download failed: %s - %s", resp.Status, string(body))
		c.setCachedID("")
		return nil, ErrNoDocument
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return content, nil
}

// Upload replaces the remote document wholesale, creating the file on first
// write. A locate always runs before a create so a second device never
// produces a duplicate file.
func (c *Client) Upload(ctx context.Context, content []byte) error {
	id, err := c.resolveID(ctx)
	if err != nil && !errors.Is(err, ErrNoDocument) {
		return err
	}

	if id == "" {
		return c.create(ctx, content)
	}
	return c.update(ctx, id, content)
}

// create uploads a new file into the app-private folder via a multipart
// request carrying metadata and content.
func (c *Client) create(ctx context.Context, content []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := w.CreatePart(metaHeader)
	if err != nil {
		return fmt.Errorf("failed to build metadata part: %w", err)
	}
	meta := map[string]interface{}{
		"name":    FileName,
		"parents": []string{appFolder},
	}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	contentHeader := textproto.MIMEHeader{}
	contentHeader.Set("Content-Type", "application/json")
	contentPart, err := w.CreatePart(contentHeader)
	if err != nil {
		return fmt.Errorf("failed to build content part: %w", err)
	}
	if _, err := contentPart.Write(content); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost,
		c.baseURL+"/upload/drive/v3/files?uploadType=multipart",
		"multipart/related; boundary="+w.Boundary(), &buf)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("file create failed: %s - %s", resp.Status, string(body))
	}

	var created fileMeta
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return fmt.Errorf("failed to decode create response: %w", err)
	}
	c.setCachedID(created.ID)
	logger.Debug("drive: created remote document %s", created.ID)
	return nil
}

// update replaces the content of an existing file in place.
func (c *Client) update(ctx context.Context, id string, content []byte) error {
	resp, err := c.doRequest(ctx, http.MethodPatch,
		c.baseURL+"/upload/drive/v3/files/"+url.PathEscape(id)+"?uploadType=media",
		"application/json", bytes.NewReader(content))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// The file vanished under us (deleted from another device).
		// Re-create it.
		c.setCachedID("")
		return c.create(ctx, content)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("file update failed: %s - %s", resp.Status, string(body))
	}

	var updated fileMeta
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		return fmt.Errorf("failed to decode update response: %w", err)
	}
	c.setCachedID(updated.ID)
	return nil
}

// Delete removes the remote document and clears the cached identifier.
// Returns nil when no document exists.
func (c *Client) Delete(ctx context.Context) error {
	id, err := c.resolveID(ctx)
	if errors.Is(err, ErrNoDocument) {
		return nil
	}
	if err != nil {
		return err
	}

	resp, err := c.doRequest(ctx, http.MethodDelete,
		c.baseURL+"/drive/v3/files/"+url.PathEscape(id), "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK &&
		resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("file delete failed: %s - %s", resp.Status, string(body))
	}

	c.setCachedID("")
	logger.Debug("drive: deleted remote document %s", id)
	return nil
}
