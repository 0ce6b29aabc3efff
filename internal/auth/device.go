package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	defaultAuthBaseURL = "https://oauth2.googleapis.com"
	defaultProfileURL  = "https://www.googleapis.com/oauth2/v3/userinfo"

	// Drive app-data scope plus basic identity.
	oauthScope = "https://www.googleapis.com/auth/drive.appdata openid email profile"
)

// DeviceFlow implements ConsentFlow using the OAuth device authorization
// grant: the interactive path prints a verification URL and user code, then
// polls the token endpoint; the silent path exchanges a refresh token.
type DeviceFlow struct {
	authBaseURL string
	profileURL  string
	httpClient  *http.Client

	// Notify shows the verification URL and user code to the user.
	// Defaults to printing on stderr.
	Notify func(verificationURL, userCode string)
}

// NewDeviceFlow creates the production consent flow.
func NewDeviceFlow() *DeviceFlow {
	return &DeviceFlow{
		authBaseURL: defaultAuthBaseURL,
		profileURL:  defaultProfileURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// NewDeviceFlowWithBaseURL creates a consent flow against custom endpoints
// (for testing).
func NewDeviceFlowWithBaseURL(authBaseURL, profileURL string) *DeviceFlow {
	return &DeviceFlow{
		authBaseURL: authBaseURL,
		profileURL:  profileURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// deviceCodeResponse is the token endpoint's device authorization response.
type deviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURL string `json:"verification_url"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// tokenResponse is the token endpoint's grant response.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Error        string `json:"error"`
}

// postForm sends a form-encoded POST and decodes the JSON response into v.
func (f *DeviceFlow) postForm(ctx context.Context, endpoint string, form url.Values, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode response: %s - %w", resp.Status, err)
	}
	return nil
}

// Interactive runs the device authorization grant to completion.
func (f *DeviceFlow) Interactive(ctx context.Context, clientID string) (*Grant, error) {
	var dc deviceCodeResponse
	err := f.postForm(ctx, f.authBaseURL+"/device/code", url.Values{
		"client_id": {clientID},
		"scope":     {oauthScope},
	}, &dc)
	if err != nil {
		return nil, fmt.Errorf("device code request failed: %w", err)
	}
	if dc.DeviceCode == "" {
		return nil, fmt.Errorf("device code request rejected")
	}

	notify := f.Notify
	if notify == nil {
		notify = func(verificationURL, userCode string) {
			fmt.Fprintf(os.Stderr, "Open %s and enter code %s\n", verificationURL, userCode)
		}
	}
	notify(dc.VerificationURL, dc.UserCode)

	interval := time.Duration(dc.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	deadline := time.Now().Add(time.Duration(dc.ExpiresIn) * time.Second)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("consent flow expired before the code was entered")
		}

		var tr tokenResponse
		err := f.postForm(ctx, f.authBaseURL+"/token", url.Values{
			"client_id":   {clientID},
			"device_code": {dc.DeviceCode},
			"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
		}, &tr)
		if err != nil {
			return nil, err
		}

		switch tr.Error {
		case "":
			return &Grant{
				AccessToken:  tr.AccessToken,
				RefreshToken: tr.RefreshToken,
				ExpiresIn:    tr.ExpiresIn,
			}, nil
		case "authorization_pending":
			// Keep polling.
		case "slow_down":
			interval += time.Second
		default:
			return nil, fmt.Errorf("consent refused: %s", tr.Error)
		}
	}
}

// Silent exchanges a refresh token for a fresh access token.
func (f *DeviceFlow) Silent(ctx context.Context, clientID, refreshToken string) (*Grant, error) {
	var tr tokenResponse
	err := f.postForm(ctx, f.authBaseURL+"/token", url.Values{
		"client_id":     {clientID},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	}, &tr)
	if err != nil {
		return nil, err
	}
	if tr.Error != "" {
		return nil, fmt.Errorf("token renewal rejected: %s", tr.Error)
	}
	return &Grant{AccessToken: tr.AccessToken, ExpiresIn: tr.ExpiresIn}, nil
}

// FetchProfile looks up the account profile for a bearer token.
func (f *DeviceFlow) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.profileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("profile lookup failed: %s - %s", resp.Status, string(body))
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return &profile, nil
}
