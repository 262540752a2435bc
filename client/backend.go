package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// HTTPBackend talks to the authentication service over its HTTP API.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

// NewHTTPBackend creates a backend client for the given base URL.
func NewHTTPBackend(baseURL string, httpClient *http.Client) *HTTPBackend {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
}

// BackendError is a non-2xx response from the service, carrying the
// protocol error code when the service supplied one.
type BackendError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *BackendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// GenerateMessage requests a fresh authentication message.
func (b *HTTPBackend) GenerateMessage(ctx context.Context, walletAddress string) (*Message, error) {
	var resp struct {
		Message   string `json:"message"`
		Nonce     string `json:"nonce"`
		Timestamp int64  `json:"timestamp"`
	}
	err := b.post(ctx, "/auth/message", map[string]string{"address": walletAddress}, &resp)
	if err != nil {
		return nil, err
	}
	return &Message{Message: resp.Message, Nonce: resp.Nonce, Timestamp: resp.Timestamp}, nil
}

// VerifyAndLogin submits the signature for verification.
func (b *HTTPBackend) VerifyAndLogin(ctx context.Context, params VerifyParams) (*Credentials, error) {
	req := map[string]interface{}{
		"address":        params.WalletAddress,
		"signature":      params.Signature,
		"signature_type": string(params.SignatureType),
	}
	if params.ChainID != 0 {
		req["chain_id"] = params.ChainID
	}
	if params.DeviceID != "" {
		req["device_id"] = params.DeviceID
	}
	if params.Platform != "" {
		req["platform"] = params.Platform
	}

	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		User         struct {
			WalletAddress string `json:"walletAddress"`
		} `json:"user"`
	}
	if err := b.post(ctx, "/auth/verify", req, &resp); err != nil {
		return nil, err
	}
	return &Credentials{
		AccessToken:   resp.AccessToken,
		RefreshToken:  resp.RefreshToken,
		WalletAddress: resp.User.WalletAddress,
	}, nil
}

// Logout invalidates a refresh token.
func (b *HTTPBackend) Logout(ctx context.Context, refreshToken string) error {
	return b.post(ctx, "/auth/logout", map[string]string{"refresh_token": refreshToken}, nil)
}

func (b *HTTPBackend) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return &BackendError{StatusCode: resp.StatusCode, Code: errBody.Code, Message: errBody.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
