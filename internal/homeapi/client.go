// Package homeapi is the client for the remote device-management backend.
package homeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const devicesPath = "/api/devices"

// Config holds the backend location and transport settings.
type Config struct {
	// BaseURL is the backend root, e.g. http://localhost:3000
	BaseURL string

	// Timeout for each API request
	Timeout time.Duration
}

// Client talks to the device backend over HTTP.
type Client struct {
	baseURL    string
	creds      CredentialSource
	httpClient *http.Client
}

// NewClient creates a backend client. Credentials are resolved per request so
// a CredentialStore can be swapped at sign-in and sign-out.
func NewClient(config Config, creds CredentialSource) *Client {
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		creds:   creds,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError is a non-success response from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.Status, e.Message)
}

// Registration describes a device to register.
type Registration struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Status string `json:"status,omitempty"`
}

// Edit carries the user-editable device fields. Nil fields are left unchanged.
type Edit struct {
	DeviceName *string `json:"device_name,omitempty"`
	Status     *string `json:"status,omitempty"`
}

// ListDevices retrieves the backend's authoritative device list.
func (c *Client) ListDevices(ctx context.Context) ([]RawDevice, error) {
	body, err := c.do(ctx, http.MethodGet, devicesPath, nil)
	if err != nil {
		return nil, err
	}
	return decodeDeviceList(body)
}

// MutateDevice replaces the device's metadata. The returned device is nil
// when the backend does not echo it back.
func (c *Client) MutateDevice(ctx context.Context, externalUID string, metadata map[string]any) (*RawDevice, error) {
	data := map[string]any{
		"device_uid": externalUID,
		"metadata":   metadata,
	}

	body, err := c.do(ctx, http.MethodPut, devicesPath+"/update", data)
	if err != nil {
		return nil, err
	}
	return decodeDevice(body), nil
}

// RegisterDevice registers a new device with the backend.
func (c *Client) RegisterDevice(ctx context.Context, reg Registration) (*RawDevice, error) {
	body, err := c.do(ctx, http.MethodPost, devicesPath+"/register", reg)
	if err != nil {
		return nil, err
	}
	return decodeDevice(body), nil
}

// EditDevice renames a device or overrides its reported status.
func (c *Client) EditDevice(ctx context.Context, externalUID string, edit Edit) error {
	data := map[string]any{"device_uid": externalUID}
	if edit.DeviceName != nil {
		data["device_name"] = *edit.DeviceName
	}
	if edit.Status != nil {
		data["status"] = *edit.Status
	}

	_, err := c.do(ctx, http.MethodPut, devicesPath+"/edit", data)
	return err
}

// DeleteDevice removes a device from the backend.
func (c *Client) DeleteDevice(ctx context.Context, externalUID string) error {
	_, err := c.do(ctx, http.MethodDelete, devicesPath+"/delete", map[string]any{"device_uid": externalUID})
	return err
}

// MarkOnline records a heartbeat for the device on the backend.
func (c *Client) MarkOnline(ctx context.Context, externalUID string) error {
	_, err := c.do(ctx, http.MethodPost, devicesPath+"/online", map[string]any{"device_uid": externalUID})
	return err
}

// do sends a request and returns the body of a successful response.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := c.newRequest(ctx, method, path, reqBody)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Message: errorMessage(body)}
	}

	return body, nil
}

// newRequest creates a new HTTP request with authentication.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	creds, err := c.creds.Credentials()
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+creds.Token)
	}
	if creds.UserID != "" {
		req.Header.Set("x-user-id", creds.UserID)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return req, nil
}

// errorMessage pulls the backend's error text out of a failure body.
func errorMessage(body []byte) string {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error != "" {
			return parsed.Error
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "empty response"
	}
	return msg
}
