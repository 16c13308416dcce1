package redfish

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrNotFound marks a resource the BMC does not expose. Discovery treats it
// as a category miss, never as a transport failure.
var ErrNotFound = errors.New("redfish: resource not found")

// AuthError reports rejected credentials (HTTP 401/403).
type AuthError struct {
	StatusCode int
	Path       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("redfish: auth rejected (%d) for %s", e.StatusCode, e.Path)
}

// TransportError wraps a network-level or server-side failure.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "redfish: transport: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// Config holds connection settings for one device's Redfish service.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration

	// InsecureSkipVerify disables TLS certificate verification.
	// BMCs commonly present self-signed certificates.
	InsecureSkipVerify bool

	// SystemID and ManagerID select the Redfish resource instances.
	SystemID  string // default "System.Embedded.1"
	ManagerID string // default "iDRAC.Embedded.1"
}

const (
	defaultSystemID  = "System.Embedded.1"
	defaultManagerID = "iDRAC.Embedded.1"
	defaultTimeout   = 12 * time.Second
)

// Client fetches JSON resources from one BMC. Build it once and reuse it —
// the underlying http.Client pools connections across calls.
type Client struct {
	baseURL   string
	systemID  string
	managerID string
	http      *http.Client
}

// basicAuthRoundTripper injects the BMC credentials and JSON accept headers
// into every outgoing request.
type basicAuthRoundTripper struct {
	base     http.RoundTripper
	username string
	password string
}

func (t *basicAuthRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.username, t.password)
	req.Header.Set("Accept", "application/json")
	return t.base.RoundTrip(req)
}

// NewClient builds a Client for cfg. No I/O happens until Fetch.
func NewClient(cfg Config) *Client {
	port := cfg.Port
	if port == 0 {
		port = 443
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	systemID := cfg.SystemID
	if systemID == "" {
		systemID = defaultSystemID
	}
	managerID := cfg.ManagerID
	if managerID == "" {
		managerID = defaultManagerID
	}

	transport := &basicAuthRoundTripper{
		base: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // user-configured
			},
		},
		username: cfg.Username,
		password: cfg.Password,
	}

	return &Client{
		baseURL:   fmt.Sprintf("https://%s:%d", cfg.Host, port),
		systemID:  systemID,
		managerID: managerID,
		http: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

// BaseURL returns the service root URL, e.g. for certificate inspection.
func (c *Client) BaseURL() string { return c.baseURL }

// Resource paths for the instances this client is configured for.
func (c *Client) SystemPath() string  { return "/redfish/v1/Systems/" + c.systemID }
func (c *Client) ThermalPath() string { return "/redfish/v1/Chassis/" + c.systemID + "/Thermal" }
func (c *Client) PowerPath() string   { return "/redfish/v1/Chassis/" + c.systemID + "/Power" }
func (c *Client) ChassisPath() string { return "/redfish/v1/Chassis/" + c.systemID }
func (c *Client) ManagerPath() string { return "/redfish/v1/Managers/" + c.managerID }
func (c *Client) ResetPath() string {
	return c.SystemPath() + "/Actions/ComputerSystem.Reset"
}

// Fetch performs a GET for path and returns the raw JSON body.
func (c *Client) Fetch(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("build request: %w", err)}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{StatusCode: resp.StatusCode, Path: path}
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	default:
		return nil, &TransportError{Err: fmt.Errorf("unexpected status %d for %s", resp.StatusCode, path)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

// PostAction performs a POST of payload (as JSON) to an action path. BMCs
// answer action posts with 200, 202 or 204 depending on firmware.
func (c *Client) PostAction(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("redfish: marshal action payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &TransportError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK,
		resp.StatusCode == http.StatusAccepted,
		resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{StatusCode: resp.StatusCode, Path: path}
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	default:
		return &TransportError{Err: fmt.Errorf("unexpected status %d for %s", resp.StatusCode, path)}
	}
}

// Reset posts a ComputerSystem.Reset action with the given Redfish reset
// type (e.g. "On", "ForceOff", "GracefulShutdown", "GracefulRestart").
func (c *Client) Reset(ctx context.Context, resetType string) error {
	return c.PostAction(ctx, c.ResetPath(), map[string]string{"ResetType": resetType})
}
