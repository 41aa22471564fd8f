// Package authority talks to the event authority over JSON/HTTP.
package authority

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/atinyakov/twinlock/internal/models"
)

// ErrTransport marks failures to reach the authority or to understand its
// reply, as opposed to a well-formed rejection.
var ErrTransport = errors.New("authority unreachable")

// Client is a stateless accessor for the authority endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for baseURL. A nil httpClient means http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// NewHTTPClient builds the transport used to reach the authority. caFile is
// an optional PEM bundle that replaces the system roots; timeout 0 disables
// the request deadline.
func NewHTTPClient(caFile string, timeout time.Duration) (*http.Client, error) {
	if caFile == "" {
		return &http.Client{Timeout: timeout}, nil
	}
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA cert: %w", err)
	}
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to parse CA cert")
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			RootCAs:    caPool,
			MinVersion: tls.VersionTLS12,
		},
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

// Login checks a node's credentials.
func (c *Client) Login(ctx context.Context, teamID, nodeID, accessKey string) (models.LoginResponse, error) {
	var resp models.LoginResponse
	err := c.post(ctx, "/api/auth/login", models.LoginRequest{
		TeamID: teamID, NodeID: nodeID, AccessKey: accessKey,
	}, &resp)
	return resp, err
}

// Restore revalidates an identity persisted before a reload.
func (c *Client) Restore(ctx context.Context, teamID, nodeID string) (models.RestoreResponse, error) {
	var resp models.RestoreResponse
	err := c.post(ctx, "/api/auth/restore", models.RestoreRequest{TeamID: teamID, NodeID: nodeID}, &resp)
	return resp, err
}

// Status fetches the polled view of a node.
func (c *Client) Status(ctx context.Context, teamID, nodeID string) (models.NodeStatus, error) {
	q := url.Values{}
	q.Set("teamId", teamID)
	q.Set("nodeId", nodeID)

	var resp models.NodeStatus
	err := c.get(ctx, "/api/node/status?"+q.Encode(), &resp)
	return resp, err
}

// Submit sends a decoded answer.
func (c *Client) Submit(ctx context.Context, teamID, nodeID, payload string) (models.SubmitResponse, error) {
	var resp models.SubmitResponse
	err := c.post(ctx, "/api/node/submit", models.SubmitRequest{
		TeamID: teamID, NodeID: nodeID, Payload: payload,
	}, &resp)
	return resp, err
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", req.Method, req.URL.Path, ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: %w: server error: %s",
			req.Method, req.URL.Path, ErrTransport, strings.TrimSpace(string(data)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: %w: invalid response: %w", req.Method, req.URL.Path, ErrTransport, err)
	}
	return nil
}
