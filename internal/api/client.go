package api

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/berocorpdotnet/pvewatch/internal/models"
)

const defaultTimeout = 10 * time.Second

// StatusError is returned for any non-2xx answer from the API.
type StatusError struct {
	Method string
	Path   string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.Code)
}

// IsUnauthorized reports whether err is an HTTP 401 from the API.
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusUnauthorized
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	ticket     string
	csrfToken  string
	token      string
}

type Option func(*Client)

// WithTimeout bounds every request; a timeout surfaces as an ordinary error.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithTLSVerify turns certificate verification on. Proxmox ships self-signed
// certificates, so it is off by default.
func WithTLSVerify(verify bool) Option {
	return func(c *Client) {
		c.httpClient.Transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !verify}, //nolint:gosec
		}
	}
}

// WithBaseURL overrides the https://host:port/api2/json endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

func newClient(host, port string, opts ...Option) *Client {
	c := &Client{
		baseURL: fmt.Sprintf("https://%s:%s/api2/json", host, port),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func NewClient(host, port string, opts ...Option) *Client {
	return newClient(host, port, opts...)
}

func NewClientWithToken(host, port, token string, opts ...Option) *Client {
	c := newClient(host, port, opts...)
	c.token = strings.TrimPrefix(token, "PVEAPIToken=")
	return c
}

// ParseToken splits "user@realm!tokenid=secret" into its owner and token ID.
func ParseToken(token string) (user, tokenID string, err error) {
	token = strings.TrimPrefix(token, "PVEAPIToken=")
	user, rest, ok := strings.Cut(token, "!")
	if !ok || user == "" {
		return "", "", fmt.Errorf("token %q has no user@realm! prefix", redact(token))
	}
	tokenID, _, ok = strings.Cut(rest, "=")
	if !ok || tokenID == "" {
		return "", "", fmt.Errorf("token for %s has no token ID", user)
	}
	return user, tokenID, nil
}

func redact(token string) string {
	if i := strings.IndexByte(token, '='); i >= 0 {
		return token[:i+1] + "***"
	}
	return token
}

func (c *Client) Login(ctx context.Context, username, password string) error {
	data := url.Values{}
	data.Set("username", username)
	data.Set("password", password)

	var result struct {
		Data struct {
			Ticket              string `json:"ticket"`
			CSRFPreventionToken string `json:"CSRFPreventionToken"`
		} `json:"data"`
	}
	if err := c.call(ctx, http.MethodPost, "/access/ticket", data, &result); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if result.Data.Ticket == "" {
		return errors.New("login: empty ticket in response")
	}

	c.ticket = result.Data.Ticket
	c.csrfToken = result.Data.CSRFPreventionToken
	return nil
}

func (c *Client) CreateAPIToken(ctx context.Context, username, tokenID string) (string, error) {
	if c.ticket == "" {
		return "", fmt.Errorf("not authenticated - call Login first")
	}

	data := url.Values{}
	data.Set("privsep", "0")

	var result struct {
		Data struct {
			Value string `json:"value"`
		} `json:"data"`
	}
	path := fmt.Sprintf("/access/users/%s/token/%s", url.PathEscape(username), url.PathEscape(tokenID))
	if err := c.call(ctx, http.MethodPost, path, data, &result); err != nil {
		return "", fmt.Errorf("failed to create token: %w", err)
	}

	return fmt.Sprintf("%s!%s=%s", username, tokenID, result.Data.Value), nil
}

func (c *Client) DeleteAPIToken(ctx context.Context, username, tokenID string) error {
	if c.ticket == "" && c.token == "" {
		return fmt.Errorf("not authenticated")
	}

	path := fmt.Sprintf("/access/users/%s/token/%s", url.PathEscape(username), url.PathEscape(tokenID))
	if err := c.call(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, data url.Values) (*http.Response, error) {
	var body io.Reader
	if data != nil && method != http.MethodGet {
		body = strings.NewReader(data.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	switch {
	case c.token != "":
		req.Header.Set("Authorization", "PVEAPIToken="+c.token)
	case c.ticket != "":
		req.Header.Set("Cookie", "PVEAuthCookie="+c.ticket)
		if method != http.MethodGet {
			req.Header.Set("CSRFPreventionToken", c.csrfToken)
		}
	}

	return c.httpClient.Do(req)
}

// call performs one request and decodes the JSON body into out when out is non-nil.
func (c *Client) call(ctx context.Context, method, path string, data url.Values, out any) error {
	resp, err := c.doRequest(ctx, method, path, data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) GetNodes(ctx context.Context) ([]models.Node, error) {
	var result struct {
		Data []models.Node `json:"data"`
	}
	if err := c.call(ctx, http.MethodGet, "/nodes", nil, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

func (c *Client) GetNodeStatus(ctx context.Context, node string) (*models.NodeStatus, error) {
	var result struct {
		Data *models.NodeStatus `json:"data"`
	}
	path := fmt.Sprintf("/nodes/%s/status", url.PathEscape(node))
	if err := c.call(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	if result.Data == nil {
		return nil, fmt.Errorf("%s: no data", path)
	}
	return result.Data, nil
}

func (c *Client) GetVMs(ctx context.Context, node string) ([]models.Guest, error) {
	var result struct {
		Data []models.Guest `json:"data"`
	}
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf("/nodes/%s/qemu", url.PathEscape(node)), nil, &result); err != nil {
		return nil, err
	}

	for i := range result.Data {
		result.Data[i].Node = node
	}
	return result.Data, nil
}

func (c *Client) GetVMStatus(ctx context.Context, node string, vmid int) (*models.GuestStatus, error) {
	var result struct {
		Data *models.GuestStatus `json:"data"`
	}
	path := fmt.Sprintf("/nodes/%s/qemu/%d/status/current", url.PathEscape(node), vmid)
	if err := c.call(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	if result.Data == nil {
		return nil, fmt.Errorf("%s: no data", path)
	}
	return result.Data, nil
}
