// Package client talks to the pedidos HTTP API and keeps the editing state a
// front end needs while it drafts a pedido.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pedidos/api/internal/pagination"
	"pedidos/api/internal/pedido"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx response decoded from the server's error body.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("pedidos api: status %d", e.Status)
	}
	return fmt.Sprintf("pedidos api: %s (%d): %s", e.Code, e.Status, e.Message)
}

// IsConflict reports whether err is the server rejecting a stale versao.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == "VERSION_CONFLICT"
}

// ReusedKey reports whether err is the server refusing an Idempotency-Key
// that already created a pedido from a different payload, and returns that
// pedido's id and versao.
func ReusedKey(err error) (pedidoID int64, versao int, ok bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "IDEMPOTENCY_KEY_REUSED" {
		return 0, 0, false
	}
	id, idOK := apiErr.Details["pedidoId"].(float64)
	v, vOK := apiErr.Details["versao"].(float64)
	if !idOK || !vOK || id <= 0 {
		return 0, 0, false
	}
	return int64(id), int(v), true
}

// Client is safe for concurrent use once the token is set.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New returns a client for the API rooted at baseURL, e.g.
// "http://localhost:10000/api". token may be empty until Login.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// WithHTTPClient swaps the transport, mostly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func (c *Client) Token() string { return c.token }

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Usuario   string    `json:"usuario"`
	Papel     string    `json:"papel"`
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, usuario, senha string) (LoginResult, error) {
	var out LoginResult
	body := map[string]string{"usuario": usuario, "senha": senha}
	if _, err := c.do(ctx, http.MethodPost, "/login", body, nil, &out); err != nil {
		return LoginResult{}, err
	}
	c.token = out.Token
	return out, nil
}

func (c *Client) List(ctx context.Context, page, limit int) (pagination.Page[pedido.ListItem], error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/pedidos"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out pagination.Page[pedido.ListItem]
	if _, err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return pagination.Page[pedido.ListItem]{}, err
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, id int64) (pedido.Aggregate, error) {
	var out pedido.Aggregate
	if _, err := c.do(ctx, http.MethodGet, pedidoPath(id), nil, nil, &out); err != nil {
		return pedido.Aggregate{}, err
	}
	return out, nil
}

type CreateResult struct {
	PedidoID int64 `json:"pedidoId"`
	Versao   int   `json:"versao"`
	Replayed bool  `json:"-"`
}

// Create sends the whole aggregate. Retrying with the same idempotencyKey
// and payload returns the pedido created by the first attempt; a changed
// payload under the same key fails, see ReusedKey.
func (c *Client) Create(ctx context.Context, in pedido.Input, idempotencyKey string) (CreateResult, error) {
	headers := http.Header{}
	if idempotencyKey != "" {
		headers.Set("Idempotency-Key", idempotencyKey)
	}
	in.Versao = nil

	var out CreateResult
	resp, err := c.do(ctx, http.MethodPost, "/pedidos", in, headers, &out)
	if err != nil {
		return CreateResult{}, err
	}
	out.Replayed = resp.Header.Get("Idempotent-Replayed") == "true"
	return out, nil
}

// Update replaces the aggregate when versao still matches the stored one and
// returns the new versao.
func (c *Client) Update(ctx context.Context, id int64, in pedido.Input, versao int) (int, error) {
	headers := http.Header{}
	headers.Set("If-Match", strconv.Quote(strconv.Itoa(versao)))
	in.Versao = &versao

	var out struct {
		Versao int `json:"versao"`
	}
	if _, err := c.do(ctx, http.MethodPut, pedidoPath(id), in, headers, &out); err != nil {
		return 0, err
	}
	return out.Versao, nil
}

func (c *Client) Delete(ctx context.Context, id int64) error {
	_, err := c.do(ctx, http.MethodDelete, pedidoPath(id), nil, nil, nil)
	return err
}

func pedidoPath(id int64) string {
	return "/pedidos/" + strconv.FormatInt(id, 10)
}

func (c *Client) do(ctx context.Context, method, path string, body any, headers http.Header, out any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeAPIError(resp.StatusCode, raw)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp, nil
}

func decodeAPIError(status int, raw []byte) error {
	var body struct {
		Code    string         `json:"code"`
		Error   string         `json:"error"`
		Details map[string]any `json:"details"`
	}
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(raw, &body); err == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Error
		apiErr.Details = body.Details
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
