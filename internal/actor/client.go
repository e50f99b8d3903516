package actor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/roach88/interflow/internal/model"
)

// Client speaks the Handler surface and implements Service, for routers
// running in a different process from the actor host.
type Client struct {
	base string
	http *http.Client
}

// NewClient targets baseURL (for example "http://actors.internal:8080").
// A nil hc uses http.DefaultClient.
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: hc}
}

func (c *Client) endpoint(address string) string {
	return c.base + "/actors/" + url.PathEscape(address)
}

func (c *Client) Get(ctx context.Context, address string) (*model.ComponentState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(address), nil)
	if err != nil {
		return nil, err
	}
	return c.state(req)
}

func (c *Client) Hydrate(ctx context.Context, address string, componentID uint64, messageID string) (*model.ComponentState, error) {
	return c.post(ctx, c.endpoint(address), componentID, messageID)
}

func (c *Client) Refresh(ctx context.Context, address string, componentID uint64, messageID string) (*model.ComponentState, error) {
	return c.post(ctx, c.endpoint(address)+"/refresh", componentID, messageID)
}

func (c *Client) post(ctx context.Context, endpoint string, componentID uint64, messageID string) (*model.ComponentState, error) {
	q := url.Values{}
	q.Set("id", strconv.FormatUint(componentID, 10))
	if messageID != "" {
		q.Set("message_id", messageID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return c.state(req)
}

func (c *Client) RecordInvocation(ctx context.Context, address, userID string) error {
	body, err := json.Marshal(invocationBody{UserID: userID})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(address)+"/invocations", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("record invocation: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return decodeError(resp)
	}
	return nil
}

func (c *Client) state(req *http.Request) (*model.ComponentState, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("actor %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var st model.ComponentState
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("decode actor state: %w", err)
	}
	return &st, nil
}

// decodeError maps a status back onto the package's sentinel errors.
func decodeError(resp *http.Response) error {
	var body errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &body) != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w (%s)", ErrComponentNotFound, body.Error)
	case http.StatusBadRequest:
		return fmt.Errorf("%w (%s)", ErrInvalidAddress, body.Error)
	case http.StatusConflict:
		return fmt.Errorf("%w (%s)", ErrAddressConflict, body.Error)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w (%s)", ErrClosed, body.Error)
	default:
		return fmt.Errorf("actor host returned %d: %s", resp.StatusCode, body.Error)
	}
}
