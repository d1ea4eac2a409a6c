// Package hass talks to a Home Assistant instance: calendar events over the
// websocket API, with the REST calendar endpoint as a fallback.
package hass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"skycal/internal/event"
	appLog "skycal/internal/log"
)

var (
	ErrAuthInvalid = errors.New("home assistant rejected the access token")
	ErrProtocol    = errors.New("unexpected home assistant websocket message")
)

// Client is a Home Assistant API client.
type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	dialer ws.Dialer

	nextID atomic.Int64
}

// New creates a client for the instance at baseURL, e.g.
// "http://homeassistant.local:8123". A nil httpClient gets a 15s timeout.
func New(baseURL, token string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse home assistant url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("home assistant url must be http or https, got %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		base:   u,
		token:  token,
		http:   httpClient,
		dialer: ws.Dialer{Timeout: 10 * time.Second},
	}, nil
}

type wsMessage struct {
	ID      int64           `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success bool            `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *wsError        `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type listCommand struct {
	ID            int64  `json:"id"`
	Type          string `json:"type"`
	EntityID      string `json:"entity_id"`
	StartDateTime string `json:"start_date_time"`
	EndDateTime   string `json:"end_date_time"`
}

func (c *Client) websocketURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/websocket"
	return u.String()
}

// ListEvents runs calendar/event/list for entityID over the websocket API.
func (c *Client) ListEvents(ctx context.Context, entityID string, start, end time.Time) ([]event.RawEvent, error) {
	conn, br, _, err := c.dialer.Dial(ctx, c.websocketURL())
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	defer conn.Close()

	// Abort blocking reads when ctx ends.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	var r io.Reader = conn
	if br != nil {
		r = io.MultiReader(br, conn)
		defer ws.PutReader(br)
	}
	rw := struct {
		io.Reader
		io.Writer
	}{r, conn}

	if err := c.authenticate(rw); err != nil {
		return nil, err
	}

	cmd := listCommand{
		ID:            c.nextID.Add(1),
		Type:          "calendar/event/list",
		EntityID:      entityID,
		StartDateTime: start.Format(time.RFC3339),
		EndDateTime:   end.Format(time.RFC3339),
	}
	if err := writeJSON(rw, cmd); err != nil {
		return nil, err
	}

	for {
		msg, err := readMessage(rw)
		if err != nil {
			return nil, err
		}
		if msg.Type != "result" || msg.ID != cmd.ID {
			appLog.Debug("hass: ignoring websocket message", "type", msg.Type, "id", msg.ID)
			continue
		}
		if !msg.Success {
			if msg.Error != nil {
				return nil, fmt.Errorf("calendar/event/list %s: %s: %s", entityID, msg.Error.Code, msg.Error.Message)
			}
			return nil, fmt.Errorf("calendar/event/list %s failed", entityID)
		}
		return decodeEvents(msg.Result)
	}
}

func (c *Client) authenticate(rw io.ReadWriter) error {
	msg, err := readMessage(rw)
	if err != nil {
		return err
	}
	if msg.Type != "auth_required" {
		return fmt.Errorf("%w: expected auth_required, got %q", ErrProtocol, msg.Type)
	}

	auth := struct {
		Type        string `json:"type"`
		AccessToken string `json:"access_token"`
	}{"auth", c.token}
	if err := writeJSON(rw, auth); err != nil {
		return err
	}

	msg, err = readMessage(rw)
	if err != nil {
		return err
	}
	switch msg.Type {
	case "auth_ok":
		return nil
	case "auth_invalid":
		return fmt.Errorf("%w: %s", ErrAuthInvalid, msg.Message)
	default:
		return fmt.Errorf("%w: expected auth_ok, got %q", ErrProtocol, msg.Type)
	}
}

func readMessage(rw io.ReadWriter) (wsMessage, error) {
	data, err := wsutil.ReadServerText(rw)
	if err != nil {
		return wsMessage{}, fmt.Errorf("read websocket: %w", err)
	}
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return wsMessage{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return msg, nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := wsutil.WriteClientText(w, data); err != nil {
		return fmt.Errorf("write websocket: %w", err)
	}
	return nil
}

// decodeEvents accepts either a bare array or an {"events": [...]} object.
func decodeEvents(data json.RawMessage) ([]event.RawEvent, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return []event.RawEvent{}, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var evs []event.RawEvent
		if err := json.Unmarshal(data, &evs); err != nil {
			return nil, fmt.Errorf("decode events: %w", err)
		}
		return evs, nil
	}
	var wrapped struct {
		Events []event.RawEvent `json:"events"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	if wrapped.Events == nil {
		return []event.RawEvent{}, nil
	}
	return wrapped.Events, nil
}

// GetEventsREST reads GET /api/calendars/<entity> with whole-day bounds.
func (c *Client) GetEventsREST(ctx context.Context, entityID string, startDate, endDate time.Time) ([]event.RawEvent, error) {
	q := url.Values{}
	q.Set("start", startDate.Format("2006-01-02")+"T00:00:00Z")
	q.Set("end", endDate.Format("2006-01-02")+"T23:59:59Z")

	body, err := c.get(ctx, "/api/calendars/"+entityID, q)
	if err != nil {
		return nil, err
	}
	return decodeEvents(body)
}

// FriendlyName returns the entity's friendly_name attribute, or "" if it has
// none.
func (c *Client) FriendlyName(ctx context.Context, entityID string) (string, error) {
	body, err := c.get(ctx, "/api/states/"+entityID, nil)
	if err != nil {
		return "", err
	}
	var state struct {
		Attributes struct {
			FriendlyName string `json:"friendly_name"`
		} `json:"attributes"`
	}
	if err := json.Unmarshal(body, &state); err != nil {
		return "", fmt.Errorf("decode state: %w", err)
	}
	return state.Attributes.FriendlyName, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	return body, nil
}
