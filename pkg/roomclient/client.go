// Package roomclient is the headless client of a drawing room: REST calls,
// the room socket, and a Session that keeps a local copy of the canvas.
package roomclient

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

	"paintroom-be/internal/dto"
	"paintroom-be/internal/pkg/apperr"

	"github.com/gorilla/websocket"
)

// APIError is a non 2xx answer from the server. It unwraps to the sentinel
// matching its status so callers can use errors.Is(err, apperr.ErrAuth).
type APIError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return apperr.ErrAuth
	case http.StatusGone:
		return apperr.ErrExpired
	case http.StatusRequestEntityTooLarge:
		return apperr.ErrSizeLimit
	case http.StatusBadGateway:
		return apperr.ErrUpload
	case http.StatusNotFound:
		return apperr.ErrNotFound
	case http.StatusBadRequest:
		return apperr.ErrValidation
	case http.StatusForbidden:
		return apperr.ErrNotLeader
	case http.StatusTooManyRequests:
		return apperr.ErrRateLimited
	case http.StatusConflict:
		// both session states answer 409; the message tells them apart
		if strings.Contains(e.Message, "already") {
			return apperr.ErrSessionActive
		}
		return apperr.ErrSessionNotActive
	case http.StatusInternalServerError:
		return apperr.ErrStore
	}
	return nil
}

type envelope[T any] struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    T                 `json:"data"`
	Errors  map[string]string `json:"errors,omitempty"`
}

type Client struct {
	baseURL string
	http    *http.Client
	dialer  *websocket.Dialer
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// New takes the API root, e.g. http://localhost:3000/api.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		dialer:  websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ListRooms(ctx context.Context) ([]dto.RoomListItem, error) {
	var out []dto.RoomListItem
	err := c.call(ctx, http.MethodGet, "/rooms", nil, &out)
	return out, err
}

func (c *Client) GetRoom(ctx context.Context, roomID int64) (*dto.RoomResponse, error) {
	var out dto.RoomResponse
	if err := c.call(ctx, http.MethodGet, roomPath(roomID, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListStrokes returns the log in commit order. A nil cursor means everything.
func (c *Client) ListStrokes(ctx context.Context, roomID int64, after *int64) ([]dto.StrokeResponse, error) {
	path := roomPath(roomID, "/strokes")
	if after != nil {
		path += "?after=" + strconv.FormatInt(*after, 10)
	}

	var out []dto.StrokeResponse
	err := c.call(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) SubmitStroke(ctx context.Context, roomID int64, req *dto.SubmitStrokeRequest) (*dto.StrokeResponse, error) {
	var out dto.StrokeResponse
	if err := c.call(ctx, http.MethodPost, roomPath(roomID, "/strokes"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) StartSession(ctx context.Context, roomID int64, humanToken string) (*dto.RoomResponse, error) {
	var out dto.RoomResponse
	req := dto.StartSessionRequest{Token: humanToken}
	if err := c.call(ctx, http.MethodPost, roomPath(roomID, "/start"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ArchiveCredential(ctx context.Context, roomID int64, req *dto.ArchiveCredentialRequest) (*dto.ArchiveCredentialResponse, error) {
	var out dto.ArchiveCredentialResponse
	if err := c.call(ctx, http.MethodPost, roomPath(roomID, "/archive/credential"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) FinishSession(ctx context.Context, roomID int64, req *dto.FinishSessionRequest) (*dto.RoomResponse, error) {
	var out dto.RoomResponse
	if err := c.call(ctx, http.MethodPost, roomPath(roomID, "/finish"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ThumbnailCredential(ctx context.Context, roomID int64, req *dto.ThumbnailCredentialRequest) (*dto.ThumbnailCredentialResponse, error) {
	var out dto.ThumbnailCredentialResponse
	if err := c.call(ctx, http.MethodPost, roomPath(roomID, "/thumbnail/credential"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateThumbnail(ctx context.Context, roomID int64, req *dto.UpdateThumbnailRequest) (*dto.RoomResponse, error) {
	var out dto.RoomResponse
	if err := c.call(ctx, http.MethodPost, roomPath(roomID, "/thumbnail"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Presence(ctx context.Context, roomID int64) ([]dto.PresenceMember, error) {
	var out []dto.PresenceMember
	err := c.call(ctx, http.MethodGet, roomPath(roomID, "/presence"), nil, &out)
	return out, err
}

// Upload sends an artifact to the blob store through a signed target. Any
// failure is reported as ErrUpload.
func (c *Client) Upload(ctx context.Context, target dto.UploadTarget, contentType string, body []byte) error {
	method := target.Method
	if method == "" {
		method = http.MethodPut
	}

	req, err := http.NewRequestWithContext(ctx, method, target.Url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrUpload, err)
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range target.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrUpload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", apperr.ErrUpload, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// Dial opens the room socket. The caller owns the connection.
func (c *Client) Dial(ctx context.Context, roomID int64, userID, userName string) (*websocket.Conn, error) {
	u, err := url.Parse(c.baseURL + roomPath(roomID, "/ws"))
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("user_id", userID)
	q.Set("user_name", userName)
	u.RawQuery = q.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, decodeError(resp)
		}
		return nil, err
	}
	return conn, nil
}

func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}

	res := envelope[json.RawMessage]{}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	if len(res.Data) == 0 || string(res.Data) == "null" {
		return nil
	}
	return json.Unmarshal(res.Data, out)
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var res envelope[json.RawMessage]
	if err := json.Unmarshal(raw, &res); err == nil && res.Message != "" {
		apiErr.Message = res.Message
		apiErr.Fields = res.Errors
	}
	return apiErr
}

func roomPath(roomID int64, suffix string) string {
	return "/rooms/" + strconv.FormatInt(roomID, 10) + suffix
}

// IsBenign reports errors a background task expects when another client got
// there first.
func IsBenign(err error) bool {
	return errors.Is(err, apperr.ErrSessionNotActive) ||
		errors.Is(err, apperr.ErrNotLeader) ||
		errors.Is(err, apperr.ErrRateLimited)
}
