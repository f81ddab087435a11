// Package gateway is the HTTP client for the remote notification API.
// It is the only package in this module that talks to the network; every
// failure it returns is classified into the Kind taxonomy so callers can
// pick the right recovery policy without inspecting status codes.
package gateway

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
	"time"

	"github.com/nhle/notification-sync/internal/model"
)

const basePath = "/api/notifications"

// Client talks to the notification endpoints of the school-administration
// API. Authentication is a Bearer token; the server enforces who may read
// or mutate which notification.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a gateway client for the API rooted at baseURL.
func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// listEnvelope tolerates the response shapes the server has used over
// time: a wrapped object or a bare array.
type listEnvelope struct {
	Notifications []model.Notification `json:"notifications"`
	Data          []model.Notification `json:"data"`
}

// List fetches the caller's notifications, newest first.
func (c *Client) List(ctx context.Context, f model.Filter) ([]model.Notification, error) {
	params := url.Values{}
	if f.Kind != "" {
		params.Set("type", string(f.Kind))
	}
	if f.UnreadOnly {
		params.Set("unreadOnly", "true")
	}
	if f.Limit > 0 {
		params.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Page > 0 {
		params.Set("page", strconv.Itoa(f.Page))
	}

	path := basePath
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	raw := json.RawMessage{}
	if err := c.get(ctx, path, &raw); err != nil {
		return nil, fmt.Errorf("gateway.List: %w", err)
	}

	records, err := decodeList(raw)
	if err != nil {
		return nil, fmt.Errorf("gateway.List: %w", err)
	}
	return records, nil
}

// decodeList accepts either a bare array or an envelope object.
func decodeList(raw json.RawMessage) ([]model.Notification, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var records []model.Notification
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, &Error{Kind: KindServer, Message: "malformed list payload", Err: err}
		}
		return records, nil
	}

	var env listEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, &Error{Kind: KindServer, Message: "malformed list payload", Err: err}
	}
	if env.Notifications != nil {
		return env.Notifications, nil
	}
	return env.Data, nil
}

// UnreadCount fetches the number of unread notifications without
// transferring the records themselves.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	if err := c.get(ctx, basePath+"/unread-count", &resp); err != nil {
		return 0, fmt.Errorf("gateway.UnreadCount: %w", err)
	}
	if resp.Count < 0 {
		return 0, &Error{Kind: KindServer, Message: fmt.Sprintf("negative unread count %d", resp.Count)}
	}
	return resp.Count, nil
}

// MarkRead marks a single notification as read server-side.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	if err := c.doRequest(ctx, http.MethodPut, basePath+"/"+url.PathEscape(id)+"/read", nil, nil); err != nil {
		return fmt.Errorf("gateway.MarkRead: %w", err)
	}
	return nil
}

// MarkAllRead marks every notification of the caller as read.
func (c *Client) MarkAllRead(ctx context.Context) error {
	if err := c.doRequest(ctx, http.MethodPut, basePath+"/mark-all-read", nil, nil); err != nil {
		return fmt.Errorf("gateway.MarkAllRead: %w", err)
	}
	return nil
}

// Delete removes a notification server-side.
func (c *Client) Delete(ctx context.Context, id string) error {
	if err := c.doRequest(ctx, http.MethodDelete, basePath+"/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("gateway.Delete: %w", err)
	}
	return nil
}

// Stats fetches the caller's notification totals by read state and kind.
func (c *Client) Stats(ctx context.Context) (*model.Stats, error) {
	var stats model.Stats
	if err := c.get(ctx, basePath+"/stats", &stats); err != nil {
		return nil, fmt.Errorf("gateway.Stats: %w", err)
	}
	return &stats, nil
}

// --- Producer endpoints ---
//
// These create notifications and are called by subsystems outside the
// sync core (admin tooling, the mail watcher, business triggers). The
// cache only ever sees their output through List.

// CreateRequest is the payload for creating a single notification.
type CreateRequest struct {
	UserID    string     `json:"user_id,omitempty"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Kind      model.Kind `json:"kind"`
	ActionURL string     `json:"action_url,omitempty"`
}

// Create creates one notification for one user.
func (c *Client) Create(ctx context.Context, req CreateRequest) (*model.Notification, error) {
	var created model.Notification
	if err := c.doRequest(ctx, http.MethodPost, basePath, req, &created); err != nil {
		return nil, fmt.Errorf("gateway.Create: %w", err)
	}
	return &created, nil
}

// CreateBulk creates the same notification for a set of users.
func (c *Client) CreateBulk(ctx context.Context, userIDs []string, req CreateRequest) error {
	payload := struct {
		UserIDs []string `json:"user_ids"`
		CreateRequest
	}{UserIDs: userIDs, CreateRequest: req}
	if err := c.doRequest(ctx, http.MethodPost, basePath+"/bulk", payload, nil); err != nil {
		return fmt.Errorf("gateway.CreateBulk: %w", err)
	}
	return nil
}

// CreateGlobal creates a broadcast notification visible to all users.
func (c *Client) CreateGlobal(ctx context.Context, req CreateRequest) error {
	if err := c.doRequest(ctx, http.MethodPost, basePath+"/global", req, nil); err != nil {
		return fmt.Errorf("gateway.CreateGlobal: %w", err)
	}
	return nil
}

// CreateWelcome triggers the server-templated welcome notification.
func (c *Client) CreateWelcome(ctx context.Context, userID, roleName string) error {
	payload := map[string]string{"user_id": userID, "role_name": roleName}
	if err := c.doRequest(ctx, http.MethodPost, basePath+"/auto/welcome", payload, nil); err != nil {
		return fmt.Errorf("gateway.CreateWelcome: %w", err)
	}
	return nil
}

// CreateMissingFingerprint notifies a user that no fingerprint is enrolled.
func (c *Client) CreateMissingFingerprint(ctx context.Context, userID string) error {
	payload := map[string]string{"user_id": userID}
	if err := c.doRequest(ctx, http.MethodPost, basePath+"/auto/missing-fingerprint", payload, nil); err != nil {
		return fmt.Errorf("gateway.CreateMissingFingerprint: %w", err)
	}
	return nil
}

// CreateDeviceError notifies administrators about a biometric device fault.
func (c *Client) CreateDeviceError(ctx context.Context, deviceName, errorMessage string) error {
	payload := map[string]string{"device_name": deviceName, "error_message": errorMessage}
	if err := c.doRequest(ctx, http.MethodPost, basePath+"/auto/device-error", payload, nil); err != nil {
		return fmt.Errorf("gateway.CreateDeviceError: %w", err)
	}
	return nil
}

// CreateExcessiveAbsence notifies about a student crossing the absence
// threshold for a period.
func (c *Client) CreateExcessiveAbsence(ctx context.Context, studentID string, absenceCount int, period string) error {
	payload := map[string]any{
		"student_id":    studentID,
		"absence_count": absenceCount,
		"period":        period,
	}
	if err := c.doRequest(ctx, http.MethodPost, basePath+"/auto/excessive-absence", payload, nil); err != nil {
		return fmt.Errorf("gateway.CreateExcessiveAbsence: %w", err)
	}
	return nil
}

// CreateMessage notifies a recipient about a new direct message.
func (c *Client) CreateMessage(ctx context.Context, messageID, senderID, recipientID, content string) error {
	payload := map[string]string{
		"message_id":   messageID,
		"sender_id":    senderID,
		"recipient_id": recipientID,
		"content":      content,
	}
	if err := c.doRequest(ctx, http.MethodPost, basePath+"/auto/message", payload, nil); err != nil {
		return fmt.Errorf("gateway.CreateMessage: %w", err)
	}
	return nil
}

// CreateGroupMessage notifies group members about a new group message.
func (c *Client) CreateGroupMessage(ctx context.Context, messageID, senderID, groupID, groupName, content string) error {
	payload := map[string]string{
		"message_id": messageID,
		"sender_id":  senderID,
		"group_id":   groupID,
		"group_name": groupName,
		"content":    content,
	}
	if err := c.doRequest(ctx, http.MethodPost, basePath+"/auto/group-message", payload, nil); err != nil {
		return fmt.Errorf("gateway.CreateGroupMessage: %w", err)
	}
	return nil
}

// CleanupOld deletes read notifications older than the given number of
// days. Admin-only server-side.
func (c *Client) CleanupOld(ctx context.Context, days int) error {
	path := fmt.Sprintf("%s/cleanup/old?days=%d", basePath, days)
	if err := c.doRequest(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("gateway.CleanupOld: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.doRequest(ctx, http.MethodGet, path, nil, out)
}

// doRequest builds the request, attaches auth, and classifies failures.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode >= 400 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB max error body
		if readErr != nil {
			return classifyStatus(resp.StatusCode, fmt.Sprintf("failed to read body: %v", readErr))
		}
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil {
			if apiErr.Error != "" {
				return classifyStatus(resp.StatusCode, apiErr.Error)
			}
			if apiErr.Message != "" {
				return classifyStatus(resp.StatusCode, apiErr.Message)
			}
		}
		return classifyStatus(resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Kind: KindServer, Message: "malformed response payload", Err: err}
		}
	}
	return nil
}
