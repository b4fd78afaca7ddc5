package actor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"carelink/internal/domain"
	"carelink/internal/models"
	"carelink/internal/service"
	appErrors "carelink/pkg/errors"
)

// APIClient talks to the coordination HTTP API as one actor. It satisfies
// the watcher and reporter source interfaces, so the same watchers run
// in-process against services or remotely against a server. The actor
// argument on each method is ignored; identity comes from the token.
type APIClient struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

type apiError struct {
	Error   string                 `json:"error"`
	Code    appErrors.Code         `json:"code"`
	Current *models.ServiceRequest `json:"current"`
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// decodeAPIError turns an error body back into the error the service
// returned, so callers can use errors.As and CodeOf on remote results.
func decodeAPIError(status int, raw []byte) error {
	var e apiError
	if err := json.Unmarshal(raw, &e); err != nil || e.Error == "" {
		return fmt.Errorf("http %d: %s", status, strings.TrimSpace(string(raw)))
	}
	if e.Code == appErrors.CodeConflict && e.Current != nil {
		return &service.ConflictError{Current: e.Current}
	}
	code := e.Code
	if code == "" {
		code = appErrors.CodeUnknown
	}
	return appErrors.New(code, e.Error)
}

func requestPath(id uint, suffix string) string {
	return fmt.Sprintf("/api/v1/requests/%d%s", id, suffix)
}

func (c *APIClient) Get(ctx context.Context, _ domain.Actor, id uint) (*service.RequestView, error) {
	var view service.RequestView
	if err := c.do(ctx, http.MethodGet, requestPath(id, ""), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *APIClient) Status(ctx context.Context, _ domain.Actor, id uint) (*service.PaymentStatusView, error) {
	var view service.PaymentStatusView
	if err := c.do(ctx, http.MethodGet, requestPath(id, "/payment-status"), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *APIClient) List(ctx context.Context, _ domain.Actor, conversationID uint, since *time.Time) ([]models.Message, error) {
	path := fmt.Sprintf("/api/v1/conversations/%d/messages", conversationID)
	if since != nil {
		path += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339Nano))
	}
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *APIClient) Report(ctx context.Context, _ domain.Actor, requestID uint, in service.Sample) (*models.ServiceLocation, error) {
	var loc models.ServiceLocation
	if err := c.do(ctx, http.MethodPut, requestPath(requestID, "/location"), in, &loc); err != nil {
		return nil, err
	}
	return &loc, nil
}

func (c *APIClient) Stop(ctx context.Context, _ domain.Actor, requestID uint) error {
	return c.do(ctx, http.MethodDelete, requestPath(requestID, "/location"), nil, nil)
}

func (c *APIClient) Snapshot(ctx context.Context, _ domain.Actor, requestID uint) (*service.LocationSnapshot, error) {
	var snap service.LocationSnapshot
	if err := c.do(ctx, http.MethodGet, requestPath(requestID, "/locations"), nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
