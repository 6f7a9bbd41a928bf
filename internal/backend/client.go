// Package backend is the REST client for the alert backend: snapshot reads
// and alert mutations.
package backend

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

	apperrors "socsync/internal/errors"
	"socsync/pkg/models"
)

const maxErrorBody = 64 << 10

// Config configures the REST client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Headers map[string]string
}

// Client talks to the backend REST API.
type Client struct {
	baseURL string
	token   string
	headers map[string]string
	client  *http.Client
}

// AlertFilter narrows an alert snapshot.
type AlertFilter struct {
	Status    models.AlertStatus
	RiskLevel models.RiskLevel
	Limit     int
}

// NewClient creates a REST client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend base URL is empty")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid backend base URL: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		headers: cfg.Headers,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// FetchAlerts returns one page of alerts.
func (c *Client) FetchAlerts(ctx context.Context, filter AlertFilter) (models.Page[*models.Alert], error) {
	q := url.Values{}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.RiskLevel != "" {
		q.Set("risk_level", string(filter.RiskLevel))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}

	var page models.Page[*models.Alert]
	if err := c.do(ctx, "fetch_alerts", http.MethodGet, "/alerts", q, nil, &page); err != nil {
		return models.Page[*models.Alert]{}, err
	}
	return page, nil
}

// FetchIncidents returns the incident snapshot.
func (c *Client) FetchIncidents(ctx context.Context) (models.Page[*models.Incident], error) {
	var page models.Page[*models.Incident]
	if err := c.do(ctx, "fetch_incidents", http.MethodGet, "/incidents", nil, nil, &page); err != nil {
		return models.Page[*models.Incident]{}, err
	}
	return page, nil
}

// Mutate performs action on an alert and returns the server-confirmed
// entity. Delete returns a nil alert. Status-changing actions without a
// dedicated endpoint go through PATCH /alerts/{id}/status and need
// payload.Status.
func (c *Client) Mutate(ctx context.Context, alertID string, action models.Action, payload models.MutationPayload) (*models.Alert, error) {
	op := "mutate_" + string(action)
	if alertID == "" {
		return nil, apperrors.Validation(op, "alert id is required")
	}
	path := "/alerts/" + url.PathEscape(alertID)

	switch action {
	case models.ActionDelete:
		return nil, c.do(ctx, op, http.MethodDelete, path, nil, nil, nil)
	case models.ActionAcknowledge, models.ActionEscalate, models.ActionRelease, models.ActionQuarantine:
		var alert models.Alert
		body := models.MutationPayload{Notes: payload.Notes}
		if err := c.do(ctx, op, http.MethodPost, path+"/"+string(action), nil, body, &alert); err != nil {
			return nil, err
		}
		return &alert, nil
	case models.ActionUpdateStatus, models.ActionInvestigate, models.ActionConfirm, models.ActionResolve, models.ActionFalsePositive:
		if payload.Status == "" {
			return nil, apperrors.Validation(op, "target status is required")
		}
		var alert models.Alert
		if err := c.do(ctx, op, http.MethodPatch, path+"/status", nil, payload, &alert); err != nil {
			return nil, err
		}
		return &alert, nil
	}
	return nil, apperrors.Validation(op, fmt.Sprintf("unknown action %q", action))
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperrors.Wrap(apperrors.KindValidation, op, fmt.Errorf("failed to marshal request: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return apperrors.Wrap(apperrors.KindValidation, op, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &apperrors.Error{Kind: apperrors.KindTimeout, Op: op, Code: "TIMEOUT", Err: err}
		}
		return apperrors.Wrap(apperrors.KindTransport, op, fmt.Errorf("http request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(op, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(apperrors.KindTransport, op, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func decodeError(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var env models.ErrorEnvelope
	if len(data) > 0 {
		_ = json.Unmarshal(data, &env)
	}
	if env.Message == "" && len(data) > 0 && env.Code == "" {
		env.Message = strings.TrimSpace(string(data))
	}
	return apperrors.FromStatus(op, resp.StatusCode, env.Code, env.Message, env.Details)
}
