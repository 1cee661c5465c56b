package vapi

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

	"github.com/acme/outbound-dialer/internal/config"
	"github.com/acme/outbound-dialer/internal/telephony"
)

// Client talks to the Vapi REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient builds a client from provider configuration.
func NewClient(cfg config.ProviderConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type customer struct {
	Number string `json:"number"`
	Name   string `json:"name,omitempty"`
}

type assistantOverrides struct {
	FirstMessage   string            `json:"firstMessage,omitempty"`
	VariableValues map[string]string `json:"variableValues,omitempty"`
}

type createCallRequest struct {
	Customer           customer            `json:"customer"`
	AssistantID        string              `json:"assistantId"`
	PhoneNumberID      string              `json:"phoneNumberId"`
	AssistantOverrides *assistantOverrides `json:"assistantOverrides,omitempty"`
}

type callMessage struct {
	SecondsFromStart float64 `json:"secondsFromStart"`
}

type callPayload struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"`
	EndedReason  string     `json:"endedReason"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt"`
	Customer     customer   `json:"customer"`
	Transcript   string     `json:"transcript"`
	RecordingURL string     `json:"recordingUrl"`
	Artifact     struct {
		Transcript   string        `json:"transcript"`
		RecordingURL string        `json:"recordingUrl"`
		Messages     []callMessage `json:"messages"`
	} `json:"artifact"`
	Analysis struct {
		Summary string `json:"summary"`
	} `json:"analysis"`
}

func (p callPayload) toCall() telephony.Call {
	call := telephony.Call{
		ID:             p.ID,
		Status:         p.Status,
		CustomerNumber: p.Customer.Number,
		CustomerName:   p.Customer.Name,
		EndedReason:    p.EndedReason,
		CreatedAt:      p.CreatedAt,
		StartedAt:      p.StartedAt,
		EndedAt:        p.EndedAt,
		Transcript:     firstNonEmpty(p.Artifact.Transcript, p.Transcript),
		RecordingURL:   firstNonEmpty(p.Artifact.RecordingURL, p.RecordingURL),
		Summary:        p.Analysis.Summary,
	}
	if n := len(p.Artifact.Messages); n > 0 {
		call.HasMessages = true
		call.LastMessageOffset = p.Artifact.Messages[n-1].SecondsFromStart
	}
	return call
}

// CreateCall initiates an outbound call.
func (c *Client) CreateCall(ctx context.Context, req telephony.CallRequest) (*telephony.Call, error) {
	body := createCallRequest{
		Customer:      customer{Number: req.Number, Name: req.CustomerName},
		AssistantID:   req.AssistantID,
		PhoneNumberID: req.PhoneNumberID,
	}
	if len(req.Variables) > 0 || req.FirstMessage != "" {
		body.AssistantOverrides = &assistantOverrides{
			FirstMessage:   req.FirstMessage,
			VariableValues: req.Variables,
		}
	}

	var payload callPayload
	if err := c.do(ctx, http.MethodPost, "/call", nil, body, &payload); err != nil {
		return nil, fmt.Errorf("vapi: create call: %w", err)
	}
	call := payload.toCall()
	return &call, nil
}

// ListCalls returns the most recent calls.
func (c *Client) ListCalls(ctx context.Context, limit int) ([]telephony.Call, error) {
	if limit <= 0 {
		limit = 100
	}
	query := url.Values{"limit": []string{strconv.Itoa(limit)}}

	var payload []callPayload
	if err := c.do(ctx, http.MethodGet, "/call", query, nil, &payload); err != nil {
		return nil, fmt.Errorf("vapi: list calls: %w", err)
	}
	calls := make([]telephony.Call, 0, len(payload))
	for _, p := range payload {
		calls = append(calls, p.toCall())
	}
	return calls, nil
}

// GetCall fetches a single call with its outcome.
func (c *Client) GetCall(ctx context.Context, id string) (*telephony.Call, error) {
	if id == "" {
		return nil, fmt.Errorf("vapi: get call: empty id")
	}
	var payload callPayload
	if err := c.do(ctx, http.MethodGet, "/call/"+url.PathEscape(id), nil, nil, &payload); err != nil {
		return nil, fmt.Errorf("vapi: get call %s: %w", id, err)
	}
	call := payload.toCall()
	return &call, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &telephony.APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw, resp.StatusCode)}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage extracts the provider's message, which may be a string or a list of strings.
func errorMessage(raw []byte, status int) string {
	var body struct {
		Message json.RawMessage `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		var single string
		if json.Unmarshal(body.Message, &single) == nil && single != "" {
			return single
		}
		var many []string
		if json.Unmarshal(body.Message, &many) == nil && len(many) > 0 {
			return strings.Join(many, "; ")
		}
		if body.Error != "" {
			return body.Error
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return "HTTP " + strconv.Itoa(status)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
