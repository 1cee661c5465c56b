package vapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme/outbound-dialer/internal/config"
	"github.com/acme/outbound-dialer/internal/telephony"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.ProviderConfig{BaseURL: srv.URL + "/", APIKey: "secret", RequestTimeout: time.Second})
}

func TestCreateCallSendsOverrides(t *testing.T) {
	var got createCallRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/call", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"call-1","status":"queued","customer":{"number":"+34600111222"}}`))
	})

	call, err := client.CreateCall(testContext(t), telephony.CallRequest{
		Number:        "+34600111222",
		AssistantID:   "asst",
		PhoneNumberID: "pn",
		Variables:     map[string]string{"nombre": "Ana"},
		FirstMessage:  "Hola",
	})
	require.NoError(t, err)
	assert.Equal(t, "call-1", call.ID)
	assert.True(t, call.Active())

	assert.Equal(t, "+34600111222", got.Customer.Number)
	assert.Equal(t, "asst", got.AssistantID)
	assert.Equal(t, "pn", got.PhoneNumberID)
	require.NotNil(t, got.AssistantOverrides)
	assert.Equal(t, "Ana", got.AssistantOverrides.VariableValues["nombre"])
	assert.Equal(t, "Hola", got.AssistantOverrides.FirstMessage)
}

func TestCreateCallReturnsAPIError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
		class   telephony.ErrorClass
	}{
		{"string message", http.StatusBadRequest, `{"message":"SIP 503 from carrier"}`, "SIP 503 from carrier", telephony.ClassRetryable},
		{"list message", http.StatusBadRequest, `{"message":["customer.number must be a valid phone number"]}`, "customer.number must be a valid phone number", telephony.ClassTerminal},
		{"error field", http.StatusUnauthorized, `{"error":"Unauthorized"}`, "Unauthorized", telephony.ClassTerminal},
		{"too many requests", http.StatusTooManyRequests, `slow down`, "slow down", telephony.ClassRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := client.CreateCall(testContext(t), telephony.CallRequest{Number: "+34600111222"})
			require.Error(t, err)

			var apiErr *telephony.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.Equal(t, tt.class, telephony.Classify(err))
		})
	}
}

func TestListCallsPassesLimit(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[{"id":"a","status":"queued"},{"id":"b","status":"ended"},{"id":"c","status":"in-progress"}]`))
	})

	calls, err := client.ListCalls(testContext(t), 0)
	require.NoError(t, err)
	require.Len(t, calls, 3)
	assert.Equal(t, 2, telephony.CountActive(calls))
}

func TestGetCallMapsArtifacts(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/call/abc", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"id":"abc","status":"ended","endedReason":"customer-ended-call",
			"startedAt":"2025-01-10T10:00:00Z","endedAt":"2025-01-10T10:01:30Z",
			"customer":{"number":"+34600111222","name":"Ana"},
			"artifact":{"transcript":"AI: Hola","recordingUrl":"https://rec/abc.wav","messages":[{"secondsFromStart":1.2},{"secondsFromStart":74.6}]},
			"analysis":{"summary":"interested"}
		}`))
	})

	call, err := client.GetCall(testContext(t), "abc")
	require.NoError(t, err)
	assert.True(t, call.Ended())
	assert.Equal(t, "customer-ended-call", call.EndedReason)
	assert.Equal(t, "AI: Hola", call.Transcript)
	assert.Equal(t, "https://rec/abc.wav", call.RecordingURL)
	assert.Equal(t, "interested", call.Summary)
	assert.Equal(t, "Ana", call.CustomerName)
	assert.Equal(t, 75, call.DurationSeconds())
}

func TestTransportErrorIsUnknown(t *testing.T) {
	client := NewClient(config.ProviderConfig{BaseURL: "http://127.0.0.1:1", RequestTimeout: 200 * time.Millisecond})
	_, err := client.CreateCall(testContext(t), telephony.CallRequest{Number: "+34600111222"})
	require.Error(t, err)
	assert.Equal(t, telephony.ClassUnknown, telephony.Classify(err))
}
