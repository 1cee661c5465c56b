package nocodb

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme/outbound-dialer/internal/config"
	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/repository"
	apperrors "github.com/acme/outbound-dialer/pkg/errors"
)

func newTestClient(t *testing.T, pageSize int, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.NocoDBConfig{BaseURL: srv.URL, Token: "tok", PageSize: pageSize, Timeout: time.Second})
}

func TestWhereGrammar(t *testing.T) {
	assert.Equal(t, "(status,eq,Programado)", Eq("status", "Programado"))
	assert.Equal(t, "((status,eq,Programado)~or(status,eq,Reintentar))",
		Or(Eq("status", "Programado"), Eq("status", "Reintentar")))
	assert.Equal(t, "((status,eq,Nuevo)~and(fecha_planificada,blank))",
		And(Or(Eq("status", "Nuevo")), Blank("fecha_planificada")))
	assert.Equal(t, "", And(Or(), ""))
}

func TestFilterValuesCannotAlterWhereClause(t *testing.T) {
	var requests int
	client := newTestClient(t, 25, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"list":[],"pageInfo":{"isLastPage":true}}`))
	})
	leads := NewLeadStore(client, "leads")
	logs := NewCallLogStore(client, "logs")

	_, err := leads.GetLead(testContext(t), "1)~or(status,eq,Nuevo")
	require.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = logs.FindByProviderCallID(testContext(t), "x)~or(id,gt,0")
	require.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = logs.ListCallLogs(testContext(t), repository.CallLogFilter{EndedReason: "a~b"})
	require.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Zero(t, requests)

	_, err = leads.GetLead(testContext(t), "42")
	require.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, 1, requests)
}

func TestListLeadsPaginates(t *testing.T) {
	var mu sync.Mutex
	var offsets []string
	client := newTestClient(t, 2, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok", r.Header.Get("xc-token"))
		assert.Equal(t, "/leads/records", r.URL.Path)
		assert.Equal(t, "((status,eq,Programado)~or(status,eq,Reintentar))", r.URL.Query().Get("where"))

		mu.Lock()
		offsets = append(offsets, r.URL.Query().Get("offset"))
		mu.Unlock()

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		var rows []map[string]any
		for i := offset; i < 3 && i < offset+2; i++ {
			rows = append(rows, map[string]any{
				"unique_id":         fmt.Sprintf("L%d", i),
				"name":              fmt.Sprintf("Lead %d", i),
				"phone":             "600111222",
				"status":            "Programado",
				"intentos":          "1",
				"fecha_planificada": "2025-01-10 09:30:00+00:00",
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"list": rows, "pageInfo": map[string]any{"isLastPage": offset+2 >= 3}})
	})

	store := NewLeadStore(client, "leads")
	leads, err := store.ListLeads(testContext(t), repository.LeadFilter{
		Statuses: []domain.LeadStatus{domain.LeadStatusScheduled, domain.LeadStatusRetry},
	})
	require.NoError(t, err)
	require.Len(t, leads, 3)
	assert.Equal(t, []string{"0", "2"}, offsets)

	assert.Equal(t, "L0", leads[0].ID)
	assert.Equal(t, domain.LeadStatusScheduled, leads[0].Status)
	assert.Equal(t, 1, leads[0].Attempts)
	require.NotNil(t, leads[0].ScheduledAt)
	assert.Equal(t, time.Date(2025, 1, 10, 9, 30, 0, 0, time.UTC), *leads[0].ScheduledAt)
}

func TestUpdateLeadsBatchesArrayBodies(t *testing.T) {
	var mu sync.Mutex
	var batches [][]map[string]any
	client := newTestClient(t, 0, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		var body []map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		batches = append(batches, body)
		mu.Unlock()
		_, _ = w.Write([]byte(`[]`))
	})

	updates := make([]domain.LeadUpdate, 23)
	for i := range updates {
		updates[i] = domain.LeadUpdate{ID: fmt.Sprintf("L%d", i), Status: domain.LeadStatusCalling, ClearSchedule: true}
	}
	require.NoError(t, NewLeadStore(client, "leads").UpdateLeads(testContext(t), updates))

	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 10)
	assert.Len(t, batches[1], 10)
	assert.Len(t, batches[2], 3)

	first := batches[0][0]
	assert.Equal(t, "L0", first["unique_id"])
	assert.Equal(t, "Llamando", first["status"])
	v, present := first["fecha_planificada"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestAppendCallLogReturnsID(t *testing.T) {
	client := newTestClient(t, 0, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body []map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body, 1)
		assert.Equal(t, "call-1", body[0]["vapi_call_id"])
		assert.Equal(t, "Call Initiated", body[0]["ended_reason"])
		_, _ = w.Write([]byte(`[{"Id":42}]`))
	})

	log := &domain.CallLog{ProviderCallID: "call-1", LeadName: "Ana", Phone: "+34600111222", CallTime: time.Now(), EndedReason: domain.EndedReasonInitiated}
	require.NoError(t, NewCallLogStore(client, "logs").AppendCallLog(testContext(t), log))
	assert.Equal(t, "42", log.ID)
}

func TestLatestForPhoneNotFound(t *testing.T) {
	client := newTestClient(t, 0, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "(phone_called,eq,+34600111222)", r.URL.Query().Get("where"))
		assert.Equal(t, "-call_time", r.URL.Query().Get("sort"))
		_, _ = w.Write([]byte(`{"list":[],"pageInfo":{"isLastPage":true}}`))
	})

	_, err := NewCallLogStore(client, "logs").LatestForPhone(testContext(t), "+34600111222")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStatusErrorMapsSentinels(t *testing.T) {
	client := newTestClient(t, 0, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`upstream down`))
	})

	_, err := NewLeadStore(client, "leads").ListLeads(testContext(t), repository.LeadFilter{})
	require.ErrorIs(t, err, apperrors.ErrUnavailable)
}

func TestRecordAccessorsTolerateTypes(t *testing.T) {
	r := Record{
		"n_str":  "12",
		"n_num":  json.Number("7.0"),
		"empty":  "  ",
		"ts_iso": "2025-03-01T08:00:00.000Z",
		"bad_ts": "tomorrow",
	}
	assert.Equal(t, 12, r.Int("n_str"))
	assert.Equal(t, 7, r.Int("n_num"))
	assert.Equal(t, 0, r.Int("missing"))
	assert.Equal(t, "12", r.String("empty", "n_str"))
	require.NotNil(t, r.Time("ts_iso"))
	assert.Nil(t, r.Time("bad_ts"))
}
