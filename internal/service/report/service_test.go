package report

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/repository/memory"
)

type activeFunc func(ctx context.Context) (int, error)

func (f activeFunc) ActiveCount(ctx context.Context) (int, error) { return f(ctx) }

func TestBadgeFor(t *testing.T) {
	assert.Equal(t, BadgePending, BadgeFor(""))
	assert.Equal(t, BadgeVoicemail, BadgeFor("Contestador"))
	assert.Equal(t, BadgeSuccess, BadgeFor("Confirmada ✓"))
	assert.Equal(t, BadgeSuccess, BadgeFor("Completada"))
	assert.Equal(t, BadgeFail, BadgeFor("Error"))
	assert.Equal(t, BadgeFail, BadgeFor("Fallida"))
	assert.Equal(t, BadgeFail, BadgeFor("No contesta"))
	assert.Equal(t, BadgeWarning, BadgeFor("Sin datos"))
	assert.Equal(t, BadgePending, BadgeFor("Colgó rápido"))
}

func TestMetrics(t *testing.T) {
	store := memory.NewStore(
		domain.Lead{ID: "1", Status: domain.LeadStatusCompleted},
		domain.Lead{ID: "2", Status: domain.LeadStatusCompleted},
		domain.Lead{ID: "3", Status: domain.LeadStatusRetry},
	)
	store.AddCallLogs(
		domain.CallLog{EndedReason: "Cliente colgó", Evaluation: "Completada", DurationSeconds: 120},
		domain.CallLog{EndedReason: "Línea ocupada", Evaluation: "Ocupado"},
		domain.CallLog{EndedReason: "Contestador automático", Evaluation: "Contestador", DurationSeconds: 20},
		domain.CallLog{EndedReason: "Sin conexión (SIP)", Evaluation: "Fallida"},
		domain.CallLog{EndedReason: domain.EndedReasonInitiated},
	)

	svc := NewService(store, store, activeFunc(func(context.Context) (int, error) { return 4, nil }), nil)
	stats, err := svc.Metrics(testContext(t), nil)
	require.NoError(t, err)

	assert.EqualValues(t, 5, stats.TotalCalls)
	assert.EqualValues(t, 1, stats.Completed)
	assert.EqualValues(t, 1, stats.Busy)
	assert.EqualValues(t, 1, stats.Voicemail)
	assert.EqualValues(t, 1, stats.Failed)
	assert.EqualValues(t, 1, stats.Pending)
	assert.Equal(t, 28.0, stats.AvgDurationSeconds)
	assert.Equal(t, 20.0, stats.SuccessRate)
	assert.EqualValues(t, 2, stats.LeadsByStatus[domain.LeadStatusCompleted])
	assert.Equal(t, 4, stats.ActiveCalls)
}

func TestMetricsActiveUnknown(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store, store, activeFunc(func(context.Context) (int, error) { return 0, errors.New("down") }), nil)
	stats, err := svc.Metrics(testContext(t), nil)
	require.NoError(t, err)
	assert.Equal(t, -1, stats.ActiveCalls)
	assert.Zero(t, stats.SuccessRate)
}
