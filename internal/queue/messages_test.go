package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme/outbound-dialer/internal/domain"
)

func TestEventMessageWireFormat(t *testing.T) {
	lead := domain.Lead{ID: "L1", Name: "Ana", Phone: "+34600111222", Status: domain.LeadStatusCalling}
	event := domain.NewCallEvent(domain.CallEventDispatched, lead, time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC))
	event.ProviderCallID = "call-1"
	event.Attempt = 2

	raw, err := json.Marshal(NewEventMessage(event))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "dispatched", fields["type"])
	assert.Equal(t, "L1", fields["lead_id"])
	assert.Equal(t, "call-1", fields["provider_call_id"])
	assert.Equal(t, "Llamando", fields["status"])
	assert.NotContains(t, fields, "detail")

	var decoded EventMessage
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, event, decoded.ToDomain())
}
