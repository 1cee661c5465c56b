package mock

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acme/outbound-dialer/internal/config"
	"github.com/acme/outbound-dialer/internal/telephony"
)

// endedReasons are drawn for calls that do not complete normally.
var endedReasons = []string{
	"customer-busy",
	"customer-did-not-answer",
	"voicemail",
	"pipeline-error-openai-llm-failed",
	"call.in-progress.error-sip-telephony-provider-failed-to-connect-call",
}

// Provider simulates the voice provider in memory. Calls ring for a second,
// stay in progress for a random duration and then end.
type Provider struct {
	mu          sync.Mutex
	calls       map[string]*telephony.Call
	successRate float64
	maxDuration time.Duration
	now         func() time.Time
	rng         *rand.Rand
}

// NewProvider constructs a mock provider.
func NewProvider(cfg config.ProviderConfig) *Provider {
	maxDuration := cfg.RequestTimeout
	if maxDuration <= 0 {
		maxDuration = 5 * time.Second
	}
	return &Provider{
		calls:       make(map[string]*telephony.Call),
		successRate: 0.8,
		maxDuration: maxDuration,
		now:         time.Now,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateCall registers a queued call.
func (p *Provider) CreateCall(ctx context.Context, req telephony.CallRequest) (*telephony.Call, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Number == "" {
		return nil, &telephony.APIError{StatusCode: 400, Message: "customer.number must be a valid phone number"}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	call := &telephony.Call{
		ID:             uuid.NewString(),
		Status:         telephony.StatusQueued,
		CustomerNumber: req.Number,
		CustomerName:   req.CustomerName,
		CreatedAt:      p.now(),
	}
	p.calls[call.ID] = call
	out := *call
	return &out, nil
}

// ListCalls returns the most recent calls first.
func (p *Provider) ListCalls(ctx context.Context, limit int) ([]telephony.Call, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	calls := make([]telephony.Call, 0, len(p.calls))
	for _, call := range p.calls {
		p.advance(call)
		calls = append(calls, *call)
	}
	sort.Slice(calls, func(i, j int) bool { return calls[i].CreatedAt.After(calls[j].CreatedAt) })
	if limit > 0 && len(calls) > limit {
		calls = calls[:limit]
	}
	return calls, nil
}

// GetCall returns a single call.
func (p *Provider) GetCall(ctx context.Context, id string) (*telephony.Call, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	call, ok := p.calls[id]
	if !ok {
		return nil, &telephony.APIError{StatusCode: 404, Message: fmt.Sprintf("call %s not found", id)}
	}
	p.advance(call)
	out := *call
	return &out, nil
}

func (p *Provider) advance(call *telephony.Call) {
	if call.Ended() {
		return
	}
	now := p.now()
	age := now.Sub(call.CreatedAt)
	if age < time.Second {
		call.Status = telephony.StatusRinging
		return
	}
	if call.StartedAt == nil {
		started := call.CreatedAt.Add(time.Second)
		call.StartedAt = &started
	}
	if p.rng.Float64() < 0.5 && now.Sub(*call.StartedAt) < p.maxDuration {
		call.Status = telephony.StatusInProgress
		return
	}

	call.Status = telephony.StatusEnded
	ended := now
	call.EndedAt = &ended
	if p.rng.Float64() <= p.successRate {
		call.EndedReason = "customer-ended-call"
		call.Transcript = "AI: Hola, le llamo de parte de la empresa.\nUser: Gracias."
		return
	}
	call.EndedReason = endedReasons[p.rng.Intn(len(endedReasons))]
}
