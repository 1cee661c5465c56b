package nocodb

import (
	"context"
	"fmt"

	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/repository"
)

// Call log table columns.
const (
	logID           = "Id"
	logProviderID   = "vapi_call_id"
	logLeadName     = "lead_name"
	logPhone        = "phone_called"
	logCallTime     = "call_time"
	logEndedReason  = "ended_reason"
	logDuration     = "duration_seconds"
	logEvaluation   = "evaluation"
	logTranscript   = "transcript"
	logRecordingURL = "recording_url"
	logNotes        = "Notes"
	logCreated      = "CreatedAt"
)

// CallLogStore implements repository.CallLogStore over a NocoDB table.
type CallLogStore struct {
	client *Client
	table  string
}

// NewCallLogStore constructs a call-log store.
func NewCallLogStore(client *Client, table string) *CallLogStore {
	return &CallLogStore{client: client, table: table}
}

// ListCallLogs implements repository.CallLogStore.
func (s *CallLogStore) ListCallLogs(ctx context.Context, filter repository.CallLogFilter) ([]domain.CallLog, error) {
	q := Query{Sort: "-" + logCreated}
	if filter.EndedReason != "" {
		if err := Literal(filter.EndedReason); err != nil {
			return nil, fmt.Errorf("nocodb: call logs: %w", err)
		}
		q.Where = Eq(logEndedReason, filter.EndedReason)
	}
	if filter.Since == nil && filter.Limit > 0 {
		q.Limit = filter.Offset + filter.Limit
	}

	rows, err := s.client.List(ctx, s.table, q)
	if err != nil {
		return nil, err
	}

	logs := make([]domain.CallLog, 0, len(rows))
	for _, row := range rows {
		l := callLogFromRecord(row)
		if filter.Since != nil && l.CallTime.Before(*filter.Since) {
			continue
		}
		logs = append(logs, l)
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(logs) {
			return nil, nil
		}
		logs = logs[filter.Offset:]
	}
	if filter.Limit > 0 && len(logs) > filter.Limit {
		logs = logs[:filter.Limit]
	}
	return logs, nil
}

// FindByProviderCallID implements repository.CallLogStore.
func (s *CallLogStore) FindByProviderCallID(ctx context.Context, providerCallID string) (*domain.CallLog, error) {
	return s.first(ctx, Query{Where: Eq(logProviderID, providerCallID), Sort: "-" + logCreated, Limit: 1}, providerCallID)
}

// LatestForPhone implements repository.CallLogStore.
func (s *CallLogStore) LatestForPhone(ctx context.Context, phone string) (*domain.CallLog, error) {
	return s.first(ctx, Query{Where: Eq(logPhone, phone), Sort: "-" + logCallTime, Limit: 1}, phone)
}

func (s *CallLogStore) first(ctx context.Context, q Query, key string) (*domain.CallLog, error) {
	if err := Literal(key); err != nil {
		return nil, fmt.Errorf("nocodb: call log: %w", err)
	}
	rows, err := s.client.List(ctx, s.table, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("nocodb: call log %s: %w", key, repository.ErrNotFound)
	}
	l := callLogFromRecord(rows[0])
	return &l, nil
}

// AppendCallLog implements repository.CallLogStore.
func (s *CallLogStore) AppendCallLog(ctx context.Context, log *domain.CallLog) error {
	row := Record{
		logProviderID:  log.ProviderCallID,
		logLeadName:    log.LeadName,
		logPhone:       log.Phone,
		logCallTime:    FormatTime(log.CallTime),
		logEndedReason: log.EndedReason,
	}
	if log.Notes != "" {
		row[logNotes] = log.Notes
	}
	created, err := s.client.Create(ctx, s.table, []Record{row})
	if err != nil {
		return err
	}
	if len(created) > 0 {
		log.ID = created[0].String(logID, "id")
	}
	return nil
}

// UpdateCallLogs implements repository.CallLogStore.
func (s *CallLogStore) UpdateCallLogs(ctx context.Context, updates []domain.CallLogUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	rows := make([]Record, 0, len(updates))
	for _, u := range updates {
		row := Record{
			logID:          u.ID,
			logEndedReason: u.EndedReason,
			logDuration:    u.DurationSeconds,
			logEvaluation:  u.Evaluation,
		}
		if u.Transcript != "" {
			row[logTranscript] = u.Transcript
		}
		if u.RecordingURL != "" {
			row[logRecordingURL] = u.RecordingURL
		}
		rows = append(rows, row)
	}
	return s.client.Update(ctx, s.table, rows)
}

func callLogFromRecord(r Record) domain.CallLog {
	l := domain.CallLog{
		ID:              r.String(logID, "id"),
		ProviderCallID:  r.String(logProviderID),
		LeadName:        r.String(logLeadName),
		Phone:           r.String(logPhone),
		EndedReason:     r.String(logEndedReason),
		DurationSeconds: r.Int(logDuration),
		Evaluation:      r.String(logEvaluation),
		Transcript:      r.String(logTranscript),
		RecordingURL:    r.String(logRecordingURL),
		Notes:           r.String(logNotes),
	}
	if t := r.Time(logCallTime, logCreated); t != nil {
		l.CallTime = *t
	}
	return l
}
