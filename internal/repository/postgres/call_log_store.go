package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/repository"
)

// CallLogStore persists call logs.
type CallLogStore struct {
	db *sqlx.DB
}

// NewCallLogStore constructs the store.
func NewCallLogStore(db *sqlx.DB) *CallLogStore {
	return &CallLogStore{db: db}
}

type callLogRecord struct {
	ID              int64          `db:"id"`
	ProviderCallID  sql.NullString `db:"vapi_call_id"`
	LeadName        sql.NullString `db:"lead_name"`
	Phone           sql.NullString `db:"phone_called"`
	CallTime        sql.NullTime   `db:"call_time"`
	EndedReason     sql.NullString `db:"ended_reason"`
	DurationSeconds sql.NullInt64  `db:"duration_seconds"`
	Evaluation      sql.NullString `db:"evaluation"`
	Transcript      sql.NullString `db:"transcript"`
	RecordingURL    sql.NullString `db:"recording_url"`
	Notes           sql.NullString `db:"notes"`
}

func (r callLogRecord) toModel() domain.CallLog {
	return domain.CallLog{
		ID:              strconv.FormatInt(r.ID, 10),
		ProviderCallID:  r.ProviderCallID.String,
		LeadName:        r.LeadName.String,
		Phone:           r.Phone.String,
		CallTime:        r.CallTime.Time.UTC(),
		EndedReason:     r.EndedReason.String,
		DurationSeconds: int(r.DurationSeconds.Int64),
		Evaluation:      r.Evaluation.String,
		Transcript:      r.Transcript.String,
		RecordingURL:    r.RecordingURL.String,
		Notes:           r.Notes.String,
	}
}

const callLogColumns = `id, vapi_call_id, lead_name, phone_called, call_time, ended_reason,
	duration_seconds, evaluation, transcript, recording_url, notes`

// ListCallLogs implements repository.CallLogStore.
func (s *CallLogStore) ListCallLogs(ctx context.Context, filter repository.CallLogFilter) ([]domain.CallLog, error) {
	var (
		where []string
		args  []any
	)
	if filter.EndedReason != "" {
		args = append(args, filter.EndedReason)
		where = append(where, fmt.Sprintf("ended_reason = $%d", len(args)))
	}
	if filter.Since != nil {
		args = append(args, filter.Since.UTC())
		where = append(where, fmt.Sprintf("call_time >= $%d", len(args)))
	}

	query := `SELECT ` + callLogColumns + ` FROM call_logs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var rows []callLogRecord
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("call logs: list: %w", err)
	}
	logs := make([]domain.CallLog, 0, len(rows))
	for _, r := range rows {
		logs = append(logs, r.toModel())
	}
	return logs, nil
}

// FindByProviderCallID implements repository.CallLogStore.
func (s *CallLogStore) FindByProviderCallID(ctx context.Context, providerCallID string) (*domain.CallLog, error) {
	return s.one(ctx, `SELECT `+callLogColumns+` FROM call_logs WHERE vapi_call_id = $1 ORDER BY id DESC LIMIT 1`, providerCallID)
}

// LatestForPhone implements repository.CallLogStore.
func (s *CallLogStore) LatestForPhone(ctx context.Context, phone string) (*domain.CallLog, error) {
	return s.one(ctx, `SELECT `+callLogColumns+` FROM call_logs
		WHERE phone_called = $1 AND vapi_call_id IS NOT NULL AND vapi_call_id <> ''
		ORDER BY call_time DESC, id DESC LIMIT 1`, phone)
}

func (s *CallLogStore) one(ctx context.Context, query string, arg any) (*domain.CallLog, error) {
	var rec callLogRecord
	err := s.db.GetContext(ctx, &rec, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("call logs: get: %w", err)
	}
	l := rec.toModel()
	return &l, nil
}

// AppendCallLog implements repository.CallLogStore.
func (s *CallLogStore) AppendCallLog(ctx context.Context, log *domain.CallLog) error {
	callTime := log.CallTime
	if callTime.IsZero() {
		callTime = time.Now()
	}
	var id int64
	err := s.db.QueryRowxContext(ctx, `INSERT INTO call_logs (
		vapi_call_id, lead_name, phone_called, call_time, ended_reason, notes
	) VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')) RETURNING id`,
		log.ProviderCallID, log.LeadName, log.Phone, callTime.UTC(), log.EndedReason, log.Notes,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("call logs: insert: %w", err)
	}
	log.ID = strconv.FormatInt(id, 10)
	return nil
}

// UpdateCallLogs implements repository.CallLogStore.
func (s *CallLogStore) UpdateCallLogs(ctx context.Context, updates []domain.CallLogUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	const query = `UPDATE call_logs SET
		ended_reason = $2,
		duration_seconds = $3,
		evaluation = $4,
		transcript = COALESCE(NULLIF($5, ''), transcript),
		recording_url = COALESCE(NULLIF($6, ''), recording_url)
	WHERE id = $1`

	return withTx(ctx, s.db, "call logs: update", func(tx *sqlx.Tx) error {
		for _, u := range updates {
			id, err := strconv.ParseInt(u.ID, 10, 64)
			if err != nil {
				return fmt.Errorf("call logs: update: invalid id %q: %w", u.ID, err)
			}
			res, err := tx.ExecContext(ctx, query, id, u.EndedReason, u.DurationSeconds, u.Evaluation, u.Transcript, u.RecordingURL)
			if err != nil {
				return fmt.Errorf("call logs: update %s: %w", u.ID, err)
			}
			if err := expectRow(res, "call logs: update", u.ID); err != nil {
				return err
			}
		}
		return nil
	})
}
