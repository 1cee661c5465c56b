package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/acme/outbound-dialer/internal/domain"
	"github.com/acme/outbound-dialer/internal/repository"
)

// LeadStore reads and writes the lead table that backs the spreadsheet UI.
type LeadStore struct {
	db *sqlx.DB
}

// NewLeadStore constructs the store.
func NewLeadStore(db *sqlx.DB) *LeadStore {
	return &LeadStore{db: db}
}

type leadRecord struct {
	ID          string         `db:"unique_id"`
	Name        sql.NullString `db:"name"`
	Phone       sql.NullString `db:"phone"`
	Email       sql.NullString `db:"email"`
	Address     sql.NullString `db:"address"`
	Status      sql.NullString `db:"status"`
	ScheduledAt sql.NullTime   `db:"fecha_planificada"`
	Attempts    sql.NullInt64  `db:"intentos"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r leadRecord) toModel() domain.Lead {
	lead := domain.Lead{
		ID:        r.ID,
		Name:      r.Name.String,
		Phone:     r.Phone.String,
		Email:     r.Email.String,
		Address:   r.Address.String,
		Status:    domain.ParseLeadStatus(r.Status.String),
		Attempts:  int(r.Attempts.Int64),
		CreatedAt: r.CreatedAt,
	}
	if r.ScheduledAt.Valid {
		t := r.ScheduledAt.Time.UTC()
		lead.ScheduledAt = &t
	}
	return lead
}

const leadColumns = `unique_id, name, phone, email, address, status, fecha_planificada, intentos, created_at`

// ListLeads implements repository.LeadStore.
func (s *LeadStore) ListLeads(ctx context.Context, filter repository.LeadFilter) ([]domain.Lead, error) {
	var (
		where []string
		args  []any
	)
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.Unscheduled {
		where = append(where, "fecha_planificada IS NULL")
	}

	query := `SELECT ` + leadColumns + ` FROM leads`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	if filter.OldestFirst {
		query += ` ORDER BY created_at ASC`
	} else {
		query += ` ORDER BY unique_id ASC`
	}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var rows []leadRecord
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("leads: list: %w", err)
	}
	leads := make([]domain.Lead, 0, len(rows))
	for _, r := range rows {
		leads = append(leads, r.toModel())
	}
	return leads, nil
}

// GetLead implements repository.LeadStore.
func (s *LeadStore) GetLead(ctx context.Context, id string) (*domain.Lead, error) {
	var rec leadRecord
	err := s.db.GetContext(ctx, &rec, `SELECT `+leadColumns+` FROM leads WHERE unique_id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("leads: get: %w", err)
	}
	lead := rec.toModel()
	return &lead, nil
}

// UpdateLeads applies every update in one transaction.
func (s *LeadStore) UpdateLeads(ctx context.Context, updates []domain.LeadUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	const query = `UPDATE leads SET
		status = COALESCE(NULLIF($2, ''), status),
		intentos = COALESCE($3, intentos),
		fecha_planificada = CASE WHEN $4 THEN NULL ELSE COALESCE($5, fecha_planificada) END
	WHERE unique_id = $1`

	return withTx(ctx, s.db, "leads: update", func(tx *sqlx.Tx) error {
		for _, u := range updates {
			var attempts sql.NullInt64
			if u.Attempts != nil {
				attempts = sql.NullInt64{Int64: int64(*u.Attempts), Valid: true}
			}
			var scheduled sql.NullTime
			if u.ScheduledAt != nil {
				scheduled = sql.NullTime{Time: u.ScheduledAt.UTC(), Valid: true}
			}
			res, err := tx.ExecContext(ctx, query, u.ID, string(u.Status), attempts, u.ClearSchedule, scheduled)
			if err != nil {
				return fmt.Errorf("leads: update %s: %w", u.ID, err)
			}
			if err := expectRow(res, "leads: update", u.ID); err != nil {
				return err
			}
		}
		return nil
	})
}
