package domain

import (
	"strings"
	"time"
)

// LeadStatus enumerates the dialing lifecycle of a lead.
type LeadStatus string

const (
	LeadStatusNew        LeadStatus = "Nuevo"
	LeadStatusScheduled  LeadStatus = "Programado"
	LeadStatusCalling    LeadStatus = "Llamando"
	LeadStatusInProgress LeadStatus = "En Proceso"
	LeadStatusRetry      LeadStatus = "Reintentar"
	LeadStatusCompleted  LeadStatus = "Completado"
	LeadStatusFailed     LeadStatus = "Fallido"
)

var knownStatuses = []LeadStatus{
	LeadStatusNew,
	LeadStatusScheduled,
	LeadStatusCalling,
	LeadStatusInProgress,
	LeadStatusRetry,
	LeadStatusCompleted,
	LeadStatusFailed,
}

// ParseLeadStatus maps the free-text status column onto a known status.
// Store rows carry variants such as "Llamando..." or lower-case values;
// anything unrecognised is returned verbatim.
func ParseLeadStatus(raw string) LeadStatus {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	norm := strings.ToLower(strings.TrimRight(s, ". "))
	for _, known := range knownStatuses {
		if strings.ToLower(string(known)) == norm {
			return known
		}
	}
	return LeadStatus(s)
}

// Terminal reports whether the status needs manual intervention to re-enter the pipeline.
func (s LeadStatus) Terminal() bool {
	return s == LeadStatusCompleted || s == LeadStatusFailed
}

// InFlight reports whether a provider call is believed to be outstanding.
func (s LeadStatus) InFlight() bool {
	return s == LeadStatusCalling || s == LeadStatusInProgress
}

// Lead is a prospective contact to be called.
type Lead struct {
	ID          string
	Name        string
	Phone       string
	Email       string
	Address     string
	Status      LeadStatus
	ScheduledAt *time.Time
	Attempts    int
	CreatedAt   time.Time
}

// Due reports whether the lead's scheduled time has arrived.
func (l Lead) Due(now time.Time) bool {
	return l.ScheduledAt == nil || !l.ScheduledAt.After(now)
}

// LeadUpdate is a partial update of a lead. Zero-valued fields are left untouched
// except when ClearSchedule is set, which nulls fecha_planificada.
type LeadUpdate struct {
	ID            string
	Status        LeadStatus
	Attempts      *int
	ScheduledAt   *time.Time
	ClearSchedule bool
}
