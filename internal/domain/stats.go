package domain

// CallStats aggregates dashboard metrics over call logs and leads.
type CallStats struct {
	TotalCalls         int64
	Completed          int64
	Failed             int64
	Busy               int64
	Voicemail          int64
	NoAnswer           int64
	Pending            int64
	AvgDurationSeconds float64
	SuccessRate        float64
	LeadsByStatus      map[LeadStatus]int64
	ActiveCalls        int
}
