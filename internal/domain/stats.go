package domain

// Stats is the dashboard aggregate.
type Stats struct {
	TotalCreated  int64 `json:"total_created"`
	TotalToday    int64 `json:"total_today"`
	PendingToday  int64 `json:"pending_today"`
	TotalResolved int64 `json:"total_resolved"`
	TotalFailed   int64 `json:"total_failed"`
	Open          int64 `json:"open"`
}
