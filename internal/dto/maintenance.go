package dto

// Reconciliation task names accepted by the maintenance endpoints and the CLI.
const (
	TaskBackfill = "backfill"
	TaskDedupe   = "dedupe"
	TaskOrphans  = "orphans"
	TaskPopulate = "populate"
	TaskCheck    = "check"
)

// ReconcileReport summarises a best-effort batch run.
type ReconcileReport struct {
	Task      string                `json:"task"`
	Processed int                   `json:"processed"`
	Changed   int                   `json:"changed"`
	Skipped   int                   `json:"skipped"`
	Failed    int                   `json:"failed"`
	Notes     []string              `json:"notes,omitempty"`
	Lines     []EnrollmentCheckLine `json:"lines,omitempty"`
}

// EnrollmentCheckLine is one row of the enrollment audit.
type EnrollmentCheckLine struct {
	EnrollmentID string `json:"enrollmentId"`
	StudentID    string `json:"studentId"`
	StudentName  string `json:"studentName"`
	Role         string `json:"role"`
	YearName     string `json:"yearName"`
	IsCurrent    bool   `json:"isCurrent"`
	IsArchived   bool   `json:"isArchived"`
}

// MaintenanceJob is returned when a task is queued.
type MaintenanceJob struct {
	JobID string `json:"jobId"`
	Task  string `json:"task"`
}
