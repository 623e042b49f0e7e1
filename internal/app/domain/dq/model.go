package dq

import "time"

// CheckType identifies a registered data quality check.
type CheckType string

const (
	CheckRowCount             CheckType = "row_count"
	CheckNullRate             CheckType = "null_rate"
	CheckUniqueness           CheckType = "uniqueness"
	CheckRange                CheckType = "range"
	CheckCardinality          CheckType = "cardinality"
	CheckReferentialIntegrity CheckType = "referential_integrity"
	CheckTimeliness           CheckType = "timeliness"
	CheckSchemaDrift          CheckType = "schema_drift"
	CheckVolumeAnomaly        CheckType = "volume_anomaly"
	CheckExpression           CheckType = "expression"
)

// Severity ranks how serious a failed check is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Valid reports whether the severity is known.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// Target is a named connection to a database that checks run against.
type Target struct {
	ID        string
	Name      string
	Driver    string
	DSN       string
	Schema    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Rule is a configured data quality check bound to a target dataset.
type Rule struct {
	ID        string
	TargetID  string
	Name      string
	Dataset   string
	Check     CheckType
	Params    map[string]string
	Severity  Severity
	Schedule  string
	Enabled   bool
	LastRun   time.Time
	NextRun   time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RunStatus tracks a rule execution through its lifecycle.
type RunStatus string

const (
	RunPending RunStatus = "pending"
	RunRunning RunStatus = "running"
	RunPassed  RunStatus = "passed"
	RunFailed  RunStatus = "failed"
	RunError   RunStatus = "error"
)

// Run records a single execution of a rule.
type Run struct {
	ID          string
	RuleID      string
	TargetID    string
	Status      RunStatus
	TriggeredBy string
	Metric      float64
	Violations  int
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
	CreatedAt   time.Time
}

// Violation is a single finding produced by a failed check.
type Violation struct {
	ID        string
	RunID     string
	RuleID    string
	Severity  Severity
	Message   string
	Observed  string
	Expected  string
	Sample    map[string]string
	CreatedAt time.Time
}

// MetricPoint is a recorded observation feeding trend and anomaly analysis.
type MetricPoint struct {
	ID         string
	RuleID     string
	Name       string
	Value      float64
	RecordedAt time.Time
}
