package etl

import "time"

// Mapping describes how one destination column is produced from the source
// row. Path, when set, is a gjson path applied to the JSON value found in
// Source; otherwise the source column value is copied as-is.
type Mapping struct {
	Dest   string `yaml:"dest" json:"dest"`
	Source string `yaml:"source" json:"source"`
	Path   string `yaml:"path,omitempty" json:"path,omitempty"`
}

// Pipeline is a configured extract/transform/load job between two targets.
type Pipeline struct {
	ID         string
	Name       string
	SourceID   string
	Query      string
	DestID     string
	DestTable  string
	Mappings   []Mapping
	Schedule   string
	Enabled    bool
	LastRun    time.Time
	NextRun    time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RunStatus tracks a pipeline execution.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run records one execution of a pipeline.
type Run struct {
	ID            string
	PipelineID    string
	Status        RunStatus
	TriggeredBy   string
	RowsExtracted int
	RowsLoaded    int
	Error         string
	StartedAt     time.Time
	FinishedAt    time.Time
	CreatedAt     time.Time
}
