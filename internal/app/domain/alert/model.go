package alert

import (
	"time"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/dq"
)

// Alert is raised when a rule run fails or errors.
type Alert struct {
	ID        string
	RuleID    string
	RunID     string
	Severity  dq.Severity
	Message   string
	CreatedAt time.Time
}
