package pii

import "time"

// Category classifies the kind of personal data held in a column.
type Category string

const (
	CategoryEmail      Category = "email"
	CategoryPhone      Category = "phone"
	CategoryName       Category = "name"
	CategoryAddress    Category = "address"
	CategoryNationalID Category = "national_id"
	CategoryDOB        Category = "dob"
	CategoryIP         Category = "ip"
	CategoryOther      Category = "other"
)

// Field is a catalog entry marking one column of a target dataset as PII.
type Field struct {
	ID            string
	TargetID      string
	Dataset       string
	Column        string
	Category      Category
	LawfulBasis   string
	RetentionDays int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DSARType selects what a data subject access request does.
type DSARType string

const (
	DSARExport DSARType = "export"
	DSARErase  DSARType = "erase"
)

// DSARStatus tracks a request through processing.
type DSARStatus string

const (
	DSARPending    DSARStatus = "pending"
	DSARProcessing DSARStatus = "processing"
	DSARCompleted  DSARStatus = "completed"
	DSARFailed     DSARStatus = "failed"
)

// DSARRequest is a data subject access request scoped to one target.
// SubjectColumn/SubjectValue identify the subject's rows in each cataloged
// dataset of the target.
type DSARRequest struct {
	ID            string
	TargetID      string
	Type          DSARType
	SubjectColumn string
	SubjectValue  string
	Status        DSARStatus
	Result        string
	Error         string
	RequestedBy   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   time.Time
}
