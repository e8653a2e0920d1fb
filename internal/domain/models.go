package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AmountTolerance is the maximum difference between two document totals that
// still counts as "the same amount" for the date+amount duplicate check.
var AmountTolerance = decimal.New(1, -2)

// RecountThresholdPercent flags count records whose variance exceeds this
// percentage of the expected quantity.
var RecountThresholdPercent = decimal.NewFromInt(5)

type DuplicateMethod string

const (
	DuplicateByInvoiceNumber DuplicateMethod = "INVOICE_NUMBER"
	DuplicateByFileHash      DuplicateMethod = "FILE_HASH"
	DuplicateByFingerprint   DuplicateMethod = "CONTENT_FINGERPRINT"
	DuplicateByDateAmount    DuplicateMethod = "DATE_AMOUNT"
)

type ItemStatus string

const (
	StatusPendingPlacement ItemStatus = "PENDING_PLACEMENT"
	StatusPlaced           ItemStatus = "PLACED"
	StatusReadyToCount     ItemStatus = "READY_TO_COUNT"
	StatusCounted          ItemStatus = "COUNTED"
	StatusLocked           ItemStatus = "LOCKED"
	StatusConsumed         ItemStatus = "CONSUMED"
)

func (s ItemStatus) Valid() bool {
	switch s {
	case StatusPendingPlacement, StatusPlaced, StatusReadyToCount,
		StatusCounted, StatusLocked, StatusConsumed:
		return true
	}
	return false
}

// CountableStatuses are the statuses whose quantities contribute to the
// expected side of a physical count.
var CountableStatuses = []ItemStatus{StatusPlaced, StatusReadyToCount}

func IsCountable(s ItemStatus) bool {
	for _, c := range CountableStatuses {
		if s == c {
			return true
		}
	}
	return false
}

type CountStatus string

const (
	CountOpen      CountStatus = "OPEN"
	CountCompleted CountStatus = "COMPLETED"
)

// ParsedInvoice is the shape produced by the out-of-scope PDF extractor.
type ParsedInvoice struct {
	Identifier   string          `json:"identifier" validate:"required"`
	Date         time.Time       `json:"date" validate:"required"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Items        []ParsedItem    `json:"items" validate:"dive"`
	IsCreditMemo bool            `json:"is_credit_memo"`
}

type ParsedItem struct {
	Code        string          `json:"code" validate:"required"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"qty"`
	Unit        string          `json:"unit"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// Document is the canonical record of one accepted invoice or credit memo.
// Rows are never mutated or deleted once written.
type Document struct {
	ID           int64           `json:"id"`
	Identifier   string          `json:"identifier"`
	DocumentDate time.Time       `json:"document_date"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	ItemCount    int             `json:"item_count"`
	FileHash     string          `json:"file_hash"`
	Fingerprint  string          `json:"fingerprint"`
	FilePath     string          `json:"file_path"`
	IsCreditMemo bool            `json:"is_credit_memo"`
	ProcessedAt  time.Time       `json:"processed_at"`
	ProcessedBy  string          `json:"processed_by"`
}

// DuplicateAttempt is one rejected ingestion attempt. Append-only.
type DuplicateAttempt struct {
	ID                int64           `json:"id"`
	Identifier        string          `json:"identifier"`
	FilePath          string          `json:"file_path"`
	FileHash          string          `json:"file_hash"`
	Method            DuplicateMethod `json:"method"`
	MatchedIdentifier string          `json:"matched_identifier"`
	AttemptedAt       time.Time       `json:"attempted_at"`
	AttemptedBy       string          `json:"attempted_by"`
	Notes             string          `json:"notes,omitempty"`
}

// DuplicateCheck is the read-only result of running the four detection
// methods against the registry.
type DuplicateCheck struct {
	IsDuplicate bool            `json:"is_duplicate"`
	Method      DuplicateMethod `json:"method,omitempty"`
	Matched     *Document       `json:"matched,omitempty"`
	Reasons     []string        `json:"reasons,omitempty"`
}

type InvoiceItem struct {
	ID            int64           `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	ItemCode      string          `json:"item_code"`
	Description   string          `json:"description"`
	Quantity      decimal.Decimal `json:"quantity"`
	Unit          string          `json:"unit"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	LineTotal     decimal.Decimal `json:"line_total"`
	Status        ItemStatus      `json:"status"`
	Location      *string         `json:"location,omitempty"`
	DocumentDate  time.Time       `json:"document_date"`
	AssignedBy    *string         `json:"assigned_by,omitempty"`
	AssignedAt    *time.Time      `json:"assigned_at,omitempty"`
	LockedAt      *time.Time      `json:"locked_at,omitempty"`
	LockedBy      *string         `json:"locked_by,omitempty"`
	LockReason    *string         `json:"lock_reason,omitempty"`
	UnlockedAt    *time.Time      `json:"unlocked_at,omitempty"`
	UnlockedBy    *string         `json:"unlocked_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// LocationAssignment is the append-only audit trail behind an item's
// current location.
type LocationAssignment struct {
	ID            int64           `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	ItemCode      string          `json:"item_code"`
	Quantity      decimal.Decimal `json:"quantity"`
	Unit          string          `json:"unit"`
	Location      string          `json:"location"`
	AssignedBy    string          `json:"assigned_by"`
	AssignedAt    time.Time       `json:"assigned_at"`
	Reason        string          `json:"reason,omitempty"`
}

type PhysicalCount struct {
	ID                 uuid.UUID       `json:"id"`
	CountDate          time.Time       `json:"count_date"`
	Status             CountStatus     `json:"status"`
	CreatedBy          string          `json:"created_by"`
	CreatedAt          time.Time       `json:"created_at"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	RecordCount        int             `json:"record_count"`
	TotalCountedValue  decimal.Decimal `json:"total_counted_value"`
	TotalExpectedValue decimal.Decimal `json:"total_expected_value"`
	TotalVarianceValue decimal.Decimal `json:"total_variance_value"`
}

// CountRecord is one counting event for one (item, location). Immutable;
// re-counts create new records.
type CountRecord struct {
	ID              int64           `json:"id"`
	CountID         uuid.UUID       `json:"count_id"`
	ItemCode        string          `json:"item_code"`
	Location        string          `json:"location"`
	ExpectedQty     decimal.Decimal `json:"expected_qty"`
	CountedQty      decimal.Decimal `json:"counted_qty"`
	Variance        decimal.Decimal `json:"variance"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	VarianceValue   decimal.Decimal `json:"variance_value"`
	RequiresRecount bool            `json:"requires_recount"`
	CountedBy       string          `json:"counted_by"`
	CreatedAt       time.Time       `json:"created_at"`
}

// CountImportRow is one normalized row from a count sheet upload.
type CountImportRow struct {
	ItemCode    string          `json:"item_code" validate:"required"`
	Description string          `json:"description"`
	Location    string          `json:"location" validate:"required"`
	CountedQty  decimal.Decimal `json:"counted_qty"`
	Unit        string          `json:"unit"`
}

type CountImportReport struct {
	Imported int               `json:"imported"`
	Skipped  int               `json:"skipped"`
	Errors   []ValidationError `json:"errors,omitempty"`
}

// ExpectedItem is one aggregated (item, location) expected-quantity line,
// the system side of a count sheet.
type ExpectedItem struct {
	ItemCode    string          `json:"item_code"`
	Description string          `json:"description"`
	Location    string          `json:"location"`
	Unit        string          `json:"unit"`
	ExpectedQty decimal.Decimal `json:"expected_qty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type Snapshot struct {
	ID                uuid.UUID       `json:"id"`
	Name              string          `json:"name"`
	CountDate         time.Time       `json:"count_date"`
	CutoffDate        time.Time       `json:"cutoff_date"`
	Notes             string          `json:"notes,omitempty"`
	LastInvoiceNumber string          `json:"last_invoice_number,omitempty"`
	CountedValue      decimal.Decimal `json:"counted_value"`
	ExpectedValue     decimal.Decimal `json:"expected_value"`
	VarianceValue     decimal.Decimal `json:"variance_value"`
	ItemCount         int             `json:"item_count"`
	CreatedBy         string          `json:"created_by"`
	CreatedAt         time.Time       `json:"created_at"`
}

type SnapshotItem struct {
	ID            int64           `json:"id"`
	SnapshotID    uuid.UUID       `json:"snapshot_id"`
	ItemCode      string          `json:"item_code"`
	Location      string          `json:"location"`
	CountedQty    decimal.Decimal `json:"counted_qty"`
	ExpectedQty   decimal.Decimal `json:"expected_qty"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	CountedValue  decimal.Decimal `json:"counted_value"`
	VarianceValue decimal.Decimal `json:"variance_value"`
}

// SnapshotReport adds operator-selected later documents on top of a
// snapshot baseline.
type SnapshotReport struct {
	SnapshotID     uuid.UUID       `json:"snapshot_id"`
	BaselineValue  decimal.Decimal `json:"baseline_value"`
	AddedDocuments []Document      `json:"added_documents,omitempty"`
	AddedValue     decimal.Decimal `json:"added_value"`
	TotalValue     decimal.Decimal `json:"total_value"`
}

// CutoffConfig is the persisted partition produced by PrepareCutoff. It is
// passed explicitly between workflow calls, never held as ambient state.
type CutoffConfig struct {
	ID            int64     `json:"id"`
	CutoffDate    time.Time `json:"cutoff_date"`
	IncludedCount int       `json:"included_count"`
	ExcludedCount int       `json:"excluded_count"`
	Locked        bool      `json:"locked"`
	PreparedBy    string    `json:"prepared_by"`
	PreparedAt    time.Time `json:"prepared_at"`
}

type RegistryStats struct {
	AcceptedDocuments int                     `json:"accepted_documents"`
	TotalAttempts     int                     `json:"total_attempts"`
	AttemptsByMethod  map[DuplicateMethod]int `json:"attempts_by_method"`
}
