package model

import "time"

// FieldKind identifies which of the marker-prone record fields is being
// repaired. The kind selects the context heuristics that apply.
type FieldKind string

const (
	FieldResult     FieldKind = "result"
	FieldTestSystem FieldKind = "test_system"
	FieldEquipment  FieldKind = "equipment"
)

// RepairMethod records which heuristic produced a cleaned value.
type RepairMethod string

const (
	MethodDirectClean    RepairMethod = "direct_clean"
	MethodContextExtract RepairMethod = "context_extract"
	MethodKeywordSearch  RepairMethod = "keyword_search"
)

// CleanedValue is the resolved output for one field.
type CleanedValue struct {
	Value         string       `json:"value"`
	IsUnspecified bool         `json:"is_unspecified"`
	Method        RepairMethod `json:"method"`
}

// TestRecord is one structured lab-test result as persisted per user.
// (user_id, test_name, test_date) is unique; repair mutates fields in
// place and never creates a second record under that key.
type TestRecord struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	TestName        string    `json:"test_name"`
	Result          string    `json:"result"`
	ReferenceValues string    `json:"reference_values"`
	Units           string    `json:"units"`
	TestDate        string    `json:"test_date"`
	TestSystem      string    `json:"test_system"`
	Equipment       string    `json:"equipment"`
	Notes           string    `json:"notes"`
	SourceRecordID  string    `json:"source_record_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MedicalRecord is the raw document a TestRecord was extracted from. Its
// content, split into lines, forms the search corpus for context repair.
type MedicalRecord struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	RecordType string    `json:"record_type"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// FieldUpdate is a partial update for a TestRecord. Only the three
// marker-prone fields are updatable; nil means leave the column alone.
type FieldUpdate struct {
	Result     *string
	TestSystem *string
	Equipment  *string
	UpdatedAt  time.Time
}

// Empty reports whether the update would change nothing.
func (u FieldUpdate) Empty() bool {
	return u.Result == nil && u.TestSystem == nil && u.Equipment == nil
}

// UpdatedTest is one entry in a RepairReport diff.
type UpdatedTest struct {
	ID            string `json:"id"`
	TestName      string `json:"test_name"`
	OldResult     string `json:"old_result"`
	NewResult     string `json:"new_result"`
	OldTestSystem string `json:"old_test_system"`
	NewTestSystem string `json:"new_test_system"`
	OldEquipment  string `json:"old_equipment"`
	NewEquipment  string `json:"new_equipment"`
}

// RepairReport summarizes one reconciliation run. UpdatedTests is ordered
// by the caller-supplied record order, so a fixed input batch yields a
// deterministic report.
type RepairReport struct {
	CleanedCount int           `json:"cleaned_count"`
	UpdatedTests []UpdatedTest `json:"updated_tests"`
}

// CleanupSummary is the combined outcome of a full cleanup operation.
type CleanupSummary struct {
	CleanedCount      int           `json:"cleaned_count"`
	DeletedDuplicates int           `json:"deleted_duplicates"`
	UpdatedTests      []UpdatedTest `json:"updated_tests"`
}

// ReprocessPhase tracks the destructive reprocess saga.
type ReprocessPhase string

const (
	ReprocessPending  ReprocessPhase = "pending_delete"
	ReprocessDeleted  ReprocessPhase = "records_deleted"
	ReprocessComplete ReprocessPhase = "complete"
	ReprocessFailed   ReprocessPhase = "failed"
)

// ReprocessIntent is the recorded state of a delete-then-reextract
// operation. A crash mid-operation leaves the intent in its last phase so
// the interruption is detectable and resumable.
type ReprocessIntent struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	Phase          ReprocessPhase `json:"phase"`
	DeletedCount   int            `json:"deleted_count"`
	ExtractedCount int            `json:"extracted_count"`
	Error          string         `json:"error,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// ReprocessSummary is the outcome of running the extraction pipeline over
// a user's stored documents.
type ReprocessSummary struct {
	RecordsProcessed int `json:"records_processed"`
	TestsCount       int `json:"tests_count"`
}
