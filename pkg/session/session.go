// Package session defines the contract between the deploy engine and the
// warehouse session. The engine never talks to the warehouse directly:
// it asks the session for prior application state, hands it executable
// SQL, and asks it to append change-history rows. Implementations own
// statement splitting, transmission, and the locking discipline of the
// change-history table.
package session

import (
	"go.uber.org/zap"

	"github.com/ormasoftchile/shift/pkg/script"
)

// Status is the recorded outcome of one script application.
type Status string

const (
	StatusSuccess Status = "Success"
	StatusFailed  Status = "Failed"
)

// VersionedRecord is the stored state of a versioned script that
// succeeded at least once.
type VersionedRecord struct {
	Version  string
	Script   string
	Checksum string
}

// Metadata is the change-history state the engine needs before deciding
// anything: which versioned scripts have been applied, the last checksum
// of each repeatable script, and the highest version ever published.
type Metadata struct {
	// Versioned maps script name to its application record.
	Versioned map[string]VersionedRecord
	// RepeatableChecksums maps script name to a tuple whose first
	// element is the checksum recorded at last application.
	RepeatableChecksums map[string][]string
	// MaxPublishedVersion is empty when the history is empty.
	MaxPublishedVersion string
}

// ChangeRecord is one change-history row. Version is empty for R and A
// scripts. Timestamp and actor are assigned by the warehouse.
type ChangeRecord struct {
	Version       string
	Script        string
	Checksum      string
	ExecutionTime int
	Status        Status
	ErrorMessage  string
}

// Details exposes read-only connection attributes used only for logging.
type Details struct {
	Account            string
	Role               string
	Warehouse          string
	Database           string
	Schema             string
	ChangeHistoryTable string // fully qualified
}

// Session is the warehouse collaborator.
type Session interface {
	// GetScriptMetadata reads the change-history table, optionally
	// creating it first.
	GetScriptMetadata(createChangeHistoryTable, dryRun bool) (*Metadata, error)

	// ApplyChangeScript executes SQL and writes a history row on
	// success or failure. The checksum is computed by the engine over
	// the canonical form; sessions must record it verbatim rather than
	// hash the executable content they receive.
	ApplyChangeScript(s *script.Script, content, checksum string, dryRun bool, logger *zap.Logger, outOfOrder bool) error

	// RecordChangeHistory appends a history row; used by the CLI
	// dispatch path, which executes outside the session.
	RecordChangeHistory(s *script.Script, checksum string, executionTime int, status Status, logger *zap.Logger, errorMessage string) error

	// Details returns connection attributes for logging.
	Details() Details
}
