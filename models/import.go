package models

import (
	"errors"
	"time"
)

// ErrMetadataNotFound is what a metadata provider returns when it has no
// movie for an external id
var ErrMetadataNotFound = errors.New("no metadata found")

// ImportEntry is one unit of import work produced by the text parser
type ImportEntry struct {
	ExternalID string          `json:"externalId"`
	Links      []LanguageGroup `json:"links"`
}

// ImportProgress holds the live counters of an import run
type ImportProgress struct {
	Seen  int `json:"current"`
	Total int `json:"total"`
	Added int `json:"added"`
}

// Percent returns the completion ratio of the run in the range 0..100
func (p ImportProgress) Percent() int {
	if p.Total == 0 {
		return 0
	}
	return p.Seen * 100 / p.Total
}

// EntryStatus is the outcome of resolving a single import entry
type EntryStatus string

// Entry status constants
const (
	EntryAdded    EntryStatus = "added"
	EntryNotFound EntryStatus = "not_found"
	EntryFailed   EntryStatus = "failed"
)

// EntryOutcome records what happened to one import entry
type EntryOutcome struct {
	ExternalID string      `json:"externalId"`
	Status     EntryStatus `json:"status"`
	MovieID    string      `json:"movieId,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// ImportState is the state of the import session
type ImportState string

// Import state constants
const (
	ImportIdle    ImportState = "idle"
	ImportRunning ImportState = "running"
)

// ImportMode tells where the import text came from
type ImportMode string

// Import mode constants
const (
	ImportModeFile ImportMode = "file"
	ImportModeText ImportMode = "text"
)

// ImportStatus is a snapshot of the import session for the admin view
type ImportStatus struct {
	State        ImportState    `json:"state"`
	Mode         ImportMode     `json:"mode,omitempty"`
	Source       string         `json:"source,omitempty"`
	Progress     ImportProgress `json:"progress"`
	Percent      int            `json:"percent"`
	NotFound     int            `json:"notFound"`
	Failed       int            `json:"failed"`
	Error        string         `json:"error,omitempty"`
	CatalogCount int            `json:"catalogCount"`
	StartedAt    *time.Time     `json:"startedAt,omitempty"`
	FinishedAt   *time.Time     `json:"finishedAt,omitempty"`
}
