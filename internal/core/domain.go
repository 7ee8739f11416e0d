package core

import (
	"strings"
	"time"
)

const (
	Unsynced SyncState = "unsynced"
	Synced   SyncState = "synced"
)

type (
	// SyncState tracks whether a record's current local content has been
	// acknowledged by the remote backend.
	SyncState string

	Money struct {
		Cents int64
	}

	// Record is one expense entry. The ID is assigned on the client at
	// creation time and never changes; it is the merge key between the
	// local and remote copies.
	Record struct {
		ID            string
		OwnerID       string
		Amount        Money
		Category      string
		Note          string
		AttachmentRef string // opaque reference, the engine never touches the payload
		OccurredAt    time.Time
		SyncState     SyncState
		LastSyncError string
		CreatedAt     int64 // epoch milliseconds
		UpdatedAt     int64 // epoch milliseconds, monotonically non-decreasing
	}

	// CategoryTotal is one row of the per-category aggregate view.
	CategoryTotal struct {
		Category string
		Total    Money
	}
)

func (s SyncState) IsValid() bool {
	return s == Unsynced || s == Synced
}

func (r Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(r.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.Category) == "" {
		return ErrEmptyCategory
	}
	if len(r.Note) > 500 {
		return ErrNoteTooLong
	}
	if r.OccurredAt.IsZero() {
		return ErrZeroOccurredAt
	}
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
