package notes

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNoteNotFound indicates a note id with no live record behind it.
	ErrNoteNotFound = errors.New("notes: note not found")
	// ErrInvalidNoteID indicates an empty or oversized note identifier.
	ErrInvalidNoteID = errors.New("notes: invalid note id")
	// ErrInvalidCapability indicates a capability outside the known set, or
	// one that cannot be granted.
	ErrInvalidCapability = errors.New("notes: invalid capability")
	// ErrEmptyNote indicates a create or update without title or body.
	ErrEmptyNote = errors.New("notes: title or body required")
)

const maxIdentifierLength = 36

// Capability enumerates the actions a user may perform on a note.
type Capability string

const (
	CapabilityRead   Capability = "read"
	CapabilityWrite  Capability = "write"
	CapabilityShare  Capability = "share"
	CapabilityDelete Capability = "delete"
)

// ParseGrantableCapability accepts the capabilities that may appear on a
// share grant. Share and delete never leave the author, so they are not
// grantable.
func ParseGrantableCapability(value string) (Capability, error) {
	switch Capability(strings.ToLower(strings.TrimSpace(value))) {
	case CapabilityRead:
		return CapabilityRead, nil
	case CapabilityWrite:
		return CapabilityWrite, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCapability, value)
	}
}

// Covers reports whether holding c satisfies a request for other. A write
// grant covers read.
func (c Capability) Covers(other Capability) bool {
	if c == other {
		return true
	}
	return c == CapabilityWrite && other == CapabilityRead
}

// Note is the persisted note record. AuthorID is immutable after creation
// and the author never appears in the note's share grants: ownership is
// checked as a first-class condition, not as list membership. Version backs
// the optimistic-concurrency check on mutation.
type Note struct {
	ID             string    `gorm:"column:id;primaryKey;size:36;not null"`
	Title          string    `gorm:"column:title;type:text;not null"`
	Body           string    `gorm:"column:body;type:text;not null"`
	AuthorID       string    `gorm:"column:author_id;size:36;not null;index"`
	Version        int64     `gorm:"column:version;not null;default:1"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
	LastModifiedAt time.Time `gorm:"column:last_modified_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}

// ShareGrant records one (user, capability) pair on a note's share list. The
// unique index keeps a user from holding more than one grant per note.
type ShareGrant struct {
	NoteID     string     `gorm:"column:note_id;size:36;not null;uniqueIndex:idx_grants_note_user,priority:1"`
	UserID     string     `gorm:"column:user_id;size:36;not null;uniqueIndex:idx_grants_note_user,priority:2;index"`
	Capability Capability `gorm:"column:capability;size:16;not null"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (ShareGrant) TableName() string {
	return "note_share_grants"
}

// NoteID represents a validated note identifier.
type NoteID string

// NewNoteID validates raw input and returns a NoteID.
func NewNoteID(rawInput string) (NoteID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNoteID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNoteID, maxIdentifierLength)
	}
	return NoteID(trimmed), nil
}

// String returns the underlying string identifier.
func (id NoteID) String() string {
	return string(id)
}
