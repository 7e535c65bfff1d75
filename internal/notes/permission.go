package notes

import "errors"

var (
	// ErrForbidden indicates the user holds no capability covering the
	// requested action on the note.
	ErrForbidden = errors.New("notes: insufficient permissions")
	// ErrSelfShare indicates an attempt to share a note with its own author.
	ErrSelfShare = errors.New("notes: cannot share a note with yourself")
	// ErrAlreadyShared indicates the target user already holds a grant on
	// the note.
	ErrAlreadyShared = errors.New("notes: note already shared with user")
)

// Authorize decides whether userID may perform capability on the note. The
// author is allowed everything; otherwise an equal or covering grant must
// exist. Pure decision over already-loaded records: no storage I/O happens
// here.
func Authorize(note Note, grants []ShareGrant, userID string, capability Capability) error {
	if note.AuthorID == userID {
		return nil
	}
	for _, grant := range grants {
		if grant.UserID == userID && grant.Capability.Covers(capability) {
			return nil
		}
	}
	return ErrForbidden
}

// CheckShare decides whether ownerID may add a grant for targetUserID on the
// note. Only the author holds the share capability; sharing with the author
// is rejected; at most one grant per user. The caller persists the grant and
// is responsible for the atomicity of its read-decide-write cycle.
func CheckShare(note Note, grants []ShareGrant, ownerID, targetUserID string) error {
	if err := Authorize(note, grants, ownerID, CapabilityShare); err != nil {
		return err
	}
	if targetUserID == note.AuthorID {
		return ErrSelfShare
	}
	for _, grant := range grants {
		if grant.UserID == targetUserID {
			return ErrAlreadyShared
		}
	}
	return nil
}
