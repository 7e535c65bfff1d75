package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError wraps an operation.reason code around the causing error so
// callers and logs can identify the failing step.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "notes.service.new"
	opCreate     = "notes.create"
	opGet        = "notes.get"
	opList       = "notes.list"
	opUpdate     = "notes.update"
	opDelete     = "notes.delete"
	opShare      = "notes.share"
	opSearch     = "notes.search"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// IDProvider abstracts note id generation.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the notes service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service owns note persistence and enforces the permission engine's
// verdicts around every operation. Mutations of a note and its grants run
// inside a transaction holding a row lock on the note, so concurrent
// read-decide-write cycles on the same note serialize.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the notes service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Create persists a new note owned by authorID.
func (s *Service) Create(ctx context.Context, authorID, title, body string) (Note, error) {
	if strings.TrimSpace(title) == "" && strings.TrimSpace(body) == "" {
		return Note{}, ErrEmptyNote
	}

	noteID, err := s.idProvider.NewID()
	if err != nil {
		return Note{}, newServiceError(opCreate, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	note := Note{
		ID:             noteID,
		Title:          title,
		Body:           body,
		AuthorID:       authorID,
		Version:        1,
		CreatedAt:      now,
		LastModifiedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("user_id", authorID))
		return Note{}, newServiceError(opCreate, "insert_failed", err)
	}
	return note, nil
}

// Get loads a single note, enforcing read authorization for userID.
func (s *Service) Get(ctx context.Context, userID string, noteID NoteID) (Note, error) {
	note, grants, err := s.loadNoteWithGrants(ctx, s.db, noteID, false)
	if err != nil {
		return Note{}, err
	}
	if err := Authorize(note, grants, userID, CapabilityRead); err != nil {
		return Note{}, err
	}
	return note, nil
}

// List returns the notes authored by userID together with those shared with
// it, most recently modified first.
func (s *Service) List(ctx context.Context, userID string) ([]Note, error) {
	var notes []Note
	err := s.db.WithContext(ctx).
		Where("author_id = ?", userID).
		Or("id IN (?)", s.db.Model(&ShareGrant{}).Select("note_id").Where("user_id = ?", userID)).
		Order("last_modified_at DESC").
		Find(&notes).Error
	if err != nil {
		s.logError(opList, "query_failed", err, zap.String("user_id", userID))
		return nil, newServiceError(opList, "query_failed", err)
	}
	return notes, nil
}

// UpdateRequest carries the mutable note fields; nil means "leave as is".
type UpdateRequest struct {
	Title *string
	Body  *string
}

// Update applies a title/body mutation after a write-authorization check.
// The write is conditional on the version observed under the row lock, so a
// concurrent mutation cannot be silently overwritten.
func (s *Service) Update(ctx context.Context, userID string, noteID NoteID, req UpdateRequest) (Note, error) {
	if req.Title == nil && req.Body == nil {
		return Note{}, ErrEmptyNote
	}

	var updated Note
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		note, grants, err := s.loadNoteWithGrants(ctx, tx, noteID, true)
		if err != nil {
			return err
		}
		if err := Authorize(note, grants, userID, CapabilityWrite); err != nil {
			return err
		}

		changes := map[string]interface{}{
			"last_modified_at": s.clock().UTC(),
			"version":          note.Version + 1,
		}
		if req.Title != nil {
			changes["title"] = *req.Title
		}
		if req.Body != nil {
			changes["body"] = *req.Body
		}

		result := tx.Model(&Note{}).
			Where("id = ? AND version = ?", note.ID, note.Version).
			Updates(changes)
		if result.Error != nil {
			s.logError(opUpdate, "update_failed", result.Error, zap.String("note_id", note.ID))
			return newServiceError(opUpdate, "update_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return newServiceError(opUpdate, "version_conflict", nil)
		}

		return tx.Where("id = ?", note.ID).Take(&updated).Error
	})
	if txErr != nil {
		return Note{}, txErr
	}
	return updated, nil
}

// Delete removes a note and its grants. Only the author holds the delete
// capability.
func (s *Service) Delete(ctx context.Context, userID string, noteID NoteID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		note, grants, err := s.loadNoteWithGrants(ctx, tx, noteID, true)
		if err != nil {
			return err
		}
		if err := Authorize(note, grants, userID, CapabilityDelete); err != nil {
			return err
		}
		if err := tx.Where("note_id = ?", note.ID).Delete(&ShareGrant{}).Error; err != nil {
			s.logError(opDelete, "grant_delete_failed", err, zap.String("note_id", note.ID))
			return newServiceError(opDelete, "grant_delete_failed", err)
		}
		if err := tx.Where("id = ?", note.ID).Delete(&Note{}).Error; err != nil {
			s.logError(opDelete, "delete_failed", err, zap.String("note_id", note.ID))
			return newServiceError(opDelete, "delete_failed", err)
		}
		return nil
	})
}

// Share records a (targetUserID, capability) grant on the note after the
// permission engine approves. The row lock plus the unique (note, user)
// index keep two concurrent shares from inserting duplicate grants.
func (s *Service) Share(ctx context.Context, ownerID string, noteID NoteID, targetUserID string, capability Capability) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		note, grants, err := s.loadNoteWithGrants(ctx, tx, noteID, true)
		if err != nil {
			return err
		}
		if err := CheckShare(note, grants, ownerID, targetUserID); err != nil {
			return err
		}

		grant := ShareGrant{
			NoteID:     note.ID,
			UserID:     targetUserID,
			Capability: capability,
			CreatedAt:  s.clock().UTC(),
		}
		if err := tx.Create(&grant).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(strings.ToLower(err.Error()), "unique constraint") {
				return ErrAlreadyShared
			}
			s.logError(opShare, "grant_insert_failed", err, zap.String("note_id", note.ID))
			return newServiceError(opShare, "grant_insert_failed", err)
		}
		return nil
	})
}

// Search returns the caller's authored notes whose title or body contain the
// query keywords.
func (s *Service) Search(ctx context.Context, userID, query string) ([]Note, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return []Note{}, nil
	}

	keywords := strings.Fields(trimmed)
	conditions := make([]string, 0, len(keywords))
	args := make([]interface{}, 0, 2*len(keywords))
	for _, keyword := range keywords {
		pattern := "%" + escapeLike(keyword) + "%"
		conditions = append(conditions, `(title LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}

	var notes []Note
	err := s.db.WithContext(ctx).
		Where("author_id = ?", userID).
		Where(strings.Join(conditions, " OR "), args...).
		Order("last_modified_at DESC").
		Find(&notes).Error
	if err != nil {
		s.logError(opSearch, "query_failed", err, zap.String("user_id", userID))
		return nil, newServiceError(opSearch, "query_failed", err)
	}
	return notes, nil
}

// Grants exposes the share list of a note for serialization; callers must
// have already authorized the read.
func (s *Service) Grants(ctx context.Context, noteID NoteID) ([]ShareGrant, error) {
	var grants []ShareGrant
	if err := s.db.WithContext(ctx).Where("note_id = ?", noteID.String()).Find(&grants).Error; err != nil {
		return nil, newServiceError(opGet, "grant_query_failed", err)
	}
	return grants, nil
}

func (s *Service) loadNoteWithGrants(ctx context.Context, tx *gorm.DB, noteID NoteID, forUpdate bool) (Note, []ShareGrant, error) {
	query := tx.WithContext(ctx)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var note Note
	err := query.Where("id = ?", noteID.String()).Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, nil, ErrNoteNotFound
	}
	if err != nil {
		s.logError(opGet, "note_select_failed", err, zap.String("note_id", noteID.String()))
		return Note{}, nil, newServiceError(opGet, "note_select_failed", err)
	}

	var grants []ShareGrant
	if err := tx.WithContext(ctx).Where("note_id = ?", note.ID).Find(&grants).Error; err != nil {
		s.logError(opGet, "grant_select_failed", err, zap.String("note_id", noteID.String()))
		return Note{}, nil, newServiceError(opGet, "grant_select_failed", err)
	}
	return note, grants, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	logger := s.logger
	if logger == nil {
		logger = noOpLogger
	}
	fields = append(fields, zap.String("op", fmt.Sprintf("%s.%s", operation, reason)), zap.Error(err))
	logger.Error("notes operation failed", fields...)
}
