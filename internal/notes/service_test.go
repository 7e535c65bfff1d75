package notes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Note{}, &ShareGrant{}); err != nil {
		t.Fatalf("failed to migrate note schema: %v", err)
	}

	service, err := NewService(ServiceConfig{
		Database:   db,
		IDProvider: NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func mustCreate(t *testing.T, service *Service, authorID, title, body string) Note {
	t.Helper()
	note, err := service.Create(context.Background(), authorID, title, body)
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	return note
}

func mustNoteID(t *testing.T, value string) NoteID {
	t.Helper()
	id, err := NewNoteID(value)
	if err != nil {
		t.Fatalf("unexpected note id error: %v", err)
	}
	return id
}

func TestCreateAssignsIDAndTimestamps(t *testing.T) {
	service := newTestService(t)

	note := mustCreate(t, service, "alice", "groceries", "milk, eggs")
	if note.ID == "" {
		t.Fatalf("expected assigned note id")
	}
	if note.AuthorID != "alice" {
		t.Fatalf("unexpected author %q", note.AuthorID)
	}
	if note.Version != 1 {
		t.Fatalf("expected initial version 1, got %d", note.Version)
	}
	if !note.CreatedAt.Equal(note.LastModifiedAt) {
		t.Fatalf("expected created and last-modified to match at creation")
	}
}

func TestCreateRequiresContent(t *testing.T) {
	service := newTestService(t)

	if _, err := service.Create(context.Background(), "alice", "  ", ""); !errors.Is(err, ErrEmptyNote) {
		t.Fatalf("expected ErrEmptyNote, got %v", err)
	}
}

func TestGetEnforcesReadAuthorization(t *testing.T) {
	service := newTestService(t)
	note := mustCreate(t, service, "alice", "secret plan", "step one")

	if _, err := service.Get(context.Background(), "alice", mustNoteID(t, note.ID)); err != nil {
		t.Fatalf("author must read own note: %v", err)
	}
	if _, err := service.Get(context.Background(), "bob", mustNoteID(t, note.ID)); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for stranger, got %v", err)
	}
	if _, err := service.Get(context.Background(), "alice", mustNoteID(t, "no-such-note")); !errors.Is(err, ErrNoteNotFound) {
		t.Fatalf("expected ErrNoteNotFound, got %v", err)
	}
}

func TestShareGrantsReadAccess(t *testing.T) {
	service := newTestService(t)
	note := mustCreate(t, service, "alice", "shared doc", "body")
	noteID := mustNoteID(t, note.ID)

	if err := service.Share(context.Background(), "alice", noteID, "bob", CapabilityRead); err != nil {
		t.Fatalf("unexpected share error: %v", err)
	}

	if _, err := service.Get(context.Background(), "bob", noteID); err != nil {
		t.Fatalf("shared user must read note: %v", err)
	}

	// Read grant does not allow writing.
	title := "hijacked"
	_, err := service.Update(context.Background(), "bob", noteID, UpdateRequest{Title: &title})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for write with read grant, got %v", err)
	}
}

func TestShareRejections(t *testing.T) {
	service := newTestService(t)
	note := mustCreate(t, service, "alice", "doc", "body")
	noteID := mustNoteID(t, note.ID)

	if err := service.Share(context.Background(), "alice", noteID, "alice", CapabilityRead); !errors.Is(err, ErrSelfShare) {
		t.Fatalf("expected ErrSelfShare, got %v", err)
	}

	if err := service.Share(context.Background(), "alice", noteID, "bob", CapabilityRead); err != nil {
		t.Fatalf("unexpected share error: %v", err)
	}
	if err := service.Share(context.Background(), "alice", noteID, "bob", CapabilityWrite); !errors.Is(err, ErrAlreadyShared) {
		t.Fatalf("expected ErrAlreadyShared, got %v", err)
	}

	// A shared writer still cannot share onward.
	other := mustCreate(t, service, "alice", "second", "body")
	otherID := mustNoteID(t, other.ID)
	if err := service.Share(context.Background(), "alice", otherID, "carol", CapabilityWrite); err != nil {
		t.Fatalf("unexpected share error: %v", err)
	}
	if err := service.Share(context.Background(), "carol", otherID, "dave", CapabilityRead); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-author share, got %v", err)
	}
}

func TestUpdateBumpsVersionAndTimestamp(t *testing.T) {
	service := newTestService(t)
	note := mustCreate(t, service, "alice", "draft", "v1")
	noteID := mustNoteID(t, note.ID)

	time.Sleep(5 * time.Millisecond)

	body := "v2"
	updated, err := service.Update(context.Background(), "alice", noteID, UpdateRequest{Body: &body})
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if updated.Body != "v2" || updated.Title != "draft" {
		t.Fatalf("unexpected updated note: %+v", updated)
	}
	if updated.Version != note.Version+1 {
		t.Fatalf("expected version bump, got %d", updated.Version)
	}
	if !updated.LastModifiedAt.After(note.LastModifiedAt) {
		t.Fatalf("expected last-modified to advance")
	}

	if _, err := service.Update(context.Background(), "alice", noteID, UpdateRequest{}); !errors.Is(err, ErrEmptyNote) {
		t.Fatalf("expected ErrEmptyNote for empty update, got %v", err)
	}
}

func TestWriteGrantAllowsUpdate(t *testing.T) {
	service := newTestService(t)
	note := mustCreate(t, service, "alice", "doc", "body")
	noteID := mustNoteID(t, note.ID)

	if err := service.Share(context.Background(), "alice", noteID, "bob", CapabilityWrite); err != nil {
		t.Fatalf("unexpected share error: %v", err)
	}

	body := "edited by bob"
	if _, err := service.Update(context.Background(), "bob", noteID, UpdateRequest{Body: &body}); err != nil {
		t.Fatalf("write grant should allow update: %v", err)
	}
}

func TestDeleteIsOwnerOnly(t *testing.T) {
	service := newTestService(t)
	note := mustCreate(t, service, "alice", "doc", "body")
	noteID := mustNoteID(t, note.ID)

	if err := service.Share(context.Background(), "alice", noteID, "bob", CapabilityWrite); err != nil {
		t.Fatalf("unexpected share error: %v", err)
	}
	if err := service.Delete(context.Background(), "bob", noteID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-author delete, got %v", err)
	}

	if err := service.Delete(context.Background(), "alice", noteID); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if _, err := service.Get(context.Background(), "alice", noteID); !errors.Is(err, ErrNoteNotFound) {
		t.Fatalf("expected deleted note to be gone, got %v", err)
	}

	grants, err := service.Grants(context.Background(), noteID)
	if err != nil {
		t.Fatalf("unexpected grants error: %v", err)
	}
	if len(grants) != 0 {
		t.Fatalf("expected grants to be removed with the note, got %d", len(grants))
	}
}

func TestListIncludesAuthoredAndShared(t *testing.T) {
	service := newTestService(t)

	mine := mustCreate(t, service, "bob", "mine", "body")
	shared := mustCreate(t, service, "alice", "from alice", "body")
	mustCreate(t, service, "alice", "private", "body")

	if err := service.Share(context.Background(), "alice", mustNoteID(t, shared.ID), "bob", CapabilityRead); err != nil {
		t.Fatalf("unexpected share error: %v", err)
	}

	listed, err := service.List(context.Background(), "bob")
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected authored + shared notes, got %d", len(listed))
	}
	seen := map[string]bool{}
	for _, note := range listed {
		seen[note.ID] = true
	}
	if !seen[mine.ID] || !seen[shared.ID] {
		t.Fatalf("missing expected notes in %v", seen)
	}
}

func TestSearchMatchesTitleAndBodyOfAuthoredNotes(t *testing.T) {
	service := newTestService(t)

	groceries := mustCreate(t, service, "alice", "groceries", "milk and eggs")
	journal := mustCreate(t, service, "alice", "journal", "bought groceries today")
	mustCreate(t, service, "alice", "unrelated", "nothing here")
	foreign := mustCreate(t, service, "bob", "groceries", "bob's list")

	if err := service.Share(context.Background(), "bob", mustNoteID(t, foreign.ID), "alice", CapabilityRead); err != nil {
		t.Fatalf("unexpected share error: %v", err)
	}

	found, err := service.Search(context.Background(), "alice", "groceries")
	if err != nil {
		t.Fatalf("unexpected search error: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 matches among authored notes, got %d", len(found))
	}
	seen := map[string]bool{}
	for _, note := range found {
		seen[note.ID] = true
	}
	if !seen[groceries.ID] || !seen[journal.ID] {
		t.Fatalf("missing expected matches in %v", seen)
	}

	empty, err := service.Search(context.Background(), "alice", "   ")
	if err != nil {
		t.Fatalf("unexpected search error: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("blank query should match nothing, got %d", len(empty))
	}
}

func TestConcurrentSharesAllSucceed(t *testing.T) {
	const targets = 8

	service := newTestService(t)
	note := mustCreate(t, service, "alice", "popular", "body")
	noteID := mustNoteID(t, note.ID)

	errs := make([]error, targets)
	var wg sync.WaitGroup
	wg.Add(targets)
	for i := 0; i < targets; i++ {
		go func(index int) {
			defer wg.Done()
			target := fmt.Sprintf("user-%d", index)
			errs[index] = service.Share(context.Background(), "alice", noteID, target, CapabilityRead)
		}(i)
	}
	wg.Wait()

	for index, err := range errs {
		if err != nil {
			t.Fatalf("share %d failed: %v", index, err)
		}
	}

	grants, err := service.Grants(context.Background(), noteID)
	if err != nil {
		t.Fatalf("unexpected grants error: %v", err)
	}
	if len(grants) != targets {
		t.Fatalf("expected %d grants with no lost updates, got %d", targets, len(grants))
	}
}

func TestConcurrentDuplicateShareYieldsSingleGrant(t *testing.T) {
	const attempts = 6

	service := newTestService(t)
	note := mustCreate(t, service, "alice", "doc", "body")
	noteID := mustNoteID(t, note.ID)

	errs := make([]error, attempts)
	var wg sync.WaitGroup
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func(index int) {
			defer wg.Done()
			errs[index] = service.Share(context.Background(), "alice", noteID, "bob", CapabilityRead)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrAlreadyShared):
		default:
			t.Fatalf("unexpected share error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one share to win, got %d", succeeded)
	}

	grants, err := service.Grants(context.Background(), noteID)
	if err != nil {
		t.Fatalf("unexpected grants error: %v", err)
	}
	if len(grants) != 1 {
		t.Fatalf("expected a single grant, got %d", len(grants))
	}
}
