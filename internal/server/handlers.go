package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mprlab/noted/internal/notes"
	"github.com/mprlab/noted/internal/users"
)

type signUpPayload struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Username  string `json:"username" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6"`
}

func (h *httpHandler) handleSignUp(c *gin.Context) {
	var payload signUpPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondValidationError(c, gin.H{"details": err.Error()})
		return
	}

	account, err := h.users.SignUp(c.Request.Context(), users.SignUpRequest{
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Username:  payload.Username,
		Password:  payload.Password,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	respond(c, http.StatusOK, "User created successfully.", gin.H{"user_id": account.ID})
}

type signInPayload struct {
	Username string `json:"username" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *httpHandler) handleSignIn(c *gin.Context) {
	var payload signInPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondValidationError(c, gin.H{"details": err.Error()})
		return
	}

	session, err := h.users.SignIn(c.Request.Context(), payload.Username, payload.Password)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	respond(c, http.StatusOK, "User logged in successfully.", gin.H{
		"access_token": session.Token,
		"token_type":   "Bearer",
		"expires_in":   session.ExpiresIn,
	})
}

type notePayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type noteResponse struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Body           string         `json:"body"`
	Author         string         `json:"author"`
	CreatedAt      time.Time      `json:"created_at"`
	LastModifiedAt time.Time      `json:"last_modified_at"`
	SharedWith     []grantPayload `json:"shared_with,omitempty"`
}

type grantPayload struct {
	UserID     string `json:"user_id"`
	Capability string `json:"capability"`
}

func presentNote(note notes.Note, grants []notes.ShareGrant) noteResponse {
	response := noteResponse{
		ID:             note.ID,
		Title:          note.Title,
		Body:           note.Body,
		Author:         note.AuthorID,
		CreatedAt:      note.CreatedAt,
		LastModifiedAt: note.LastModifiedAt,
	}
	for _, grant := range grants {
		response.SharedWith = append(response.SharedWith, grantPayload{
			UserID:     grant.UserID,
			Capability: string(grant.Capability),
		})
	}
	return response
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	account, ok := currentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, messageUnauthorized)
		return
	}

	var payload notePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondValidationError(c, gin.H{"details": err.Error()})
		return
	}

	note, err := h.notes.Create(c.Request.Context(), account.ID, payload.Title, payload.Body)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	respond(c, http.StatusOK, "Note created successfully.", gin.H{"note_id": note.ID})
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	account, ok := currentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, messageUnauthorized)
		return
	}

	records, err := h.notes.List(c.Request.Context(), account.ID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	listed := make([]noteResponse, 0, len(records))
	for _, note := range records {
		listed = append(listed, presentNote(note, nil))
	}
	respond(c, http.StatusOK, "Note(s) fetched successfully.", gin.H{"notes": listed})
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	account, ok := currentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, messageUnauthorized)
		return
	}

	noteID, err := notes.NewNoteID(c.Param("id"))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	note, err := h.notes.Get(c.Request.Context(), account.ID, noteID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	var grants []notes.ShareGrant
	if note.AuthorID == account.ID {
		// Only the author sees the share list.
		grants, err = h.notes.Grants(c.Request.Context(), noteID)
		if err != nil {
			h.respondServiceError(c, err)
			return
		}
	}

	respond(c, http.StatusOK, "Note(s) fetched successfully.", gin.H{"notes": []noteResponse{presentNote(note, grants)}})
}

func (h *httpHandler) handleUpdateNote(c *gin.Context) {
	account, ok := currentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, messageUnauthorized)
		return
	}

	noteID, err := notes.NewNoteID(c.Param("id"))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	var payload struct {
		Title *string `json:"title"`
		Body  *string `json:"body"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondValidationError(c, gin.H{"details": err.Error()})
		return
	}

	_, err = h.notes.Update(c.Request.Context(), account.ID, noteID, notes.UpdateRequest{
		Title: payload.Title,
		Body:  payload.Body,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	respond(c, http.StatusOK, "Note updated successfully.", nil)
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	account, ok := currentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, messageUnauthorized)
		return
	}

	noteID, err := notes.NewNoteID(c.Param("id"))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	if err := h.notes.Delete(c.Request.Context(), account.ID, noteID); err != nil {
		h.respondServiceError(c, err)
		return
	}

	respond(c, http.StatusOK, "Note deleted successfully.", nil)
}

type sharePayload struct {
	ShareWith  string `json:"share_with" binding:"required,email"`
	Capability string `json:"capability"`
}

func (h *httpHandler) handleShareNote(c *gin.Context) {
	account, ok := currentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, messageUnauthorized)
		return
	}

	noteID, err := notes.NewNoteID(c.Param("id"))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	var payload sharePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondValidationError(c, gin.H{"details": err.Error()})
		return
	}

	capability := payload.Capability
	if capability == "" {
		capability = string(notes.CapabilityRead)
	}
	parsed, err := notes.ParseGrantableCapability(capability)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	target, err := h.users.LookupByUsername(c.Request.Context(), payload.ShareWith)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	if err := h.notes.Share(c.Request.Context(), account.ID, noteID, target.ID, parsed); err != nil {
		h.respondServiceError(c, err)
		return
	}

	respond(c, http.StatusOK, "Note shared successfully.", nil)
}

func (h *httpHandler) handleSearchNotes(c *gin.Context) {
	account, ok := currentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, messageUnauthorized)
		return
	}

	query := c.Query("q")
	records, err := h.notes.Search(c.Request.Context(), account.ID, query)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	found := make([]noteResponse, 0, len(records))
	for _, note := range records {
		found = append(found, presentNote(note, nil))
	}
	respond(c, http.StatusOK, "Note(s) fetched successfully.", gin.H{"notes": found})
}
