package server

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quillbin/quillbin/internal/auth"
	"github.com/quillbin/quillbin/internal/metrics"
	"github.com/quillbin/quillbin/internal/pastes"
)

type createPastePayload struct {
	Content               string   `json:"content"`
	Visibility            string   `json:"visibility"`
	CustomSlug            string   `json:"custom_slug"`
	Title                 string   `json:"title"`
	Language              string   `json:"language"`
	Password              string   `json:"password"`
	ExpiresAt             string   `json:"expires_at"`
	BurnAfterReading      bool     `json:"burn_after_reading"`
	VersioningEnabled     bool     `json:"versioning_enabled"`
	VersionHistoryVisible bool     `json:"version_history_visible"`
	InvitedUserIDs        []string `json:"invited_user_ids"`
}

type pasteResponsePayload struct {
	ID                    string     `json:"id"`
	CustomSlug            *string    `json:"custom_slug,omitempty"`
	Title                 *string    `json:"title,omitempty"`
	Language              *string    `json:"language,omitempty"`
	Content               string     `json:"content"`
	CurrentVersion        int64      `json:"current_version"`
	Visibility            string     `json:"visibility"`
	HasPassword           bool       `json:"has_password"`
	OwnerID               *string    `json:"owner_id,omitempty"`
	BurnAfterReading      bool       `json:"burn_after_reading"`
	ExpiresAt             *time.Time `json:"expires_at,omitempty"`
	VersioningEnabled     bool       `json:"versioning_enabled"`
	VersionHistoryVisible bool       `json:"version_history_visible"`
	ViewCount             int64      `json:"view_count"`
	UniqueViewCount       int64      `json:"unique_view_count"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func pasteResponse(paste *pastes.Paste) pasteResponsePayload {
	return pasteResponsePayload{
		ID:                    paste.ID,
		CustomSlug:            paste.CustomSlug,
		Title:                 paste.Title,
		Language:              paste.Language,
		Content:               paste.Content,
		CurrentVersion:        paste.CurrentVersion,
		Visibility:            string(paste.Visibility),
		HasPassword:           paste.PasswordHash != nil && *paste.PasswordHash != "",
		OwnerID:               paste.OwnerID,
		BurnAfterReading:      paste.BurnAfterReading,
		ExpiresAt:             paste.ExpiresAt,
		VersioningEnabled:     paste.VersioningEnabled,
		VersionHistoryVisible: paste.VersionHistoryVisible,
		ViewCount:             paste.ViewCount,
		UniqueViewCount:       paste.UniqueViewCount,
		CreatedAt:             paste.CreatedAt,
		UpdatedAt:             paste.UpdatedAt,
	}
}

func (h *httpHandler) handleCreatePaste(c *gin.Context) {
	var request createPastePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	caller, _, err := h.resolveCaller(c)
	if err != nil {
		h.logger.Error("caller resolution failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	visibility := request.Visibility
	if visibility == "" {
		visibility = string(pastes.VisibilityPublic)
	}

	req := pastes.CreateRequest{
		Content:               request.Content,
		Visibility:            pastes.Visibility(visibility),
		BurnAfterReading:      request.BurnAfterReading,
		VersioningEnabled:     request.VersioningEnabled,
		VersionHistoryVisible: request.VersionHistoryVisible,
		InvitedUserIDs:        request.InvitedUserIDs,
	}
	if caller != nil {
		ownerID := caller.UserID
		req.OwnerID = &ownerID
	}
	if request.CustomSlug != "" {
		req.CustomSlug = &request.CustomSlug
	}
	if request.Title != "" {
		req.Title = &request.Title
	}
	if request.Language != "" {
		req.Language = &request.Language
	}
	if request.Password != "" {
		hash, err := auth.HashPassword(request.Password)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_password"})
			return
		}
		req.PasswordHash = &hash
	}
	if request.ExpiresAt != "" {
		expiresAt, err := time.Parse(time.RFC3339, request.ExpiresAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_expires_at"})
			return
		}
		req.ExpiresAt = &expiresAt
	}

	paste, err := h.pastes.Create(c.Request.Context(), req)
	if err != nil {
		h.respondServiceError(c, err, "create_failed")
		return
	}

	metrics.PasteCreated.Inc()
	c.JSON(http.StatusCreated, pasteResponse(paste))
}

func (h *httpHandler) handleGetPaste(c *gin.Context) {
	caller, perms, err := h.resolveCaller(c)
	if err != nil {
		h.logger.Error("caller resolution failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	paste, ok := h.loadReadablePaste(c, caller, perms)
	if !ok {
		return
	}

	if !h.passwordGate(c, paste, caller, perms) {
		return
	}

	if err := h.pastes.RecordView(c.Request.Context(), paste.ID, viewerFingerprint(c)); err != nil {
		h.logger.Warn("view recording failed", zap.String("paste_id", paste.ID), zap.Error(err))
	}

	metrics.PasteRetrieved.Inc()
	c.JSON(http.StatusOK, pasteResponse(paste))

	burned, err := h.pastes.BurnAfterRead(c.Request.Context(), paste, caller)
	if err != nil {
		h.logger.Error("burn after read failed", zap.String("paste_id", paste.ID), zap.Error(err))
		return
	}
	if burned {
		metrics.PasteBurned.Inc()
	}
}

type updatePastePayload struct {
	Content               *string  `json:"content"`
	ChangeNote            *string  `json:"change_note"`
	CustomSlug            *string  `json:"custom_slug"`
	Title                 *string  `json:"title"`
	Language              *string  `json:"language"`
	Password              *string  `json:"password"`
	Visibility            *string  `json:"visibility"`
	ExpiresAt             *string  `json:"expires_at"`
	BurnAfterReading      *bool    `json:"burn_after_reading"`
	VersioningEnabled     *bool    `json:"versioning_enabled"`
	VersionHistoryVisible *bool    `json:"version_history_visible"`
	AddInvitedUserIDs     []string `json:"add_invited_user_ids"`
	RemoveInvitedUserIDs  []string `json:"remove_invited_user_ids"`
}

func (h *httpHandler) handleUpdatePaste(c *gin.Context) {
	var request updatePastePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	caller, perms, err := h.resolveCaller(c)
	if err != nil || caller == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	paste, err := h.pastes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondServiceError(c, err, "update_failed")
		return
	}
	if !canManage(paste, caller, perms) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	editorID := caller.UserID
	req := pastes.UpdateRequest{
		PasteID:              paste.ID,
		EditorID:             &editorID,
		ChangeNote:           request.ChangeNote,
		AddInvitedUserIDs:    request.AddInvitedUserIDs,
		RemoveInvitedUserIDs: request.RemoveInvitedUserIDs,
	}

	if request.Content != nil {
		req.Content = pastes.Set(*request.Content)
	}
	if request.CustomSlug != nil {
		req.CustomSlug = pastes.Set(request.CustomSlug)
	}
	if request.Title != nil {
		req.Title = pastes.Set(request.Title)
	}
	if request.Language != nil {
		req.Language = pastes.Set(request.Language)
	}
	if request.Visibility != nil {
		req.Visibility = pastes.Set(pastes.Visibility(*request.Visibility))
	}
	if request.BurnAfterReading != nil {
		req.BurnAfterReading = pastes.Set(*request.BurnAfterReading)
	}
	if request.VersioningEnabled != nil {
		req.VersioningEnabled = pastes.Set(*request.VersioningEnabled)
	}
	if request.VersionHistoryVisible != nil {
		req.VersionHistoryVisible = pastes.Set(*request.VersionHistoryVisible)
	}
	if request.Password != nil {
		if *request.Password == "" {
			req.PasswordHash = pastes.Set[*string](nil)
		} else {
			hash, err := auth.HashPassword(*request.Password)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_password"})
				return
			}
			req.PasswordHash = pastes.Set(&hash)
		}
	}
	if request.ExpiresAt != nil {
		if *request.ExpiresAt == "" {
			req.ExpiresAt = pastes.Set[*time.Time](nil)
		} else {
			expiresAt, err := time.Parse(time.RFC3339, *request.ExpiresAt)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_expires_at"})
				return
			}
			req.ExpiresAt = pastes.Set(&expiresAt)
		}
	}

	updated, err := h.pastes.Update(c.Request.Context(), req)
	if err != nil {
		h.respondServiceError(c, err, "update_failed")
		return
	}

	c.JSON(http.StatusOK, pasteResponse(updated))
}

func (h *httpHandler) handleDeletePaste(c *gin.Context) {
	caller, perms, err := h.resolveCaller(c)
	if err != nil || caller == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	paste, err := h.pastes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondServiceError(c, err, "delete_failed")
		return
	}
	if !canManage(paste, caller, perms) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	deleted, err := h.pastes.Delete(c.Request.Context(), paste.ID)
	if err != nil {
		h.respondServiceError(c, err, "delete_failed")
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *httpHandler) handleForkPaste(c *gin.Context) {
	caller, perms, err := h.resolveCaller(c)
	if err != nil {
		h.logger.Error("caller resolution failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	var requestedVersion *int64
	if raw := c.Query("version"); raw != "" {
		version, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || version < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_version"})
			return
		}
		requestedVersion = &version
	}

	result, err := h.pastes.GetForkData(c.Request.Context(), c.Param("id"), caller, perms, requestedVersion)
	if err != nil {
		h.respondServiceError(c, err, "fork_failed")
		return
	}

	switch result.Denied {
	case "":
	case pastes.ForkDeniedNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	case pastes.ForkDeniedPassword, pastes.ForkDeniedAccess:
		c.JSON(http.StatusForbidden, gin.H{"error": result.Denied})
		return
	default:
		c.JSON(http.StatusForbidden, gin.H{"error": result.Denied})
		return
	}

	metrics.PasteForked.Inc()
	c.JSON(http.StatusOK, gin.H{
		"source_id":               result.Draft.SourceID,
		"source_version":          result.Draft.SourceVersion,
		"content":                 result.Draft.Content,
		"title":                   result.Draft.Title,
		"language":                result.Draft.Language,
		"visibility":              string(result.Draft.Visibility),
		"burn_after_reading":      result.Draft.BurnAfterReading,
		"versioning_enabled":      result.Draft.VersioningEnabled,
		"version_history_visible": result.Draft.VersionHistoryVisible,
		"invited_user_ids":        result.Draft.InvitedUserIDs,
	})
}

type transferPayload struct {
	NewOwnerID string `json:"new_owner_id"`
}

func (h *httpHandler) handleTransferPaste(c *gin.Context) {
	var request transferPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.NewOwnerID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	caller, _, err := h.resolveCaller(c)
	if err != nil || caller == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	result, err := h.pastes.TransferOwnership(c.Request.Context(), c.Param("id"), request.NewOwnerID, caller.UserID)
	if err != nil {
		h.respondServiceError(c, err, "transfer_failed")
		return
	}
	if !result.OK {
		status := http.StatusBadRequest
		switch result.Message {
		case "paste not found", "target user does not exist":
			status = http.StatusNotFound
		case "paste is not owned by the requesting user":
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"success": false, "message": result.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": result.Message})
}

func (h *httpHandler) handleListVersions(c *gin.Context) {
	caller, perms, err := h.resolveCaller(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	paste, ok := h.loadReadablePaste(c, caller, perms)
	if !ok {
		return
	}
	if !pastes.CanViewHistory(paste, caller, perms) {
		c.JSON(http.StatusForbidden, gin.H{"error": "history_not_visible"})
		return
	}

	meta, err := h.pastes.ListVersionMeta(c.Request.Context(), paste.ID)
	if err != nil {
		h.respondServiceError(c, err, "versions_failed")
		return
	}

	items := make([]gin.H, 0, len(meta))
	for _, entry := range meta {
		items = append(items, gin.H{
			"version":    entry.Version,
			"created_at": entry.CreatedAt,
			"length":     entry.Length,
		})
	}
	c.JSON(http.StatusOK, gin.H{"current_version": paste.CurrentVersion, "versions": items})
}

func (h *httpHandler) handleGetVersion(c *gin.Context) {
	caller, perms, err := h.resolveCaller(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	paste, ok := h.loadReadablePaste(c, caller, perms)
	if !ok {
		return
	}
	if !pastes.CanViewHistory(paste, caller, perms) {
		c.JSON(http.StatusForbidden, gin.H{"error": "history_not_visible"})
		return
	}

	version, err := strconv.ParseInt(c.Param("version"), 10, 64)
	if err != nil || version < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_version"})
		return
	}

	content, err := h.pastes.GetVersionContent(c.Request.Context(), paste.ID, version)
	if err != nil {
		h.respondServiceError(c, err, "versions_failed")
		return
	}
	if content == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "version_not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": version, "content": *content})
}

type invitesPayload struct {
	UserIDs []string `json:"user_ids"`
}

func (h *httpHandler) handleListInvites(c *gin.Context) {
	paste, _, ok := h.loadManagedPaste(c)
	if !ok {
		return
	}

	invites, err := h.pastes.ListInvites(c.Request.Context(), paste.ID)
	if err != nil {
		h.respondServiceError(c, err, "invites_failed")
		return
	}

	items := make([]gin.H, 0, len(invites))
	for _, invite := range invites {
		items = append(items, gin.H{
			"user_id":    invite.UserID,
			"username":   invite.Username,
			"invited_at": invite.InvitedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"invites": items})
}

func (h *httpHandler) handleAddInvites(c *gin.Context) {
	paste, caller, ok := h.loadManagedPaste(c)
	if !ok {
		return
	}

	var request invitesPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.UserIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if paste.Visibility != pastes.VisibilityInviteOnly {
		c.JSON(http.StatusBadRequest, gin.H{"error": "paste_not_invite_only"})
		return
	}

	if err := h.pastes.AddInvites(c.Request.Context(), paste.ID, request.UserIDs, caller.UserID); err != nil {
		h.respondServiceError(c, err, "invites_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"invited": true})
}

func (h *httpHandler) handleRemoveInvites(c *gin.Context) {
	paste, _, ok := h.loadManagedPaste(c)
	if !ok {
		return
	}

	var request invitesPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.UserIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.pastes.RemoveInvites(c.Request.Context(), paste.ID, request.UserIDs); err != nil {
		h.respondServiceError(c, err, "invites_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": true})
}

// loadReadablePaste loads the paste and enforces the visibility decision,
// answering 404 for both missing and unreadable pastes so existence does not
// leak.
func (h *httpHandler) loadReadablePaste(c *gin.Context, caller *pastes.Caller, perms pastes.Permissions) (*pastes.Paste, bool) {
	paste, err := h.pastes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondServiceError(c, err, "load_failed")
		return nil, false
	}
	if !h.pastes.CanRead(c.Request.Context(), paste, caller, perms) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return nil, false
	}
	return paste, true
}

// loadManagedPaste loads the paste and requires the caller to be its owner
// or an admin.
func (h *httpHandler) loadManagedPaste(c *gin.Context) (*pastes.Paste, *pastes.Caller, bool) {
	caller, perms, err := h.resolveCaller(c)
	if err != nil || caller == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, nil, false
	}

	paste, err := h.pastes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondServiceError(c, err, "load_failed")
		return nil, nil, false
	}
	if !canManage(paste, caller, perms) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return nil, nil, false
	}
	return paste, caller, true
}

// passwordGate enforces the paste password for non-privileged readers.
func (h *httpHandler) passwordGate(c *gin.Context, paste *pastes.Paste, caller *pastes.Caller, perms pastes.Permissions) bool {
	if paste.PasswordHash == nil || *paste.PasswordHash == "" {
		return true
	}
	if caller != nil && (paste.IsOwnedBy(caller.UserID) || perms.ReadAny) {
		return true
	}

	supplied := c.GetHeader("X-Paste-Password")
	if supplied == "" {
		supplied = c.Query("password")
	}
	if supplied == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "password_required"})
		return false
	}
	if !h.pastes.ValidatePassword(c.Request.Context(), paste.ID, supplied) {
		metrics.PasswordChecksFailed.Inc()
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid_password"})
		return false
	}
	return true
}

func canManage(paste *pastes.Paste, caller *pastes.Caller, perms pastes.Permissions) bool {
	if caller == nil {
		return false
	}
	return paste.IsOwnedBy(caller.UserID) || perms.ReadAny
}

// viewerFingerprint derives a stable, non-reversible viewer key for unique
// view counting.
func viewerFingerprint(c *gin.Context) string {
	sum := sha256.Sum256([]byte(c.ClientIP() + "|" + c.Request.UserAgent()))
	return hex.EncodeToString(sum[:16])
}

// respondServiceError maps domain errors to their HTTP equivalents and
// surfaces the service error code on unexpected failures.
func (h *httpHandler) respondServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, pastes.ErrPasteNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, pastes.ErrSlugTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "slug_taken"})
	case errors.Is(err, pastes.ErrInvalidVisibility):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_visibility"})
	default:
		h.logger.Error("paste operation failed", zap.Error(err))
		var serviceErr *pastes.ServiceError
		if errors.As(err, &serviceErr) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fallback, "code": serviceErr.Code()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
