package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"mangasync/internal/ingestion/bookmarks"
	"mangasync/internal/ingestion/mal"
	"mangasync/internal/microservices/http-api/dto"
	"mangasync/internal/microservices/http-api/middleware"
	"mangasync/internal/microservices/http-api/service"
	"mangasync/internal/models"
	"mangasync/internal/syncworker"
)

const (
	ScopeRead  = "bookmarks:read"
	ScopeWrite = "bookmarks:write"
	ScopeSync  = "bookmarks:sync"
)

type BookmarkHandler struct {
	svc service.BookmarkService
}

func NewBookmarkHandler(svc service.BookmarkService) *BookmarkHandler {
	return &BookmarkHandler{svc: svc}
}

func (h *BookmarkHandler) RegisterRoutes(rg *gin.RouterGroup) {
	bm := rg.Group("/bookmarks")
	bm.GET("", middleware.RequireScopes(ScopeRead), middleware.RequireUserToken(), h.List)
	bm.GET("/cache", middleware.RequireScopes(ScopeRead), h.Cache)
	bm.POST("/resync", middleware.RequireScopes(ScopeSync), middleware.RequireUserToken(), h.Resync)
	bm.POST("/external-sync", middleware.RequireScopes(ScopeSync), h.ExternalSync)
	bm.GET("/sync/status", middleware.RequireScopes(ScopeRead), h.SyncStatus)
	bm.GET("/sync/events", middleware.RequireScopes(ScopeRead), h.SyncEvents)

	rg.GET("/enrichment/:identifier", middleware.RequireScopes(ScopeRead), h.Enrichment)
	rg.GET("/settings", middleware.RequireScopes(ScopeRead), h.GetSettings)
	rg.PUT("/settings", middleware.RequireScopes(ScopeWrite), h.UpdateSettings)
}

// List returns one page of remote bookmarks, reconciling the mirror on page 1
func (h *BookmarkHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	resp, err := h.svc.Page(ctx, userID, middleware.UserToken(c), page)
	if err != nil {
		if errors.Is(err, bookmarks.ErrMissingUserToken) {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "User data is required"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Cache exports every mirrored bookmark with its enrichment
func (h *BookmarkHandler) Cache(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	items, err := h.svc.Cache(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.CachedBookmarkListResponse{Items: items, Total: len(items)})
}

func (h *BookmarkHandler) Resync(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	handle, err := h.svc.Resync(c.Request.Context(), userID, middleware.UserToken(c))
	writeStarted(c, handle, err)
}

func (h *BookmarkHandler) ExternalSync(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	handle, err := h.svc.ExternalSync(c.Request.Context(), userID)
	if errors.Is(err, mal.ErrNoBookmarks) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No bookmarks found."})
		return
	}
	writeStarted(c, handle, err)
}

func writeStarted(c *gin.Context, handle *syncworker.Handle, err error) {
	switch {
	case errors.Is(err, syncworker.ErrSyncInProgress):
		c.JSON(http.StatusConflict, dto.SyncStartedResponse{
			ID:      handle.ID,
			Kind:    handle.Kind,
			Status:  handle.Status().Status,
			Message: "sync already in progress",
		})
	case errors.Is(err, syncworker.ErrRegistryClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusAccepted, dto.SyncStartedResponse{
			ID:      handle.ID,
			Kind:    handle.Kind,
			Status:  handle.Status().Status,
			Message: "sync started",
		})
	}
}

func (h *BookmarkHandler) SyncStatus(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp, err := h.svc.Status(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SyncEvents streams the events of the current or latest task as SSE,
// replaying from the start. The stream ends after the terminal event.
func (h *BookmarkHandler) SyncEvents(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	kind := c.DefaultQuery("kind", models.SyncKindResync)
	handle, err := h.svc.Sync(userID, kind)
	switch {
	case errors.Is(err, service.ErrUnknownSyncKind):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, service.ErrNoSync):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	events := handle.Subscribe(c.Request.Context())
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	for ev := range events {
		c.SSEvent(ev.Name(), ev)
		c.Writer.Flush()
	}
}

func (h *BookmarkHandler) Enrichment(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	overwrite, _ := strconv.ParseBool(c.DefaultQuery("overwrite", "false"))
	useCache, err := strconv.ParseBool(c.DefaultQuery("use_cache", "true"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid use_cache"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	entry := h.svc.Enrichment(ctx, userID, c.Param("identifier"), overwrite, useCache)
	if entry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no enrichment available"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *BookmarkHandler) GetSettings(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	settings, err := h.svc.Settings(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *BookmarkHandler) UpdateSettings(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req dto.SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	settings := models.UserSettings{FetchMalImage: *req.FetchMalImage}
	if err := h.svc.SaveSettings(c.Request.Context(), userID, settings); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, settings)
}
