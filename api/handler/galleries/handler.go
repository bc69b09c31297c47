// Package galleries exposes the HTTP surface for gallery management,
// sharing and archive downloads.
package galleries

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/galerly/galerly/api/common"
	"github.com/galerly/galerly/api/middleware"
	"github.com/galerly/galerly/database/models"
	repo "github.com/galerly/galerly/database/repo/galleries"
	"github.com/galerly/galerly/internal/gallery"
)

// Handler bundles the gallery HTTP handlers.
type Handler struct {
	service *gallery.Service
}

// NewHandler creates the gallery handler.
func NewHandler(service *gallery.Service) *Handler {
	return &Handler{service: service}
}

type galleryView struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ShareToken  string `json:"share_token,omitempty"`
	AssetCount  int64  `json:"asset_count"`
	CoverID     string `json:"cover_id,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

type createRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type updateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type membershipRequest struct {
	AssetIDs []uint `json:"asset_ids" binding:"required"`
}

// CreateGallery makes a new gallery.
func (h *Handler) CreateGallery(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondError(c, http.StatusBadRequest, "Gallery name is required")
		return
	}

	created, err := h.service.Create(c.Request.Context(), middleware.UserID(c), req.Name, req.Description)
	if err != nil {
		common.RespondError(c, http.StatusInternalServerError, "Failed to create gallery")
		return
	}

	common.RespondSuccess(c, galleryView{
		ID:          created.ID,
		Name:        created.Name,
		Description: created.Description,
		CreatedAt:   created.CreatedAt.Unix(),
	})
}

// ListGalleries pages through the caller's galleries.
func (h *Handler) ListGalleries(c *gin.Context) {
	page := parseIntDefault(c.Query("page"), 1)
	pageSize := parseIntDefault(c.Query("page_size"), 20)

	infos, total, err := h.service.List(c.Request.Context(), middleware.UserID(c), page, pageSize)
	if err != nil {
		common.RespondError(c, http.StatusInternalServerError, "Failed to list galleries")
		return
	}

	views := make([]galleryView, len(infos))
	for i, info := range infos {
		views[i] = galleryView{
			ID:          info.Gallery.ID,
			Name:        info.Gallery.Name,
			Description: info.Gallery.Description,
			ShareToken:  info.Gallery.ShareToken,
			AssetCount:  info.AssetCount,
			CoverID:     info.CoverID,
			CreatedAt:   info.Gallery.CreatedAt.Unix(),
		}
	}
	common.RespondSuccess(c, gin.H{
		"galleries": views,
		"total":     total,
		"page":      page,
	})
}

// GetGallery loads one gallery with its assets.
func (h *Handler) GetGallery(c *gin.Context) {
	galleryID, ok := h.galleryID(c)
	if !ok {
		return
	}

	loaded, err := h.service.Get(c.Request.Context(), galleryID, middleware.UserID(c))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	common.RespondSuccess(c, gin.H{
		"id":          loaded.ID,
		"name":        loaded.Name,
		"description": loaded.Description,
		"share_token": loaded.ShareToken,
		"assets":      assetIdentifiers(loaded.Assets),
	})
}

// UpdateGallery renames or re-describes a gallery.
func (h *Handler) UpdateGallery(c *gin.Context) {
	galleryID, ok := h.galleryID(c)
	if !ok {
		return
	}

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := h.service.Update(c.Request.Context(), galleryID, middleware.UserID(c), req.Name, req.Description)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	common.RespondSuccess(c, galleryView{
		ID:          updated.ID,
		Name:        updated.Name,
		Description: updated.Description,
		ShareToken:  updated.ShareToken,
		CreatedAt:   updated.CreatedAt.Unix(),
	})
}

// DeleteGallery removes a gallery. Assets stay.
func (h *Handler) DeleteGallery(c *gin.Context) {
	galleryID, ok := h.galleryID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), galleryID, middleware.UserID(c)); err != nil {
		h.respondServiceError(c, err)
		return
	}
	common.RespondSuccessMessage(c, "Gallery deleted", nil)
}

// AddAssets attaches assets to a gallery.
func (h *Handler) AddAssets(c *gin.Context) {
	galleryID, ok := h.galleryID(c)
	if !ok {
		return
	}

	var req membershipRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.AssetIDs) == 0 {
		common.RespondError(c, http.StatusBadRequest, "asset_ids is required")
		return
	}

	if err := h.service.AddAssets(c.Request.Context(), galleryID, middleware.UserID(c), req.AssetIDs); err != nil {
		h.respondServiceError(c, err)
		return
	}
	common.RespondSuccessMessage(c, "Assets added", nil)
}

// RemoveAsset detaches one asset from a gallery.
func (h *Handler) RemoveAsset(c *gin.Context) {
	galleryID, ok := h.galleryID(c)
	if !ok {
		return
	}

	assetID, err := strconv.ParseUint(c.Param("assetId"), 10, 32)
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, "Invalid asset id")
		return
	}

	if err := h.service.RemoveAsset(c.Request.Context(), galleryID, middleware.UserID(c), uint(assetID)); err != nil {
		h.respondServiceError(c, err)
		return
	}
	common.RespondSuccessMessage(c, "Asset removed", nil)
}

// ShareGallery issues a fresh share token.
func (h *Handler) ShareGallery(c *gin.Context) {
	galleryID, ok := h.galleryID(c)
	if !ok {
		return
	}

	token, err := h.service.Share(c.Request.Context(), galleryID, middleware.UserID(c))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	common.RespondSuccess(c, gin.H{"share_token": token})
}

// UnshareGallery revokes the share token.
func (h *Handler) UnshareGallery(c *gin.Context) {
	galleryID, ok := h.galleryID(c)
	if !ok {
		return
	}

	if err := h.service.Unshare(c.Request.Context(), galleryID, middleware.UserID(c)); err != nil {
		h.respondServiceError(c, err)
		return
	}
	common.RespondSuccessMessage(c, "Share link revoked", nil)
}

// GetSharedGallery resolves a share token publicly.
func (h *Handler) GetSharedGallery(c *gin.Context) {
	token := c.Param("token")

	shared, members, err := h.service.GetShared(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, gallery.ErrGalleryNotFound) {
			common.RespondError(c, http.StatusNotFound, "Gallery not found")
			return
		}
		common.RespondError(c, http.StatusInternalServerError, "Failed to load gallery")
		return
	}

	common.RespondSuccess(c, gin.H{
		"name":        shared.Name,
		"description": shared.Description,
		"assets":      assetIdentifiers(members),
	})
}

// ArchiveStatus reports the gallery's archive build state.
func (h *Handler) ArchiveStatus(c *gin.Context) {
	galleryID, ok := h.galleryID(c)
	if !ok {
		return
	}

	archive, err := h.service.ArchiveStatus(c.Request.Context(), galleryID, middleware.UserID(c))
	if err != nil {
		if errors.Is(err, gallery.ErrArchiveNotReady) {
			common.RespondSuccess(c, gin.H{"status": "none"})
			return
		}
		h.respondServiceError(c, err)
		return
	}

	common.RespondSuccess(c, gin.H{
		"status":      archive.Status,
		"byte_size":   archive.ByteSize,
		"entry_count": archive.EntryCount,
		"updated_at":  archive.UpdatedAt.Unix(),
	})
}

// RebuildArchive queues a fresh archive build.
func (h *Handler) RebuildArchive(c *gin.Context) {
	galleryID, ok := h.galleryID(c)
	if !ok {
		return
	}

	if err := h.service.RequestArchiveRebuild(c.Request.Context(), galleryID, middleware.UserID(c)); err != nil {
		h.respondServiceError(c, err)
		return
	}
	common.RespondSuccessMessage(c, "Archive rebuild queued", nil)
}

// DownloadArchive streams the completed ZIP.
func (h *Handler) DownloadArchive(c *gin.Context) {
	galleryID, ok := h.galleryID(c)
	if !ok {
		return
	}

	archive, store, err := h.service.OpenArchive(c.Request.Context(), galleryID, middleware.UserID(c))
	if err != nil {
		if errors.Is(err, gallery.ErrArchiveNotReady) {
			common.RespondError(c, http.StatusConflict, "Archive not ready, request a rebuild first")
			return
		}
		h.respondServiceError(c, err)
		return
	}

	stream, err := store.GetWithContext(c.Request.Context(), archive.StorageKey)
	if err != nil {
		log.Printf("[Gallery] archive object missing for gallery %d: %v", galleryID, err)
		common.RespondError(c, http.StatusNotFound, "Archive file not found")
		return
	}

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="gallery-%d.zip"`, galleryID))
	http.ServeContent(c.Writer, c.Request, "", time.Time{}, stream)
}

// DownloadSharedArchive streams the completed ZIP to a share-token
// bearing client.
func (h *Handler) DownloadSharedArchive(c *gin.Context) {
	token := c.Param("token")

	archive, store, err := h.service.OpenSharedArchive(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, gallery.ErrGalleryNotFound) {
			common.RespondError(c, http.StatusNotFound, "Gallery not found")
			return
		}
		if errors.Is(err, gallery.ErrArchiveNotReady) {
			common.RespondError(c, http.StatusConflict, "Archive not ready")
			return
		}
		h.respondServiceError(c, err)
		return
	}

	stream, err := store.GetWithContext(c.Request.Context(), archive.StorageKey)
	if err != nil {
		log.Printf("[Gallery] shared archive object missing for gallery %d: %v", archive.GalleryID, err)
		common.RespondError(c, http.StatusNotFound, "Archive file not found")
		return
	}

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="gallery-%d.zip"`, archive.GalleryID))
	http.ServeContent(c.Writer, c.Request, "", time.Time{}, stream)
}

func (h *Handler) galleryID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, "Invalid gallery id")
		return 0, false
	}
	return uint(id), true
}

func (h *Handler) respondServiceError(c *gin.Context, err error) {
	if errors.Is(err, gallery.ErrGalleryNotFound) || errors.Is(err, repo.ErrGalleryNotFound) {
		common.RespondError(c, http.StatusNotFound, "Gallery not found")
		return
	}
	log.Printf("[Gallery] request failed: %v", err)
	common.RespondError(c, http.StatusInternalServerError, "Gallery operation failed")
}

func assetIdentifiers(rows []*models.Asset) []gin.H {
	views := make([]gin.H, len(rows))
	for i, row := range rows {
		views[i] = gin.H{
			"id":            row.ID,
			"identifier":    row.Identifier,
			"original_name": row.OriginalName,
			"mime_type":     row.MimeType,
			"byte_size":     row.ByteSize,
		}
	}
	return views
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}
