// Package assets exposes the HTTP surface for uploads, asset reads
// and deletion.
package assets

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/galerly/galerly/api/common"
	"github.com/galerly/galerly/api/middleware"
	"github.com/galerly/galerly/config"
	"github.com/galerly/galerly/database/models"
	"github.com/galerly/galerly/internal/asset"
	"github.com/galerly/galerly/internal/gallery"
	"github.com/galerly/galerly/internal/imaging"
	"github.com/galerly/galerly/internal/rendition"
)

// Handler bundles the asset HTTP handlers.
type Handler struct {
	uploads   *asset.UploadService
	service   *asset.Service
	router    *rendition.Router
	galleries *gallery.Service
	cfg       *config.Config
}

// NewHandler creates the asset handler.
func NewHandler(uploads *asset.UploadService, service *asset.Service, router *rendition.Router, galleries *gallery.Service, cfg *config.Config) *Handler {
	return &Handler{
		uploads:   uploads,
		service:   service,
		router:    router,
		galleries: galleries,
		cfg:       cfg,
	}
}

// assetView is the JSON shape returned for one asset.
type assetView struct {
	Identifier     string `json:"identifier"`
	URL            string `json:"url"`
	OriginalName   string `json:"original_name"`
	ByteSize       int64  `json:"byte_size"`
	MimeType       string `json:"mime_type"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
	PreviewCapable bool   `json:"preview_capable"`
	IsPublic       bool   `json:"is_public"`
	CreatedAt      int64  `json:"created_at"`
}

func (h *Handler) view(a *models.Asset) assetView {
	return assetView{
		Identifier:     a.Identifier,
		URL:            fmt.Sprintf("%s/assets/%s", h.cfg.BaseURL(), a.Identifier),
		OriginalName:   a.OriginalName,
		ByteSize:       a.ByteSize,
		MimeType:       a.MimeType,
		Width:          a.Width,
		Height:         a.Height,
		PreviewCapable: a.PreviewCapable,
		IsPublic:       a.IsPublic,
		CreatedAt:      a.CreatedAt.Unix(),
	}
}

// uploadResultView pairs the asset view with duplicate warnings.
type uploadResultView struct {
	Asset       *assetView              `json:"asset,omitempty"`
	FileName    string                  `json:"file_name"`
	IsDuplicate bool                    `json:"is_duplicate"`
	Duplicates  interface{}             `json:"duplicates,omitempty"`
	Error       string                  `json:"error,omitempty"`
}

func (h *Handler) resultView(r *asset.UploadResult) uploadResultView {
	view := uploadResultView{
		FileName:    r.FileName,
		IsDuplicate: r.IsDuplicate,
		Error:       r.Error,
	}
	if r.Asset != nil {
		av := h.view(r.Asset)
		view.Asset = &av
	}
	if len(r.Duplicates) > 0 {
		view.Duplicates = r.Duplicates
	}
	return view
}

// UploadAsset handles a single-file upload.
func (h *Handler) UploadAsset(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, "Missing file field")
		return
	}

	galleryID := parseUintDefault(c.PostForm("gallery_id"), 0)
	isPublic := c.PostForm("is_public") == "true"

	result, err := h.uploads.UploadSingle(c.Request.Context(), middleware.UserID(c), fileHeader, galleryID, isPublic)
	if err != nil {
		h.respondUploadError(c, err)
		return
	}

	common.RespondSuccess(c, h.resultView(result))
}

// UploadAssets handles a multi-file upload. Per-file failures come
// back inside the result list.
func (h *Handler) UploadAssets(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["files[]"]
	}
	if len(files) == 0 {
		common.RespondError(c, http.StatusBadRequest, "No files provided")
		return
	}

	galleryID := parseUintDefault(c.PostForm("gallery_id"), 0)
	isPublic := c.PostForm("is_public") == "true"

	results, err := h.uploads.UploadBatch(c.Request.Context(), middleware.UserID(c), files, galleryID, isPublic)
	if err != nil {
		if errors.Is(err, asset.ErrBatchTooLarge) {
			common.RespondError(c, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		log.Printf("[Upload] batch failed: %v", err)
		common.RespondError(c, http.StatusInternalServerError, "Batch upload failed")
		return
	}

	views := make([]uploadResultView, len(results))
	for i, r := range results {
		views[i] = h.resultView(r)
	}
	common.RespondSuccess(c, gin.H{"results": views})
}

// ListAssets pages through the caller's assets.
func (h *Handler) ListAssets(c *gin.Context) {
	page := int(parseUintDefault(c.Query("page"), 1))
	pageSize := int(parseUintDefault(c.Query("page_size"), 50))

	rows, total, err := h.service.List(c.Request.Context(), middleware.UserID(c), page, pageSize)
	if err != nil {
		common.RespondError(c, http.StatusInternalServerError, "Failed to list assets")
		return
	}

	views := make([]assetView, len(rows))
	for i, row := range rows {
		views[i] = h.view(row)
	}
	common.RespondSuccess(c, gin.H{
		"assets": views,
		"total":  total,
		"page":   page,
	})
}

// GetStats returns asset and gallery counts plus stored bytes for the
// caller.
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		common.RespondError(c, http.StatusInternalServerError, "Failed to load stats")
		return
	}
	common.RespondSuccess(c, stats)
}

// DeleteAsset removes one of the caller's assets.
func (h *Handler) DeleteAsset(c *gin.Context) {
	identifier := c.Param("identifier")
	if identifier == "" {
		common.RespondError(c, http.StatusBadRequest, "Asset identifier is required")
		return
	}

	err := h.service.Delete(c.Request.Context(), identifier, middleware.UserID(c))
	if err != nil {
		if errors.Is(err, asset.ErrAssetNotFound) {
			common.RespondError(c, http.StatusNotFound, "Asset not found")
			return
		}
		common.RespondError(c, http.StatusInternalServerError, "Failed to delete asset")
		return
	}

	common.RespondSuccessMessage(c, "Asset deleted", nil)
}

type deleteAssetsRequest struct {
	Identifiers []string `json:"identifiers" binding:"required"`
}

// DeleteAssets removes a batch of the caller's assets.
func (h *Handler) DeleteAssets(c *gin.Context) {
	var req deleteAssetsRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Identifiers) == 0 {
		common.RespondError(c, http.StatusBadRequest, "A non-empty identifiers list is required")
		return
	}

	deleted, err := h.service.DeleteBatch(c.Request.Context(), req.Identifiers, middleware.UserID(c))
	if err != nil {
		common.RespondError(c, http.StatusInternalServerError, "Failed to delete assets")
		return
	}

	common.RespondSuccess(c, gin.H{"deleted": deleted})
}

// respondUploadError maps validation failures to client errors and
// everything else to a 500.
func (h *Handler) respondUploadError(c *gin.Context, err error) {
	var verr *imaging.ValidationError
	if errors.As(err, &verr) {
		status := http.StatusBadRequest
		if verr.Kind == imaging.KindDimensionCeiling {
			status = http.StatusRequestEntityTooLarge
		}
		common.RespondError(c, status, verr.Error())
		return
	}
	if errors.Is(err, asset.ErrFileTooLarge) {
		common.RespondError(c, http.StatusRequestEntityTooLarge, err.Error())
		return
	}

	// Internal failures stay opaque to the client.
	log.Printf("[Upload] %v", err)
	common.RespondError(c, http.StatusInternalServerError, "Upload failed")
}

func parseUintDefault(s string, def uint) uint {
	if s == "" {
		return def
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return def
	}
	return uint(v)
}
