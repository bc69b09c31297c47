package assets

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/singleflight"

	"github.com/galerly/galerly/api/common"
	"github.com/galerly/galerly/api/middleware"
	"github.com/galerly/galerly/database/models"
	"github.com/galerly/galerly/internal/asset"
	"github.com/galerly/galerly/internal/rendition"
	"github.com/galerly/galerly/utils"
)

// Collapses concurrent downloads of the same object.
var downloadGroup singleflight.Group

// GetAsset serves an asset, optionally transformed. Query parameters
// w, h and format request a rendition; without them the original
// passes through byte for byte. A requested rendition that is not
// cached yet triggers background generation and the original serves
// this request.
func (h *Handler) GetAsset(c *gin.Context) {
	identifier := c.Param("identifier")
	if identifier == "" {
		common.RespondError(c, http.StatusBadRequest, "Asset identifier is required")
		return
	}

	record, err := h.service.GetByIdentifier(c.Request.Context(), identifier)
	if err != nil {
		if errors.Is(err, asset.ErrAssetNotFound) {
			common.RespondError(c, http.StatusNotFound, "Asset not found")
			return
		}
		log.Printf("[GetAsset] metadata lookup failed for %s: %v", utils.SanitizeLogMessage(identifier), err)
		common.RespondError(c, http.StatusInternalServerError, "Error retrieving asset")
		return
	}

	if !record.IsPublic {
		userID := middleware.UserID(c)
		if userID == 0 || userID != record.UserID {
			common.RespondError(c, http.StatusForbidden, "This asset is private")
			return
		}
	}

	h.serve(c, record, parseSpec(c))
}

// GetSharedAsset serves an asset through a gallery share link. Access
// is granted by gallery membership, not asset visibility.
func (h *Handler) GetSharedAsset(c *gin.Context) {
	token := c.Param("token")
	identifier := c.Param("identifier")

	_, members, err := h.galleries.GetShared(c.Request.Context(), token)
	if err != nil {
		common.RespondError(c, http.StatusNotFound, "Gallery not found")
		return
	}

	var record *models.Asset
	for _, member := range members {
		if member.Identifier == identifier {
			record = member
			break
		}
	}
	if record == nil {
		common.RespondError(c, http.StatusNotFound, "Asset not found in this gallery")
		return
	}

	h.serve(c, record, parseSpec(c))
}

// serve routes the request and writes the payload. A cache hit whose
// object turns out unreadable falls back to the original rather than
// failing the request.
func (h *Handler) serve(c *gin.Context, record *models.Asset, spec rendition.Spec) {
	decision := h.router.Route(c.Request.Context(), record, spec)

	data, err := h.fetch(c, decision.StorageKey)
	if err != nil && decision.Disposition == rendition.DispositionCacheHit {
		log.Printf("[GetAsset] cached rendition unreadable for %s, serving original: %v", record.Identifier, err)
		data, err = h.fetch(c, record.StorageKey)
		decision.MimeType = record.MimeType
	}
	if err != nil {
		log.Printf("[GetAsset] payload fetch failed for %s: %v", record.Identifier, err)
		common.RespondError(c, http.StatusNotFound, "Asset file not found")
		return
	}

	contentType := decision.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "public, max-age=2592000, immutable")
	if spec.IsZero() && record.OriginalName != "" {
		setDisposition(c, record.OriginalName)
	}

	http.ServeContent(c.Writer, c.Request, "", time.Time{}, bytes.NewReader(data))
}

func (h *Handler) fetch(c *gin.Context, storageKey string) ([]byte, error) {
	v, err, _ := downloadGroup.Do(storageKey, func() (interface{}, error) {
		return h.service.ReadByKey(c.Request.Context(), storageKey)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// parseSpec reads the transform request from the query string.
func parseSpec(c *gin.Context) rendition.Spec {
	spec := rendition.Spec{
		Width:  parseDimension(c.Query("w")),
		Height: parseDimension(c.Query("h")),
	}

	switch c.Query("format") {
	case "webp":
		spec.Format = models.RenditionFormatWebP
	case "jpeg", "jpg":
		spec.Format = models.RenditionFormatJPEG
	case "png":
		spec.Format = models.RenditionFormatPNG
	}

	// A format without dimensions is still a transform: the original
	// is transcoded at its native size.
	return spec
}

func parseDimension(s string) int {
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 || v > 8192 {
		return 0
	}
	return v
}

func setDisposition(c *gin.Context, name string) {
	asciiName := toASCII(name)
	if asciiName == name {
		c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, asciiName))
	} else {
		c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s"; filename*=UTF-8''%s`, asciiName, url.QueryEscape(name)))
	}
}

// toASCII maps non-ASCII runes to underscores for the plain filename
// parameter.
func toASCII(s string) string {
	var result []rune
	for _, r := range s {
		if r > unicode.MaxASCII {
			result = append(result, '_')
		} else {
			result = append(result, r)
		}
	}
	return string(result)
}
