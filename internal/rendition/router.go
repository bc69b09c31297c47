// Package rendition decides whether an image request is served from a
// pre-generated rendition or falls back to the original while a
// worker generates one.
package rendition

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/galerly/galerly/database/models"
	"github.com/galerly/galerly/database/repo/assets"
	"github.com/galerly/galerly/storage"
)

// Disposition says how the request was routed.
type Disposition string

const (
	// DispositionOriginal: no transformation was requested.
	DispositionOriginal Disposition = "original"

	// DispositionCacheHit: a completed rendition exists and is served.
	DispositionCacheHit Disposition = "cache_hit"

	// DispositionFallback: cache miss; generation was triggered and
	// the original serves this request.
	DispositionFallback Disposition = "fallback_original"
)

// Decision is the routing outcome. StorageKey is always set to a
// servable object; routing never fails a request.
type Decision struct {
	Disposition Disposition
	StorageKey  string
	MimeType    string
	CacheKey    string
}

// GenerationPayload is the fire-and-forget work order handed to the
// rendition worker.
type GenerationPayload struct {
	RenditionID uint
	AssetID     uint
	SourceKey   string
	TargetKey   string
	CacheKey    string
	Width       int
	Height      int
	Format      string
	Quality     int
}

// Invoker dispatches generation work without waiting on completion.
type Invoker interface {
	InvokeRendition(payload GenerationPayload) error
}

// Router routes transform requests. It never performs transformation
// itself and never blocks a request on worker completion.
type Router struct {
	renditions    *assets.RenditionRepository
	store         storage.Provider
	invoker       Invoker
	defaultFormat string
	quality       int
	maxRetries    int

	// Collapses concurrent in-process triggers for the same key.
	// Cross-process duplicates remain an accepted at-least-once
	// trigger; overwriting the same cache object is idempotent.
	triggers singleflight.Group
}

// NewRouter creates a router.
func NewRouter(renditions *assets.RenditionRepository, store storage.Provider, invoker Invoker, defaultFormat string, quality, maxRetries int) *Router {
	if defaultFormat == "" {
		defaultFormat = models.RenditionFormatWebP
	}
	if quality <= 0 {
		quality = 80
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Router{
		renditions:    renditions,
		store:         store,
		invoker:       invoker,
		defaultFormat: defaultFormat,
		quality:       quality,
		maxRetries:    maxRetries,
	}
}

// Route decides how to serve an asset for the given transform spec.
//
// No spec: the original passes through unchanged. With a spec: a
// completed rendition whose object exists is a cache hit; anything
// else triggers asynchronous generation and serves the original as
// the fallback for this request. Worker invocation failures are
// logged, never surfaced.
func (r *Router) Route(ctx context.Context, asset *models.Asset, spec Spec) Decision {
	if spec.IsZero() {
		return Decision{
			Disposition: DispositionOriginal,
			StorageKey:  asset.StorageKey,
			MimeType:    asset.MimeType,
		}
	}

	if spec.Format == "" {
		spec.Format = r.defaultFormat
	}
	key := CacheKey(asset.StorageKey, spec)

	if !asset.PreviewCapable {
		// Undecodable formats serve the original; no worker can help.
		return Decision{
			Disposition: DispositionFallback,
			StorageKey:  asset.StorageKey,
			MimeType:    asset.MimeType,
			CacheKey:    key,
		}
	}

	if decision, ok := r.lookupCache(ctx, asset, key); ok {
		return decision
	}

	r.trigger(asset, spec, key)

	return Decision{
		Disposition: DispositionFallback,
		StorageKey:  asset.StorageKey,
		MimeType:    asset.MimeType,
		CacheKey:    key,
	}
}

func (r *Router) lookupCache(ctx context.Context, asset *models.Asset, key string) (Decision, bool) {
	rendition, err := r.renditions.GetRendition(asset.ID, key)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("[Rendition] lookup failed for asset %d: %v", asset.ID, err)
		}
		return Decision{}, false
	}

	if rendition.Status != models.RenditionStatusCompleted {
		return Decision{}, false
	}

	exists, err := r.store.Exists(ctx, rendition.StorageKey)
	if err != nil || !exists {
		if err != nil {
			log.Printf("[Rendition] existence check failed for %s: %v", key, err)
		}
		return Decision{}, false
	}

	return Decision{
		Disposition: DispositionCacheHit,
		StorageKey:  rendition.StorageKey,
		MimeType:    mimeTypeForFormat(rendition.Format),
		CacheKey:    key,
	}, true
}

// trigger dispatches generation for the missing rendition. Best
// effort: every failure path logs and returns.
func (r *Router) trigger(asset *models.Asset, spec Spec, key string) {
	r.triggers.Do(key, func() (interface{}, error) {
		targetKey := StorageKeyFor(key, spec.Format)

		rendition, err := r.renditions.UpsertPending(asset.ID, key, spec.Format, targetKey, spec.Width, spec.Height)
		if err != nil {
			log.Printf("[Rendition] failed to upsert pending row for %s: %v", key, err)
			return nil, nil
		}

		if rendition.Status != models.RenditionStatusPending {
			return nil, nil
		}
		if rendition.RetryCount >= r.maxRetries {
			log.Printf("[Rendition] %s reached max retries, not re-triggering", key)
			return nil, nil
		}

		payload := GenerationPayload{
			RenditionID: rendition.ID,
			AssetID:     asset.ID,
			SourceKey:   asset.StorageKey,
			TargetKey:   targetKey,
			CacheKey:    key,
			Width:       spec.Width,
			Height:      spec.Height,
			Format:      spec.Format,
			Quality:     r.quality,
		}

		if err := r.invoker.InvokeRendition(payload); err != nil {
			log.Printf("[Rendition] failed to invoke worker for %s: %v", key, err)
		}
		return nil, nil
	})
}

func mimeTypeForFormat(format string) string {
	switch format {
	case models.RenditionFormatWebP:
		return "image/webp"
	case models.RenditionFormatJPEG:
		return "image/jpeg"
	case models.RenditionFormatPNG:
		return "image/png"
	default:
		return fmt.Sprintf("image/%s", format)
	}
}
