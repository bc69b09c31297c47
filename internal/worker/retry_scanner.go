package worker

import (
	"log"
	"time"

	"github.com/galerly/galerly/database/repo/assets"
	"github.com/galerly/galerly/internal/rendition"
)

// RetryScanner periodically re-queues failed renditions whose backoff
// has elapsed. Together with the at-least-once triggers from the
// router this makes generation eventually succeed or exhaust its
// retry budget.
type RetryScanner struct {
	renditions *assets.RenditionRepository
	invoker    *Invoker
	interval   time.Duration
	maxRetries int
	quality    int
	stopChan   chan struct{}
}

// NewRetryScanner creates a scanner; interval defaults to 5 minutes.
func NewRetryScanner(renditions *assets.RenditionRepository, invoker *Invoker, interval time.Duration, maxRetries, quality int) *RetryScanner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &RetryScanner{
		renditions: renditions,
		invoker:    invoker,
		interval:   interval,
		maxRetries: maxRetries,
		quality:    quality,
		stopChan:   make(chan struct{}),
	}
}

// Start launches the background scan loop.
func (s *RetryScanner) Start() {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.scan()
			case <-s.stopChan:
				return
			}
		}
	}()
}

// Stop terminates the scan loop.
func (s *RetryScanner) Stop() {
	close(s.stopChan)
}

func (s *RetryScanner) scan() {
	rows, err := s.renditions.GetRetryableRenditions(time.Now(), s.maxRetries, 100)
	if err != nil {
		log.Printf("[RetryScanner] failed to list retryable renditions: %v", err)
		return
	}

	for _, row := range rows {
		asset, err := s.renditions.GetAssetByID(row.AssetID)
		if err != nil {
			log.Printf("[RetryScanner] source asset %d missing for rendition %d, dropping", row.AssetID, row.ID)
			continue
		}

		if err := s.renditions.ResetForRetry(row.ID, time.Minute); err != nil {
			log.Printf("[RetryScanner] failed to reset rendition %d: %v", row.ID, err)
			continue
		}

		payload := rendition.GenerationPayload{
			RenditionID: row.ID,
			AssetID:     asset.ID,
			SourceKey:   asset.StorageKey,
			TargetKey:   row.StorageKey,
			CacheKey:    row.CacheKey,
			Width:       row.RequestWidth,
			Height:      row.RequestHeight,
			Format:      row.Format,
			Quality:     s.quality,
		}
		if err := s.invoker.InvokeRendition(payload); err != nil {
			log.Printf("[RetryScanner] failed to re-queue rendition %d: %v", row.ID, err)
		}
	}

	if len(rows) > 0 {
		log.Printf("[RetryScanner] re-queued %d renditions", len(rows))
	}
}
