// Package imaging validates and sanitizes uploaded image payloads
// before they enter storage.
package imaging

import (
	"bytes"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Result is the outcome of a successful validation pass. Bytes holds
// the sanitized payload; it is never a partially-processed copy.
type Result struct {
	Bytes          []byte
	Format         *Format
	MimeType       string
	Width          int
	Height         int
	PreviewCapable bool
}

// Validator checks uploads against the container allow-list and the
// decoded-dimension ceiling, then strips injectable metadata.
type Validator struct {
	maxPixels int64
}

// NewValidator creates a validator. maxPixels bounds width*height of
// the decoded image; zero or negative disables the ceiling.
func NewValidator(maxPixels int64) *Validator {
	return &Validator{maxPixels: maxPixels}
}

// ValidateAndSanitize decides whether data is safe to store. On
// success it returns the sanitized payload and detected properties;
// on any failure it returns a *ValidationError and no output.
//
// Formats the pipeline cannot decode (HEIC, camera RAW) still pass
// signature validation but come back with PreviewCapable=false: the
// original is stored and archived, no renditions are generated.
func (v *Validator) ValidateAndSanitize(data []byte, filename string) (*Result, error) {
	if len(data) == 0 {
		return nil, newValidationError(KindEmpty, "empty payload for %q", filename)
	}

	format := DetectFormat(data)
	if format == nil {
		return nil, newValidationError(KindUnrecognized, "no allow-listed container signature")
	}

	result := &Result{
		Format:         format,
		MimeType:       format.MIME,
		PreviewCapable: format.PreviewCapable,
	}

	if format.PreviewCapable {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			if format == FormatTIFF {
				// TIFF containers from cameras often carry RAW data the
				// stdlib decoder rejects. Degrade to original-only.
				result.PreviewCapable = false
			} else {
				return nil, newValidationError(KindDecodeFailure, "%s header does not decode", format.Name)
			}
		} else {
			if v.maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > v.maxPixels {
				return nil, newValidationError(KindDimensionCeiling,
					"decoded dimensions %dx%d exceed pixel ceiling", cfg.Width, cfg.Height)
			}
			result.Width = cfg.Width
			result.Height = cfg.Height
		}
	}

	sanitized, err := sanitize(data, format)
	if err != nil {
		return nil, err
	}
	result.Bytes = sanitized

	return result, nil
}

// sanitize strips metadata blocks that can carry injectable content.
// JPEG and PNG are rewritten segment by segment; the remaining
// allow-listed containers hold no text or markup metadata the walkers
// could neutralize, so their bytes pass through untouched.
func sanitize(data []byte, format *Format) ([]byte, error) {
	switch format {
	case FormatJPEG:
		return sanitizeJPEG(data)
	case FormatPNG:
		return sanitizePNG(data)
	default:
		return data, nil
	}
}
