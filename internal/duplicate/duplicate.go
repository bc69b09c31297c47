// Package duplicate flags likely-duplicate uploads within a gallery.
package duplicate

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/galerly/galerly/database/models"
	"github.com/galerly/galerly/internal/fingerprint"
)

// MatchType classifies how a candidate matched.
type MatchType string

const (
	// MatchExactContent means the content hashes are identical.
	MatchExactContent MatchType = "exact_content"

	// MatchSameNameAndSize means the normalized filenames and byte
	// sizes match but the content differs.
	MatchSameNameAndSize MatchType = "same_name_and_size"
)

const (
	confidenceExact       = 100
	confidenceNameAndSize = 95
)

// Candidate is one likely duplicate. Advisory only: the caller
// decides whether to warn the uploader; nothing is ever merged.
type Candidate struct {
	MatchType      MatchType `json:"match_type"`
	MatchedAssetID uint      `json:"matched_asset_id"`
	MatchedName    string    `json:"matched_name"`
	Confidence     int       `json:"confidence"`
}

// NormalizeName folds a filename for heuristic comparison: extension
// stripped, case-folded, surrounding whitespace trimmed.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	ext := filepath.Ext(name)
	return strings.ToLower(strings.TrimSuffix(name, ext))
}

// FindDuplicates compares a new upload against the existing assets of
// its target gallery and returns every match, ranked by confidence
// descending. A hash match on an asset suppresses the weaker
// name-and-size match for that same asset.
func FindDuplicates(fp fingerprint.Fingerprint, filename string, existing []*models.Asset) []Candidate {
	normalized := NormalizeName(filename)
	candidates := make([]Candidate, 0)

	for _, asset := range existing {
		switch {
		case asset.ContentHash == fp.ContentHash:
			candidates = append(candidates, Candidate{
				MatchType:      MatchExactContent,
				MatchedAssetID: asset.ID,
				MatchedName:    asset.OriginalName,
				Confidence:     confidenceExact,
			})
		case asset.ByteSize == fp.ByteSize && NormalizeName(asset.OriginalName) == normalized:
			candidates = append(candidates, Candidate{
				MatchType:      MatchSameNameAndSize,
				MatchedAssetID: asset.ID,
				MatchedName:    asset.OriginalName,
				Confidence:     confidenceNameAndSize,
			})
		}
	}

	// Stable sort keeps enumeration order within a confidence tier.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	return candidates
}

// HasExactMatch reports whether any candidate is a content match.
func HasExactMatch(candidates []Candidate) bool {
	for _, c := range candidates {
		if c.MatchType == MatchExactContent {
			return true
		}
	}
	return false
}
