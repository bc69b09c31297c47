package imaging

import "bytes"

// Format describes one entry of the container allow-list. Detection
// runs on magic bytes only; the claimed filename and extension are
// never trusted.
type Format struct {
	Name string
	MIME string
	Ext  string

	// PreviewCapable reports whether the pipeline can decode this
	// container for dimension checks and rendition generation. RAW
	// and HEIC payloads are stored and archived but not previewed.
	PreviewCapable bool
}

var (
	FormatJPEG = &Format{Name: "jpeg", MIME: "image/jpeg", Ext: "jpg", PreviewCapable: true}
	FormatPNG  = &Format{Name: "png", MIME: "image/png", Ext: "png", PreviewCapable: true}
	FormatGIF  = &Format{Name: "gif", MIME: "image/gif", Ext: "gif", PreviewCapable: true}
	FormatWebP = &Format{Name: "webp", MIME: "image/webp", Ext: "webp", PreviewCapable: true}
	FormatTIFF = &Format{Name: "tiff", MIME: "image/tiff", Ext: "tif", PreviewCapable: true}
	FormatHEIC = &Format{Name: "heic", MIME: "image/heic", Ext: "heic", PreviewCapable: false}
	FormatCR2  = &Format{Name: "cr2", MIME: "image/x-canon-cr2", Ext: "cr2", PreviewCapable: false}
	FormatRAF  = &Format{Name: "raf", MIME: "image/x-fuji-raf", Ext: "raf", PreviewCapable: false}
	FormatORF  = &Format{Name: "orf", MIME: "image/x-olympus-orf", Ext: "orf", PreviewCapable: false}
	FormatRW2  = &Format{Name: "rw2", MIME: "image/x-panasonic-rw2", Ext: "rw2", PreviewCapable: false}
)

var pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// heicBrands are the ISO-BMFF major brands accepted as HEIC/HEIF.
var heicBrands = map[string]bool{
	"heic": true, "heix": true, "hevc": true, "hevx": true,
	"heim": true, "heis": true, "hevm": true, "hevs": true,
	"mif1": true, "msf1": true, "heif": true,
}

// DetectFormat sniffs the container signature of data. Returns nil
// when no allow-listed signature matches.
func DetectFormat(data []byte) *Format {
	if len(data) < 12 {
		return nil
	}

	switch {
	case data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return FormatJPEG

	case bytes.HasPrefix(data, pngSignature):
		return FormatPNG

	case bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")):
		return FormatGIF

	case bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return FormatWebP

	case bytes.HasPrefix(data, []byte("FUJIFILMCCD-RAW")):
		return FormatRAF

	case bytes.HasPrefix(data, []byte("IIRO")) || bytes.HasPrefix(data, []byte("IIRS")) || bytes.HasPrefix(data, []byte("MMOR")):
		return FormatORF

	case bytes.HasPrefix(data, []byte{0x49, 0x49, 0x55, 0x00}):
		return FormatRW2

	case bytes.HasPrefix(data, []byte("II*\x00")):
		// Canon CR2 is a TIFF container with a "CR" tag at offset 8.
		if len(data) >= 10 && data[8] == 'C' && data[9] == 'R' {
			return FormatCR2
		}
		return FormatTIFF

	case bytes.HasPrefix(data, []byte("MM\x00*")):
		return FormatTIFF

	case bytes.Equal(data[4:8], []byte("ftyp")) && heicBrands[string(data[8:12])]:
		return FormatHEIC
	}

	return nil
}
