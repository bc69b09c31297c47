package imaging

import "bytes"

const (
	markerSOI  = 0xD8
	markerEOI  = 0xD9
	markerSOS  = 0xDA
	markerTEM  = 0x01
	markerCOM  = 0xFE
	markerAPP0 = 0xE0
	markerAPP1 = 0xE1
	markerAPP2 = 0xE2
	markerAPP14 = 0xEE
	markerAPP15 = 0xEF
)

var (
	exifHeader = []byte("Exif\x00\x00")
	iccHeader  = []byte("ICC_PROFILE\x00")
)

// sanitizeJPEG walks the segment stream and rebuilds the file with
// the metadata allow-list applied:
//
//   - APP0 (JFIF) and APP14 (Adobe color transform) pass through
//   - APP1 passes only when it is EXIF; XMP (XML) is dropped
//   - APP2 passes only when it is an ICC profile
//   - every other APPn and all COM segments are dropped
//
// EXIF is kept whole so orientation and capture date survive. A
// truncated or structurally invalid stream fails closed.
func sanitizeJPEG(data []byte) ([]byte, error) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != markerSOI {
		return nil, newValidationError(KindMalformed, "missing SOI marker")
	}

	out := bytes.NewBuffer(make([]byte, 0, len(data)))
	out.Write(data[:2])

	pos := 2
	for pos < len(data) {
		if data[pos] != 0xFF {
			return nil, newValidationError(KindMalformed, "expected marker at offset %d", pos)
		}
		// Fill bytes before a marker are legal.
		for pos < len(data) && data[pos] == 0xFF {
			pos++
		}
		if pos >= len(data) {
			return nil, newValidationError(KindMalformed, "truncated marker stream")
		}

		marker := data[pos]
		pos++

		switch {
		case marker == markerSOS:
			// Entropy-coded data runs to EOI; copy verbatim.
			out.WriteByte(0xFF)
			out.WriteByte(marker)
			out.Write(data[pos:])
			return out.Bytes(), nil

		case marker == markerEOI:
			out.WriteByte(0xFF)
			out.WriteByte(marker)
			return out.Bytes(), nil

		case marker == markerTEM || (marker >= 0xD0 && marker <= 0xD7):
			// Standalone markers carry no length.
			out.WriteByte(0xFF)
			out.WriteByte(marker)
			continue
		}

		if pos+2 > len(data) {
			return nil, newValidationError(KindMalformed, "truncated segment length")
		}
		segLen := int(data[pos])<<8 | int(data[pos+1])
		if segLen < 2 || pos+segLen > len(data) {
			return nil, newValidationError(KindMalformed, "segment length out of bounds")
		}
		payload := data[pos+2 : pos+segLen]

		if keepJPEGSegment(marker, payload) {
			out.WriteByte(0xFF)
			out.WriteByte(marker)
			out.Write(data[pos : pos+segLen])
		}
		pos += segLen
	}

	return nil, newValidationError(KindMalformed, "no SOS or EOI marker found")
}

func keepJPEGSegment(marker byte, payload []byte) bool {
	switch {
	case marker == markerCOM:
		return false
	case marker == markerAPP0, marker == markerAPP14:
		return true
	case marker == markerAPP1:
		return bytes.HasPrefix(payload, exifHeader)
	case marker == markerAPP2:
		return bytes.HasPrefix(payload, iccHeader)
	case marker >= markerAPP0 && marker <= markerAPP15:
		return false
	default:
		// Structural segments (DQT, DHT, SOF, DRI, ...).
		return true
	}
}
