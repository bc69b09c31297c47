package imaging

import (
	"bytes"
	"encoding/binary"
)

// droppedPNGChunks are the text-bearing ancillary chunk types. They
// can carry arbitrary strings or compressed XML and are the only PNG
// chunks with an injection surface. eXIf stays: it is binary EXIF and
// carries orientation.
var droppedPNGChunks = map[string]bool{
	"tEXt": true,
	"zTXt": true,
	"iTXt": true,
}

// sanitizePNG rebuilds the chunk stream without text chunks. Chunks
// are copied verbatim with their original CRCs, so the output stays a
// valid PNG without recomputing anything. Trailing bytes after IEND
// are discarded.
func sanitizePNG(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, pngSignature) {
		return nil, newValidationError(KindMalformed, "missing PNG signature")
	}

	out := bytes.NewBuffer(make([]byte, 0, len(data)))
	out.Write(pngSignature)

	pos := len(pngSignature)
	sawIHDR := false

	for pos < len(data) {
		if pos+8 > len(data) {
			return nil, newValidationError(KindMalformed, "truncated chunk header")
		}

		chunkLen := binary.BigEndian.Uint32(data[pos : pos+4])
		chunkType := string(data[pos+4 : pos+8])
		total := 12 + int(chunkLen)
		if chunkLen > uint32(len(data)) || pos+total > len(data) {
			return nil, newValidationError(KindMalformed, "chunk length out of bounds")
		}

		if !sawIHDR {
			if chunkType != "IHDR" {
				return nil, newValidationError(KindMalformed, "first chunk is %s, not IHDR", chunkType)
			}
			sawIHDR = true
		}

		if !droppedPNGChunks[chunkType] {
			out.Write(data[pos : pos+total])
		}
		pos += total

		if chunkType == "IEND" {
			return out.Bytes(), nil
		}
	}

	return nil, newValidationError(KindMalformed, "no IEND chunk found")
}
