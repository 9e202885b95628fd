// Package pagination implements the opaque, compressed, round-trippable
// cursor a QueryCoordinator hands back to clients between pages.
package pagination

import (
	"encoding/base64"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"

	"github.com/epokhe/pathery/directory"
)

// Token pins a query to a segment snapshot and tracks per-partition
// consumption, so later commits never shift the ranked result set under
// a paging client. Field order matches the wire contract (query,
// segments, partition_state) for a stable canonical encoding.
type Token struct {
	Query    string                  `json:"query"`
	Segments []directory.SegmentMeta `json:"segments"`
	Offsets  []uint                  `json:"partition_state"`
}

// encoder/decoder are reused across calls: constructing a zstd encoder
// is expensive enough that the history-snapshot-compression pattern in
// the example pack amortizes it across a package-level pair rather than
// building one per call.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// Encode serializes t to canonical JSON, compresses it, and returns the
// base64-standard text form clients carry opaquely between requests.
func Encode(t Token) (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshal pagination token: %w", err)
	}
	compressed := zstdEncoder.EncodeAll(data, nil)
	return base64.StdEncoding.EncodeToString(compressed), nil
}

// Decode reverses Encode.
func Decode(s string) (Token, error) {
	compressed, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Token{}, fmt.Errorf("decode pagination token base64: %w", err)
	}
	data, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return Token{}, fmt.Errorf("decompress pagination token: %w", err)
	}
	var t Token
	if err := json.Unmarshal(data, &t); err != nil {
		return Token{}, fmt.Errorf("unmarshal pagination token: %w", err)
	}
	return t, nil
}
