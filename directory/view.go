package directory

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
)

// View wraps a Directory and restricts the manifest a reader sees to a
// fixed subset of segments, without copying or moving any files. A
// PartitionExecutor opens one of these per sub-query instead of talking to
// the real manifest, so partitioning is purely a read-side concern — the
// writer never needs to know partitions exist.
type View struct {
	Directory
	segments []SegmentMeta
}

// NewView returns a Directory whose manifest reports exactly segments,
// leaving every other path delegated to the underlying Directory unchanged.
func NewView(dir Directory, segments []SegmentMeta) *View {
	return &View{Directory: dir, segments: segments}
}

// AtomicRead intercepts reads of the manifest path to substitute the
// filtered segment list; every other path (segment files themselves)
// passes through to the underlying Directory unchanged.
func (v *View) AtomicRead(ctx context.Context, path string) ([]byte, error) {
	if path != ManifestPath {
		return v.Directory.AtomicRead(ctx, path)
	}
	data, err := json.Marshal(Manifest{Segments: v.segments})
	if err != nil {
		return nil, fmt.Errorf("marshal partition view manifest: %w", err)
	}
	return data, nil
}

func (v *View) Exists(ctx context.Context, path string) (bool, error) {
	if path == ManifestPath {
		return true, nil
	}
	return v.Directory.Exists(ctx, path)
}

// Segments returns the fixed segment subset this view exposes.
func (v *View) Segments() []SegmentMeta { return v.segments }
