package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// IndexSuffix is the suffix apt gives repository package index files
const IndexSuffix = "_Packages"

// ScanIndexes lists the package index files in an apt lists directory.
// When arch is non-empty only indexes for that architecture are returned.
func ScanIndexes(ctx context.Context, dir, arch string) ([]IndexFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read lists directory: %w", err)
	}

	suffix := IndexSuffix
	if arch != "" {
		suffix = fmt.Sprintf("%s%s", arch, IndexSuffix)
	}

	var indexes []IndexFile
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if !entry.Type().IsRegular() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(TrimCompressionExt(name), suffix) {
			continue
		}

		path := filepath.Join(dir, name)
		info, err := entry.Info()
		if err != nil {
			logrus.Warnf("Failed to stat %s: %v", path, err)
			continue
		}

		compression, err := DetectCompression(path)
		if err != nil {
			logrus.Warnf("Failed to detect compression for %s: %v", path, err)
			continue
		}

		logrus.Debugf("Found %s index: %s", compression, path)
		indexes = append(indexes, IndexFile{
			Path:        path,
			Compression: compression,
			Size:        info.Size(),
		})
	}

	sort.Slice(indexes, func(i, j int) bool {
		return indexes[i].Path < indexes[j].Path
	})

	logrus.Infof("Found %d package indexes in %s", len(indexes), dir)
	return indexes, nil
}
