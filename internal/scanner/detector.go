package scanner

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
)

// Magic bytes for compression detection
var (
	gzipMagic = []byte{0x1F, 0x8B}
	xzMagic   = []byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00}
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
	lz4Magic  = []byte{0x04, 0x22, 0x4D, 0x18}
)

// DetectCompression determines the compression of a file based on magic bytes
// and, for empty or unreadable headers, its extension
func DetectCompression(path string) (Compression, error) {
	f, err := os.Open(path)
	if err != nil {
		return CompressionNone, err
	}
	defer f.Close()

	header := make([]byte, 8)
	n, _ := f.Read(header)
	return detect(header[:n], path), nil
}

// DetectCompressionBytes determines the compression from a header already in memory
func DetectCompressionBytes(header []byte, name string) Compression {
	return detect(header, name)
}

func detect(header []byte, name string) Compression {
	switch {
	case bytes.HasPrefix(header, gzipMagic):
		return CompressionGzip
	case bytes.HasPrefix(header, xzMagic):
		return CompressionXz
	case bytes.HasPrefix(header, zstdMagic):
		return CompressionZstd
	case bytes.HasPrefix(header, lz4Magic):
		return CompressionLz4
	}

	// Plain text indexes never start with these, so a match on magic bytes
	// is trusted first. Fall back to the name for truncated files.
	if len(header) == 0 {
		return compressionFromExt(filepath.Ext(name))
	}
	return CompressionNone
}

func compressionFromExt(ext string) Compression {
	switch strings.ToLower(ext) {
	case ".gz":
		return CompressionGzip
	case ".xz":
		return CompressionXz
	case ".zst":
		return CompressionZstd
	case ".lz4":
		return CompressionLz4
	default:
		return CompressionNone
	}
}

// TrimCompressionExt removes a known compression extension from a file name
func TrimCompressionExt(name string) string {
	if c := compressionFromExt(filepath.Ext(name)); c != CompressionNone {
		return strings.TrimSuffix(name, filepath.Ext(name))
	}
	return name
}
