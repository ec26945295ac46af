package scanner

// Compression represents the encoding of an index file on disk
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionXz
	CompressionZstd
	CompressionLz4
)

// String returns the string representation of Compression
func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionXz:
		return "xz"
	case CompressionZstd:
		return "zstd"
	case CompressionLz4:
		return "lz4"
	default:
		return "none"
	}
}

// Extension returns the file extension apt uses for the compression
func (c Compression) Extension() string {
	switch c {
	case CompressionGzip:
		return ".gz"
	case CompressionXz:
		return ".xz"
	case CompressionZstd:
		return ".zst"
	case CompressionLz4:
		return ".lz4"
	default:
		return ""
	}
}

// IndexFile represents a repository package index found in the lists directory
type IndexFile struct {
	Path        string
	Compression Compression
	Size        int64
}
