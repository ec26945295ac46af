package control

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ralt/pkgcatalog/internal/models"
	"github.com/ralt/pkgcatalog/internal/scanner"
	"github.com/ulikunitz/xz"
)

type indexReader struct {
	io.Reader
	closers []func() error
}

func (r *indexReader) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenIndex opens a control file, transparently decompressing it. Offsets
// reported by a Scanner over the result refer to the decompressed stream.
func OpenIndex(path string) (io.ReadCloser, scanner.Compression, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, scanner.CompressionNone, err
	}

	br := bufio.NewReader(f)
	header, _ := br.Peek(8)
	compression := scanner.DetectCompressionBytes(header, path)

	r := &indexReader{closers: []func() error{f.Close}}
	switch compression {
	case scanner.CompressionGzip:
		gr, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, compression, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		r.Reader = gr
		r.closers = append(r.closers, gr.Close)
	case scanner.CompressionXz:
		xr, err := xz.NewReader(br)
		if err != nil {
			f.Close()
			return nil, compression, fmt.Errorf("failed to open xz stream: %w", err)
		}
		r.Reader = xr
	case scanner.CompressionZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			f.Close()
			return nil, compression, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		r.Reader = zr
		r.closers = append(r.closers, func() error {
			zr.Close()
			return nil
		})
	case scanner.CompressionLz4:
		r.Reader = lz4.NewReader(br)
	default:
		r.Reader = br
	}

	return r, compression, nil
}

// ParseFile reads every record of a control file. An unreadable file yields
// zero records and an ErrSourceUnreadable error.
func ParseFile(path string, mode Mode) ([]Record, error) {
	rc, _, err := OpenIndex(path)
	if err != nil {
		return nil, &models.CatalogError{Type: models.ErrSourceUnreadable, Path: path, Err: err}
	}
	defer rc.Close()

	records, err := ParseAll(rc, mode)
	if err != nil {
		return nil, &models.CatalogError{Type: models.ErrSourceUnreadable, Path: path, Err: err}
	}
	return records, nil
}

// Extract parses the single record stored at [offset, offset+size) of r
func Extract(r io.ReaderAt, offset, size int64) (Record, error) {
	s := NewScanner(io.NewSectionReader(r, offset, size), Full)
	if !s.Scan() {
		if err := s.Err(); err != nil {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("no record at offset %d", offset)
	}

	rec := s.Record()
	rec.Offset += offset
	return rec, nil
}

// ExtractRaw returns the raw bytes of the record at [offset, offset+size)
func ExtractRaw(r io.ReaderAt, offset, size int64) ([]byte, error) {
	buf := make([]byte, size)
	n, err := r.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if int64(n) < size {
		return nil, fmt.Errorf("record at offset %d truncated: read %d of %d bytes", offset, n, size)
	}
	return buf, nil
}

// ExtractFile parses the record at offset/size of a file on disk. Plain
// files are read with a bounded seek; compressed ones are skipped through.
func ExtractFile(path string, offset, size int64) (Record, error) {
	raw, err := ExtractFileRaw(path, offset, size)
	if err != nil {
		return Record{}, err
	}

	rec, err := Extract(bytes.NewReader(raw), 0, int64(len(raw)))
	if err != nil {
		return Record{}, fmt.Errorf("%s: %w", path, err)
	}
	rec.Offset += offset
	return rec, nil
}

// ExtractFileRaw returns the raw bytes of the record at offset/size of a file
func ExtractFileRaw(path string, offset, size int64) ([]byte, error) {
	compression, err := scanner.DetectCompression(path)
	if err != nil {
		return nil, &models.CatalogError{Type: models.ErrSourceUnreadable, Path: path, Err: err}
	}

	if compression == scanner.CompressionNone {
		f, err := os.Open(path)
		if err != nil {
			return nil, &models.CatalogError{Type: models.ErrSourceUnreadable, Path: path, Err: err}
		}
		defer f.Close()
		return ExtractRaw(f, offset, size)
	}

	rc, _, err := OpenIndex(path)
	if err != nil {
		return nil, &models.CatalogError{Type: models.ErrSourceUnreadable, Path: path, Err: err}
	}
	defer rc.Close()

	if _, err := io.CopyN(io.Discard, rc, offset); err != nil {
		return nil, fmt.Errorf("failed to skip to offset %d of %s: %w", offset, path, err)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(rc, buf); err != nil {
		return nil, fmt.Errorf("record at offset %d of %s truncated: %w", offset, path, err)
	}
	return buf, nil
}

// Span locates one record inside a control file
type Span struct {
	Offset int64
	Size   int64
}

// ExtractFileSpans parses the records at spans in a single forward pass over
// the file, so a compressed index is decompressed once. Spans must be sorted
// by offset and must not overlap. On error the records read so far are
// returned.
func ExtractFileSpans(path string, spans []Span) ([]Record, error) {
	rc, _, err := OpenIndex(path)
	if err != nil {
		return nil, &models.CatalogError{Type: models.ErrSourceUnreadable, Path: path, Err: err}
	}
	defer rc.Close()

	records := make([]Record, 0, len(spans))
	var pos int64
	for _, span := range spans {
		if span.Offset < pos {
			return records, fmt.Errorf("span at offset %d of %s overlaps the previous one", span.Offset, path)
		}
		if _, err := io.CopyN(io.Discard, rc, span.Offset-pos); err != nil {
			return records, fmt.Errorf("failed to skip to offset %d of %s: %w", span.Offset, path, err)
		}
		buf := make([]byte, span.Size)
		if _, err := io.ReadFull(rc, buf); err != nil {
			return records, fmt.Errorf("record at offset %d of %s truncated: %w", span.Offset, path, err)
		}
		pos = span.Offset + span.Size

		rec, err := Extract(bytes.NewReader(buf), 0, span.Size)
		if err != nil {
			return records, fmt.Errorf("%s: %w", path, err)
		}
		rec.Offset += span.Offset
		records = append(records, rec)
	}
	return records, nil
}
