package debfile

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ralt/pkgcatalog/internal/control"
	"github.com/ralt/pkgcatalog/internal/models"
	"github.com/ulikunitz/xz"
)

const (
	arMagic      = "!<arch>\n"
	arHeaderSize = 60
)

// Inspect reads the control record of a .deb file and returns it as a
// package edition with its on-disk size
func Inspect(path string) (models.PkgInfo, error) {
	rec, err := ReadControl(path)
	if err != nil {
		return models.PkgInfo{}, err
	}

	pkg := control.ToPkgInfo(rec, "")
	pkg.SourcePath = path
	pkg.Extended = true

	fi, err := os.Stat(path)
	if err != nil {
		return models.PkgInfo{}, &models.CatalogError{Type: models.ErrSourceUnreadable, Path: path, Err: err}
	}
	pkg.Size = fi.Size()
	return pkg, nil
}

// ReadControl extracts and parses the control file of a .deb package
func ReadControl(path string) (control.Record, error) {
	data, err := extractControl(path)
	if err != nil {
		return control.Record{}, &models.CatalogError{Type: models.ErrMalformed, Path: path, Err: err}
	}

	records, err := control.ParseAll(bytes.NewReader(data), control.Full)
	if err != nil {
		return control.Record{}, &models.CatalogError{Type: models.ErrMalformed, Path: path, Err: err}
	}
	if len(records) == 0 || records[0].Name() == "" {
		return control.Record{}, &models.CatalogError{Type: models.ErrMalformed, Path: path, Err: fmt.Errorf("control file has no Package field")}
	}
	return records[0], nil
}

// extractControl returns the raw control file from a .deb, which is an ar
// archive holding control.tar[.gz|.xz|.zst]
func extractControl(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	magic := make([]byte, len(arMagic))
	if _, err := io.ReadFull(f, magic); err != nil || string(magic) != arMagic {
		return nil, fmt.Errorf("not an ar archive")
	}

	header := make([]byte, arHeaderSize)
	for {
		if _, err := io.ReadFull(f, header); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read ar header: %w", err)
		}

		// Member names are space padded, GNU ar adds a trailing slash
		name := strings.TrimRight(strings.TrimSpace(string(header[0:16])), "/")
		size, err := strconv.ParseInt(strings.TrimSpace(string(header[48:58])), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ar member size for %s", name)
		}

		if strings.HasPrefix(name, "control.tar") {
			data := make([]byte, size)
			if _, err := io.ReadFull(f, data); err != nil {
				return nil, err
			}
			return controlFromTar(data, name)
		}

		// Members are aligned to 2-byte boundaries
		skip := size + size%2
		if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("control.tar not found in package")
}

// controlFromTar extracts ./control from a possibly compressed tar member
func controlFromTar(data []byte, name string) ([]byte, error) {
	var r io.Reader = bytes.NewReader(data)

	switch {
	case strings.HasSuffix(name, ".gz"):
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		r = gr
	case strings.HasSuffix(name, ".xz"):
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		r = xr
	case strings.HasSuffix(name, ".zst"):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	}

	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if header.Name == "./control" || header.Name == "control" {
			return io.ReadAll(tr)
		}
	}

	return nil, fmt.Errorf("control file not found in %s", name)
}
