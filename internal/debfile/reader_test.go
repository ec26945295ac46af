package debfile

import (
	"archive/tar"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
)

// buildDeb writes a minimal .deb holding the given control file
func buildDeb(t *testing.T, path, controlFile string) {
	t.Helper()

	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	tw.WriteHeader(&tar.Header{Name: "./control", Mode: 0644, Size: int64(len(controlFile))})
	tw.Write([]byte(controlFile))
	tw.Close()

	var gzBuf bytes.Buffer
	gw := gzip.NewWriter(&gzBuf)
	gw.Write(tarBuf.Bytes())
	gw.Close()

	var deb bytes.Buffer
	deb.WriteString("!<arch>\n")
	member := func(name string, data []byte) {
		fmt.Fprintf(&deb, "%-16s%-12s%-6s%-6s%-8s%-10d`\n", name, "0", "0", "0", "100644", len(data))
		deb.Write(data)
		if len(data)%2 != 0 {
			deb.WriteByte('\n')
		}
	}
	member("debian-binary", []byte("2.0\n"))
	member("control.tar.gz/", gzBuf.Bytes())
	member("data.tar.gz", []byte{0})

	if err := os.WriteFile(path, deb.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write deb: %v", err)
	}
}

func TestReadControl(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foo_1.0_amd64.deb")
	buildDeb(t, path, "Package: foo\nVersion: 1.0\nArchitecture: amd64\nDescription: foo tool\n more\n")

	rec, err := ReadControl(path)
	if err != nil {
		t.Fatalf("ReadControl failed: %v", err)
	}
	if rec.Name() != "foo" || rec.Get("Version") != "1.0" {
		t.Errorf("Unexpected control: %v", rec.Fields)
	}
	if rec.Get("Description") != "foo tool\n more" {
		t.Errorf("Description = %q", rec.Get("Description"))
	}
}

func TestInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foo.deb")
	buildDeb(t, path, "Package: foo\nVersion: 1.0\nArchitecture: amd64\n")

	pkg, err := Inspect(path)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	fi, _ := os.Stat(path)
	if pkg.Identity() != "foo:1.0:amd64" || pkg.Size != fi.Size() {
		t.Errorf("Unexpected package: %+v", pkg)
	}
}

func TestReadControlNotDeb(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.deb")
	os.WriteFile(path, []byte("not an archive"), 0644)

	if _, err := ReadControl(path); err == nil {
		t.Error("Expected error for non-ar file")
	}
}
