package pkgops

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/ralt/pkgcatalog/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fooStatus = `Package: other
Status: install ok installed
Version: 9
Architecture: amd64

Package: foo
Status: install ok installed
Priority: optional
Installed-Size: 999
Maintainer: Foo Team <foo@example.com>
Architecture: amd64
Version: 1:1.2-3
Conffiles:
 /etc/foo.conf 0123456789abcdef
Config-Version: 1.1
Description: foo tool
 longer text
`

func TestControlFromStatus(t *testing.T) {
	got := string(ControlFromStatus([]byte(fooStatus[bytes.Index([]byte(fooStatus), []byte("Package: foo")):]), 4))

	want := `Package: foo
Priority: optional
Installed-Size: 4
Maintainer: Foo Team <foo@example.com>
Architecture: amd64
Version: 1:1.2-3
Description: foo tool
 longer text
`
	assert.Equal(t, want, got)
}

func TestDebFileName(t *testing.T) {
	pkg := models.PkgInfo{Name: "foo", Version: "1:1.2-3", Architecture: "amd64"}
	assert.Equal(t, "foo_1.2-3_amd64.deb", DebFileName(pkg))
}

func TestRepack(t *testing.T) {
	root := t.TempDir()
	infoDir := filepath.Join(root, "var/lib/dpkg/info")
	statusFile := filepath.Join(root, "var/lib/dpkg/status")

	write := func(path, content string, perm os.FileMode) {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), perm))
	}

	write(statusFile, fooStatus, 0644)
	write(filepath.Join(infoDir, "foo.list"), "/.\n/usr\n/usr/bin\n/usr/bin/foo\n", 0644)
	write(filepath.Join(infoDir, "foo.postinst"), "#!/bin/sh\n", 0755)
	write(filepath.Join(infoDir, "foo.md5sums"), "abc  usr/bin/foo\n", 0644)
	write(filepath.Join(root, "usr/bin/foo"), "binary", 0755)
	write(filepath.Join(root, "usr/share/doc/foo/copyright"), "MIT", 0644)

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write([]byte("foo (1.2-3) stable; urgency=low\n"))
	zw.Close()
	write(filepath.Join(root, "usr/share/doc/foo/changelog.Debian.gz"), gz.String(), 0644)

	cache := filepath.Join(root, "cache")
	buildDir := filepath.Join(root, "build")
	write(filepath.Join(cache, "stale"), "old", 0644)

	runner := &fakeRunner{
		onRun: func(cmd Command) {
			// Stand in for dpkg -b writing the archive
			os.WriteFile(cmd.Args[len(cmd.Args)-1], []byte("!<arch>\n"), 0644)
		},
	}
	m := NewManager(runner, Options{
		Root:          root,
		InfoDir:       infoDir,
		StatusFile:    statusFile,
		BuildDir:      buildDir,
		BuildCacheDir: cache,
	})

	app := models.AppInfo{
		Name:      "foo",
		Installed: true,
		InstalledEdition: models.PkgInfo{
			Name:           "foo",
			Version:        "1:1.2-3",
			Architecture:   "amd64",
			InstalledFiles: []string{"/.", "/usr", "/usr/bin", "/usr/bin/foo", "/usr/share/missing"},
		},
	}

	out, err := m.Repack(context.Background(), app)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(buildDir, "foo_1.2-3_amd64.deb"), out)

	require.Len(t, runner.commands, 1)
	assert.Equal(t, []string{"-b", cache, out}, runner.commands[0].Args)

	assert.NoFileExists(t, filepath.Join(cache, "stale"))
	assert.FileExists(t, filepath.Join(cache, "usr/bin/foo"))
	assert.FileExists(t, filepath.Join(cache, "DEBIAN/postinst"))
	assert.FileExists(t, filepath.Join(cache, "DEBIAN/md5sums"))
	assert.NoFileExists(t, filepath.Join(cache, "DEBIAN/prerm"))

	fi, err := os.Stat(filepath.Join(cache, "usr/bin/foo"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), fi.Mode().Perm())

	changelog, err := os.ReadFile(filepath.Join(cache, "DEBIAN/changelog"))
	require.NoError(t, err)
	assert.Equal(t, "foo (1.2-3) stable; urgency=low\n", string(changelog))

	ctrl, err := os.ReadFile(filepath.Join(cache, "DEBIAN/control"))
	require.NoError(t, err)
	assert.Contains(t, string(ctrl), "Package: foo\n")
	assert.Contains(t, string(ctrl), "Installed-Size: 1\n")
	assert.NotContains(t, string(ctrl), "Status:")
	assert.NotContains(t, string(ctrl), "/etc/foo.conf")
}

func TestRepackNotInstalled(t *testing.T) {
	m := NewManager(&fakeRunner{}, Options{BuildCacheDir: t.TempDir()})
	_, err := m.Repack(context.Background(), models.AppInfo{Name: "foo"})
	assert.Error(t, err)
}
