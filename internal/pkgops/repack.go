package pkgops

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ralt/pkgcatalog/internal/control"
	"github.com/ralt/pkgcatalog/internal/debfile"
	"github.com/ralt/pkgcatalog/internal/models"
	"github.com/ralt/pkgcatalog/internal/utils"
	"github.com/sirupsen/logrus"
)

const debianDir = "DEBIAN"

// maintainerFiles are copied from the dpkg info directory into DEBIAN/
var maintainerFiles = []string{
	"postinst",
	"postrm",
	"preinst",
	"prerm",
	"conffiles",
	"md5sums",
	"triggers",
	"shlibs",
	"symbols",
}

// controlDropped are status-only fields that do not belong in a .deb
var controlDropped = []string{"Status", "Conffiles", "Config-Version"}

// Repack rebuilds a .deb from the installed files of a package and returns
// its path. A failed build leaves the staging tree in place.
func (m *Manager) Repack(ctx context.Context, app models.AppInfo) (string, error) {
	if !app.Installed || app.InstalledEdition.Name == "" {
		return "", &models.CatalogError{Type: models.ErrNotFound, Path: app.Name, Err: fmt.Errorf("package is not installed")}
	}
	pkg := app.InstalledEdition
	log := logrus.WithField("package", pkg.Name)

	cache := m.opts.BuildCacheDir
	if err := utils.ResetDir(cache); err != nil {
		return "", fmt.Errorf("failed to reset build cache: %w", err)
	}

	copied := m.stageFiles(pkg, cache)
	log.Debugf("Staged %d files in %s", copied, cache)

	if err := m.stageDebian(pkg, cache); err != nil {
		return "", err
	}

	if err := utils.EnsureDir(m.opts.BuildDir); err != nil {
		return "", fmt.Errorf("failed to create build directory: %w", err)
	}
	out := filepath.Join(m.opts.BuildDir, DebFileName(pkg))

	if _, err := m.run(ctx, Command{Name: "dpkg", Args: []string{"-b", cache, out}}); err != nil {
		return "", err
	}

	if err := verifyBuilt(out, pkg); err != nil {
		return "", err
	}

	sums, err := utils.CalculateChecksums(out)
	if err != nil {
		return "", fmt.Errorf("failed to checksum %s: %w", out, err)
	}
	log.Infof("Built %s (%d bytes, sha256 %s)", out, sums.Size, sums.SHA256)
	return out, nil
}

// verifyBuilt checks that the archive dpkg produced carries the expected
// identity. An archive whose control cannot be read is only warned about.
func verifyBuilt(out string, pkg models.PkgInfo) error {
	built, err := debfile.Inspect(out)
	if err != nil {
		logrus.WithField("file", out).Warnf("Could not verify built package: %v", err)
		return nil
	}
	if built.Name != pkg.Name || built.Version != pkg.Version {
		return &models.CatalogError{
			Type: models.ErrMalformed,
			Path: out,
			Err:  fmt.Errorf("built %s, expected %s", built.Identity(), pkg.Identity()),
		}
	}
	return nil
}

// stageFiles copies every non-directory entry of the manifest into dir
func (m *Manager) stageFiles(pkg models.PkgInfo, dir string) int {
	copied := 0
	for _, file := range pkg.InstalledFiles {
		src := m.hostPath(file)
		fi, err := os.Lstat(src)
		if err != nil {
			logrus.Warnf("Skipping %s: %v", src, err)
			continue
		}
		if fi.IsDir() {
			continue
		}
		if err := utils.CopyFile(src, filepath.Join(dir, file)); err != nil {
			logrus.Warnf("Failed to copy %s: %v", src, err)
			continue
		}
		copied++
	}
	return copied
}

// stageDebian writes the DEBIAN/ metadata directory
func (m *Manager) stageDebian(pkg models.PkgInfo, dir string) error {
	debian := filepath.Join(dir, debianDir)
	if err := utils.EnsureDir(debian); err != nil {
		return err
	}

	docDir := m.hostPath(filepath.Join("/usr/share/doc", pkg.Name))
	if changelog := filepath.Join(docDir, "changelog.Debian.gz"); exists(changelog) {
		if err := utils.GunzipFile(changelog, filepath.Join(debian, "changelog")); err != nil {
			logrus.Warnf("Failed to decompress %s: %v", changelog, err)
		}
	}
	if copyright := filepath.Join(docDir, "copyright"); exists(copyright) {
		if err := utils.CopyFile(copyright, filepath.Join(debian, "copyright")); err != nil {
			logrus.Warnf("Failed to copy %s: %v", copyright, err)
		}
	}

	prefix := m.infoPrefix(pkg)
	for _, name := range maintainerFiles {
		src := filepath.Join(m.opts.InfoDir, prefix+"."+name)
		if !exists(src) {
			continue
		}
		if err := utils.CopyFile(src, filepath.Join(debian, name)); err != nil {
			return fmt.Errorf("failed to copy %s: %w", src, err)
		}
	}

	stanza, err := m.statusStanza(pkg)
	if err != nil {
		return err
	}
	sizeBytes, err := utils.DirSize(dir, debianDir)
	if err != nil {
		return fmt.Errorf("failed to size build tree: %w", err)
	}

	ctrl := ControlFromStatus(stanza, (sizeBytes+1023)/1024)
	return utils.WriteFile(filepath.Join(debian, "control"), ctrl, 0644)
}

// infoPrefix returns the info-directory file prefix, qualified with the
// architecture when dpkg stored the package that way
func (m *Manager) infoPrefix(pkg models.PkgInfo) string {
	if exists(filepath.Join(m.opts.InfoDir, pkg.Name+".list")) || pkg.Architecture == "" {
		return pkg.Name
	}
	return pkg.Name + ":" + pkg.Architecture
}

// statusStanza returns the raw status record of the installed edition
func (m *Manager) statusStanza(pkg models.PkgInfo) ([]byte, error) {
	records, err := control.ParseFile(m.opts.StatusFile, control.Full)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.Name() != pkg.Name || rec.Get(control.FieldArchitecture) != pkg.Architecture {
			continue
		}
		if installed, _ := control.ParseStatus(rec.Get(control.FieldStatus)); !installed {
			continue
		}
		return control.ExtractFileRaw(m.opts.StatusFile, rec.Offset, rec.Size)
	}
	return nil, &models.CatalogError{Type: models.ErrNotFound, Path: pkg.Name, Err: fmt.Errorf("no installed record in %s", m.opts.StatusFile)}
}

func (m *Manager) hostPath(path string) string {
	if m.opts.Root == "" || m.opts.Root == "/" {
		return path
	}
	return filepath.Join(m.opts.Root, path)
}

// ControlFromStatus turns a status stanza into a binary package control
// file: status-only fields are dropped along with their continuation lines
// and Installed-Size is replaced by sizeKB.
func ControlFromStatus(stanza []byte, sizeKB int64) []byte {
	var buf bytes.Buffer
	skipping := false
	wroteSize := false

	s := bufio.NewScanner(bytes.NewReader(stanza))
	s.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for s.Scan() {
		line := s.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		if line[0] == ' ' || line[0] == '\t' {
			if !skipping {
				buf.WriteString(line)
				buf.WriteByte('\n')
			}
			continue
		}

		key, _, _ := strings.Cut(line, ":")
		skipping = contains(controlDropped, key)
		if skipping {
			continue
		}

		if key == control.FieldInstalledSize {
			fmt.Fprintf(&buf, "%s: %d\n", control.FieldInstalledSize, sizeKB)
			wroteSize = true
			continue
		}

		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	if !wroteSize {
		fmt.Fprintf(&buf, "%s: %d\n", control.FieldInstalledSize, sizeKB)
	}
	return buf.Bytes()
}

// DebFileName returns name_version_arch.deb, without the version's epoch
func DebFileName(pkg models.PkgInfo) string {
	version := pkg.Version
	if _, rest, ok := strings.Cut(version, ":"); ok {
		version = rest
	}
	return fmt.Sprintf("%s_%s_%s.deb", pkg.Name, version, pkg.Architecture)
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
