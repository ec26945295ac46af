package control

import (
	"strconv"
	"strings"

	"github.com/ralt/pkgcatalog/internal/models"
)

// ParseStatus interprets a dpkg Status value ("want flag state").
// A package is installed when its state word is anything but
// "not-installed" or "config-files", so every state that leaves files on
// disk counts. Values without a state word fall back to a substring test
// that ignores the deinstall and purge want words. A package is held when
// the value mentions hold.
func ParseStatus(value string) (installed, held bool) {
	held = strings.Contains(value, "hold")

	words := strings.Fields(value)
	if len(words) >= 3 {
		state := words[len(words)-1]
		return state != "not-installed" && state != "config-files", held
	}

	state := value
	if len(words) > 0 && (words[0] == "deinstall" || words[0] == "purge") {
		state = strings.Join(words[1:], " ")
	}
	installed = strings.Contains(state, "install") && !strings.Contains(state, "not-installed")
	return installed, held
}

// ToPkgInfo converts a record into a package edition. The download URL is
// built from repoURL and the record's Filename, when both are known.
func ToPkgInfo(rec Record, repoURL string) models.PkgInfo {
	pkg := models.PkgInfo{
		Name:          rec.Get(FieldPackage),
		Version:       rec.Get(FieldVersion),
		Architecture:  rec.Get(FieldArchitecture),
		Maintainer:    rec.Get(FieldMaintainer),
		Homepage:      rec.Get(FieldHomepage),
		Depends:       rec.Get(FieldDepends),
		Description:   rec.Get(FieldDescription),
		ContentOffset: rec.Offset,
		ContentSize:   rec.Size,
		RepositoryURL: repoURL,
	}

	pkg.InstalledSizeKB = parseInt(rec.Get(FieldInstalledSize))
	pkg.Size = parseInt(rec.Get(FieldSize))

	if status, ok := rec.Fields[FieldStatus]; ok {
		pkg.Installed, pkg.Held = ParseStatus(status)
	}

	if filename := rec.Get(FieldFilename); filename != "" && repoURL != "" {
		pkg.DownloadURL = JoinURL(repoURL, filename)
	}

	return pkg
}

// Merge copies the full fields of rec onto pkg, keeping its provenance
func Merge(pkg *models.PkgInfo, rec Record) {
	full := ToPkgInfo(rec, pkg.RepositoryURL)
	pkg.Version = full.Version
	pkg.Architecture = full.Architecture
	pkg.InstalledSizeKB = full.InstalledSizeKB
	pkg.Maintainer = full.Maintainer
	pkg.Homepage = full.Homepage
	pkg.Depends = full.Depends
	pkg.Description = full.Description
	pkg.Size = full.Size
	if full.DownloadURL != "" {
		pkg.DownloadURL = full.DownloadURL
	}
	pkg.Extended = true
}

// JoinURL joins a repository base URL and a pool-relative file name
func JoinURL(base, filename string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(filename, "/")
}

func parseInt(value string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
