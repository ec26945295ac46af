package desktop

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ralt/pkgcatalog/internal/models"
	"github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

const (
	entryGroup = "Desktop Entry"
	optPrefix  = "/opt/"

	// DefaultDesktopEnv is the OnlyShowIn identifier entries must allow
	DefaultDesktopEnv = "Deepin"
	// DefaultVendor marks entries whose GenericName is the display name
	DefaultVendor = "deepin"
	vendorKey     = "X-Deepin-Vendor"
)

var loadOptions = ini.LoadOptions{
	IgnoreContinuation:      true,
	IgnoreInlineComment:     true,
	SkipUnrecognizableLines: true,
	KeyValueDelimiters:      "=",
	PreserveSurroundedQuote: true,
}

// Resolver reads desktop entries for one locale and desktop environment
type Resolver struct {
	locale     string
	lang       string
	desktopEnv string
	vendor     string
}

// NewResolver creates a resolver. locale is a POSIX locale name such as zh_CN.
func NewResolver(locale, desktopEnv, vendor string) *Resolver {
	if desktopEnv == "" {
		desktopEnv = DefaultDesktopEnv
	}
	if vendor == "" {
		vendor = DefaultVendor
	}
	lang, _, _ := strings.Cut(locale, "_")
	return &Resolver{
		locale:     locale,
		lang:       lang,
		desktopEnv: desktopEnv,
		vendor:     vendor,
	}
}

// Resolve parses one desktop entry. An entry that opts out of display
// yields an empty DesktopInfo and no error.
func (r *Resolver) Resolve(path string) (models.DesktopInfo, error) {
	var info models.DesktopInfo

	file, err := ini.LoadSources(loadOptions, path)
	if err != nil {
		return info, fmt.Errorf("failed to load desktop entry: %w", err)
	}

	section, err := file.GetSection(entryGroup)
	if err != nil {
		return info, nil
	}

	if section.Key("NoDisplay").MustBool(false) {
		return info, nil
	}

	if onlyShowIn := section.Key("OnlyShowIn").String(); onlyShowIn != "" && !listContains(onlyShowIn, r.desktopEnv) {
		return info, nil
	}

	info.DesktopPath = resolveLink(path)

	nameKey := "Name"
	if section.Key(vendorKey).String() == r.vendor {
		nameKey = "GenericName"
	}
	info.AppName = r.localized(section, nameKey)
	if info.AppName == "" && nameKey != "Name" {
		info.AppName = r.localized(section, "Name")
	}

	info.Exec = section.Key("Exec").String()
	info.ExecPath = execPath(info.Exec)
	info.SystemApp = !strings.Contains(info.ExecPath, optPrefix)
	info.Icon = section.Key("Icon").String()

	return info, nil
}

// ResolveFirst returns the first visible entry among candidates, in order
func (r *Resolver) ResolveFirst(paths []string) models.DesktopInfo {
	for _, path := range paths {
		info, err := r.Resolve(path)
		if err != nil {
			logrus.Debugf("Skipping desktop entry %s: %v", path, err)
			continue
		}
		if info.Visible() {
			return info
		}
		logrus.Debugf("Desktop entry %s is hidden", path)
	}
	return models.DesktopInfo{}
}

func (r *Resolver) localized(section *ini.Section, key string) string {
	if r.locale != "" {
		if v := section.Key(fmt.Sprintf("%s[%s]", key, r.locale)).String(); v != "" {
			return v
		}
	}
	if r.lang != "" && r.lang != r.locale {
		if v := section.Key(fmt.Sprintf("%s[%s]", key, r.lang)).String(); v != "" {
			return v
		}
	}
	return section.Key(key).String()
}

// Candidates returns the desktop entry paths of a package manifest in order
func Candidates(files []string, pkgName string) []string {
	optDir := fmt.Sprintf("/opt/apps/%s/entries/applications/", pkgName)

	var paths []string
	for _, path := range files {
		if !strings.HasSuffix(path, ".desktop") {
			continue
		}
		if strings.HasPrefix(path, "/usr/share/applications/") || strings.HasPrefix(path, optDir) {
			paths = append(paths, path)
		}
	}
	return paths
}

func execPath(exec string) string {
	fields := strings.Fields(exec)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], `"'`)
}

func listContains(list, want string) bool {
	for _, item := range strings.Split(list, ";") {
		if strings.TrimSpace(item) == want {
			return true
		}
	}
	return false
}

func resolveLink(path string) string {
	fi, err := os.Lstat(path)
	if err != nil || fi.Mode()&os.ModeSymlink == 0 {
		return path
	}
	target, err := os.Readlink(path)
	if err != nil {
		return path
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(path), target)
	}
	return target
}
