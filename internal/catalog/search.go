package catalog

import (
	"strings"
	"unicode"

	"github.com/mozillazg/go-pinyin"
	"github.com/ralt/pkgcatalog/internal/models"
)

var (
	normalArgs  = pinyinArgs(pinyin.Normal)
	initialArgs = pinyinArgs(pinyin.FirstLetter)
)

func pinyinArgs(style int) pinyin.Args {
	args := pinyin.NewArgs()
	args.Style = style
	return args
}

// Transliteration holds the Pinyin spellings of a display name
type Transliteration struct {
	NoTone   string // e.g. "zhongduan" for 终端
	Initials string // e.g. "zd"
}

// Transliterate spells the Han characters of s in tone-stripped Pinyin.
// Other runes are kept as they are.
func Transliterate(s string) Transliteration {
	var noTone, initials strings.Builder
	for _, r := range s {
		if !unicode.Is(unicode.Han, r) {
			noTone.WriteRune(r)
			initials.WriteRune(r)
			continue
		}

		spelled := pinyin.SinglePinyin(r, normalArgs)
		if len(spelled) == 0 {
			noTone.WriteRune(r)
			initials.WriteRune(r)
			continue
		}
		noTone.WriteString(spelled[0])

		if first := pinyin.SinglePinyin(r, initialArgs); len(first) > 0 {
			initials.WriteString(first[0])
		}
	}
	return Transliteration{NoTone: noTone.String(), Initials: initials.String()}
}

// Matches reports whether app matches a free-text query, case-insensitively,
// on its name, display name, or the display name's Pinyin spellings
func Matches(app models.AppInfo, text string) bool {
	query := strings.ToLower(strings.TrimSpace(text))
	if query == "" {
		return true
	}

	if strings.Contains(strings.ToLower(app.Name), query) {
		return true
	}

	appName := app.Desktop.AppName
	if appName == "" {
		return false
	}
	if strings.Contains(strings.ToLower(appName), query) {
		return true
	}

	t := Transliterate(appName)
	return strings.Contains(strings.ToLower(t.NoTone), query) ||
		strings.Contains(strings.ToLower(t.Initials), query)
}

// Search scans apps for text and returns the matches sorted by name
func Search(apps []models.AppInfo, text string) []models.AppInfo {
	var found []models.AppInfo
	for _, app := range apps {
		if Matches(app, text) {
			found = append(found, app)
		}
	}
	sortApps(found)
	return found
}
