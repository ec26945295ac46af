package sources

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ralt/pkgcatalog/internal/scanner"
	"github.com/sirupsen/logrus"
)

// Resolver maps repository index file names back to configured source URLs
type Resolver struct {
	listPath string
	listDir  string
	urls     []string
}

// NewResolver creates a resolver for a sources.list file and its .d directory
func NewResolver(listPath, listDir string) *Resolver {
	return &Resolver{
		listPath: listPath,
		listDir:  listDir,
	}
}

// Reload re-reads the source list files, replacing the stored URLs
func (r *Resolver) Reload() {
	var urls []string
	if r.listPath != "" {
		urls = append(urls, readSourceFile(r.listPath)...)
	}

	if r.listDir != "" {
		entries, err := os.ReadDir(r.listDir)
		if err != nil {
			logrus.Warnf("Failed to read %s: %v", r.listDir, err)
		}
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			names = append(names, entry.Name())
		}
		sort.Strings(names)
		for _, name := range names {
			path := filepath.Join(r.listDir, name)
			logrus.Debugf("Reading source list %s", path)
			urls = append(urls, readSourceFile(path)...)
		}
	}

	r.urls = dedupe(urls)
	logrus.Infof("Loaded %d repository URLs", len(r.urls))
}

// URLs returns the configured repository URLs in discovery order
func (r *Resolver) URLs() []string {
	return append([]string(nil), r.urls...)
}

// Resolve returns the configured URL an index file was downloaded from
func (r *Resolver) Resolve(indexPath string) (string, bool) {
	part := URLPart(indexPath)
	if part == "" {
		return "", false
	}
	for _, url := range r.urls {
		if strings.Contains(url, part) {
			return url, true
		}
	}
	return "", false
}

// URLPart reverses apt's file naming for an index, e.g.
// deb.debian.org_debian_dists_bookworm_main_binary-amd64_Packages
// becomes deb.debian.org/debian
func URLPart(indexPath string) string {
	name := scanner.TrimCompressionExt(filepath.Base(indexPath))
	name = strings.TrimSuffix(name, scanner.IndexSuffix)
	if i := strings.Index(name, "_dists"); i >= 0 {
		name = name[:i]
	}
	return strings.ReplaceAll(name, "_", "/")
}

func readSourceFile(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		logrus.Warnf("Failed to open source list %s: %v", path, err)
		return nil
	}
	defer f.Close()

	return ParseSourceLines(f)
}

// ParseSourceLines extracts the first http(s) token of every non-comment line
func ParseSourceLines(r io.Reader) []string {
	var urls []string

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		for _, token := range strings.Fields(line) {
			if strings.HasPrefix(token, "http") {
				urls = append(urls, token)
				break
			}
		}
	}
	if err := sc.Err(); err != nil {
		logrus.Warnf("Failed reading source list: %v", err)
	}

	return urls
}

func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, url := range urls {
		if seen[url] {
			continue
		}
		seen[url] = true
		out = append(out, url)
	}
	return out
}
