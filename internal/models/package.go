package models

import (
	"fmt"
	"time"
)

// PkgInfo represents one edition of a package, either a repository
// candidate or the installed copy
type PkgInfo struct {
	// Core metadata
	Name            string `json:"name" yaml:"name"`
	Version         string `json:"version,omitempty" yaml:"version,omitempty"`
	Architecture    string `json:"architecture,omitempty" yaml:"architecture,omitempty"`
	InstalledSizeKB int64  `json:"installed_size_kb,omitempty" yaml:"installed_size_kb,omitempty"`
	Maintainer      string `json:"maintainer,omitempty" yaml:"maintainer,omitempty"`
	Homepage        string `json:"homepage,omitempty" yaml:"homepage,omitempty"`
	Depends         string `json:"depends,omitempty" yaml:"depends,omitempty"`
	Description     string `json:"description,omitempty" yaml:"description,omitempty"`

	// Download information
	DownloadURL string `json:"download_url,omitempty" yaml:"download_url,omitempty"`
	Size        int64  `json:"size,omitempty" yaml:"size,omitempty"`

	// Local state
	InstalledFiles []string  `json:"installed_files,omitempty" yaml:"installed_files,omitempty"`
	Installed      bool      `json:"installed" yaml:"installed"`
	Held           bool      `json:"held,omitempty" yaml:"held,omitempty"`
	UpdatedTime    time.Time `json:"updated_time,omitempty" yaml:"updated_time,omitempty"`

	// Provenance. ContentOffset/ContentSize locate the record inside
	// SourcePath and are only valid while that file is unchanged.
	SourcePath    string `json:"source_path,omitempty" yaml:"source_path,omitempty"`
	ContentOffset int64  `json:"content_offset" yaml:"content_offset"`
	ContentSize   int64  `json:"content_size" yaml:"content_size"`
	RepositoryURL string `json:"repository_url,omitempty" yaml:"repository_url,omitempty"`

	// Extended is set once every field was parsed, not just the compact ones
	Extended bool `json:"-" yaml:"-"`
}

// Identity returns the edition key of a package
func (p PkgInfo) Identity() string {
	return fmt.Sprintf("%s:%s:%s", p.Name, p.Version, p.Architecture)
}

// Clone returns a copy that shares no slices with p
func (p PkgInfo) Clone() PkgInfo {
	if p.InstalledFiles != nil {
		p.InstalledFiles = append([]string(nil), p.InstalledFiles...)
	}
	return p
}

// DesktopInfo holds the launch metadata resolved from a desktop entry
type DesktopInfo struct {
	AppName     string `json:"app_name,omitempty" yaml:"app_name,omitempty"`
	Exec        string `json:"exec,omitempty" yaml:"exec,omitempty"`
	ExecPath    string `json:"exec_path,omitempty" yaml:"exec_path,omitempty"`
	DesktopPath string `json:"desktop_path,omitempty" yaml:"desktop_path,omitempty"`
	Icon        string `json:"icon,omitempty" yaml:"icon,omitempty"`
	SystemApp   bool   `json:"system_app" yaml:"system_app"`
}

// Visible reports whether the entry resolved to a launcher that is shown
func (d DesktopInfo) Visible() bool {
	return d.DesktopPath != ""
}

// AppInfo aggregates every edition known for one package name
type AppInfo struct {
	Name             string      `json:"name" yaml:"name"`
	Candidates       []PkgInfo   `json:"candidates,omitempty" yaml:"candidates,omitempty"`
	Installed        bool        `json:"installed" yaml:"installed"`
	InstalledEdition PkgInfo     `json:"installed_edition,omitempty" yaml:"installed_edition,omitempty"`
	Desktop          DesktopInfo `json:"desktop,omitempty" yaml:"desktop,omitempty"`
}

// DisplayName returns the localized application name, or the package name
func (a AppInfo) DisplayName() string {
	if a.Desktop.AppName != "" {
		return a.Desktop.AppName
	}
	return a.Name
}

// Clone returns a deep copy of the application info
func (a AppInfo) Clone() AppInfo {
	if a.Candidates != nil {
		candidates := make([]PkgInfo, len(a.Candidates))
		for i, c := range a.Candidates {
			candidates[i] = c.Clone()
		}
		a.Candidates = candidates
	}
	a.InstalledEdition = a.InstalledEdition.Clone()
	return a
}

// CatalogSnapshot is a consistent copy of the catalog keyed by package name
type CatalogSnapshot map[string]AppInfo
