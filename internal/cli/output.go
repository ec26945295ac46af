package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/ralt/pkgcatalog/internal/models"
	"gopkg.in/yaml.v3"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func validateFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatYAML:
		return nil
	default:
		return &models.CatalogError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("unsupported output format %q (expected text, json or yaml)", format),
		}
	}
}

// encode writes v as JSON or YAML
func encode(w io.Writer, format string, v interface{}) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// printApps writes one line per package in text format
func printApps(w io.Writer, format string, apps []models.AppInfo) error {
	if format != formatText {
		if apps == nil {
			apps = []models.AppInfo{}
		}
		return encode(w, format, apps)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVERSION\tARCH\tSTATE\tAPP")
	for _, app := range apps {
		version, arch := "-", "-"
		state := "available"
		if app.Installed {
			version = app.InstalledEdition.Version
			arch = app.InstalledEdition.Architecture
			state = "installed"
			if app.InstalledEdition.Held {
				state = "held"
			}
		} else if len(app.Candidates) > 0 {
			arch = app.Candidates[0].Architecture
			if app.Candidates[0].Version != "" {
				version = app.Candidates[0].Version
			}
		}
		if arch == "" {
			arch = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", app.Name, version, arch, state, app.Desktop.AppName)
	}
	return tw.Flush()
}

// printApp writes the details of one package
func printApp(w io.Writer, format string, app models.AppInfo) error {
	if format != formatText {
		return encode(w, format, app)
	}

	fmt.Fprintf(w, "Package: %s\n", app.Name)
	if app.Desktop.AppName != "" {
		fmt.Fprintf(w, "Application: %s\n", app.Desktop.AppName)
	}
	fmt.Fprintf(w, "Installed: %t\n", app.Installed)

	if app.Installed {
		pkg := app.InstalledEdition
		fmt.Fprintln(w, "Installed edition:")
		printEdition(w, pkg)
		if !pkg.UpdatedTime.IsZero() {
			fmt.Fprintf(w, "  Updated: %s\n", pkg.UpdatedTime.Format("2006-01-02 15:04:05"))
		}
		fmt.Fprintf(w, "  Files: %d\n", len(pkg.InstalledFiles))
		if pkg.Held {
			fmt.Fprintln(w, "  Held: true")
		}
	}

	if app.Desktop.Visible() {
		fmt.Fprintln(w, "Launcher:")
		fmt.Fprintf(w, "  Entry: %s\n", app.Desktop.DesktopPath)
		fmt.Fprintf(w, "  Exec: %s\n", app.Desktop.Exec)
		if app.Desktop.Icon != "" {
			fmt.Fprintf(w, "  Icon: %s\n", app.Desktop.Icon)
		}
		fmt.Fprintf(w, "  System: %t\n", app.Desktop.SystemApp)
	}

	for i, pkg := range app.Candidates {
		fmt.Fprintf(w, "Candidate %d:\n", i+1)
		printEdition(w, pkg)
		fmt.Fprintf(w, "  Source: %s @%d+%d\n", pkg.SourcePath, pkg.ContentOffset, pkg.ContentSize)
	}
	return nil
}

func printEdition(w io.Writer, pkg models.PkgInfo) {
	field := func(name, value string) {
		if value != "" {
			fmt.Fprintf(w, "  %s: %s\n", name, value)
		}
	}
	field("Version", pkg.Version)
	field("Architecture", pkg.Architecture)
	field("Maintainer", pkg.Maintainer)
	if pkg.InstalledSizeKB > 0 {
		fmt.Fprintf(w, "  Installed-Size: %d KB\n", pkg.InstalledSizeKB)
	}
	if pkg.Size > 0 {
		fmt.Fprintf(w, "  Size: %d\n", pkg.Size)
	}
	field("Depends", pkg.Depends)
	field("Homepage", pkg.Homepage)
	field("Download", pkg.DownloadURL)
	if pkg.Description != "" {
		summary, _, _ := strings.Cut(pkg.Description, "\n")
		field("Description", summary)
	}
}
