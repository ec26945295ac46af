package cli

import (
	"fmt"

	"github.com/ralt/pkgcatalog/internal/debfile"
	"github.com/ralt/pkgcatalog/internal/models"
	"github.com/ralt/pkgcatalog/internal/pkgops"
	"github.com/spf13/cobra"
)

func (a *app) manager() *pkgops.Manager {
	return pkgops.NewManager(nil, pkgops.OptionsFromConfig(a.cfg))
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <package>",
		Short: "Uninstall a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.manager().Uninstall(cmd.Context(), args[0])
		},
	}
}

func newHoldCmd(a *app, hold bool) *cobra.Command {
	use, short := "hold <package>", "Keep a package at its installed version"
	if !hold {
		use, short = "unhold <package>", "Let a held package be upgraded again"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.manager().SetHold(cmd.Context(), args[0], hold)
		},
	}
}

func newInstallCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "install <file.deb>",
		Short: "Install a local .deb file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.manager().InstallLocal(cmd.Context(), args[0])
		},
	}
}

func newInspectCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "inspect <file.deb>",
		Short: "Show the control record of a local .deb file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			pkg, err := debfile.Inspect(args[0])
			if err != nil {
				return err
			}
			app := models.AppInfo{Name: pkg.Name, Candidates: []models.PkgInfo{pkg}}
			return printApp(cmd.OutOrStdout(), format, app)
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", formatText, "Output format: text, json or yaml")
	return cmd
}

func newDownloadCmd(a *app) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "download <package>",
		Short: "Download the candidate .deb of a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir != "" {
				a.cfg.DownloadDir = dir
			}
			out, err := a.manager().Download(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Download directory (default ~/Desktop/downloadedPkg)")
	return cmd
}

func newRepackCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "repack <package>",
		Short: "Rebuild a .deb from an installed package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, stop, err := a.startService(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer stop()

			app, err := svc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out, err := a.manager().Repack(cmd.Context(), app)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}
