package cli

import (
	"github.com/ralt/pkgcatalog/internal/models"
	"github.com/spf13/cobra"
)

func newListCmd(a *app) *cobra.Command {
	var (
		installed bool
		gui       bool
		format    string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List packages in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}

			svc, stop, err := a.startService(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer stop()

			var apps []models.AppInfo
			switch {
			case gui:
				apps, err = svc.GUIApps(cmd.Context())
			case installed:
				apps, err = svc.Installed(cmd.Context())
			default:
				apps, err = svc.All(cmd.Context())
			}
			if err != nil {
				return err
			}
			return printApps(cmd.OutOrStdout(), format, apps)
		},
	}

	cmd.Flags().BoolVar(&installed, "installed", false, "Only list installed packages")
	cmd.Flags().BoolVar(&gui, "gui", false, "Only list installed packages with a desktop launcher")
	cmd.Flags().StringVarP(&format, "output", "o", formatText, "Output format: text, json or yaml")
	return cmd
}

func newSearchCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Search package and application names",
		Long: `Search matches the text, case-insensitively, against package names,
localized application names, and the Pinyin spelling and initials of
Chinese application names.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}

			svc, stop, err := a.startService(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer stop()

			apps, err := svc.Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printApps(cmd.OutOrStdout(), format, apps)
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", formatText, "Output format: text, json or yaml")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	var (
		full   bool
		format string
	)

	cmd := &cobra.Command{
		Use:   "show <package>",
		Short: "Show one package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}

			svc, stop, err := a.startService(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer stop()

			var app models.AppInfo
			if full {
				app, err = svc.Extend(cmd.Context(), args[0])
			} else {
				app, err = svc.Get(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			return printApp(cmd.OutOrStdout(), format, app)
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Read every field of the repository candidates")
	cmd.Flags().StringVarP(&format, "output", "o", formatText, "Output format: text, json or yaml")
	return cmd
}
