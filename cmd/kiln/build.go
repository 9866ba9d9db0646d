package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"kiln/internal/buildpipeline"
	"kiln/internal/config"
	"kiln/internal/diag"
	"kiln/internal/diagfmt"
	"kiln/internal/source"
)

var errBuildFailed = errors.New("build failed")

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Bundle the project once",
	Long: `Build loads kiln.toml, bundles every entry and writes the chunks, the HTML
page and the asset manifest into the output directory. The exit status is
non-zero when any module or chunk failed.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().String("mode", "", "override the configured mode (development|production)")
	buildCmd.Flags().String("format", "pretty", "diagnostic format (pretty|json)")
	buildCmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
	buildCmd.Flags().Bool("timings", false, "print stage timings")
	buildCmd.Flags().Bool("no-cache", false, "do not read or write the on-disk transform cache")
}

func runBuild(cmd *cobra.Command, _ []string) error {
	mode, _ := cmd.Flags().GetString("mode")
	format, _ := cmd.Flags().GetString("format")
	uiValue, _ := cmd.Flags().GetString("ui")
	showTimings, _ := cmd.Flags().GetBool("timings")
	noCache, _ := cmd.Flags().GetBool("no-cache")

	format = strings.ToLower(format)
	if format != "pretty" && format != "json" {
		return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	}
	ui, err := parseUIMode(uiValue)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, mode)
	if err != nil {
		return err
	}

	var opts []buildpipeline.Option
	if noCache {
		opts = append(opts, buildpipeline.WithoutDiskCache())
	}

	ctx := cmd.Context()
	quiet := quietFlag(cmd)
	var (
		session *buildpipeline.Session
		res     *buildpipeline.Result
	)
	if format == "pretty" && ui.enabled(quiet) {
		session, res, err = runBuildWithUI(ctx, "kiln build", cfg, opts...)
	} else {
		session, err = buildpipeline.NewSession(ctx, cfg, opts...)
		if err == nil {
			res, err = session.BuildResult(ctx)
		}
	}
	if session != nil {
		defer session.Close()
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		if err := diagfmt.JSON(out, res.Report, source.NewFS(nil), diagfmt.JSONOpts{
			IncludePositions: true,
			PathMode:         diagfmt.PathModeRelative,
			Root:             cfg.Root,
			Max:              maxDiagnostics(cmd),
			IncludeNotes:     true,
		}); err != nil {
			return err
		}
	} else {
		reportBuild(cmd.ErrOrStderr(), out, cfg, res, maxDiagnostics(cmd), quiet, showTimings)
	}
	if res.Report.HasErrors() {
		return errBuildFailed
	}
	return nil
}

// reportBuild prints diagnostics to errOut and the chunk table and summary
// to out.
func reportBuild(errOut, out io.Writer, cfg *config.Config, res *buildpipeline.Result, limit int, quiet, timings bool) {
	printDiagnostics(errOut, cfg, res.Report, limit)
	if quiet {
		return
	}
	if res.Skipped {
		fmt.Fprintln(out, color.YellowString("output not written: no_emit_on_errors is set"))
	} else if res.Emit != nil {
		printChunkSizes(out, res.Emit, afero.NewBasePathFs(afero.NewOsFs(), cfg.Output.Dir))
	}
	fmt.Fprintf(out, "%d modules, ", res.Modules)
	diagfmt.Summary(out, res.Report, !color.NoColor)
	if timings {
		printStageTimings(out, res.Timings)
	}
}

func printDiagnostics(w io.Writer, cfg *config.Config, report *diag.Report, limit int) {
	if report.Len() == 0 {
		return
	}
	diagfmt.Pretty(w, report, source.NewFS(nil), diagfmt.PrettyOpts{
		Color:     !color.NoColor,
		Context:   1,
		PathMode:  diagfmt.PathModeAuto,
		Root:      cfg.Root,
		ShowNotes: true,
		Max:       limit,
	})
}
