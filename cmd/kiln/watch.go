package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"kiln/internal/buildpipeline"
	"kiln/internal/config"
	"kiln/internal/diagfmt"
	"kiln/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rebuild incrementally whenever a source file changes",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().Bool("poll", false, "poll the filesystem instead of using native notifications")
	watchCmd.Flags().Bool("no-cache", false, "do not read or write the on-disk transform cache")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, "")
	if err != nil {
		return err
	}
	ctl, session, err := newController(cmd, cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	ctx := cmd.Context()
	errc := make(chan error, 1)
	go func() { errc <- ctl.Run(ctx) }()

	out := cmd.OutOrStdout()
	for u := range ctl.Updates() {
		printUpdate(out, cmd.ErrOrStderr(), cfg, session, u, maxDiagnostics(cmd), quietFlag(cmd))
	}
	return <-errc
}

// newController wires a session, a file watcher and the controller that
// drives them.
func newController(cmd *cobra.Command, cfg *config.Config) (*watch.Controller, *buildpipeline.Session, error) {
	ctx := cmd.Context()
	var opts []buildpipeline.Option
	if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
		opts = append(opts, buildpipeline.WithoutDiskCache())
	}
	session, err := buildpipeline.NewSession(ctx, cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	poll, _ := cmd.Flags().GetBool("poll")
	w, err := newWatcher(ctx, cfg.Watch, poll)
	if err != nil {
		_ = session.Close()
		return nil, nil, err
	}
	ctl, err := watch.NewController(watch.Options{
		Root:    cfg.Root,
		Watch:   cfg.Watch,
		Watcher: w,
		Builder: session,
	})
	if err != nil {
		_ = w.Close()
		_ = session.Close()
		return nil, nil, err
	}
	return ctl, session, nil
}

// newWatcher prefers native notifications and falls back to polling when
// the platform cannot provide them.
func newWatcher(ctx context.Context, cfg config.Watch, forcePoll bool) (watch.Watcher, error) {
	if !cfg.Poll && !forcePoll {
		n, err := watch.NewNotify()
		if err == nil {
			return n, nil
		}
		zerolog.Ctx(ctx).Warn().Err(err).Msg("native file notifications unavailable, polling")
	}
	return watch.NewPoll(afero.NewOsFs(), cfg.PollInterval), nil
}

func printUpdate(out, errOut io.Writer, cfg *config.Config, session *buildpipeline.Session, u watch.Update, limit int, quiet bool) {
	if u.Err != nil {
		fmt.Fprintf(errOut, "%s %v\n", color.RedString("build #%d failed:", u.Seq), u.Err)
		return
	}
	printDiagnostics(errOut, cfg, u.Report, limit)
	if quiet {
		return
	}
	trigger := "initial build"
	if len(u.Changes) > 0 {
		names := make([]string, 0, len(u.Changes))
		for _, ev := range u.Changes {
			names = append(names, relTo(cfg.Root, ev.Path))
		}
		trigger = strings.Join(names, ", ")
	}
	status := color.GreenString("build #%d", u.Seq)
	if !u.OK() {
		status = color.RedString("build #%d", u.Seq)
	}
	fmt.Fprintf(out, "%s %s in %.1f ms (%s)\n", status, strings.Join(orNone(u.Chunks), ", "), toMillis(u.Duration), trigger)
	if last := session.Last(); last != nil && last.Skipped {
		fmt.Fprintln(out, color.YellowString("output not written: no_emit_on_errors is set"))
	}
	diagfmt.Summary(out, u.Report, !color.NoColor)
}

func orNone(chunks []string) []string {
	if len(chunks) == 0 {
		return []string{"nothing written"}
	}
	return chunks
}

func relTo(root, p string) string {
	prefix := strings.TrimSuffix(root, "/") + "/"
	if strings.HasPrefix(p, prefix) {
		return p[len(prefix):]
	}
	return p
}
