package main

import (
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"kiln/internal/devserver"
	"kiln/internal/watch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch, rebuild and serve the output with live reload",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("host", "", "listen host (default from kiln.toml)")
	serveCmd.Flags().Int("port", 0, "listen port (default from kiln.toml)")
	serveCmd.Flags().Bool("poll", false, "poll the filesystem instead of using native notifications")
	serveCmd.Flags().Bool("no-cache", false, "do not read or write the on-disk transform cache")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, "")
	if err != nil {
		return err
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Dev.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Dev.Port = port
	}

	ctl, session, err := newController(cmd, cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	var content afero.Fs
	if fi, err := os.Stat(cfg.Dev.ContentBase); err == nil && fi.IsDir() {
		content = afero.NewBasePathFs(afero.NewOsFs(), cfg.Dev.ContentBase)
	}
	srv := devserver.New(devserver.Options{
		Dev:        cfg.Dev,
		PublicPath: cfg.Output.PublicPath,
		IndexFile:  cfg.Output.HTMLFilename,
		Out:        afero.NewBasePathFs(afero.NewOsFs(), cfg.Output.Dir),
		Content:    content,
	})

	// the server and the console both consume updates
	toServer := make(chan watch.Update, 16)
	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error { return ctl.Run(ctx) })
	g.Go(func() error { return srv.ListenAndServe(ctx) })
	g.Go(func() error {
		srv.Forward(ctx, toServer)
		return nil
	})
	g.Go(func() error {
		defer close(toServer)
		for u := range ctl.Updates() {
			printUpdate(cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, session, u, maxDiagnostics(cmd), quietFlag(cmd))
			select {
			case toServer <- u:
			case <-ctx.Done():
			}
		}
		return nil
	})
	return g.Wait()
}
