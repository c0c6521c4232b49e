package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/kilnworks/kiln/core/engine"
	"github.com/kilnworks/kiln/core/server"
	"github.com/kilnworks/kiln/core/shared/logging"
)

var (
	servePort    string
	serveWatch   bool
	serveConnect bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the engine lifecycle over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !serveWatch {
			srv, err := buildServer(cmd.Context())
			if err != nil {
				return err
			}
			return srv.Start()
		}
		return serveWithWatch(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "4466", "Listen port")
	serveCmd.Flags().BoolVarP(&serveWatch, "watch", "w", false, "Restart the engine when the schema file changes")
	serveCmd.Flags().BoolVar(&serveConnect, "connect", true, "Connect the engine at startup")
	rootCmd.AddCommand(serveCmd)
}

func buildServer(ctx context.Context) (*server.Server, error) {
	text, err := readSchemaFile()
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(text, engine.WithBuildInfo(version, commit))
	if err != nil {
		return nil, err
	}

	if serveConnect {
		if err := eng.Connect(ctx); err != nil {
			// The engine stays usable while unconnected; callers can retry
			// over the HTTP surface.
			logger := logging.New("cli")
			logger.Warn().Err(err).Msg("initial connect failed, serving unconnected")
		}
	}

	return server.New(eng, server.WithPort(servePort)), nil
}

// serveWithWatch restarts the whole server whenever the schema file is
// rewritten, so the engine always reflects the document on disk.
func serveWithWatch(ctx context.Context) error {
	log := logging.New("cli")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(schemaFile); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		srv, err := buildServer(ctx)
		if err != nil {
			return err
		}
		if err := srv.StartAsync(); err != nil {
			return err
		}

		restart := false
		for !restart {
			select {
			case <-quit:
				return srv.Stop()

			case event := <-watcher.Events:
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				log.Info().Str("file", event.Name).Msg("schema changed, restarting engine")
				if err := srv.Stop(); err != nil {
					log.Warn().Err(err).Msg("stop before restart failed")
				}
				// Editors often replace the file; re-add the watch and let
				// the write settle.
				_ = watcher.Add(schemaFile)
				time.Sleep(100 * time.Millisecond)
				restart = true

			case err := <-watcher.Errors:
				_ = srv.Stop()
				return err
			}
		}
	}
}
