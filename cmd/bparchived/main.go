package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jfolker/bigpicture"
)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	log := bigpicture.Logger()
	cfgPath := bigpicture.DefaultConfigPath

	root := &cobra.Command{
		Use:     "bparchived",
		Short:   "Archive a Dectris detector's stream feed as single-image CBF files",
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bigpicture.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			log.Info().Msgf("initialized streamer with the following parameters %s", cfg.Describe())

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			// First signal: cooperative shutdown, the current series runs
			// to completion. Second signal: force-exit.
			sigCh := make(chan os.Signal, 2)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				log.Info().Msgf("received the %q signal; shutdown will complete after any "+
					"currently-running image series is completed", sig)
				cancel()
				sig = <-sigCh
				log.Error().Msgf("received the %q signal again; terminating immediately", sig)
				os.Exit(1)
			}()

			if err := bigpicture.Run(ctx, cfg, bigpicture.WithConfigWatcher(cfgPath)); err != nil {
				return err
			}
			log.Info().Msg("done")
			return nil
		},
	}

	root.Flags().StringVarP(&cfgPath, "config", "c", cfgPath, "path to config file")

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("bparchived")
		os.Exit(1)
	}
}
