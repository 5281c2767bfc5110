package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/agentworkforce/contactsync/internal/sourcewatch"
)

func watchCmd(a *app) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reload the service whenever the source spreadsheet changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := sourcewatch.Options{
				Path:         a.cfg.Watch.Path,
				MinInterval:  a.cfg.Watch.MinInterval,
				PollInterval: a.cfg.Watch.PollInterval,
				PollJitter:   a.cfg.Watch.PollJitter,
				Logger:       a.logger,
			}
			if path != "" {
				opts.Path = path
			}
			w, err := sourcewatch.New(opts, func(ctx context.Context) error {
				_, err := a.client.Reload(ctx)
				return err
			})
			if err != nil {
				return err
			}
			if err := w.Run(cmd.Context()); err != nil {
				return err
			}
			return printJSON(cmd, map[string]int{"reloads": w.Reloads()})
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "source file to watch (overrides watch.path)")
	return cmd
}
