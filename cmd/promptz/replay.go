package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/cremich/promptz-sub001/pkg/promptz"
	"github.com/cremich/promptz-sub001/pkg/promptz/bus"
	"github.com/spf13/cobra"
)

func replayCmd(opts *rootOptions) *cobra.Command {
	var (
		since, until string
		detailTypes  []string
		to           string
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Read archived events back in emission order",
		Long: `Replay reads the events stored in ARCHIVE_URL. Without --to every event
is printed as one CloudEvents JSON document per line. With --to the events are
republished to the given sink url.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseFilter(since, until, detailTypes)
			if err != nil {
				return err
			}

			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			rt, err := cfg.BuildReplay(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			if to != "" {
				sink, err := cfg.OpenSink(cmd.Context(), rt, to, logger)
				if err != nil {
					return err
				}
				n, err := bus.Republish(cmd.Context(), rt.Replayer, filter, sink)
				logger.Info("Replay finished", "republished", n, "to", to)
				return err
			}

			out := cmd.OutOrStdout()
			return rt.Replayer.Replay(cmd.Context(), filter, func(e *promptz.Event) error {
				data, err := bus.Marshal(e)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			})
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "Only events at or after this RFC 3339 time")
	cmd.Flags().StringVar(&until, "until", "", "Only events before this RFC 3339 time")
	cmd.Flags().StringSliceVar(&detailTypes, "type", nil, "Only these detail types, e.g. prompt.saved")
	cmd.Flags().StringVar(&to, "to", "", "Republish to this sink url instead of printing")
	return cmd
}

func parseFilter(since, until string, detailTypes []string) (bus.Filter, error) {
	filter := bus.Filter{DetailTypes: detailTypes}
	var err error
	if since != "" {
		if filter.Since, err = time.Parse(time.RFC3339, since); err != nil {
			return bus.Filter{}, fmt.Errorf("invalid --since: %w", err)
		}
	}
	if until != "" {
		if filter.Until, err = time.Parse(time.RFC3339, until); err != nil {
			return bus.Filter{}, fmt.Errorf("invalid --until: %w", err)
		}
	}
	if !filter.Since.IsZero() && !filter.Until.IsZero() && !filter.Since.Before(filter.Until) {
		return bus.Filter{}, errors.New("--since must be before --until")
	}
	return filter, nil
}
