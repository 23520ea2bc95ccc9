package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"dealership_portal/internal/crm"
	"dealership_portal/internal/pipeline/realtime"
	"dealership_portal/platform/config"
	"dealership_portal/platform/logger"

	"github.com/spf13/cobra"
)

func stagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List the pipeline stages in board order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			client, err := crm.New(cfg, logger.Discard())
			if err != nil {
				return err
			}
			stages, err := client.ListStages(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tLABEL")
			for _, s := range stages {
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Name, s.Label())
			}
			return w.Flush()
		},
	}
}

func notifyCmd() *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "notify <event>",
		Short: "Publish a push event to every board listening on redis",
		Long:  "Publish lead:created, lead:updated or badges:refresh on the configured redis channel.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.IsRedisEnabled() {
				return errors.New("REDIS_URL is not configured")
			}

			frame := realtime.Frame{Event: args[0]}
			if data != "" {
				if !json.Valid([]byte(data)) {
					return errors.New("--data must be valid JSON")
				}
				frame.Data = json.RawMessage(data)
			}
			raw, err := json.Marshal(frame)
			if err != nil {
				return err
			}
			if _, err := realtime.DecodeFrame(raw); err != nil {
				return err
			}

			client, err := realtime.NewRedisClient(cfg.GetRedisURL())
			if err != nil {
				return err
			}
			defer client.Close()

			if err := realtime.PublishFrame(cmd.Context(), client, cfg.GetRealtimeRedisChannel(), frame); err != nil {
				return fmt.Errorf("publish: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %s on %s\n", frame.Event, cfg.GetRealtimeRedisChannel())
			return nil
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "JSON payload to attach")
	return cmd
}
