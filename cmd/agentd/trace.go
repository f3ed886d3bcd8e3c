package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"agentd/internal/config"
	"agentd/internal/trace"

	"github.com/spf13/cobra"
)

func traceCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "trace [session-id]",
		Short: "Dump the recorded trace of a session",
		Long:  "Reads the persisted trace database and prints every event of the given session in order.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := args[0]

			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				cfg = config.Defaults()
			}
			if cfg.Trace.DBPath == "" {
				return fmt.Errorf("no trace database configured")
			}

			sink, err := trace.NewSQLiteSink(config.ExpandPath(cfg.Trace.DBPath), logger)
			if err != nil {
				return fmt.Errorf("open trace database: %w", err)
			}
			defer sink.Close()

			events, err := sink.SessionEvents(context.Background(), sessionID)
			if err != nil {
				return fmt.Errorf("read trace: %w", err)
			}
			if len(events) == 0 {
				return fmt.Errorf("no events for session %s", sessionID)
			}

			if asJSON {
				for _, ev := range events {
					line, err := json.Marshal(ev)
					if err != nil {
						continue
					}
					fmt.Println(string(line))
				}
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STEP\tKIND\tAT\tPAYLOAD")
			for _, ev := range events {
				payload, _ := json.Marshal(ev.Payload)
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
					ev.Step, ev.Kind, ev.Timestamp.Format("15:04:05.000"), payload)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print events as JSON lines")
	return cmd
}
