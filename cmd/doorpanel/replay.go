package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"go.tigermatt.uk/doorpanel"
)

func replayCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "replay FILE",
		Short: "Feed a recorded session through the translator and print its inputs",
		Args:  cobra.ExactArgs(1),
		RunE:  replay,
	}
}

func replay(cmd *cobra.Command, args []string) error {
	logger, err := opts.logger()
	if err != nil {
		return err
	}

	cfg, err := opts.config(cmd, nil)
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}
	defer f.Close()

	records := make(chan doorpanel.Record, 100)
	translator := &doorpanel.Translator{Panel: cfg.Panel, Logger: logger}

	var g errgroup.Group
	g.Go(func() error { return replayRecords(cmd.OutOrStdout(), translator, records) })
	g.Go(func() error { return doorpanel.ReadIn(records, f) })

	return g.Wait()
}

// replayRecords applies the inbound records in order and prints every batch
// the translator would have sent. It always drains records.
func replayRecords(w io.Writer, t *doorpanel.Translator, records <-chan doorpanel.Record) error {
	var state *doorpanel.State
	var seq int
	var werr error

	for rec := range records {
		if rec.Direction != doorpanel.Inbound || rec.Node == nil {
			continue
		}
		seq++

		next, inputs := t.Apply(state, rec.Node)
		state = &next
		if len(inputs) == 0 || werr != nil {
			continue
		}

		_, werr = fmt.Fprintf(w, "%s #%d doors=%d release=%d panel=%s simulator=%s\n",
			rec.Timestamp.Format("15:04:05.000"), seq,
			next.DoorStatus, next.ReleaseNotch, next.PanelSide, next.HardwareSide)
		for _, in := range inputs {
			if werr == nil {
				_, werr = fmt.Fprintf(w, "  %s\n", doorpanel.DescribeInput(in))
			}
		}
	}

	return werr
}
