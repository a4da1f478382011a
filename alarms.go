package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"lautenbacher.net/sagealarm/alarm"
	"lautenbacher.net/sagealarm/controller"
)

func newAlarmsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "alarms",
		Short: "List all alarms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(flags, false)
			if err != nil {
				return err
			}
			alarms, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			defs, err := alarms.GetAll(cmd.Context())
			if err != nil {
				return err
			}
			return printAlarms(cmd.OutOrStdout(), defs)
		},
	}
}

func newNextCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Print when every enabled alarm rings next",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(flags, false)
			if err != nil {
				return err
			}
			alarms, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			return printUpcoming(cmd.Context(), cmd.OutOrStdout(), controller.New(controller.Options{Store: alarms}))
		},
	}
}

func printAlarms(w io.Writer, defs []alarm.Definition) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tDAYS\tENABLED\tPUZZLE\tLABEL")
	for _, d := range defs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%t\t%s\n", d.ID, d.TimeOfDay(), formatDays(d.Recurrence), d.Enabled, d.PuzzleEnabled, d.Label)
	}
	return tw.Flush()
}

func printUpcoming(ctx context.Context, w io.Writer, ctl *controller.Controller) error {
	up, err := ctl.Upcoming(ctx)
	if err != nil {
		return err
	}
	if len(up) == 0 {
		fmt.Fprintln(w, "no alarm is set")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNEXT\tLABEL")
	for _, u := range up {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", u.Alarm.ID, u.At.Format("Mon 2006-01-02 15:04"), u.Alarm.Label)
	}
	return tw.Flush()
}

func formatDays(days []time.Weekday) string {
	if len(days) == 0 {
		return "once"
	}
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = d.String()[:3]
	}
	return strings.Join(names, ",")
}
