package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"lautenbacher.net/sagealarm/logging"
	"lautenbacher.net/sagealarm/platform"
	"lautenbacher.net/sagealarm/playback"
	"lautenbacher.net/sagealarm/ring"
)

func newRingCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ring <id>",
		Short: "Ring one alarm in the foreground",
		Long: "Ring one alarm in the foreground and print every status change.\n" +
			"Type a number and Enter to tap a puzzle value, or d to dismiss.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid alarm id %q", args[0])
			}
			// Log lines would tear up the status output; they are printed
			// once the session is over.
			cfg, err := load(flags, true)
			if err != nil {
				return err
			}
			defer logging.Close()

			alarms, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			plat := platform.NewPlatform(cfg)
			if err := plat.Start(); err != nil {
				return err
			}
			defer plat.Stop()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			coordinator := playback.NewCoordinator(plat.Devices(), cfg.Timing(), nil)
			st := ringSession(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), ring.Deps{
				Repository:   alarms,
				Runner:       coordinator,
				IntervalUnit: cfg.Ring.IntervalUnit,
			}, id)
			if st != ring.Dismissed && st != ring.Exhausted {
				return fmt.Errorf("session ended in state %s", st)
			}
			return logging.SetOutput(os.Stderr)
		},
	}
}

// ringSession runs the session for id until it ends. Lines read from in
// are taps, or "d" for dismiss.
func ringSession(ctx context.Context, in io.Reader, out io.Writer, deps ring.Deps, id int64) ring.State {
	session := ring.New(ctx, id, deps)

	done := make(chan ring.State, 1)
	go func() { done <- session.Run(ctx) }()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	var last string
	show := func() {
		if line := formatStatus(session.Status()); line != last {
			fmt.Fprintln(out, line)
			last = line
		}
	}
	show()

	for {
		select {
		case <-session.Changes():
			show()
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			handleInput(out, session, line)
		case st := <-done:
			show()
			return st
		}
	}
}

func handleInput(out io.Writer, session *ring.Session, line string) {
	switch {
	case line == "":
	case line == "d":
		if err := session.Dismiss(); errors.Is(err, ring.ErrPuzzleRequired) {
			fmt.Fprintln(out, "solve the puzzle to dismiss")
		}
	default:
		value, err := strconv.Atoi(line)
		if err != nil {
			fmt.Fprintln(out, "type a number or d")
			return
		}
		if _, err := session.Tap(value); errors.Is(err, ring.ErrNoPuzzle) {
			fmt.Fprintln(out, "there is no puzzle, type d to dismiss")
		}
	}
}

func formatStatus(st ring.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  alarm %d  cycle %d", st.State, st.AlarmID, st.CycleIndex+1)
	if st.Label != "" {
		fmt.Fprintf(&b, "  %q", st.Label)
	}
	if st.Puzzle != nil {
		fmt.Fprintf(&b, "  tap in ascending order: %v", st.Puzzle.Remaining())
	}
	return b.String()
}
