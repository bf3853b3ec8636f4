package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/zsiec/ccx"

	"github.com/zsiec/avdemux/internal/demux"
	"github.com/zsiec/avdemux/internal/es"
	"github.com/zsiec/avdemux/internal/pipeline"
	"github.com/zsiec/avdemux/internal/sink"
	"github.com/zsiec/avdemux/internal/source"
)

// runFlags control how a stream is driven once open.
type runFlags struct {
	output        string
	captions      bool
	verbose       bool
	statsInterval time.Duration
}

func (r *runFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&r.output, "output", "o", "", "write an esdump to this file")
	fs.BoolVar(&r.captions, "captions", false, "print decoded CEA-608 captions")
	fs.BoolVarP(&r.verbose, "verbose", "v", false, "log every stream event")
	fs.DurationVar(&r.statsInterval, "stats-interval", 0, "log track statistics at this interval")
}

func dumpCmd() *cobra.Command {
	var (
		o openFlags
		r runFlags
	)
	cmd := &cobra.Command{
		Use:   "dump <file>",
		Short: "Demultiplex a file, optionally recording it as an esdump",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := source.OpenFile(args[0])
			if err != nil {
				return err
			}
			return run(cmd, source.NewCounting(src), &o, &r)
		},
	}
	o.register(cmd.Flags())
	r.register(cmd.Flags())
	return cmd
}

// run opens src, drives it through a pipeline into the sinks selected by
// r and prints a summary.
func run(cmd *cobra.Command, src source.Source, o *openFlags, r *runFlags) error {
	ctx := cmd.Context()
	id := ksuid.New()
	log := slog.With("session", id.String())

	stats := sink.NewStats()
	sinks := []demux.Sink{stats}

	var (
		dump *sink.Dump
		bw   *bufio.Writer
		out  *os.File
	)
	if r.output != "" {
		f, err := os.Create(r.output)
		if err != nil {
			src.Close()
			return err
		}
		out = f
		bw = bufio.NewWriter(f)
		if dump, err = sink.NewDump(bw, id, log); err != nil {
			f.Close()
			src.Close()
			return err
		}
		sinks = append(sinks, dump)
	}
	if r.captions {
		w := cmd.OutOrStdout()
		sinks = append(sinks, sink.NewCaptions(func(f *ccx.CaptionFrame) {
			fmt.Fprintf(w, "[%s] CC%d %s\n", es.Tick(f.PTS), f.Channel, f.Text)
		}, log))
	}
	if r.verbose {
		sinks = append(sinks, sink.NewLog(log))
	}

	s, err := openSession(ctx, id, src, sink.NewTee(sinks...), o)
	if err != nil {
		if out != nil {
			out.Close()
		}
		src.Close()
		return err
	}
	defer s.Close()

	p := pipeline.New(s.dmx, src, pipeline.Config{
		Stats:         stats,
		StatsInterval: r.statsInterval,
		Logger:        s.log,
	})
	runErr := p.Run(ctx)

	if out != nil {
		err := errors.Join(dump.Err(), bw.Flush(), out.Close())
		if err != nil {
			return fmt.Errorf("write %s: %w", r.output, err)
		}
		s.log.Info("dump written", "path", r.output)
	}
	if runErr != nil {
		return runErr
	}

	printSummary(cmd.OutOrStdout(), p.Counters(), stats.Snapshot(), src)
	return nil
}

func printSummary(w io.Writer, c pipeline.Counters, snap sink.Snapshot, src source.Source) {
	fmt.Fprintf(w, "packets: %d delivered of %d read in %s\n", c.Delivered, c.Steps, c.Elapsed.Round(time.Millisecond))
	if cs, ok := src.(interface{ Stats() source.Stats }); ok {
		st := cs.Stats()
		fmt.Fprintf(w, "input:   %d bytes in %d reads\n", st.BytesRead, st.ReadCount)
	}
	fmt.Fprintf(w, "clock:   %s after %d updates\n", snap.PCR, snap.PCRUpdates)
	for _, tr := range snap.Tracks {
		fmt.Fprintf(w, "  #%d %-8s %-10s %6d packets %9d bytes %7.1f kbps",
			tr.ID, tr.Format.Kind, tr.Format.Codec, tr.Packets, tr.Bytes, tr.BitrateKbps)
		if tr.BackwardDTS > 0 || tr.Gaps > 0 {
			fmt.Fprintf(w, "  (%d backward DTS, %d gaps)", tr.BackwardDTS, tr.Gaps)
		}
		fmt.Fprintln(w)
	}
}
