package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"

	"github.com/zsiec/avdemux/internal/demux"
	"github.com/zsiec/avdemux/internal/es"
	"github.com/zsiec/avdemux/internal/sink"
	"github.com/zsiec/avdemux/internal/source"
)

func probeCmd() *cobra.Command {
	var (
		o       openFlags
		packets int
	)
	cmd := &cobra.Command{
		Use:   "probe <file>",
		Short: "Print the format, tracks, chapters and metadata of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := source.OpenFile(args[0])
			if err != nil {
				return err
			}
			stats := sink.NewStats()
			s, err := openSession(cmd.Context(), ksuid.New(), src, stats, &o)
			if err != nil {
				src.Close()
				return err
			}
			defer s.Close()

			for i := 0; i < packets; i++ {
				if _, err := s.dmx.Demux(cmd.Context()); err != nil {
					if !errors.Is(err, io.EOF) {
						return err
					}
					break
				}
			}
			printProbe(cmd.OutOrStdout(), s.dmx, stats.Snapshot())
			return nil
		},
	}
	o.register(cmd.Flags())
	cmd.Flags().IntVarP(&packets, "packets", "n", 0, "packets to read for per-track counters")
	return cmd
}

func printProbe(w io.Writer, s *demux.Session, snap sink.Snapshot) {
	f := s.Format()
	fmt.Fprintf(w, "format:   %s (%s)\n", f.Name, f.LongName)
	if size, ok := s.Size(); ok {
		fmt.Fprintf(w, "size:     %d bytes\n", size)
	}
	if l := s.Length(); l > 0 {
		fmt.Fprintf(w, "duration: %s\n", l)
	}
	fmt.Fprintf(w, "start:    %s\n", s.Time())

	fmt.Fprintln(w, "\ntracks:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  ID\tKIND\tCODEC\tFOURCC\tLANG\tDETAIL\tPACKETS\tDEFAULT")
	for _, tr := range snap.Tracks {
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\t%s\t%d\t%v\n",
			tr.ID, tr.Format.Kind, tr.Format.Codec, tr.Format.FourCC,
			tr.Format.Language, trackDetail(&tr.Format), tr.Packets, tr.Default)
	}
	tw.Flush()

	if title, err := s.Title(); err == nil && len(title.Seekpoints) > 0 {
		fmt.Fprintln(w, "\nchapters:")
		for i, sp := range title.Seekpoints {
			fmt.Fprintf(w, "  %2d  %-12s %s\n", i, sp.Offset, sp.Name)
		}
	}

	meta := s.Meta()
	if len(meta) > 0 {
		fmt.Fprintln(w, "\nmetadata:")
		for _, k := range demux.MetaKeys {
			if v, ok := meta[k]; ok {
				fmt.Fprintf(w, "  %-12s %s\n", k, v)
			}
		}
	}

	if atts, err := s.Attachments(); err == nil {
		fmt.Fprintln(w, "\nattachments:")
		for _, a := range atts {
			fmt.Fprintf(w, "  %s (%s, %d bytes)\n", a.Name, a.MIME, len(a.Data))
		}
	}
}

func trackDetail(f *es.Format) string {
	switch f.Kind {
	case es.KindVideo:
		s := fmt.Sprintf("%dx%d", f.Video.Width, f.Video.Height)
		if f.Video.FrameRate.Den > 0 {
			s += fmt.Sprintf(" %.3ffps", float64(f.Video.FrameRate.Num)/float64(f.Video.FrameRate.Den))
		}
		if f.Video.Orientation != es.OrientNormal {
			s += " rot " + f.Video.Orientation.String()
		}
		return s
	case es.KindAudio:
		return fmt.Sprintf("%dHz %dch", f.Audio.Rate, f.Audio.Channels)
	case es.KindSubtitle:
		if f.Subtitle.Width > 0 {
			return fmt.Sprintf("%dx%d", f.Subtitle.Width, f.Subtitle.Height)
		}
	}
	return ""
}
