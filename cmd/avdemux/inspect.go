package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/zsiec/avdemux/internal/esdump"
)

func inspectCmd() *cobra.Command {
	var blocks bool
	cmd := &cobra.Command{
		Use:   "inspect <dump>",
		Short: "Print the records of an esdump file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return inspect(cmd.OutOrStdout(), f, blocks)
		},
	}
	cmd.Flags().BoolVarP(&blocks, "blocks", "b", false, "print every block, not only a per-stream count")
	return cmd
}

func inspect(w io.Writer, r io.Reader, blocks bool) error {
	rd, err := esdump.NewReader(bufio.NewReader(r))
	if err != nil {
		return err
	}
	h := rd.Header()
	fmt.Fprintf(w, "session %s (version %d, started %s)\n", h.Session, h.Version, h.Session.Time().UTC().Format("2006-01-02 15:04:05"))

	counts := make(map[int]int)
	var order []int
	for {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		switch rec.Type {
		case esdump.RecFormat:
			f := rec.Format
			fmt.Fprintf(w, "stream #%d: %s %s fourcc=%q priority=%d %s\n",
				rec.Stream, f.Kind, f.Codec, f.FourCC, f.Priority, trackDetail(f))
			order = append(order, int(rec.Stream))
		case esdump.RecBlock:
			counts[int(rec.Stream)]++
			if blocks {
				b := rec.Block
				fmt.Fprintf(w, "  block #%d dts=%s pts=%s len=%d key=%v\n",
					rec.Stream, b.DTS, b.PTS, len(b.Data), b.Key)
			}
		case esdump.RecPCR:
			if blocks {
				fmt.Fprintf(w, "  pcr %s\n", rec.Tick)
			}
		case esdump.RecDefault:
			fmt.Fprintf(w, "default stream #%d\n", rec.Stream)
		case esdump.RecSeekpoint:
			fmt.Fprintf(w, "seekpoint %d\n", rec.Seekpoint)
		case esdump.RecDisplayTime:
			fmt.Fprintf(w, "next display time %s\n", rec.Tick)
		}
	}
	for _, id := range order {
		fmt.Fprintf(w, "stream #%d: %d blocks\n", id, counts[id])
	}
	return nil
}
