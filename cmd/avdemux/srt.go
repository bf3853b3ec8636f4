package main

import (
	"github.com/spf13/cobra"

	"github.com/zsiec/avdemux/internal/source/srt"
)

func srtCmd() *cobra.Command {
	var (
		o        openFlags
		r        runFlags
		listen   bool
		streamID string
	)
	cmd := &cobra.Command{
		Use:   "srt <addr>",
		Short: "Demultiplex a live SRT stream, as caller or with --listen",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := srt.Config{Address: args[0], StreamID: streamID}
			var (
				conn *srt.Conn
				err  error
			)
			if listen {
				conn, err = srt.Accept(cmd.Context(), cfg)
			} else {
				conn, err = srt.Dial(cmd.Context(), cfg)
			}
			if err != nil {
				return err
			}
			return run(cmd, conn, &o, &r)
		},
	}
	o.register(cmd.Flags())
	r.register(cmd.Flags())
	cmd.Flags().BoolVarP(&listen, "listen", "l", false, "listen on addr and accept one publisher")
	cmd.Flags().StringVar(&streamID, "streamid", envOr("AVDEMUX_SRT_STREAMID", ""), "SRT stream id to send, or to accept when listening")
	// SRT almost always carries MPEG-TS, which is otherwise left to a
	// dedicated engine.
	cmd.Flags().Lookup("force").DefValue = "true"
	o.force = true
	return cmd
}
