package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/thesyncim/transcode"
)

func newProbeCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "probe <input.ivf>",
		Short:       "Show the stream layout of an input file without decoding",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			info, err := transcode.Probe(cmd.Context(), transcode.NewIVFDemuxer(), f)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, tableSpec{
				header: table.Row{"Codec", "Frames", "Keyframes", "Duration", "Size", "Bitrate"},
				rows: []table.Row{{
					info.Codec.String(),
					humanize.Comma(int64(info.Frames)),
					humanize.Comma(int64(info.Keyframes)),
					info.Duration.Round(time.Millisecond).String(),
					humanize.Bytes(uint64(info.Bytes)),
					bitrate(info),
				}},
				numeric: []int{2, 3, 4, 5, 6},
			}.render())

			configs := tableSpec{header: table.Row{"#", "Configuration"}, numeric: []int{1}}
			for i, c := range info.Configs {
				configs.rows = append(configs.rows, table.Row{i + 1, c.String()})
			}
			fmt.Fprintln(out, configs.render())
			return nil
		},
	}
}

func bitrate(info *transcode.StreamInfo) string {
	secs := info.Duration.Seconds()
	if secs <= 0 {
		return "-"
	}
	return humanize.SIWithDigits(float64(info.Bytes)*8/secs, 1, "bps")
}
