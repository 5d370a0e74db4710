package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/thesyncim/transcode"
)

var providerCodecs = []transcode.VideoCodec{
	transcode.VideoCodecVP8,
	transcode.VideoCodecVP9,
	transcode.VideoCodecAV1,
	transcode.VideoCodecH264,
}

func newProvidersCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "providers",
		Short:       "List codec engine providers and what they can do",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), tableSpec{
				header: table.Row{"Provider", "License", "Available", "Decode", "Encode", "Features"},
				rows:   providerRows(),
			}.render())
			return nil
		},
	}
}

func providerRows() []table.Row {
	rows := make([]table.Row, 0, len(transcode.Providers()))
	for _, p := range transcode.Providers() {
		var decode, encode []string
		for _, codec := range providerCodecs {
			if p.CanDecode() && containsProvider(transcode.VideoDecoderProviders(codec), p) {
				decode = append(decode, codec.String())
			}
			if p.CanEncode() && containsProvider(transcode.VideoEncoderProviders(codec), p) {
				encode = append(encode, codec.String())
			}
		}
		rows = append(rows, table.Row{
			p.String(),
			p.License().String(),
			yesNo(p.Available()),
			dashIfEmpty(strings.Join(decode, ", ")),
			dashIfEmpty(strings.Join(encode, ", ")),
			dashIfEmpty(p.Features().String()),
		})
	}
	return rows
}

func containsProvider(list []transcode.Provider, p transcode.Provider) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
