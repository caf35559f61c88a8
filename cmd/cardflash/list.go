package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jgarman/cardflash/internal/devices"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List candidate flash destinations",
	RunE: func(cmd *cobra.Command, args []string) error {
		dests, err := devices.List()
		if err != nil {
			return err
		}
		if len(dests) == 0 {
			fmt.Println("no destinations found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "PATH\tNAME\tSIZE\tBUS\tREMOVABLE\tMOUNTED AT")
		for _, d := range dests {
			removable := "no"
			if d.Removable {
				removable = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				d.Path, d.Name, humanize.Bytes(uint64(d.Size)),
				d.Bus, removable, strings.Join(d.Mountpoints, ","))
		}
		return w.Flush()
	},
}
