package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wayneeseguin/fanlog/pkg/fanlog"
)

var levelsCmd = &cobra.Command{
	Use:   "levels",
	Short: "List the built-in levels and those declared in the configuration",
	Args:  cobra.NoArgs,
	RunE:  runLevels,
}

func init() {
	rootCmd.AddCommand(levelsCmd)
}

func runLevels(cmd *cobra.Command, args []string) error {
	f, err := loadConfig()
	if err != nil {
		return err
	}

	// levels only, no targets are opened
	d := fanlog.New()
	for _, l := range f.Levels {
		if _, err := d.RegisterLevel(l.Name, l.No); err != nil {
			return err
		}
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSEVERITY")
	for _, l := range d.Levels() {
		fmt.Fprintf(w, "%s\t%d\n", l.Name, l.No)
	}
	return w.Flush()
}
