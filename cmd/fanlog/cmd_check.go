package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and list its sinks",
	Long: `check parses and validates the configuration. With --open every sink is also
registered, which opens files and dials remote targets, and then closed again.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().Bool("open", false, "Open every target to verify it is reachable")
	viper.BindPFlag("check.open", checkCmd.Flags().Lookup("open"))

	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	f, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if !viper.GetBool("check.open") {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tTARGET\tLEVEL\tQUEUED\tROTATION")
		for i, s := range f.Sinks {
			fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%s\n", i, s.Target, orDash(s.Level), s.Enqueue, orDash(s.Rotation))
		}
		return w.Flush()
	}

	d, err := f.Build()
	if err != nil {
		return err
	}
	defer d.Shutdown(context.Background())

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tLEVEL\tQUEUED\tKIND")
	for _, s := range d.Sinks() {
		fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%s\n", s.ID, s.Name, s.Level.Name, s.Queued, orDash(s.Target.Kind))
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
