package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(w, Version)
				return
			}
			fmt.Fprintf(w, "missionctl version %s\n", Version)
			fmt.Fprintf(w, "  commit:    %s\n", Commit)
			fmt.Fprintf(w, "  built:     %s\n", Date)
			fmt.Fprintf(w, "  go:        %s\n", runtime.Version())
			fmt.Fprintf(w, "  platform:  %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
	cmd.Flags().BoolVarP(&short, "short", "s", false, "print only the version number")
	return cmd
}
