// Package labels prints the diagnosis label table.
package labels

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skinscan/skinscan/internal/diagnosis"
)

// Command creates the labels command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "Print the diagnosis labels and recommendations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Write(cmd.OutOrStdout())
		},
	}
}

// Write prints the table in model output order.
func Write(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tLABEL\tRECOMMENDATION")
	for i, e := range diagnosis.Table() {
		fmt.Fprintf(w, "%d\t%s\t%s\n", i, e.Label, e.Recommendation)
	}
	return w.Flush()
}
