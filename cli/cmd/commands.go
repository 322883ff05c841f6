package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	rdthemis "github.com/serious-company/rd-themis"
)

var commandsCmd = &cobra.Command{
	Use:         "commands",
	Short:       "List the registered commands",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{noServiceAnnotation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		defer w.Flush()

		fmt.Fprintln(w, "NAME\tALIAS\tARITY\tFLAGS\tKEYS\tASYNC")
		for _, info := range rdthemis.Commands() {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d,%d,%d\t%v\n",
				info.Name, info.Alias, info.Arity, strings.Join(info.Flags, " "),
				info.FirstKey, info.LastKey, info.KeyStep, info.Async)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commandsCmd)
}
