package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sbl8/scanloop/compiler"
)

var checkCmd = &cobra.Command{
	Use:   "check <loop.yaml>",
	Short: "Compile a loop and print its argument layout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prog, err := compiler.CompileFile(args[0])
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(prog.Layout)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "# %s: %d inputs, outputs %v\n", prog.Name, prog.Layout.NFlatInputs(), prog.OutputNames)
		_, err = w.Write(out)
		return err
	},
}
