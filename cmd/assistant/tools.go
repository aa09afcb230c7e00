package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hubenschmidt/live-assistant/internal/tools"
)

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools declared to the model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for _, decl := range tools.Declarations() {
				fmt.Fprintf(out, "%s: %s\n", decl.Name, decl.Description)
				for _, p := range decl.Parameters {
					req := ""
					if p.Required {
						req = " (required)"
					}
					fmt.Fprintf(out, "  %s%s", p.Name, req)
					if len(p.Enum) > 0 {
						fmt.Fprintf(out, " one of %s", strings.Join(p.Enum, ", "))
					}
					fmt.Fprintln(out)
				}
			}
			return nil
		},
	}
}
