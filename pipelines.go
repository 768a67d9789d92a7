package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var pipelinesCmd = &cobra.Command{
	Use:   "pipelines",
	Short: "List the built-in pipelines and how their stages are wired",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := loadRuntime(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer rt.log.Sync()

		out := cmd.OutOrStdout()
		for _, v := range rt.agent.Variants() {
			p := v.Pipeline
			fmt.Fprintf(out, "%s: %s\n", p.Name(), p.Description())
			fmt.Fprintf(out, "  inputs:  %s\n", strings.Join(p.ExternalInputs(), ", "))
			for i, st := range p.Stages() {
				fmt.Fprintf(out, "  %d. %-20s (%s) -> %s\n", i+1, st.Name, strings.Join(st.Inputs, ", "), st.Output)
			}
			fb := v.Feedback.Spec()
			fmt.Fprintf(out, "  feedback: %-18s (%s) -> %s\n", fb.Name, strings.Join(fb.Inputs, ", "), fb.Output)
			fmt.Fprintf(out, "  outputs: %s\n\n", strings.Join(p.Outputs(), ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pipelinesCmd)
}
