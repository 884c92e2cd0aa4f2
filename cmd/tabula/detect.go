package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDetectCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "detect FILE...",
		Short: "Detect the character encodings of data files",
		Long:  "Detect runs charset detection on each file and prints the candidate encodings ordered by confidence.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildContainer(flags)
			if err != nil {
				return err
			}
			defer c.Cleanup()

			out := cmd.OutOrStdout()
			for _, path := range args {
				candidates, err := c.Detector.DetectFileEncodings(cmd.Context(), path, 0)
				if err != nil {
					return fmt.Errorf("detect %s: %w", path, err)
				}
				fmt.Fprintf(out, "%s\n", bold(path))
				if len(candidates) == 0 {
					fmt.Fprintf(out, "  %s\n", gray("no candidates"))
					continue
				}
				for _, cand := range candidates {
					line := fmt.Sprintf("  %-16s %5.1f%%", cand.Encoding, cand.Confidence*100)
					if cand.Language != "" {
						line += "  " + gray(cand.Language)
					}
					fmt.Fprintln(out, line)
				}
			}
			return nil
		},
	}
}
