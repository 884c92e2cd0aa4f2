package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tabula/internal/dataset"
)

// maxConcurrentReads caps how many files ingest parses at once.
const maxConcurrentReads = 4

func newIngestCommand(flags *rootFlags) *cobra.Command {
	var (
		rows     int
		encoding string
	)

	cmd := &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Read data files and print their structure",
		Long:  "Ingest parses each file into a table and prints its shape, column types and a head preview.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildContainer(flags)
			if err != nil {
				return err
			}
			defer c.Cleanup()

			headRows := rows
			if headRows <= 0 {
				headRows = c.Runtime.HeadRows
			}

			var readOpts []dataset.ReadOption
			if encoding != "" {
				readOpts = append(readOpts, dataset.WithEncoding(encoding))
			}

			// Parse concurrently, print in argument order.
			tables := make([]*dataset.Table, len(args))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(maxConcurrentReads)
			for i, path := range args {
				g.Go(func() error {
					table, err := c.Reader.ReadTable(ctx, path, readOpts...)
					if err != nil {
						return fmt.Errorf("ingest %s: %w", path, err)
					}
					tables[i] = table
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, path := range args {
				if i > 0 {
					fmt.Fprintln(out)
				}
				table := tables[i]

				nRows, nCols := table.Shape()
				fmt.Fprintf(out, "%s  %s\n", bold(path), gray(fmt.Sprintf("%d rows x %d columns", nRows, nCols)))

				dtypes := table.DTypes()
				for j, col := range table.Columns {
					fmt.Fprintf(out, "  %s %s\n", col, cyan(dtypes[j]))
				}

				fmt.Fprintln(out)
				fmt.Fprintln(out, strings.TrimRight(table.Head(headRows).Markdown(), "\n"))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&rows, "rows", "n", 0, "Preview rows to print (0 uses the configured head size)")
	cmd.Flags().StringVar(&encoding, "encoding", "", "Decode with this charset instead of autodetecting")
	return cmd
}
