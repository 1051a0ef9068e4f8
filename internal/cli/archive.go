package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jwulff/echo/internal/archive"
	"github.com/jwulff/echo/internal/docstore"
)

func NewArchiveCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Browse and manage archived transcripts",
	}
	cmd.AddCommand(newArchiveListCmd(deps))
	cmd.AddCommand(newArchiveShowCmd(deps))
	cmd.AddCommand(newArchiveDeleteCmd(deps))
	cmd.AddCommand(newArchiveExportCmd(deps))
	return cmd
}

func newArchiveListCmd(deps *Dependencies) *cobra.Command {
	var (
		query     string
		important bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived transcripts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, doc, err := deps.OpenArchive(cmd.Context())
			if err != nil {
				return err
			}
			items := store.Search(archive.Filter{Query: query, ImportantOnly: important})
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "No transcripts found")
				return nil
			}
			writeList(out, items)

			if sq, ok := doc.(*docstore.SQLiteStore); ok {
				if at, found, err := sq.UpdatedAt(archive.Key); err == nil && found {
					fmt.Fprintf(out, "\nLast saved %s\n", at.Local().Format("Jan 2, 2006 3:04 PM"))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "only transcripts whose title, text or category contains this")
	cmd.Flags().BoolVar(&important, "important", false, "only transcripts marked important")
	return cmd
}

func writeList(w io.Writer, items []archive.Transcript) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTITLE\tWORDS")
	for _, it := range items {
		title := it.Title
		if it.IsImportant {
			title += " ★"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", it.ID, it.DisplayDate(), title, len(strings.Fields(it.Text)))
	}
	tw.Flush()
}

func newArchiveShowCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := deps.OpenArchive(cmd.Context())
			if err != nil {
				return err
			}
			it, ok := store.Get(args[0])
			if !ok {
				return fmt.Errorf("transcript %q not found", args[0])
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n%s\n", it.Title, it.DisplayDate())
			for _, p := range it.Paragraphs() {
				fmt.Fprintf(out, "\n%s\n", p)
			}
			return nil
		},
	}
}

func newArchiveDeleteCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := deps.OpenArchive(cmd.Context())
			if err != nil {
				return err
			}
			if _, ok := store.Get(args[0]); !ok {
				return fmt.Errorf("transcript %q not found", args[0])
			}
			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func newArchiveExportCmd(deps *Dependencies) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the archive as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := deps.OpenArchive(cmd.Context())
			if err != nil {
				return err
			}
			if outPath == "" {
				return store.ExportCSV(cmd.OutOrStdout())
			}
			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("create export file: %w", err)
			}
			if err := store.ExportCSV(f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d transcripts to %s\n", len(store.List()), outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	return cmd
}
