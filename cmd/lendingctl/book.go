package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"lending/internal/app"
	"lending/internal/domain"
)

func newBookCmd(e *env) *cobra.Command {
	book := &cobra.Command{
		Use:   "book",
		Short: "Manage the catalog",
	}
	book.AddCommand(&cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import books from rows of title,author,genre,isbn,copies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close() //nolint:errcheck

			db, err := e.open()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			res, err := importBooks(cmd.Context(), app.NewCatalogService(db, e.logger), f, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d, skipped %d\n", res.imported, res.skipped)
			return nil
		},
	})
	return book
}

type importResult struct {
	imported int
	skipped  int
}

// importBooks creates one book per CSV row. Rows that fail validation are
// reported to report and skipped; any other error stops the import.
func importBooks(ctx context.Context, catalog *app.CatalogService, r io.Reader, report io.Writer) (importResult, error) {
	var res importResult

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 5
	cr.TrimLeadingSpace = true

	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}
		if line == 1 && strings.EqualFold(rec[0], "title") {
			continue
		}

		copies, err := strconv.Atoi(strings.TrimSpace(rec[4]))
		if err != nil {
			fmt.Fprintf(report, "line %d: copies %q is not a number\n", line, rec[4])
			res.skipped++
			continue
		}

		_, err = catalog.CreateBook(ctx, operator, domain.BookInput{
			Title:       rec[0],
			Author:      rec[1],
			Genre:       rec[2],
			ISBN:        rec[3],
			TotalCopies: copies,
		})
		var ve *domain.ValidationError
		switch {
		case err == nil:
			res.imported++
		case errors.As(err, &ve):
			fmt.Fprintf(report, "line %d: %v\n", line, ve)
			res.skipped++
		default:
			return res, fmt.Errorf("line %d: %w", line, err)
		}
	}
}
