package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/recordbook/core"
	"github.com/trezcool/recordbook/core/record"
	sqlxrepos "github.com/trezcool/recordbook/storage/database/sqlx"
)

var errInvalidRecord = errors.New("invalid record")

type (
	recordOptions struct {
		collection string
		schema     string
	}

	// exportFile is the yaml document written by `records export`.
	exportFile struct {
		Schema     string          `yaml:"schema"`
		Collection string          `yaml:"collection"`
		Records    []record.Record `yaml:"records"`
	}
)

func (cli *commandLine) service(opts *recordOptions) (*record.Service, error) {
	schema, err := record.LookupSchema(opts.schema)
	if err != nil {
		return nil, err
	}
	return record.NewService(cli.repo, schema, cli.logger), nil
}

func (cli *commandLine) recordsCmd(opts *recordOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Manage records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Help()
			return errHelp
		},
	}
	cmd.AddCommand(cli.recordsListCmd(opts))
	cmd.AddCommand(cli.recordsAddCmd(opts))
	cmd.AddCommand(cli.recordsRmCmd(opts))
	cmd.AddCommand(cli.recordsToggleCmd(opts, "toggle-visible", "Toggle the visibility of a record", (*record.Service).ToggleVisible))
	cmd.AddCommand(cli.recordsToggleCmd(opts, "toggle-completed", "Toggle the completion of a record", (*record.Service).ToggleCompleted))
	cmd.AddCommand(cli.recordsExportCmd(opts))
	cmd.AddCommand(cli.recordsImportCmd(opts))
	return cmd
}

func (cli *commandLine) recordsListCmd(opts *recordOptions) *cobra.Command {
	var page, perPage int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := cli.service(opts)
			if err != nil {
				return err
			}
			snap, err := svc.List(cmd.Context(), opts.collection)
			if err != nil {
				return err
			}

			p := snap.Page(page, perPage)
			fmt.Fprintf(cli.out, "# %s records in %q: %d (page %d, %d per page)\n", opts.schema, opts.collection, p.Total, p.Page, p.PerPage)
			for _, rec := range p.Items {
				cli.printRecord(svc.Schema(), rec)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "page to show (zero-indexed)")
	cmd.Flags().IntVar(&perPage, "per-page", cli.pageSize, "records per page")
	return cmd
}

func (cli *commandLine) printRecord(schema record.Schema, rec record.Record) {
	flags := []byte("--")
	if rec.Visible {
		flags[0] = 'v'
	}
	if rec.Completed {
		flags[1] = 'x'
	}
	vals := make([]string, 0, len(schema.Fields))
	for _, fs := range schema.Fields {
		vals = append(vals, fmt.Sprintf("%s=%q", fs.Name, rec.Fields[fs.Name]))
	}
	fmt.Fprintf(cli.out, "%d\t[%s]\t%s\n", rec.ID, flags, strings.Join(vals, " "))
}

// parseFields reads `key=value` arguments.
func parseFields(args []string) (record.Fields, error) {
	fields := make(record.Fields, len(args))
	for _, arg := range args {
		kv := strings.SplitN(arg, "=", 2)
		if len(kv) != 2 || strings.TrimSpace(kv[0]) == "" {
			return nil, errors.Errorf("invalid field %q, expected key=value", arg)
		}
		fields[strings.TrimSpace(kv[0])] = kv[1]
	}
	return fields, nil
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, errors.Errorf("invalid id %q", arg)
	}
	return id, nil
}

func (cli *commandLine) recordsAddCmd(opts *recordOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add key=value...",
		Short: "Add a record",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := cli.service(opts)
			if err != nil {
				return err
			}
			fields, err := parseFields(args)
			if err != nil {
				return err
			}
			if err = svc.Check(fields); err != nil {
				cli.printFieldErrors(err)
				return errInvalidRecord
			}

			snap, _, err := svc.Submit(cmd.Context(), opts.collection, fields)
			if err != nil {
				return err
			}
			fmt.Fprintf(cli.out, "added record %d\n", snap.Records[0].ID)
			return nil
		},
	}
}

func (cli *commandLine) printFieldErrors(err error) {
	var vErr *core.ValidationError
	if !errors.As(err, &vErr) || len(vErr.Fields) == 0 {
		fmt.Fprintf(cli.out, "  %v\n", err)
		return
	}
	for _, fe := range vErr.Fields {
		fmt.Fprintf(cli.out, "  %s: %s\n", fe.Field, fe.Error)
	}
}

func (cli *commandLine) recordsRmCmd(opts *recordOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm ID",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := cli.service(opts)
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			_, changed, err := svc.Delete(cmd.Context(), opts.collection, id)
			if err != nil {
				return err
			}
			cli.printOutcome("deleted", id, changed)
			return nil
		},
	}
}

type toggleFunc func(svc *record.Service, ctx context.Context, collection string, id int64) (record.Snapshot, bool, error)

func (cli *commandLine) recordsToggleCmd(opts *recordOptions, use, short string, toggle toggleFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := cli.service(opts)
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			snap, changed, err := toggle(svc, cmd.Context(), opts.collection, id)
			if err != nil {
				return err
			}
			if rec, ok := snap.Get(id); ok {
				cli.printRecord(svc.Schema(), rec)
				return nil
			}
			cli.printOutcome("toggled", id, changed)
			return nil
		},
	}
}

// printOutcome reports unknown ids without failing: they are no-ops.
func (cli *commandLine) printOutcome(verb string, id int64, changed bool) {
	if changed {
		fmt.Fprintf(cli.out, "%s record %d\n", verb, id)
		return
	}
	fmt.Fprintf(cli.out, "no record %d\n", id)
}

func (cli *commandLine) recordsExportCmd(opts *recordOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a collection as yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := cli.service(opts)
			if err != nil {
				return err
			}
			snap, err := svc.List(cmd.Context(), opts.collection)
			if err != nil {
				return err
			}

			w := cli.out
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return errors.Wrap(err, "creating export file")
				}
				defer func() { _ = f.Close() }()
				w = f
			}

			enc := yaml.NewEncoder(w)
			enc.SetIndent(2)
			doc := exportFile{Schema: opts.schema, Collection: opts.collection, Records: snap.Records}
			if err = enc.Encode(doc); err != nil {
				return errors.Wrap(err, "encoding records")
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (stdout by default)")
	return cmd
}

func (cli *commandLine) recordsImportCmd(opts *recordOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import records exported with `records export`",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := cli.service(opts)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrap(err, "reading import file")
			}
			var doc exportFile
			if err = yaml.Unmarshal(data, &doc); err != nil {
				return errors.Wrap(err, "decoding import file")
			}
			if doc.Schema != "" && doc.Schema != opts.schema {
				return errors.Errorf("import file holds %q records, not %q", doc.Schema, opts.schema)
			}

			imported, skipped, err := cli.importRecords(cmd.Context(), svc, opts.collection, doc.Records)
			if err != nil {
				return errors.Wrap(err, "importing records")
			}
			// drop the cached store so the next reads see the imported records
			if err = svc.EndSession(cmd.Context(), opts.collection, false); err != nil {
				return err
			}
			fmt.Fprintf(cli.out, "imported %d records, skipped %d\n", imported, skipped)
			return nil
		},
	}
}

// importRecords creates the valid records whose id is not taken yet, keeping ids and timestamps.
// Records are inserted in one transaction.
func (cli *commandLine) importRecords(ctx context.Context, svc *record.Service, collection string, records []record.Record) (imported, skipped int, err error) {
	var tx core.DBTransactor
	if tx, err = cli.db.BeginTxx(ctx, nil); err != nil {
		return 0, 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	repo := sqlxrepos.NewRecordRepository(tx)

	existing, err := repo.QueryRecords(ctx, collection)
	if err != nil {
		return 0, 0, err
	}
	taken := make(map[int64]bool, len(existing))
	for _, rec := range existing {
		taken[rec.ID] = true
	}

	for _, rec := range records {
		if taken[rec.ID] {
			skipped++
			continue
		}
		if cErr := svc.Check(rec.Fields); cErr != nil {
			fmt.Fprintf(cli.out, "record %d:\n", rec.ID)
			cli.printFieldErrors(cErr)
			skipped++
			continue
		}
		if err = repo.CreateRecord(ctx, collection, rec); err != nil {
			return 0, 0, errors.Wrapf(err, "record %d", rec.ID)
		}
		taken[rec.ID] = true
		imported++
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, errors.Wrap(err, "committing")
	}
	return imported, skipped, nil
}
