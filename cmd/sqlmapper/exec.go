// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"database/sql"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/canonical/sqlmapper"
)

func newExecCmd(g *globals) *cobra.Command {
	var params string
	cmd := &cobra.Command{
		Use:   "exec ID",
		Short: "Run a statement against the configured data source",
		Long: `Run a statement with parameters read from a YAML file. Selects print their
rows; inserts, updates and deletes print the number of rows affected.
Inserts also print the parameters, which hold any generated key.

Examples:
  sqlmapper exec person.add --params person.yaml
  sqlmapper exec person.find --params find.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(false)
			if err != nil {
				return err
			}
			logger, err := g.logger(cmd, cfg)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			db, closeDB, err := openDB(ctx, cfg.DataSource)
			if err != nil {
				return err
			}
			defer closeDB()
			executor := sqlmapper.NewDBExecutor(db)
			defer executor.Close()

			opts, _ := mapperOptions(cfg, logger)
			m := sqlmapper.New(append(opts, sqlmapper.WithExecutor(executor))...)
			if err := loadMappers(m, cfg); err != nil {
				return err
			}
			param, err := readParams(params)
			if err != nil {
				return err
			}

			id := args[0]
			category, err := findCategory(m, id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var res sql.Result
			switch category {
			case sqlmapper.CategorySelect:
				rows, err := m.Select(ctx, id, param)
				if err != nil {
					return err
				}
				for i, row := range rows {
					rows[i] = printable(row)
				}
				if rows == nil {
					rows = []any{}
				}
				return writeYAML(out, rows)
			case sqlmapper.CategoryInsert:
				res, err = m.Insert(ctx, id, param)
			case sqlmapper.CategoryUpdate:
				res, err = m.Update(ctx, id, param)
			case sqlmapper.CategoryDelete:
				res, err = m.Delete(ctx, id, param)
			default:
				return errors.Errorf("cannot run %s %q: not a statement", category, id)
			}
			if err != nil {
				return err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return errors.Wrap(err, "cannot get rows affected")
			}
			fmt.Fprintf(out, "rows affected: %d\n", affected)
			if category == sqlmapper.CategoryInsert {
				return writeYAML(out, map[string]any{"params": param})
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&params, "params", "p", "", "YAML file holding the statement parameters")
	return cmd
}

// printable turns byte slices in a row into strings, which drivers return
// for text columns and YAML would otherwise encode as binary.
func printable(row any) any {
	switch v := row.(type) {
	case []byte:
		return string(v)
	case map[string]any:
		for k, col := range v {
			if b, ok := col.([]byte); ok {
				v[k] = string(b)
			}
		}
	}
	return row
}
