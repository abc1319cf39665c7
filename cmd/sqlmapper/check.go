// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/canonical/sqlmapper"
)

func newCheckCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "check [FILE...]",
		Short: "Compile mapper documents and report errors",
		Long: `Compile mapper documents, by default those of the configuration, and report
the statements of each or the error that stopped it. The compiled cache is
neither read nor written.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(len(args) > 0)
			if err != nil {
				return err
			}
			logger, err := g.logger(cmd, cfg)
			if err != nil {
				return err
			}
			files := args
			if len(files) == 0 {
				files = cfg.Mappers
			}
			if len(files) == 0 {
				return errors.New("no mappers configured")
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, f := range files {
				m := sqlmapper.New(
					sqlmapper.WithLogger(logger),
					sqlmapper.WithParamPrefix(cfg.Prefix()),
				)
				if err := m.Load(f); err != nil {
					failed++
					fmt.Fprintf(out, "FAIL %s: %v\n", f, err)
					continue
				}
				n := 0
				for _, c := range statementCategories {
					n += len(m.IDs(c))
				}
				fmt.Fprintf(out, "ok   %s (%d statements)\n", f, n)
			}
			if failed > 0 {
				return errors.Errorf("%d of %d mapper documents failed", failed, len(files))
			}
			return nil
		},
	}
}
