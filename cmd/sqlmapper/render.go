// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/canonical/sqlmapper"
	"github.com/canonical/sqlmapper/internal/registry"
)

func newRenderCmd(g *globals) *cobra.Command {
	var flags struct {
		category string
		params   string
	}
	cmd := &cobra.Command{
		Use:   "render ID",
		Short: "Print the SQL and bind parameters of a statement",
		Long: `Render a statement against parameters read from a YAML file and print the
SQL text followed by its bind parameters. Nothing is run.

Examples:
  # Render a statement, searching every category for its id
  sqlmapper render person.find --params find.yaml

  # Render a fragment
  sqlmapper render person.columns --category sql`,
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
			opts, _ := mapperOptions(cfg, logger)
			m := sqlmapper.New(opts...)
			if err := loadMappers(m, cfg); err != nil {
				return err
			}
			params, err := readParams(flags.params)
			if err != nil {
				return err
			}

			id := args[0]
			var category sqlmapper.Category
			if flags.category != "" {
				category, err = registry.ParseCategory(flags.category)
			} else {
				category, err = findCategory(m, id)
			}
			if err != nil {
				return err
			}
			sql, bind, err := m.SQL(category, id, params)
			if err != nil {
				return err
			}
			bindNode, err := paramsNode(bind)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sql)
			return writeYAML(cmd.OutOrStdout(), &yaml.Node{
				Kind: yaml.MappingNode,
				Content: []*yaml.Node{
					{Kind: yaml.ScalarNode, Value: "params"},
					bindNode,
				},
			})
		},
	}
	cmd.Flags().StringVar(&flags.category, "category", "", "statement category: sql, select, insert, update or delete")
	cmd.Flags().StringVarP(&flags.params, "params", "p", "", "YAML file holding the statement parameters")
	return cmd
}
