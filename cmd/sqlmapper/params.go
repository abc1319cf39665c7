// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/canonical/sqlmapper"
)

// readParams reads statement parameters from a YAML mapping. No path means
// no parameters.
func readParams(path string) (map[string]any, error) {
	params := map[string]any{}
	if path == "" {
		return params, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read parameters")
	}
	if err := yaml.Unmarshal(data, &params); err != nil {
		return nil, errors.Wrapf(err, "cannot parse parameters %s", path)
	}
	if params == nil {
		params = map[string]any{}
	}
	return params, nil
}

// writeYAML writes v as a YAML document.
func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, "cannot write output")
	}
	return enc.Close()
}

// paramsNode holds the bind parameters as a YAML mapping in SQL text order.
func paramsNode(p *sqlmapper.Params) (*yaml.Node, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range p.Names() {
		v, _ := p.Get(name)
		var key, value yaml.Node
		key.SetString(name)
		if err := value.Encode(v); err != nil {
			return nil, errors.Wrapf(err, "cannot encode parameter %s", name)
		}
		n.Content = append(n.Content, &key, &value)
	}
	return n, nil
}
