// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package node

import (
	"strings"
)

// Params is the ordered set of bind parameters produced by a render. Names
// appear in the order their placeholders were emitted, which is also the
// binding order for positional placeholders.
type Params struct {
	names  []string
	values map[string]any
}

// NewParams returns an empty Params.
func NewParams() *Params {
	return &Params{values: make(map[string]any)}
}

// Set records value under name. Setting an existing name replaces its value
// but keeps its position.
func (p *Params) Set(name string, value any) {
	if p.values == nil {
		p.values = make(map[string]any)
	}
	if _, ok := p.values[name]; !ok {
		p.names = append(p.names, name)
	}
	p.values[name] = value
}

// Get returns the value recorded under name.
func (p *Params) Get(name string) (any, bool) {
	v, ok := p.values[name]
	return v, ok
}

// Len returns the number of parameters.
func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.names)
}

// Names returns the parameter names in emission order.
func (p *Params) Names() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.names...)
}

// Values returns the parameter values in emission order.
func (p *Params) Values() []any {
	if p == nil {
		return nil
	}
	values := make([]any, len(p.names))
	for i, n := range p.names {
		values[i] = p.values[n]
	}
	return values
}

// Map returns a copy of the parameters as a map.
func (p *Params) Map() map[string]any {
	m := make(map[string]any, p.Len())
	if p == nil {
		return m
	}
	for k, v := range p.values {
		m[k] = v
	}
	return m
}

// String returns a textual representation of the Params meant for debugging
// purposes.
func (p *Params) String() string {
	var sb strings.Builder
	sb.WriteString("Params[")
	for i, n := range p.Names() {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(n)
		sb.WriteString("=")
		sb.WriteString(describe(p.values[n]))
	}
	sb.WriteString("]")
	return sb.String()
}
