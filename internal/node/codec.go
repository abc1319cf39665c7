// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package node

import (
	"github.com/pkg/errors"
)

// Wire is the serialized form of a node tree. It holds the source text of
// every expression, so restoring a tree recompiles expressions but never
// reads markup.
type Wire struct {
	Kind             Kind    `yaml:"kind"`
	ID               string  `yaml:"id,omitempty"`
	SQL              string  `yaml:"sql,omitempty"`
	Test             string  `yaml:"test,omitempty"`
	Collection       string  `yaml:"collection,omitempty"`
	Item             string  `yaml:"item,omitempty"`
	Index            string  `yaml:"index,omitempty"`
	Open             string  `yaml:"open,omitempty"`
	Close            string  `yaml:"close,omitempty"`
	Separator        string  `yaml:"separator,omitempty"`
	RefID            string  `yaml:"refid,omitempty"`
	ResultType       string  `yaml:"resultType,omitempty"`
	KeyProperty      string  `yaml:"keyProperty,omitempty"`
	Order            string  `yaml:"order,omitempty"`
	UseGeneratedKeys bool    `yaml:"useGeneratedKeys,omitempty"`
	SelectKey        *Wire   `yaml:"selectKey,omitempty"`
	Otherwise        *Wire   `yaml:"otherwise,omitempty"`
	Children         []*Wire `yaml:"children,omitempty"`
}

// ToWire converts a tree to its serialized form.
func ToWire(n Node) *Wire {
	switch n := n.(type) {
	case *Text:
		return &Wire{Kind: KindText, SQL: n.SQL}
	case *If:
		return &Wire{Kind: KindIf, Test: n.Test, Children: toWires(n.Children)}
	case *When:
		return &Wire{Kind: KindWhen, Test: n.Test, Children: toWires(n.Children)}
	case *Otherwise:
		return &Wire{Kind: KindOtherwise, Children: toWires(n.Children)}
	case *Choose:
		w := &Wire{Kind: KindChoose}
		for _, when := range n.Whens {
			w.Children = append(w.Children, ToWire(when))
		}
		if n.Otherwise != nil {
			w.Otherwise = ToWire(n.Otherwise)
		}
		return w
	case *Where:
		return &Wire{Kind: KindWhere, Children: toWires(n.Children)}
	case *Set:
		return &Wire{Kind: KindSet, Children: toWires(n.Children)}
	case *ForEach:
		return &Wire{
			Kind:       KindForEach,
			Collection: n.Collection,
			Item:       n.Item,
			Index:      n.Index,
			Open:       n.Open,
			Close:      n.Close,
			Separator:  n.Separator,
			Children:   toWires(n.Children),
		}
	case *Include:
		return &Wire{Kind: KindInclude, RefID: n.RefID}
	case *Fragment:
		return &Wire{Kind: KindFragment, ID: n.ID, Children: toWires(n.Children)}
	case *Select:
		return &Wire{Kind: KindSelect, ID: n.ID, ResultType: n.ResultType, Children: toWires(n.Children)}
	case *SelectKey:
		return &Wire{
			Kind:        KindSelectKey,
			KeyProperty: n.KeyProperty,
			Order:       string(n.Order),
			ResultType:  n.ResultType,
			Children:    toWires(n.Children),
		}
	case *Insert:
		w := &Wire{
			Kind:             KindInsert,
			ID:               n.ID,
			UseGeneratedKeys: n.UseGeneratedKeys,
			KeyProperty:      n.KeyProperty,
			Children:         toWires(n.Children),
		}
		if n.SelectKey != nil {
			w.SelectKey = ToWire(n.SelectKey)
		}
		return w
	case *Update:
		return &Wire{Kind: KindUpdate, ID: n.ID, Children: toWires(n.Children)}
	case *Delete:
		return &Wire{Kind: KindDelete, ID: n.ID, Children: toWires(n.Children)}
	}
	panic(errors.Errorf("internal error: unknown node type %T", n))
}

func toWires(nodes []Node) []*Wire {
	if len(nodes) == 0 {
		return nil
	}
	ws := make([]*Wire, len(nodes))
	for i, n := range nodes {
		ws[i] = ToWire(n)
	}
	return ws
}

// FromWire rebuilds a tree from its serialized form.
func FromWire(w *Wire) (Node, error) {
	if w == nil {
		return nil, errors.New("cannot restore node: nil")
	}
	children, err := fromWires(w.Children)
	if err != nil {
		return nil, err
	}
	switch w.Kind {
	case KindText:
		return asNode(NewText(w.SQL))
	case KindIf:
		return asNode(NewIf(w.Test, children))
	case KindWhen:
		return asNode(NewWhen(w.Test, children))
	case KindOtherwise:
		return &Otherwise{Children: children}, nil
	case KindChoose:
		c := &Choose{}
		for _, child := range children {
			when, ok := child.(*When)
			if !ok {
				return nil, errors.Errorf("cannot restore choose: unexpected %s branch", child.Kind())
			}
			c.Whens = append(c.Whens, when)
		}
		if w.Otherwise != nil {
			o, err := FromWire(w.Otherwise)
			if err != nil {
				return nil, err
			}
			otherwise, ok := o.(*Otherwise)
			if !ok {
				return nil, errors.Errorf("cannot restore choose: unexpected %s fallback", o.Kind())
			}
			c.Otherwise = otherwise
		}
		return c, nil
	case KindWhere:
		return &Where{Children: children}, nil
	case KindSet:
		return &Set{Children: children}, nil
	case KindForEach:
		return asNode(NewForEach(ForEach{
			Collection: w.Collection,
			Item:       w.Item,
			Index:      w.Index,
			Open:       w.Open,
			Close:      w.Close,
			Separator:  w.Separator,
			Children:   children,
		}))
	case KindInclude:
		return &Include{RefID: w.RefID}, nil
	case KindFragment:
		return &Fragment{ID: w.ID, Children: children}, nil
	case KindSelect:
		return &Select{ID: w.ID, ResultType: w.ResultType, Children: children}, nil
	case KindSelectKey:
		order, err := ParseKeyOrder(w.Order)
		if err != nil {
			return nil, err
		}
		return &SelectKey{KeyProperty: w.KeyProperty, Order: order, ResultType: w.ResultType, Children: children}, nil
	case KindInsert:
		n := &Insert{ID: w.ID, UseGeneratedKeys: w.UseGeneratedKeys, KeyProperty: w.KeyProperty, Children: children}
		if w.SelectKey != nil {
			sk, err := FromWire(w.SelectKey)
			if err != nil {
				return nil, err
			}
			selectKey, ok := sk.(*SelectKey)
			if !ok {
				return nil, errors.Errorf("cannot restore insert %q: unexpected %s as select key", w.ID, sk.Kind())
			}
			n.SelectKey = selectKey
		}
		return n, nil
	case KindUpdate:
		return &Update{ID: w.ID, Children: children}, nil
	case KindDelete:
		return &Delete{ID: w.ID, Children: children}, nil
	}
	return nil, errors.Errorf("cannot restore node: unknown kind %q", w.Kind)
}

func fromWires(ws []*Wire) ([]Node, error) {
	if len(ws) == 0 {
		return nil, nil
	}
	nodes := make([]Node, len(ws))
	for i, w := range ws {
		n, err := FromWire(w)
		if err != nil {
			return nil, err
		}
		nodes[i] = n
	}
	return nodes, nil
}

// asNode keeps a failed constructor from producing a typed nil Node.
func asNode[T Node](n T, err error) (Node, error) {
	if err != nil {
		return nil, err
	}
	return n, nil
}
