// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package markup reads mapper documents into a tree of elements and text.
// Comments, processing instructions and doctype declarations are dropped.
package markup

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Node is either an *Element or a *Text.
type Node interface {
	markupNode()
}

// Element is a markup element with its attributes and children in document
// order.
type Element struct {
	Tag      string
	Attrs    map[string]string
	Children []Node
	// Line is the line the start tag was found on.
	Line int
}

func (*Element) markupNode() {}

// Attr returns the value of the named attribute and whether it is present.
func (e *Element) Attr(name string) (string, bool) {
	v, ok := e.Attrs[name]
	return v, ok
}

// Text is character data, including CDATA sections.
type Text struct {
	Data string
}

func (*Text) markupNode() {}

// Parse reads a document from r and returns its root element.
func Parse(r io.Reader) (*Element, error) {
	d := xml.NewDecoder(r)
	var stack []*Element
	var root *Element
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "cannot parse markup")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			line, _ := d.InputPos()
			e := &Element{Tag: qualified(t.Name), Attrs: make(map[string]string, len(t.Attr)), Line: line}
			for _, a := range t.Attr {
				e.Attrs[qualified(a.Name)] = a.Value
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, errors.Errorf("cannot parse markup: line %d: more than one root element", line)
				}
				root = e
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, e)
			}
			stack = append(stack, e)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) == 0 {
				if len(bytes.TrimSpace(t)) > 0 {
					line, _ := d.InputPos()
					return nil, errors.Errorf("cannot parse markup: line %d: text outside the root element", line)
				}
				continue
			}
			parent := stack[len(stack)-1]
			// Adjacent character data, such as text followed by a CDATA
			// section, is merged into a single node.
			if n := len(parent.Children); n > 0 {
				if prev, ok := parent.Children[n-1].(*Text); ok {
					prev.Data += string(t)
					continue
				}
			}
			parent.Children = append(parent.Children, &Text{Data: string(t)})
		}
	}
	if root == nil {
		return nil, errors.New("cannot parse markup: no root element")
	}
	return root, nil
}

// ParseString is like Parse but reads from s.
func ParseString(s string) (*Element, error) {
	return Parse(strings.NewReader(s))
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}
