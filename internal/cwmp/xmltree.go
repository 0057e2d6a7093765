package cwmp

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// xmlNode is a minimal document tree used for namespace-tolerant lookups.
// Vendor firmwares disagree on prefixes (soap: vs soapenv:) and some omit
// namespaces on child elements entirely, so all matching below falls back
// to local-name comparison.
type xmlNode struct {
	name     xml.Name
	attrs    []xml.Attr
	children []*xmlNode
	text     string
}

func parseXML(body []byte) (*xmlNode, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = false

	var root *xmlNode
	var stack []*xmlNode
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &xmlNode{name: t.Name, attrs: append([]xml.Attr{}, t.Attr...)}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("parse xml: multiple root elements")
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("parse xml: unbalanced end element")
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text += string(t)
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("parse xml: empty document")
	}
	return root, nil
}

// childLocal returns the first direct child whose local name matches,
// regardless of namespace.
func (n *xmlNode) childLocal(local string) *xmlNode {
	for _, c := range n.children {
		if c.name.Local == local {
			return c
		}
	}
	return nil
}

func (n *xmlNode) childrenLocal(local string) []*xmlNode {
	var out []*xmlNode
	for _, c := range n.children {
		if c.name.Local == local {
			out = append(out, c)
		}
	}
	return out
}

// findLocal does a depth-first search for the first element with the local
// name, at any depth.
func (n *xmlNode) findLocal(local string) *xmlNode {
	if n.name.Local == local {
		return n
	}
	for _, c := range n.children {
		if found := c.findLocal(local); found != nil {
			return found
		}
	}
	return nil
}

// childText returns the trimmed text of the first matching direct child, or
// empty. Missing optional fields degrade to empty rather than failing.
func (n *xmlNode) childText(local string) string {
	if c := n.childLocal(local); c != nil {
		return strings.TrimSpace(c.text)
	}
	return ""
}

// attrLocal returns the value of the first attribute whose local name
// matches, prefix-agnostic (xsi:type vs type).
func (n *xmlNode) attrLocal(local string) string {
	for _, a := range n.attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
