package ccda

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// Node is one element of a parsed document. Character data is kept the way
// ElementTree keeps it: Text holds the data before the first child element
// and each child's Tail holds the data that follows it.
type Node struct {
	Name     xml.Name
	Attrs    []xml.Attr
	Text     string
	Tail     string
	Children []*Node
}

var (
	errNoElement = errors.New("no element found")
	utf8BOM      = []byte{0xEF, 0xBB, 0xBF}
)

const xmlNamespace = "http://www.w3.org/XML/1998/namespace"

// ParseTree decodes an XML document into a Node tree. Element names carry
// their resolved namespace URI. Declared non-UTF-8 encodings are converted
// before decoding.
func ParseTree(data []byte) (*Node, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel

	var (
		root  *Node
		stack []*Node
		last  *Node // most recently closed element at the current depth

		// bound[i] holds the namespace URIs declared on stack[i].
		bound [][]string
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ccda: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if root != nil && len(stack) == 0 {
				line, col := dec.InputPos()
				return nil, fmt.Errorf("ccda: junk after document element: line %d, column %d", line, col)
			}
			bound = append(bound, declaredNamespaces(t.Attr))
			if err := checkBound(t, bound); err != nil {
				line, col := dec.InputPos()
				return nil, fmt.Errorf("ccda: %w: line %d, column %d", err, line, col)
			}
			n := &Node{Name: t.Name, Attrs: copyAttrs(t.Attr)}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			} else {
				root = n
			}
			stack = append(stack, n)
			last = nil
		case xml.EndElement:
			last = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			bound = bound[:len(bound)-1]
		case xml.CharData:
			if len(stack) == 0 {
				if len(bytes.TrimSpace(t)) > 0 {
					line, col := dec.InputPos()
					return nil, fmt.Errorf("ccda: text outside document element: line %d, column %d", line, col)
				}
				continue
			}
			if last != nil {
				last.Tail += string(t)
			} else {
				top := stack[len(stack)-1]
				top.Text += string(t)
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("ccda: %w", errNoElement)
	}
	if len(stack) > 0 {
		return nil, fmt.Errorf("ccda: unclosed element <%s>", stack[len(stack)-1].Name.Local)
	}
	return root, nil
}

func declaredNamespaces(attrs []xml.Attr) []string {
	var uris []string
	for _, a := range attrs {
		if (a.Name.Space == "xmlns" || a.Name.Space == "" && a.Name.Local == "xmlns") && a.Value != "" {
			uris = append(uris, a.Value)
		}
	}
	return uris
}

// checkBound reports a prefixed element or attribute name whose prefix has
// no namespace declaration in scope. The decoder leaves such a name's Space
// set to the bare prefix.
func checkBound(t xml.StartElement, bound [][]string) error {
	inScope := func(space string) bool {
		if space == "" || space == xmlNamespace {
			return true
		}
		for _, uris := range bound {
			for _, u := range uris {
				if u == space {
					return true
				}
			}
		}
		return false
	}
	if !inScope(t.Name.Space) {
		return fmt.Errorf("unbound prefix %q on <%s>", t.Name.Space, t.Name.Local)
	}
	for _, a := range t.Attr {
		if a.Name.Space == "xmlns" {
			continue
		}
		if !inScope(a.Name.Space) {
			return fmt.Errorf("unbound prefix %q on attribute %s", a.Name.Space, a.Name.Local)
		}
	}
	return nil
}

func copyAttrs(attrs []xml.Attr) []xml.Attr {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]xml.Attr, len(attrs))
	copy(out, attrs)
	return out
}

// StripNamespaces returns a copy of the tree in which every element name is
// reduced to its local part. The receiver is left unchanged.
func (n *Node) StripNamespaces() *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		Name:  xml.Name{Local: n.Name.Local},
		Attrs: n.Attrs,
		Text:  n.Text,
		Tail:  n.Tail,
	}
	if len(n.Children) > 0 {
		out.Children = make([]*Node, len(n.Children))
		for i, c := range n.Children {
			out.Children[i] = c.StripNamespaces()
		}
	}
	return out
}

// Child returns the first direct child with the given namespace and local
// name, or nil.
func (n *Node) Child(space, local string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name.Space == space && c.Name.Local == local {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns all direct children with the given name in
// document order.
func (n *Node) ChildrenNamed(space, local string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Name.Space == space && c.Name.Local == local {
			out = append(out, c)
		}
	}
	return out
}

// Descendants returns every element below n (n itself excluded) matching
// the name, in depth-first document order.
func (n *Node) Descendants(space, local string) []*Node {
	var out []*Node
	var walk func(*Node)
	walk = func(cur *Node) {
		for _, c := range cur.Children {
			if c.Name.Space == space && c.Name.Local == local {
				out = append(out, c)
			}
			walk(c)
		}
	}
	if n != nil {
		walk(n)
	}
	return out
}

// Attr returns the value of an unqualified attribute.
func (n *Node) Attr(local string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attrs {
		if a.Name.Space == "" && a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// AttrOr returns the attribute value or def when it is absent.
func (n *Node) AttrOr(local, def string) string {
	if v, ok := n.Attr(local); ok {
		return v
	}
	return def
}

// InnerText concatenates all character data inside n, including text
// nested in descendant elements. n's own tail is not included.
func (n *Node) InnerText() string {
	var sb strings.Builder
	n.writeText(&sb)
	return sb.String()
}

func (n *Node) writeText(sb *strings.Builder) {
	if n == nil {
		return
	}
	sb.WriteString(n.Text)
	for _, c := range n.Children {
		c.writeText(sb)
		sb.WriteString(c.Tail)
	}
}
