package xmlconfig

import (
	"io"

	"github.com/ddsfabric/ddscore/avltree"
)

// Element is one node of a parsed configuration document: a name, an
// ordered set of attributes, an ordered set of named child groups (an
// element may legally repeat, e.g. multiple <Peer> entries under one
// parent), and any text content found directly inside it. Attrs and
// Children are avltree.Tree instances rather than maps so that a caller
// walking the configuration for diagnostics sees a stable, sorted order
// instead of Go's randomized map iteration.
type Element struct {
	Name     string
	Attrs    *avltree.Tree[string, string]
	Children *avltree.Tree[string, []*Element]
	Data     string
}

func newElement(name string) *Element {
	return &Element{
		Name:     name,
		Attrs:    avltree.NewOrdered[string, string](),
		Children: avltree.NewOrdered[string, []*Element](),
	}
}

func (e *Element) addChild(c *Element) {
	kids, _ := e.Children.Lookup(c.Name)
	kids = append(kids, c)
	e.Children.Insert(c.Name, kids)
}

// Attr looks up a single attribute value by name.
func (e *Element) Attr(name string) (string, bool) {
	return e.Attrs.Lookup(name)
}

// Child returns the first child element named name, matching the
// configuration engine's convention of treating a singular setting as
// "the first one wins" while still recording the rest.
func (e *Element) Child(name string) (*Element, bool) {
	kids, ok := e.Children.Lookup(name)
	if !ok || len(kids) == 0 {
		return nil, false
	}
	return kids[0], true
}

// ChildrenNamed returns every child element named name, in document order.
func (e *Element) ChildrenNamed(name string) []*Element {
	kids, _ := e.Children.Lookup(name)
	return kids
}

// Tree is the parsed form of a configuration document: its Root element,
// or nil if the document was empty.
type Tree struct {
	Root *Element
}

// ParseConfig parses r as a configuration document, wiring Callbacks that
// assemble an Element tree as the parser produces events, and returns the
// finished Tree. This is the normal entry point for config intake; callers
// needing the lower-level event stream (e.g. for streaming validation
// without building a tree) should use New/Parser.Parse directly.
func ParseConfig(r io.Reader) (*Tree, error) {
	tree := &Tree{}
	cb := Callbacks{
		ElemOpen: func(parent ElemInfo, name string) (ElemInfo, error) {
			el := newElement(name)
			if parent == nil {
				tree.Root = el
			} else {
				parent.(*Element).addChild(el)
			}
			return el, nil
		},
		Attr: func(elem ElemInfo, name, value string) error {
			elem.(*Element).Attrs.Insert(name, value)
			return nil
		},
		ElemData: func(elem ElemInfo, data string) error {
			elem.(*Element).Data = data
			return nil
		},
	}
	p := New(r, cb)
	if err := p.Parse(); err != nil {
		return nil, err
	}
	return tree, nil
}
