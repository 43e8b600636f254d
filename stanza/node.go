// Package stanza provides the in-memory element tree that Jingle signaling
// handlers build and inspect.
//
// The wire serialization of stanzas is owned by the embedding client; this
// package only models the tree of named elements, attributes and character
// data that content handlers populate (descriptions, transport payloads,
// security blocks). Child order is preserved exactly as appended, since
// downstream compatibility code indexes children positionally.
package stanza

// Node is a single element in a stanza tree.
type Node struct {
	name     string
	attrs    map[string]string
	children []*Node
	text     string
}

// New creates a node with the given element name.
func New(name string) *Node {
	return &Node{name: name}
}

// Name returns the element name.
func (n *Node) Name() string {
	return n.name
}

// SetAttr sets an attribute and returns the node for chaining.
func (n *Node) SetAttr(key, value string) *Node {
	if n.attrs == nil {
		n.attrs = make(map[string]string)
	}
	n.attrs[key] = value
	return n
}

// Attr returns the attribute value, or "" if unset.
func (n *Node) Attr(key string) string {
	return n.attrs[key]
}

// SetNamespace sets the xmlns attribute and returns the node for chaining.
func (n *Node) SetNamespace(ns string) *Node {
	return n.SetAttr("xmlns", ns)
}

// Namespace returns the xmlns attribute, or "" if unset.
func (n *Node) Namespace() string {
	return n.Attr("xmlns")
}

// SetText sets the character data and returns the node for chaining.
func (n *Node) SetText(text string) *Node {
	n.text = text
	return n
}

// Text returns the character data.
func (n *Node) Text() string {
	return n.text
}

// AddChild appends child and returns it, so construction can be chained
// the way handlers build payloads.
func (n *Node) AddChild(child *Node) *Node {
	n.children = append(n.children, child)
	return child
}

// NewChild appends a new empty child element with the given name and
// returns it.
func (n *Node) NewChild(name string) *Node {
	return n.AddChild(New(name))
}

// Child returns the first child with the given name, or nil. Safe to call
// on a nil node, which lets routing code probe optional sub-elements
// without guarding every step.
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// Children returns all children in append order.
func (n *Node) Children() []*Node {
	if n == nil {
		return nil
	}
	return n.children
}

// ChildrenNamed returns all children with the given name, in append order.
func (n *Node) ChildrenNamed(name string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.children {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

// ChildText returns the character data of the first child with the given
// name, or "" if absent.
func (n *Node) ChildText(name string) string {
	c := n.Child(name)
	if c == nil {
		return ""
	}
	return c.text
}
