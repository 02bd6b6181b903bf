// Package mimetree holds the in-memory representation of a parsed MIME
// message as used by the mailing render engine. A message is a tree of
// nodes: leaves carry actual content together with its declared charset
// and transfer encoding, containers carry an ordered list of children
// tagged by their multipart subtype.
//
// The tree is built once per mailing from the stored header and body
// blocks and is never mutated afterwards; every render works on its own
// deep copy so that many recipients can be rendered concurrently from
// the same template.
package mimetree

import (
	"strings"
)

// Subtype identifies the multipart container kind. Only the subtypes the
// mailing templates actually use are supported; everything else is carried
// as SubtypeUnsupported and rejected when a render or preview reaches it.
type Subtype int

const (
	SubtypeMixed Subtype = iota
	SubtypeAlternative
	SubtypeRelated
	SubtypeUnsupported
)

// String returns the wire name of the subtype.
func (s Subtype) String() string {
	switch s {
	case SubtypeMixed:
		return "mixed"
	case SubtypeAlternative:
		return "alternative"
	case SubtypeRelated:
		return "related"
	default:
		return "unsupported"
	}
}

// ParseSubtype maps a multipart subtype name onto the closed Subtype set.
func ParseSubtype(name string) Subtype {
	switch strings.ToLower(name) {
	case "mixed":
		return SubtypeMixed
	case "alternative":
		return SubtypeAlternative
	case "related":
		return SubtypeRelated
	default:
		return SubtypeUnsupported
	}
}

// Header is a single header field. Fields are kept in the order they were
// parsed and duplicates are preserved.
type Header struct {
	Name  string
	Value string
}

// Node is one entity of a MIME message. A node is either a leaf carrying
// content or a multipart container carrying children, never both.
type Node struct {
	Headers []Header

	// Leaf fields. Payload holds the body bytes exactly as stored,
	// still transfer-encoded.
	ContentType string
	Charset     string
	Encoding    string
	Payload     []byte

	// Container fields. SubtypeName keeps the raw subtype so that an
	// unsupported container can be reported by name.
	Multipart   bool
	Subtype     Subtype
	SubtypeName string
	Children    []*Node
}

// IsText reports whether the node is a leaf with a text maintype.
func (n *Node) IsText() bool {
	return !n.Multipart && strings.HasPrefix(n.ContentType, "text/")
}

// IsHTML reports whether the node is a text/html leaf.
func (n *Node) IsHTML() bool {
	return !n.Multipart && n.ContentType == "text/html"
}

// Header returns the first value of the named header field, matching
// case-insensitively, or the empty string when absent.
func (n *Node) Header(name string) string {
	for _, h := range n.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// HasHeader reports whether the named header field is present.
func (n *Node) HasHeader(name string) bool {
	for _, h := range n.Headers {
		if strings.EqualFold(h.Name, name) {
			return true
		}
	}
	return false
}

// SetHeader replaces every occurrence of the named field with a single
// field carrying the given value, or appends it when absent.
func (n *Node) SetHeader(name, value string) {
	kept := n.Headers[:0]
	replaced := false
	for _, h := range n.Headers {
		if strings.EqualFold(h.Name, name) {
			if !replaced {
				kept = append(kept, Header{Name: h.Name, Value: value})
				replaced = true
			}
			continue
		}
		kept = append(kept, h)
	}
	if !replaced {
		kept = append(kept, Header{Name: name, Value: value})
	}
	n.Headers = kept
}

// AddHeader appends a header field without touching existing ones.
func (n *Node) AddHeader(name, value string) {
	n.Headers = append(n.Headers, Header{Name: name, Value: value})
}

// Clone returns a deep copy of the node. Headers, payload and children are
// all copied so that mutating the clone never touches the original tree.
func (n *Node) Clone() *Node {
	c := &Node{
		ContentType: n.ContentType,
		Charset:     n.Charset,
		Encoding:    n.Encoding,
		Multipart:   n.Multipart,
		Subtype:     n.Subtype,
		SubtypeName: n.SubtypeName,
	}
	c.Headers = make([]Header, len(n.Headers))
	copy(c.Headers, n.Headers)
	if n.Payload != nil {
		c.Payload = make([]byte, len(n.Payload))
		copy(c.Payload, n.Payload)
	}
	if len(n.Children) > 0 {
		c.Children = make([]*Node, 0, len(n.Children))
		for _, child := range n.Children {
			c.Children = append(c.Children, child.Clone())
		}
	}
	return c
}
