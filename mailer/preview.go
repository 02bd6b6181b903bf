package mailer

import (
	"github.com/valentin-kaiser/go-core/apperror"
	"github.com/cloudmailing/cloudmailing/mailer/internal/mimetree"
)

// DisplayableBody returns the part of the message best suited for an
// on-screen preview, transfer-decoded but without charset conversion; the
// text keeps the encoding the template declares. A message without a
// displayable text part yields an empty string without error.
//
// The descent picks one leaf: a mixed container yields its first part, an
// alternative container prefers the HTML variant or a related group
// carrying one, a related container yields its first part.
func DisplayableBody(tpl *Template) (string, error) {
	leaf, err := displayableLeaf(tpl.tree)
	if err != nil {
		return "", err
	}
	if leaf == nil || !leaf.IsText() {
		return "", nil
	}
	decoded, err := mimetree.DecodeTransfer(leaf.Payload, leaf.Encoding)
	if err != nil {
		return "", apperror.Wrap(err)
	}
	return string(decoded), nil
}

func displayableLeaf(n *mimetree.Node) (*mimetree.Node, error) {
	if !n.Multipart {
		return n, nil
	}

	if len(n.Children) == 0 {
		return nil, apperror.NewErrorf("multipart/%s container has no children", n.SubtypeName)
	}

	switch n.Subtype {
	case mimetree.SubtypeMixed:
		return displayableLeaf(n.Children[0])
	case mimetree.SubtypeAlternative:
		for _, child := range n.Children {
			if child.IsHTML() {
				return child, nil
			}
			if child.Multipart && child.Subtype == mimetree.SubtypeRelated {
				return displayableLeaf(child)
			}
		}
		for _, child := range n.Children {
			if child.IsText() {
				return child, nil
			}
		}
		return nil, nil
	case mimetree.SubtypeRelated:
		return displayableLeaf(n.Children[0])
	default:
		return nil, &mimetree.UnsupportedSubtypeError{Name: n.SubtypeName}
	}
}
