// Package mailer turns a mailing's shared MIME template into the
// personalized message of one recipient. It substitutes contact data into
// every text part, rewrites links for click tracking, appends
// per-recipient attachments and writes the assembled message to disk.
package mailer

import (
	"github.com/valentin-kaiser/go-core/apperror"
	"github.com/cloudmailing/cloudmailing/mailer/internal/mimetree"
)

// Template is a parsed mailing template. It is read-only once parsed and
// safe to share across concurrent renders; every render works on its own
// copy of the tree.
type Template struct {
	tree *mimetree.Node
}

// ParseTemplate parses the raw header and body blocks of a mailing into a
// template. The header block ends at the first empty line; the body is the
// message content, multipart or simple.
func ParseTemplate(header []byte, body []byte) (*Template, error) {
	tree, err := mimetree.Parse(header, body)
	if err != nil {
		return nil, apperror.Wrap(err)
	}
	return &Template{tree: tree}, nil
}

// UnsupportedStructureError reports a multipart subtype the renderer does
// not know how to traverse, such as digest or parallel.
type UnsupportedStructureError = mimetree.UnsupportedSubtypeError
