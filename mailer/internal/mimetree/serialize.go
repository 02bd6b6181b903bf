package mimetree

import (
	"bytes"
	"io"
	"strings"

	"github.com/valentin-kaiser/go-core/apperror"
	"github.com/google/uuid"
)

// Serialize writes the node as a complete RFC 822 message: header block,
// blank separator line, body. Multipart boundaries are generated fresh on
// every call and never reused from the parsed template. A leaf message
// ends exactly with its payload bytes; a multipart message ends with a
// line break after the closing delimiter.
func Serialize(n *Node, w io.Writer) error {
	var buf bytes.Buffer
	if err := writeEntity(n, &buf); err != nil {
		return apperror.Wrap(err)
	}
	if n.Multipart {
		buf.WriteString("\n")
	}
	_, err := w.Write(buf.Bytes())
	if err != nil {
		return apperror.NewError("could not write serialized message").AddError(err)
	}
	return nil
}

// writeEntity writes one entity without a trailing line break; the caller
// owns the separator towards the following boundary delimiter.
func writeEntity(n *Node, buf *bytes.Buffer) error {
	if !n.Multipart {
		writeHeaders(n.Headers, buf)
		buf.WriteString("\n")
		buf.Write(n.Payload)
		return nil
	}

	if len(n.Children) == 0 {
		return apperror.NewErrorf("multipart/%s container has no children", n.SubtypeName)
	}

	boundary := newBoundary()
	headers := make([]Header, len(n.Headers))
	copy(headers, n.Headers)
	headers = replaceContentType(headers, `multipart/`+n.SubtypeName+`; boundary="`+boundary+`"`)
	writeHeaders(headers, buf)
	buf.WriteString("\n")

	for _, child := range n.Children {
		buf.WriteString("--" + boundary + "\n")
		if err := writeEntity(child, buf); err != nil {
			return err
		}
		buf.WriteString("\n")
	}
	buf.WriteString("--" + boundary + "--")
	return nil
}

func writeHeaders(headers []Header, buf *bytes.Buffer) {
	for _, h := range headers {
		buf.WriteString(h.Name)
		buf.WriteString(": ")
		buf.WriteString(h.Value)
		buf.WriteString("\n")
	}
}

// replaceContentType swaps the Content-Type field in place, appending one
// when the entity had none.
func replaceContentType(headers []Header, value string) []Header {
	for i, h := range headers {
		if strings.EqualFold(h.Name, "Content-Type") {
			headers[i].Value = value
			return headers
		}
	}
	return append(headers, Header{Name: "Content-Type", Value: value})
}

// newBoundary generates a boundary marker in the style mail generators
// commonly emit, unique per serialization.
func newBoundary() string {
	return "===============" + strings.ReplaceAll(uuid.NewString(), "-", "") + "=="
}
