package mimetree

import (
	"bytes"
	"mime"
	"strings"

	"github.com/valentin-kaiser/go-core/apperror"
)

// DefaultContentType is assumed for entities without a Content-Type header,
// according to RFC 2045, section 5.2
const DefaultContentType = "text/plain; charset=us-ascii"

// Parse builds the MIME tree of a stored mailing from its raw header block
// and body block. The two blocks are stored separately; together they form
// one RFC 822 message with the blank separator line implied.
func Parse(header, body []byte) (*Node, error) {
	headers, rest, err := parseHeaderBlock(header)
	if err != nil {
		return nil, apperror.Wrap(err)
	}
	if len(bytes.TrimSpace(rest)) > 0 {
		// A template header block that already contains body text is
		// stored data corruption, not something we can render from.
		return nil, apperror.NewError("mailing header block contains body data")
	}
	return parseEntity(headers, body)
}

// parseEntity builds the node for one MIME entity from its parsed headers
// and raw body bytes, descending recursively into multipart containers.
func parseEntity(headers []Header, body []byte) (*Node, error) {
	ct := headerValue(headers, "Content-Type")
	if ct == "" {
		ct = DefaultContentType
	}
	mediatype, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return nil, apperror.NewErrorf("could not parse Content-Type header with value %q", ct).AddError(err)
	}

	if !strings.HasPrefix(mediatype, "multipart/") {
		return &Node{
			Headers:     headers,
			ContentType: mediatype,
			Charset:     params["charset"],
			Encoding:    strings.ToLower(headerValue(headers, "Content-Transfer-Encoding")),
			Payload:     body,
		}, nil
	}

	boundary, ok := params["boundary"]
	if !ok || boundary == "" {
		return nil, apperror.NewError("no boundary found for multipart entity")
	}

	parts, err := splitMultipart(body, boundary)
	if err != nil {
		return nil, apperror.Wrap(err)
	}
	if len(parts) == 0 {
		return nil, apperror.NewErrorf("multipart entity with boundary %q has no parts", boundary)
	}

	subtype := strings.TrimPrefix(mediatype, "multipart/")
	node := &Node{
		Headers:     headers,
		Multipart:   true,
		Subtype:     ParseSubtype(subtype),
		SubtypeName: subtype,
	}
	for _, part := range parts {
		childHeaders, childBody, err := parseHeaderBlock(part)
		if err != nil {
			return nil, apperror.Wrap(err)
		}
		child, err := parseEntity(childHeaders, childBody)
		if err != nil {
			return nil, apperror.Wrap(err)
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}

// parseHeaderBlock reads header fields from the start of raw until the
// first empty line and returns them together with the remaining bytes.
// Folded header lines are unfolded with a single space; field order and
// duplicate fields are preserved.
func parseHeaderBlock(raw []byte) ([]Header, []byte, error) {
	var headers []Header
	rest := raw
	for len(rest) > 0 {
		line, remainder := nextLine(rest)
		trimmed := strings.TrimRight(string(line), "\r\n")
		if trimmed == "" {
			// Blank line terminates the header block.
			rest = remainder
			break
		}
		if trimmed[0] == ' ' || trimmed[0] == '\t' {
			if len(headers) == 0 {
				return nil, nil, apperror.NewErrorf("header block starts with continuation line %q", trimmed)
			}
			headers[len(headers)-1].Value += " " + strings.TrimLeft(trimmed, " \t")
			rest = remainder
			continue
		}
		name, value, found := strings.Cut(trimmed, ":")
		if !found {
			// Stored simple templates carry a bare body right after the
			// header block; treat the first non-header line as body start.
			break
		}
		headers = append(headers, Header{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
		rest = remainder
	}
	return headers, rest, nil
}

// splitMultipart cuts the raw body of a multipart entity into its parts
// using the declared boundary. The preamble before the first delimiter and
// the epilogue after the closing delimiter are discarded; the line break
// preceding each delimiter belongs to the delimiter, not to the part.
func splitMultipart(body []byte, boundary string) ([][]byte, error) {
	var (
		delim   = "--" + boundary
		closing = delim + "--"
		parts   [][]byte
		current bytes.Buffer
		inPart  bool
	)
	rest := body
	for len(rest) > 0 {
		line, remainder := nextLine(rest)
		rest = remainder
		marker := strings.TrimRight(string(line), " \t\r\n")
		if marker == delim || marker == closing {
			if inPart {
				parts = append(parts, trimFinalNewline(current.Bytes()))
				current = bytes.Buffer{}
			}
			if marker == closing {
				return parts, nil
			}
			inPart = true
			continue
		}
		if inPart {
			current.Write(line)
		}
	}
	if inPart {
		// Tolerate a missing closing delimiter the way mail clients do.
		parts = append(parts, trimFinalNewline(current.Bytes()))
	}
	return parts, nil
}

// nextLine returns the first line of b including its terminator, and the
// remaining bytes.
func nextLine(b []byte) (line, rest []byte) {
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		return b, nil
	}
	return b[:i+1], b[i+1:]
}

// trimFinalNewline removes the single line break that separates part
// content from the following boundary delimiter.
func trimFinalNewline(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte("\n"))
	return bytes.TrimSuffix(b, []byte("\r"))
}

func headerValue(headers []Header, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
