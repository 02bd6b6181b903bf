package mimetree

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime/quotedprintable"
	"strings"

	"github.com/valentin-kaiser/go-core/apperror"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// maxLineLength is the maximum encoded line length per RFC 2045.
const maxLineLength = 76

// DecodeTransfer reverses the transfer encoding of raw payload bytes.
// 7bit, 8bit and an absent encoding are identity.
func DecodeTransfer(payload []byte, transferEncoding string) ([]byte, error) {
	switch strings.ToLower(transferEncoding) {
	case "", "7bit", "8bit", "binary":
		return payload, nil
	case "quoted-printable":
		decoded, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(payload)))
		if err != nil && len(decoded) == 0 {
			return nil, apperror.NewError("could not decode quoted-printable payload").AddError(err)
		}
		// A decode error mid-stream still yields the readable prefix;
		// rendering degrades instead of failing the whole message.
		return decoded, nil
	case "base64":
		decoded, err := io.ReadAll(base64.NewDecoder(base64.StdEncoding, bytes.NewReader(payload)))
		if err != nil && len(decoded) == 0 {
			return nil, apperror.NewError("could not decode base64 payload").AddError(err)
		}
		return decoded, nil
	default:
		return nil, apperror.NewErrorf("unknown transfer encoding %q", transferEncoding)
	}
}

// EncodeTransfer applies the given transfer encoding to data.
func EncodeTransfer(data []byte, transferEncoding string) ([]byte, error) {
	switch strings.ToLower(transferEncoding) {
	case "", "7bit", "8bit", "binary":
		return data, nil
	case "quoted-printable":
		var buf bytes.Buffer
		w := quotedprintable.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, apperror.NewError("could not write quoted-printable payload").AddError(err)
		}
		if err := w.Close(); err != nil {
			return nil, apperror.NewError("could not close quoted-printable writer").AddError(err)
		}
		return buf.Bytes(), nil
	case "base64":
		var buf bytes.Buffer
		base64Wrap(&buf, data)
		return buf.Bytes(), nil
	default:
		return nil, apperror.NewErrorf("unknown transfer encoding %q", transferEncoding)
	}
}

// DecodeText decodes a text leaf to its logical text: the transfer encoding
// is reversed first, then the declared charset is decoded to UTF-8. Bytes
// the declared charset cannot represent are replaced rather than treated as
// fatal; a template mislabeling its charset is a known limitation and is
// not repaired here.
func DecodeText(leaf *Node) (string, error) {
	if !leaf.IsText() {
		return "", apperror.NewErrorf("cannot decode %q leaf to text", leaf.ContentType)
	}
	raw, err := DecodeTransfer(leaf.Payload, leaf.Encoding)
	if err != nil {
		return "", apperror.Wrap(err)
	}
	enc := lookupCharset(leaf.Charset)
	if enc == nil {
		// Unknown or byte-transparent charset, treat the bytes as-is.
		return string(raw), nil
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw), nil
	}
	return string(decoded), nil
}

// EncodeText re-encodes logical text with the charset and transfer encoding
// the leaf originally declared, so the rendered output keeps the size and
// structure characteristics of the stored template.
func EncodeText(text string, charset, transferEncoding string) ([]byte, error) {
	data := []byte(text)
	if enc := lookupCharset(charset); enc != nil {
		encoded, err := encoding.ReplaceUnsupported(enc.NewEncoder()).Bytes(data)
		if err != nil {
			return nil, apperror.NewErrorf("could not encode text as %q", charset).AddError(err)
		}
		data = encoded
	}
	out, err := EncodeTransfer(data, transferEncoding)
	if err != nil {
		return nil, apperror.Wrap(err)
	}
	return out, nil
}

// lookupCharset resolves a charset name against the MIME index with the
// IANA index as fallback. A nil result means the charset is unknown or
// needs no conversion (us-ascii, utf-8).
func lookupCharset(name string) encoding.Encoding {
	if name == "" {
		return nil
	}
	switch strings.ToLower(name) {
	case "us-ascii", "ascii", "utf-8", "utf8":
		return nil
	}
	enc, err := ianaindex.MIME.Encoding(name)
	if err != nil || enc == nil {
		enc, err = ianaindex.IANA.Encoding(name)
		if err != nil {
			return nil
		}
	}
	return enc
}

// base64Wrap encodes content and wraps it according to RFC 2045 standards
// (every 76 chars).
func base64Wrap(w io.Writer, b []byte) {
	// 57 raw bytes per 76-byte base64 line.
	const maxRaw = 57
	buf := make([]byte, maxLineLength+1)
	buf[maxLineLength] = '\n'
	for len(b) >= maxRaw {
		base64.StdEncoding.Encode(buf, b[:maxRaw])
		w.Write(buf)
		b = b[maxRaw:]
	}
	if len(b) > 0 {
		out := buf[:base64.StdEncoding.EncodedLen(len(b))]
		base64.StdEncoding.Encode(out, b)
		out = append(out, '\n')
		w.Write(out)
	}
}
