package mailer

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/valentin-kaiser/go-core/apperror"
	"github.com/valentin-kaiser/go-core/logging"
	"github.com/cloudmailing/cloudmailing/mailer/internal/mimetree"
	"github.com/cloudmailing/cloudmailing/mailing"
)

var logger = logging.GetPackageLogger("mailer")

// Customizer renders the personalized message of one recipient from the
// mailing's shared template. Construct it with NewCustomizer and adjust it
// with the With* methods before calling Run.
type Customizer struct {
	mailing       *mailing.Mailing
	recipient     *mailing.Recipient
	tempPath      string
	templating    bool
	clickTracking bool
}

// NewCustomizer creates a customizer for one mailing and recipient pair.
// Template rendering is enabled by default; plain field replacement can be
// selected with WithTemplating(false).
func NewCustomizer(m *mailing.Mailing, r *mailing.Recipient) *Customizer {
	return &Customizer{
		mailing:    m,
		recipient:  r,
		tempPath:   filepath.Join(os.TempDir(), "cloudmailing"),
		templating: true,
	}
}

// WithTempPath changes the directory the rendered message is written to.
func (c *Customizer) WithTempPath(path string) *Customizer {
	if path != "" {
		c.tempPath = path
	}
	return c
}

// WithTemplating toggles the template engine. When disabled, only literal
// `{{ field }}` markers are replaced.
func (c *Customizer) WithTemplating(enabled bool) *Customizer {
	c.templating = enabled
	return c
}

// WithClickTracking toggles rewriting of HTML anchor targets through the
// mailing's tracking redirector. It has no effect when the mailing has no
// tracking URL or templating is disabled.
func (c *Customizer) WithClickTracking(enabled bool) *Customizer {
	c.clickTracking = enabled
	return c
}

// FileName returns the deterministic name of the rendered message file.
// Rendering the same recipient again overwrites the previous output.
func (c *Customizer) FileName() string {
	return fmt.Sprintf("mailing_%d_%s.rfc822", c.mailing.ID, c.recipient.ID)
}

// TempPath returns the directory the rendered message is written to.
func (c *Customizer) TempPath() string {
	return c.tempPath
}

// Run parses the mailing template, renders it for the recipient and writes
// the result. It returns the full path of the written file.
func (c *Customizer) Run() (string, error) {
	tpl, err := ParseTemplate([]byte(c.mailing.Header), []byte(c.mailing.Body))
	if err != nil {
		return "", err
	}
	return c.RunWith(tpl)
}

// RunWith renders an already parsed template for the recipient and writes
// the result. Use it when rendering many recipients of the same mailing to
// parse the template only once.
func (c *Customizer) RunWith(tpl *Template) (string, error) {
	out, err := c.Render(tpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := mimetree.Serialize(out, &buf); err != nil {
		return "", apperror.Wrap(err)
	}

	if err := os.MkdirAll(c.tempPath, 0750); err != nil {
		return "", apperror.NewError("could not create render directory").AddError(err)
	}
	path := filepath.Join(c.tempPath, c.FileName())
	if err := os.WriteFile(path, buf.Bytes(), 0640); err != nil {
		return "", apperror.NewErrorf("could not write rendered message %s", c.FileName()).AddError(err)
	}

	logger.Debug().
		Field("mailing", c.mailing.ID).
		Field("recipient", c.recipient.ID).
		Field("path", path).
		Msg("message rendered")
	return path, nil
}

// Render produces the recipient's message tree without writing it. The
// template tree is never modified; the result is an independent tree with
// customized text parts, appended attachments and a Date header.
func (c *Customizer) Render(tpl *Template) (*mimetree.Node, error) {
	data := map[string]any(c.recipient.ContactData)
	sub := c.substituter()

	out, err := c.customizeNode(tpl.tree, sub, data)
	if err != nil {
		return nil, err
	}

	if attachments := c.recipient.Attachments(); len(attachments) > 0 {
		out = wrapWithAttachments(out, attachments)
	}

	if !out.HasHeader("Date") {
		out.AddHeader("Date", time.Now().UTC().Format(time.RFC1123Z))
	}
	return out, nil
}

func (c *Customizer) substituter() Substituter {
	if !c.templating {
		return &PlainSubstituter{}
	}
	return &TemplateSubstituter{
		ClickTracking: c.clickTracking,
		TrackingURL:   c.mailing.TrackingURL,
		TrackingID:    c.recipient.TrackingID,
	}
}

func (c *Customizer) customizeNode(n *mimetree.Node, sub Substituter, data map[string]any) (*mimetree.Node, error) {
	if n.Multipart {
		if n.Subtype == mimetree.SubtypeUnsupported {
			return nil, &mimetree.UnsupportedSubtypeError{Name: n.SubtypeName}
		}
		out := &mimetree.Node{
			Headers:     append([]mimetree.Header(nil), n.Headers...),
			Multipart:   true,
			Subtype:     n.Subtype,
			SubtypeName: n.SubtypeName,
		}
		for _, child := range n.Children {
			customized, err := c.customizeNode(child, sub, data)
			if err != nil {
				return nil, err
			}
			out.Children = append(out.Children, customized)
		}
		return out, nil
	}

	if !n.IsText() {
		return n.Clone(), nil
	}

	text, err := mimetree.DecodeText(n)
	if err != nil {
		return nil, apperror.Wrap(err)
	}
	customized, err := sub.Customize(text, data, n.IsHTML())
	if err != nil {
		return nil, apperror.NewErrorf("could not customize %s part", n.ContentType).AddError(err)
	}
	payload, err := mimetree.EncodeText(customized, n.Charset, n.Encoding)
	if err != nil {
		return nil, apperror.Wrap(err)
	}

	leaf := n.Clone()
	leaf.Payload = payload
	return leaf, nil
}

// wrapWithAttachments appends the recipient's attachments to the message.
// A multipart/mixed message takes them as additional parts. Any other
// shape is wrapped in a new multipart/mixed container; the message-level
// headers move to the container while the Content-* headers stay on the
// original content.
func wrapWithAttachments(n *mimetree.Node, attachments []mailing.AttachmentSpec) *mimetree.Node {
	if n.Multipart && n.Subtype == mimetree.SubtypeMixed {
		for _, a := range attachments {
			n.Children = append(n.Children, attachmentLeaf(a))
		}
		return n
	}

	root := &mimetree.Node{
		Multipart:   true,
		Subtype:     mimetree.SubtypeMixed,
		SubtypeName: "mixed",
	}
	var inner []mimetree.Header
	for _, h := range n.Headers {
		if isContentHeader(h.Name) {
			inner = append(inner, h)
			continue
		}
		root.Headers = append(root.Headers, h)
	}
	n.Headers = inner
	if !root.HasHeader("MIME-Version") {
		root.AddHeader("MIME-Version", "1.0")
	}

	root.Children = append(root.Children, n)
	for _, a := range attachments {
		root.Children = append(root.Children, attachmentLeaf(a))
	}
	return root
}

func isContentHeader(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), "content-")
}

func attachmentLeaf(a mailing.AttachmentSpec) *mimetree.Node {
	contentType := a.ContentType
	if a.Charset != "" {
		contentType += fmt.Sprintf("; charset=%q", a.Charset)
	}
	leaf := &mimetree.Node{
		ContentType: a.ContentType,
		Charset:     a.Charset,
		Encoding:    "base64",
		Payload:     []byte(a.Data),
	}
	leaf.AddHeader("Content-Type", contentType)
	leaf.AddHeader("MIME-Version", "1.0")
	leaf.AddHeader("Content-Transfer-Encoding", "base64")
	leaf.AddHeader("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Filename))
	return leaf
}
