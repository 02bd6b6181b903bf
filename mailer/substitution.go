package mailer

import (
	"strings"

	"github.com/valentin-kaiser/go-core/apperror"
	"github.com/flosch/pongo2/v6"
)

// Substituter fills recipient contact data into the decoded text of one
// message part.
type Substituter interface {
	Customize(content string, data map[string]any, html bool) (string, error)
}

// PlainSubstituter replaces `{{ field }}` markers by literal text search.
// Markers that name a missing field stay in the output untouched. It is
// the fallback for mailings that do not use template syntax beyond simple
// field insertion.
type PlainSubstituter struct{}

// Customize replaces every known field marker in content. Both the spaced
// form `{{ field }}` and the compact form `{{field}}` are recognized.
func (s *PlainSubstituter) Customize(content string, data map[string]any, _ bool) (string, error) {
	for field, value := range data {
		text := stringValue(value)
		content = strings.ReplaceAll(content, "{{ "+field+" }}", text)
		content = strings.ReplaceAll(content, "{{"+field+"}}", text)
	}
	return content, nil
}

// TemplateSubstituter renders each part through the template engine, which
// supports variables, filters, conditionals and loops. Unresolved
// variables render as empty strings. For HTML parts it optionally rewrites
// anchor targets to the click tracking redirector before rendering.
type TemplateSubstituter struct {
	ClickTracking bool
	TrackingURL   string
	TrackingID    string
}

// Customize renders content against the recipient's contact data.
func (s *TemplateSubstituter) Customize(content string, data map[string]any, html bool) (string, error) {
	if html && s.ClickTracking && s.TrackingURL != "" {
		content = rewriteLinks(content, s.TrackingURL, s.TrackingID, data)
	}
	tpl, err := pongo2.FromString(content)
	if err != nil {
		return "", apperror.NewError("could not parse part template").AddError(err)
	}
	out, err := tpl.Execute(pongo2.Context(data))
	if err != nil {
		return "", apperror.NewError("could not render part template").AddError(err)
	}
	return out, nil
}

// renderExpression renders a single template expression, such as the
// content of an href attribute, against the contact data. On any template
// error the original text is kept.
func renderExpression(expr string, data map[string]any) string {
	tpl, err := pongo2.FromString(expr)
	if err != nil {
		return expr
	}
	out, err := tpl.Execute(pongo2.Context(data))
	if err != nil {
		return expr
	}
	return out
}

func stringValue(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return pongo2.AsValue(value).String()
}
