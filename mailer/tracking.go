package mailer

import (
	"regexp"
	"strings"
)

var (
	anchorPattern = regexp.MustCompile(`(?i)<a\b[^>]*>`)
	hrefPattern   = regexp.MustCompile(`(?i)(href\s*=\s*)(["'])([^"']*)(["'])`)
)

// rewriteLinks redirects every anchor target in the HTML through the click
// tracking endpoint. The redirector receives the original target twice:
// once as written in the template (o) and once with the recipient's data
// filled in (t). Both are percent-encoded, which also protects the raw
// template markers in o from the later whole-part render.
func rewriteLinks(content string, trackingURL string, trackingID string, data map[string]any) string {
	base := trackingURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return anchorPattern.ReplaceAllStringFunc(content, func(anchor string) string {
		return hrefPattern.ReplaceAllStringFunc(anchor, func(href string) string {
			parts := hrefPattern.FindStringSubmatch(href)
			target := parts[3]
			if target == "" || strings.HasPrefix(target, "#") || strings.HasPrefix(target, "mailto:") {
				return href
			}
			resolved := renderExpression(target, data)
			tracked := base + "c/" + trackingID + "/?o=" + quoteURL(target) + "&t=" + quoteURL(resolved)
			return parts[1] + parts[2] + tracked + parts[4]
		})
	})
}

const upperhex = "0123456789ABCDEF"

// quoteURL percent-encodes everything except letters, digits and `_.-/`.
// Keeping the slash literal leaves redirector targets readable while still
// escaping scheme separators and query syntax.
func quoteURL(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case c == '_' || c == '.' || c == '-' || c == '/':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(upperhex[c>>4])
			b.WriteByte(upperhex[c&0xF])
		}
	}
	return b.String()
}
