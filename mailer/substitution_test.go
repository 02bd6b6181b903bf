package mailer_test

import (
	"strings"
	"testing"

	"github.com/cloudmailing/cloudmailing/mailer"
)

func TestPlainSubstituter_ReplacesKnownFields(t *testing.T) {
	sub := &mailer.PlainSubstituter{}
	out, err := sub.Customize("Hello {{ firstname }} {{lastname}}!", map[string]any{
		"firstname": "Jane",
		"lastname":  "Doe",
	}, false)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if out != "Hello Jane Doe!" {
		t.Errorf("Unexpected output: %q", out)
	}
}

func TestPlainSubstituter_KeepsUnknownFields(t *testing.T) {
	sub := &mailer.PlainSubstituter{}
	out, err := sub.Customize("Hello {{ firstname }} {{ nickname }}!", map[string]any{
		"firstname": "Jane",
	}, false)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if out != "Hello Jane {{ nickname }}!" {
		t.Errorf("Unexpected output: %q", out)
	}
}

func TestTemplateSubstituter_UnresolvedRendersEmpty(t *testing.T) {
	sub := &mailer.TemplateSubstituter{}
	out, err := sub.Customize("Hello {{ firstname }}{{ nickname }}!", map[string]any{
		"firstname": "Jane",
	}, false)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if out != "Hello Jane!" {
		t.Errorf("Expected unresolved variables to render empty, got: %q", out)
	}
}

func TestTemplateSubstituter_Conditional(t *testing.T) {
	sub := &mailer.TemplateSubstituter{}
	out, err := sub.Customize("{% if gender == 'M' %}Dear Sir{% else %}Dear Madam{% endif %}", map[string]any{
		"gender": "F",
	}, false)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if out != "Dear Madam" {
		t.Errorf("Unexpected output: %q", out)
	}
}

func TestTemplateSubstituter_ClickTracking(t *testing.T) {
	sub := &mailer.TemplateSubstituter{
		ClickTracking: true,
		TrackingURL:   "http://tr.example.com/",
		TrackingID:    "4f8a1b2c",
	}
	out, err := sub.Customize(`<a href="http://my.com/the_page?id={{ id }}">Click here</a>`, map[string]any{
		"id": 12,
	}, true)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	expected := `<a href="http://tr.example.com/c/4f8a1b2c/?o=http%3A//my.com/the_page%3Fid%3D%7B%7B%20id%20%7D%7D&t=http%3A//my.com/the_page%3Fid%3D12">Click here</a>`
	if out != expected {
		t.Errorf("Unexpected output:\n got: %s\nwant: %s", out, expected)
	}
}

func TestTemplateSubstituter_ClickTrackingStaticLink(t *testing.T) {
	sub := &mailer.TemplateSubstituter{
		ClickTracking: true,
		TrackingURL:   "http://tr.example.com/",
		TrackingID:    "4f8a1b2c",
	}
	out, err := sub.Customize(`<a href="http://a.b/x?p=1">Click here</a>`, nil, true)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	encoded := "http%3A//a.b/x%3Fp%3D1"
	expected := `<a href="http://tr.example.com/c/4f8a1b2c/?o=` + encoded + `&t=` + encoded + `">Click here</a>`
	if out != expected {
		t.Errorf("Unexpected output:\n got: %s\nwant: %s", out, expected)
	}
}

func TestTemplateSubstituter_ClickTrackingSkipsAnchorsAndMailto(t *testing.T) {
	sub := &mailer.TemplateSubstituter{
		ClickTracking: true,
		TrackingURL:   "http://tr.example.com/",
		TrackingID:    "4f8a1b2c",
	}
	content := `<a href="#top">Top</a> <a href="mailto:info@my.com">Write us</a>`
	out, err := sub.Customize(content, nil, true)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if out != content {
		t.Errorf("Expected anchors and mailto links untouched, got: %q", out)
	}
}

func TestTemplateSubstituter_NoTrackingForPlainText(t *testing.T) {
	sub := &mailer.TemplateSubstituter{
		ClickTracking: true,
		TrackingURL:   "http://tr.example.com/",
		TrackingID:    "4f8a1b2c",
	}
	content := `See <a href="http://my.com/page">our page</a>`
	out, err := sub.Customize(content, nil, false)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if strings.Contains(out, "tr.example.com") {
		t.Errorf("Expected no rewriting in non-HTML parts, got: %q", out)
	}
}
