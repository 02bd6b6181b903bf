package mimetree_test

import (
	"strings"
	"testing"

	"github.com/cloudmailing/cloudmailing/mailer/internal/mimetree"
)

const simpleHeader = `Content-Type: text/plain; charset="us-ascii"
Content-Transfer-Encoding: 7bit
Subject: Great news!
From: Mailing Sender <sender@my-company.biz>
To: <firstname.lastname@domain.com>
Date: Wed, 05 Jun 2013 06:05:56 -0000
`

const alternativeHeader = `Content-Transfer-Encoding: 7bit
Content-Type: multipart/alternative; boundary="===============2840728917476054151=="
Subject: Great news!
From: Mailing Sender <sender@my-company.biz>
To: <firstname.lastname@domain.com>
Date: Wed, 05 Jun 2013 06:05:56 -0000
`

const alternativeBody = `
This is a multi-part message in MIME format.
--===============2840728917476054151==
Content-Type: text/plain; charset="us-ascii"
MIME-Version: 1.0
Content-Transfer-Encoding: 7bit

This is a very simple mailing.
--===============2840728917476054151==
Content-Type: text/html; charset="us-ascii"
MIME-Version: 1.0
Content-Transfer-Encoding: 7bit

<html><head></head>
<body>
This is <strong> a very simple</strong> <u>mailing</u>.
Nothing else to say...

--===============2840728917476054151==--
`

func TestParse_SingleLeaf(t *testing.T) {
	node, err := mimetree.Parse([]byte(simpleHeader), []byte("This is a very simple mailing."))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if node.Multipart {
		t.Fatal("Expected a leaf, got a container")
	}
	if node.ContentType != "text/plain" {
		t.Errorf("Expected content type text/plain, got: %s", node.ContentType)
	}
	if node.Charset != "us-ascii" {
		t.Errorf("Expected charset us-ascii, got: %s", node.Charset)
	}
	if node.Encoding != "7bit" {
		t.Errorf("Expected 7bit transfer encoding, got: %s", node.Encoding)
	}
	if string(node.Payload) != "This is a very simple mailing." {
		t.Errorf("Unexpected payload: %q", string(node.Payload))
	}
	if node.Header("Subject") != "Great news!" {
		t.Errorf("Expected Subject header, got: %q", node.Header("Subject"))
	}
}

func TestParse_MissingContentType(t *testing.T) {
	node, err := mimetree.Parse([]byte("Subject: hello\n"), []byte("body"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if node.ContentType != "text/plain" {
		t.Errorf("Expected default content type text/plain, got: %s", node.ContentType)
	}
	if node.Charset != "us-ascii" {
		t.Errorf("Expected default charset us-ascii, got: %s", node.Charset)
	}
}

func TestParse_Alternative(t *testing.T) {
	node, err := mimetree.Parse([]byte(alternativeHeader), []byte(alternativeBody))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !node.Multipart {
		t.Fatal("Expected a container")
	}
	if node.Subtype != mimetree.SubtypeAlternative {
		t.Errorf("Expected alternative subtype, got: %s", node.Subtype)
	}
	if len(node.Children) != 2 {
		t.Fatalf("Expected 2 children, got: %d", len(node.Children))
	}
	if node.Children[0].ContentType != "text/plain" {
		t.Errorf("Expected first child text/plain, got: %s", node.Children[0].ContentType)
	}
	if node.Children[1].ContentType != "text/html" {
		t.Errorf("Expected second child text/html, got: %s", node.Children[1].ContentType)
	}
	if string(node.Children[0].Payload) != "This is a very simple mailing." {
		t.Errorf("Unexpected plain payload: %q", string(node.Children[0].Payload))
	}
	if !strings.Contains(string(node.Children[1].Payload), "<u>mailing</u>") {
		t.Errorf("Unexpected html payload: %q", string(node.Children[1].Payload))
	}
}

func TestParse_NestedRelated(t *testing.T) {
	header := `Content-Type: multipart/alternative; boundary="===============1111111111111111111=="
`
	body := `
This is a multi-part message in MIME format.
--===============1111111111111111111==
Content-Type: text/plain; charset="us-ascii"

This is a very simple mailing.
--===============1111111111111111111==
Content-Type: multipart/related; boundary="===============2222222222222222222=="

--===============2222222222222222222==
Content-Type: text/html; charset="us-ascii"

<html><body>Hello</body></html>
--===============2222222222222222222==
Content-Type: image/jpeg; name="logo.jpg"
Content-Transfer-Encoding: base64
Content-ID: <part9.06060104.07080402@akema.fr>

/9j/4AAQSkZJRgABAQEASABIAAD/4QESRXhpZgAATU0AKgAAAAgABgEaAAUAAAABAAAAVgEb

--===============2222222222222222222==--

--===============1111111111111111111==--
`
	node, err := mimetree.Parse([]byte(header), []byte(body))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(node.Children) != 2 {
		t.Fatalf("Expected 2 children, got: %d", len(node.Children))
	}
	related := node.Children[1]
	if !related.Multipart || related.Subtype != mimetree.SubtypeRelated {
		t.Fatalf("Expected second child to be multipart/related, got: %+v", related)
	}
	if len(related.Children) != 2 {
		t.Fatalf("Expected 2 related children, got: %d", len(related.Children))
	}
	image := related.Children[1]
	if image.ContentType != "image/jpeg" {
		t.Errorf("Expected image/jpeg leaf, got: %s", image.ContentType)
	}
	if image.Encoding != "base64" {
		t.Errorf("Expected base64 transfer encoding, got: %s", image.Encoding)
	}
	if image.Header("Content-ID") != "<part9.06060104.07080402@akema.fr>" {
		t.Errorf("Expected Content-ID to be preserved, got: %q", image.Header("Content-ID"))
	}
}

func TestParse_UnsupportedSubtypeIsKept(t *testing.T) {
	header := `Content-Type: multipart/digest; boundary="b1"
`
	body := `
--b1
Content-Type: text/plain

part one
--b1--
`
	node, err := mimetree.Parse([]byte(header), []byte(body))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if node.Subtype != mimetree.SubtypeUnsupported {
		t.Errorf("Expected unsupported subtype, got: %s", node.Subtype)
	}
	if node.SubtypeName != "digest" {
		t.Errorf("Expected subtype name digest, got: %s", node.SubtypeName)
	}
}

func TestParse_MultipartWithoutBoundary(t *testing.T) {
	_, err := mimetree.Parse([]byte("Content-Type: multipart/mixed\n"), []byte("body"))
	if err == nil {
		t.Fatal("Expected error for multipart entity without boundary")
	}
}

func TestNode_CloneIsDeep(t *testing.T) {
	node, err := mimetree.Parse([]byte(alternativeHeader), []byte(alternativeBody))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	clone := node.Clone()
	clone.Children[0].Payload[0] = 'X'
	clone.Children[0].SetHeader("Content-Type", "text/other")
	clone.SetHeader("Subject", "changed")

	if string(node.Children[0].Payload) != "This is a very simple mailing." {
		t.Error("Cloned payload mutation leaked into the original tree")
	}
	if node.Children[0].Header("Content-Type") != `text/plain; charset="us-ascii"` {
		t.Error("Cloned header mutation leaked into the original tree")
	}
	if node.Header("Subject") != "Great news!" {
		t.Error("Cloned top-level header mutation leaked into the original tree")
	}
}
