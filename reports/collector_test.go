package reports

import (
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-sasl"
)

func TestCRAMMD5Client_RFC2195Example(t *testing.T) {
	client := newCRAMMD5Client("tim", "tanstaaftanstaaf")

	mechanism, initial, err := client.Start()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if mechanism != "CRAM-MD5" {
		t.Errorf("Expected CRAM-MD5, got: %s", mechanism)
	}
	if initial != nil {
		t.Error("Expected no initial response")
	}

	response, err := client.Next([]byte("<1896.697170952@postoffice.reston.mci.net>"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	expected := "tim b913a602c7eda7a495b4e6e7334d3890"
	if string(response) != expected {
		t.Errorf("Expected %q, got: %q", expected, string(response))
	}
}

func TestPickMechanism_PrefersCRAMMD5(t *testing.T) {
	caps := imap.CapSet{
		imap.AuthCap(sasl.Plain): {},
		imap.AuthCap(sasl.Login): {},
		imap.AuthCap("CRAM-MD5"): {},
		imap.CapIMAP4rev1:        {},
	}
	if got := pickMechanism(caps); got != "CRAM-MD5" {
		t.Errorf("Expected CRAM-MD5, got: %q", got)
	}
}

func TestPickMechanism_FallsBackToLoginThenPlain(t *testing.T) {
	caps := imap.CapSet{
		imap.AuthCap(sasl.Plain): {},
		imap.AuthCap(sasl.Login): {},
	}
	if got := pickMechanism(caps); got != sasl.Login {
		t.Errorf("Expected LOGIN, got: %q", got)
	}

	caps = imap.CapSet{imap.AuthCap(sasl.Plain): {}}
	if got := pickMechanism(caps); got != sasl.Plain {
		t.Errorf("Expected PLAIN, got: %q", got)
	}
}

func TestPickMechanism_NoneAdvertised(t *testing.T) {
	caps := imap.CapSet{imap.CapIMAP4rev1: {}}
	if got := pickMechanism(caps); got != "" {
		t.Errorf("Expected no mechanism, got: %q", got)
	}
}

func TestParseMailboxChoice(t *testing.T) {
	tests := []struct {
		answer  string
		count   int
		want    int
		wantErr bool
	}{
		{"", 3, 1, false},
		{"2", 3, 2, false},
		{" 3 ", 3, 3, false},
		{"0", 3, 0, true},
		{"4", 3, 0, true},
		{"other", 3, 0, true},
	}
	for _, tt := range tests {
		got, err := parseMailboxChoice(tt.answer, tt.count)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Expected an error for answer %q", tt.answer)
			}
			continue
		}
		if err != nil {
			t.Errorf("Expected no error for answer %q, got: %v", tt.answer, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Expected choice %d for answer %q, got: %d", tt.want, tt.answer, got)
		}
	}
}
