// Package reports collects delivery and feedback reports from a remote
// IMAP mailbox and feeds the raw messages to a handler for processing.
package reports

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/valentin-kaiser/go-core/apperror"
	"github.com/valentin-kaiser/go-core/logging"
	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"
)

var logger = logging.GetPackageLogger("reports")

// Handler processes one raw report message. The mailing ids identify the
// campaigns the collector run is gathering reports for.
type Handler func(raw []byte, mailingIDs []uint) error

// Prompter asks the operator for input when the collector cannot decide
// on its own.
type Prompter interface {
	Confirm(question string) (bool, error)
	Ask(question string) (string, error)
}

// Collector connects to an IMAP mailbox, fetches all messages and hands
// each one to the handler. Handler failures are logged per message and do
// not abort the run.
type Collector struct {
	addr       string
	username   string
	password   string
	tls        bool
	mailingIDs []uint
	handler    Handler
	prompter   Prompter
}

// NewCollector creates a collector for the given IMAP account.
func NewCollector(addr string, username string, password string) *Collector {
	return &Collector{
		addr:     addr,
		username: username,
		password: password,
		prompter: &stdinPrompter{},
	}
}

// WithTLS selects an implicit TLS connection instead of plaintext.
func (c *Collector) WithTLS(enabled bool) *Collector {
	c.tls = enabled
	return c
}

// WithMailingIDs sets the campaigns this run gathers reports for.
func (c *Collector) WithMailingIDs(ids []uint) *Collector {
	c.mailingIDs = ids
	return c
}

// WithHandler sets the report handler.
func (c *Collector) WithHandler(handler Handler) *Collector {
	c.handler = handler
	return c
}

// WithPrompter replaces the operator prompt, mainly for tests.
func (c *Collector) WithPrompter(prompter Prompter) *Collector {
	c.prompter = prompter
	return c
}

// Run connects, authenticates, lets the operator pick a mailbox and
// processes every message in it.
func (c *Collector) Run() error {
	if c.handler == nil {
		return apperror.NewError("report handler is required")
	}

	client, err := c.dial()
	if err != nil {
		return err
	}
	defer apperror.Catch(client.Close, "closing imap connection failed")

	if err := c.authenticate(client); err != nil {
		return err
	}

	mailbox, err := c.pickMailbox(client)
	if err != nil {
		return err
	}

	selected, err := client.Select(mailbox, &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return apperror.NewErrorf("could not select mailbox %s", mailbox).AddError(err)
	}
	if selected.NumMessages == 0 {
		logger.Info().Field("mailbox", mailbox).Msg("no report messages")
		return c.logout(client)
	}

	var seqSet imap.SeqSet
	seqSet.AddRange(1, selected.NumMessages)
	fetchOptions := &imap.FetchOptions{
		BodySection: []*imap.FetchItemBodySection{{}},
	}
	messages, err := client.Fetch(seqSet, fetchOptions).Collect()
	if err != nil {
		return apperror.NewError("could not fetch report messages").AddError(err)
	}

	processed := 0
	for _, message := range messages {
		for _, section := range message.BodySection {
			if err := c.handler(section.Bytes, c.mailingIDs); err != nil {
				logger.Warn().Field("sequence", message.SeqNum).Err(err).Msg("report handler failed")
				continue
			}
			processed++
		}
	}
	logger.Info().Field("mailbox", mailbox).Field("processed", processed).Msg("report collection finished")

	return c.logout(client)
}

func (c *Collector) dial() (*imapclient.Client, error) {
	options := &imapclient.Options{}
	if c.tls {
		client, err := imapclient.DialTLS(c.addr, options)
		if err != nil {
			return nil, apperror.NewErrorf("could not connect to %s", c.addr).AddError(err)
		}
		return client, nil
	}
	client, err := imapclient.DialInsecure(c.addr, options)
	if err != nil {
		return nil, apperror.NewErrorf("could not connect to %s", c.addr).AddError(err)
	}
	return client, nil
}

// authenticate tries the advertised mechanisms from strongest to weakest
// and asks the operator before sending the password in the clear.
func (c *Collector) authenticate(client *imapclient.Client) error {
	mechanism := pickMechanism(client.Caps())
	switch mechanism {
	case "CRAM-MD5":
		return c.runSASL(client, mechanism, newCRAMMD5Client(c.username, c.password))
	case sasl.Login:
		return c.runSASL(client, mechanism, sasl.NewLoginClient(c.username, c.password))
	case sasl.Plain:
		return c.runSASL(client, mechanism, sasl.NewPlainClient("", c.username, c.password))
	}

	ok, err := c.prompter.Confirm("The server offers no challenge authentication. Log in with a cleartext password?")
	if err != nil {
		return apperror.Wrap(err)
	}
	if !ok {
		return apperror.NewError("login aborted by operator")
	}
	if err := client.Login(c.username, c.password).Wait(); err != nil {
		return apperror.NewErrorf("login failed for %s", c.username).AddError(err)
	}
	return nil
}

func (c *Collector) runSASL(client *imapclient.Client, mechanism string, saslClient sasl.Client) error {
	if err := client.Authenticate(saslClient); err != nil {
		return apperror.NewErrorf("%s authentication failed for %s", mechanism, c.username).AddError(err)
	}
	return nil
}

// pickMechanism returns the strongest advertised authentication mechanism,
// or an empty string when none of the known ones is offered.
func pickMechanism(caps imap.CapSet) string {
	for _, mechanism := range []string{"CRAM-MD5", sasl.Login, sasl.Plain} {
		if caps.Has(imap.AuthCap(mechanism)) {
			return mechanism
		}
	}
	return ""
}

func (c *Collector) pickMailbox(client *imapclient.Client) (string, error) {
	mailboxes, err := client.List("", "*", nil).Collect()
	if err != nil {
		return "", apperror.NewError("could not list mailboxes").AddError(err)
	}
	if len(mailboxes) == 0 {
		return "", apperror.NewError("account has no mailboxes")
	}
	if len(mailboxes) == 1 {
		return mailboxes[0].Mailbox, nil
	}

	var question strings.Builder
	question.WriteString("Several mailboxes found:\n")
	for i, mailbox := range mailboxes {
		fmt.Fprintf(&question, "  %d: %s\n", i+1, mailbox.Mailbox)
	}
	question.WriteString("Which one holds the reports? [1]")

	answer, err := c.prompter.Ask(question.String())
	if err != nil {
		return "", apperror.Wrap(err)
	}
	choice, err := parseMailboxChoice(answer, len(mailboxes))
	if err != nil {
		return "", err
	}
	return mailboxes[choice-1].Mailbox, nil
}

// parseMailboxChoice turns the operator's answer into a 1-based index.
// An empty answer selects the first mailbox.
func parseMailboxChoice(answer string, count int) (int, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return 1, nil
	}
	choice, err := strconv.Atoi(answer)
	if err != nil {
		return 0, apperror.NewErrorf("invalid mailbox choice %q", answer)
	}
	if choice < 1 || choice > count {
		return 0, apperror.NewErrorf("mailbox choice %d out of range", choice)
	}
	return choice, nil
}

func (c *Collector) logout(client *imapclient.Client) error {
	if err := client.Logout().Wait(); err != nil {
		return apperror.NewError("logout failed").AddError(err)
	}
	return nil
}

type stdinPrompter struct{}

func (p *stdinPrompter) Confirm(question string) (bool, error) {
	fmt.Println(question + " [y/N]")
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, apperror.Wrap(err)
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

func (p *stdinPrompter) Ask(question string) (string, error) {
	fmt.Println(question)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", apperror.Wrap(err)
	}
	return strings.TrimSpace(answer), nil
}
