// Package batch renders a mailing for many recipients concurrently.
// Failures are collected per recipient and never abort the batch.
package batch

import (
	"context"
	"runtime"

	"github.com/valentin-kaiser/go-core/apperror"
	"github.com/valentin-kaiser/go-core/logging"
	"github.com/cloudmailing/cloudmailing/mailer"
	"github.com/cloudmailing/cloudmailing/mailing"
	"golang.org/x/sync/errgroup"
)

var logger = logging.GetPackageLogger("batch")

// Result is the outcome of one recipient's render. Either Path or Err is
// set, never both.
type Result struct {
	MailingID   uint
	RecipientID string
	Path        string
	Err         error
}

// Renderer renders mailings recipient by recipient with a bounded number
// of workers.
type Renderer struct {
	workers       int
	tempPath      string
	clickTracking bool
}

// NewRenderer creates a renderer with one worker per CPU.
func NewRenderer() *Renderer {
	return &Renderer{workers: runtime.NumCPU()}
}

// WithWorkers limits the number of concurrent renders.
func (r *Renderer) WithWorkers(n int) *Renderer {
	if n > 0 {
		r.workers = n
	}
	return r
}

// WithTempPath sets the directory rendered messages are written to.
func (r *Renderer) WithTempPath(path string) *Renderer {
	r.tempPath = path
	return r
}

// WithClickTracking enables link rewriting for all rendered recipients.
func (r *Renderer) WithClickTracking(enabled bool) *Renderer {
	r.clickTracking = enabled
	return r
}

// RenderMailing renders the mailing for every recipient. The template is
// parsed once and shared across workers. The returned slice has one entry
// per recipient in input order; recipients whose render failed carry the
// error in their entry. RenderMailing itself only fails when the template
// cannot be parsed or the context is cancelled.
func (r *Renderer) RenderMailing(ctx context.Context, m *mailing.Mailing, recipients []mailing.Recipient) ([]Result, error) {
	tpl, err := mailer.ParseTemplate([]byte(m.Header), []byte(m.Body))
	if err != nil {
		return nil, apperror.NewErrorf("could not parse template of mailing %d", m.ID).AddError(err)
	}

	results := make([]Result, len(recipients))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(r.workers)

	for i := range recipients {
		recipient := &recipients[i]
		results[i] = Result{MailingID: m.ID, RecipientID: recipient.ID}

		index := i
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			customizer := mailer.NewCustomizer(m, recipient).WithClickTracking(r.clickTracking)
			if r.tempPath != "" {
				customizer = customizer.WithTempPath(r.tempPath)
			}

			path, err := customizer.RunWith(tpl)
			if err != nil {
				logger.Warn().
					Field("mailing", m.ID).
					Field("recipient", recipient.ID).
					Err(err).
					Msg("recipient render failed")
				results[index].Err = err
				return nil
			}
			results[index].Path = path
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, apperror.Wrap(err)
	}
	return results, nil
}
