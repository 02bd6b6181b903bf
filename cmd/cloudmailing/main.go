package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/valentin-kaiser/go-core/apperror"
	"github.com/valentin-kaiser/go-core/config"
	"github.com/valentin-kaiser/go-core/flag"
	"github.com/valentin-kaiser/go-core/logging"
	"github.com/cloudmailing/cloudmailing/batch"
	"github.com/cloudmailing/cloudmailing/database"
	"github.com/cloudmailing/cloudmailing/mailing"
	"github.com/cloudmailing/cloudmailing/reports"
	"github.com/cloudmailing/cloudmailing/web"
	"github.com/rs/zerolog"
)

var logger = logging.GetPackageLogger("cloudmailing")

var (
	collectReports bool
	renderMailing  uint
)

// AppConfig is the root configuration of the service.
type AppConfig struct {
	Web      web.Config
	Database database.Config
	Mailer   MailerConfig
	Reports  ReportsConfig
}

// MailerConfig holds the rendering settings.
type MailerConfig struct {
	TempPath      string `usage:"Directory rendered messages are written to"`
	Workers       int    `usage:"Number of concurrent recipient renders"`
	ClickTracking bool   `usage:"Rewrite HTML links through the tracking redirector"`
}

// ReportsConfig holds the IMAP account that receives delivery and
// feedback reports.
type ReportsConfig struct {
	Addr     string `usage:"Address of the IMAP server holding the reports, host:port"`
	Username string `usage:"IMAP username"`
	Password string `usage:"IMAP password"`
	TLS      bool   `usage:"Connect with implicit TLS"`
}

// Validate checks if the configuration is valid
func (c *AppConfig) Validate() error {
	if err := c.Web.Validate(); err != nil {
		return apperror.Wrap(err)
	}
	if err := c.Database.Validate(); err != nil {
		return apperror.Wrap(err)
	}
	if c.Mailer.Workers < 1 {
		return apperror.NewError("at least one render worker is required")
	}
	return nil
}

// Get returns the current application configuration.
func Get() *AppConfig {
	c, ok := config.Get().(*AppConfig)
	if !ok {
		return &AppConfig{}
	}
	return c
}

func main() {
	logging.SetGlobalAdapter(logging.NewZerologAdapter())

	defaults := &AppConfig{
		Web: web.Config{
			Host: "localhost",
			Port: 8080,
		},
		Database: database.Config{
			Driver: "sqlite",
			Name:   "cloudmailing.db",
		},
		Mailer: MailerConfig{
			TempPath: "./data/render",
			Workers:  4,
		},
	}

	if err := config.Manager().WithName("cloudmailing").Register(defaults); err != nil {
		logger.Fatal().Err(err).Msg("failed to register configuration")
	}

	flag.Register("collect-reports", &collectReports, "Collect reports from the configured IMAP mailbox and exit")
	flag.Register("render-mailing", &renderMailing, "Render all recipients of the given mailing id and exit")
	flag.Init()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if flag.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	config.OnChange(func(o config.Config, n config.Config) error {
		old, ok := o.(*AppConfig)
		if !ok {
			return nil
		}
		next, ok := n.(*AppConfig)
		if !ok {
			return nil
		}
		if old.Database.Changed(&next.Database) {
			logger.Warn().Msg("database settings changed, restart to reconnect")
		}
		return nil
	})

	if err := config.Read(); err != nil {
		logger.Fatal().Err(err).Msg("failed to read configuration")
	}
	if err := config.StartWatch(context.Background()); err != nil {
		logger.Error().Err(err).Msg("failed to watch configuration")
	}

	cfg := Get()

	db, err := database.Open(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	store := mailing.NewStore(db)
	if err := store.Migrate(); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	if renderMailing > 0 {
		runBatchRender(cfg, store, renderMailing)
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close store")
		}
		return
	}

	if collectReports {
		collector := reports.NewCollector(cfg.Reports.Addr, cfg.Reports.Username, cfg.Reports.Password).
			WithTLS(cfg.Reports.TLS).
			WithHandler(func(raw []byte, _ []uint) error {
				return store.SaveReport(&mailing.Report{Raw: raw})
			})
		if err := collector.Run(); err != nil {
			logger.Error().Err(err).Msg("report collection failed")
		}
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close store")
		}
		return
	}

	server := web.NewServer(&cfg.Web, store)
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("preview server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to stop preview server")
	}
	if err := store.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close store")
	}
}

func runBatchRender(cfg *AppConfig, store *mailing.Store, id uint) {
	m, err := store.Mailing(id)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load mailing")
		return
	}
	recipients, err := store.Recipients(id)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load recipients")
		return
	}

	renderer := batch.NewRenderer().
		WithWorkers(cfg.Mailer.Workers).
		WithTempPath(cfg.Mailer.TempPath).
		WithClickTracking(cfg.Mailer.ClickTracking)
	results, err := renderer.RenderMailing(context.Background(), m, recipients)
	if err != nil {
		logger.Error().Err(err).Msg("batch render failed")
		return
	}

	failed := 0
	for _, result := range results {
		if result.Err != nil {
			failed++
			logger.Warn().Field("recipient", result.RecipientID).Err(result.Err).Msg("recipient render failed")
		}
	}
	logger.Info().
		Field("mailing", id).
		Field("rendered", len(results)-failed).
		Field("failed", failed).
		Msg("batch render finished")
}
