package operations

import (
	"context"
	"fmt"

	"github.com/juju/clock"

	"github.com/kebairia/cloudbak/internal/config"
	"github.com/kebairia/cloudbak/internal/download"
	"github.com/kebairia/cloudbak/internal/export"
	"github.com/kebairia/cloudbak/internal/location"
	"github.com/kebairia/cloudbak/internal/logger"
	"github.com/kebairia/cloudbak/internal/session"
	"github.com/kebairia/cloudbak/internal/upload"
	"github.com/kebairia/cloudbak/internal/vault"
)

// Sink receives a finished archive.
type Sink interface {
	Upload(ctx context.Context, path, bucket, object string) (upload.Result, error)
}

// OperationManager runs backups for one site.
type OperationManager struct {
	cfg     *config.Config
	log     logger.Logger
	clock   clock.Clock
	session *session.Session
	records *location.Store
	sink    Sink
}

// Option customizes an OperationManager.
type Option func(*OperationManager)

// WithClock replaces the wall clock.
func WithClock(clk clock.Clock) Option {
	return func(om *OperationManager) { om.clock = clk }
}

// WithLogger replaces the global logger.
func WithLogger(log logger.Logger) Option {
	return func(om *OperationManager) { om.log = log }
}

// WithSink replaces the blob storage sink.
func WithSink(sink Sink) Option {
	return func(om *OperationManager) { om.sink = sink }
}

// NewOperationManager validates cfg, completes the credentials from Vault when configured,
// and opens the session shared by every request of the run.
func NewOperationManager(ctx context.Context, cfg *config.Config, opts ...Option) (*OperationManager, error) {
	om := &OperationManager{
		cfg:   cfg,
		log:   logger.Global(),
		clock: clock.WallClock,
	}
	for _, opt := range opts {
		opt(om)
	}
	if om.sink == nil {
		om.sink = upload.NewBlobSink(om.log)
	}

	if cfg.UsesVault() {
		if err := om.loadVaultCredentials(ctx); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Username == "" || cfg.Token == "" {
		return nil, fmt.Errorf("%w: no credentials for %s", config.ErrValidateConfig, cfg.Site)
	}

	om.session = session.New(session.Options{
		Username: cfg.Username,
		Token:    cfg.Token,
		Timeout:  cfg.Poll.RequestTimeout,
	})
	om.records = location.NewStore(cfg.Backup.StateDir,
		location.WithFileName(string(export.Confluence), cfg.Records.Confluence),
		location.WithFileName(string(export.Jira), cfg.Records.Jira),
	)
	return om, nil
}

// loadVaultCredentials fills whichever credential the configuration left empty.
func (om *OperationManager) loadVaultCredentials(ctx context.Context) error {
	vaultOpts := []vault.Option{vault.WithAddress(om.cfg.Vault.Address)}
	if om.cfg.Vault.ApproleID != "" {
		vaultOpts = append(vaultOpts, vault.WithAppRole(om.cfg.Vault.ApproleID, om.cfg.Vault.ApproleName))
	}
	client, err := vault.NewClient(ctx, vaultOpts...)
	if err != nil {
		return fmt.Errorf("vault client init: %w", err)
	}
	creds, err := client.ReadCredentials(ctx, om.cfg.Vault.SecretPath)
	if err != nil {
		return fmt.Errorf("read credentials from vault: %w", err)
	}
	if om.cfg.Username == "" {
		om.cfg.Username = creds.Username
	}
	if om.cfg.Token == "" {
		om.cfg.Token = creds.Token
	}
	om.log.Debug("credentials loaded from vault", "path", om.cfg.Vault.SecretPath)
	return nil
}

// engine builds the lifecycle engine for service.
func (om *OperationManager) engine(service export.Service, runID string) (*export.Engine, error) {
	adapter, err := export.ForService(service, export.SiteURL(om.cfg.Site, om.cfg.BaseURL), export.PollOptions{
		WikiInterval:    om.cfg.Poll.WikiInterval,
		TrackerSchedule: om.cfg.Poll.TrackerSchedule,
	})
	if err != nil {
		return nil, err
	}
	return export.NewEngine(adapter, om.session, om.records,
		export.WithClock(om.clock),
		export.WithLogger(om.log),
		export.WithSession(runID),
	), nil
}

func (om *OperationManager) downloader() *download.Manager {
	return download.NewManager(om.session, om.clock, om.log, download.Options{
		ChunkSize: om.cfg.Download.ChunkSize,
	})
}
