package app

import (
	"context"
	"fmt"

	"github.com/upb/api-gateway/access"
	"github.com/upb/api-gateway/config"
	"github.com/upb/api-gateway/jwtauth"
	"github.com/upb/api-gateway/metrics"
	"github.com/upb/api-gateway/middleware"
	"github.com/upb/api-gateway/proxy"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Token verification
	Keys      *jwtauth.KeyStore
	Verifier  *jwtauth.Verifier
	Extractor *jwtauth.Extractor

	// Access decision
	Classifier   *access.Classifier
	AccessFilter *middleware.AccessFilter

	// Upstreams
	Upstreams *proxy.Router
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	// Initialize token verification
	if err := deps.initAuth(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	// Initialize route classifier and access filter
	deps.initAccess(cfg)

	// Initialize upstream routing
	deps.initUpstreams(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initAuth loads the signing key and builds the verifier and extractor
func (d *Dependencies) initAuth(cfg *config.Config) error {
	key, err := cfg.JWT.LoadSigningKey()
	if err != nil {
		return err
	}

	keys, err := jwtauth.NewKeyStore(key)
	if err != nil {
		return err
	}

	d.Keys = keys
	d.Verifier = jwtauth.NewVerifier(keys)
	d.Extractor = jwtauth.NewExtractor(cfg.JWT.ExtractorConfig())

	d.Logger.Info("token verification initialized",
		zap.String("algorithm", key.Algorithm()),
		zap.Bool("key_from_file", cfg.JWT.SigningKeyFile != ""),
		zap.Duration("clock_skew", cfg.JWT.ClockSkew),
		zap.String("authorities_claim", cfg.JWT.AuthoritiesClaim))
	return nil
}

// initAccess builds the classifier and the filter around it
func (d *Dependencies) initAccess(cfg *config.Config) {
	d.Classifier = access.NewClassifier(cfg.Gateway.RouteRules)
	d.AccessFilter = middleware.NewAccessFilter(d.Classifier, d.Verifier, d.Extractor, d.Logger)

	for _, rule := range d.Classifier.Rules() {
		d.Logger.Debug("route rule", zap.String("rule", rule.String()))
	}
	d.Logger.Info("access filter initialized",
		zap.Int("route_rules", len(cfg.Gateway.RouteRules)))
}

// initUpstreams builds the reverse proxy table
func (d *Dependencies) initUpstreams(cfg *config.Config) {
	d.Upstreams = proxy.NewRouter(cfg.Gateway.Upstreams, d.Logger)

	for _, route := range cfg.Gateway.Upstreams {
		d.Logger.Info("upstream registered",
			zap.String("prefix", route.Prefix),
			zap.String("target", route.Target.String()))
	}
	if d.Upstreams.Count() == 0 {
		d.Logger.Warn("no upstreams configured")
	}
}

// ReloadSigningKey re-reads the key material and swaps it in. On failure the
// current key stays in place.
func (d *Dependencies) ReloadSigningKey() error {
	key, err := d.Config.JWT.LoadSigningKey()
	if err == nil {
		err = d.Keys.Rotate(key)
	}
	metrics.RecordKeyRotation(err == nil)

	if err != nil {
		d.Logger.Error("signing key reload failed, keeping current key", zap.Error(err))
		return fmt.Errorf("failed to reload signing key: %w", err)
	}

	d.Logger.Info("signing key rotated", zap.String("algorithm", key.Algorithm()))
	return nil
}

// KeyLoaded reports whether a verification key is in place
func (d *Dependencies) KeyLoaded() bool {
	return d.Keys != nil && d.Keys.Current() != nil
}

// UpstreamCount returns the number of configured upstreams
func (d *Dependencies) UpstreamCount() int {
	if d.Upstreams == nil {
		return 0
	}
	return d.Upstreams.Count()
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return nil
}
