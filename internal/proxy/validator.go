package proxy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/news-harvester/internal/harvest"
	"github.com/JakeFAU/news-harvester/internal/metrics"
	"github.com/JakeFAU/news-harvester/internal/portal"
)

// Prober checks whether a proxy can reach the portal.
type Prober interface {
	Probe(ctx context.Context, p harvest.Proxy) error
}

// PortalProber probes with a minimal search for one publisher on one day.
type PortalProber struct {
	Config portal.Config
	Day    time.Time
	Code   string
	Logger *zap.Logger
}

// Probe builds a client bound to p and runs the probe search through it.
func (pp PortalProber) Probe(ctx context.Context, p harvest.Proxy) error {
	client, err := portal.New(pp.Config, p, pp.Logger)
	if err != nil {
		return err
	}
	return client.Probe(ctx, pp.Day, pp.Code)
}

// Validator filters candidates down to the usable pool.
type Validator struct {
	blacklist *Blacklist
	prober    Prober
	logger    *zap.Logger
}

// NewValidator wires a Validator.
func NewValidator(blacklist *Blacklist, prober Prober, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{blacklist: blacklist, prober: prober, logger: logger.Named("proxy")}
}

// Validate probes every candidate not already blacklisted, in order, and
// returns the ones that answered with a 2xx. Failures are blacklisted.
// An empty result is harvest.ErrNoUsableProxy.
func (v *Validator) Validate(ctx context.Context, candidates []harvest.Proxy) ([]harvest.Proxy, error) {
	seen := make(map[harvest.Proxy]struct{}, len(candidates))
	var valid []harvest.Proxy
	for _, raw := range candidates {
		p := normalize(raw)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		log := v.logger.With(zap.String("proxy", p.Redacted()))

		listed, err := v.blacklist.Contains(p)
		if err != nil {
			return nil, fmt.Errorf("check blacklist: %w", err)
		}
		if listed {
			log.Debug("proxy already blacklisted")
			metrics.ObserveProxyCheck(string(harvest.ProxyBlacklisted))
			continue
		}

		err = v.prober.Probe(ctx, p)
		if err == nil {
			log.Info("proxy valid")
			metrics.ObserveProxyCheck(string(harvest.ProxyValid))
			valid = append(valid, p)
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("validate proxies: %w", ctxErr)
		}
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("validate proxies: %w", err)
		}
		log.Warn("proxy failed probe; blacklisting", zap.Error(err))
		metrics.ObserveProxyCheck("failed")
		if err := v.blacklist.Add(ctx, p); err != nil {
			return nil, fmt.Errorf("blacklist %s: %w", p.Redacted(), err)
		}
	}

	if len(valid) == 0 {
		return nil, harvest.ErrNoUsableProxy
	}
	v.logger.Info("proxy pool ready", zap.Int("valid", len(valid)), zap.Int("candidates", len(seen)))
	return valid, nil
}
