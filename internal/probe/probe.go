// Package probe performs the cheap pre-flight reachability check that
// runs before a browser session is spent on a job.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// Config controls collector behavior for the probe.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Prober issues a single GET against the portal and reports whether it
// answered with a usable status.
type Prober struct {
	cfg    Config
	logger *zap.Logger
}

// New builds a Prober.
func New(cfg Config, logger *zap.Logger) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{cfg: cfg, logger: logger}
}

// Check fetches the URL once. A non-2xx status or transport failure is
// returned as an error; callers treat that as "portal down, fail fast".
func (p *Prober) Check(ctx context.Context, url string) error {
	collector := colly.NewCollector(colly.Async(false))
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(p.cfg.Timeout)
	if p.cfg.UserAgent != "" {
		collector.UserAgent = p.cfg.UserAgent
	}

	var (
		status   int
		fetchErr error
	)
	collector.OnRequest(func(r *colly.Request) {
		if err := ctx.Err(); err != nil {
			r.Abort()
			fetchErr = err
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	start := time.Now()
	if err := collector.Visit(url); err != nil {
		if status != 0 {
			return fmt.Errorf("probe %s: status %d: %w", url, status, err)
		}
		return fmt.Errorf("probe %s: %w", url, err)
	}
	collector.Wait()

	if fetchErr != nil {
		return fmt.Errorf("probe %s: %w", url, fetchErr)
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("probe %s: unexpected status %d", url, status)
	}
	p.logger.Debug("portal probe ok",
		zap.String("url", url),
		zap.Int("status", status),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}
