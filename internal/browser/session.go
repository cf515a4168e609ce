// Package browser implements the SearchPage page object with chromedp
// against the live portal.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/openconvocatoria/seace-ingest/internal/seace"
)

// Config controls the browser sessions opened per job.
type Config struct {
	PortalURL         string
	UserAgent         string
	Headless          bool
	NavigationTimeout time.Duration
	StepTimeout       time.Duration
	SettleDelay       time.Duration
}

func (c Config) withDefaults() Config {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 45 * time.Second
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = 20 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 750 * time.Millisecond
	}
	return c
}

// Session owns one Chrome exec allocator. Each job gets its own tab via
// NewSearchPage; tabs are never shared across jobs.
type Session struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// NewSession creates the allocator shared by per-job browser contexts.
func NewSession(cfg Config, logger *zap.Logger) (*Session, error) {
	if cfg.PortalURL == "" {
		return nil, fmt.Errorf("portal url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Session{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// NewSearchPage opens a fresh browser context for one job.
func (s *Session) NewSearchPage(ctx context.Context) (seace.SearchPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	taskCtx, taskCancel := chromedp.NewContext(s.allocator)

	// Spin the browser up eagerly so a broken Chrome install fails the
	// job here instead of midway through form configuration.
	startCtx, cancel := context.WithTimeout(taskCtx, s.cfg.NavigationTimeout)
	defer cancel()
	if err := chromedp.Run(startCtx); err != nil {
		taskCancel()
		return nil, fmt.Errorf("start browser context: %w", err)
	}

	return &Page{
		ctx:    taskCtx,
		cancel: taskCancel,
		cfg:    s.cfg,
		logger: s.logger,
	}, nil
}

// Close cancels the allocator context.
func (s *Session) Close() {
	s.allocCancel()
}
