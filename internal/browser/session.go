package browser

import (
	"context"
	"errors"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// DefaultUserAgent is presented to the marketplace instead of the headless
// browser default, which is blocked outright.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var ErrSessionClosed = errors.New("browser session is closed")

// Session wraps one long-lived headless browser shared by every retrieval in
// the process. It is created by the composition root, started lazily on first
// page checkout (or eagerly via Start) and stopped exactly once at shutdown.
// Callers must bound their own concurrency; the session itself is not pooled.
type Session struct {
	userAgent string
	logger    *zap.Logger

	mu          sync.Mutex
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
	closed      bool
}

// NewSession creates an unstarted Session.
func NewSession(userAgent string, logger *zap.Logger) *Session {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Session{
		userAgent: userAgent,
		logger:    logger,
	}
}

// Start launches the browser process. Calling Start on a running session is a
// no-op so the composition root may start eagerly while retrievals still
// guard with lazy initialization.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked()
}

func (s *Session) startLocked() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.browserCtx != nil {
		return nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(s.userAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// Run an empty task so the browser process starts now and a launch
	// failure surfaces here instead of on the first request.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return err
	}

	s.allocCancel = allocCancel
	s.browserCtx = browserCtx
	s.cancel = cancel
	s.logger.Info("Browser session started")
	return nil
}

// NewPage checks out an isolated page (tab) under the shared browser. The
// returned context drives chromedp tasks for this request only; release must
// be called on every exit path and also fires when ctx is cancelled, so a
// disconnecting caller aborts the in-flight navigation.
func (s *Session) NewPage(ctx context.Context) (context.Context, context.CancelFunc, error) {
	s.mu.Lock()
	if err := s.startLocked(); err != nil {
		s.mu.Unlock()
		return nil, nil, err
	}
	browserCtx := s.browserCtx
	s.mu.Unlock()

	pageCtx, pageCancel := chromedp.NewContext(browserCtx)
	stop := context.AfterFunc(ctx, pageCancel)

	release := func() {
		stop()
		pageCancel()
	}
	return pageCtx, release, nil
}

// Running reports whether the browser process is up.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.browserCtx != nil && !s.closed
}

// Stop tears the browser down. The session cannot be restarted afterwards.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.logger.Info("Browser session stopped")
}
