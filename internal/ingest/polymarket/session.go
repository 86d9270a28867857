package polymarket

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/fortuna/moneta/internal/game"
	"github.com/sirupsen/logrus"
)

const (
	// GamesURL lists the day's NBA games
	GamesURL = "https://polymarket.com/sports/nba/games"

	// UserAgent for the browser session
	UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// ChartSelector is the chart container captured in screenshots
	ChartSelector = `div[class*='chart']`

	// ChartSVGSelector appears once the chart has drawn its series
	ChartSVGSelector = `svg.overflow-visible`
)

// SessionConfig holds browser and wait settings
type SessionConfig struct {
	GamesURL        string
	Headless        bool
	Width           int
	Height          int
	PageLoadTimeout time.Duration
	NetworkIdle     time.Duration
	GraphRenderWait time.Duration
}

// DefaultSessionConfig mirrors the production settings
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		GamesURL:        GamesURL,
		Headless:        true,
		Width:           1920,
		Height:          1080,
		PageLoadTimeout: 60 * time.Second,
		NetworkIdle:     30 * time.Second,
		GraphRenderWait: 3 * time.Second,
	}
}

// Session drives one browser tab for a whole run.
// It is not safe for concurrent use.
type Session struct {
	config SessionConfig
	logger *logrus.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewSession launches the browser. A failure here is fatal for the run.
func NewSession(config SessionConfig, logger *logrus.Logger) (*Session, error) {
	if config.GamesURL == "" {
		config.GamesURL = GamesURL
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(config.Width, config.Height),
		chromedp.UserAgent(UserAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		config:        config,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}

	// First Run starts the browser process
	if err := chromedp.Run(browserCtx, chromedp.EmulateViewport(int64(config.Width), int64(config.Height))); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	logger.WithField("headless", config.Headless).Info("✓ Browser session started")
	return s, nil
}

// Close releases the browser
func (s *Session) Close() {
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
}

// run executes actions on the tab with a bounded wait. The caller's ctx
// also cancels the step. Deadline errors become ErrNavigationTimeout.
func (s *Session) run(ctx context.Context, step string, timeout time.Duration, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(stepCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s after %v", game.ErrNavigationTimeout, step, timeout)
		}
		return fmt.Errorf("%s: %w", step, err)
	}
	return nil
}

// ListGames loads the games page and parses every game row on it
func (s *Session) ListGames(ctx context.Context) ([]RawGame, error) {
	if err := s.openGamesList(ctx); err != nil {
		return nil, err
	}

	html, err := s.HTML(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := ParseHTML(html)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", game.ErrExtraction, err)
	}

	rows := ParseGameRows(doc)
	s.logger.WithField("games", len(rows)).Info("Parsed games list")
	return rows, nil
}

func (s *Session) openGamesList(ctx context.Context) error {
	return s.run(ctx, "load games list", s.config.PageLoadTimeout,
		chromedp.Navigate(s.config.GamesURL),
		chromedp.WaitVisible(gameViewXPath(1), chromedp.BySearch),
		chromedp.Sleep(2*time.Second),
	)
}

// OpenFromList clicks the index-th "Game View" link and returns the game
// page URL. The games list is reloaded if the tab has moved away from it.
func (s *Session) OpenFromList(ctx context.Context, index int) (string, error) {
	location, err := s.Location(ctx)
	if err != nil || !strings.HasPrefix(location, s.config.GamesURL) {
		if err := s.openGamesList(ctx); err != nil {
			return "", err
		}
	}

	sel := gameViewXPath(index + 1)
	if err := s.requirePresent(ctx, sel); err != nil {
		return "", err
	}

	err = s.run(ctx, "open game view", s.config.NetworkIdle,
		chromedp.Click(sel, chromedp.BySearch),
		chromedp.WaitVisible(`body`, chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
	)
	if err != nil {
		return "", err
	}

	return s.Location(ctx)
}

// OpenURL navigates straight to a stored game page
func (s *Session) OpenURL(ctx context.Context, url string) error {
	return s.run(ctx, "open game url", s.config.PageLoadTimeout,
		chromedp.Navigate(url),
		chromedp.WaitVisible(`body`, chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
	)
}

// ClickText clicks the first element whose own text is exactly text
func (s *Session) ClickText(ctx context.Context, text string) error {
	sel := fmt.Sprintf(`(//*[normalize-space(text())='%s'])[1]`, text)
	if err := s.requirePresent(ctx, sel); err != nil {
		return err
	}
	return s.run(ctx, "click "+text, s.config.NetworkIdle,
		chromedp.Click(sel, chromedp.BySearch),
		chromedp.Sleep(1*time.Second),
	)
}

// WaitForChart blocks until the chart container and its SVG have rendered
func (s *Session) WaitForChart(ctx context.Context) error {
	return s.run(ctx, "wait for chart", s.config.PageLoadTimeout,
		chromedp.WaitVisible(ChartSelector, chromedp.ByQuery),
		chromedp.WaitReady(ChartSVGSelector, chromedp.ByQuery),
		chromedp.Sleep(s.config.GraphRenderWait),
	)
}

// ScreenshotChart writes a PNG of the chart element to path
func (s *Session) ScreenshotChart(ctx context.Context, path string) error {
	var buf []byte
	err := s.run(ctx, "screenshot chart", s.config.NetworkIdle,
		chromedp.ScrollIntoView(ChartSelector, chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Screenshot(ChartSelector, &buf, chromedp.NodeVisible, chromedp.ByQuery),
	)
	if err != nil {
		return err
	}
	if len(buf) == 0 {
		return fmt.Errorf("%w: empty chart screenshot", game.ErrExtraction)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	return nil
}

// HTML snapshots the current page
func (s *Session) HTML(ctx context.Context) (string, error) {
	var htmlContent string
	if err := s.run(ctx, "read page html", s.config.NetworkIdle,
		chromedp.OuterHTML(`html`, &htmlContent, chromedp.ByQuery),
	); err != nil {
		return "", err
	}
	if htmlContent == "" {
		return "", fmt.Errorf("%w: empty HTML content returned", game.ErrExtraction)
	}
	return htmlContent, nil
}

// Location returns the current page URL
func (s *Session) Location(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, "read location", 5*time.Second, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// requirePresent fails fast with ErrExtraction when nothing matches sel,
// instead of waiting out the click timeout
func (s *Session) requirePresent(ctx context.Context, sel string) error {
	var nodes []*cdp.Node
	if err := s.run(ctx, "query "+sel, 5*time.Second,
		chromedp.Nodes(sel, &nodes, chromedp.BySearch, chromedp.AtLeast(0)),
	); err != nil {
		return err
	}
	if len(nodes) == 0 {
		return fmt.Errorf("%w: no element matches %s", game.ErrExtraction, sel)
	}
	return nil
}

func gameViewXPath(position int) string {
	return fmt.Sprintf(`(//*[normalize-space(text())='%s'])[%d]`, GameViewText, position)
}

// ScreenshotPath names a chart capture {dir}/{date}/{home}_{away}_{stamp}.png
func ScreenshotPath(dir string, g game.Identity, capturedAt time.Time) string {
	name := fmt.Sprintf("%s_%s_%s.png", g.Home, g.Away, capturedAt.Format("20060102_150405"))
	return filepath.Join(dir, g.Date, name)
}
