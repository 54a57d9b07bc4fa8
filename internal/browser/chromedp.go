package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

type (
	// Chrome is a Factory backed by a shared headless Chrome process.
	// Each session gets its own tab
	Chrome struct {
		allocCtx context.Context
		cancel   context.CancelFunc
	}

	chromeSession struct {
		ctx    context.Context
		cancel context.CancelFunc

		mu     sync.Mutex
		errors []string
	}
)

// ErrURLPatternTimeout is reported when the page never reaches a URL
// matching the awaited pattern
var ErrURLPatternTimeout = errors.New("timed out waiting for url pattern")

var _ Factory = (*Chrome)(nil)

// NewChrome starts a headless Chrome allocator
func NewChrome(ctx context.Context) *Chrome {
	allocCtx, cancel := chromedp.NewExecAllocator(
		ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	return &Chrome{
		allocCtx: allocCtx,
		cancel:   cancel,
	}
}

// Close shuts the browser process down
func (c *Chrome) Close() {
	c.cancel()
}

// NewSession opens a fresh tab and starts collecting its page errors
func (c *Chrome) NewSession(context.Context) (Session, error) {
	tabCtx, cancel := chromedp.NewContext(c.allocCtx)
	s := &chromeSession{
		ctx:    tabCtx,
		cancel: cancel,
	}
	chromedp.ListenTarget(tabCtx, func(ev any) {
		if ex, ok := ev.(*runtime.EventExceptionThrown); ok {
			s.mu.Lock()
			s.errors = append(s.errors, ex.ExceptionDetails.Error())
			s.mu.Unlock()
		}
	})

	// Launch the tab eagerly so session failures surface here rather
	// than on the first step
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("starting browser session: %w", err)
	}
	return s, nil
}

func (s *chromeSession) Navigate(ctx context.Context, url string) (int, error) {
	runCtx, cancel := s.deadline(ctx)
	defer cancel()

	resp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(url))
	if err != nil {
		return 0, err
	}
	if resp == nil {
		// Same-document navigation carries no response
		return 200, nil
	}
	return int(resp.Status), nil
}

func (s *chromeSession) Click(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (s *chromeSession) Fill(ctx context.Context, selector, value string) error {
	return s.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, value, chromedp.ByQuery))
}

func (s *chromeSession) SelectOption(
	ctx context.Context, selector, value string,
) error {
	return s.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, value, chromedp.ByQuery))
}

func (s *chromeSession) Hover(ctx context.Context, selector string) error {
	script := fmt.Sprintf(
		`(() => {
			const el = document.querySelector(%q);
			if (!el) return false;
			el.dispatchEvent(new MouseEvent("mouseover", {bubbles: true}));
			return true;
		})()`, selector)
	found, err := s.Evaluate(ctx, script)
	if err != nil {
		return err
	}
	if found != true {
		return fmt.Errorf("no element matches selector %q", selector)
	}
	return nil
}

func (s *chromeSession) Press(ctx context.Context, selector, key string) error {
	return s.run(ctx, chromedp.SendKeys(selector, keyChord(key),
		chromedp.ByQuery))
}

func (s *chromeSession) WaitVisible(
	ctx context.Context, selector string,
) error {
	return s.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// WaitForURL polls the page location until it matches the pattern or the
// context deadline is reached
func (s *chromeSession) WaitForURL(ctx context.Context, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid url pattern %q: %w", pattern, err)
	}

	runCtx, cancel := s.deadline(ctx)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		var current string
		if err := chromedp.Run(
			runCtx, chromedp.Location(&current)); err != nil {
			return err
		}
		if re.MatchString(current) {
			return nil
		}
		select {
		case <-runCtx.Done():
			return fmt.Errorf("%w: %s (at %s)",
				ErrURLPatternTimeout, pattern, current)
		case <-ticker.C:
		}
	}
}

func (s *chromeSession) Location(ctx context.Context) (string, error) {
	var current string
	err := s.run(ctx, chromedp.Location(&current))
	return current, err
}

func (s *chromeSession) Text(
	ctx context.Context, selector string,
) (string, error) {
	var text string
	err := s.run(ctx, chromedp.Text(selector, &text, chromedp.ByQuery))
	return text, err
}

func (s *chromeSession) Visible(
	ctx context.Context, selector string,
) (bool, error) {
	script := fmt.Sprintf(
		`(() => {
			const el = document.querySelector(%q);
			if (!el) return false;
			const r = el.getBoundingClientRect();
			return r.width > 0 && r.height > 0;
		})()`, selector)
	v, err := s.Evaluate(ctx, script)
	if err != nil {
		return false, err
	}
	return v == true, nil
}

func (s *chromeSession) Evaluate(
	ctx context.Context, script string,
) (any, error) {
	runCtx, cancel := s.deadline(ctx)
	defer cancel()

	var result any
	err := chromedp.Run(runCtx, chromedp.Evaluate(script, &result))
	if err != nil {
		if errors.Is(err, chromedp.ErrJSUndefined) {
			return nil, nil
		}
		return nil, err
	}
	return result, nil
}

func (s *chromeSession) Screenshot(ctx context.Context) ([]byte, error) {
	runCtx, cancel := s.deadline(ctx)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(
		runCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *chromeSession) DrainPageErrors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	drained := s.errors
	s.errors = nil
	return drained
}

func (s *chromeSession) Close() error {
	s.cancel()
	return nil
}

func (s *chromeSession) run(
	ctx context.Context, actions ...chromedp.Action,
) error {
	runCtx, cancel := s.deadline(ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// deadline grafts the caller's deadline onto the tab context. chromedp
// actions must run on the context carrying the tab's session
func (s *chromeSession) deadline(
	ctx context.Context,
) (context.Context, context.CancelFunc) {
	if dl, ok := ctx.Deadline(); ok {
		return context.WithDeadline(s.ctx, dl)
	}
	return context.WithCancel(s.ctx)
}

func keyChord(key string) string {
	switch key {
	case "Enter":
		return kb.Enter
	case "Tab":
		return kb.Tab
	case "Escape":
		return kb.Escape
	case "Backspace":
		return kb.Backspace
	case "ArrowUp":
		return kb.ArrowUp
	case "ArrowDown":
		return kb.ArrowDown
	default:
		return key
	}
}
