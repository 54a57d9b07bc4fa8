// Package browser abstracts the UI automation primitives the browser
// runner needs, with a chromedp-backed implementation for production use
package browser

import "context"

type (
	// Factory opens browser sessions. One session backs one run
	Factory interface {
		NewSession(ctx context.Context) (Session, error)
	}

	// Session is one isolated page context. Methods honor the deadline
	// of the context they are given. DrainPageErrors returns and clears
	// the JavaScript errors the page raised asynchronously since the
	// last call
	Session interface {
		Navigate(ctx context.Context, url string) (int, error)
		Click(ctx context.Context, selector string) error
		Fill(ctx context.Context, selector, value string) error
		SelectOption(ctx context.Context, selector, value string) error
		Hover(ctx context.Context, selector string) error
		Press(ctx context.Context, selector, key string) error
		WaitVisible(ctx context.Context, selector string) error
		WaitForURL(ctx context.Context, pattern string) error
		Location(ctx context.Context) (string, error)
		Text(ctx context.Context, selector string) (string, error)
		Visible(ctx context.Context, selector string) (bool, error)
		Evaluate(ctx context.Context, script string) (any, error)
		Screenshot(ctx context.Context) ([]byte, error)
		DrainPageErrors() []string
		Close() error
	}
)
