package crawl

import "errors"

var (
	// ErrContainerMissing marks a page whose expected structure is absent.
	// It is distinguishable from an empty result set: the page parsed, but
	// the site layout no longer matches the configured selectors.
	ErrContainerMissing = errors.New("expected content container not found")

	// ErrBadDate marks a publish date that does not parse as YYYY-MM-DD.
	// The date-based stop rule must not run on malformed input.
	ErrBadDate = errors.New("publish date not in YYYY-MM-DD form")

	// ErrNoticeUnavailable marks a notice page that could not be loaded.
	// Per-item: callers skip the record and continue the batch.
	ErrNoticeUnavailable = errors.New("notice page unavailable")
)
