package crawl

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jfsok/bidwatch/internal/models"
)

// State is the crawl session's explicit lifecycle state.
type State int

const (
	StateIdle State = iota
	StateSearching
	StatePaginating
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSearching:
		return "searching"
	case StatePaginating:
		return "paginating"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var pageStatsRe = regexp.MustCompile(`共(\d+)条记录\s+(\d+)/(\d+)页`)

// Session drives one paginated search over the bidding-notice site. All crawl
// state lives here and is threaded through the calls; there are no package
// globals. A Session is single-use: one Search per Session.
type Session struct {
	browser  Browser
	cfg      BiddingSourceConfig
	throttle *Throttle
	state    State
}

func NewSession(browser Browser, cfg BiddingSourceConfig) *Session {
	return &Session{
		browser:  browser,
		cfg:      cfg,
		throttle: NewThrottle(cfg.Throttle),
	}
}

// State reports the session's current lifecycle state.
func (s *Session) State() State { return s.state }

// Close releases the browsing context. Safe on every exit path; callers
// defer it right after NewSession.
func (s *Session) Close() error {
	return s.browser.Close()
}

// Search runs the full crawl: submit the keyword with the fixed category
// filter, follow the result popup, then walk result pages oldest-page-last,
// collecting notice summaries until the stop date, a disabled next-page
// control, or the page limit — whichever comes first. endDate is a
// YYYY-MM-DD cutoff; items published before it (and everything after them)
// are discarded. An empty endDate disables the cutoff.
//
// On a mid-crawl parse error the summaries collected so far are returned
// together with the error, so a fallback snapshot can still be written.
func (s *Session) Search(ctx context.Context, keyword, endDate string) ([]models.NoticeSummary, error) {
	if s.state != StateIdle {
		return nil, fmt.Errorf("session already used (state %s)", s.state)
	}

	var cutoff time.Time
	if endDate != "" {
		var err error
		cutoff, err = time.Parse("2006-01-02", endDate)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadDate, endDate)
		}
	}

	maxPages := s.cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}

	s.state = StateSearching
	if err := s.browser.Navigate(ctx, s.cfg.QueryURL); err != nil {
		return nil, fmt.Errorf("open query page: %w", err)
	}
	if err := s.browser.Fill(ctx, s.cfg.Controls.KeywordInput, keyword); err != nil {
		return nil, fmt.Errorf("fill keyword: %w", err)
	}
	if err := s.browser.Select(ctx, s.cfg.Controls.TypeSelect, s.cfg.CategoryType); err != nil {
		return nil, fmt.Errorf("select category: %w", err)
	}
	if err := s.browser.SubmitExpectPopup(ctx, s.cfg.Controls.SearchButton); err != nil {
		return nil, fmt.Errorf("submit search: %w", err)
	}
	if err := s.browser.WaitVisible(ctx, s.cfg.Selectors.Container); err != nil {
		return nil, fmt.Errorf("result list: %w", err)
	}

	if title, err := s.browser.Title(ctx); err == nil {
		pageURL, _ := s.browser.URL(ctx)
		log.Printf("Result page: %s (%s)", title, pageURL)
	}

	html, err := s.browser.Content(ctx)
	if err != nil {
		return nil, err
	}
	if m := pageStatsRe.FindStringSubmatch(html); m != nil {
		log.Printf("Search stats: %s records, page %s/%s", m[1], m[2], m[3])
	}

	s.state = StatePaginating
	var notices []models.NoticeSummary

	for page := 1; ; page++ {
		log.Printf("Parsing result page %d", page)
		items, stopped, err := s.parseListPage(html, cutoff)
		if err != nil {
			return notices, fmt.Errorf("page %d: %w", page, err)
		}
		notices = append(notices, items...)

		if stopped {
			log.Printf("Reached cutoff date %s, stopping", endDate)
			break
		}

		nextURL, disabled := s.nextPageLink(html)
		if disabled {
			log.Printf("All result pages processed")
			break
		}
		if page >= maxPages {
			log.Printf("Page limit %d reached", maxPages)
			break
		}

		if err := s.throttle.Wait(ctx); err != nil {
			return notices, err
		}
		if err := s.browser.Navigate(ctx, nextURL); err != nil {
			return notices, fmt.Errorf("page %d: %w", page+1, err)
		}
		if err := s.browser.WaitVisible(ctx, s.cfg.Selectors.Container); err != nil {
			return notices, fmt.Errorf("page %d: %w", page+1, err)
		}
		if html, err = s.browser.Content(ctx); err != nil {
			return notices, err
		}
	}

	s.state = StateStopped
	return notices, nil
}

// parseListPage extracts the notice summaries of one result page in page
// order. When an item's publish date falls before the cutoff, that item and
// every later item on the page are discarded and stopped is true.
func (s *Session) parseListPage(html string, cutoff time.Time) ([]models.NoticeSummary, bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrContainerMissing, err)
	}

	container := doc.Find(s.cfg.Selectors.Container).First()
	if container.Length() == 0 {
		return nil, false, fmt.Errorf("%w: %s", ErrContainerMissing, s.cfg.Selectors.Container)
	}

	var items []models.NoticeSummary
	var stopped bool
	var parseErr error

	container.Find(s.cfg.Selectors.Item).EachWithBreak(func(_ int, li *goquery.Selection) bool {
		links := li.Find("a")
		if links.Length() < 3 {
			return true
		}

		dateText := strings.TrimSpace(li.Find(s.cfg.Selectors.Date).First().Text())
		published, err := time.Parse("2006-01-02", dateText)
		if err != nil {
			parseErr = fmt.Errorf("%w: %q", ErrBadDate, dateText)
			return false
		}

		if !cutoff.IsZero() && published.Before(cutoff) {
			stopped = true
			return false
		}

		project := links.Eq(2)
		href, _ := project.Attr("href")
		fullURL, err := resolveURL(s.cfg.BaseURL, href)
		if err != nil {
			parseErr = fmt.Errorf("bad notice link %q: %w", href, err)
			return false
		}

		items = append(items, models.NoticeSummary{
			Type:         strings.TrimSpace(links.Eq(0).Text()),
			IssuingParty: strings.TrimSpace(links.Eq(1).Text()),
			Project:      strings.TrimSpace(project.Text()),
			PublishDate:  dateText,
			URL:          fullURL,
		})
		return true
	})

	if parseErr != nil {
		return nil, false, parseErr
	}
	return items, stopped, nil
}

// nextPageLink finds the next-page control by its text. A control carrying a
// disabled attribute, pointing nowhere, or absent altogether ends pagination.
func (s *Session) nextPageLink(html string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", true
	}

	label := s.cfg.Selectors.NextPage
	var href string
	disabled := true

	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if strings.TrimSpace(a.Text()) != label {
			return true
		}
		if _, ok := a.Attr("disabled"); ok {
			return false
		}
		href, _ = a.Attr("href")
		disabled = href == ""
		return false
	})

	if disabled {
		return "", true
	}

	full, err := resolveURL(s.cfg.BaseURL, href)
	if err != nil {
		return "", true
	}
	return full, false
}
