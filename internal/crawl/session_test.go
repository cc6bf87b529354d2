package crawl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// fakeBrowser serves canned pages keyed by URL and records the interaction.
type fakeBrowser struct {
	pages      map[string]string
	resultURL  string
	current    string
	form       map[string]string
	selections map[string]string
	visits     []string
	closed     bool
}

func newFakeBrowser(resultURL string, pages map[string]string) *fakeBrowser {
	return &fakeBrowser{
		pages:      pages,
		resultURL:  resultURL,
		form:       map[string]string{},
		selections: map[string]string{},
	}
}

func (b *fakeBrowser) Navigate(_ context.Context, pageURL string) error {
	if _, ok := b.pages[pageURL]; !ok {
		return fmt.Errorf("%w: %s", ErrNoticeUnavailable, pageURL)
	}
	b.current = pageURL
	b.visits = append(b.visits, pageURL)
	return nil
}

func (b *fakeBrowser) Fill(_ context.Context, selector, value string) error {
	b.form[selector] = value
	return nil
}

func (b *fakeBrowser) Select(_ context.Context, selector, value string) error {
	b.selections[selector] = value
	return nil
}

func (b *fakeBrowser) SubmitExpectPopup(ctx context.Context, _ string) error {
	return b.Navigate(ctx, b.resultURL)
}

func (b *fakeBrowser) WaitVisible(context.Context, string) error { return nil }

func (b *fakeBrowser) Content(context.Context) (string, error) { return b.pages[b.current], nil }

func (b *fakeBrowser) Title(context.Context) (string, error) { return "查询结果", nil }

func (b *fakeBrowser) URL(context.Context) (string, error) { return b.current, nil }

func (b *fakeBrowser) Close() error {
	b.closed = true
	return nil
}

func testConfig() BiddingSourceConfig {
	return BiddingSourceConfig{
		BaseURL:      "http://bid.example.com",
		QueryURL:     "http://bid.example.com/query",
		CategoryType: "1",
		MaxPages:     10,
		Controls: ControlConfig{
			KeywordInput: "#txtKey",
			TypeSelect:   "#types",
			SearchButton: "input.searchBtn",
		},
		Selectors: ListSelectorConfig{
			Container: "div.List2",
			Item:      "li",
			Date:      "span.date",
			NextPage:  "下一页",
		},
		Detail: DetailSelectorConfig{
			Title:   "h1.title",
			Date:    "div.date",
			Content: "div.content",
		},
	}
}

func listItem(typ, party, project, href, date string) string {
	return fmt.Sprintf(`<li><a>%s</a><a>%s</a><a href=%q>%s</a><span class="date">%s</span></li>`,
		typ, party, href, project, date)
}

func listPage(nextHref string, items ...string) string {
	page := `<div class="List2"><ul>` + strings.Join(items, "") + `</ul></div>`
	if nextHref != "" {
		page += fmt.Sprintf(`<a href=%q>下一页</a>`, nextHref)
	} else {
		page += `<a disabled>下一页</a>`
	}
	return page
}

func TestSearch_CollectsAcrossPages(t *testing.T) {
	cfg := testConfig()
	browser := newFakeBrowser("http://bid.example.com/results?page=1", map[string]string{
		cfg.QueryURL: `<form><input id="txtKey"><select id="types"></select></form>`,
		"http://bid.example.com/results?page=1": listPage("/results?page=2",
			listItem("中标公示", "广州局", "数据中心改造项目", "/notice/1.html", "2024-05-03"),
			listItem("中标公示", "广州局", "变电站扩建项目", "/notice/2.html", "2024-05-03"),
		),
		"http://bid.example.com/results?page=2": listPage("",
			listItem("中标公示", "深圳局", "输电线路检修项目", "/notice/3.html", "2024-05-02"),
		),
	})

	session := NewSession(browser, cfg)
	notices, err := session.Search(context.Background(), "数据中心", "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(notices) != 3 {
		t.Fatalf("expected 3 notices, got %d", len(notices))
	}
	if session.State() != StateStopped {
		t.Errorf("expected state stopped, got %s", session.State())
	}

	first := notices[0]
	if first.Type != "中标公示" || first.IssuingParty != "广州局" {
		t.Errorf("unexpected first notice: %+v", first)
	}
	if first.URL != "http://bid.example.com/notice/1.html" {
		t.Errorf("expected absolute notice URL, got %s", first.URL)
	}
	if first.PublishDate != "2024-05-03" {
		t.Errorf("unexpected publish date %s", first.PublishDate)
	}

	if got := browser.form["#txtKey"]; got != "数据中心" {
		t.Errorf("keyword not filled, got %q", got)
	}
	if got := browser.selections["#types"]; got != "1" {
		t.Errorf("category not selected, got %q", got)
	}
}

func TestSearch_StopsAtCutoffDate(t *testing.T) {
	cfg := testConfig()
	browser := newFakeBrowser("http://bid.example.com/results?page=1", map[string]string{
		cfg.QueryURL: "<form></form>",
		"http://bid.example.com/results?page=1": listPage("/results?page=2",
			listItem("中标公示", "广州局", "项目甲", "/notice/1.html", "2024-05-03"),
			listItem("中标公示", "广州局", "项目乙", "/notice/2.html", "2024-05-02"),
			listItem("中标公示", "广州局", "项目丙", "/notice/3.html", "2024-05-01"),
			listItem("中标公示", "广州局", "项目丁", "/notice/4.html", "2024-05-04"),
		),
		"http://bid.example.com/results?page=2": listPage("",
			listItem("中标公示", "深圳局", "项目戊", "/notice/5.html", "2024-04-30"),
		),
	})

	session := NewSession(browser, cfg)
	notices, err := session.Search(context.Background(), "项目", "2024-05-02")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	// 项目丙 falls before the cutoff: it and everything after it is
	// discarded, and the second page is never visited.
	if len(notices) != 2 {
		t.Fatalf("expected 2 notices, got %d: %+v", len(notices), notices)
	}
	if session.State() != StateStopped {
		t.Errorf("expected state stopped, got %s", session.State())
	}
	for _, visited := range browser.visits {
		if strings.Contains(visited, "page=2") {
			t.Errorf("second page should not be visited after cutoff")
		}
	}
}

func TestSearch_RejectsMalformedEndDate(t *testing.T) {
	browser := newFakeBrowser("", map[string]string{})
	session := NewSession(browser, testConfig())

	_, err := session.Search(context.Background(), "项目", "05/02/2024")
	if !errors.Is(err, ErrBadDate) {
		t.Fatalf("expected ErrBadDate, got %v", err)
	}
	if len(browser.visits) != 0 {
		t.Errorf("no page should be visited on a bad end date")
	}
}

func TestSearch_MalformedItemDateFailsPage(t *testing.T) {
	cfg := testConfig()
	browser := newFakeBrowser("http://bid.example.com/results", map[string]string{
		cfg.QueryURL: "<form></form>",
		"http://bid.example.com/results": listPage("",
			listItem("中标公示", "广州局", "项目甲", "/notice/1.html", "昨天"),
		),
	})

	session := NewSession(browser, cfg)
	_, err := session.Search(context.Background(), "项目", "2024-05-01")
	if !errors.Is(err, ErrBadDate) {
		t.Fatalf("expected ErrBadDate, got %v", err)
	}
}

func TestSearch_MissingContainer(t *testing.T) {
	cfg := testConfig()
	browser := newFakeBrowser("http://bid.example.com/results", map[string]string{
		cfg.QueryURL:                     "<form></form>",
		"http://bid.example.com/results": `<div class="Other">layout changed</div>`,
	})

	session := NewSession(browser, cfg)
	_, err := session.Search(context.Background(), "项目", "")
	if !errors.Is(err, ErrContainerMissing) {
		t.Fatalf("expected ErrContainerMissing, got %v", err)
	}
}

func TestSearch_ItemsWithTooFewLinksAreSkipped(t *testing.T) {
	cfg := testConfig()
	browser := newFakeBrowser("http://bid.example.com/results", map[string]string{
		cfg.QueryURL: "<form></form>",
		"http://bid.example.com/results": listPage("",
			`<li><a>分页导航</a></li>`,
			listItem("中标公示", "广州局", "项目甲", "/notice/1.html", "2024-05-03"),
		),
	})

	session := NewSession(browser, cfg)
	notices, err := session.Search(context.Background(), "项目", "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(notices) != 1 {
		t.Fatalf("expected 1 notice, got %d", len(notices))
	}
}

func TestSearch_HonorsPageLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPages = 1
	browser := newFakeBrowser("http://bid.example.com/results?page=1", map[string]string{
		cfg.QueryURL: "<form></form>",
		"http://bid.example.com/results?page=1": listPage("/results?page=2",
			listItem("中标公示", "广州局", "项目甲", "/notice/1.html", "2024-05-03"),
		),
		"http://bid.example.com/results?page=2": listPage("",
			listItem("中标公示", "深圳局", "项目乙", "/notice/2.html", "2024-05-02"),
		),
	})

	session := NewSession(browser, cfg)
	notices, err := session.Search(context.Background(), "项目", "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(notices) != 1 {
		t.Fatalf("expected 1 notice under page limit, got %d", len(notices))
	}
}

func TestSearch_SessionIsSingleUse(t *testing.T) {
	cfg := testConfig()
	browser := newFakeBrowser("http://bid.example.com/results", map[string]string{
		cfg.QueryURL:                     "<form></form>",
		"http://bid.example.com/results": listPage(""),
	})

	session := NewSession(browser, cfg)
	if _, err := session.Search(context.Background(), "项目", ""); err != nil {
		t.Fatalf("first Search: %v", err)
	}
	if _, err := session.Search(context.Background(), "项目", ""); err == nil {
		t.Fatal("second Search should fail")
	}
}

func TestSessionClose_ReleasesBrowser(t *testing.T) {
	browser := newFakeBrowser("", map[string]string{})
	session := NewSession(browser, testConfig())
	if err := session.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !browser.closed {
		t.Error("browser not closed")
	}
}
