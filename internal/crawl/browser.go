package crawl

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// Browser is the web-automation collaborator the crawl session drives. It
// models an interactive browsing context: navigation, form input, a submit
// that follows the popup window the target site opens, and access to the
// rendered page. Implementations must follow a newly opened context as the
// active one after SubmitExpectPopup.
type Browser interface {
	Navigate(ctx context.Context, pageURL string) error
	Fill(ctx context.Context, selector, value string) error
	Select(ctx context.Context, selector, value string) error
	SubmitExpectPopup(ctx context.Context, selector string) error
	WaitVisible(ctx context.Context, selector string) error
	Content(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	Close() error
}

// CollyBrowser emulates the interactive session over plain HTTP with colly:
// Fill and Select record form values from the current document, and
// SubmitExpectPopup replays them as the search form submission, following the
// result page the way a popup window would be followed. Rate limiting,
// retries, and charset detection come from the collector.
type CollyBrowser struct {
	collector *colly.Collector

	mu         sync.Mutex
	currentURL string
	html       string
	form       map[string]string
}

// CollyBrowserConfig mirrors the knobs the fetch layer exposes.
type CollyBrowserConfig struct {
	UserAgent      string
	RequestTimeout time.Duration
	DomainDelay    time.Duration
	MaxRetries     int
}

func NewCollyBrowser(cfg CollyBrowserConfig) *CollyBrowser {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.DomainDelay == 0 {
		cfg.DomainDelay = time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	c := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.DetectCharset(),
	)
	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       cfg.DomainDelay,
		RandomDelay: cfg.DomainDelay / 2,
	})
	c.SetRequestTimeout(cfg.RequestTimeout)

	b := &CollyBrowser{
		collector: c,
		form:      make(map[string]string),
	}

	c.OnResponse(func(r *colly.Response) {
		b.mu.Lock()
		b.currentURL = r.Request.URL.String()
		b.html = string(r.Body)
		b.mu.Unlock()
	})
	c.OnError(func(r *colly.Response, err error) {
		retries := 0
		if v := r.Request.Ctx.GetAny("retries"); v != nil {
			retries = v.(int)
		}
		if retries < cfg.MaxRetries {
			r.Request.Ctx.Put("retries", retries+1)
			time.Sleep(time.Duration(retries+1) * time.Second)
			r.Request.Retry()
		}
	})

	return b
}

func (b *CollyBrowser) Navigate(ctx context.Context, pageURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.collector.Visit(pageURL); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNoticeUnavailable, pageURL, err)
	}
	b.collector.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.currentURL == "" {
		return fmt.Errorf("%w: no response for %s", ErrNoticeUnavailable, pageURL)
	}
	return nil
}

// Fill records the value for the named form control found at selector.
func (b *CollyBrowser) Fill(ctx context.Context, selector, value string) error {
	return b.record(ctx, selector, value)
}

// Select records the chosen option value for the named select control.
func (b *CollyBrowser) Select(ctx context.Context, selector, value string) error {
	return b.record(ctx, selector, value)
}

func (b *CollyBrowser) record(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := b.document()
	if err != nil {
		return err
	}
	el := doc.Find(selector).First()
	if el.Length() == 0 {
		return fmt.Errorf("%w: %s", ErrContainerMissing, selector)
	}
	name, ok := el.Attr("name")
	if !ok {
		name, _ = el.Attr("id")
	}
	if name == "" {
		return fmt.Errorf("form control %s has neither name nor id", selector)
	}

	b.mu.Lock()
	b.form[name] = value
	b.mu.Unlock()
	return nil
}

// SubmitExpectPopup submits the form containing selector with the recorded
// values and makes the result page the active context.
func (b *CollyBrowser) SubmitExpectPopup(ctx context.Context, selector string) error {
	doc, err := b.document()
	if err != nil {
		return err
	}
	button := doc.Find(selector).First()
	if button.Length() == 0 {
		return fmt.Errorf("%w: %s", ErrContainerMissing, selector)
	}

	action := ""
	if form := button.Closest("form"); form.Length() > 0 {
		action, _ = form.Attr("action")
	}

	b.mu.Lock()
	base := b.currentURL
	values := url.Values{}
	for k, v := range b.form {
		values.Set(k, v)
	}
	b.mu.Unlock()

	target, err := resolveURL(base, action)
	if err != nil {
		return fmt.Errorf("bad form action %q: %w", action, err)
	}
	if encoded := values.Encode(); encoded != "" {
		if strings.Contains(target, "?") {
			target += "&" + encoded
		} else {
			target += "?" + encoded
		}
	}

	return b.Navigate(ctx, target)
}

// WaitVisible checks that the selector resolves in the current document.
// There is no script execution here, so presence in the markup stands in for
// visibility.
func (b *CollyBrowser) WaitVisible(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := b.document()
	if err != nil {
		return err
	}
	if doc.Find(selector).Length() == 0 {
		return fmt.Errorf("%w: %s", ErrContainerMissing, selector)
	}
	return nil
}

func (b *CollyBrowser) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.html, nil
}

func (b *CollyBrowser) Title(ctx context.Context) (string, error) {
	doc, err := b.document()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(doc.Find("title").First().Text()), nil
}

func (b *CollyBrowser) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentURL, nil
}

// Close releases the session. The HTTP-backed implementation has no browser
// process to tear down, but callers must still release on every exit path so
// a real automation backend can be swapped in.
func (b *CollyBrowser) Close() error {
	return nil
}

func (b *CollyBrowser) document() (*goquery.Document, error) {
	b.mu.Lock()
	html := b.html
	b.mu.Unlock()
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func resolveURL(base, ref string) (string, error) {
	if ref == "" {
		return base, nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(refURL).String(), nil
}
