// Package forum fetches the curated hot-post feed of a stock forum and
// hydrates article bodies through a bounded worker pool.
package forum

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/jfsok/bidwatch/internal/crawl"
	"github.com/jfsok/bidwatch/internal/models"
)

const defaultWorkers = 5

// Fetcher grabs the hot-post listing and the post bodies.
type Fetcher struct {
	cfg       crawl.ForumSourceConfig
	collector *colly.Collector
}

func NewFetcher(cfg crawl.ForumSourceConfig) *Fetcher {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.DetectCharset(),
	)
	c.SetRequestTimeout(10 * time.Second)
	return &Fetcher{cfg: cfg, collector: c}
}

// HotArticles fetches the curated listing, keeps only the posts sharing the
// most recent publish date, and hydrates their bodies concurrently.
func (f *Fetcher) HotArticles(ctx context.Context) ([]models.HotArticle, error) {
	html, err := f.get(ctx, f.cfg.HotURL)
	if err != nil {
		return nil, fmt.Errorf("hot listing: %w", err)
	}

	articles, err := f.parseListing(html)
	if err != nil {
		return nil, err
	}
	return f.fetchBodies(ctx, articles), nil
}

func (f *Fetcher) parseListing(html string) ([]models.HotArticle, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crawl.ErrContainerMissing, err)
	}

	var articles []models.HotArticle
	var maxDate string

	doc.Find(f.cfg.ListItem).Each(func(_ int, item *goquery.Selection) {
		info := item.Find(f.cfg.TitleLink).First()
		user := item.Find(f.cfg.UserLink).First()
		posted := strings.TrimSpace(item.Find(f.cfg.PostedAt).First().Text())
		date := strings.SplitN(posted, " ", 2)[0]

		if date >= maxDate {
			maxDate = date
		}

		href, _ := info.Attr("href")
		title, _ := info.Attr("title")
		articles = append(articles, models.HotArticle{
			UserName: strings.TrimSpace(user.Text()),
			Subject:  title,
			URL:      f.cfg.BaseURL + "/" + strings.TrimPrefix(href, "/"),
			Date:     date,
		})
	})

	// Only the most recent batch counts as "hot".
	fresh := articles[:0]
	for _, a := range articles {
		if a.Date == maxDate {
			fresh = append(fresh, a)
		}
	}
	return fresh, nil
}

// fetchBodies hydrates article content with a fixed pool of workers. Each
// failure is isolated: the article keeps an empty body and the batch always
// completes. Result order is not guaranteed to match fetch completion, only
// slice positions are stable.
func (f *Fetcher) fetchBodies(ctx context.Context, articles []models.HotArticle) []models.HotArticle {
	if len(articles) == 0 {
		return articles
	}

	workers := f.cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				content, err := f.readArticle(ctx, articles[i].URL)
				if err != nil {
					log.Printf("Article fetch failed for %s: %v", articles[i].URL, err)
					content = ""
				}
				articles[i].Content = content
			}
		}()
	}

	for i := range articles {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return articles
}

func (f *Fetcher) readArticle(ctx context.Context, url string) (string, error) {
	html, err := f.get(ctx, url)
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	body := doc.Find(f.cfg.ArticleBody).First()
	if body.Length() == 0 {
		return "", fmt.Errorf("%w: %s", crawl.ErrContainerMissing, f.cfg.ArticleBody)
	}

	// Drop content hidden from readers before extracting text.
	body.Find(`[style*="display:none"]`).Remove()

	return strings.TrimSpace(body.Text()), nil
}

func (f *Fetcher) get(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	clone := f.collector.Clone()
	var html string
	var fetchErr error

	clone.OnResponse(func(r *colly.Response) {
		html = string(r.Body)
	})
	clone.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := clone.Visit(url); err != nil {
		return "", err
	}
	clone.Wait()

	if fetchErr != nil {
		return "", fetchErr
	}
	return html, nil
}
