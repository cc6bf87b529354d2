// Package api exposes cached crawl results over a small REST surface. The
// server is deliberately thin: it reads snapshots and run history, and lets
// an operator trigger crawls as background jobs.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jfsok/bidwatch/internal/crawl"
	"github.com/jfsok/bidwatch/internal/db"
	"github.com/jfsok/bidwatch/internal/forum"
	"github.com/jfsok/bidwatch/internal/models"
	"github.com/jfsok/bidwatch/internal/snapshot"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Server struct {
	Echo      *echo.Echo
	Store     *db.Store
	Snapshots *snapshot.Store
	Runner    *crawl.Runner
	Forum     *forum.Fetcher

	jobMu sync.Mutex
	jobs  map[string]*backgroundJob
}

type backgroundJob struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	Status    string     `json:"status"` // running, completed, failed
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Result    any        `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
}

func NewServer(store *db.Store, snapshots *snapshot.Store, runner *crawl.Runner, forumFetcher *forum.Fetcher) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	allowedOrigins := []string{"http://localhost:4200"}
	if extra := os.Getenv("CORS_ORIGINS"); extra != "" {
		for _, o := range strings.Split(extra, ",") {
			if o = strings.TrimSpace(o); o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
	}))

	s := &Server{
		Echo:      e,
		Store:     store,
		Snapshots: snapshots,
		Runner:    runner,
		Forum:     forumFetcher,
		jobs:      make(map[string]*backgroundJob),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)

	api := s.Echo.Group("/api/v1")
	api.GET("/hot-articles", s.handleHotArticles)
	api.GET("/bidding/notices", s.handleBiddingNotices)
	api.GET("/runs", s.handleListRuns)

	admin := api.Group("")
	admin.Use(s.adminMiddleware)
	admin.POST("/crawl", s.handleTriggerCrawl)
	admin.POST("/hot-articles/refresh", s.handleRefreshHotArticles)
	admin.GET("/jobs/:id", s.handleJobStatus)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleHotArticles serves the cached hot-article snapshot.
func (s *Server) handleHotArticles(c echo.Context) error {
	var articles []models.HotArticle
	if err := s.Snapshots.Load("hot_articles", "", &articles); err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "no hot articles cached yet"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, articles)
}

// handleBiddingNotices serves the notice snapshot for ?date=YYYY-MM-DD.
func (s *Server) handleBiddingNotices(c echo.Context) error {
	date := c.QueryParam("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}

	var notices []models.NoticeSummary
	if err := s.Snapshots.Load("bidding_list", date, &notices); err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "no crawl snapshot for " + date})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, notices)
}

func (s *Server) handleListRuns(c echo.Context) error {
	runs, err := s.Store.ListRuns(c.Request().Context(), 20)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if runs == nil {
		runs = []models.CrawlRun{}
	}
	return c.JSON(http.StatusOK, runs)
}

type crawlRequest struct {
	Keyword string `json:"keyword"`
	EndDate string `json:"end_date"`
}

// handleTriggerCrawl starts a notice crawl in the background and returns the
// job ID immediately.
func (s *Server) handleTriggerCrawl(c echo.Context) error {
	var req crawlRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if req.EndDate == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "end_date is required"})
	}

	job := s.startJob("crawl", func(ctx context.Context) (any, error) {
		return s.Runner.CrawlNotices(ctx, req.Keyword, req.EndDate)
	})
	return c.JSON(http.StatusAccepted, job)
}

// handleRefreshHotArticles refetches the forum feed and replaces the cache.
func (s *Server) handleRefreshHotArticles(c echo.Context) error {
	job := s.startJob("hot-articles", func(ctx context.Context) (any, error) {
		articles, err := s.Forum.HotArticles(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.Snapshots.Save("hot_articles", "", articles); err != nil {
			return nil, err
		}
		return map[string]int{"articles": len(articles)}, nil
	})
	return c.JSON(http.StatusAccepted, job)
}

func (s *Server) handleJobStatus(c echo.Context) error {
	job, ok := s.jobSnapshot(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no such job"})
	}
	return c.JSON(http.StatusOK, job)
}

// jobSnapshot returns a value copy of the job taken under jobMu. Handlers
// must serialize the copy, never the live job the completion goroutine
// mutates.
func (s *Server) jobSnapshot(id string) (backgroundJob, bool) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return backgroundJob{}, false
	}
	return *job, true
}

func (s *Server) startJob(kind string, fn func(ctx context.Context) (any, error)) backgroundJob {
	job := &backgroundJob{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    "running",
		StartedAt: time.Now(),
	}
	s.jobMu.Lock()
	s.jobs[job.ID] = job
	s.jobMu.Unlock()
	accepted := *job

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
		defer cancel()

		result, err := fn(ctx)
		ended := time.Now()

		s.jobMu.Lock()
		defer s.jobMu.Unlock()
		job.EndedAt = &ended
		if err != nil {
			job.Status = "failed"
			job.Error = err.Error()
			return
		}
		job.Status = "completed"
		job.Result = result
	}()

	return accepted
}

// adminMiddleware guards mutating routes with a shared secret header.
func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		secret := os.Getenv("ADMIN_SECRET")
		if secret == "" {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "ADMIN_SECRET not configured"})
		}
		provided := c.Request().Header.Get("X-Admin-Secret")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		return next(c)
	}
}

// Start blocks serving HTTP on the given port.
func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}
