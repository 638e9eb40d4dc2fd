package api

import (
	"context"
	"net/http"
	"time"

	"pasteor/cfg"
	"pasteor/svc/auth"
	"pasteor/svc/db"
	"pasteor/svc/svc"
	"pasteor/svc/util"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/hlog"
)

type Server struct {
	router     *chi.Mux
	cfg        *cfg.Cfg
	db         *db.SQLite
	rdb        *db.Redis
	httpServer *http.Server
}

type Services struct {
	Paste    *svc.Paste
	Comments *svc.Comment
	Stats    *svc.Stats
	Auth     *auth.Service
}

func NewServer(c *cfg.Cfg, services Services, sqlDB *db.SQLite, rdb *db.Redis) *Server {
	r := chi.NewRouter()
	mw := NewMw(services.Auth, c)
	s := &Server{
		router: r,
		cfg:    c,
		db:     sqlDB,
		rdb:    rdb,
		httpServer: &http.Server{
			Addr:           ":" + c.Port,
			Handler:        r,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 256 * 1024,
		},
	}

	r.Group(func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Get("/health", s.Health)
		r.Get("/ready", s.Ready)
	})
	r.Group(func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Handle("/metrics", mw.BasicAuthMetrics(promhttp.Handler()))
	})
	r.Mount("/debug", middleware.Profiler())

	r.Route("/api", func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Use(mw.RequestID)
		r.Use(hlog.NewHandler(util.GetLogger()))
		r.Use(hlog.AccessHandler(func(req *http.Request, status, size int, dur time.Duration) {
			hlog.FromRequest(req).Info().
				Str("method", req.Method).
				Str("url", req.URL.String()).
				Int("status", status).
				Int("size", size).
				Dur("duration", dur).
				Str("request_id", util.GetRequestID(req.Context())).
				Msg("http request")
		}))
		r.Use(mw.Observe)
		r.Use(mw.ContextTimeout)
		r.Use(mw.SecurityHeaders)
		r.Use(mw.CORS)
		r.Use(mw.JSONContentType)
		r.Use(mw.Identity)

		hdl := &Hdl{
			paste:    services.Paste,
			comments: services.Comments,
			stats:    services.Stats,
			cfg:      c,
		}
		r.Route("/pastes", func(r chi.Router) {
			r.Post("/", hdl.CreatePaste)
			r.Get("/recent", hdl.RecentPastes)
			r.Get("/public-stats", hdl.PublicStats)
			r.Get("/my", hdl.MyPastes)
			r.Get("/stats", hdl.MyStats)
			r.Get("/languages", hdl.MyLanguages)
			r.Get("/{id}", hdl.GetPaste)
			r.Get("/{id}/raw", hdl.GetPasteRaw)
			r.Put("/{id}", hdl.UpdatePaste)
			r.Delete("/{id}", hdl.DeletePaste)
		})
		r.Route("/comments", func(r chi.Router) {
			r.Get("/paste/{pasteId}", hdl.ListComments)
			r.Post("/", hdl.CreateComment)
			r.Delete("/{id}", hdl.DeleteComment)
		})
		r.Get("/auth/me", hdl.Me)
	})
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) Start() error {
	util.Info().Str("port", s.cfg.Port).Msg("starting server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		util.Error().Err(err).Str("port", s.cfg.Port).Msg("server failed to start")
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
