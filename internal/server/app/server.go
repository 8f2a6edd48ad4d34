package app

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	analyzer "trafficanalyzer/internal/analyzer/app"
	"trafficanalyzer/internal/config"
	"trafficanalyzer/internal/server/api"
	"trafficanalyzer/internal/session"
	"trafficanalyzer/internal/timestamp"
)

type Server struct {
	httpServer *http.Server
}

func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	sess, parser, err := analyzer.Open(ctx, cfg, os.Stderr)
	if err != nil {
		return nil, err
	}
	return newServer(cfg, sess, parser), nil
}

func newServer(cfg *config.Config, sess *session.Session, parser timestamp.Parser) *Server {
	listen := cfg.Server.Listen
	if listen == "" {
		listen = ":8080"
	}
	readHeaderTimeout := cfg.Server.ReadHeaderTimeout
	if readHeaderTimeout <= 0 {
		readHeaderTimeout = 5 * time.Second
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              listen,
			Handler:           NewRouter(sess, parser),
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}
}

func NewRouter(svc api.Service, parser timestamp.Parser) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	h := api.NewHandlers(svc, parser)
	v1 := router.Group("/api/v1")
	{
		v1.GET("/samples", h.Range)
		v1.POST("/samples", h.Add)
		v1.DELETE("/samples", h.Delete)
		v1.GET("/average", h.Average)
		v1.GET("/peak-hour", h.PeakHour)
		v1.GET("/summary", h.Summary)
		v1.GET("/export", h.Export)
	}
	return router
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
