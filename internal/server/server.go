// Package server exposes the auction house over HTTP: read-only JSON views,
// a mutation endpoint, and a websocket event stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/openclear/auctiond/internal/config"
	"github.com/openclear/auctiond/internal/core/house"
)

// Server serves the house's views and mutations.
type Server struct {
	cfg    config.ServerConfig
	engine *house.Engine
	log    logrus.FieldLogger
	hub    *Hub

	// viewCache holds rendered lot views, invalidated on lot events.
	viewCache *lru.Cache[uint64, []byte]

	httpServer *http.Server
}

func New(cfg config.ServerConfig, engine *house.Engine, log logrus.FieldLogger) (*Server, error) {
	cache, err := lru.New[uint64, []byte](cfg.ViewCacheSize)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		engine:    engine,
		log:       log,
		hub:       NewHub(log),
		viewCache: cache,
	}
	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// Sink returns the event sink the house engine should publish into. Events
// invalidate the view cache before fanning out to websocket subscribers.
func (s *Server) Sink() house.Sink { return s }

// Publish implements house.Sink.
func (s *Server) Publish(ev house.Event) {
	s.viewCache.Remove(ev.LotID)
	s.hub.Publish(ev)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /lots", s.handleLots)
	mux.HandleFunc("GET /lots/{id}", s.handleLot)
	mux.HandleFunc("GET /lots/{id}/bids/{bid}", s.handleBid)
	mux.HandleFunc("GET /rewards/{recipient}/{token}", s.handleRewards)
	mux.HandleFunc("POST /rpc", s.handleRPC)
	mux.Handle("GET /events", s.hub)
	return mux
}

// Run serves until ctx is cancelled, then drains connections within the
// configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.WithField("addr", s.cfg.ListenAddress).Info("http server listening")
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
		defer cancel()

		s.hub.Close()
		return s.httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *Server) shutdownTimeout() time.Duration {
	if s.cfg.ShutdownTimeout > 0 {
		return s.cfg.ShutdownTimeout
	}
	return 15 * time.Second
}

func marshalEvent(ev house.Event) ([]byte, error) {
	return json.Marshal(ev)
}
