package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vitos/trade_engine/internal/domain"
	"github.com/vitos/trade_engine/internal/usecase"
	"go.uber.org/zap"
)

// Server exposes the engine's status surface for the front-end: last verdict
// and reasons, open positions, recorded orders, and an on-demand cycle
// trigger.
type Server struct {
	router  *http.ServeMux
	server  *http.Server
	engine  *usecase.Engine
	broker  domain.Broker
	orders  domain.OrderRepository
	audit   domain.AuditSink
	symbols []string
	logger  *zap.Logger
}

func NewServer(
	port int,
	engine *usecase.Engine,
	broker domain.Broker,
	orders domain.OrderRepository,
	audit domain.AuditSink,
	symbols []string,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:  http.NewServeMux(),
		engine:  engine,
		broker:  broker,
		orders:  orders,
		audit:   audit,
		symbols: symbols,
		logger:  logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /status", s.handleStatus)
	s.router.HandleFunc("GET /reasons", s.handleReasons)
	s.router.HandleFunc("GET /positions", s.handlePositions)
	s.router.HandleFunc("GET /orders", s.handleOrders)
	s.router.HandleFunc("GET /history", s.handleHistory)
	s.router.HandleFunc("POST /cycle", s.handleCycle)
}

func (s *Server) Start() error {
	s.logger.Info("web server listening", zap.String("addr", s.server.Addr))
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
