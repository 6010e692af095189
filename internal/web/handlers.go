package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/vitos/trade_engine/internal/domain"
	"go.uber.org/zap"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	outcome, reasons, at := s.engine.LastStatus()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"outcome": outcome,
		"reasons": reasons,
		"at":      at.Format(time.RFC3339),
		"symbols": s.symbols,
	})
}

func (s *Server) handleReasons(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"reasons": s.audit.LastReasons(),
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	var all []*domain.PositionInfo
	for _, symbol := range s.symbols {
		positions, err := s.broker.GetPositions(r.Context(), symbol)
		if err != nil {
			s.writeError(w, http.StatusBadGateway, err)
			return
		}
		all = append(all, positions...)
	}
	s.writeJSON(w, http.StatusOK, all)
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.orders.ListOrders(r.Context(), 100)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.orders.ListPositionHistory(r.Context(), 100)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, history)
}

// handleCycle triggers an on-demand decision cycle for one symbol.
func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" && len(s.symbols) > 0 {
		symbol = s.symbols[0]
	}
	if symbol == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no symbol"})
		return
	}

	outcome, err := s.engine.RunCycle(r.Context(), symbol)
	resp := map[string]any{"symbol": symbol, "outcome": outcome}
	if err != nil {
		resp["error"] = err.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}
