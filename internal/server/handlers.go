package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"invertrack-go/internal/auth"
	"invertrack-go/internal/chart"
	"invertrack-go/internal/ledger"
	"invertrack-go/internal/models"
	"invertrack-go/internal/storage"
	"invertrack-go/internal/trading"
)

type contextKey string

const (
	ctxKeyUsername contextKey = "username"
	ctxKeyToken    contextKey = "token"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// authMiddleware resolves the Bearer token to a username and rejects
// requests without a valid session.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		username, ok := s.authSvc.UserForToken(token)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid session")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUsername, username)
		ctx = context.WithValue(ctx, ctxKeyToken, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestUsername(r *http.Request) string {
	username, _ := r.Context().Value(ctxKeyUsername).(string)
	return username
}

func requestToken(r *http.Request) string {
	token, _ := r.Context().Value(ctxKeyToken).(string)
	return token
}

type registerRequest struct {
	Username     string          `json:"username"`
	Email        string          `json:"email"`
	Password     string          `json:"password"`
	StartingCash decimal.Decimal `json:"starting_cash"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	startingCash := req.StartingCash
	if startingCash.IsZero() {
		startingCash = decimal.NewFromFloat(s.cfg.Trading.StartingCash)
	}

	err := s.authSvc.Register(r.Context(), req.Username, req.Email, req.Password, startingCash)
	if err != nil {
		var vErr *auth.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		s.logger.Error("Registration failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	resp := map[string]string{"status": "verification_sent"}
	if s.cfg.Email.DemoMode {
		// Demo deployments have no real mailbox to read the code from.
		if code, ok := s.authSvc.PendingCode(req.Username); ok {
			resp["demo_code"] = code
		}
	}
	writeJSON(w, http.StatusAccepted, resp)
}

type confirmRequest struct {
	Username string `json:"username"`
	Code     string `json:"code"`
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, token, err := s.authSvc.ConfirmRegistration(r.Context(), req.Username, req.Code)
	switch {
	case errors.Is(err, auth.ErrInvalidCode):
		writeError(w, http.StatusUnauthorized, "invalid verification code")
		return
	case errors.Is(err, auth.ErrNoPendingRegistration):
		writeError(w, http.StatusNotFound, "no pending registration")
		return
	case err != nil:
		s.logger.Error("Confirmation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "confirmation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":    token,
		"username": user.Username,
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := s.authSvc.Login(req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if err != nil {
		s.logger.Error("Login failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"token":    token,
		"username": req.Username,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := requestToken(r)
	s.authSvc.Logout(token)
	s.sessions.drop(token)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.authSvc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		s.logger.Error("Password recovery failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "recovery failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recovery_sent"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Code     string `json:"code"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.authSvc.ResetPassword(req.Email, req.Code, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCode):
		writeError(w, http.StatusUnauthorized, "invalid recovery code")
		return
	case err != nil:
		var vErr *auth.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		s.logger.Error("Password reset failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"symbols": s.market.AvailableSymbols()})
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	price, err := s.market.CurrentPrice(r.Context(), symbol)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "price lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"price":  price,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))

	to := time.Now()
	from := to.AddDate(-s.cfg.Market.HistoryYears, 0, 0)
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		to = t
	}

	points, err := s.market.HistoricalSeries(r.Context(), symbol, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"points": points,
	})
}

// handleChart returns the aggregated bars and axis window for a symbol and
// view, advancing the session's intraday series when the live view is
// active. With ?render=png the same data comes back as a rendered image.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))

	view := chart.ViewMode(r.URL.Query().Get("view"))
	switch view {
	case chart.ViewLive, chart.ViewMonths, chart.ViewYears:
	case "":
		view = chart.ViewLive
	default:
		writeError(w, http.StatusBadRequest, "unknown view")
		return
	}

	price, err := s.market.CurrentPrice(r.Context(), symbol)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "price lookup failed")
		return
	}

	session := s.sessions.get(requestToken(r))
	session.mu.Lock()
	defer session.mu.Unlock()
	session.selectChart(symbol, view)

	var points []models.PricePoint
	if view == chart.ViewLive {
		now := time.Now()
		session.sampler.Seed(symbol, price, now)
		session.sampler.Append(models.PricePoint{
			Timestamp: now,
			Symbol:    symbol,
			Close:     price,
			Open:      price,
			High:      price,
			Low:       price,
		})
		points = session.sampler.Series(symbol)
	} else {
		to := time.Now()
		from := to.AddDate(-s.cfg.Market.HistoryYears, 0, 0)
		points, err = s.market.HistoricalSeries(r.Context(), symbol, from, to)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "history lookup failed")
			return
		}
	}

	avgCost := s.averageOpenCost(requestUsername(r), symbol)

	bars := chart.Aggregate(points, chart.IntervalFor(view))
	window := session.policy.Compute(points, view, session.window, chart.WindowOptions{
		AverageOpenCost: avgCost,
	})
	session.window = window

	if r.URL.Query().Get("render") == "png" {
		png, err := chart.RenderPNG(symbol, bars, window, avgCost)
		if err != nil {
			s.logger.Error("Chart render failed", zap.String("symbol", symbol), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "render failed")
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"view":   view,
		"price":  price,
		"bars":   bars,
		"window": map[string]interface{}{
			"x_min": window.XMin,
			"x_max": window.XMax,
			"y_min": window.YMin,
			"y_max": window.YMax,
		},
	})
}

// handleChartStream pushes chart refreshes for one symbol/view as
// server-sent events on the market tick cadence. The stream ends when the
// client disconnects or the request times out; SSE clients reconnect on
// their own.
func (s *Server) handleChartStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	view := chart.ViewMode(r.URL.Query().Get("view"))
	switch view {
	case chart.ViewLive, chart.ViewMonths, chart.ViewYears:
	case "":
		view = chart.ViewLive
	default:
		writeError(w, http.StatusBadRequest, "unknown view")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	session := s.sessions.get(requestToken(r))

	// One engine per stream: ticks that overlap a slow refresh are skipped,
	// and updates for a superseded selection are discarded.
	publish := func(u trading.Update) {
		payload, err := json.Marshal(map[string]interface{}{
			"symbol": u.Symbol,
			"view":   u.View,
			"price":  u.Price,
			"bars":   u.Bars,
			"window": map[string]interface{}{
				"x_min": u.Window.XMin,
				"x_max": u.Window.XMax,
				"y_min": u.Window.YMin,
				"y_max": u.Window.YMax,
			},
		})
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	engine := trading.NewEngine(s.logger, s.market, session.sampler,
		time.Duration(s.cfg.Market.TickInterval)*time.Second, publish)
	engine.Select(symbol, view)
	engine.Run(r.Context())
}

// averageOpenCost replays the user's history for the dashed cost line on the
// live chart. A user with no open position gets a zero, which the window
// policy and renderer both treat as "no line".
func (s *Server) averageOpenCost(username, symbol string) decimal.Decimal {
	history, err := s.store.TransactionsForUserSymbol(username, symbol)
	if err != nil || len(history) == 0 {
		return decimal.Zero
	}
	pos := ledger.ComputeOpenPosition(history)
	if pos.OpenQuantity == 0 {
		return decimal.Zero
	}
	return pos.AverageOpenCost
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	username := requestUsername(r)
	user, err := s.store.GetUser(username)
	if errors.Is(err, storage.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "portfolio lookup failed")
		return
	}

	snapshot, err := s.valuator.Valuate(r.Context(), user, s.market.CurrentPrice)
	if err != nil {
		s.logger.Error("Valuation failed", zap.String("username", username), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "valuation failed")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

type tradeRequest struct {
	Symbol         string `json:"symbol"`
	Side           string `json:"side"`
	Quantity       int    `json:"quantity"`
	DisplayedPrice string `json:"displayed_price"`
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session := s.sessions.get(requestToken(r))
	tx, err := s.executor.Execute(r.Context(), trading.Request{
		Username:       requestUsername(r),
		Symbol:         strings.ToUpper(req.Symbol),
		Side:           strings.ToUpper(req.Side),
		Quantity:       req.Quantity,
		DisplayedPrice: req.DisplayedPrice,
		Sampler:        session.sampler,
	})
	switch {
	case errors.Is(err, trading.ErrInsufficientFunds):
		writeError(w, http.StatusUnprocessableEntity, "insufficient funds")
		return
	case errors.Is(err, trading.ErrInsufficientShares):
		writeError(w, http.StatusUnprocessableEntity, "insufficient shares")
		return
	case err != nil:
		var vErr *trading.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		s.logger.Error("Trade failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "trade failed")
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.reports.Build(requestUsername(r))
	if err != nil {
		s.logger.Error("Report build failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "report failed")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleWriteReport(w http.ResponseWriter, r *http.Request) {
	rep, path, err := s.reports.Write(requestUsername(r))
	if err != nil {
		s.logger.Error("Report write failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "report failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"path":   path,
		"report": rep,
	})
}
