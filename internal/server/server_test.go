package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"invertrack-go/internal/auth"
	"invertrack-go/internal/config"
	"invertrack-go/internal/database"
	"invertrack-go/internal/ledger"
	"invertrack-go/internal/market"
	"invertrack-go/internal/report"
	"invertrack-go/internal/storage"
	"invertrack-go/internal/trading"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupServer(t *testing.T) *Server {
	// Use a new, non-shared in-memory database for each test to ensure isolation.
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, database.AutoMigrate(db))

	logger := zap.NewNop()
	cfg := &config.Config{
		Server:  config.Server{Port: 0},
		Market:  config.Market{TickInterval: 3, HistoryYears: 1},
		Trading: config.Trading{StartingCash: 10000},
		Email:   config.Email{DemoMode: true, RateLimit: 100, RateLimitBurst: 10},
		Reports: config.Reports{Dir: t.TempDir()},
	}

	store := storage.NewStore(db, logger)
	marketSvc := market.NewService(logger, market.NewSeriesCache(), nil, cfg.Market.HistoryYears)
	authSvc := auth.NewService(logger, store, auth.NewEmailSender(cfg.Email, logger))
	executor := trading.NewExecutor(logger, store, marketSvc)
	valuator := ledger.NewValuator(logger, store)
	reports := report.NewGenerator(logger, store, cfg.Reports.Dir)

	return New(logger, cfg, authSvc, marketSvc, store, executor, valuator, reports)
}

func doJSON(t *testing.T, srv *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		assert.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

// registerAndLogin walks the register/confirm flow and returns a session token.
func registerAndLogin(t *testing.T, srv *Server, username string) string {
	rec := doJSON(t, srv, http.MethodPost, "/api/auth/register", "", map[string]interface{}{
		"username":      username,
		"email":         username + "@example.com",
		"password":      "secret",
		"starting_cash": "10000",
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var regResp map[string]string
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &regResp))
	code := regResp["demo_code"]
	assert.Len(t, code, 6)

	rec = doJSON(t, srv, http.MethodPost, "/api/auth/confirm", "", map[string]string{
		"username": username,
		"code":     code,
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	var confirmResp map[string]string
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &confirmResp))
	assert.NotEmpty(t, confirmResp["token"])
	return confirmResp["token"]
}

func TestHealth(t *testing.T) {
	srv := setupServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	srv := setupServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/symbols", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/portfolio", "bogus-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterConfirmLoginFlow(t *testing.T) {
	srv := setupServer(t)
	token := registerAndLogin(t, srv, "alice")

	rec := doJSON(t, srv, http.MethodGet, "/api/symbols", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string][]string
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["symbols"], "AAPL")
	assert.Contains(t, resp["symbols"], "NVDA")

	// Fresh login after confirmation.
	rec = doJSON(t, srv, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice",
		"password": "secret",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutInvalidatesToken(t *testing.T) {
	srv := setupServer(t)
	token := registerAndLogin(t, srv, "alice")

	rec := doJSON(t, srv, http.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/symbols", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPriceAndHistory(t *testing.T) {
	srv := setupServer(t)
	token := registerAndLogin(t, srv, "alice")

	rec := doJSON(t, srv, http.MethodGet, "/api/price/META", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var priceResp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &priceResp))
	assert.Equal(t, "META", priceResp.Symbol)
	// The most recent generated close is anchored to the reference price.
	assert.Equal(t, "628.81", priceResp.Price)

	rec = doJSON(t, srv, http.MethodGet, "/api/history/AAPL", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var histResp struct {
		Points []json.RawMessage `json:"points"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &histResp))
	assert.NotEmpty(t, histResp.Points)

	rec = doJSON(t, srv, http.MethodGet, "/api/history/AAPL?from=not-a-time", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTradeAndPortfolio(t *testing.T) {
	srv := setupServer(t)
	token := registerAndLogin(t, srv, "alice")

	rec := doJSON(t, srv, http.MethodPost, "/api/trade", token, map[string]interface{}{
		"symbol":   "AAPL",
		"side":     "BUY",
		"quantity": 10,
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/portfolio", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var snapshot struct {
		Positions []struct {
			Symbol   string `json:"symbol"`
			Quantity int    `json:"quantity"`
		} `json:"positions"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Len(t, snapshot.Positions, 1)
	assert.Equal(t, "AAPL", snapshot.Positions[0].Symbol)
	assert.Equal(t, 10, snapshot.Positions[0].Quantity)

	// A buy beyond the cash balance is rejected without mutating state.
	rec = doJSON(t, srv, http.MethodPost, "/api/trade", token, map[string]interface{}{
		"symbol":   "NVDA",
		"side":     "BUY",
		"quantity": 100000,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/trade", token, map[string]interface{}{
		"symbol":   "AAPL",
		"side":     "SELL",
		"quantity": 50,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/trade", token, map[string]interface{}{
		"symbol":   "AAPL",
		"side":     "HOLD",
		"quantity": 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChartViews(t *testing.T) {
	srv := setupServer(t)
	token := registerAndLogin(t, srv, "alice")

	for _, view := range []string{"live", "months", "years"} {
		rec := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/chart/TSLA?view=%s", view), token, nil)
		assert.Equal(t, http.StatusOK, rec.Code, view)

		var resp struct {
			View   string            `json:"view"`
			Bars   []json.RawMessage `json:"bars"`
			Window struct {
				YMin float64 `json:"y_min"`
				YMax float64 `json:"y_max"`
			} `json:"window"`
		}
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, view, resp.View)
		assert.NotEmpty(t, resp.Bars)
		assert.Greater(t, resp.Window.YMax, resp.Window.YMin)
	}

	rec := doJSON(t, srv, http.MethodGet, "/api/chart/TSLA?view=decades", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/chart/TSLA?view=months&render=png", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Body.Bytes())
}

func TestChartStream(t *testing.T) {
	srv := setupServer(t)
	token := registerAndLogin(t, srv, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/chart/NVDA/stream?view=live", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	// The first refresh is emitted immediately, before the first tick.
	assert.Contains(t, rec.Body.String(), "data: ")
	assert.Contains(t, rec.Body.String(), `"symbol":"NVDA"`)
}

func TestReportEndpoint(t *testing.T) {
	srv := setupServer(t)
	token := registerAndLogin(t, srv, "alice")

	rec := doJSON(t, srv, http.MethodPost, "/api/trade", token, map[string]interface{}{
		"symbol":   "AMD",
		"side":     "BUY",
		"quantity": 5,
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/trade", token, map[string]interface{}{
		"symbol":   "AMD",
		"side":     "SELL",
		"quantity": 5,
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/report", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var rep struct {
		Username   string            `json:"username"`
		ClosedLots []json.RawMessage `json:"closed_lots"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, "alice", rep.Username)
	assert.Len(t, rep.ClosedLots, 1)

	rec = doJSON(t, srv, http.MethodPost, "/api/report", token, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)

	var writeResp struct {
		Path string `json:"path"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &writeResp))
	assert.NotEmpty(t, writeResp.Path)
}

func TestPasswordRecoveryFlow(t *testing.T) {
	srv := setupServer(t)
	registerAndLogin(t, srv, "alice")

	rec := doJSON(t, srv, http.MethodPost, "/api/auth/recover", "", map[string]string{
		"email": "alice@example.com",
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/auth/reset", "", map[string]string{
		"email":    "alice@example.com",
		"code":     "wrong",
		"password": "newpw",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
