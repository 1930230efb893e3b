package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oof-labs/oof-backend/internal/config"
	"github.com/oof-labs/oof-backend/internal/messaging"
	"github.com/oof-labs/oof-backend/internal/middleware"
	"github.com/oof-labs/oof-backend/internal/services"
	"github.com/oof-labs/oof-backend/internal/validation"
	"github.com/oof-labs/oof-backend/pkg/models"
)

const (
	testSecret = "test-app-secret"
	testWallet = "7fUAJdStEuGbc3sM84cKRL6wYVBGNUyYmVGUWqKjwcvi"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Auth.AppSecret = testSecret
	cfg.Auth.TokenTTL = time.Hour
	return cfg
}

func bearerToken(t *testing.T, subject string) string {
	t.Helper()
	now := time.Now()
	claims := &models.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

// analyzeStack wires the analyze route the way the application does, with
// the policy store mocked at the SQL layer.
func analyzeStack(t *testing.T, mockDB pgxmock.PgxPoolIface) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, validation.RegisterBindingValidators())

	cfg := testConfig()
	logger := testLogger()
	metrics := services.NewAuthMetrics(logger)
	auth, err := services.NewAuthService(cfg, logger, services.NewKeyCache(), metrics)
	require.NoError(t, err)
	svc := &services.Services{
		Auth:     auth,
		Policy:   services.NewPolicyService(mockDB, logger),
		Metrics:  metrics,
		AuditBus: messaging.NewAuditBus(&config.Config{}, logger),
	}
	handler := NewAnalyzeHandler(logger, svc)

	router := gin.New()
	router.POST("/analyze",
		middleware.Auth(svc.Auth, svc.Metrics, svc.AuditBus, logger),
		handler.Analyze)
	return router
}

func postAnalyze(t *testing.T, router *gin.Engine, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)
	return w
}

func TestAnalyzeHandler(t *testing.T) {
	freePlanRows := func() *pgxmock.Rows {
		return pgxmock.NewRows([]string{"code", "price_usd_dec", "daily_wallets", "backfill_days", "cadence", "alerts", "api_rows"}).
			AddRow("FREE", "0.00", 2, 180, "manual", 0, int64(0))
	}

	t.Run("within quota queues the job", func(t *testing.T) {
		mockDB, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockDB.Close()

		mockDB.ExpectBegin()
		mockDB.ExpectExec("DO NOTHING").
			WithArgs("user-1").
			WillReturnResult(pgxmock.NewResult("INSERT", 0))
		mockDB.ExpectQuery("FOR UPDATE").
			WithArgs("user-1").
			WillReturnRows(pgxmock.NewRows([]string{"analyses_today", "last_reset_at"}).
				AddRow(0, time.Now().UTC()))
		mockDB.ExpectQuery("FROM user_plans").
			WithArgs("user-1").
			WillReturnError(pgx.ErrNoRows)
		mockDB.ExpectQuery("FROM plans WHERE code").
			WillReturnRows(freePlanRows())
		mockDB.ExpectExec("DO UPDATE SET analyses_today").
			WithArgs("user-1", 1).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockDB.ExpectCommit()

		router := analyzeStack(t, mockDB)
		w := postAnalyze(t, router, bearerToken(t, "user-1"), `{"wallets":["`+testWallet+`"]}`)

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Contains(t, w.Body.String(), "job_id")
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("exhausted quota returns 402", func(t *testing.T) {
		mockDB, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockDB.Close()

		mockDB.ExpectBegin()
		mockDB.ExpectExec("DO NOTHING").
			WithArgs("user-1").
			WillReturnResult(pgxmock.NewResult("INSERT", 0))
		mockDB.ExpectQuery("FOR UPDATE").
			WithArgs("user-1").
			WillReturnRows(pgxmock.NewRows([]string{"analyses_today", "last_reset_at"}).
				AddRow(2, time.Now().UTC()))
		mockDB.ExpectQuery("FROM user_plans").
			WithArgs("user-1").
			WillReturnError(pgx.ErrNoRows)
		mockDB.ExpectQuery("FROM plans WHERE code").
			WillReturnRows(freePlanRows())
		mockDB.ExpectRollback()

		router := analyzeStack(t, mockDB)
		w := postAnalyze(t, router, bearerToken(t, "user-1"), `{"wallets":["`+testWallet+`"]}`)

		assert.Equal(t, http.StatusPaymentRequired, w.Code)
		assert.Contains(t, w.Body.String(), "QUOTA_EXCEEDED")
		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("quota store outage returns 503, not an allowed request", func(t *testing.T) {
		mockDB, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockDB.Close()

		mockDB.ExpectBegin().WillReturnError(errors.New("connection refused"))

		router := analyzeStack(t, mockDB)
		w := postAnalyze(t, router, bearerToken(t, "user-1"), `{"wallets":["`+testWallet+`"]}`)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "UPSTREAM_UNAVAILABLE")
	})

	t.Run("invalid wallet address is rejected before quota is touched", func(t *testing.T) {
		mockDB, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockDB.Close()

		router := analyzeStack(t, mockDB)
		w := postAnalyze(t, router, bearerToken(t, "user-1"), `{"wallets":["not-a-wallet"]}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		require.NoError(t, mockDB.ExpectationsWereMet(), "no database call may happen for an invalid request")
	})

	t.Run("unauthenticated request never reaches the handler", func(t *testing.T) {
		mockDB, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockDB.Close()

		router := analyzeStack(t, mockDB)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{"wallets":["`+testWallet+`"]}`))
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})
}
