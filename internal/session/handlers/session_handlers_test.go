package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/architect/presence-engine/internal/common/metrics"
	"github.com/architect/presence-engine/internal/session/models"
	"github.com/architect/presence-engine/internal/session/repository"
	"github.com/architect/presence-engine/internal/session/services"
	"github.com/architect/presence-engine/pkg/config"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.SessionToken{}))

	svc := services.NewSessionService(repository.NewSessionRepository(db), config.SessionConfig{
		Timeout: 90 * time.Second,
	}, metrics.New())

	handler := NewSessionHandler(svc)
	router := gin.New()
	group := router.Group("/api/v1/sessions")
	{
		group.POST("", handler.Issue)
		group.POST("/ping", handler.Ping)
		group.DELETE("/:token", handler.End)
		group.GET("/active", handler.Active)
	}
	return router
}

func postJSON(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIssuePingEndLifecycle(t *testing.T) {
	router := setupRouter(t)

	// Issue with an empty body mints a fresh token.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var issued models.IssueResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issued))
	require.Len(t, issued.Token, 32)

	w = postJSON(t, router, "/api/v1/sessions/ping", models.PingRequest{Token: issued.Token})
	require.Equal(t, http.StatusOK, w.Code)
	var ping models.PingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ping))
	assert.True(t, ping.Active)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+issued.Token, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"removed": true}`, w.Body.String())

	w = postJSON(t, router, "/api/v1/sessions/ping", models.PingRequest{Token: issued.Token})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ping))
	assert.False(t, ping.Active)
}

func TestPing_MissingTokenIsBadRequest(t *testing.T) {
	router := setupRouter(t)

	w := postJSON(t, router, "/api/v1/sessions/ping", models.PingRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestActive_CountsByOwner(t *testing.T) {
	router := setupRouter(t)

	postJSON(t, router, "/api/v1/sessions", models.IssueRequest{OwnerID: "user-1"})
	postJSON(t, router, "/api/v1/sessions", models.IssueRequest{OwnerID: "user-1"})
	postJSON(t, router, "/api/v1/sessions", models.IssueRequest{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/active", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var count models.ActiveCount
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &count))
	assert.Equal(t, int64(3), count.TotalSessions)
	assert.Equal(t, int64(2), count.TotalUsers)
}

func TestEnd_UnknownTokenReportsNotRemoved(t *testing.T) {
	router := setupRouter(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/never-issued", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"removed": false}`, w.Body.String())
}
