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
	"github.com/architect/presence-engine/internal/visitor/models"
	"github.com/architect/presence-engine/internal/visitor/repository"
	"github.com/architect/presence-engine/internal/visitor/services"
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
	require.NoError(t, db.AutoMigrate(&models.VisitorIdentity{}))

	svc := services.NewVisitorService(repository.NewVisitorRepository(db), config.PresenceConfig{
		OnlineWindow:   30 * time.Minute,
		SweepInterval:  5 * time.Minute,
		ResyncInterval: time.Hour,
		Timezone:       "UTC",
	}, metrics.New())

	handler := NewPresenceHandler(svc)
	router := gin.New()
	group := router.Group("/api/v1/presence")
	{
		group.POST("/visits", handler.RegisterVisit)
		group.POST("/online", handler.MarkOnline)
		group.POST("/offline", handler.MarkOffline)
		group.GET("/snapshot", handler.GetSnapshot)
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

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder) models.Snapshot {
	t.Helper()
	var snap models.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	return snap
}

func TestRegisterVisit_ReturnsSnapshot(t *testing.T) {
	router := setupRouter(t)

	w := postJSON(t, router, "/api/v1/presence/visits", models.RegisterVisitRequest{
		ClientKey: "1.2.3.4",
		UserAgent: "test-agent",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	snap := decodeSnapshot(t, w)
	assert.Equal(t, int64(1), snap.TotalVisitors)
	assert.Equal(t, int64(1), snap.TodayVisitors)
	assert.False(t, snap.Degraded)
}

func TestRegisterVisit_FallsBackToClientIP(t *testing.T) {
	router := setupRouter(t)

	// No body at all: the handler keys the visit by remote address.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/presence/visits", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	snap := decodeSnapshot(t, w)
	assert.Equal(t, int64(1), snap.TotalVisitors)
}

func TestRegisterVisit_RejectsMalformedBody(t *testing.T) {
	router := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/presence/visits",
		bytes.NewReader([]byte("{not-json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOnlineOfflineRoundTrip(t *testing.T) {
	router := setupRouter(t)

	w := postJSON(t, router, "/api/v1/presence/online", models.MarkRequest{ClientKey: "9.9.9.9"})
	assert.Equal(t, http.StatusOK, w.Code)
	snap := decodeSnapshot(t, w)
	assert.Equal(t, int64(1), snap.OnlineNow)

	w = postJSON(t, router, "/api/v1/presence/offline", models.MarkRequest{ClientKey: "9.9.9.9"})
	assert.Equal(t, http.StatusOK, w.Code)
	snap = decodeSnapshot(t, w)
	assert.Equal(t, int64(0), snap.OnlineNow)
	assert.Equal(t, int64(1), snap.TotalVisitors)
}

func TestGetSnapshot_EmptyStore(t *testing.T) {
	router := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/presence/snapshot", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	snap := decodeSnapshot(t, w)
	assert.Equal(t, int64(0), snap.TotalVisitors)
	assert.Equal(t, int64(0), snap.OnlineNow)
}
