package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/postbot/internal/credstore"
	"go.uber.org/zap"
)

// MetricsSnapshotter exposes counters for /api/metrics.
type MetricsSnapshotter interface {
	Snapshot() map[string]int64
}

// MountStatusRoutes registers /healthz, /api/status, and /api/metrics.
// /api/status reports whether tokens or a pending session exist, never their values.
func MountStatusRoutes(router gin.IRouter, store credstore.Store, metrics MetricsSnapshotter, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	router.GET("/healthz", func(contextGin *gin.Context) {
		contextGin.String(http.StatusOK, "ok")
	})

	router.GET("/api/status", func(contextGin *gin.Context) {
		record, readErr := store.Read(contextGin.Request.Context())
		if readErr != nil {
			logger.Error("credential store unreadable", zap.String("code", "web.status.store_failed"), zap.Error(readErr))
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": credstore.ErrStorage.Error()})
			return
		}
		_, authorized := record.TokenPair()
		_, pending := record.AuthSession()
		contextGin.JSON(http.StatusOK, gin.H{
			"authorized":            authorized,
			"pending_authorization": pending,
		})
	})

	router.GET("/api/metrics", func(contextGin *gin.Context) {
		counters := map[string]int64{}
		if metrics != nil {
			counters = metrics.Snapshot()
		}
		contextGin.JSON(http.StatusOK, gin.H{"counters": counters})
	})
}
