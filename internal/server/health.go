package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (s *Server) Health(c *gin.Context) {
	now := s.clock.Now().UTC()

	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "timestamp": now})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": now})
}
