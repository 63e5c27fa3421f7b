package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	statusHealthy   = "HEALTHY"
	statusUnhealthy = "UNHEALTHY"
)

// Health 数据库不可用时返回 500；Redis 只影响限流，不影响整体状态
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	services := gin.H{}
	code := http.StatusOK
	overall := "OK"

	dbStatus := statusHealthy
	if h.DB == nil || h.DB.Ping(ctx) != nil {
		dbStatus = statusUnhealthy
		code = http.StatusInternalServerError
		overall = "ERROR"
	}
	database := gin.H{"status": dbStatus}
	if h.DB != nil {
		database["details"] = h.DB.Status()
	}
	services["database"] = database

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	services["server"] = gin.H{
		"status": statusHealthy,
		"uptime": time.Since(h.startedAt).Seconds(),
		"memoryUsage": gin.H{
			"heapAlloc":  mem.HeapAlloc,
			"heapSys":    mem.HeapSys,
			"sys":        mem.Sys,
			"goroutines": runtime.NumGoroutine(),
		},
	}

	if h.Redis != nil {
		cacheStatus := statusHealthy
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			cacheStatus = statusUnhealthy
		}
		services["cache"] = gin.H{"status": cacheStatus}
	}

	c.JSON(code, gin.H{
		"status":    overall,
		"timeStamp": time.Now().UTC().Format(time.RFC3339),
		"services":  services,
	})
}
