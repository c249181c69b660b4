package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"leadwise-backend/utils"
)

var startedAt = time.Now()

func (c *Controller) Health(w http.ResponseWriter, _ *http.Request) {
	utils.JSONOK(w, map[string]interface{}{
		"status":    "healthy",
		"service":   c.cfg.ServiceName,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(startedAt).Seconds(),
	})
}

// HealthDetailed reports each dependency. Redis is optional at runtime, so a
// missing client is reported but never degrades the status.
func (c *Controller) HealthDetailed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	dbStatus := "healthy"
	if err := c.db.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
		c.logRequestWarn(r, "health check database ping failed", err)
	}
	redisStatus := "not configured"
	if c.redis != nil {
		redisStatus = "healthy"
		if err := c.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
			c.logRequestWarn(r, "health check redis ping failed", err)
		}
	}
	status := "healthy"
	if dbStatus != "healthy" {
		status = "degraded"
	}
	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":       status,
		"dependencies": map[string]string{"database": dbStatus, "redis": redisStatus},
		"timestamp":    time.Now().UTC(),
	})
}

func (c *Controller) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := c.db.PingContext(ctx); err != nil {
		c.logRequestWarn(r, "readiness database ping failed", err)
		utils.JSONErr(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	utils.JSONOK(w, map[string]interface{}{"status": "ready", "timestamp": time.Now().UTC()})
}

func (c *Controller) Live(w http.ResponseWriter, _ *http.Request) {
	utils.JSONOK(w, map[string]interface{}{"status": "alive", "timestamp": time.Now().UTC()})
}

func (c *Controller) Metrics(w http.ResponseWriter, r *http.Request) {
	var users, leads, chats, pending int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&users); err != nil {
		c.logRequestWarn(r, "metrics users count failed", err)
	}
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM leads`).Scan(&leads); err != nil {
		c.logRequestWarn(r, "metrics leads count failed", err)
	}
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&chats); err != nil {
		c.logRequestWarn(r, "metrics chats count failed", err)
	}
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM follow_ups WHERE sent=FALSE`).Scan(&pending); err != nil {
		c.logRequestWarn(r, "metrics follow ups count failed", err)
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_, _ = w.Write([]byte(fmt.Sprintf(
		"leadwise_users_total %d\nleadwise_leads_total %d\nleadwise_chats_total %d\nleadwise_followups_pending %d\n",
		users, leads, chats, pending)))
}
