package controller

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"leadwise-backend/utils"
)

// AdminStats gives a platform wide overview for the operator console.
func (c *Controller) AdminStats(w http.ResponseWriter, r *http.Request) {
	var totalUsers, verifiedUsers, totalLeads, totalChats, pendingFollowUps int
	err := c.db.QueryRow(`SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM users WHERE is_verified=TRUE),
			(SELECT COUNT(*) FROM leads),
			(SELECT COUNT(*) FROM chats),
			(SELECT COUNT(*) FROM follow_ups WHERE sent=FALSE)`).
		Scan(&totalUsers, &verifiedUsers, &totalLeads, &totalChats, &pendingFollowUps)
	if err != nil {
		c.logRequestError(r, "admin stats query failed", err)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}

	rows, err := c.db.Query(`SELECT plan, COUNT(*) FROM users GROUP BY plan ORDER BY COUNT(*) DESC`)
	if err != nil {
		c.logRequestError(r, "admin plan distribution query failed", err)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	defer rows.Close()
	plans := map[string]int{}
	for rows.Next() {
		var plan string
		var count int
		if err := rows.Scan(&plan, &count); err != nil {
			c.logRequestError(r, "admin plan distribution scan failed", err)
			utils.JSONErr(w, http.StatusInternalServerError, "db error")
			return
		}
		plans[plan] = count
	}
	if err := rows.Err(); err != nil {
		c.logRequestError(r, "admin plan distribution iteration failed", err)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}

	utils.JSONOK(w, map[string]interface{}{
		"success":          true,
		"totalUsers":       totalUsers,
		"verifiedUsers":    verifiedUsers,
		"totalLeads":       totalLeads,
		"totalChats":       totalChats,
		"pendingFollowUps": pendingFollowUps,
		"planDistribution": plans,
	})
}

func (c *Controller) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	offset := 0
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	search := strings.TrimSpace(r.URL.Query().Get("q"))

	query := `SELECT id,email,business_name,plan,plan_expires_at,messages_used,leads_used,is_verified,created_at
		FROM users`
	args := []interface{}{}
	if search != "" {
		query += ` WHERE email ILIKE $1 OR business_name ILIKE $1`
		args = append(args, "%"+search+"%")
	}
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := c.db.Query(query, args...)
	if err != nil {
		c.logRequestError(r, "admin users query failed", err)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	defer rows.Close()

	users := []map[string]interface{}{}
	for rows.Next() {
		var id, email, businessName, plan string
		var planExpiresAt sql.NullTime
		var messagesUsed, leadsUsed int
		var isVerified bool
		var createdAt time.Time
		if err := rows.Scan(&id, &email, &businessName, &plan, &planExpiresAt, &messagesUsed, &leadsUsed, &isVerified, &createdAt); err != nil {
			c.logRequestError(r, "admin user scan failed", err)
			utils.JSONErr(w, http.StatusInternalServerError, "db error")
			return
		}
		users = append(users, map[string]interface{}{
			"id":            id,
			"email":         email,
			"businessName":  businessName,
			"plan":          plan,
			"planExpiresAt": utils.NullTime(planExpiresAt),
			"messagesUsed":  messagesUsed,
			"leadsUsed":     leadsUsed,
			"isVerified":    isVerified,
			"createdAt":     createdAt,
		})
	}
	if err := rows.Err(); err != nil {
		c.logRequestError(r, "admin users iteration failed", err)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	utils.JSONOK(w, map[string]interface{}{"success": true, "users": users, "count": len(users)})
}

// AdminSetUserPlan assigns a plan, optionally with an expiry. The target's
// widget cache is dropped so public behavior reflects the new tier at once.
func (c *Controller) AdminSetUserPlan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID    string     `json:"userId"`
		Email     string     `json:"email"`
		Plan      string     `json:"plan"`
		ExpiresAt *time.Time `json:"expiresAt"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		utils.JSONErr(w, http.StatusBadRequest, "invalid payload")
		return
	}
	plan := strings.ToLower(strings.TrimSpace(body.Plan))
	if !validPlan(plan) {
		utils.JSONErr(w, http.StatusBadRequest, "invalid plan")
		return
	}
	if body.UserID == "" && body.Email == "" {
		utils.JSONErr(w, http.StatusBadRequest, "userId or email is required")
		return
	}

	var expires sql.NullTime
	if body.ExpiresAt != nil {
		expires = sql.NullTime{Time: *body.ExpiresAt, Valid: true}
	}

	var query string
	var ident interface{}
	if body.UserID != "" {
		query = `UPDATE users SET plan=$2,plan_expires_at=$3,updated_at=CURRENT_TIMESTAMP WHERE id=$1 RETURNING id,widget_key`
		ident = body.UserID
	} else {
		query = `UPDATE users SET plan=$2,plan_expires_at=$3,updated_at=CURRENT_TIMESTAMP WHERE email=$1 RETURNING id,widget_key`
		ident = normalizeEmail(body.Email)
	}
	var userID, widgetKey string
	err := c.db.QueryRow(query, ident, plan, expires).Scan(&userID, &widgetKey)
	if errors.Is(err, sql.ErrNoRows) {
		utils.JSONErr(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		c.logRequestError(r, "admin plan update failed", err)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	c.invalidateWidgetCache(r, widgetKey)
	c.requestLogger(r).Info("plan changed", "user_id", userID, "plan", plan)
	utils.JSONOK(w, map[string]interface{}{
		"success":   true,
		"userId":    userID,
		"plan":      plan,
		"expiresAt": utils.NullTime(expires),
	})
}
