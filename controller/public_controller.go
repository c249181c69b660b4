package controller

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"leadwise-backend/utils"
)

const widgetCacheTTL = 10 * time.Minute

func widgetCacheKey(key string) string {
	return "widget:" + key
}

func (c *Controller) invalidateWidgetCache(r *http.Request, widgetKey string) {
	if c.redis == nil || widgetKey == "" {
		return
	}
	ctx := context.Background()
	if r != nil {
		ctx = r.Context()
	}
	if err := c.redis.Del(ctx, widgetCacheKey(widgetKey)).Err(); err != nil {
		c.logRequestWarn(r, "widget cache invalidation failed", err, "widget_key", widgetKey)
	}
}

func defaultWidgetConfig() map[string]interface{} {
	return map[string]interface{}{
		"businessName": "Leadwise Assistant",
		"color":        "#4f46e5",
		"welcome":      "Hi there! How can I help you today?",
		"tone":         "friendly",
		"tools": map[string]interface{}{
			"booking":  map[string]interface{}{"active": false},
			"vision":   map[string]interface{}{"active": false},
			"followup": map[string]interface{}{"active": false},
		},
	}
}

// PublicWidgetConfig serves the embeddable widget its appearance and active
// tool flags. Unknown keys get a generic default config with a 200 so a stale
// embed never breaks the host page.
func (c *Controller) PublicWidgetConfig(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(chi.URLParam(r, "key"))
	if key == "" {
		utils.JSONErr(w, http.StatusBadRequest, "widget key is required")
		return
	}

	if c.redis != nil {
		if cached, err := c.redis.Get(r.Context(), widgetCacheKey(key)).Result(); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(cached))
			return
		}
	}

	user, hub, err := c.loadWidgetOwner(key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			cfg := defaultWidgetConfig()
			cfg["success"] = true
			utils.JSONOK(w, cfg)
			return
		}
		c.logRequestError(r, "widget config query failed", err, "widget_key", key)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}

	cfg := map[string]interface{}{
		"success":      true,
		"businessName": user.BusinessName,
		"color":        coalesce(user.WidgetColor.String, "#4f46e5"),
		"welcome":      coalesce(user.WidgetWelcome.String, "Hi there! How can I help you today?"),
		"tone":         coalesce(user.WidgetTone.String, "friendly"),
		"tools": map[string]interface{}{
			"booking": map[string]interface{}{
				"active": hub.BookingActive,
				"url":    utils.NullString(hub.BookingURL),
			},
			"vision":   map[string]interface{}{"active": hub.VisionActive},
			"followup": map[string]interface{}{"active": hub.FollowupActive},
		},
	}

	if c.redis != nil {
		if raw, err := json.Marshal(cfg); err == nil {
			if err := c.redis.Set(r.Context(), widgetCacheKey(key), raw, widgetCacheTTL).Err(); err != nil {
				c.logRequestWarn(r, "widget cache store failed", err, "widget_key", key)
			}
		}
	}
	utils.JSONOK(w, cfg)
}

// loadWidgetOwner resolves a widget key to its owning user plus the smart hub
// settings that shape public behavior.
func (c *Controller) loadWidgetOwner(widgetKey string) (UserRecord, smartHubRow, error) {
	row := c.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE widget_key=$1`, widgetKey)
	user, err := scanUser(row)
	if err != nil {
		return UserRecord{}, smartHubRow{}, err
	}
	hub, err := c.loadSmartHub(user.ID)
	if err != nil {
		return UserRecord{}, smartHubRow{}, err
	}
	return user, hub, nil
}

func (c *Controller) PublicLead(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WidgetKey string `json:"widgetKey"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		Phone     string `json:"phone"`
		Message   string `json:"message"`
		SessionID string `json:"sessionId"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		utils.JSONErr(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(body.WidgetKey) == "" {
		utils.JSONErr(w, http.StatusBadRequest, "widgetKey is required")
		return
	}
	email := normalizeEmail(body.Email)
	if strings.TrimSpace(body.Name) == "" || !utils.ValidateEmail(email) {
		utils.JSONErr(w, http.StatusBadRequest, "name and a valid email are required")
		return
	}

	user, hub, err := c.loadWidgetOwner(strings.TrimSpace(body.WidgetKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			utils.JSONErr(w, http.StatusNotFound, "widget not found")
			return
		}
		c.logRequestError(r, "lead widget lookup failed", err)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}

	var existingID string
	err = c.db.QueryRow(`SELECT id FROM leads WHERE user_id=$1 AND email=$2`, user.ID, email).Scan(&existingID)
	isNew := errors.Is(err, sql.ErrNoRows)
	if err != nil && !isNew {
		c.logRequestError(r, "lead existence check failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}

	// Only a genuinely new lead consumes quota. Repeat submissions from the
	// same visitor refresh the record for free.
	if isNew {
		plan := effectivePlan(user.Plan, user.PlanExpiresAt, user.Email, c.cfg.AdminEmail, c.now())
		limit := limitsForPlan(plan).Leads
		var used int
		err = c.db.QueryRow(`UPDATE users SET leads_used=leads_used+1,updated_at=CURRENT_TIMESTAMP
			WHERE id=$1 AND ($2 < 0 OR leads_used < $2) RETURNING leads_used`, user.ID, limit).Scan(&used)
		if errors.Is(err, sql.ErrNoRows) {
			utils.JSONErr(w, http.StatusPaymentRequired, "lead limit reached")
			return
		}
		if err != nil {
			c.logRequestError(r, "lead quota update failed", err, "user_id", user.ID)
			utils.JSONErr(w, http.StatusInternalServerError, "db error")
			return
		}
	}

	var leadID string
	err = c.db.QueryRow(`INSERT INTO leads (user_id,name,email,phone,message)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (user_id,email) DO UPDATE SET
			name=EXCLUDED.name,
			phone=COALESCE(EXCLUDED.phone, leads.phone),
			message=COALESCE(EXCLUDED.message, leads.message),
			updated_at=CURRENT_TIMESTAMP
		RETURNING id`,
		user.ID, strings.TrimSpace(body.Name), email,
		utils.Nullable(body.Phone), utils.Nullable(body.Message)).Scan(&leadID)
	if err != nil {
		c.logRequestError(r, "lead upsert failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}

	go c.leadSideEffects(user, hub, leadID, email, strings.TrimSpace(body.Name), strings.TrimSpace(body.SessionID))

	utils.JSONOK(w, map[string]interface{}{"success": true, "leadId": leadID, "new": isNew})
}

// leadSideEffects runs enrichment and follow up scheduling off the request
// path. Failures are logged and never surfaced to the widget.
func (c *Controller) leadSideEffects(user UserRecord, hub smartHubRow, leadID, email, name, sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if hub.ApolloActive && hub.ApolloAPIKey.Valid {
		if enriched, err := c.apolloEnrich(ctx, hub.ApolloAPIKey.String, email); err != nil {
			c.logger.Warn("lead enrichment failed", "lead_id", leadID, "error", err)
		} else if enriched.Company != "" || enriched.JobTitle != "" {
			_, err := c.db.ExecContext(ctx, `UPDATE leads SET company=COALESCE($2,company),job_title=COALESCE($3,job_title),updated_at=CURRENT_TIMESTAMP WHERE id=$1`,
				leadID, utils.Nullable(enriched.Company), utils.Nullable(enriched.JobTitle))
			if err != nil {
				c.logger.Warn("lead enrichment store failed", "lead_id", leadID, "error", err)
			}
		}
	}

	if hub.FollowupActive {
		delay := hub.FollowupDelayMinutes
		if delay <= 0 {
			delay = c.cfg.FollowUpDelayMinutes
		}
		_, err := c.db.ExecContext(ctx, `INSERT INTO follow_ups (user_id,email,name,session_id,scheduled_for)
			VALUES ($1,$2,$3,$4,$5)`,
			user.ID, email, utils.Nullable(name), utils.Nullable(sessionID),
			time.Now().Add(time.Duration(delay)*time.Minute))
		if err != nil {
			c.logger.Warn("follow up scheduling failed", "lead_id", leadID, "error", err)
		}
	}
}

type chatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (c *Controller) PublicChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WidgetKey  string     `json:"widgetKey"`
		SessionID  string     `json:"sessionId"`
		ClientName string     `json:"clientName"`
		Message    string     `json:"message"`
		History    []chatTurn `json:"history"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		utils.JSONErr(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(body.WidgetKey) == "" || strings.TrimSpace(body.Message) == "" {
		utils.JSONErr(w, http.StatusBadRequest, "widgetKey and message are required")
		return
	}

	user, hub, err := c.loadWidgetOwner(strings.TrimSpace(body.WidgetKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			utils.JSONErr(w, http.StatusNotFound, "widget not found")
			return
		}
		c.logRequestError(r, "chat widget lookup failed", err)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}

	plan := effectivePlan(user.Plan, user.PlanExpiresAt, user.Email, c.cfg.AdminEmail, c.now())
	limit := limitsForPlan(plan).Messages
	var used int
	err = c.db.QueryRow(`UPDATE users SET messages_used=messages_used+1,updated_at=CURRENT_TIMESTAMP
		WHERE id=$1 AND ($2 < 0 OR messages_used < $2) RETURNING messages_used`, user.ID, limit).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		utils.JSONErr(w, http.StatusPaymentRequired, "message limit reached")
		return
	}
	if err != nil {
		c.logRequestError(r, "chat quota update failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}

	sessionID := strings.TrimSpace(body.SessionID)
	if sessionID == "" {
		sessionID = utils.RandomID("sess")
	}

	reply, err := c.inferenceChat(r.Context(), buildSystemPrompt(user, hub), body.History, body.Message)
	if err != nil {
		c.logRequestWarn(r, "chat inference failed", err, "user_id", user.ID)
		reply = fmt.Sprintf("Thanks for reaching out to %s! We're having a little trouble answering right now. Please leave your email and we'll get back to you shortly.", user.BusinessName)
	}

	if _, err := c.db.Exec(`INSERT INTO chats (user_id,session_id,client_name,message,response) VALUES ($1,$2,$3,$4,$5)`,
		user.ID, sessionID, utils.Nullable(body.ClientName), body.Message, reply); err != nil {
		c.logRequestWarn(r, "chat persist failed", err, "user_id", user.ID)
	}

	utils.JSONOK(w, map[string]interface{}{"success": true, "reply": reply, "sessionId": sessionID})
}

func (c *Controller) PublicEnrich(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WidgetKey string `json:"widgetKey"`
		Email     string `json:"email"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		utils.JSONErr(w, http.StatusBadRequest, "invalid payload")
		return
	}
	email := normalizeEmail(body.Email)
	if strings.TrimSpace(body.WidgetKey) == "" || !utils.ValidateEmail(email) {
		utils.JSONErr(w, http.StatusBadRequest, "widgetKey and a valid email are required")
		return
	}

	user, hub, err := c.loadWidgetOwner(strings.TrimSpace(body.WidgetKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			utils.JSONErr(w, http.StatusNotFound, "widget not found")
			return
		}
		c.logRequestError(r, "enrich widget lookup failed", err)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	if !hub.ApolloActive || !hub.ApolloAPIKey.Valid || hub.ApolloAPIKey.String == "" {
		utils.JSONErr(w, http.StatusBadRequest, "Lead enrichment not enabled")
		return
	}

	// Enrichment stays best effort: an upstream failure answers with a null
	// profile rather than an error the widget would have to handle.
	enriched, err := c.apolloEnrich(r.Context(), hub.ApolloAPIKey.String, email)
	if err != nil {
		c.logRequestWarn(r, "enrichment request failed", err, "user_id", user.ID)
		utils.JSONOK(w, map[string]interface{}{"success": true, "company": nil, "jobTitle": nil})
		return
	}
	_, err = c.db.Exec(`UPDATE leads SET company=COALESCE($3,company),job_title=COALESCE($4,job_title),updated_at=CURRENT_TIMESTAMP
		WHERE user_id=$1 AND email=$2`,
		user.ID, email, utils.Nullable(enriched.Company), utils.Nullable(enriched.JobTitle))
	if err != nil {
		c.logRequestWarn(r, "enrichment store failed", err, "user_id", user.ID)
	}
	utils.JSONOK(w, map[string]interface{}{
		"success":  true,
		"company":  utils.Nullable(enriched.Company),
		"jobTitle": utils.Nullable(enriched.JobTitle),
	})
}

func (c *Controller) PublicFollowupSchedule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WidgetKey string `json:"widgetKey"`
		Email     string `json:"email"`
		Name      string `json:"name"`
		SessionID string `json:"sessionId"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		utils.JSONErr(w, http.StatusBadRequest, "invalid payload")
		return
	}
	email := normalizeEmail(body.Email)
	if strings.TrimSpace(body.WidgetKey) == "" || !utils.ValidateEmail(email) {
		utils.JSONErr(w, http.StatusBadRequest, "widgetKey and a valid email are required")
		return
	}

	user, hub, err := c.loadWidgetOwner(strings.TrimSpace(body.WidgetKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			utils.JSONErr(w, http.StatusNotFound, "widget not found")
			return
		}
		c.logRequestError(r, "followup widget lookup failed", err)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	if !hub.FollowupActive {
		utils.JSONErr(w, http.StatusBadRequest, "Follow-up not enabled")
		return
	}

	delay := hub.FollowupDelayMinutes
	if delay <= 0 {
		delay = c.cfg.FollowUpDelayMinutes
	}
	scheduledFor := time.Now().Add(time.Duration(delay) * time.Minute)
	var id string
	err = c.db.QueryRow(`INSERT INTO follow_ups (user_id,email,name,session_id,scheduled_for)
		VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		user.ID, email, utils.Nullable(body.Name), utils.Nullable(body.SessionID), scheduledFor).Scan(&id)
	if err != nil {
		c.logRequestError(r, "followup insert failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	utils.JSONOK(w, map[string]interface{}{"success": true, "followUpId": id, "scheduledFor": scheduledFor})
}
