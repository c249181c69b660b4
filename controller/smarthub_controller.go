package controller

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"leadwise-backend/utils"
)

// smartHubRow mirrors one smart_hub_settings record. A user without a row is
// served zero-value settings, so the dashboard never 404s on first visit.
type smartHubRow struct {
	BrainInstructions    sql.NullString
	BrainActive          bool
	BookingURL           sql.NullString
	BookingActive        bool
	SentimentEmail       sql.NullString
	SentimentActive      bool
	HandoverEmail        sql.NullString
	HandoverActive       bool
	WebhookURL           sql.NullString
	WebhookActive        bool
	ApolloAPIKey         sql.NullString
	ApolloActive         bool
	VisionActive         bool
	FollowupSubject      sql.NullString
	FollowupDelayMinutes int
	FollowupActive       bool
}

const smartHubColumns = `brain_instructions,brain_active,booking_url,booking_active,
	sentiment_email,sentiment_active,handover_email,handover_active,
	webhook_url,webhook_active,apollo_api_key,apollo_active,vision_active,
	followup_subject,followup_delay_minutes,followup_active`

func (c *Controller) loadSmartHub(userID string) (smartHubRow, error) {
	var s smartHubRow
	err := c.db.QueryRow(`SELECT `+smartHubColumns+` FROM smart_hub_settings WHERE user_id=$1`, userID).Scan(
		&s.BrainInstructions, &s.BrainActive, &s.BookingURL, &s.BookingActive,
		&s.SentimentEmail, &s.SentimentActive, &s.HandoverEmail, &s.HandoverActive,
		&s.WebhookURL, &s.WebhookActive, &s.ApolloAPIKey, &s.ApolloActive, &s.VisionActive,
		&s.FollowupSubject, &s.FollowupDelayMinutes, &s.FollowupActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return smartHubRow{FollowupDelayMinutes: c.cfg.FollowUpDelayMinutes}, nil
	}
	return s, err
}

func (c *Controller) ensureSmartHubRow(userID string) error {
	_, err := c.db.Exec(`INSERT INTO smart_hub_settings (user_id, followup_delay_minutes)
		VALUES ($1,$2) ON CONFLICT (user_id) DO NOTHING`, userID, c.cfg.FollowUpDelayMinutes)
	return err
}

func (c *Controller) smartHubResponse(s smartHubRow, plan string) map[string]interface{} {
	tools := map[string]interface{}{
		ToolBrain: map[string]interface{}{
			"active":       s.BrainActive,
			"instructions": utils.NullString(s.BrainInstructions),
		},
		ToolBooking: map[string]interface{}{
			"active": s.BookingActive,
			"url":    utils.NullString(s.BookingURL),
		},
		ToolSentiment: map[string]interface{}{
			"active": s.SentimentActive,
			"email":  utils.NullString(s.SentimentEmail),
		},
		ToolHandover: map[string]interface{}{
			"active": s.HandoverActive,
			"email":  utils.NullString(s.HandoverEmail),
		},
		ToolWebhook: map[string]interface{}{
			"active": s.WebhookActive,
			"url":    utils.NullString(s.WebhookURL),
		},
		ToolApollo: map[string]interface{}{
			"active":     s.ApolloActive,
			"configured": s.ApolloAPIKey.Valid && s.ApolloAPIKey.String != "",
		},
		ToolVision: map[string]interface{}{
			"active": s.VisionActive,
		},
		ToolFollowup: map[string]interface{}{
			"active":       s.FollowupActive,
			"subject":      utils.NullString(s.FollowupSubject),
			"delayMinutes": s.FollowupDelayMinutes,
		},
	}
	allowed := map[string]bool{}
	for tool := range toolMinPlan {
		allowed[tool] = planAllowsTool(plan, tool)
	}
	return map[string]interface{}{"success": true, "plan": plan, "tools": tools, "allowedTools": allowed}
}

// toolConfigured reports whether the stored row carries the field a tool
// cannot run without. Tools with no required config always pass.
func toolConfigured(s smartHubRow, tool string) (string, bool) {
	switch tool {
	case ToolBooking:
		return "a booking url", s.BookingURL.Valid && s.BookingURL.String != ""
	case ToolWebhook:
		return "a webhook url", s.WebhookURL.Valid && s.WebhookURL.String != ""
	case ToolSentiment:
		return "an alert email", s.SentimentEmail.Valid && s.SentimentEmail.String != ""
	case ToolHandover:
		return "a handover email", s.HandoverEmail.Valid && s.HandoverEmail.String != ""
	case ToolApollo:
		return "an api key", s.ApolloAPIKey.Valid && s.ApolloAPIKey.String != ""
	default:
		return "", true
	}
}

func (c *Controller) GetSmartHubSettings(w http.ResponseWriter, r *http.Request, claims TokenClaims, user UserRecord) {
	settings, err := c.loadSmartHub(user.ID)
	if err != nil {
		c.logRequestError(r, "smart hub settings query failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	plan := effectivePlan(user.Plan, user.PlanExpiresAt, user.Email, c.cfg.AdminEmail, c.now())
	resp := c.smartHubResponse(settings, plan)
	resp["businessType"] = utils.NullString(user.BusinessType)
	utils.JSONOK(w, resp)
}

// SaveSmartHubSettings stores the general business profile that primes the
// assistant, separate from per-tool config.
func (c *Controller) SaveSmartHubSettings(w http.ResponseWriter, r *http.Request, claims TokenClaims, user UserRecord) {
	var body struct {
		BusinessType *string `json:"businessType"`
		BusinessName *string `json:"businessName"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		utils.JSONErr(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if body.BusinessType == nil && body.BusinessName == nil {
		utils.JSONErr(w, http.StatusBadRequest, "businessType or businessName is required")
		return
	}
	if body.BusinessName != nil && strings.TrimSpace(*body.BusinessName) == "" {
		utils.JSONErr(w, http.StatusBadRequest, "businessName must not be empty")
		return
	}
	if body.BusinessType != nil {
		t := strings.TrimSpace(*body.BusinessType)
		*body.BusinessType = t
	}
	if _, err := c.db.Exec(`UPDATE users SET
			business_type=COALESCE($2,business_type),
			business_name=COALESCE($3,business_name),
			updated_at=CURRENT_TIMESTAMP
		WHERE id=$1`,
		user.ID, body.BusinessType, body.BusinessName); err != nil {
		c.logRequestError(r, "smart hub business profile update failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	// The widget greets with the business name, so embeds must see the change.
	c.invalidateWidgetCache(r, user.WidgetKey)

	row := c.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id=$1`, user.ID)
	updated, err := scanUser(row)
	if err != nil {
		c.logRequestError(r, "smart hub business profile reload failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	utils.JSONOK(w, map[string]interface{}{
		"success":      true,
		"businessName": updated.BusinessName,
		"businessType": utils.NullString(updated.BusinessType),
	})
}

// toolConfig normalizes the loosely shaped config object widgets and older
// dashboard builds send. Each field accepts its canonical key plus the legacy
// aliases still in the wild.
type toolConfig map[string]interface{}

func (tc toolConfig) str(keys ...string) string {
	for _, k := range keys {
		if v, ok := tc[k]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func (tc toolConfig) num(keys ...string) (int, bool) {
	for _, k := range keys {
		if v, ok := tc[k]; ok {
			if f, ok := v.(float64); ok {
				return int(f), true
			}
		}
	}
	return 0, false
}

func (c *Controller) SaveSmartHubTool(w http.ResponseWriter, r *http.Request, claims TokenClaims, user UserRecord) {
	var body struct {
		Tool   string     `json:"tool"`
		Active bool       `json:"active"`
		Config toolConfig `json:"config"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		utils.JSONErr(w, http.StatusBadRequest, "invalid payload")
		return
	}
	tool := strings.ToLower(strings.TrimSpace(body.Tool))
	if !validTool(tool) {
		utils.JSONErr(w, http.StatusBadRequest, "unknown tool")
		return
	}
	plan := c.resolvePlan(user.ID, user.Email)
	if !planAllowsTool(plan, tool) {
		utils.JSONErr(w, http.StatusForbidden,
			fmt.Sprintf("the %s tool requires the %s plan or higher", tool, toolMinPlan[tool]))
		return
	}
	if err := c.ensureSmartHubRow(user.ID); err != nil {
		c.logRequestError(r, "smart hub row insert failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	if body.Config == nil {
		body.Config = toolConfig{}
	}

	var err error
	active := body.Active
	switch tool {
	case ToolBrain:
		instructions := body.Config.str("instructions", "brainInstructions", "prompt")
		_, err = c.db.Exec(`UPDATE smart_hub_settings SET brain_instructions=$2,brain_active=$3,updated_at=CURRENT_TIMESTAMP WHERE user_id=$1`,
			user.ID, utils.Nullable(instructions), active)
	case ToolBooking:
		bookingURL := body.Config.str("url", "bookingUrl", "link")
		if !utils.ValidateURL(bookingURL) {
			active = false
		}
		_, err = c.db.Exec(`UPDATE smart_hub_settings SET booking_url=$2,booking_active=$3,updated_at=CURRENT_TIMESTAMP WHERE user_id=$1`,
			user.ID, utils.Nullable(bookingURL), active)
	case ToolSentiment:
		email := normalizeEmail(body.Config.str("email", "alertEmail", "sentimentEmail"))
		if !utils.ValidateEmail(email) {
			active = false
		}
		_, err = c.db.Exec(`UPDATE smart_hub_settings SET sentiment_email=$2,sentiment_active=$3,updated_at=CURRENT_TIMESTAMP WHERE user_id=$1`,
			user.ID, utils.Nullable(email), active)
	case ToolHandover:
		email := normalizeEmail(body.Config.str("email", "handoverEmail"))
		if !utils.ValidateEmail(email) {
			active = false
		}
		_, err = c.db.Exec(`UPDATE smart_hub_settings SET handover_email=$2,handover_active=$3,updated_at=CURRENT_TIMESTAMP WHERE user_id=$1`,
			user.ID, utils.Nullable(email), active)
	case ToolWebhook:
		webhookURL := body.Config.str("url", "webhookUrl", "endpoint")
		if !utils.ValidateURL(webhookURL) {
			active = false
		}
		_, err = c.db.Exec(`UPDATE smart_hub_settings SET webhook_url=$2,webhook_active=$3,updated_at=CURRENT_TIMESTAMP WHERE user_id=$1`,
			user.ID, utils.Nullable(webhookURL), active)
	case ToolApollo:
		key := body.Config.str("apiKey", "apolloKey", "key")
		if key == "" {
			// Toggling without a key keeps the stored one.
			_, err = c.db.Exec(`UPDATE smart_hub_settings SET apollo_active=($2 AND apollo_api_key IS NOT NULL),updated_at=CURRENT_TIMESTAMP WHERE user_id=$1`,
				user.ID, active)
		} else {
			_, err = c.db.Exec(`UPDATE smart_hub_settings SET apollo_api_key=$2,apollo_active=$3,updated_at=CURRENT_TIMESTAMP WHERE user_id=$1`,
				user.ID, key, active)
		}
	case ToolVision:
		_, err = c.db.Exec(`UPDATE smart_hub_settings SET vision_active=$2,updated_at=CURRENT_TIMESTAMP WHERE user_id=$1`,
			user.ID, active)
	case ToolFollowup:
		subject := body.Config.str("subject", "followupSubject")
		delay := c.cfg.FollowUpDelayMinutes
		if d, ok := body.Config.num("delayMinutes", "delay"); ok && d > 0 {
			delay = d
		}
		_, err = c.db.Exec(`UPDATE smart_hub_settings SET followup_subject=$2,followup_delay_minutes=$3,followup_active=$4,updated_at=CURRENT_TIMESTAMP WHERE user_id=$1`,
			user.ID, utils.Nullable(subject), delay, active)
	}
	if err != nil {
		c.logRequestError(r, "smart hub tool save failed", err, "user_id", user.ID, "tool", tool)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}

	settings, err := c.loadSmartHub(user.ID)
	if err != nil {
		c.logRequestError(r, "smart hub reload failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	c.invalidateWidgetCache(r, user.WidgetKey)
	utils.JSONOK(w, c.smartHubResponse(settings, plan))
}

// DeactivateSmartHubTool flips a single tool off. Deactivation is never plan
// gated and is idempotent, so a downgraded account can always switch things off.
func (c *Controller) DeactivateSmartHubTool(w http.ResponseWriter, r *http.Request, claims TokenClaims, user UserRecord) {
	var body struct {
		Tool string `json:"tool"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		utils.JSONErr(w, http.StatusBadRequest, "invalid payload")
		return
	}
	tool := strings.ToLower(strings.TrimSpace(body.Tool))
	if !validTool(tool) {
		utils.JSONErr(w, http.StatusBadRequest, "unknown tool")
		return
	}
	// tool is validated against a fixed set, so the column name is safe.
	query := fmt.Sprintf(`UPDATE smart_hub_settings SET %s_active=FALSE,updated_at=CURRENT_TIMESTAMP WHERE user_id=$1`, tool)
	if _, err := c.db.Exec(query, user.ID); err != nil {
		c.logRequestError(r, "smart hub tool deactivate failed", err, "user_id", user.ID, "tool", tool)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	c.invalidateWidgetCache(r, user.WidgetKey)
	utils.JSONOK(w, map[string]interface{}{"success": true, "tool": tool, "active": false})
}

func (c *Controller) SmartHubToolStates(w http.ResponseWriter, r *http.Request, claims TokenClaims, user UserRecord) {
	settings, err := c.loadSmartHub(user.ID)
	if err != nil {
		c.logRequestError(r, "smart hub states query failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	plan := effectivePlan(user.Plan, user.PlanExpiresAt, user.Email, c.cfg.AdminEmail, c.now())
	states := map[string]bool{
		ToolBrain:     settings.BrainActive,
		ToolBooking:   settings.BookingActive,
		ToolSentiment: settings.SentimentActive,
		ToolHandover:  settings.HandoverActive,
		ToolWebhook:   settings.WebhookActive,
		ToolApollo:    settings.ApolloActive,
		ToolVision:    settings.VisionActive,
		ToolFollowup:  settings.FollowupActive,
	}
	allowed := map[string]bool{}
	for tool := range toolMinPlan {
		allowed[tool] = planAllowsTool(plan, tool)
	}
	utils.JSONOK(w, map[string]interface{}{
		"success":         true,
		"states":          states,
		"allowedTools":    allowed,
		"businessTypeSet": user.BusinessType.Valid && user.BusinessType.String != "",
	})
}

// TestSmartHubTool gives the dashboard a live check that a tool is usable on
// the current plan. The brain tool runs a real round trip through the
// inference backend; the rest just confirm the gate.
func (c *Controller) TestSmartHubTool(w http.ResponseWriter, r *http.Request, claims TokenClaims, user UserRecord) {
	var body struct {
		Tool string `json:"tool"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		utils.JSONErr(w, http.StatusBadRequest, "invalid payload")
		return
	}
	tool := strings.ToLower(strings.TrimSpace(body.Tool))
	if !validTool(tool) {
		utils.JSONErr(w, http.StatusBadRequest, "unknown tool")
		return
	}
	plan := c.resolvePlan(user.ID, user.Email)
	if !planAllowsTool(plan, tool) {
		utils.JSONErr(w, http.StatusForbidden,
			fmt.Sprintf("the %s tool requires the %s plan or higher", tool, toolMinPlan[tool]))
		return
	}
	if tool == ToolBrain {
		reply, err := c.inferenceChat(r.Context(),
			buildSystemPrompt(user, smartHubRow{}),
			nil, "Reply with a one sentence greeting to confirm the assistant is online.")
		if err != nil {
			c.logRequestWarn(r, "brain test inference failed", err, "user_id", user.ID)
			utils.JSONErr(w, http.StatusBadGateway, "assistant test failed")
			return
		}
		utils.JSONOK(w, map[string]interface{}{"success": true, "tool": tool, "reply": reply})
		return
	}

	// A successful test switches the tool on, but only when its required
	// config is already stored. Activation never outruns configuration.
	settings, err := c.loadSmartHub(user.ID)
	if err != nil {
		c.logRequestError(r, "smart hub settings query failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	if missing, ok := toolConfigured(settings, tool); !ok {
		utils.JSONErr(w, http.StatusBadRequest,
			fmt.Sprintf("the %s tool needs %s configured before it can be tested", tool, missing))
		return
	}
	if err := c.ensureSmartHubRow(user.ID); err != nil {
		c.logRequestError(r, "smart hub row insert failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	query := fmt.Sprintf(`UPDATE smart_hub_settings SET %s_active=TRUE,updated_at=CURRENT_TIMESTAMP WHERE user_id=$1`, tool)
	if _, err := c.db.Exec(query, user.ID); err != nil {
		c.logRequestError(r, "smart hub tool test activate failed", err, "user_id", user.ID, "tool", tool)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	c.invalidateWidgetCache(r, user.WidgetKey)
	utils.JSONOK(w, map[string]interface{}{"success": true, "tool": tool, "active": true, "message": "tool is available on your plan"})
}
