package controller

import (
	"net/http"
	"regexp"
	"strings"

	"leadwise-backend/utils"
)

var hexColorRe = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

var widgetTones = map[string]bool{
	"friendly":     true,
	"professional": true,
	"casual":       true,
	"formal":       true,
}

// UpdateWidgetAppearance saves the widget's look and voice, then drops the
// cached public config so embeds pick the change up on the next load.
func (c *Controller) UpdateWidgetAppearance(w http.ResponseWriter, r *http.Request, claims TokenClaims, user UserRecord) {
	var body struct {
		Color   *string `json:"color"`
		Welcome *string `json:"welcome"`
		Tone    *string `json:"tone"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		utils.JSONErr(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if body.Color != nil && !hexColorRe.MatchString(strings.TrimSpace(*body.Color)) {
		utils.JSONErr(w, http.StatusBadRequest, "color must be a hex value like #4f46e5")
		return
	}
	if body.Tone != nil {
		t := strings.ToLower(strings.TrimSpace(*body.Tone))
		if !widgetTones[t] {
			utils.JSONErr(w, http.StatusBadRequest, "unsupported tone")
			return
		}
		*body.Tone = t
	}
	if body.Welcome != nil && len(*body.Welcome) > 500 {
		utils.JSONErr(w, http.StatusBadRequest, "welcome message is too long")
		return
	}

	_, err := c.db.Exec(`UPDATE users SET
			widget_color=COALESCE($2,widget_color),
			widget_welcome=COALESCE($3,widget_welcome),
			widget_tone=COALESCE($4,widget_tone),
			updated_at=CURRENT_TIMESTAMP
		WHERE id=$1`,
		user.ID, body.Color, body.Welcome, body.Tone)
	if err != nil {
		c.logRequestError(r, "widget appearance update failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	c.invalidateWidgetCache(r, user.WidgetKey)

	row := c.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id=$1`, user.ID)
	updated, err := scanUser(row)
	if err != nil {
		c.logRequestError(r, "widget appearance reload failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	utils.JSONOK(w, map[string]interface{}{"success": true, "user": c.userResponse(updated)})
}

// RotateWidgetKey issues a fresh widget key, invalidating existing embeds.
func (c *Controller) RotateWidgetKey(w http.ResponseWriter, r *http.Request, claims TokenClaims, user UserRecord) {
	oldKey := user.WidgetKey
	newKey := generateWidgetKey()
	if _, err := c.db.Exec(`UPDATE users SET widget_key=$2,updated_at=CURRENT_TIMESTAMP WHERE id=$1`, user.ID, newKey); err != nil {
		c.logRequestError(r, "widget key rotation failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	c.invalidateWidgetCache(r, oldKey)
	utils.JSONOK(w, map[string]interface{}{"success": true, "widgetKey": newKey})
}
