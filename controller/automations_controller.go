package controller

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"leadwise-backend/utils"
)

type automationRow struct {
	ID        string
	Title     string
	Trigger   string
	Action    string
	Icon      sql.NullString
	Enabled   bool
	Live      bool
	CreatedAt sql.NullTime
	UpdatedAt sql.NullTime
}

func automationResponse(a automationRow) map[string]interface{} {
	return map[string]interface{}{
		"id":        a.ID,
		"title":     a.Title,
		"trigger":   a.Trigger,
		"action":    a.Action,
		"icon":      utils.NullString(a.Icon),
		"enabled":   a.Enabled,
		"live":      a.Live,
		"createdAt": utils.NullTime(a.CreatedAt),
		"updatedAt": utils.NullTime(a.UpdatedAt),
	}
}

const automationColumns = `id,title,trigger,action,icon,enabled,live,created_at,updated_at`

func scanAutomation(s interface{ Scan(...interface{}) error }) (automationRow, error) {
	var a automationRow
	err := s.Scan(&a.ID, &a.Title, &a.Trigger, &a.Action, &a.Icon, &a.Enabled, &a.Live, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (c *Controller) ListAutomations(w http.ResponseWriter, r *http.Request, claims TokenClaims, user UserRecord) {
	rows, err := c.db.Query(`SELECT `+automationColumns+` FROM automations WHERE user_id=$1 ORDER BY created_at DESC`, user.ID)
	if err != nil {
		c.logRequestError(r, "automations query failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	defer rows.Close()

	automations := []map[string]interface{}{}
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			c.logRequestError(r, "automation scan failed", err, "user_id", user.ID)
			utils.JSONErr(w, http.StatusInternalServerError, "db error")
			return
		}
		automations = append(automations, automationResponse(a))
	}
	if err := rows.Err(); err != nil {
		c.logRequestError(r, "automations iteration failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	utils.JSONOK(w, map[string]interface{}{"success": true, "automations": automations})
}

func (c *Controller) CreateAutomation(w http.ResponseWriter, r *http.Request, claims TokenClaims, user UserRecord) {
	var body struct {
		Title   string `json:"title"`
		Trigger string `json:"trigger"`
		Action  string `json:"action"`
		Icon    string `json:"icon"`
		Enabled bool   `json:"enabled"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		utils.JSONErr(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(body.Title) == "" || strings.TrimSpace(body.Trigger) == "" || strings.TrimSpace(body.Action) == "" {
		utils.JSONErr(w, http.StatusBadRequest, "title, trigger and action are required")
		return
	}
	row := c.db.QueryRow(`INSERT INTO automations (user_id,title,trigger,action,icon,enabled)
		VALUES ($1,$2,$3,$4,$5,$6) RETURNING `+automationColumns,
		user.ID, strings.TrimSpace(body.Title), strings.TrimSpace(body.Trigger),
		strings.TrimSpace(body.Action), utils.Nullable(body.Icon), body.Enabled)
	a, err := scanAutomation(row)
	if err != nil {
		c.logRequestError(r, "automation insert failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	utils.JSONOK(w, map[string]interface{}{"success": true, "automation": automationResponse(a)})
}

func (c *Controller) UpdateAutomation(w http.ResponseWriter, r *http.Request, claims TokenClaims, user UserRecord) {
	automationID := chi.URLParam(r, "id")
	var body struct {
		Title   *string `json:"title"`
		Trigger *string `json:"trigger"`
		Action  *string `json:"action"`
		Icon    *string `json:"icon"`
		Enabled *bool   `json:"enabled"`
		Live    *bool   `json:"live"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		utils.JSONErr(w, http.StatusBadRequest, "invalid payload")
		return
	}
	row := c.db.QueryRow(`UPDATE automations SET
			title=COALESCE($3,title),
			trigger=COALESCE($4,trigger),
			action=COALESCE($5,action),
			icon=COALESCE($6,icon),
			enabled=COALESCE($7,enabled),
			live=COALESCE($8,live),
			updated_at=CURRENT_TIMESTAMP
		WHERE id=$1 AND user_id=$2 RETURNING `+automationColumns,
		automationID, user.ID, body.Title, body.Trigger, body.Action, body.Icon, body.Enabled, body.Live)
	a, err := scanAutomation(row)
	if errors.Is(err, sql.ErrNoRows) {
		utils.JSONErr(w, http.StatusNotFound, "automation not found")
		return
	}
	if err != nil {
		c.logRequestError(r, "automation update failed", err, "user_id", user.ID, "automation_id", automationID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	utils.JSONOK(w, map[string]interface{}{"success": true, "automation": automationResponse(a)})
}

func (c *Controller) DeleteAutomation(w http.ResponseWriter, r *http.Request, claims TokenClaims, user UserRecord) {
	automationID := chi.URLParam(r, "id")
	res, err := c.db.Exec(`DELETE FROM automations WHERE id=$1 AND user_id=$2`, automationID, user.ID)
	if err != nil {
		c.logRequestError(r, "automation delete failed", err, "user_id", user.ID, "automation_id", automationID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		utils.JSONErr(w, http.StatusNotFound, "automation not found")
		return
	}
	utils.JSONOK(w, map[string]interface{}{"success": true})
}
