package controller

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"leadwise-backend/utils"
)

var leadStatuses = map[string]bool{
	"new":       true,
	"contacted": true,
	"qualified": true,
	"converted": true,
	"lost":      true,
}

type leadRow struct {
	ID        string
	Name      string
	Email     string
	Phone     sql.NullString
	Message   sql.NullString
	Company   sql.NullString
	JobTitle  sql.NullString
	Status    string
	CreatedAt sql.NullTime
	UpdatedAt sql.NullTime
}

func leadResponse(l leadRow) map[string]interface{} {
	return map[string]interface{}{
		"id":        l.ID,
		"name":      l.Name,
		"email":     l.Email,
		"phone":     utils.NullString(l.Phone),
		"message":   utils.NullString(l.Message),
		"company":   utils.NullString(l.Company),
		"jobTitle":  utils.NullString(l.JobTitle),
		"status":    l.Status,
		"createdAt": utils.NullTime(l.CreatedAt),
		"updatedAt": utils.NullTime(l.UpdatedAt),
	}
}

const leadColumns = `id,name,email,phone,message,company,job_title,status,created_at,updated_at`

func (c *Controller) ListLeads(w http.ResponseWriter, r *http.Request, claims TokenClaims, user UserRecord) {
	limit := 100
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))

	var rows *sql.Rows
	var err error
	if status != "" && leadStatuses[status] {
		rows, err = c.db.Query(`SELECT `+leadColumns+` FROM leads WHERE user_id=$1 AND status=$2 ORDER BY created_at DESC LIMIT $3`,
			user.ID, status, limit)
	} else {
		rows, err = c.db.Query(`SELECT `+leadColumns+` FROM leads WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`,
			user.ID, limit)
	}
	if err != nil {
		c.logRequestError(r, "leads query failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	defer rows.Close()

	leads := []map[string]interface{}{}
	for rows.Next() {
		var l leadRow
		if err := rows.Scan(&l.ID, &l.Name, &l.Email, &l.Phone, &l.Message, &l.Company, &l.JobTitle, &l.Status, &l.CreatedAt, &l.UpdatedAt); err != nil {
			c.logRequestError(r, "lead scan failed", err, "user_id", user.ID)
			utils.JSONErr(w, http.StatusInternalServerError, "db error")
			return
		}
		leads = append(leads, leadResponse(l))
	}
	if err := rows.Err(); err != nil {
		c.logRequestError(r, "leads iteration failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	utils.JSONOK(w, map[string]interface{}{"success": true, "leads": leads, "count": len(leads)})
}

// CreateLead adds a lead from the dashboard. It shares the widget path's
// dedup and quota rules so manual entry cannot bypass plan limits.
func (c *Controller) CreateLead(w http.ResponseWriter, r *http.Request, claims TokenClaims, user UserRecord) {
	var body struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Phone   string `json:"phone"`
		Message string `json:"message"`
		Company string `json:"company"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		utils.JSONErr(w, http.StatusBadRequest, "invalid payload")
		return
	}
	email := normalizeEmail(body.Email)
	if strings.TrimSpace(body.Name) == "" || !utils.ValidateEmail(email) {
		utils.JSONErr(w, http.StatusBadRequest, "name and a valid email are required")
		return
	}

	var existingID string
	err := c.db.QueryRow(`SELECT id FROM leads WHERE user_id=$1 AND email=$2`, user.ID, email).Scan(&existingID)
	isNew := errors.Is(err, sql.ErrNoRows)
	if err != nil && !isNew {
		c.logRequestError(r, "lead existence check failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	if isNew {
		plan := c.resolvePlan(user.ID, user.Email)
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

	row := c.db.QueryRow(`INSERT INTO leads (user_id,name,email,phone,message,company)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (user_id,email) DO UPDATE SET
			name=EXCLUDED.name,
			phone=COALESCE(EXCLUDED.phone, leads.phone),
			message=COALESCE(EXCLUDED.message, leads.message),
			company=COALESCE(EXCLUDED.company, leads.company),
			updated_at=CURRENT_TIMESTAMP
		RETURNING `+leadColumns,
		user.ID, strings.TrimSpace(body.Name), email,
		utils.Nullable(body.Phone), utils.Nullable(body.Message), utils.Nullable(body.Company))
	var l leadRow
	if err := row.Scan(&l.ID, &l.Name, &l.Email, &l.Phone, &l.Message, &l.Company, &l.JobTitle, &l.Status, &l.CreatedAt, &l.UpdatedAt); err != nil {
		c.logRequestError(r, "lead upsert failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	utils.JSONOK(w, map[string]interface{}{"success": true, "lead": leadResponse(l), "new": isNew})
}

func (c *Controller) GetLead(w http.ResponseWriter, r *http.Request, claims TokenClaims, user UserRecord) {
	leadID := chi.URLParam(r, "id")
	row := c.db.QueryRow(`SELECT `+leadColumns+` FROM leads WHERE id=$1 AND user_id=$2`, leadID, user.ID)
	var l leadRow
	err := row.Scan(&l.ID, &l.Name, &l.Email, &l.Phone, &l.Message, &l.Company, &l.JobTitle, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		utils.JSONErr(w, http.StatusNotFound, "lead not found")
		return
	}
	if err != nil {
		c.logRequestError(r, "lead query failed", err, "user_id", user.ID, "lead_id", leadID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	utils.JSONOK(w, map[string]interface{}{"success": true, "lead": leadResponse(l)})
}

func (c *Controller) UpdateLeadStatus(w http.ResponseWriter, r *http.Request, claims TokenClaims, user UserRecord) {
	leadID := chi.URLParam(r, "id")
	var body struct {
		Status string `json:"status"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		utils.JSONErr(w, http.StatusBadRequest, "invalid payload")
		return
	}
	status := strings.ToLower(strings.TrimSpace(body.Status))
	if !leadStatuses[status] {
		utils.JSONErr(w, http.StatusBadRequest, "invalid status")
		return
	}
	row := c.db.QueryRow(`UPDATE leads SET status=$3,updated_at=CURRENT_TIMESTAMP
		WHERE id=$1 AND user_id=$2 RETURNING `+leadColumns, leadID, user.ID, status)
	var l leadRow
	err := row.Scan(&l.ID, &l.Name, &l.Email, &l.Phone, &l.Message, &l.Company, &l.JobTitle, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		utils.JSONErr(w, http.StatusNotFound, "lead not found")
		return
	}
	if err != nil {
		c.logRequestError(r, "lead status update failed", err, "user_id", user.ID, "lead_id", leadID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	utils.JSONOK(w, map[string]interface{}{"success": true, "lead": leadResponse(l)})
}

func (c *Controller) UpdateLead(w http.ResponseWriter, r *http.Request, claims TokenClaims, user UserRecord) {
	leadID := chi.URLParam(r, "id")
	var body struct {
		Status  *string `json:"status"`
		Name    *string `json:"name"`
		Phone   *string `json:"phone"`
		Message *string `json:"message"`
		Company *string `json:"company"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		utils.JSONErr(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if body.Status != nil {
		s := strings.ToLower(strings.TrimSpace(*body.Status))
		if !leadStatuses[s] {
			utils.JSONErr(w, http.StatusBadRequest, "invalid status")
			return
		}
		*body.Status = s
	}

	row := c.db.QueryRow(`UPDATE leads SET
			status=COALESCE($3,status),
			name=COALESCE($4,name),
			phone=COALESCE($5,phone),
			message=COALESCE($6,message),
			company=COALESCE($7,company),
			updated_at=CURRENT_TIMESTAMP
		WHERE id=$1 AND user_id=$2
		RETURNING `+leadColumns,
		leadID, user.ID, body.Status, body.Name, body.Phone, body.Message, body.Company)
	var l leadRow
	err := row.Scan(&l.ID, &l.Name, &l.Email, &l.Phone, &l.Message, &l.Company, &l.JobTitle, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		utils.JSONErr(w, http.StatusNotFound, "lead not found")
		return
	}
	if err != nil {
		c.logRequestError(r, "lead update failed", err, "user_id", user.ID, "lead_id", leadID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	utils.JSONOK(w, map[string]interface{}{"success": true, "lead": leadResponse(l)})
}

// DeleteLead removes a lead. Usage counters are lifetime totals and are not
// refunded on delete.
func (c *Controller) DeleteLead(w http.ResponseWriter, r *http.Request, claims TokenClaims, user UserRecord) {
	leadID := chi.URLParam(r, "id")
	res, err := c.db.Exec(`DELETE FROM leads WHERE id=$1 AND user_id=$2`, leadID, user.ID)
	if err != nil {
		c.logRequestError(r, "lead delete failed", err, "user_id", user.ID, "lead_id", leadID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		utils.JSONErr(w, http.StatusNotFound, "lead not found")
		return
	}
	utils.JSONOK(w, map[string]interface{}{"success": true})
}
