package controller

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"leadwise-backend/utils"
)

func (c *Controller) ListKnowledge(w http.ResponseWriter, r *http.Request, claims TokenClaims, user UserRecord) {
	rows, err := c.db.Query(`SELECT id,title,content,created_at FROM knowledge_base WHERE user_id=$1 ORDER BY created_at DESC`, user.ID)
	if err != nil {
		c.logRequestError(r, "knowledge query failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	defer rows.Close()

	entries := []map[string]interface{}{}
	for rows.Next() {
		var id, title, content string
		var createdAt interface{}
		if err := rows.Scan(&id, &title, &content, &createdAt); err != nil {
			c.logRequestError(r, "knowledge scan failed", err, "user_id", user.ID)
			utils.JSONErr(w, http.StatusInternalServerError, "db error")
			return
		}
		entries = append(entries, map[string]interface{}{
			"id": id, "title": title, "content": content, "createdAt": createdAt,
		})
	}
	if err := rows.Err(); err != nil {
		c.logRequestError(r, "knowledge iteration failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	utils.JSONOK(w, map[string]interface{}{"success": true, "entries": entries})
}

func (c *Controller) CreateKnowledge(w http.ResponseWriter, r *http.Request, claims TokenClaims, user UserRecord) {
	var body struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		utils.JSONErr(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(body.Title) == "" || strings.TrimSpace(body.Content) == "" {
		utils.JSONErr(w, http.StatusBadRequest, "title and content are required")
		return
	}
	var id string
	err := c.db.QueryRow(`INSERT INTO knowledge_base (user_id,title,content) VALUES ($1,$2,$3) RETURNING id`,
		user.ID, strings.TrimSpace(body.Title), strings.TrimSpace(body.Content)).Scan(&id)
	if err != nil {
		c.logRequestError(r, "knowledge insert failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	utils.JSONOK(w, map[string]interface{}{"success": true, "id": id})
}

func (c *Controller) DeleteKnowledge(w http.ResponseWriter, r *http.Request, claims TokenClaims, user UserRecord) {
	entryID := chi.URLParam(r, "id")
	res, err := c.db.Exec(`DELETE FROM knowledge_base WHERE id=$1 AND user_id=$2`, entryID, user.ID)
	if err != nil {
		c.logRequestError(r, "knowledge delete failed", err, "user_id", user.ID, "entry_id", entryID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		utils.JSONErr(w, http.StatusNotFound, "entry not found")
		return
	}
	utils.JSONOK(w, map[string]interface{}{"success": true})
}
