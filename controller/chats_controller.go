package controller

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"leadwise-backend/utils"
)

// ListChatSessions groups stored chats into conversations for the inbox view.
func (c *Controller) ListChatSessions(w http.ResponseWriter, r *http.Request, claims TokenClaims, user UserRecord) {
	limit := 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	rows, err := c.db.Query(`SELECT session_id,
			MAX(client_name) AS client_name,
			COUNT(*) AS messages,
			MIN(created_at) AS started_at,
			MAX(created_at) AS last_at
		FROM chats WHERE user_id=$1
		GROUP BY session_id
		ORDER BY MAX(created_at) DESC
		LIMIT $2`, user.ID, limit)
	if err != nil {
		c.logRequestError(r, "chat sessions query failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	defer rows.Close()

	sessions := []map[string]interface{}{}
	for rows.Next() {
		var sessionID string
		var clientName interface{}
		var messages int
		var startedAt, lastAt interface{}
		if err := rows.Scan(&sessionID, &clientName, &messages, &startedAt, &lastAt); err != nil {
			c.logRequestError(r, "chat session scan failed", err, "user_id", user.ID)
			utils.JSONErr(w, http.StatusInternalServerError, "db error")
			return
		}
		sessions = append(sessions, map[string]interface{}{
			"sessionId":  sessionID,
			"clientName": clientName,
			"messages":   messages,
			"startedAt":  startedAt,
			"lastAt":     lastAt,
		})
	}
	if err := rows.Err(); err != nil {
		c.logRequestError(r, "chat sessions iteration failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	utils.JSONOK(w, map[string]interface{}{"success": true, "sessions": sessions, "count": len(sessions)})
}

// GetChatThread returns one conversation in chronological order.
func (c *Controller) GetChatThread(w http.ResponseWriter, r *http.Request, claims TokenClaims, user UserRecord) {
	sessionID := chi.URLParam(r, "sessionId")
	rows, err := c.db.Query(`SELECT id,client_name,message,response,created_at
		FROM chats WHERE user_id=$1 AND session_id=$2
		ORDER BY created_at ASC`, user.ID, sessionID)
	if err != nil {
		c.logRequestError(r, "chat thread query failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	defer rows.Close()

	turns := []map[string]interface{}{}
	for rows.Next() {
		var id, message, response string
		var clientName, createdAt interface{}
		if err := rows.Scan(&id, &clientName, &message, &response, &createdAt); err != nil {
			c.logRequestError(r, "chat thread scan failed", err, "user_id", user.ID)
			utils.JSONErr(w, http.StatusInternalServerError, "db error")
			return
		}
		turns = append(turns, map[string]interface{}{
			"id":         id,
			"clientName": clientName,
			"message":    message,
			"response":   response,
			"createdAt":  createdAt,
		})
	}
	if err := rows.Err(); err != nil {
		c.logRequestError(r, "chat thread iteration failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	if len(turns) == 0 {
		utils.JSONErr(w, http.StatusNotFound, "session not found")
		return
	}
	utils.JSONOK(w, map[string]interface{}{"success": true, "sessionId": sessionID, "turns": turns})
}

func (c *Controller) DeleteChatSession(w http.ResponseWriter, r *http.Request, claims TokenClaims, user UserRecord) {
	sessionID := chi.URLParam(r, "sessionId")
	res, err := c.db.Exec(`DELETE FROM chats WHERE user_id=$1 AND session_id=$2`, user.ID, sessionID)
	if err != nil {
		c.logRequestError(r, "chat session delete failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		utils.JSONErr(w, http.StatusNotFound, "session not found")
		return
	}
	utils.JSONOK(w, map[string]interface{}{"success": true})
}
