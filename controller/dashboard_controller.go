package controller

import (
	"net/http"

	"leadwise-backend/utils"
)

// DashboardFull aggregates everything the dashboard home screen needs into a
// single response: the account, smart hub state, usage against plan limits
// and a few headline counts.
func (c *Controller) DashboardFull(w http.ResponseWriter, r *http.Request, claims TokenClaims, user UserRecord) {
	settings, err := c.loadSmartHub(user.ID)
	if err != nil {
		c.logRequestError(r, "dashboard smart hub query failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}

	var totalLeads, newLeads, totalChats, totalSessions, totalAutomations, pendingFollowUps int
	err = c.db.QueryRow(`SELECT
			(SELECT COUNT(*) FROM leads WHERE user_id=$1),
			(SELECT COUNT(*) FROM leads WHERE user_id=$1 AND status='new'),
			(SELECT COUNT(*) FROM chats WHERE user_id=$1),
			(SELECT COUNT(DISTINCT session_id) FROM chats WHERE user_id=$1),
			(SELECT COUNT(*) FROM automations WHERE user_id=$1),
			(SELECT COUNT(*) FROM follow_ups WHERE user_id=$1 AND sent=FALSE)`,
		user.ID).Scan(&totalLeads, &newLeads, &totalChats, &totalSessions, &totalAutomations, &pendingFollowUps)
	if err != nil {
		c.logRequestError(r, "dashboard counts query failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}

	recentLeads, err := c.recentLeads(user.ID, 5)
	if err != nil {
		c.logRequestError(r, "dashboard recent leads query failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	recentSessions, err := c.recentSessions(user.ID, 5)
	if err != nil {
		c.logRequestError(r, "dashboard recent sessions query failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}

	plan := effectivePlan(user.Plan, user.PlanExpiresAt, user.Email, c.cfg.AdminEmail, c.now())
	limits := limitsForPlan(plan)

	utils.JSONOK(w, map[string]interface{}{
		"success": true,
		"user":    c.userResponse(user),
		"plan":    plan,
		"usage": map[string]interface{}{
			"messagesUsed":  user.MessagesUsed,
			"messagesLimit": limitValue(limits.Messages),
			"leadsUsed":     user.LeadsUsed,
			"leadsLimit":    limitValue(limits.Leads),
		},
		"stats": map[string]interface{}{
			"totalLeads":       totalLeads,
			"newLeads":         newLeads,
			"totalChats":       totalChats,
			"totalSessions":    totalSessions,
			"totalAutomations": totalAutomations,
			"pendingFollowUps": pendingFollowUps,
		},
		"recentLeads":    recentLeads,
		"recentSessions": recentSessions,
		"smartHub":       c.smartHubResponse(settings, plan),
	})
}

func (c *Controller) recentLeads(userID string, limit int) ([]map[string]interface{}, error) {
	rows, err := c.db.Query(`SELECT `+leadColumns+` FROM leads WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	leads := []map[string]interface{}{}
	for rows.Next() {
		var l leadRow
		if err := rows.Scan(&l.ID, &l.Name, &l.Email, &l.Phone, &l.Message, &l.Company, &l.JobTitle, &l.Status, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		leads = append(leads, leadResponse(l))
	}
	return leads, rows.Err()
}

func (c *Controller) recentSessions(userID string, limit int) ([]map[string]interface{}, error) {
	rows, err := c.db.Query(`SELECT session_id, MAX(client_name), COUNT(*), MAX(created_at)
		FROM chats WHERE user_id=$1
		GROUP BY session_id
		ORDER BY MAX(created_at) DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sessions := []map[string]interface{}{}
	for rows.Next() {
		var sessionID string
		var clientName, lastAt interface{}
		var messages int
		if err := rows.Scan(&sessionID, &clientName, &messages, &lastAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, map[string]interface{}{
			"sessionId":  sessionID,
			"clientName": clientName,
			"messages":   messages,
			"lastAt":     lastAt,
		})
	}
	return sessions, rows.Err()
}
