package controller

import (
	"database/sql"
	"time"

	"leadwise-backend/utils"
)

const (
	PlanFree       = "free"
	PlanBasic      = "basic"
	PlanPro        = "pro"
	PlanAgency     = "agency"
	PlanEnterprise = "enterprise"
)

var planRank = map[string]int{
	PlanFree:       0,
	PlanBasic:      1,
	PlanPro:        2,
	PlanAgency:     3,
	PlanEnterprise: 4,
}

// PlanLimits holds the per-plan usage quotas. Unlimited is expressed as -1.
type PlanLimits struct {
	Messages int
	Leads    int
}

func limitsForPlan(plan string) PlanLimits {
	switch plan {
	case PlanBasic:
		return PlanLimits{Messages: 500, Leads: 250}
	case PlanPro:
		return PlanLimits{Messages: 2000, Leads: 1000}
	case PlanAgency:
		return PlanLimits{Messages: 10000, Leads: 5000}
	case PlanEnterprise:
		return PlanLimits{Messages: -1, Leads: -1}
	default:
		return PlanLimits{Messages: 50, Leads: 25}
	}
}

func validPlan(plan string) bool {
	_, ok := planRank[plan]
	return ok
}

// Smart Hub tools and the minimum plan tier each one needs.
const (
	ToolBrain     = "brain"
	ToolBooking   = "booking"
	ToolSentiment = "sentiment"
	ToolHandover  = "handover"
	ToolWebhook   = "webhook"
	ToolApollo    = "apollo"
	ToolVision    = "vision"
	ToolFollowup  = "followup"
)

var toolMinPlan = map[string]string{
	ToolBrain:     PlanPro,
	ToolBooking:   PlanPro,
	ToolSentiment: PlanPro,
	ToolHandover:  PlanPro,
	ToolWebhook:   PlanAgency,
	ToolApollo:    PlanAgency,
	ToolVision:    PlanAgency,
	ToolFollowup:  PlanAgency,
}

func validTool(tool string) bool {
	_, ok := toolMinPlan[tool]
	return ok
}

func planAllowsTool(plan, tool string) bool {
	min, ok := toolMinPlan[tool]
	if !ok {
		return false
	}
	return planRank[plan] >= planRank[min]
}

func normalizeEmail(email string) string {
	return utils.NormalizeEmail(email)
}

// effectivePlan projects the plan a request is served under. An expired plan
// downgrades to free at read time only; the stored column stays untouched.
// The configured admin account always resolves to the top gating tier.
func effectivePlan(stored string, expiresAt sql.NullTime, email, adminEmail string, now time.Time) string {
	if adminEmail != "" && normalizeEmail(email) == normalizeEmail(adminEmail) {
		return PlanAgency
	}
	if !validPlan(stored) {
		return PlanFree
	}
	if expiresAt.Valid && now.After(expiresAt.Time) {
		return PlanFree
	}
	return stored
}

// resolvePlan loads the stored plan and projects it. A failed lookup resolves
// to the most restrictive plan instead of failing the request.
func (c *Controller) resolvePlan(userID, email string) string {
	var stored string
	var expiresAt sql.NullTime
	if err := c.db.QueryRow(`SELECT plan,plan_expires_at FROM users WHERE id=$1`, userID).Scan(&stored, &expiresAt); err != nil {
		c.logger.Warn("plan lookup failed, defaulting to free", "user_id", userID, "error", err)
		return effectivePlan(PlanFree, sql.NullTime{}, email, c.cfg.AdminEmail, time.Now())
	}
	return effectivePlan(stored, expiresAt, email, c.cfg.AdminEmail, time.Now())
}
