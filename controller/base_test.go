package controller

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserResponse(t *testing.T) {
	c := testController()
	user := UserRecord{
		ID:           "u1",
		Email:        "owner@acme.test",
		BusinessID:   "biz_abc",
		BusinessName: "Acme",
		Plan:         PlanBasic,
		MessagesUsed: 12,
		LeadsUsed:    3,
		WidgetKey:    "wk_x",
		IsVerified:   true,
		CreatedAt:    time.Now(),
	}

	resp := c.userResponse(user)
	assert.Equal(t, "u1", resp["id"])
	assert.Equal(t, PlanBasic, resp["plan"])
	assert.Equal(t, 500, resp["messagesLimit"])
	assert.Equal(t, 250, resp["leadsLimit"])
	assert.Nil(t, resp["businessType"])
	assert.NotContains(t, resp, "passwordHash")
	assert.NotContains(t, resp, "verificationToken")
}

func TestUserResponseExpiredPlanLimits(t *testing.T) {
	c := testController()
	user := UserRecord{
		ID:    "u1",
		Email: "owner@acme.test",
		Plan:  PlanEnterprise,
		PlanExpiresAt: sql.NullTime{
			Time: time.Now().Add(-time.Hour), Valid: true,
		},
	}
	resp := c.userResponse(user)
	// Stored plan is reported as is, but the limits follow the effective plan.
	assert.Equal(t, PlanEnterprise, resp["plan"])
	assert.Equal(t, 50, resp["messagesLimit"])
	assert.Equal(t, 25, resp["leadsLimit"])
}

func TestUserResponseUnlimitedPlan(t *testing.T) {
	c := testController()
	resp := c.userResponse(UserRecord{ID: "u1", Email: "e@x.test", Plan: PlanEnterprise})
	require.Nil(t, resp["messagesLimit"])
	require.Nil(t, resp["leadsLimit"])
}

func TestLimitValue(t *testing.T) {
	assert.Nil(t, limitValue(-1))
	assert.Equal(t, 0, limitValue(0))
	assert.Equal(t, 500, limitValue(500))
}

func TestCoalesce(t *testing.T) {
	assert.Equal(t, "fallback", coalesce("", "fallback"))
	assert.Equal(t, "fallback", coalesce("   ", "fallback"))
	assert.Equal(t, "value", coalesce("value", "fallback"))
}
