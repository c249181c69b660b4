package controller

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimitsForPlan(t *testing.T) {
	tests := []struct {
		plan     string
		messages int
		leads    int
	}{
		{PlanFree, 50, 25},
		{PlanBasic, 500, 250},
		{PlanPro, 2000, 1000},
		{PlanAgency, 10000, 5000},
		{PlanEnterprise, -1, -1},
		{"unknown", 50, 25},
		{"", 50, 25},
	}
	for _, tt := range tests {
		t.Run(tt.plan, func(t *testing.T) {
			limits := limitsForPlan(tt.plan)
			assert.Equal(t, tt.messages, limits.Messages)
			assert.Equal(t, tt.leads, limits.Leads)
		})
	}
}

func TestPlanAllowsTool(t *testing.T) {
	tests := []struct {
		name    string
		plan    string
		tool    string
		allowed bool
	}{
		{"free cannot use brain", PlanFree, ToolBrain, false},
		{"basic cannot use brain", PlanBasic, ToolBrain, false},
		{"pro can use brain", PlanPro, ToolBrain, true},
		{"pro can use booking", PlanPro, ToolBooking, true},
		{"pro can use sentiment", PlanPro, ToolSentiment, true},
		{"pro can use handover", PlanPro, ToolHandover, true},
		{"pro cannot use webhook", PlanPro, ToolWebhook, false},
		{"pro cannot use apollo", PlanPro, ToolApollo, false},
		{"pro cannot use followup", PlanPro, ToolFollowup, false},
		{"agency can use webhook", PlanAgency, ToolWebhook, true},
		{"agency can use apollo", PlanAgency, ToolApollo, true},
		{"agency can use vision", PlanAgency, ToolVision, true},
		{"agency can use followup", PlanAgency, ToolFollowup, true},
		{"agency can use brain", PlanAgency, ToolBrain, true},
		{"enterprise can use everything", PlanEnterprise, ToolApollo, true},
		{"unknown tool denied", PlanEnterprise, "teleport", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, planAllowsTool(tt.plan, tt.tool))
		})
	}
}

func TestValidPlanAndTool(t *testing.T) {
	for _, plan := range []string{PlanFree, PlanBasic, PlanPro, PlanAgency, PlanEnterprise} {
		assert.True(t, validPlan(plan), plan)
	}
	assert.False(t, validPlan("premium"))
	assert.False(t, validPlan(""))

	for _, tool := range []string{ToolBrain, ToolBooking, ToolSentiment, ToolHandover, ToolWebhook, ToolApollo, ToolVision, ToolFollowup} {
		assert.True(t, validTool(tool), tool)
	}
	assert.False(t, validTool("crm"))
}

func TestEffectivePlan(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := sql.NullTime{Time: now.Add(24 * time.Hour), Valid: true}
	past := sql.NullTime{Time: now.Add(-24 * time.Hour), Valid: true}

	t.Run("valid unexpired plan is kept", func(t *testing.T) {
		assert.Equal(t, PlanPro, effectivePlan(PlanPro, future, "user@example.com", "admin@example.com", now))
	})
	t.Run("no expiry means no downgrade", func(t *testing.T) {
		assert.Equal(t, PlanAgency, effectivePlan(PlanAgency, sql.NullTime{}, "user@example.com", "", now))
	})
	t.Run("expired plan downgrades to free", func(t *testing.T) {
		assert.Equal(t, PlanFree, effectivePlan(PlanPro, past, "user@example.com", "", now))
	})
	t.Run("unknown stored plan resolves to free", func(t *testing.T) {
		assert.Equal(t, PlanFree, effectivePlan("platinum", future, "user@example.com", "", now))
	})
	t.Run("admin email resolves to agency regardless of stored plan", func(t *testing.T) {
		assert.Equal(t, PlanAgency, effectivePlan(PlanFree, sql.NullTime{}, "admin@example.com", "admin@example.com", now))
	})
	t.Run("admin match is case insensitive", func(t *testing.T) {
		assert.Equal(t, PlanAgency, effectivePlan(PlanFree, sql.NullTime{}, "Admin@Example.COM", "admin@example.com", now))
	})
	t.Run("admin override beats expiry", func(t *testing.T) {
		assert.Equal(t, PlanAgency, effectivePlan(PlanPro, past, "admin@example.com", "admin@example.com", now))
	})
	t.Run("empty admin email never matches", func(t *testing.T) {
		assert.Equal(t, PlanFree, effectivePlan(PlanFree, sql.NullTime{}, "", "", now))
	})
}
