package controller

import (
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"leadwise-backend/config"
	"leadwise-backend/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

// Controller holds all dependencies for request handlers.
type Controller struct {
	cfg    config.Config
	db     *sql.DB
	redis  *redis.Client
	logger *slog.Logger
}

func New(cfg config.Config, db *sql.DB, redisClient *redis.Client, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:    cfg,
		db:     db,
		redis:  redisClient,
		logger: logger,
	}
}

// TokenClaims holds JWT payload for authenticated users.
type TokenClaims struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	Plan       string `json:"plan"`
	IsVerified bool   `json:"is_verified"`
	jwt.RegisteredClaims
}

// UserRecord holds the full user row loaded on each authenticated request.
type UserRecord struct {
	ID            string
	Email         string
	BusinessID    string
	BusinessName  string
	BusinessType  sql.NullString
	Plan          string
	PlanExpiresAt sql.NullTime
	MessagesUsed  int
	LeadsUsed     int
	WidgetKey     string
	IsVerified    bool
	WidgetColor   sql.NullString
	WidgetWelcome sql.NullString
	WidgetTone    sql.NullString
	CreatedAt     time.Time
}

const userColumns = `id,email,business_id,business_name,business_type,plan,plan_expires_at,
	messages_used,leads_used,widget_key,is_verified,widget_color,widget_welcome,widget_tone,created_at`

func scanUser(row *sql.Row) (UserRecord, error) {
	var u UserRecord
	err := row.Scan(
		&u.ID, &u.Email, &u.BusinessID, &u.BusinessName, &u.BusinessType,
		&u.Plan, &u.PlanExpiresAt, &u.MessagesUsed, &u.LeadsUsed,
		&u.WidgetKey, &u.IsVerified, &u.WidgetColor, &u.WidgetWelcome, &u.WidgetTone,
		&u.CreatedAt,
	)
	return u, err
}

func (c *Controller) userResponse(u UserRecord) map[string]interface{} {
	limits := limitsForPlan(effectivePlan(u.Plan, u.PlanExpiresAt, u.Email, c.cfg.AdminEmail, time.Now()))
	return map[string]interface{}{
		"id":            u.ID,
		"email":         u.Email,
		"businessId":    u.BusinessID,
		"businessName":  u.BusinessName,
		"businessType":  utils.NullString(u.BusinessType),
		"plan":          u.Plan,
		"planExpiresAt": utils.NullTime(u.PlanExpiresAt),
		"messagesUsed":  u.MessagesUsed,
		"leadsUsed":     u.LeadsUsed,
		"messagesLimit": limitValue(limits.Messages),
		"leadsLimit":    limitValue(limits.Leads),
		"widgetKey":     u.WidgetKey,
		"isVerified":    u.IsVerified,
		"widgetColor":   utils.NullString(u.WidgetColor),
		"widgetWelcome": utils.NullString(u.WidgetWelcome),
		"widgetTone":    utils.NullString(u.WidgetTone),
		"createdAt":     u.CreatedAt,
	}
}

func (c *Controller) now() time.Time {
	return time.Now()
}

func limitValue(limit int) interface{} {
	if limit < 0 {
		return nil
	}
	return limit
}

func coalesce(v, d string) string {
	if strings.TrimSpace(v) == "" {
		return d
	}
	return v
}
