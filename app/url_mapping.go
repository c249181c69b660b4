package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"leadwise-backend/config"
	"leadwise-backend/controller"
	"leadwise-backend/middleware"
)

func mapRoutes(c *controller.Controller, cfg config.Config) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", c.Health)
	r.Get("/health/detailed", c.HealthDetailed)
	r.Get("/ready", c.Ready)
	r.Get("/live", c.Live)
	r.Get("/metrics", c.Metrics)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", c.Register)
		r.Post("/verify", c.VerifyEmail)
		r.Post("/login", c.Login)
		r.Get("/me", middleware.WithAuth(c.AuthenticateUser, c.Me))
	})

	r.Route("/api/smart-hub", func(r chi.Router) {
		r.Get("/settings", middleware.WithAuth(c.AuthenticateUser, c.GetSmartHubSettings))
		r.Post("/settings", middleware.WithAuth(c.AuthenticateUser, c.SaveSmartHubSettings))
		r.Post("/save", middleware.WithAuth(c.AuthenticateUser, c.SaveSmartHubTool))
		r.Post("/deactivate", middleware.WithAuth(c.AuthenticateUser, c.DeactivateSmartHubTool))
		r.Get("/tool-states", middleware.WithAuth(c.AuthenticateUser, c.SmartHubToolStates))
		r.Post("/test-tool", middleware.WithAuth(c.AuthenticateUser, c.TestSmartHubTool))
	})

	r.Route("/api/public", func(r chi.Router) {
		ratePerMin := cfg.PublicRatePerMin
		if ratePerMin <= 0 {
			ratePerMin = 60
		}
		r.Use(httprate.LimitByIP(ratePerMin, time.Minute))
		r.Get("/widget-config/{key}", c.PublicWidgetConfig)
		r.Post("/leads", c.PublicLead)
		r.Post("/chat", c.PublicChat)
		r.Post("/apollo/enrich", c.PublicEnrich)
		r.Post("/followup/schedule", c.PublicFollowupSchedule)
	})

	r.Get("/api/dashboard/full", middleware.WithAuth(c.AuthenticateUser, c.DashboardFull))

	r.Route("/api/leads", func(r chi.Router) {
		r.Get("/", middleware.WithAuth(c.AuthenticateUser, c.ListLeads))
		r.Post("/", middleware.WithAuth(c.AuthenticateUser, c.CreateLead))
		r.Get("/{id}", middleware.WithAuth(c.AuthenticateUser, c.GetLead))
		r.Put("/{id}", middleware.WithAuth(c.AuthenticateUser, c.UpdateLead))
		r.Patch("/{id}/status", middleware.WithAuth(c.AuthenticateUser, c.UpdateLeadStatus))
		r.Delete("/{id}", middleware.WithAuth(c.AuthenticateUser, c.DeleteLead))
	})

	r.Route("/api/chats", func(r chi.Router) {
		r.Get("/", middleware.WithAuth(c.AuthenticateUser, c.ListChatSessions))
		r.Get("/{sessionId}", middleware.WithAuth(c.AuthenticateUser, c.GetChatThread))
		r.Delete("/{sessionId}", middleware.WithAuth(c.AuthenticateUser, c.DeleteChatSession))
	})

	r.Route("/api/knowledge", func(r chi.Router) {
		r.Get("/", middleware.WithAuth(c.AuthenticateUser, c.ListKnowledge))
		r.Post("/", middleware.WithAuth(c.AuthenticateUser, c.CreateKnowledge))
		r.Delete("/{id}", middleware.WithAuth(c.AuthenticateUser, c.DeleteKnowledge))
	})

	r.Route("/api/automations", func(r chi.Router) {
		r.Get("/", middleware.WithAuth(c.AuthenticateUser, c.ListAutomations))
		r.Post("/", middleware.WithAuth(c.AuthenticateUser, c.CreateAutomation))
		r.Patch("/{id}", middleware.WithAuth(c.AuthenticateUser, c.UpdateAutomation))
		r.Delete("/{id}", middleware.WithAuth(c.AuthenticateUser, c.DeleteAutomation))
	})

	r.Route("/api/widget", func(r chi.Router) {
		r.Put("/appearance", middleware.WithAuth(c.AuthenticateUser, c.UpdateWidgetAppearance))
		r.Post("/rotate-key", middleware.WithAuth(c.AuthenticateUser, c.RotateWidgetKey))
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Get("/stats", middleware.WithAdmin(c.RequireAdmin, c.AdminStats))
		r.Get("/users", middleware.WithAdmin(c.RequireAdmin, c.AdminListUsers))
		r.Post("/users/plan", middleware.WithAdmin(c.RequireAdmin, c.AdminSetUserPlan))
	})

	return r
}
