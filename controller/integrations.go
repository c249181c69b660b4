package controller

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/smtp"
	"strings"
	"time"
)

const inferenceTimeout = 20 * time.Second

// buildSystemPrompt assembles the assistant persona for one tenant. Brain
// instructions take priority over the generic business description, and the
// booking link is surfaced so the model can offer it.
func buildSystemPrompt(user UserRecord, hub smartHubRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the AI assistant for %s.", user.BusinessName)
	if user.BusinessType.Valid && user.BusinessType.String != "" {
		fmt.Fprintf(&b, " The business operates in the %s space.", user.BusinessType.String)
	}
	tone := "friendly"
	if user.WidgetTone.Valid && user.WidgetTone.String != "" {
		tone = user.WidgetTone.String
	}
	fmt.Fprintf(&b, " Keep replies short, helpful and %s in tone.", tone)
	if hub.BrainActive && hub.BrainInstructions.Valid && strings.TrimSpace(hub.BrainInstructions.String) != "" {
		b.WriteString("\n\nBusiness instructions:\n")
		b.WriteString(strings.TrimSpace(hub.BrainInstructions.String))
	}
	if hub.BookingActive && hub.BookingURL.Valid && hub.BookingURL.String != "" {
		fmt.Fprintf(&b, "\n\nWhen a visitor wants to book a call or meeting, share this link: %s", hub.BookingURL.String)
	}
	b.WriteString("\nNever invent prices or policies that were not provided.")
	return b.String()
}

type inferenceMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type inferenceRequest struct {
	Model       string             `json:"model"`
	Messages    []inferenceMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
}

type inferenceResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// inferenceChat sends one chat completion request. History older than the
// last 10 turns is dropped to keep the prompt bounded.
func (c *Controller) inferenceChat(ctx context.Context, system string, history []chatTurn, message string) (string, error) {
	if c.cfg.InferenceAPIKey == "" {
		return "", errors.New("inference api key not configured")
	}
	messages := []inferenceMessage{{Role: "system", Content: system}}
	if len(history) > 10 {
		history = history[len(history)-10:]
	}
	for _, turn := range history {
		role := strings.ToLower(turn.Role)
		if role != "assistant" {
			role = "user"
		}
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		messages = append(messages, inferenceMessage{Role: role, Content: turn.Content})
	}
	messages = append(messages, inferenceMessage{Role: "user", Content: message})

	payload, err := json.Marshal(inferenceRequest{
		Model:       c.cfg.InferenceModel,
		Messages:    messages,
		MaxTokens:   512,
		Temperature: 0.7,
	})
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, inferenceTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.InferenceAPIURL, "/")+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.InferenceAPIKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("inference backend returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	var parsed inferenceResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	if parsed.Error != nil {
		return "", errors.New(parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", errors.New("inference backend returned no content")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

type enrichResult struct {
	Company  string
	JobTitle string
}

// apolloEnrich looks a person up by email. Enrichment is best effort: a miss
// is not an error, only transport and auth failures are.
func (c *Controller) apolloEnrich(ctx context.Context, apiKey, email string) (enrichResult, error) {
	payload, err := json.Marshal(map[string]string{"email": email})
	if err != nil {
		return enrichResult{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, inferenceTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.ApolloAPIURL, "/")+"/people/match", bytes.NewReader(payload))
	if err != nil {
		return enrichResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return enrichResult{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return enrichResult{}, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return enrichResult{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return enrichResult{}, fmt.Errorf("enrichment backend returned %d", resp.StatusCode)
	}
	var parsed struct {
		Person struct {
			Title        string `json:"title"`
			Organization struct {
				Name string `json:"name"`
			} `json:"organization"`
		} `json:"person"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return enrichResult{}, err
	}
	return enrichResult{Company: parsed.Person.Organization.Name, JobTitle: parsed.Person.Title}, nil
}

// sendEmail delivers a single HTML email over SMTP. Callers run it from
// goroutines or the worker, never on the request path.
func (c *Controller) sendEmail(to, subject, htmlBody, textBody string) error {
	if c.cfg.EmailHost == "" || c.cfg.EmailFrom == "" {
		return errors.New("smtp not configured")
	}
	boundary := "leadwise-" + randomHex(8)
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", c.cfg.EmailFrom)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)
	fmt.Fprintf(&msg, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, textBody)
	fmt.Fprintf(&msg, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", boundary, htmlBody)
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	addr := fmt.Sprintf("%s:%d", c.cfg.EmailHost, c.cfg.EmailPort)
	var auth smtp.Auth
	if c.cfg.EmailUser != "" {
		auth = smtp.PlainAuth("", c.cfg.EmailUser, c.cfg.EmailPassword, c.cfg.EmailHost)
	}
	return smtp.SendMail(addr, auth, c.cfg.EmailFrom, []string{to}, []byte(msg.String()))
}

func buildFollowUpEmailHTML(businessName, name, company, jobTitle string) string {
	greeting := "Hi there"
	if name != "" {
		greeting = "Hi " + html.EscapeString(name)
	}
	detail := ""
	if company != "" {
		detail = fmt.Sprintf(`<tr><td style="padding:4px 0;color:#6b7280;font-size:13px;">We noticed you're with %s`, html.EscapeString(company))
		if jobTitle != "" {
			detail += " as " + html.EscapeString(jobTitle)
		}
		detail += `.</td></tr>`
	}
	return fmt.Sprintf(`<table width="100%%" cellpadding="0" cellspacing="0" style="font-family:Arial,sans-serif;max-width:560px;margin:0 auto;">
<tr><td style="padding:24px;background:#4f46e5;border-radius:8px 8px 0 0;color:#ffffff;font-size:18px;font-weight:bold;">%s</td></tr>
<tr><td style="padding:24px;background:#ffffff;border:1px solid #e5e7eb;border-top:0;border-radius:0 0 8px 8px;">
<table width="100%%" cellpadding="0" cellspacing="0">
<tr><td style="padding-bottom:12px;font-size:15px;color:#111827;">%s,</td></tr>
<tr><td style="padding-bottom:12px;font-size:14px;color:#374151;">Thanks for chatting with us. We wanted to follow up and see if there's anything else we can help with.</td></tr>
%s
<tr><td style="padding-top:12px;font-size:13px;color:#9ca3af;">Just reply to this email and we'll pick the conversation right back up.</td></tr>
</table></td></tr></table>`,
		html.EscapeString(businessName), greeting, detail)
}

func buildFollowUpEmailText(businessName, name string) string {
	greeting := "Hi there"
	if name != "" {
		greeting = "Hi " + name
	}
	return fmt.Sprintf("%s,\n\nThanks for chatting with %s. We wanted to follow up and see if there's anything else we can help with.\n\nJust reply to this email and we'll pick the conversation right back up.\n", greeting, businessName)
}

const maxFollowUpAttempts = 3

// StartBackgroundWorkers launches the follow up dispatcher and the periodic
// maintenance sweep. Both stop when ctx is cancelled.
func (c *Controller) StartBackgroundWorkers(ctx context.Context) {
	go c.runFollowUpWorker(ctx)
	go c.runMaintenanceWorker(ctx)
}

func (c *Controller) runFollowUpWorker(ctx context.Context) {
	interval := time.Duration(c.cfg.FollowUpPollIntervalSec) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	c.logger.Info("follow up worker started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("follow up worker stopped")
			return
		case <-ticker.C:
			c.processDueFollowUps(ctx)
		}
	}
}

// processDueFollowUps sends every due, unsent follow up. An attempt is
// recorded before delivery so a crashing send cannot loop forever.
func (c *Controller) processDueFollowUps(ctx context.Context) {
	rows, err := c.db.QueryContext(ctx, `SELECT f.id,f.email,f.name,f.user_id,u.business_name,
			s.followup_subject,s.apollo_api_key,s.apollo_active
		FROM follow_ups f
		JOIN users u ON u.id=f.user_id
		LEFT JOIN smart_hub_settings s ON s.user_id=f.user_id
		WHERE f.sent=FALSE AND f.attempts < $1 AND f.scheduled_for <= CURRENT_TIMESTAMP
		ORDER BY f.scheduled_for
		LIMIT 50`, maxFollowUpAttempts)
	if err != nil {
		c.logger.Error("follow up query failed", "error", err)
		return
	}
	defer rows.Close()

	type dueFollowUp struct {
		ID, Email, UserID, BusinessName string
		Name, Subject, ApolloKey        sql.NullString
		ApolloActive                    sql.NullBool
	}
	var due []dueFollowUp
	for rows.Next() {
		var f dueFollowUp
		if err := rows.Scan(&f.ID, &f.Email, &f.Name, &f.UserID, &f.BusinessName,
			&f.Subject, &f.ApolloKey, &f.ApolloActive); err != nil {
			c.logger.Error("follow up scan failed", "error", err)
			return
		}
		due = append(due, f)
	}
	if err := rows.Err(); err != nil {
		c.logger.Error("follow up iteration failed", "error", err)
		return
	}

	for _, f := range due {
		if _, err := c.db.ExecContext(ctx, `UPDATE follow_ups SET attempts=attempts+1 WHERE id=$1`, f.ID); err != nil {
			c.logger.Error("follow up attempt update failed", "follow_up_id", f.ID, "error", err)
			continue
		}

		var company, jobTitle string
		if f.ApolloActive.Valid && f.ApolloActive.Bool && f.ApolloKey.Valid && f.ApolloKey.String != "" {
			if enriched, err := c.apolloEnrich(ctx, f.ApolloKey.String, f.Email); err == nil {
				company, jobTitle = enriched.Company, enriched.JobTitle
			} else {
				c.logger.Warn("follow up enrichment failed", "follow_up_id", f.ID, "error", err)
			}
		}

		subject := fmt.Sprintf("Following up from %s", f.BusinessName)
		if f.Subject.Valid && strings.TrimSpace(f.Subject.String) != "" {
			subject = f.Subject.String
		}
		name := ""
		if f.Name.Valid {
			name = f.Name.String
		}
		if err := c.sendEmail(f.Email,
			subject,
			buildFollowUpEmailHTML(f.BusinessName, name, company, jobTitle),
			buildFollowUpEmailText(f.BusinessName, name)); err != nil {
			c.logger.Warn("follow up send failed", "follow_up_id", f.ID, "error", err)
			continue
		}
		if _, err := c.db.ExecContext(ctx, `UPDATE follow_ups SET sent=TRUE,sent_at=CURRENT_TIMESTAMP WHERE id=$1`, f.ID); err != nil {
			c.logger.Error("follow up mark sent failed", "follow_up_id", f.ID, "error", err)
			continue
		}
		c.logger.Info("follow up sent", "follow_up_id", f.ID, "user_id", f.UserID)
	}
}

// runMaintenanceWorker prunes follow ups that exhausted their attempts and
// stale verification tokens.
func (c *Controller) runMaintenanceWorker(ctx context.Context) {
	interval := time.Duration(c.cfg.MaintenanceIntervalHrs) * time.Hour
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.db.ExecContext(ctx, `DELETE FROM follow_ups
				WHERE sent=FALSE AND attempts >= $1 AND scheduled_for < CURRENT_TIMESTAMP - INTERVAL '7 days'`,
				maxFollowUpAttempts); err != nil {
				c.logger.Error("follow up cleanup failed", "error", err)
			}
			if _, err := c.db.ExecContext(ctx, `UPDATE users SET verification_token=NULL
				WHERE is_verified=TRUE AND verification_token IS NOT NULL`); err != nil {
				c.logger.Error("verification token cleanup failed", "error", err)
			}
		}
	}
}
