package controller

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadwise-backend/config"
)

func TestBuildSystemPrompt(t *testing.T) {
	user := UserRecord{
		BusinessName: "Acme Plumbing",
		BusinessType: sql.NullString{String: "home services", Valid: true},
		WidgetTone:   sql.NullString{String: "professional", Valid: true},
	}
	hub := smartHubRow{
		BrainActive:       true,
		BrainInstructions: sql.NullString{String: "We only serve the Austin area.", Valid: true},
		BookingActive:     true,
		BookingURL:        sql.NullString{String: "https://cal.example.com/acme", Valid: true},
	}

	prompt := buildSystemPrompt(user, hub)
	assert.Contains(t, prompt, "Acme Plumbing")
	assert.Contains(t, prompt, "home services")
	assert.Contains(t, prompt, "professional")
	assert.Contains(t, prompt, "We only serve the Austin area.")
	assert.Contains(t, prompt, "https://cal.example.com/acme")
}

func TestBuildSystemPromptSkipsInactiveTools(t *testing.T) {
	user := UserRecord{BusinessName: "Acme"}
	hub := smartHubRow{
		BrainInstructions: sql.NullString{String: "secret instructions", Valid: true},
		BookingURL:        sql.NullString{String: "https://cal.example.com", Valid: true},
	}
	prompt := buildSystemPrompt(user, hub)
	assert.NotContains(t, prompt, "secret instructions")
	assert.NotContains(t, prompt, "https://cal.example.com")
	assert.Contains(t, prompt, "friendly")
}

func TestInferenceChat(t *testing.T) {
	var captured inferenceRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer key-123", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "  Hello from the assistant.  "}},
			},
		})
	}))
	defer srv.Close()

	c := New(config.Config{
		InferenceAPIURL: srv.URL,
		InferenceAPIKey: "key-123",
		InferenceModel:  "gpt-4o-mini",
	}, nil, nil, nil)

	history := []chatTurn{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "bot", Content: "normalized to user"},
		{Role: "user", Content: ""},
	}
	reply, err := c.inferenceChat(context.Background(), "system prompt", history, "what are your hours?")
	require.NoError(t, err)
	assert.Equal(t, "Hello from the assistant.", reply)

	require.Equal(t, "gpt-4o-mini", captured.Model)
	require.Len(t, captured.Messages, 5)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "assistant", captured.Messages[2].Role)
	assert.Equal(t, "user", captured.Messages[3].Role)
	assert.Equal(t, "what are your hours?", captured.Messages[4].Content)
}

func TestInferenceChatTrimsLongHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req inferenceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		// system + last 10 turns + new message
		assert.Len(t, req.Messages, 12)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{{"message": map[string]string{"content": "ok"}}},
		})
	}))
	defer srv.Close()

	c := New(config.Config{InferenceAPIURL: srv.URL, InferenceAPIKey: "k"}, nil, nil, nil)
	history := make([]chatTurn, 30)
	for i := range history {
		history[i] = chatTurn{Role: "user", Content: "turn"}
	}
	_, err := c.inferenceChat(context.Background(), "sys", history, "latest")
	require.NoError(t, err)
}

func TestInferenceChatErrors(t *testing.T) {
	t.Run("missing api key", func(t *testing.T) {
		c := New(config.Config{}, nil, nil, nil)
		_, err := c.inferenceChat(context.Background(), "sys", nil, "hi")
		require.Error(t, err)
	})

	t.Run("non 200 status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer srv.Close()
		c := New(config.Config{InferenceAPIURL: srv.URL, InferenceAPIKey: "k"}, nil, nil, nil)
		_, err := c.inferenceChat(context.Background(), "sys", nil, "hi")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("empty choices", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
		}))
		defer srv.Close()
		c := New(config.Config{InferenceAPIURL: srv.URL, InferenceAPIKey: "k"}, nil, nil, nil)
		_, err := c.inferenceChat(context.Background(), "sys", nil, "hi")
		require.Error(t, err)
	})
}

func TestApolloEnrich(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/people/match", r.URL.Path)
		require.Equal(t, "apollo-key", r.Header.Get("X-Api-Key"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "jane@corp.test", body["email"])
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"person": map[string]interface{}{
				"title":        "VP Engineering",
				"organization": map[string]string{"name": "Corp Inc"},
			},
		})
	}))
	defer srv.Close()

	c := New(config.Config{ApolloAPIURL: srv.URL}, nil, nil, nil)
	res, err := c.apolloEnrich(context.Background(), "apollo-key", "jane@corp.test")
	require.NoError(t, err)
	assert.Equal(t, "Corp Inc", res.Company)
	assert.Equal(t, "VP Engineering", res.JobTitle)
}

func TestApolloEnrichMissIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(config.Config{ApolloAPIURL: srv.URL}, nil, nil, nil)
	res, err := c.apolloEnrich(context.Background(), "k", "nobody@corp.test")
	require.NoError(t, err)
	assert.Empty(t, res.Company)
	assert.Empty(t, res.JobTitle)
}

func TestBuildFollowUpEmail(t *testing.T) {
	html := buildFollowUpEmailHTML("Acme <Plumbing>", "Jane & Co", "Corp <Inc>", "VP")
	assert.Contains(t, html, "Acme &lt;Plumbing&gt;")
	assert.Contains(t, html, "Hi Jane &amp; Co")
	assert.Contains(t, html, "Corp &lt;Inc&gt;")
	assert.Contains(t, html, "as VP")
	assert.True(t, strings.HasPrefix(html, "<table"))

	text := buildFollowUpEmailText("Acme", "")
	assert.Contains(t, text, "Hi there,")
	assert.Contains(t, text, "Acme")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "abcde", truncate("abcdefgh", 5))
}
