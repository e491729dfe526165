package generation

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/GriffinCanCode/gamehost/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/gamehost/internal/shared/types"
	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(httpclient.New("generation", httpclient.Config{BaseURL: srv.URL}), nil)
}

func respond(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}
}

func TestGenerateObjectPayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/game/generate", r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		var req request
		assert.NoError(t, sonic.Unmarshal(body, &req))
		assert.Equal(t, "做一个加法游戏", req.UserInput)
		assert.Equal(t, "s1", req.SessionID)
		assert.Equal(t, "alt-model-a", req.Options["model"])

		respond(`{
			"sessionId": "s1",
			"success": true,
			"message": "ok",
			"gameData": {"html": "<h1>加法</h1>", "gameData": {"title": "加法乐园", "ageGroup": "6-8"}},
			"config": {"gameType": "math", "difficulty": "easy"},
			"agentName": "MathGameAgent",
			"agentSource": "llm",
			"modelName": "m-1"
		}`)(w, r)
	})

	res, err := c.Generate(context.Background(), types.GenerateRequest{
		Message:   "做一个加法游戏",
		Model:     types.ModelAltA,
		SessionID: "s1",
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.NotNil(t, res.Bundle)

	assert.Equal(t, "s1", res.SessionID)
	assert.Equal(t, types.Agent{Name: "MathGameAgent", Source: types.AgentLLM, Model: "m-1"}, res.Agent)

	meta := res.Bundle.Metadata()
	assert.Equal(t, "<h1>加法</h1>", res.Bundle.Markup())
	assert.Equal(t, "加法乐园", meta.Title)
	assert.Equal(t, "6-8", meta.AgeGroup)
	assert.Equal(t, "math", meta.Type)
	assert.Equal(t, "easy", meta.Difficulty)
	assert.True(t, meta.Generated)
	assert.Equal(t, "MathGameAgent", res.Bundle.Agent().Name)
}

func TestGenerateStringPayload(t *testing.T) {
	c := newTestClient(t, respond(`{"success":true,"gameData":"<div>game</div>","agentName":"UniversalGameAgent","agentSource":"system"}`))

	res, err := c.Generate(context.Background(), types.GenerateRequest{Message: "随便来一个"})
	require.NoError(t, err)
	require.NotNil(t, res.Bundle)
	assert.Equal(t, "<div>game</div>", res.Bundle.Markup())
	assert.False(t, res.Bundle.Metadata().Generated)
}

func TestGenerateServiceFailure(t *testing.T) {
	c := newTestClient(t, respond(`{"success":false,"message":"生成失败","error":"quota"}`))

	res, err := c.Generate(context.Background(), types.GenerateRequest{Message: "hi there"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Nil(t, res.Bundle)
	assert.Equal(t, "quota", res.Error)
}

func TestGenerateMissingMarkup(t *testing.T) {
	c := newTestClient(t, respond(`{"success":true,"gameData":{"gameData":{"title":"x"}}}`))

	res, err := c.Generate(context.Background(), types.GenerateRequest{Message: "hi there"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ErrNoMarkup.Error(), res.Error)
}

func TestGenerateValidation(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	tests := []struct {
		name string
		req  types.GenerateRequest
	}{
		{"empty message", types.GenerateRequest{}},
		{"unknown model", types.GenerateRequest{Message: "hello", Model: "gpt-x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Generate(context.Background(), tt.req)
			assert.Error(t, err)
		})
	}
	assert.False(t, called)

	_, err := c.Generate(context.Background(), types.GenerateRequest{Message: "hello", Model: "gpt-x"})
	assert.ErrorIs(t, err, ErrInvalidModel)
}
