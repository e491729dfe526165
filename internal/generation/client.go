package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/GriffinCanCode/gamehost/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/gamehost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/gamehost/internal/shared/types"
	"github.com/GriffinCanCode/gamehost/internal/shared/utils"
	"github.com/bytedance/sonic"
	"github.com/bytedance/sonic/ast"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const generatePath = "/api/game/generate"

var (
	ErrInvalidModel = errors.New("unknown model")
	ErrNoMarkup     = errors.New("generation returned no markup")
)

// Generator produces bundles from natural-language requests
type Generator interface {
	Generate(ctx context.Context, req types.GenerateRequest) (*types.GenerationResult, error)
}

// Client calls the generation service
type Client struct {
	client *httpclient.Client
	logger *logging.Logger
}

// New creates a generation client
func New(client *httpclient.Client, logger *logging.Logger) *Client {
	return &Client{
		client: client,
		logger: logging.OrNop(logger).Named("generation"),
	}
}

type request struct {
	UserInput string                 `json:"userInput"`
	SessionID string                 `json:"sessionId,omitempty"`
	Options   map[string]interface{} `json:"options,omitempty"`
}

type response struct {
	SessionID   string                 `json:"sessionId"`
	Success     bool                   `json:"success"`
	Message     string                 `json:"message"`
	GameData    json.RawMessage        `json:"gameData"`
	Config      map[string]interface{} `json:"config"`
	AgentName   string                 `json:"agentName"`
	AgentSource string                 `json:"agentSource"`
	ModelName   string                 `json:"modelName"`
	Generated   bool                   `json:"generatedByLLM"`
	Error       string                 `json:"error"`
}

// Generate validates the request, calls the service and converts the game
// payload into a bundle. A service-side failure is reported in the result,
// not as an error.
func (c *Client) Generate(ctx context.Context, req types.GenerateRequest) (*types.GenerationResult, error) {
	if err := utils.ValidateMessage(req.Message); err != nil {
		return nil, err
	}
	if req.Model == "" {
		req.Model = types.ModelDefault
	}
	if !req.Model.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidModel, req.Model)
	}

	body := request{UserInput: req.Message, SessionID: req.SessionID, Options: copyOptions(req.Options)}
	if req.Model != types.ModelDefault {
		body.Options["model"] = string(req.Model)
	}

	var out response
	resp, err := c.client.Do(ctx, "generate",
		func(r *resty.Request) *resty.Request {
			return r.SetHeader("Content-Type", "application/json").SetBody(body)
		},
		func(r *resty.Request) (*resty.Response, error) { return r.Post(generatePath) })
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	if err := sonic.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("generate: decode response (status %d): %w", resp.StatusCode(), err)
	}

	result := &types.GenerationResult{
		Success:   out.Success,
		SessionID: out.SessionID,
		Message:   out.Message,
		Error:     out.Error,
		Agent: types.Agent{
			Name:   out.AgentName,
			Source: types.AgentSource(out.AgentSource),
			Model:  out.ModelName,
		},
	}
	if result.Agent.Source == "" && out.Generated {
		result.Agent.Source = types.AgentLLM
	}
	if !out.Success {
		c.logger.Warn("generation failed", zap.String("message", out.Message), zap.String("error", out.Error))
		return result, nil
	}

	bundle, err := decodeGame(out.GameData, out.Config, result.Agent)
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		return result, nil
	}
	result.Bundle = bundle
	c.logger.Info("bundle generated",
		zap.String("session", out.SessionID),
		zap.String("agent", out.AgentName),
		zap.String("title", bundle.Title("")))
	return result, nil
}

// decodeGame accepts gameData either as the markup string itself or as an
// object carrying html plus an optional nested gameData description
func decodeGame(raw json.RawMessage, config map[string]interface{}, agent types.Agent) (*types.Bundle, error) {
	if len(raw) == 0 {
		return nil, ErrNoMarkup
	}
	root := ast.NewRaw(string(raw))

	var html string
	meta := types.Metadata{Generated: agent.Source == types.AgentLLM}
	switch root.TypeSafe() {
	case ast.V_STRING:
		html, _ = root.String()
	case ast.V_OBJECT:
		html = stringAt(&root, "html")
		info := root.Get("gameData")
		meta.Title = stringAt(info, "title")
		meta.Type = stringAt(info, "type")
		meta.AgeGroup = stringAt(info, "ageGroup")
		meta.Difficulty = stringAt(info, "difficulty")
		meta.Theme = stringAt(info, "theme")
	}
	if html == "" {
		return nil, ErrNoMarkup
	}

	fill := func(dst *string, key string) {
		if *dst == "" {
			if s, ok := config[key].(string); ok {
				*dst = s
			}
		}
	}
	fill(&meta.Type, "gameType")
	fill(&meta.AgeGroup, "ageGroup")
	fill(&meta.Difficulty, "difficulty")
	fill(&meta.Theme, "theme")

	return types.NewBundle(html, meta, types.WithConfig(config), types.WithAgent(agent)), nil
}

func stringAt(node *ast.Node, key string) string {
	if node == nil || !node.Exists() {
		return ""
	}
	child := node.Get(key)
	if child == nil || !child.Exists() || child.TypeSafe() != ast.V_STRING {
		return ""
	}
	s, _ := child.String()
	return s
}

func copyOptions(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

var _ Generator = (*Client)(nil)
