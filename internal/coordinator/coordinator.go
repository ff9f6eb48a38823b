// ABOUTME: OpenAI-backed agent runtime: streaming chat completions with tool calling.
// ABOUTME: Implements agent.Runtime by looping model turns until no tool calls remain.

package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/2389/genie-gateway/internal/agent"
	"github.com/2389/genie-gateway/internal/tools"
)

// systemPrompt steers the model toward the two data-query tools.
const systemPrompt = `You are a Databricks Query Agent.
You have access to two specialized tools:
- Customer info query tool
- Sales data query tool

For each user query:
- Identify if it's about customers or sales.
- Use the right tool(s) in order.
- Return a clear, markdown-friendly answer.`

// maxToolRounds bounds the model/tool loop so a confused model cannot spin
// forever.
const maxToolRounds = 8

// Config describes the model endpoint.
type Config struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Coordinator drives one conversational turn against the model, executing
// registry tools between model rounds and emitting stream events in order.
type Coordinator struct {
	client      openai.Client
	registry    *tools.Registry
	model       string
	temperature float64
	logger      *slog.Logger
}

// New builds a coordinator. The registry supplies both the tool definitions
// advertised to the model and the handlers that execute them.
func New(cfg Config, registry *tools.Registry, logger *slog.Logger) (*Coordinator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("llm api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("llm model is required")
	}
	if registry == nil {
		return nil, errors.New("tool registry is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
	}
	if trimmed := strings.TrimRight(cfg.BaseURL, "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.5
	}

	return &Coordinator{
		client:      openai.NewClient(opts...),
		registry:    registry,
		model:       strings.TrimSpace(cfg.Model),
		temperature: temperature,
		logger:      logger.With("component", "coordinator"),
	}, nil
}

// StreamTurn implements agent.Runtime. The returned channel is closed when
// the turn completes; failures are delivered as a terminal EventError.
func (c *Coordinator) StreamTurn(ctx context.Context, messages []agent.Message, sessionKey string) (<-chan *agent.Event, error) {
	if len(messages) == 0 {
		return nil, errors.New("empty transcript")
	}

	ch := make(chan *agent.Event, 16)
	go c.run(ctx, messages, sessionKey, ch)
	return ch, nil
}

func (c *Coordinator) run(ctx context.Context, messages []agent.Message, sessionKey string, ch chan<- *agent.Event) {
	defer close(ch)

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    c.buildMessages(messages),
		Tools:       c.toolDefinitions(),
		Temperature: openai.Float(c.temperature),
		// Forward the session key so provider-side state stays per thread
		User: openai.String(sessionKey),
	}

	for round := 0; round < maxToolRounds; round++ {
		msg, err := c.streamOnce(ctx, params, ch)
		if err != nil {
			c.fail(ch, fmt.Errorf("model stream: %w", err))
			return
		}

		if len(msg.ToolCalls) == 0 {
			return // final answer fully streamed
		}

		params.Messages = append(params.Messages, msg.ToParam())
		for _, call := range msg.ToolCalls {
			result, err := c.invokeTool(ctx, call, ch)
			if err != nil {
				c.fail(ch, err)
				return
			}
			params.Messages = append(params.Messages, openai.ToolMessage(result, call.ID))
		}
	}

	c.fail(ch, fmt.Errorf("tool loop exceeded %d rounds", maxToolRounds))
}

// streamOnce runs a single model round, forwarding content deltas as token
// events and returning the accumulated completion message.
func (c *Coordinator) streamOnce(ctx context.Context, params openai.ChatCompletionNewParams, ch chan<- *agent.Event) (*openai.ChatCompletionMessage, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			select {
			case ch <- &agent.Event{Kind: agent.EventToken, Text: delta}:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	if len(acc.Choices) == 0 {
		return nil, errors.New("completion returned no choices")
	}
	return &acc.Choices[0].Message, nil
}

// invokeTool emits the tool boundary events around one registry execution.
// A failing tool terminates the turn; the orchestrator maps that into a
// stream failure rather than fabricating a partial answer.
func (c *Coordinator) invokeTool(ctx context.Context, call openai.ChatCompletionMessageToolCall, ch chan<- *agent.Event) (string, error) {
	name := call.Function.Name

	args := map[string]any{}
	if raw := call.Function.Arguments; raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return "", fmt.Errorf("tool %s: malformed arguments: %w", name, err)
		}
	}
	question, _ := args[tools.QuestionParam].(string)
	if question == "" {
		return "", fmt.Errorf("tool %s: missing %s argument", name, tools.QuestionParam)
	}

	select {
	case ch <- &agent.Event{Kind: agent.EventToolStart, ToolName: name, ToolArgs: args}:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	c.logger.Debug("tool invocation", "tool", name)
	result, err := c.registry.Execute(ctx, name, question)
	if err != nil {
		return "", fmt.Errorf("tool %s: %w", name, err)
	}

	select {
	case ch <- &agent.Event{Kind: agent.EventToolEnd}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return result, nil
}

func (c *Coordinator) fail(ch chan<- *agent.Event, err error) {
	c.logger.Error("turn failed", "error", err)
	ch <- &agent.Event{Kind: agent.EventError, Error: err.Error()}
}

// buildMessages prepends the system prompt to the thread transcript.
func (c *Coordinator) buildMessages(messages []agent.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	out = append(out, openai.SystemMessage(systemPrompt))
	for _, msg := range messages {
		switch msg.Role {
		case agent.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

// toolDefinitions converts registry declarations into OpenAI function tools.
func (c *Coordinator) toolDefinitions() []openai.ChatCompletionToolParam {
	declared := c.registry.Tools()
	out := make([]openai.ChatCompletionToolParam, 0, len(declared))
	for _, tool := range declared {
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters: openai.FunctionParameters{
					"type": "object",
					"properties": map[string]any{
						tools.QuestionParam: map[string]any{
							"type":        "string",
							"description": "Self-contained natural language question for the dataset.",
						},
					},
					"required": []string{tools.QuestionParam},
				},
			},
		})
	}
	return out
}
