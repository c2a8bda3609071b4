package agent

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

const (
	defaultMaxIterations = 50
	maxTokensPerCall     = 8192
)

const systemPromptBase = `You are a software engineering agent working on one task inside
a repository checkout. Use the provided tools to inspect and modify the
code. When the task is complete, summarize what you changed and stop.`

// AnthropicRunner executes agent requests against the Anthropic API with
// an iterative tool-use loop.
type AnthropicRunner struct {
	client        anthropic.Client
	maxIterations int
	logger        *zap.Logger
}

var _ Runner = (*AnthropicRunner)(nil)

// NewAnthropicRunner builds a runner. An empty apiKey falls back to the
// ANTHROPIC_API_KEY environment variable.
func NewAnthropicRunner(apiKey string, logger *zap.Logger) (*AnthropicRunner, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("no API key: set ANTHROPIC_API_KEY")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnthropicRunner{
		client:        anthropic.NewClient(option.WithAPIKey(apiKey)),
		maxIterations: defaultMaxIterations,
		logger:        logger,
	}, nil
}

// Run drives the tool-use loop until the model ends its turn, the
// iteration cap is hit, or ctx is cancelled.
func (r *AnthropicRunner) Run(ctx context.Context, req Request) (*Result, error) {
	executor := newToolExecutor(req.WorkingDir)

	systemPrompt := systemPromptBase
	if req.PromptContext != "" {
		systemPrompt = systemPrompt + "\n\n## Accumulated expertise\n" + req.PromptContext
	}

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(req.TaskText)),
	}

	var inputTokens, outputTokens int64
	var finalText strings.Builder

	for i := 0; i < r.maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return r.result(false, finalText.String(), executor, inputTokens, outputTokens, req), err
		}

		resp, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(req.Model),
			MaxTokens: maxTokensPerCall,
			System: []anthropic.TextBlockParam{
				{Text: systemPrompt},
			},
			Messages: messages,
			Tools:    toolDefinitions(),
		})
		if err != nil {
			return r.result(false, finalText.String(), executor, inputTokens, outputTokens, req),
				fmt.Errorf("agent API call: %w", err)
		}
		inputTokens += resp.Usage.InputTokens
		outputTokens += resp.Usage.OutputTokens

		var assistantBlocks []anthropic.ContentBlockParamUnion
		var toolResultBlocks []anthropic.ContentBlockParamUnion
		for _, block := range resp.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				finalText.Reset()
				finalText.WriteString(variant.Text)
				assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(variant.Text))
			case anthropic.ToolUseBlock:
				r.logger.Debug("agent tool call",
					zap.String("tool", variant.Name),
					zap.String("model", req.Model))
				res := executor.execute(ctx, variant.Name, variant.Input)
				assistantBlocks = append(assistantBlocks,
					anthropic.NewToolUseBlock(variant.ID, variant.Input, variant.Name))
				toolResultBlocks = append(toolResultBlocks,
					anthropic.NewToolResultBlock(variant.ID, res.Content, res.IsError))
			}
		}

		if resp.StopReason == anthropic.StopReasonEndTurn {
			return r.result(true, finalText.String(), executor, inputTokens, outputTokens, req), nil
		}

		messages = append(messages, anthropic.NewAssistantMessage(assistantBlocks...))
		if len(toolResultBlocks) > 0 {
			messages = append(messages, anthropic.NewUserMessage(toolResultBlocks...))
		}
	}

	return r.result(false, finalText.String(), executor, inputTokens, outputTokens, req),
		fmt.Errorf("agent did not finish within %d iterations", r.maxIterations)
}

func (r *AnthropicRunner) result(ok bool, logs string, executor *toolExecutor, in, out int64, req Request) *Result {
	return &Result{
		OK:            ok,
		Logs:          logs,
		ModifiedFiles: executor.modifiedFiles(),
		InputTokens:   in,
		OutputTokens:  out,
		CostCents:     (in*req.InputCentsPerMTok + out*req.OutputCentsPerMTok) / 1_000_000,
	}
}
