package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/eflow-agent/server/internal/agent/observers"
	"github.com/eflow-agent/server/internal/agent/tools"
	logx "github.com/eflow-agent/server/pkg/logger"
)

// Call is one tool invocation requested by the agent.
type Call struct {
	Name string
	// Arguments is a JSON object. Raw, when set, is sent instead.
	Arguments map[string]any
	Raw       string
}

// Result is a tool's JSON response.
type Result struct {
	CallID  string
	Name    string
	Content string
}

const DefaultMaxToolCalls = 10

type Config struct {
	MaxCalls int `envconfig:"RUNNER_MAX_TOOL_CALLS" default:"10"`
}

// Runner executes tool calls through an eino ToolsNode.
type Runner struct {
	runnable  compose.Runnable[*schema.Message, []*schema.Message]
	callbacks []einocb.Handler
	maxCalls  int
}

type Option func(*Runner)

// WithMaxCalls bounds how many calls one Run accepts. Values <= 0 use the default.
func WithMaxCalls(n int) Option {
	return func(r *Runner) { r.maxCalls = n }
}

// WithCallbacks adds handlers to every run, next to the tool logger.
func WithCallbacks(h ...einocb.Handler) Option {
	return func(r *Runner) { r.callbacks = append(r.callbacks, h...) }
}

// New compiles the tools into a runnable. Calls run sequentially in request order.
func New(ctx context.Context, businessTools []tool.BaseTool, opts ...Option) (*Runner, error) {
	if len(businessTools) == 0 {
		return nil, errors.New("runner needs at least one tool")
	}

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               businessTools,
		ExecuteSequentially: true,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			// Hallucinated or malformed tool calls get a structured answer instead of failing the run
			logx.Warn().
				Str("tool_name", name).
				Str("arguments", input).
				Msg("Unknown or invalid tool call; returning fallback result")
			return fmt.Sprintf("{\"error\":\"unknown_tool\",\"name\":%q,\"note\":\"ignored\"}", name), nil
		},
		ToolArgumentsHandler: tools.SanitizeArguments,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return nil, fmt.Errorf("failed to create tools node: %w", err)
	}

	runnable, err := compose.NewChain[*schema.Message, []*schema.Message]().
		AppendToolsNode(toolsNode).
		Compile(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling tool chain")
		return nil, fmt.Errorf("error compiling tool chain: %w", err)
	}

	r := &Runner{runnable: runnable, callbacks: []einocb.Handler{observers.NewToolCallbacks()}}
	for _, opt := range opts {
		opt(r)
	}
	if r.maxCalls <= 0 {
		r.maxCalls = DefaultMaxToolCalls
	}
	return r, nil
}

// Run executes calls and returns one result per call, in order. A failing
// tool aborts the run with its error.
func (r *Runner) Run(ctx context.Context, calls ...Call) ([]Result, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	if len(calls) > r.maxCalls {
		logx.Warn().Int("calls", len(calls)).Int("max", r.maxCalls).Msg("Tool call limit exceeded")
		return nil, fmt.Errorf("too many tool calls: %d exceeds the limit of %d", len(calls), r.maxCalls)
	}

	toolCalls := make([]schema.ToolCall, 0, len(calls))
	names := make(map[string]string, len(calls))
	for _, c := range calls {
		args := c.Raw
		if args == "" {
			b, err := json.Marshal(c.Arguments)
			if err != nil {
				return nil, fmt.Errorf("encode %s arguments: %w", c.Name, err)
			}
			args = string(b)
		}
		id := uuid.NewString()
		names[id] = c.Name
		toolCalls = append(toolCalls, schema.ToolCall{
			ID:       id,
			Type:     "function",
			Function: schema.FunctionCall{Name: c.Name, Arguments: args},
		})
	}

	msgs, err := r.runnable.Invoke(ctx, schema.AssistantMessage("", toolCalls), compose.WithCallbacks(r.callbacks...))
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*schema.Message, len(msgs))
	for _, m := range msgs {
		if m != nil {
			byID[m.ToolCallID] = m
		}
	}
	results := make([]Result, 0, len(toolCalls))
	for _, tc := range toolCalls {
		res := Result{CallID: tc.ID, Name: names[tc.ID]}
		if m, ok := byID[tc.ID]; ok {
			res.Content = m.Content
		}
		results = append(results, res)
	}
	return results, nil
}
