package observers

import (
	"context"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/tool"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"
	logx "github.com/eflow-agent/server/pkg/logger"
)

type startKey struct{}

// maxLoggedResponse bounds how much of a tool response is logged.
const maxLoggedResponse = 512

func newToolHandler() *callbackHelper.ToolCallbackHandler {
	log := logx.Component("tools")
	return &callbackHelper.ToolCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *tool.CallbackInput) context.Context {
			ev := log.Debug().Str("tool", info.Name)
			if input != nil {
				ev = ev.Str("arguments", input.ArgumentsInJSON)
			}
			ev.Msg("Tool started")
			return context.WithValue(ctx, startKey{}, time.Now())
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *tool.CallbackOutput) context.Context {
			ev := log.Info().Str("tool", info.Name)
			if started, ok := ctx.Value(startKey{}).(time.Time); ok {
				ev = ev.Dur("elapsed", time.Since(started))
			}
			if output != nil {
				ev = ev.Str("response", truncate(output.Response, maxLoggedResponse))
			}
			ev.Msg("Tool finished")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			log.Warn().Err(err).Str("tool", info.Name).Msg("Tool execution failed")
			return ctx
		},
	}
}

// NewToolCallbacks constructs a callbacks.Handler that logs tool lifecycle events.
// Attach it via compose.WithCallbacks(...) when invoking a compiled runnable.
func NewToolCallbacks() einocb.Handler {
	return callbackHelper.NewHandlerHelper().
		Tool(newToolHandler()).
		Handler()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
