package tools

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/user/crmassist/internal/crm"
	"github.com/user/crmassist/internal/errors"
	"github.com/user/crmassist/internal/llmtypes"
	"github.com/user/crmassist/internal/logging"
)

// Executor binds tool calls to registered handlers. Execute never returns
// an error; every failure is reported as an error Result.
type Executor struct {
	registry       *Registry
	data           crm.DataAccess
	logger         *logging.Logger
	conversationID string
}

func NewExecutor(registry *Registry, data crm.DataAccess, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Executor{
		registry: registry,
		data:     data,
		logger:   logger.Named("tools"),
	}
}

// ForConversation returns an executor that reports conversationID to handlers
func (e *Executor) ForConversation(conversationID string) *Executor {
	c := *e
	c.conversationID = conversationID
	c.logger = e.logger.ForConversation(conversationID)
	return &c
}

// Execute runs a single call
func (e *Executor) Execute(ctx context.Context, call llmtypes.ToolCall) Result {
	if err := ctx.Err(); err != nil {
		return Failure(fmt.Sprintf("Tool call cancelled: %v", err))
	}

	tool, ok := e.registry.Get(call.Name)
	if !ok {
		e.logger.Warn("Unknown tool requested", logging.String("tool", call.Name))
		return Failure("Unknown tool: " + call.Name)
	}

	args, dropped, err := bindArgs(tool, call.Arguments)
	if err != nil {
		e.logger.Warn("Tool arguments rejected", logging.String("tool", call.Name), logging.Error(err))
		return Failure(err.Error())
	}
	if len(dropped) > 0 {
		e.logger.Debug("Dropped undeclared tool arguments",
			logging.String("tool", call.Name),
			logging.Strings("arguments", dropped),
		)
	}
	if tool.RequiresConfirmation {
		e.logger.Info("Mutating tool invoked",
			logging.String("tool", call.Name),
			logging.String("call_id", call.ID),
		)
	}

	start := time.Now()
	result := e.run(ctx, tool, args)
	e.logger.Debug("Tool executed",
		logging.String("tool", call.Name),
		logging.String("status", string(result.Status)),
		logging.Duration("duration", time.Since(start)),
	)
	return result
}

// ExecuteAll runs calls one at a time in the order given. Later calls may
// depend on entities created by earlier ones.
func (e *Executor) ExecuteAll(ctx context.Context, calls []llmtypes.ToolCall) ExecutionResult {
	out := ExecutionResult{Executions: make([]Execution, 0, len(calls))}
	for _, call := range calls {
		out.Executions = append(out.Executions, Execution{Call: call, Result: e.Execute(ctx, call)})
	}
	return out
}

func (e *Executor) run(ctx context.Context, tool Tool, args Args) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Tool handler panicked",
				logging.String("tool", tool.Name),
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
			)
			result = Failure(fmt.Sprintf("tool %s failed unexpectedly: %v", tool.Name, r))
		}
	}()

	output, err := tool.Handler(ctx, args, e.envFor(tool.Needs))
	if err != nil {
		execErr := errors.NewToolExecutionError(tool.Name, err)
		e.logger.Warn("Tool handler failed", logging.String("tool", tool.Name), logging.Error(execErr))
		return Failure(err.Error())
	}
	if r, ok := output.(Result); ok {
		return r.normalize()
	}
	return Success(output)
}

func (e *Executor) envFor(needs Needs) Env {
	var env Env
	if needs.Data {
		env.Data = e.data
	}
	if needs.Conversation {
		env.ConversationID = e.conversationID
	}
	if needs.Logger {
		env.Logger = e.logger
	}
	return env
}

func argError(tool, argument, reason string) error {
	return errors.NewToolArgumentError(tool, argument, reason)
}
