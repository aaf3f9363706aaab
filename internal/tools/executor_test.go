package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/user/crmassist/internal/crm"
	"github.com/user/crmassist/internal/llmtypes"
)

func TestExecutor_UnknownTool(t *testing.T) {
	exec := NewExecutor(NewRegistry(), nil, nil)

	result := exec.Execute(context.Background(), llmtypes.ToolCall{ID: "1", Name: "does_not_exist"})
	if result.Status != StatusError {
		t.Fatalf("expected error status, got %s", result.Status)
	}
	if result.Error != "Unknown tool: does_not_exist" {
		t.Errorf("unexpected error %q", result.Error)
	}
	if result.Output != nil {
		t.Error("error results must not carry output")
	}
}

func TestExecutor_ArgumentBinding(t *testing.T) {
	var got Args
	r := NewRegistry()
	_ = r.Register(Tool{
		Name: "capture",
		Parameters: []llmtypes.Parameter{
			{Name: "query", Type: llmtypes.TypeString, Required: true},
			{Name: "count", Type: llmtypes.TypeInteger, Default: 5},
			{Name: "kind", Type: llmtypes.TypeString, Enum: []string{"person", "organization"}},
			{Name: "exact", Type: llmtypes.TypeBoolean},
		},
		Handler: func(_ context.Context, args Args, _ Env) (any, error) {
			got = args
			return "ok", nil
		},
	})
	exec := NewExecutor(r, nil, nil)

	tests := []struct {
		name    string
		args    map[string]any
		wantErr string
		check   func(t *testing.T)
	}{
		{
			name: "undeclared keys dropped and defaults applied",
			args: map[string]any{"query": "ada", "injected": "x"},
			check: func(t *testing.T) {
				if got.Has("injected") {
					t.Error("undeclared argument must not reach the handler")
				}
				if got.Int("count") != 5 {
					t.Errorf("expected default count 5, got %v", got["count"])
				}
			},
		},
		{
			name: "numbers and strings coerced",
			args: map[string]any{"query": 42.0, "count": "3", "exact": "true"},
			check: func(t *testing.T) {
				if got.String("query") != "42" || got.Int("count") != 3 || !got.Bool("exact") {
					t.Errorf("unexpected coercion %v", got)
				}
			},
		},
		{name: "missing required", args: map[string]any{"count": 1.0}, wantErr: "query"},
		{name: "enum violation", args: map[string]any{"query": "a", "kind": "planet"}, wantErr: "must be one of"},
		{name: "type mismatch", args: map[string]any{"query": "a", "count": 2.5}, wantErr: "expected integer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = nil
			result := exec.Execute(context.Background(), llmtypes.ToolCall{ID: "c", Name: "capture", Arguments: tt.args})
			if tt.wantErr != "" {
				if result.Status != StatusError || !strings.Contains(result.Error, tt.wantErr) {
					t.Fatalf("expected error containing %q, got %+v", tt.wantErr, result)
				}
				if got != nil {
					t.Error("handler must not run on invalid arguments")
				}
				return
			}
			if result.Status != StatusSuccess {
				t.Fatalf("expected success, got %+v", result)
			}
			tt.check(t)
		})
	}
}

func TestExecutor_AmbientInjection(t *testing.T) {
	store := crm.NewMemoryStore(nil)
	var seen []Env

	r := NewRegistry()
	capture := func(_ context.Context, _ Args, env Env) (any, error) {
		seen = append(seen, env)
		return nil, nil
	}
	_ = r.Register(Tool{Name: "plain", Handler: capture})
	_ = r.Register(Tool{Name: "writer", Handler: capture, Needs: Needs{Data: true, Conversation: true}})

	exec := NewExecutor(r, store, nil).ForConversation("conv-9")
	exec.ExecuteAll(context.Background(), []llmtypes.ToolCall{{Name: "plain"}, {Name: "writer"}})

	if len(seen) != 2 {
		t.Fatalf("expected both handlers to run, got %d", len(seen))
	}
	if seen[0].Data != nil || seen[0].ConversationID != "" || seen[0].Logger != nil {
		t.Errorf("tool without needs must get an empty env, got %+v", seen[0])
	}
	if seen[1].Data == nil || seen[1].ConversationID != "conv-9" {
		t.Errorf("writer should receive data and conversation id, got %+v", seen[1])
	}
	if seen[1].Logger != nil {
		t.Error("logger was not declared and must not be injected")
	}
}

func TestExecutor_HandlerFailuresBecomeResults(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(Tool{Name: "boom", Handler: func(context.Context, Args, Env) (any, error) {
		panic("nil map")
	}})
	_ = r.Register(Tool{Name: "fails", Handler: func(context.Context, Args, Env) (any, error) {
		return nil, crm.ErrNotFound
	}})
	_ = r.Register(Tool{Name: "bad_result", Handler: func(context.Context, Args, Env) (any, error) {
		return Result{Status: StatusError, Output: "leak"}, nil
	}})

	exec := NewExecutor(r, nil, nil)
	batch := exec.ExecuteAll(context.Background(), []llmtypes.ToolCall{
		{ID: "1", Name: "boom"},
		{ID: "2", Name: "fails"},
		{ID: "3", Name: "bad_result"},
	})

	if !batch.HasErrors() {
		t.Fatal("expected HasErrors")
	}
	for i, e := range batch.Executions {
		if e.Result.Status != StatusError || e.Result.Error == "" || e.Result.Output != nil {
			t.Errorf("execution %d: unexpected result %+v", i, e.Result)
		}
	}
	if !strings.Contains(batch.Executions[0].Result.Error, "nil map") {
		t.Errorf("panic message should be reported, got %q", batch.Executions[0].Result.Error)
	}
}

func TestExecutor_SequentialOrderAndCancellation(t *testing.T) {
	var order []string
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = r.Register(Tool{Name: "first", Handler: func(context.Context, Args, Env) (any, error) {
		order = append(order, "first")
		return nil, nil
	}})
	_ = r.Register(Tool{Name: "cancel", Handler: func(context.Context, Args, Env) (any, error) {
		order = append(order, "cancel")
		cancel()
		return nil, nil
	}})
	_ = r.Register(Tool{Name: "never", Handler: func(context.Context, Args, Env) (any, error) {
		order = append(order, "never")
		return nil, nil
	}})

	batch := NewExecutor(r, nil, nil).ExecuteAll(ctx, []llmtypes.ToolCall{{Name: "first"}, {Name: "cancel"}, {Name: "never"}})

	if strings.Join(order, ",") != "first,cancel" {
		t.Errorf("unexpected execution order %v", order)
	}
	if len(batch.Executions) != 3 {
		t.Fatalf("every call must have a result, got %d", len(batch.Executions))
	}
	if last := batch.Executions[2].Result; last.Status != StatusError || !strings.Contains(last.Error, "cancelled") {
		t.Errorf("call after cancellation should be an error result, got %+v", last)
	}
	if batch.Executions[0].Result.Failed() || batch.Executions[1].Result.Failed() {
		t.Error("calls before cancellation should succeed")
	}
}
