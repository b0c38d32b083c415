package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wolfman30/medassist/internal/audit"
	"github.com/wolfman30/medassist/internal/identity"
	"github.com/wolfman30/medassist/internal/llm"
	"github.com/wolfman30/medassist/internal/observability/metrics"
	"github.com/wolfman30/medassist/pkg/logging"
)

// Outcome is one executed tool call.
type Outcome struct {
	Call   llm.ToolCall
	Result Result
	Err    error
	// Committed is set when a state-changing tool succeeded.
	Committed bool
}

// Kind classifies Err; empty on success.
func (o Outcome) Kind() Kind { return KindOf(o.Err) }

// ToolResult renders the outcome for the model. Failures carry only the
// error kind and a user-safe message.
func (o Outcome) ToolResult() llm.ToolResult {
	content := map[string]any{}
	if o.Err != nil {
		content["success"] = false
		content["error_kind"] = string(o.Kind())
		content["error"] = PublicMessage(o.Err)
	} else {
		for k, v := range o.Result.Data {
			content[k] = v
		}
		content["success"] = true
		if o.Result.Summary != "" {
			content["message"] = o.Result.Summary
		}
		if len(o.Result.Warnings) > 0 {
			content["warnings"] = o.Result.Warnings
		}
	}
	return llm.ToolResult{
		CallID:  o.Call.ID,
		Name:    o.Call.Name,
		Content: normalize(content),
		IsError: o.Err != nil,
	}
}

// normalize round-trips content through JSON so provider encoders only see
// maps, slices and scalars.
func normalize(content map[string]any) map[string]any {
	data, err := json.Marshal(content)
	if err != nil {
		return map[string]any{"success": false, "error_kind": string(KindInternal), "error": "result could not be encoded"}
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return content
	}
	return out
}

// Dispatcher routes tool calls to registered tools, enforcing roles and
// recording every execution.
type Dispatcher struct {
	tools    map[string]Tool
	order    []string
	recorder audit.Recorder
	metrics  *metrics.ChatMetrics
	logger   *logging.Logger
}

func NewDispatcher(logger *logging.Logger, recorder audit.Recorder, m *metrics.ChatMetrics, tools ...Tool) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	if recorder == nil {
		recorder = audit.NewLogRecorder(logger)
	}
	d := &Dispatcher{
		tools:    make(map[string]Tool, len(tools)),
		recorder: recorder,
		metrics:  m,
		logger:   logger,
	}
	for _, t := range tools {
		if _, dup := d.tools[t.Name()]; dup {
			panic(fmt.Sprintf("tools: duplicate tool %q", t.Name()))
		}
		d.tools[t.Name()] = t
		d.order = append(d.order, t.Name())
	}
	return d
}

// Specs returns the declarations offered to a role. Doctors get every tool.
func (d *Dispatcher) Specs(role identity.Role) []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(d.order))
	for _, name := range d.order {
		t := d.tools[name]
		if t.DoctorOnly() && role != identity.RoleDoctor {
			continue
		}
		specs = append(specs, t.Spec())
	}
	return specs
}

// Lookup returns a registered tool.
func (d *Dispatcher) Lookup(name string) (Tool, bool) {
	t, ok := d.tools[name]
	return t, ok
}

// Dispatch executes one call as the caller stored in ctx.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID string, call llm.ToolCall) Outcome {
	caller, _ := identity.CallerFromContext(ctx)
	start := time.Now()
	out := Outcome{Call: call}

	tool, ok := d.tools[call.Name]
	switch {
	case !ok:
		out.Err = fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	case tool.DoctorOnly() && !caller.ActsAsDoctor(ctx):
		out.Err = fmt.Errorf("%w: %s requires the doctor role", ErrAuthorization, call.Name)
	default:
		out.Result, out.Err = d.execute(ctx, tool, Args(call.Args))
		out.Committed = out.Err == nil && tool.Mutates()
	}

	d.record(ctx, sessionID, caller, tool, out, time.Since(start))
	return out
}

func (d *Dispatcher) execute(ctx context.Context, tool Tool, args Args) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool panicked", "tool", tool.Name(), "panic", fmt.Sprint(r))
			err = fmt.Errorf("tools: %s panicked: %v", tool.Name(), r)
		}
	}()
	if args == nil {
		args = Args{}
	}
	return tool.Execute(ctx, args)
}

func (d *Dispatcher) record(ctx context.Context, sessionID string, caller identity.Caller, tool Tool, out Outcome, elapsed time.Duration) {
	status := audit.StatusSuccess
	switch out.Kind() {
	case "":
	case KindAuthorization:
		status = audit.StatusDenied
	default:
		status = audit.StatusFailed
	}

	rawArgs, err := json.Marshal(out.Call.Args)
	if err != nil || out.Call.Args == nil {
		rawArgs = []byte(`{}`)
	}
	attrs := []any{
		"tool", out.Call.Name,
		"role", string(caller.Role),
		"session_id", sessionID,
		"status", status,
		"duration_ms", elapsed.Milliseconds(),
		"args", string(rawArgs),
	}
	if out.Err != nil {
		attrs = append(attrs, "error_kind", string(out.Kind()), "error", out.Err.Error())
		d.logger.Warn("tool execution failed", attrs...)
	} else {
		if len(out.Result.Warnings) > 0 {
			attrs = append(attrs, "warnings", out.Result.Warnings)
		}
		d.logger.Info("tool executed", attrs...)
	}

	d.metrics.ObserveToolCall(out.Call.Name, status, elapsed.Seconds())

	event := audit.ToolEvent{
		Tool:       out.Call.Name,
		Role:       string(caller.Role),
		SessionID:  sessionID,
		UserEmail:  caller.Email,
		Args:       rawArgs,
		Status:     status,
		ErrorKind:  string(out.Kind()),
		Warnings:   out.Result.Warnings,
		DurationMS: elapsed.Milliseconds(),
	}
	if tool != nil {
		event.Mutates = tool.Mutates()
	}
	if out.Err != nil {
		event.Error = out.Err.Error()
	}
	// The audit write outlives a cancelled request.
	if err := d.recorder.Record(context.WithoutCancel(ctx), event); err != nil {
		d.logger.Error("audit record failed", "tool", out.Call.Name, "error", err)
	}
}
