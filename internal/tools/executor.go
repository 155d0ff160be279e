package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Outcome is the terminal result of one tool execution. Success and
// Error are mutually exclusive: Error is set iff Success is false.
// Execution never raises past the executor — a failing tool becomes a
// failed Outcome the model can read.
type Outcome struct {
	Tool    string        `json:"tool"`
	Success bool          `json:"success"`
	Result  string        `json:"result,omitempty"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// CallSpec describes one requested invocation in a batch. Arguments
// may be a map or a JSON-encoded string of one; providers are sloppy
// about which they send.
type CallSpec struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments"`
}

// Execute runs a named tool with the given arguments and always
// returns an Outcome. Unknown names, handler errors, and handler
// panics all become failed outcomes with elapsed time recorded.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) Outcome {
	start := time.Now()

	tool := r.Get(name)
	if tool == nil {
		return Outcome{
			Tool:    name,
			Success: false,
			Error:   fmt.Sprintf("unknown tool %q (available: %s)", name, strings.Join(r.Names(), ", ")),
			Elapsed: time.Since(start),
		}
	}

	result, err := r.invoke(ctx, tool, args)
	out := Outcome{
		Tool:    name,
		Elapsed: time.Since(start),
	}
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Success = true
	out.Result = result
	return out
}

// invoke calls the handler with panic containment. A panicking tool is
// a bug in the tool, not a reason to crash the conversation.
func (r *Registry) invoke(ctx context.Context, tool *Tool, args map[string]any) (result string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool %s panicked: %v", tool.Name, rec)
		}
	}()
	return tool.Handler(ctx, args)
}

// ExecuteBatch runs each spec in input order and returns one outcome
// per entry. String-encoded argument maps are decoded first; specs
// whose arguments cannot be decoded fail without being executed.
func (r *Registry) ExecuteBatch(ctx context.Context, specs []CallSpec) []Outcome {
	outcomes := make([]Outcome, 0, len(specs))
	for _, spec := range specs {
		args, err := decodeArguments(spec.Arguments)
		if err != nil {
			outcomes = append(outcomes, Outcome{
				Tool:  spec.Name,
				Error: fmt.Sprintf("invalid arguments: %v", err),
			})
			continue
		}
		outcomes = append(outcomes, r.Execute(ctx, spec.Name, args))
	}
	return outcomes
}

// decodeArguments normalizes the argument shapes providers send:
// a map, a JSON object string, or nothing.
func decodeArguments(v any) (map[string]any, error) {
	switch args := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return args, nil
	case string:
		if strings.TrimSpace(args) == "" {
			return nil, nil
		}
		var decoded map[string]any
		if err := json.Unmarshal([]byte(args), &decoded); err != nil {
			return nil, fmt.Errorf("decode argument string: %w", err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("unsupported argument type %T", v)
	}
}
