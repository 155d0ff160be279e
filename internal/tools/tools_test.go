package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func newTestRegistry() *Registry {
	r := NewRegistry()
	r.Register(&Tool{
		Name:        "echo",
		Description: "Echo the input back.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
			"required": []string{"text"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			text, ok := args["text"].(string)
			if !ok {
				return "", errors.New("text is required")
			}
			return text, nil
		},
	})
	r.Register(&Tool{
		Name:        "fail",
		Description: "Always fails.",
		Parameters:  map[string]any{"type": "object"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("deliberate failure")
		},
	})
	r.Register(&Tool{
		Name:        "panic",
		Description: "Always panics.",
		Parameters:  map[string]any{"type": "object"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			panic("handler bug")
		},
	})
	return r
}

func TestExecuteSuccess(t *testing.T) {
	r := newTestRegistry()
	out := r.Execute(context.Background(), "echo", map[string]any{"text": "hello"})

	if !out.Success {
		t.Fatalf("success = false, error = %q", out.Error)
	}
	if out.Result != "hello" {
		t.Errorf("result = %q", out.Result)
	}
	if out.Error != "" {
		t.Errorf("error set on success: %q", out.Error)
	}
	if out.Elapsed < 0 {
		t.Errorf("elapsed = %v, want non-negative", out.Elapsed)
	}
}

func TestExecuteUnknownToolListsAvailable(t *testing.T) {
	r := newTestRegistry()
	out := r.Execute(context.Background(), "nonexistent", nil)

	if out.Success {
		t.Fatal("success = true for unknown tool")
	}
	for _, name := range []string{"echo", "fail", "panic"} {
		if !strings.Contains(out.Error, name) {
			t.Errorf("error %q does not list %q", out.Error, name)
		}
	}
	if out.Elapsed < 0 {
		t.Errorf("elapsed = %v, want non-negative", out.Elapsed)
	}
}

func TestExecuteHandlerError(t *testing.T) {
	r := newTestRegistry()
	out := r.Execute(context.Background(), "fail", nil)

	if out.Success {
		t.Fatal("success = true for failing handler")
	}
	if out.Error != "deliberate failure" {
		t.Errorf("error = %q", out.Error)
	}
	if out.Result != "" {
		t.Errorf("result set on failure: %q", out.Result)
	}
}

func TestExecuteContainsPanic(t *testing.T) {
	r := newTestRegistry()
	out := r.Execute(context.Background(), "panic", nil)

	if out.Success {
		t.Fatal("success = true for panicking handler")
	}
	if !strings.Contains(out.Error, "handler bug") {
		t.Errorf("panic value lost: %q", out.Error)
	}
}

func TestExecuteArgumentShapeMismatch(t *testing.T) {
	r := newTestRegistry()
	// echo requires a string "text"; give it a number.
	out := r.Execute(context.Background(), "echo", map[string]any{"text": 42})
	if out.Success {
		t.Fatal("success = true for bad argument shape")
	}
}

func TestExecuteBatch(t *testing.T) {
	r := newTestRegistry()
	outcomes := r.ExecuteBatch(context.Background(), []CallSpec{
		{Name: "echo", Arguments: map[string]any{"text": "one"}},
		{Name: "echo", Arguments: `{"text": "two"}`}, // string-encoded
		{Name: "missing", Arguments: nil},
		{Name: "echo", Arguments: `{not json`},
	})

	if len(outcomes) != 4 {
		t.Fatalf("got %d outcomes, want 4", len(outcomes))
	}
	if !outcomes[0].Success || outcomes[0].Result != "one" {
		t.Errorf("outcome 0: %+v", outcomes[0])
	}
	if !outcomes[1].Success || outcomes[1].Result != "two" {
		t.Errorf("outcome 1: %+v", outcomes[1])
	}
	if outcomes[2].Success {
		t.Errorf("outcome 2 should fail: %+v", outcomes[2])
	}
	if outcomes[3].Success || !strings.Contains(outcomes[3].Error, "invalid arguments") {
		t.Errorf("outcome 3: %+v", outcomes[3])
	}
}

func TestNamesSorted(t *testing.T) {
	r := newTestRegistry()
	names := r.Names()
	want := []string{"echo", "fail", "panic"}
	if len(names) != len(want) {
		t.Fatalf("names = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names = %v, want %v", names, want)
			break
		}
	}
}

func TestSchemas(t *testing.T) {
	r := newTestRegistry()
	schemas := r.Schemas()
	if len(schemas) != 3 {
		t.Fatalf("got %d schemas", len(schemas))
	}

	fn, ok := schemas[0]["function"].(map[string]any)
	if !ok {
		t.Fatalf("schema shape: %v", schemas[0])
	}
	if fn["name"] != "echo" {
		t.Errorf("first schema = %v, want echo (sorted)", fn["name"])
	}
	if _, ok := fn["parameters"].(map[string]any); !ok {
		t.Error("parameters missing from schema")
	}
}

func TestBuiltinGetTime(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r)

	out := r.Execute(context.Background(), "get_time", nil)
	if !out.Success {
		t.Fatalf("get_time failed: %s", out.Error)
	}
	year := time.Now().Format("2006")
	if !strings.Contains(out.Result, year) {
		t.Errorf("result %q does not contain current year", out.Result)
	}

	out = r.Execute(context.Background(), "get_time", map[string]any{"timezone": "Not/AZone"})
	if out.Success {
		t.Error("bad timezone accepted")
	}
}

func TestBuiltinCalculate(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r)

	tests := []struct {
		expr    string
		want    string
		wantErr bool
	}{
		{"2 + 2", "4", false},
		{"10 / 4", "2.5", false},
		{"12.5*3", "37.5", false},
		{"7 - 10", "-3", false},
		{"1 / 0", "", true},
		{"pi * 2", "", true},
		{"nonsense", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			out := r.Execute(context.Background(), "calculate", map[string]any{"expression": tt.expr})
			if out.Success == tt.wantErr {
				t.Fatalf("success = %v, error = %q", out.Success, out.Error)
			}
			if !tt.wantErr && out.Result != tt.want {
				t.Errorf("result = %q, want %q", out.Result, tt.want)
			}
		})
	}
}

func ExampleRegistry_Execute() {
	r := NewRegistry()
	RegisterBuiltins(r)
	out := r.Execute(context.Background(), "calculate", map[string]any{"expression": "6 * 7"})
	fmt.Println(out.Result)
	// Output: 42
}
