package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RegisterBuiltins adds the tools every Reeve instance ships with.
// Network-facing tools (fetch_url) are registered separately by the
// caller so they can be disabled by config.
func RegisterBuiltins(r *Registry) {
	r.Register(&Tool{
		Name:        "get_time",
		Description: "Get the current date and time. Use this whenever the user asks about the current time or date.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"timezone": map[string]any{
					"type":        "string",
					"description": "IANA timezone name (e.g., Europe/Oslo). Defaults to the server's local timezone.",
				},
			},
		},
		Handler: handleGetTime,
	})

	r.Register(&Tool{
		Name:        "calculate",
		Description: "Evaluate a simple arithmetic expression of the form '<number> <op> <number>' where op is +, -, * or /.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{
					"type":        "string",
					"description": "The expression to evaluate, e.g. '12.5 * 3'",
				},
			},
			"required": []string{"expression"},
		},
		Handler: handleCalculate,
	})
}

func handleGetTime(ctx context.Context, args map[string]any) (string, error) {
	now := time.Now()

	if tz, _ := args["timezone"].(string); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return "", fmt.Errorf("unknown timezone %q", tz)
		}
		now = now.In(loc)
	}

	return now.Format("Monday, 2 January 2006 15:04:05 MST"), nil
}

func handleCalculate(ctx context.Context, args map[string]any) (string, error) {
	expr, _ := args["expression"].(string)
	if expr == "" {
		return "", fmt.Errorf("expression is required")
	}

	left, op, right, err := splitExpression(expr)
	if err != nil {
		return "", err
	}

	var result float64
	switch op {
	case "+":
		result = left + right
	case "-":
		result = left - right
	case "*", "x":
		result = left * right
	case "/":
		if right == 0 {
			return "", fmt.Errorf("division by zero")
		}
		result = left / right
	default:
		return "", fmt.Errorf("unsupported operator %q", op)
	}

	return strconv.FormatFloat(result, 'f', -1, 64), nil
}

// splitExpression parses "<number> <op> <number>", tolerating missing
// spaces around the operator for + * / (minus is ambiguous with
// negative numbers, so it requires spaces).
func splitExpression(expr string) (float64, string, float64, error) {
	fields := strings.Fields(expr)
	if len(fields) != 3 {
		for _, op := range []string{"+", "*", "x", "/"} {
			if parts := strings.SplitN(expr, op, 2); len(parts) == 2 {
				fields = []string{strings.TrimSpace(parts[0]), op, strings.TrimSpace(parts[1])}
				break
			}
		}
	}
	if len(fields) != 3 {
		return 0, "", 0, fmt.Errorf("expected '<number> <op> <number>', got %q", expr)
	}

	left, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, "", 0, fmt.Errorf("bad left operand %q", fields[0])
	}
	right, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return 0, "", 0, fmt.Errorf("bad right operand %q", fields[2])
	}
	return left, fields[1], right, nil
}
