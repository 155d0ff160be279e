package fetch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/reeve-ai/reeve/internal/tools"
)

// RegisterTool adds the fetch_url tool to a registry.
func RegisterTool(reg *tools.Registry, f *Fetcher) {
	reg.Register(&tools.Tool{
		Name:        "fetch_url",
		Description: "Download a web page and return its readable text content.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "URL to fetch. Scheme defaults to https when omitted.",
				},
				"max_chars": map[string]any{
					"type":        "integer",
					"description": "Maximum characters of extracted text to return. Default: 50000.",
				},
			},
			"required": []string{"url"},
		},
		Handler: Handler(f),
	})
}

// Handler adapts a Fetcher to the tool handler signature.
func Handler(f *Fetcher) func(ctx context.Context, args map[string]any) (string, error) {
	return func(ctx context.Context, args map[string]any) (string, error) {
		url, _ := args["url"].(string)
		if url == "" {
			return "", fmt.Errorf("fetch_url: url is required")
		}

		maxChars := 0
		if mc, ok := args["max_chars"].(float64); ok && mc > 0 {
			maxChars = int(mc)
		}

		result, err := f.Fetch(ctx, url, maxChars)
		if err != nil {
			return "", err
		}

		out, err := json.Marshal(result)
		if err != nil {
			return fmt.Sprintf("Title: %s\n\n%s", result.Title, result.Content), nil
		}
		return string(out), nil
	}
}
