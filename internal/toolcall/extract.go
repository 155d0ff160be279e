// Package toolcall recovers structured tool-call requests from
// free-form model text.
//
// Models served through completion-style APIs have no native tool-call
// channel, so they are prompted to emit requests inside
// <tool_call>…</tool_call> blocks. This package detects those blocks,
// parses each one (structured markup first, JSON second), strips them
// from display text, and renders tool results back into the same
// delimited shape for the next provider call.
package toolcall

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// Call is one extracted tool invocation request.
type Call struct {
	Name      string
	Arguments map[string]any
}

// blockRE matches one delimited block, tags case-insensitive, content
// spanning lines. Non-greedy so adjacent blocks stay separate.
var blockRE = regexp.MustCompile(`(?is)<tool_call>(.*?)</tool_call>`)

// Contains reports whether text holds at least one delimited block.
// It does not check that the block parses; Extract decides that.
func Contains(text string) bool {
	return blockRE.MatchString(text)
}

// Extract returns every parseable tool call in text, in original
// order. Each block is tried as structured markup first and JSON
// second; a block failing both is logged and skipped — malformed
// blocks never poison their well-formed neighbors.
func Extract(logger *slog.Logger, text string) []Call {
	if logger == nil {
		logger = slog.Default()
	}

	var calls []Call
	for _, m := range blockRE.FindAllStringSubmatch(text, -1) {
		body := strings.TrimSpace(m[1])

		call, err := parseMarkup(body)
		if err != nil {
			var jsonErr error
			call, jsonErr = parseJSON(body)
			if jsonErr != nil {
				logger.Warn("skipping malformed tool call block",
					"markup_error", err,
					"json_error", jsonErr,
				)
				continue
			}
		}
		calls = append(calls, call)
	}
	return calls
}

// Strip removes every delimited block from text, returning clean
// display content.
func Strip(text string) string {
	return strings.TrimSpace(blockRE.ReplaceAllString(text, ""))
}

// parseMarkup parses the element form:
//
//	<name>get_weather</name>
//	<arguments>
//	  <city>Paris</city>
//	  <celsius>true</celsius>
//	</arguments>
//
// Each child of <arguments> becomes an argument key; its text is
// coerced bool → int → float → string, in that priority order.
func parseMarkup(body string) (Call, error) {
	dec := xml.NewDecoder(strings.NewReader("<call>" + body + "</call>"))
	dec.Strict = false

	var call Call
	depth := 0
	inArguments := false
	var currentKey string
	var text strings.Builder

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Call{}, fmt.Errorf("markup parse: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			name := strings.ToLower(t.Name.Local)
			switch {
			case depth == 2 && name == "arguments":
				inArguments = true
			case depth == 3 && inArguments:
				currentKey = t.Name.Local
			}
			text.Reset()

		case xml.CharData:
			text.Write(t)

		case xml.EndElement:
			name := strings.ToLower(t.Name.Local)
			switch {
			case depth == 2 && name == "name":
				call.Name = strings.TrimSpace(text.String())
			case depth == 2 && name == "arguments":
				inArguments = false
			case depth == 3 && inArguments && currentKey != "":
				if call.Arguments == nil {
					call.Arguments = make(map[string]any)
				}
				call.Arguments[currentKey] = coerce(strings.TrimSpace(text.String()))
				currentKey = ""
			}
			depth--
		}
	}

	if call.Name == "" {
		return Call{}, fmt.Errorf("markup parse: no name element")
	}
	return call, nil
}

// parseJSON parses the object form:
//
//	{"name": "get_weather", "arguments": {"city": "Paris"}}
//
// The top-level value must be an object with a non-empty name; an
// arguments key, if present, must itself be an object.
func parseJSON(body string) (Call, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return Call{}, fmt.Errorf("json parse: %w", err)
	}

	var name string
	if err := json.Unmarshal(raw["name"], &name); err != nil || name == "" {
		return Call{}, fmt.Errorf("json parse: missing or empty name")
	}

	call := Call{Name: name}
	if argsRaw, ok := raw["arguments"]; ok {
		var args map[string]any
		if err := json.Unmarshal(argsRaw, &args); err != nil {
			return Call{}, fmt.Errorf("json parse: arguments is not an object")
		}
		call.Arguments = args
	}
	return call, nil
}

// coerce converts element text to the narrowest matching scalar:
// bool, then int, then float, then string.
func coerce(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// FormatResult renders a tool outcome back into delimited text for a
// provider without a native tool-result channel.
func FormatResult(name string, success bool, content string) string {
	payload := map[string]any{
		"tool":    name,
		"success": success,
		"result":  content,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		// map[string]any with string/bool values cannot fail to
		// marshal; guard anyway.
		data = []byte(fmt.Sprintf(`{"tool":%q,"success":%v}`, name, success))
	}
	return "<tool_result>\n" + string(data) + "\n</tool_result>"
}
