package agent

import "fmt"

// ProviderError unifies failures surfaced by a provider exchange:
// transient transport errors that outlived the retry budget and
// protocol errors that were never retried. The original cause is
// preserved for errors.Is/As.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider exchange failed: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ConfigError reports a turn that cannot proceed as configured, such
// as the model requesting tool calls when no tools are registered.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "agent misconfigured: " + e.Reason
}

// ExhaustionError reports a turn abandoned with nothing to show: the
// iteration budget ran out, or the model kept answering with empty
// content and no tool results were available to fall back on.
type ExhaustionError struct {
	Iterations     int
	EmptyResponses int
	Reason         string
}

func (e *ExhaustionError) Error() string {
	return fmt.Sprintf("turn abandoned after %d iteration(s): %s", e.Iterations, e.Reason)
}
