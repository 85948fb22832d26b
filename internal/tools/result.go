package tools

// Result is the unified return type from tool execution. Output is
// what the LLM sees; expected operational failures are reported there
// rather than as Go errors, so the model can react. Message is a short
// human-readable description for logs and events.
type Result struct {
	Output  string `json:"output"`
	Message string `json:"message,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
}

func NewResult(output string) *Result {
	return &Result{Output: output}
}

func NewResultWithMessage(output, message string) *Result {
	return &Result{Output: output, Message: message}
}

func ErrorResult(output string) *Result {
	return &Result{Output: output, IsError: true}
}
