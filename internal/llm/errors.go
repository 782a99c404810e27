package llm

import "fmt"

// APICallError reports a failed call to a model provider.
type APICallError struct {
	Provider Provider
	Model    string
	Message  string
	Cause    error
}

func (e *APICallError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Model, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Model, e.Message)
}

func (e *APICallError) Unwrap() error {
	return e.Cause
}
