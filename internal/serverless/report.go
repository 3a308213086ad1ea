package serverless

import (
	"context"
	"encoding/json"
)

type Handler interface {
	Handle(ctx context.Context, payload []byte) (any, error)
}

type HandlerFunc func(ctx context.Context, payload []byte) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, payload []byte) (any, error) {
	return f(ctx, payload)
}

// Classifier names an error's class for the failure report.
type Classifier func(error) string

// ErrorReport is serialized into the "error" field of a failed job result.
type ErrorReport struct {
	Type    string `json:"error_type"`
	Message string `json:"error_message"`
}

type jobResult struct {
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

func newJobResult(output any, err error, classify Classifier) jobResult {
	if err == nil {
		return jobResult{Output: output}
	}

	kind := ""
	if classify != nil {
		kind = classify(err)
	}
	if kind == "" {
		kind = "Error"
	}

	report, marshalErr := json.Marshal(ErrorReport{Type: kind, Message: err.Error()})
	if marshalErr != nil {
		return jobResult{Error: err.Error()}
	}
	return jobResult{Error: string(report)}
}
