package whisper

import (
	"context"
	"encoding/json"
)

type Timestamps string

const (
	TimestampsOff     Timestamps = "off"
	TimestampsWord    Timestamps = "word"
	TimestampsSegment Timestamps = "segment"
)

// TaskTranscribe is the only task the worker runs; translation is never requested.
const TaskTranscribe = "transcribe"

type Options struct {
	// Language is an ISO code; empty lets the model detect it.
	Language     string
	Timestamps   Timestamps
	ChunkLength  float64
	MaxNewTokens int
	Task         string
}

type Chunk struct {
	Text      string     `json:"text"`
	Timestamp [2]float64 `json:"timestamp"`
}

// Result is returned to callers as-is. A nil Chunks means timestamps were
// off and the key is omitted; an empty list is still encoded as [].
type Result struct {
	Text   string  `json:"text"`
	Chunks []Chunk `json:"chunks"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	if r.Chunks == nil {
		return json.Marshal(struct {
			Text string `json:"text"`
		}{Text: r.Text})
	}

	type result Result
	return json.Marshal(result(r))
}

// Pipeline is a loaded speech-to-text model. Implementations are safe to
// reuse across jobs and are never mutated after construction.
type Pipeline interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) (Result, error)
}
