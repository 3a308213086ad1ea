package job

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fmueller/voxserve/internal/source"
	"github.com/fmueller/voxserve/internal/whisper"
)

const (
	DefaultChunkLength  = 30.0
	DefaultMaxNewTokens = 448
)

// Request is a validated job input with defaults applied.
type Request struct {
	Source  source.Input
	Options whisper.Options
}

// ParseRequest validates a job envelope of the form {"input": {...}}.
func ParseRequest(payload []byte) (Request, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(payload, &envelope); err != nil || envelope == nil {
		return Request{}, fmt.Errorf("%w: job payload must be a JSON object", ErrValidation)
	}

	rawInput, ok := envelope["input"]
	if !ok {
		return Request{}, fmt.Errorf("%w: missing required `input` field on event", ErrValidation)
	}

	var input map[string]json.RawMessage
	trimmed := bytes.TrimSpace(rawInput)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Request{}, fmt.Errorf("%w, got %s", ErrInputType, jsonKind(trimmed))
	}
	if err := json.Unmarshal(trimmed, &input); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var req Request
	var err error

	if req.Source.URL, err = optionalString(input, string(source.KindURL)); err != nil {
		return Request{}, err
	}
	if req.Source.Base64, err = optionalString(input, string(source.KindBase64)); err != nil {
		return Request{}, err
	}
	if req.Source.Path, err = optionalString(input, string(source.KindPath)); err != nil {
		return Request{}, err
	}

	language, err := optionalString(input, "language")
	if err != nil {
		return Request{}, err
	}
	if language != nil {
		req.Options.Language = strings.TrimSpace(*language)
	}

	if req.Options.Timestamps, err = parseTimestamps(input["timestamps"]); err != nil {
		return Request{}, err
	}

	req.Options.ChunkLength = DefaultChunkLength
	if raw, ok := present(input, "chunk_length_s"); ok {
		v, err := parseNumber(raw)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return Request{}, fmt.Errorf("%w: chunk_length_s must be a positive number", ErrValidation)
		}
		req.Options.ChunkLength = v
	}

	req.Options.MaxNewTokens = DefaultMaxNewTokens
	if raw, ok := present(input, "max_new_tokens"); ok {
		v, err := parseNumber(raw)
		if err != nil || math.IsNaN(v) || v < 1 || v > math.MaxInt32 {
			return Request{}, fmt.Errorf("%w: max_new_tokens must be a positive integer", ErrValidation)
		}
		req.Options.MaxNewTokens = int(v)
	}

	req.Options.Task = whisper.TaskTranscribe
	return req, nil
}

// present reports whether key is set to something other than null.
func present(input map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := input[key]
	if !ok || isNull(raw) {
		return nil, false
	}
	return raw, true
}

func optionalString(input map[string]json.RawMessage, key string) (*string, error) {
	raw, ok := present(input, key)
	if !ok {
		return nil, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %s must be a string", ErrValidation, key)
	}
	return &s, nil
}

// parseTimestamps maps "word", "segment", true, false and null. An absent
// field means word-level.
func parseTimestamps(raw json.RawMessage) (whisper.Timestamps, error) {
	if raw == nil {
		return whisper.TimestampsWord, nil
	}
	if isNull(raw) {
		return whisper.TimestampsOff, nil
	}

	var flag bool
	if err := json.Unmarshal(raw, &flag); err == nil {
		if flag {
			return whisper.TimestampsSegment, nil
		}
		return whisper.TimestampsOff, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "word":
			return whisper.TimestampsWord, nil
		case "segment", "chunk":
			return whisper.TimestampsSegment, nil
		}
	}

	return "", fmt.Errorf("%w: timestamps must be \"word\", \"segment\" or a boolean", ErrValidation)
}

// parseNumber accepts JSON numbers and numeric strings.
func parseNumber(raw json.RawMessage) (float64, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func jsonKind(raw []byte) string {
	if len(raw) == 0 {
		return "nothing"
	}
	switch raw[0] {
	case '[':
		return "array"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}
