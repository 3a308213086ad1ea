package serverless

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunLocalWritesOutputEnvelope(t *testing.T) {
	t.Parallel()

	out := new(bytes.Buffer)
	err := RunLocal(context.Background(), HandlerFunc(func(context.Context, []byte) (any, error) {
		return map[string]string{"text": "hello"}, nil
	}), []byte(`{"input": {}}`), out)
	require.NoError(t, err)
	require.JSONEq(t, `{"output": {"text": "hello"}}`, out.String())
}

func TestRunLocalReturnsHandlerError(t *testing.T) {
	t.Parallel()

	want := errors.New("audio_path not found")
	out := new(bytes.Buffer)
	err := RunLocal(context.Background(), HandlerFunc(func(context.Context, []byte) (any, error) {
		return nil, want
	}), []byte(`{}`), out)
	require.ErrorIs(t, err, want)
	require.Empty(t, out.String())
}
