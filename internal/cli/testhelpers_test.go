package cli

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/fmueller/voxserve/internal/whisper"
)

func runCommand(t *testing.T, args []string) (stdout string, stderr string, err error) {
	t.Helper()
	app := newAppState(func(string) string { return "" })
	app.testInputFile = filepath.Join(t.TempDir(), defaultTestInputFile)
	return runAppCommand(t, app, args)
}

func runAppCommand(t *testing.T, app *appState, args []string) (stdout string, stderr string, err error) {
	t.Helper()

	cmd := newRootCmd(app)
	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)

	err = cmd.ExecuteContext(context.Background())
	return outBuf.String(), errBuf.String(), err
}

// stubPipeline records the request and echoes a fixed transcript.
type stubPipeline struct {
	audio []byte
	opts  whisper.Options
}

func (s *stubPipeline) Transcribe(_ context.Context, audioPath string, opts whisper.Options) (whisper.Result, error) {
	s.audio, _ = os.ReadFile(audioPath)
	s.opts = opts

	result := whisper.Result{Text: "zero"}
	if opts.Timestamps != whisper.TimestampsOff {
		result.Chunks = []whisper.Chunk{{Text: " zero", Timestamp: [2]float64{0, 0.6}}}
	}
	return result, nil
}

func appWithPipeline(t *testing.T, pipeline whisper.Pipeline) *appState {
	t.Helper()

	app := newAppState(func(string) string { return "" })
	app.scratchDir = t.TempDir()
	app.testInputFile = filepath.Join(t.TempDir(), defaultTestInputFile)
	app.noProgress = true
	app.pipelineFn = func(context.Context) (whisper.Pipeline, error) {
		return pipeline, nil
	}
	return app
}

func makePCM16WAVForTest(samples []int16, sampleRate int, channels int) []byte {
	bytesPerSample := 2
	dataSize := len(samples) * bytesPerSample
	fmtChunkSize := 16
	riffSize := 4 + (8 + fmtChunkSize) + (8 + dataSize)

	out := make([]byte, 12+8+fmtChunkSize+8+dataSize)
	off := 0

	copy(out[off:], []byte("RIFF"))
	off += 4
	binary.LittleEndian.PutUint32(out[off:], uint32(riffSize))
	off += 4
	copy(out[off:], []byte("WAVE"))
	off += 4

	copy(out[off:], []byte("fmt "))
	off += 4
	binary.LittleEndian.PutUint32(out[off:], uint32(fmtChunkSize))
	off += 4
	binary.LittleEndian.PutUint16(out[off:], 1)
	off += 2
	binary.LittleEndian.PutUint16(out[off:], uint16(channels))
	off += 2
	binary.LittleEndian.PutUint32(out[off:], uint32(sampleRate))
	off += 4
	binary.LittleEndian.PutUint32(out[off:], uint32(sampleRate*channels*bytesPerSample))
	off += 4
	binary.LittleEndian.PutUint16(out[off:], uint16(channels*bytesPerSample))
	off += 2
	binary.LittleEndian.PutUint16(out[off:], 16)
	off += 2

	copy(out[off:], []byte("data"))
	off += 4
	binary.LittleEndian.PutUint32(out[off:], uint32(dataSize))
	off += 4

	for _, s := range samples {
		binary.LittleEndian.PutUint16(out[off:], uint16(s))
		off += 2
	}

	return out
}
