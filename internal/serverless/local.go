package serverless

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// RunLocal handles a single test job and writes {"output": ...} to out.
// Handler errors are returned as-is so the caller can exit non-zero.
func RunLocal(ctx context.Context, handler Handler, payload []byte, out io.Writer) error {
	output, err := handler.Handle(ctx, payload)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(jobResult{Output: output}); err != nil {
		return fmt.Errorf("write job output: %w", err)
	}
	return nil
}
