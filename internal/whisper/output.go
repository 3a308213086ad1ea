package whisper

import (
	"encoding/json"
	"fmt"
	"strings"
)

type cliOffsets struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

type cliToken struct {
	Text    string     `json:"text"`
	Offsets cliOffsets `json:"offsets"`
}

type cliSegment struct {
	Offsets cliOffsets `json:"offsets"`
	Text    string     `json:"text"`
	Tokens  []cliToken `json:"tokens"`
}

// cliOutput is the subset of whisper-cli's -ojf document the worker reads.
type cliOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []cliSegment `json:"transcription"`
}

func parseOutput(content []byte) (cliOutput, error) {
	var out cliOutput
	if err := json.Unmarshal(content, &out); err != nil {
		return cliOutput{}, fmt.Errorf("parse whisper output: %w", err)
	}
	return out, nil
}

// buildResult shapes engine segments into a Result. Each chunk window may
// generate at most MaxNewTokens text tokens; the rest is dropped without
// error, the same way a decoder stops at its token limit.
func buildResult(out cliOutput, opts Options) Result {
	// The engine never decodes more than one model window at a time.
	window := opts.ChunkLength
	if window <= 0 || window > modelWindowSeconds {
		window = modelWindowSeconds
	}

	used := map[int]int{}
	var text strings.Builder
	var chunks []Chunk

	for _, seg := range out.Transcription {
		segText := seg.Text
		end := seg.Offsets.To

		if opts.MaxNewTokens > 0 && len(seg.Tokens) > 0 {
			idx := int(msToSeconds(seg.Offsets.From) / window)
			remaining := opts.MaxNewTokens - used[idx]
			if remaining <= 0 {
				continue
			}

			textTokens := make([]cliToken, 0, len(seg.Tokens))
			for _, tok := range seg.Tokens {
				if !isSpecialToken(tok.Text) {
					textTokens = append(textTokens, tok)
				}
			}

			if len(textTokens) > remaining {
				textTokens = textTokens[:remaining]
				var b strings.Builder
				for _, tok := range textTokens {
					b.WriteString(tok.Text)
				}
				segText = b.String()
				end = textTokens[len(textTokens)-1].Offsets.To
			}
			used[idx] += len(textTokens)
		}

		if strings.TrimSpace(segText) == "" {
			continue
		}

		text.WriteString(segText)
		chunks = append(chunks, Chunk{
			Text:      segText,
			Timestamp: [2]float64{msToSeconds(seg.Offsets.From), msToSeconds(end)},
		})
	}

	result := Result{Text: strings.TrimSpace(text.String())}
	if opts.Timestamps != TimestampsOff {
		if chunks == nil {
			chunks = []Chunk{}
		}
		result.Chunks = chunks
	}
	return result
}

// whisper.cpp renders control tokens as [_BEG_], [_TT_150], [_EOT_] and so on.
func isSpecialToken(text string) bool {
	return strings.HasPrefix(text, "[_") && strings.HasSuffix(text, "]")
}

func msToSeconds(ms int64) float64 {
	return float64(ms) / 1000
}
