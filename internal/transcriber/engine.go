// Package transcriber runs speech-to-text inference over prepared audio.
package transcriber

import "context"

type Request struct {
	AudioPath   string
	ModelPath   string
	Language    string
	Temperature float64
	Prompt      string

	// WithTimestamps selects segment-level output for this call only.
	WithTimestamps bool
}

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type Result struct {
	Text     string
	Segments []Segment
}

type Engine interface {
	Transcribe(ctx context.Context, req Request) (Result, error)
}
