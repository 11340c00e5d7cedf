package services

import "context"

type contextKey string

const (
	songKey      contextKey = "song"
	stageKey     contextKey = "stage"
	candidateKey contextKey = "candidate"
	requestIDKey contextKey = "request_id"
)

// WithSong annotates context with the song title being processed.
func WithSong(ctx context.Context, title string) context.Context {
	if title == "" {
		return ctx
	}
	return context.WithValue(ctx, songKey, title)
}

// SongFromContext returns the song title if present.
func SongFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(songKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithCandidate annotates context with the 1-based search candidate index.
func WithCandidate(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, candidateKey, index)
}

// CandidateFromContext extracts the candidate index if present.
func CandidateFromContext(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(candidateKey).(int)
	return v, ok
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
