package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("duplicate record")
	ErrObjectNotFound    = errors.New("object not found")
	ErrUnsupportedFormat = errors.New("unsupported media format")
	ErrMissingBucket     = errors.New("storage bucket is not configured")
	ErrFeedUnavailable   = errors.New("feed unavailable")
	ErrInvalidFeedURL    = errors.New("invalid feed url")
	ErrNoSummarizer      = errors.New("summarizer is not configured")
	ErrEmptyTranscript   = errors.New("transcript is empty")
)
