package domain

import (
	"net/url"
	"path"
	"strings"
	"time"
)

// JobStatus is the lifecycle state of a transcription job.
type JobStatus string

const (
	JobStarted   JobStatus = "STARTED"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)

// Terminal reports whether the job will never be checked again.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// DefaultMediaFormat is used when the audio URL carries no extension.
const DefaultMediaFormat = "mp3"

var supportedFormats = map[string]struct{}{
	"mp3":  {},
	"mp4":  {},
	"wav":  {},
	"flac": {},
	"ogg":  {},
	"amr":  {},
	"webm": {},
}

// MediaFormat extracts the lowercase file extension of an audio URL, ignoring
// query strings. URLs without an extension map to DefaultMediaFormat.
func MediaFormat(audioURL string) string {
	p := audioURL
	if u, err := url.Parse(audioURL); err == nil && u.Path != "" {
		p = u.Path
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
	if ext == "" {
		return DefaultMediaFormat
	}
	return ext
}

// SupportedFormat reports whether the speech-to-text provider accepts format.
func SupportedFormat(format string) bool {
	_, ok := supportedFormats[strings.ToLower(format)]
	return ok
}

// TranscriptionJob tracks one asynchronous speech-to-text job.
type TranscriptionJob struct {
	Name          string
	AudioURL      string
	MediaURI      string
	TranscriptURI string
	Status        JobStatus
	Attempts      int
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TranscriptionRequest is what gets submitted to the provider.
type TranscriptionRequest struct {
	JobName      string
	MediaURI     string
	Format       string
	Language     string
	OutputBucket string
	OutputKey    string
}

// JobPolicy decides when a job that keeps coming back unfinished is given up.
// Zero values disable the corresponding limit.
type JobPolicy struct {
	MaxAttempts int
	MaxAge      time.Duration
}

// Exhausted reports whether the job must turn FAILED after the given attempt count.
func (p JobPolicy) Exhausted(job TranscriptionJob, attempts int, now time.Time) bool {
	if p.MaxAttempts > 0 && attempts >= p.MaxAttempts {
		return true
	}
	if p.MaxAge > 0 && !job.CreatedAt.IsZero() && now.Sub(job.CreatedAt) > p.MaxAge {
		return true
	}
	return false
}

// ObjectURI renders the s3-style URI of an object.
func ObjectURI(bucket, key string) string {
	return "s3://" + bucket + "/" + strings.TrimPrefix(key, "/")
}

// ParseObjectURI splits an s3-style URI into bucket and key.
func ParseObjectURI(uri string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(uri, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
