package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	"github.com/aws/aws-sdk-go-v2/service/transcribe/types"

	"PodcastNotifier/internal/domain"
	"PodcastNotifier/internal/ports"
)

const maxSpeakers = 2

// JobAPI is the subset of the Transcribe client the adapter relies on.
type JobAPI interface {
	StartTranscriptionJob(ctx context.Context, in *transcribe.StartTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.StartTranscriptionJobOutput, error)
}

// AWSTranscriber submits jobs to Amazon Transcribe. Output lands in the
// requested bucket/key and is decoded by Transcript once present.
type AWSTranscriber struct {
	api JobAPI
}

var _ ports.Transcriber = (*AWSTranscriber)(nil)

// NewAWSTranscriber wraps a Transcribe API implementation.
func NewAWSTranscriber(api JobAPI) *AWSTranscriber {
	return &AWSTranscriber{api: api}
}

// NewClient builds a Transcribe client from a resolved AWS config.
func NewClient(awsCfg aws.Config) *transcribe.Client {
	return transcribe.NewFromConfig(awsCfg)
}

// Submit starts an asynchronous job with speaker labels enabled.
func (t *AWSTranscriber) Submit(ctx context.Context, req domain.TranscriptionRequest) error {
	if req.JobName == "" || req.MediaURI == "" {
		return fmt.Errorf("transcription request is incomplete")
	}
	if !domain.SupportedFormat(req.Format) {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, req.Format)
	}

	_, err := t.api.StartTranscriptionJob(ctx, &transcribe.StartTranscriptionJobInput{
		TranscriptionJobName: aws.String(req.JobName),
		Media:                &types.Media{MediaFileUri: aws.String(req.MediaURI)},
		MediaFormat:          types.MediaFormat(strings.ToLower(req.Format)),
		LanguageCode:         types.LanguageCode(req.Language),
		OutputBucketName:     aws.String(req.OutputBucket),
		OutputKey:            aws.String(req.OutputKey),
		Settings: &types.Settings{
			ShowSpeakerLabels: aws.Bool(true),
			MaxSpeakerLabels:  aws.Int32(maxSpeakers),
		},
	})
	if err != nil {
		return fmt.Errorf("start transcription job %s: %w", req.JobName, err)
	}
	return nil
}

type transcriptDocument struct {
	JobName string `json:"jobName"`
	Results struct {
		Transcripts []struct {
			Transcript string `json:"transcript"`
		} `json:"transcripts"`
	} `json:"results"`
}

// Transcript joins every transcript alternative of a Transcribe output document.
func (t *AWSTranscriber) Transcript(output []byte) (string, error) {
	var doc transcriptDocument
	if err := json.Unmarshal(output, &doc); err != nil {
		return "", fmt.Errorf("decode transcript: %w", err)
	}

	parts := make([]string, 0, len(doc.Results.Transcripts))
	for _, tr := range doc.Results.Transcripts {
		if text := strings.TrimSpace(tr.Transcript); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
