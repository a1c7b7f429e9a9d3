package workflow

import (
	"regexp"

	"github.com/pkg/errors"
)

const (
	// StartStateName is the pass-through entry state.
	StartStateName = "Start"
	// TranscriptionStateName is the state that submits the Transcribe job.
	TranscriptionStateName = "StartTranscription"

	startTranscriptionJobResource = "arn:aws:states:::aws-sdk:transcribe:startTranscriptionJob"

	transcriptionComment = "Workflow to process audio / video files"
)

var languageCodePattern = regexp.MustCompile(`^[a-z]{2,3}-[A-Z]{2}$`)

// RetryableTranscribeErrors are the Transcribe errors worth another attempt.
var RetryableTranscribeErrors = []string{
	"Transcribe.LimitExceededException",
	"Transcribe.InternalFailureException",
}

// ValidLanguageCode reports whether code looks like a Transcribe LanguageCode.
func ValidLanguageCode(code string) bool {
	return languageCodePattern.MatchString(code)
}

// TranscriptionConfig parameterises the transcription workflow. LanguageCode
// and OutputBucket are baked into the definition.
type TranscriptionConfig struct {
	LanguageCode string
	OutputBucket string

	// MaxAttempts adds a retrier for throttling and internal errors when
	// greater than zero. Zero means a transient error fails the execution.
	MaxAttempts int
}

// TranscriptionDefinition returns the two-state transcription workflow:
// a pass-through Start state followed by the StartTranscription task.
func TranscriptionDefinition(cfg TranscriptionConfig) (Definition, error) {
	if !ValidLanguageCode(cfg.LanguageCode) {
		return Definition{}, errors.Errorf("invalid transcribe language code %q", cfg.LanguageCode)
	}
	if cfg.OutputBucket == "" {
		return Definition{}, errors.New("output bucket is required")
	}
	if cfg.MaxAttempts < 0 {
		return Definition{}, errors.Errorf("max attempts must not be negative, got %d", cfg.MaxAttempts)
	}

	startTranscription := NewTask(TranscriptionStateName, startTranscriptionJobResource, map[string]interface{}{
		"TranscriptionJobName": UUID(),
		"Media": map[string]interface{}{
			"MediaFileUri": Path("$.media_file_uri"),
		},
		"LanguageCode":     cfg.LanguageCode,
		"OutputBucketName": cfg.OutputBucket,
	})
	if cfg.MaxAttempts > 0 {
		startTranscription.Retry(Retrier{
			ErrorEquals:     RetryableTranscribeErrors,
			IntervalSeconds: 2,
			MaxAttempts:     cfg.MaxAttempts,
			BackoffRate:     2,
		})
	}

	return Start(NewPass(StartStateName)).
		Next(startTranscription).
		Definition(transcriptionComment)
}
