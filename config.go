package main

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/pulumi/pulumi/sdk/v2/go/pulumi"
	"github.com/pulumi/pulumi/sdk/v2/go/pulumi/config"

	"transcription-pipeline/internal/workflow"
)

// pipelineConfig is resolved once per deployment; nothing in it can change
// without redeploying the stack.
type pipelineConfig struct {
	// transcribeLocale is the Transcribe LanguageCode baked into the workflow.
	transcribeLocale string
	// transcribeMaxAttempts enables retries of the transcription call when > 0.
	transcribeMaxAttempts int
	// triggerDeadLetterQueue collects trigger events that exhausted async retries.
	triggerDeadLetterQueue bool
}

// loadPipelineConfig reads the project namespaced stack config, e.g.
// `pulumi config set transcribe-locale en-US`.
func loadPipelineConfig(ctx *pulumi.Context) (pipelineConfig, error) {
	c := config.New(ctx, "")

	var cfg pipelineConfig

	cfg.transcribeLocale = c.Get("transcribe-locale")
	if cfg.transcribeLocale == "" {
		return pipelineConfig{}, errors.New("missing required configuration variable 'transcribe-locale'")
	}
	if !workflow.ValidLanguageCode(cfg.transcribeLocale) {
		return pipelineConfig{}, errors.Errorf("invalid transcribe-locale %q", cfg.transcribeLocale)
	}

	if v := c.Get("transcribe-max-attempts"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return pipelineConfig{}, errors.Wrapf(err, "invalid transcribe-max-attempts %q", v)
		}
		if n < 0 {
			return pipelineConfig{}, errors.Errorf("transcribe-max-attempts must not be negative, got %d", n)
		}
		cfg.transcribeMaxAttempts = n
	}

	if v := c.Get("trigger-dead-letter-queue"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return pipelineConfig{}, errors.Wrapf(err, "invalid trigger-dead-letter-queue %q", v)
		}
		cfg.triggerDeadLetterQueue = b
	}

	return cfg, nil
}
