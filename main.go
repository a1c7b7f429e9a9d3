package main

import (
	"github.com/pulumi/pulumi/sdk/v2/go/pulumi"
)

func configurePipeline(ctx *pulumi.Context) error {
	cfg, err := loadPipelineConfig(ctx)
	if err != nil {
		return err
	}

	store, err := configureStorage(ctx)
	if err != nil {
		return err
	}

	stateMachine, err := configureWorkflow(ctx, store, cfg)
	if err != nil {
		return err
	}

	return configureUploadTrigger(ctx, store, stateMachine, cfg)
}

func main() {
	pulumi.Run(configurePipeline)
}
