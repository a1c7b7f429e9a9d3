package main

import (
	"github.com/pulumi/pulumi-aws/sdk/v2/go/aws/iam"
	"github.com/pulumi/pulumi-aws/sdk/v2/go/aws/sfn"
	"github.com/pulumi/pulumi/sdk/v2/go/pulumi"

	"transcription-pipeline/internal/workflow"
)

// renderTranscriptionDefinition returns the workflow document writing its
// results to outputBucket.
func renderTranscriptionDefinition(cfg pipelineConfig, outputBucket string) (string, error) {
	def, err := workflow.TranscriptionDefinition(workflow.TranscriptionConfig{
		LanguageCode: cfg.transcribeLocale,
		OutputBucket: outputBucket,
		MaxAttempts:  cfg.transcribeMaxAttempts,
	})
	if err != nil {
		return "", err
	}
	return def.JSON()
}

func configureWorkflow(ctx *pulumi.Context, store storage, cfg pipelineConfig) (*sfn.StateMachine, error) {
	assumeRolePolicy, err := newAssumeRolePolicyDocumentString("states.amazonaws.com")
	if err != nil {
		return nil, err
	}

	role, err := iam.NewRole(ctx, "transcription-processor-role", &iam.RoleArgs{
		AssumeRolePolicy: pulumi.String(assumeRolePolicy),
	})
	if err != nil {
		return nil, err
	}

	statementEntries, err := statementsFor(workflowRole, map[string]resourceBinding{
		uploadObjects:  {pattern: "arn:aws:s3:::%s/*", args: []interface{}{store.uploadBucket.ID()}},
		resultObjects:  {pattern: "arn:aws:s3:::%s/*", args: []interface{}{store.resultBucket.ID()}},
		transcribeJobs: {pattern: "*"},
	})
	if err != nil {
		return nil, err
	}

	policy, strArgs, err := newPolicyDocumentString(statementEntries...)
	if err != nil {
		return nil, err
	}

	rolePolicy, err := iam.NewRolePolicy(ctx, "transcription-processor-policy", &iam.RolePolicyArgs{
		Role:   role.Name,
		Policy: pulumi.Sprintf(policy, strArgs...),
	})
	if err != nil {
		return nil, err
	}

	definition := store.resultBucket.Bucket.ApplyT(func(bucket string) (string, error) {
		return renderTranscriptionDefinition(cfg, bucket)
	}).(pulumi.StringOutput)

	stateMachine, err := sfn.NewStateMachine(ctx, "transcription-upload-processor", &sfn.StateMachineArgs{
		Definition: definition,
		RoleArn:    role.Arn,
	}, pulumi.DependsOn([]pulumi.Resource{rolePolicy}))
	if err != nil {
		return nil, err
	}

	ctx.Export("State Machine", stateMachine.ID())

	return stateMachine, nil
}
