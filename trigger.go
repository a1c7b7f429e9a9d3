package main

import (
	"github.com/pulumi/pulumi-aws/sdk/v2/go/aws/lambda"
	"github.com/pulumi/pulumi-aws/sdk/v2/go/aws/s3"
	"github.com/pulumi/pulumi-aws/sdk/v2/go/aws/sfn"
	"github.com/pulumi/pulumi-aws/sdk/v2/go/aws/sqs"
	"github.com/pulumi/pulumi/sdk/v2/go/pulumi"

	"transcription-pipeline/internal/pipeline"
)

func configureUploadTrigger(ctx *pulumi.Context, store storage, stateMachine *sfn.StateMachine, cfg pipelineConfig) error {
	bindings := map[string]resourceBinding{
		workflowExecutions: {pattern: "%s", args: []interface{}{stateMachine.ID()}},
		metadataTable:      {pattern: "%s", args: []interface{}{store.table.Arn}},
	}

	opts := lambdaOptions{memorySize: 1024, timeout: 30}

	if cfg.triggerDeadLetterQueue {
		queue, err := sqs.NewQueue(ctx, "transcription-upload-trigger-dlq", &sqs.QueueArgs{
			MessageRetentionSeconds: pulumi.Int(1209600),
		})
		if err != nil {
			return err
		}
		bindings[deadLetterQueue] = resourceBinding{pattern: "%s", args: []interface{}{queue.Arn}}
		opts.deadLetterTargetArn = queue.Arn

		ctx.Export("Upload Trigger Dead Letter Queue", queue.ID())
	}

	statementEntries, err := statementsFor(triggerRole, bindings)
	if err != nil {
		return err
	}

	env := lambda.FunctionEnvironmentArgs{
		Variables: pulumi.StringMap{
			"STATE_MACHINE_ARN": stateMachine.ID(),
			"DDB_TABLE":         store.table.ID(),
		},
	}

	function, err := makeLambda(ctx, "upload-trigger", statementEntries, env, opts)
	if err != nil {
		return err
	}

	permission, err := lambda.NewPermission(ctx, "transcription-upload-trigger-permission", &lambda.PermissionArgs{
		Action:    pulumi.String("lambda:InvokeFunction"),
		Function:  function.Name,
		Principal: pulumi.String("s3.amazonaws.com"),
		SourceArn: store.uploadBucket.Arn,
	})
	if err != nil {
		return err
	}

	_, err = s3.NewBucketNotification(ctx, "transcription-new-upload", &s3.BucketNotificationArgs{
		Bucket: store.uploadBucket.ID(),
		LambdaFunctions: s3.BucketNotificationLambdaFunctionArray{
			s3.BucketNotificationLambdaFunctionArgs{
				Events: pulumi.StringArray{
					pulumi.String("s3:ObjectCreated:*"),
				},
				FilterPrefix:      pulumi.String(pipeline.NotificationFilterPrefix),
				LambdaFunctionArn: function.Arn,
			},
		},
	}, pulumi.DependsOn([]pulumi.Resource{permission}))
	if err != nil {
		return err
	}

	ctx.Export("Upload Trigger", function.Name)

	return nil
}
