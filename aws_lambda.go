package main

import (
	"fmt"

	"github.com/pulumi/pulumi-aws/sdk/v2/go/aws/iam"
	"github.com/pulumi/pulumi-aws/sdk/v2/go/aws/lambda"
	"github.com/pulumi/pulumi/sdk/v2/go/pulumi"
)

type lambdaOptions struct {
	memorySize int
	timeout    int

	// deadLetterTargetArn receives events whose async invocation failed all retries.
	deadLetterTargetArn pulumi.StringInput
}

func lambdaBaselineStatements() []policyStatementEntry {
	return []policyStatementEntry{
		{
			Effect: "Allow",
			Action: []string{
				"logs:CreateLogGroup",
				"logs:CreateLogStream",
				"logs:PutLogEvents",
			},
			Resource: []string{
				"arn:aws:logs:*:*:*",
			},
		},
		{
			Effect: "Allow",
			Action: []string{
				"xray:PutTraceSegments",
				"xray:PutTelemetryRecords",
				"xray:GetSamplingRules",
				"xray:GetSamplingTargets",
				"xray:GetSamplingStatisticSummaries",
			},
			Resource: []string{
				"*",
			},
		},
	}
}

func makeLambda(
	ctx *pulumi.Context,
	name string,
	statementEntries []policyStatementEntry,
	env lambda.FunctionEnvironmentArgs,
	opts lambdaOptions) (*lambda.Function, error) {

	roleName := fmt.Sprintf("transcription-%s-lambda-role", name)
	policyName := fmt.Sprintf("transcription-%s-lambda-policy", name)
	functionName := fmt.Sprintf("transcription-%s", name)

	assumeRolePolicy, err := newAssumeRolePolicyDocumentString("lambda.amazonaws.com")
	if err != nil {
		return &lambda.Function{}, err
	}

	role, err := iam.NewRole(ctx, roleName, &iam.RoleArgs{
		AssumeRolePolicy: pulumi.String(assumeRolePolicy),
	})
	if err != nil {
		return &lambda.Function{}, err
	}

	statements := append(statementEntries, lambdaBaselineStatements()...)

	policy, strArgs, err := newPolicyDocumentString(statements...)
	if err != nil {
		return &lambda.Function{}, err
	}

	rolePolicy, err := iam.NewRolePolicy(ctx, policyName, &iam.RolePolicyArgs{
		Role:   role.Name,
		Policy: pulumi.Sprintf(policy, strArgs...),
	})
	if err != nil {
		return &lambda.Function{}, err
	}

	args := &lambda.FunctionArgs{
		Handler:     pulumi.String("bootstrap"),
		Role:        role.Arn,
		Runtime:     pulumi.String("provided.al2"),
		Code:        pulumi.NewFileArchive(fmt.Sprintf("./build/%s-handler.zip", name)),
		Environment: env,
		TracingConfig: lambda.FunctionTracingConfigArgs{
			Mode: pulumi.String("Active"),
		},
	}
	if opts.memorySize > 0 {
		args.MemorySize = pulumi.Int(opts.memorySize)
	}
	if opts.timeout > 0 {
		args.Timeout = pulumi.Int(opts.timeout)
	}
	if opts.deadLetterTargetArn != nil {
		args.DeadLetterConfig = lambda.FunctionDeadLetterConfigArgs{
			TargetArn: opts.deadLetterTargetArn,
		}
	}

	function, err := lambda.NewFunction(
		ctx,
		functionName,
		args,
		pulumi.DependsOn([]pulumi.Resource{rolePolicy}),
	)

	return function, err
}
