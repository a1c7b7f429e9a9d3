package main

import (
	"github.com/pulumi/pulumi-aws/sdk/v2/go/aws/dynamodb"
	"github.com/pulumi/pulumi-aws/sdk/v2/go/aws/s3"
	"github.com/pulumi/pulumi/sdk/v2/go/pulumi"
)

type storage struct {
	uploadBucket *s3.Bucket
	resultBucket *s3.Bucket
	table        *dynamodb.Table
}

func makePrivateBucket(ctx *pulumi.Context, name string) (*s3.Bucket, error) {
	bucket, err := s3.NewBucket(ctx, name, &s3.BucketArgs{})
	if err != nil {
		return nil, err
	}

	_, err = s3.NewBucketPublicAccessBlock(ctx, name+"-public-access-block", &s3.BucketPublicAccessBlockArgs{
		BlockPublicAcls:       pulumi.Bool(true),
		BlockPublicPolicy:     pulumi.Bool(true),
		IgnorePublicAcls:      pulumi.Bool(true),
		RestrictPublicBuckets: pulumi.Bool(true),
		Bucket:                bucket.ID(),
	})
	if err != nil {
		return nil, err
	}

	return bucket, nil
}

func configureStorage(ctx *pulumi.Context) (storage, error) {
	uploadBucket, err := makePrivateBucket(ctx, "transcription-uploads")
	if err != nil {
		return storage{}, err
	}

	resultBucket, err := makePrivateBucket(ctx, "transcription-results")
	if err != nil {
		return storage{}, err
	}

	table, err := dynamodb.NewTable(ctx, "transcription-file-uploads", &dynamodb.TableArgs{
		BillingMode: pulumi.String("PAY_PER_REQUEST"),
		HashKey:     pulumi.String("pk"),
		RangeKey:    pulumi.String("sk"),
		Attributes: dynamodb.TableAttributeArray{
			dynamodb.TableAttributeArgs{
				Name: pulumi.String("pk"),
				Type: pulumi.String("S"),
			},
			dynamodb.TableAttributeArgs{
				Name: pulumi.String("sk"),
				Type: pulumi.String("S"),
			},
		},
	})
	if err != nil {
		return storage{}, err
	}

	ctx.Export("Upload Bucket", uploadBucket.ID())
	ctx.Export("Result Bucket", resultBucket.ID())
	ctx.Export("Metadata Table", table.ID())

	return storage{
		uploadBucket: uploadBucket,
		resultBucket: resultBucket,
		table:        table,
	}, nil
}
