package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/sfn"
	"github.com/aws/aws-sdk-go/service/sfn/sfniface"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/common/log"

	"transcription-pipeline/internal/pipeline"
)

type deps struct {
	dynamodb        dynamodbiface.DynamoDBAPI
	sfn             sfniface.SFNAPI
	tableName       string
	stateMachineArn string

	newUniqueID func() string
	now         func() time.Time
}

type startedExecution struct {
	ExecutionArn string `json:"execution_arn"`
	StartDate    string `json:"start_date"`
	MediaFileURI string `json:"media_file_uri"`
}

func (deps *deps) handler(ctx context.Context, s3Event events.S3Event) ([]startedExecution, error) {
	started := []startedExecution{}

	for _, record := range s3Event.Records {
		logger := log.With("event", record.EventName).With("key", record.S3.Object.Key)

		if !pipeline.IsCreatedEvent(record.EventName) {
			logger.Infof("Skipping event")
			continue
		}

		key, err := pipeline.DecodeKey(record.S3.Object.Key)
		if err != nil {
			return started, err
		}
		if !pipeline.MatchesPrefix(key) {
			logger.Infof("Skipping key outside %s", pipeline.KeyPrefix)
			continue
		}

		upload := pipeline.Upload{
			Bucket:    record.S3.Bucket.Name,
			Key:       key,
			Size:      record.S3.Object.Size,
			ETag:      record.S3.Object.ETag,
			VersionID: record.S3.Object.VersionID,
			Sequencer: record.S3.Object.Sequencer,
			EventTime: record.EventTime,
		}

		logger.Infof("New file uploaded time=%s", record.EventTime.Format(time.RFC3339))

		execution, err := deps.handleUpload(ctx, upload)
		if err != nil {
			return started, err
		}
		if execution != nil {
			started = append(started, *execution)
		}
	}

	return started, nil
}

// handleUpload records the upload and starts its workflow execution. A nil
// execution with a nil error means the upload was already started by an
// earlier delivery of the same notification.
func (deps *deps) handleUpload(ctx context.Context, upload pipeline.Upload) (*startedExecution, error) {
	rec, err := pipeline.NewMetadataRecord(upload, deps.newUniqueID(), deps.now())
	if err != nil {
		return nil, err
	}
	logger := log.With("tenant", rec.Tenant).With("execution", rec.ExecutionName)

	err = deps.putRecord(ctx, rec)
	if isAWSErrorCode(err, dynamodb.ErrCodeConditionalCheckFailedException) {
		logger.Infof("Metadata already recorded for %s", rec.MediaFileURI)
	} else if err != nil {
		return nil, errors.Wrapf(err, "record metadata for %s", rec.MediaFileURI)
	}

	input, err := json.Marshal(rec.ExecutionInput())
	if err != nil {
		return nil, err
	}

	logger.Infof("Trigger Step Function media_file_uri=%s", rec.MediaFileURI)

	out, err := deps.sfn.StartExecutionWithContext(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(deps.stateMachineArn),
		Name:            aws.String(rec.ExecutionName),
		Input:           aws.String(string(input)),
	})
	if isAWSErrorCode(err, sfn.ErrCodeExecutionAlreadyExists) {
		logger.Warnf("Execution already started for %s", rec.MediaFileURI)
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "start execution for %s", rec.MediaFileURI)
	}

	return &startedExecution{
		ExecutionArn: aws.StringValue(out.ExecutionArn),
		StartDate:    aws.TimeValue(out.StartDate).UTC().Format(time.RFC3339),
		MediaFileURI: rec.MediaFileURI,
	}, nil
}

// putRecord writes rec unless a record with the same key pair exists.
func (deps *deps) putRecord(ctx context.Context, rec pipeline.MetadataRecord) error {
	item, err := dynamodbattribute.MarshalMap(rec)
	if err != nil {
		return err
	}

	_, err = deps.dynamodb.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		Item:                item,
		TableName:           aws.String(deps.tableName),
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	return err
}

func isAWSErrorCode(err error, code string) bool {
	aerr, ok := err.(awserr.Error)
	return ok && aerr.Code() == code
}

func newUniqueID() string {
	return "t-" + strings.Replace(uuid.New().String(), "-", "", -1)
}

func main() {
	cfg, err := loadConfig(os.Environ())
	if err != nil {
		log.Fatal(err)
	}

	sess := session.Must(session.NewSession())

	dynamodb := dynamodb.New(sess)
	sfnClient := sfn.New(sess)

	xray.AWS(dynamodb.Client)
	xray.AWS(sfnClient.Client)

	deps := deps{
		dynamodb:        dynamodb,
		sfn:             sfnClient,
		tableName:       cfg.TableName,
		stateMachineArn: cfg.StateMachineArn,
		newUniqueID:     newUniqueID,
		now:             time.Now,
	}

	lambda.Start(deps.handler)
}
