package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/sfn"
	"github.com/aws/aws-sdk-go/service/sfn/sfniface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transcription-pipeline/internal/pipeline"
)

const (
	testTable        = "uploads-table"
	testStateMachine = "arn:aws:states:eu-west-1:123456789012:stateMachine:transcription"
	testBucket       = "upload-bucket"
)

// mockDynamoDB behaves like a table with a conditional put on pk.
type mockDynamoDB struct {
	dynamodbiface.DynamoDBAPI

	err   error
	items map[string]*dynamodb.PutItemInput
	calls int
}

func (mock *mockDynamoDB) PutItemWithContext(ctx aws.Context, in *dynamodb.PutItemInput, opts ...request.Option) (*dynamodb.PutItemOutput, error) {
	mock.calls++
	if mock.err != nil {
		return nil, mock.err
	}
	id := aws.StringValue(in.Item["pk"].S) + "|" + aws.StringValue(in.Item["sk"].S)
	if _, ok := mock.items[id]; ok {
		return nil, awserr.New(dynamodb.ErrCodeConditionalCheckFailedException, "The conditional request failed", nil)
	}
	mock.items[id] = in
	return &dynamodb.PutItemOutput{}, nil
}

// mockSFN rejects reused execution names like Step Functions does.
type mockSFN struct {
	sfniface.SFNAPI

	err     error
	started []*sfn.StartExecutionInput
	names   map[string]bool
}

func (mock *mockSFN) StartExecutionWithContext(ctx aws.Context, in *sfn.StartExecutionInput, opts ...request.Option) (*sfn.StartExecutionOutput, error) {
	if mock.err != nil {
		return nil, mock.err
	}
	name := aws.StringValue(in.Name)
	if mock.names[name] {
		return nil, awserr.New(sfn.ErrCodeExecutionAlreadyExists, "Execution Already Exists", nil)
	}
	mock.names[name] = true
	mock.started = append(mock.started, in)
	return &sfn.StartExecutionOutput{
		ExecutionArn: aws.String(fmt.Sprintf("%s:%s", testStateMachine, name)),
		StartDate:    aws.Time(time.Date(2020, 7, 1, 12, 0, 1, 0, time.UTC)),
	}, nil
}

func newTestDeps() (*deps, *mockDynamoDB, *mockSFN) {
	db := &mockDynamoDB{items: map[string]*dynamodb.PutItemInput{}}
	sf := &mockSFN{names: map[string]bool{}}
	n := 0
	return &deps{
		dynamodb:        db,
		sfn:             sf,
		tableName:       testTable,
		stateMachineArn: testStateMachine,
		newUniqueID: func() string {
			n++
			return fmt.Sprintf("t-%d", n)
		},
		now: func() time.Time { return time.Date(2020, 7, 1, 12, 0, 0, 0, time.UTC) },
	}, db, sf
}

func s3Event(eventName, key, sequencer string) events.S3Event {
	return events.S3Event{
		Records: []events.S3EventRecord{
			{
				EventName: eventName,
				EventTime: time.Date(2020, 7, 1, 11, 59, 59, 0, time.UTC),
				S3: events.S3Entity{
					Bucket: events.S3Bucket{Name: testBucket},
					Object: events.S3Object{
						Key:       key,
						Size:      2048,
						ETag:      "d41d8cd98f00b204e9800998ecf8427e",
						Sequencer: sequencer,
					},
				},
			},
		},
	}
}

func TestLambdaHandler(t *testing.T) {
	t.Run("Successful Request", func(t *testing.T) {
		deps, db, sf := newTestDeps()

		out, err := deps.handler(context.Background(), s3Event("ObjectCreated:Put", "uploads/tenant%3Dacme/call.wav", "0055AED6DCD90281E5"))
		require.NoError(t, err)

		require.Len(t, sf.started, 1)
		started := sf.started[0]
		assert.Equal(t, testStateMachine, aws.StringValue(started.StateMachineArn))

		var input pipeline.ExecutionInput
		require.NoError(t, json.Unmarshal([]byte(aws.StringValue(started.Input)), &input))
		assert.Equal(t, "s3://upload-bucket/uploads/tenant=acme/call.wav", input.MediaFileURI)
		assert.Equal(t, "acme", input.Tenant)
		assert.Equal(t, "t-1", input.UniqueID)

		require.Len(t, db.items, 1)
		for _, put := range db.items {
			assert.Equal(t, testTable, aws.StringValue(put.TableName))
			assert.Equal(t, "attribute_not_exists(pk)", aws.StringValue(put.ConditionExpression))
			assert.Equal(t, "tenant#acme", aws.StringValue(put.Item["pk"].S))
			assert.Equal(t, "upload#"+aws.StringValue(started.Name), aws.StringValue(put.Item["sk"].S))
			assert.Equal(t, "2048", aws.StringValue(put.Item["size"].N))
		}

		require.Len(t, out, 1)
		assert.Equal(t, "s3://upload-bucket/uploads/tenant=acme/call.wav", out[0].MediaFileURI)
		assert.Equal(t, "2020-07-01T12:00:01Z", out[0].StartDate)
		assert.Contains(t, out[0].ExecutionArn, aws.StringValue(started.Name))
	})

	t.Run("Key Outside Prefix", func(t *testing.T) {
		deps, db, sf := newTestDeps()

		out, err := deps.handler(context.Background(), s3Event("ObjectCreated:Put", "other/call.wav", "0055AED6DCD90281E5"))
		require.NoError(t, err)

		assert.Empty(t, out)
		assert.Equal(t, 0, db.calls)
		assert.Empty(t, sf.started)
	})

	t.Run("Non Create Event", func(t *testing.T) {
		deps, db, sf := newTestDeps()

		_, err := deps.handler(context.Background(), s3Event("ObjectRemoved:Delete", "uploads/tenant%3Dacme/call.wav", "0055AED6DCD90281E5"))
		require.NoError(t, err)

		assert.Equal(t, 0, db.calls)
		assert.Empty(t, sf.started)
	})

	t.Run("Metadata Write Failure", func(t *testing.T) {
		deps, db, sf := newTestDeps()
		db.err = awserr.New(dynamodb.ErrCodeProvisionedThroughputExceededException, "slow down", nil)

		_, err := deps.handler(context.Background(), s3Event("ObjectCreated:Put", "uploads/tenant%3Dacme/call.wav", "0055AED6DCD90281E5"))
		assert.Error(t, err)
		assert.Empty(t, sf.started, "no execution may start without a metadata record")
	})

	t.Run("Start Failure Keeps Metadata", func(t *testing.T) {
		deps, db, sf := newTestDeps()
		sf.err = errors.New("throttled")

		_, err := deps.handler(context.Background(), s3Event("ObjectCreated:Put", "uploads/tenant%3Dacme/call.wav", "0055AED6DCD90281E5"))
		assert.Error(t, err)
		assert.Len(t, db.items, 1)
	})

	t.Run("Malformed Tenant", func(t *testing.T) {
		deps, db, sf := newTestDeps()

		_, err := deps.handler(context.Background(), s3Event("ObjectCreated:Put", "uploads/tenant%3D/call.wav", "0055AED6DCD90281E5"))
		assert.True(t, errors.Is(err, pipeline.ErrMalformedKey))
		assert.Equal(t, 0, db.calls)
		assert.Empty(t, sf.started)
	})

	t.Run("Duplicate Delivery", func(t *testing.T) {
		deps, db, sf := newTestDeps()
		event := s3Event("ObjectCreated:Put", "uploads/tenant%3Dacme/call.wav", "0055AED6DCD90281E5")

		first, err := deps.handler(context.Background(), event)
		require.NoError(t, err)
		second, err := deps.handler(context.Background(), event)
		require.NoError(t, err)

		assert.Len(t, first, 1)
		assert.Empty(t, second)
		assert.Len(t, sf.started, 1)
		assert.Len(t, db.items, 1)
	})

	t.Run("Redelivery After Failed Start", func(t *testing.T) {
		deps, db, sf := newTestDeps()
		event := s3Event("ObjectCreated:CompleteMultipartUpload", "uploads/tenant%3Dacme/call.wav", "0055AED6DCD90281E5")

		sf.err = errors.New("throttled")
		_, err := deps.handler(context.Background(), event)
		require.Error(t, err)

		sf.err = nil
		out, err := deps.handler(context.Background(), event)
		require.NoError(t, err)

		assert.Len(t, out, 1)
		assert.Len(t, sf.started, 1)
		assert.Len(t, db.items, 1)
	})

	t.Run("Overwritten Object Starts Again", func(t *testing.T) {
		deps, _, sf := newTestDeps()

		_, err := deps.handler(context.Background(), s3Event("ObjectCreated:Put", "uploads/tenant%3Dacme/call.wav", "0055AED6DCD90281E5"))
		require.NoError(t, err)
		_, err = deps.handler(context.Background(), s3Event("ObjectCreated:Put", "uploads/tenant%3Dacme/call.wav", "0055AED6DCD90281F0"))
		require.NoError(t, err)

		assert.Len(t, sf.started, 2)
	})
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig([]string{
		"STATE_MACHINE_ARN=" + testStateMachine,
		"DDB_TABLE=" + testTable,
		"AWS_REGION=eu-west-1",
	})
	require.NoError(t, err)
	assert.Equal(t, config{StateMachineArn: testStateMachine, TableName: testTable}, cfg)

	_, err = loadConfig([]string{"DDB_TABLE=" + testTable})
	assert.Error(t, err)

	_, err = loadConfig([]string{"STATE_MACHINE_ARN=" + testStateMachine})
	assert.Error(t, err)
}

func TestNewUniqueID(t *testing.T) {
	a, b := newUniqueID(), newUniqueID()
	assert.Regexp(t, `^t-[0-9a-f]{32}$`, a)
	assert.NotEqual(t, a, b)
}
