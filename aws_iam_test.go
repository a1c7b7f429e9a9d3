package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// renderPolicy fills the policy format string with plain strings in place of
// Pulumi outputs.
func renderPolicy(t *testing.T, statements []policyStatementEntry) policyDocument {
	policy, args, err := newPolicyDocumentString(statements...)
	require.NoError(t, err)

	var doc policyDocument
	require.NoError(t, json.Unmarshal([]byte(fmt.Sprintf(policy, args...)), &doc))
	return doc
}

func actionsOn(doc policyDocument, resource string) []string {
	var actions []string
	for _, s := range doc.Statement {
		for _, r := range s.Resource {
			if r == resource {
				actions = append(actions, s.Action...)
			}
		}
	}
	return actions
}

func allActions(doc policyDocument) []string {
	var actions []string
	for _, s := range doc.Statement {
		actions = append(actions, s.Action...)
	}
	return actions
}

func TestWorkflowRolePolicy(t *testing.T) {
	statements, err := statementsFor(workflowRole, map[string]resourceBinding{
		uploadObjects:  {pattern: "arn:aws:s3:::%s/*", args: []interface{}{"upload-bucket"}},
		resultObjects:  {pattern: "arn:aws:s3:::%s/*", args: []interface{}{"result-bucket"}},
		transcribeJobs: {pattern: "*"},
	})
	require.NoError(t, err)

	doc := renderPolicy(t, statements)
	assert.Equal(t, "2012-10-17", doc.Version)
	assert.Equal(t, []string{"s3:GetObject"}, actionsOn(doc, "arn:aws:s3:::upload-bucket/*"))
	assert.Equal(t, []string{"s3:PutObject"}, actionsOn(doc, "arn:aws:s3:::result-bucket/*"))
	assert.Equal(t, []string{"transcribe:StartTranscriptionJob"}, actionsOn(doc, "*"))
	assert.NotContains(t, allActions(doc), "states:StartExecution")
	assert.NotContains(t, allActions(doc), "dynamodb:PutItem")
}

func TestTriggerRolePolicy(t *testing.T) {
	bindings := map[string]resourceBinding{
		workflowExecutions: {pattern: "%s", args: []interface{}{"arn:aws:states:eu-west-1:123456789012:stateMachine:sm"}},
		metadataTable:      {pattern: "%s", args: []interface{}{"arn:aws:dynamodb:eu-west-1:123456789012:table/uploads"}},
	}

	statements, err := statementsFor(triggerRole, bindings)
	require.NoError(t, err)

	doc := renderPolicy(t, statements)
	assert.Equal(t, []string{"states:StartExecution"}, actionsOn(doc, "arn:aws:states:eu-west-1:123456789012:stateMachine:sm"))
	assert.Equal(t, []string{"dynamodb:PutItem"}, actionsOn(doc, "arn:aws:dynamodb:eu-west-1:123456789012:table/uploads"))
	for _, action := range allActions(doc) {
		assert.False(t, strings.HasPrefix(action, "s3:"), "trigger must not touch buckets: %s", action)
		assert.NotEqual(t, "dynamodb:GetItem", action)
		assert.NotEqual(t, "dynamodb:Scan", action)
	}
	assert.NotContains(t, allActions(doc), "sqs:SendMessage")

	bindings[deadLetterQueue] = resourceBinding{pattern: "%s", args: []interface{}{"arn:aws:sqs:eu-west-1:123456789012:dlq"}}
	statements, err = statementsFor(triggerRole, bindings)
	require.NoError(t, err)
	assert.Equal(t, []string{"sqs:SendMessage"}, actionsOn(renderPolicy(t, statements), "arn:aws:sqs:eu-west-1:123456789012:dlq"))
}

func TestStatementsForMissingBinding(t *testing.T) {
	_, err := statementsFor(workflowRole, map[string]resourceBinding{
		uploadObjects: {pattern: "arn:aws:s3:::%s/*", args: []interface{}{"upload-bucket"}},
	})
	assert.Error(t, err)

	_, err = statementsFor("nobody", nil)
	assert.Error(t, err)
}

func TestAssumeRolePolicy(t *testing.T) {
	policy, err := newAssumeRolePolicyDocumentString("states.amazonaws.com")
	require.NoError(t, err)

	var doc assumeRolePolicyDocument
	require.NoError(t, json.Unmarshal([]byte(policy), &doc))
	require.Len(t, doc.Statement, 1)
	assert.Equal(t, "sts:AssumeRole", doc.Statement[0].Action)
	assert.Equal(t, "states.amazonaws.com", doc.Statement[0].Principal.Service)
}
