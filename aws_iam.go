package main

import (
	"encoding/json"
	"fmt"
)

type assumeRolePolicyDocument struct {
	Version   string
	Statement []assumeRolePolicyStatmentEntry
}

type assumeRolePolicyStatmentEntry struct {
	Sid       string
	Effect    string
	Principal assumeRolePolicyStatmentEntryPrincipal
	Action    string
}

type assumeRolePolicyStatmentEntryPrincipal struct {
	Service string
}

type policyDocument struct {
	Version   string
	Statement []policyStatementEntry
}

type policyStatementEntry struct {
	Effect   string
	Action   []string
	Resource []string

	resourceArgs []interface{}
}

// Roles that appear in the access table.
const (
	workflowRole = "workflow"
	triggerRole  = "trigger"
)

// Resources a role can be granted access to. Each is bound to a concrete ARN
// pattern at deployment time.
const (
	uploadObjects      = "upload-objects"
	resultObjects      = "result-objects"
	transcribeJobs     = "transcribe-jobs"
	workflowExecutions = "workflow-executions"
	metadataTable      = "metadata-table"
	deadLetterQueue    = "dead-letter-queue"
)

type grant struct {
	resource string
	actions  []string
	optional bool
}

// accessPolicy is the complete list of permissions the pipeline hands out.
// The workflow reads uploads, writes results and starts Transcribe jobs; the
// trigger starts executions and writes metadata rows.
var accessPolicy = map[string][]grant{
	workflowRole: {
		{resource: uploadObjects, actions: []string{"s3:GetObject"}},
		{resource: resultObjects, actions: []string{"s3:PutObject"}},
		{resource: transcribeJobs, actions: []string{"transcribe:StartTranscriptionJob"}},
	},
	triggerRole: {
		{resource: workflowExecutions, actions: []string{"states:StartExecution"}},
		{resource: metadataTable, actions: []string{"dynamodb:PutItem"}},
		{resource: deadLetterQueue, actions: []string{"sqs:SendMessage"}, optional: true},
	},
}

// resourceBinding is an ARN format string and the Pulumi outputs filling it.
type resourceBinding struct {
	pattern string
	args    []interface{}
}

// statementsFor renders the grants of role against the bound resources. Every
// required grant must have a binding; optional grants without one are left out.
func statementsFor(role string, bindings map[string]resourceBinding) ([]policyStatementEntry, error) {
	grants, ok := accessPolicy[role]
	if !ok {
		return nil, fmt.Errorf("unknown role %q", role)
	}

	var statements []policyStatementEntry
	for _, g := range grants {
		binding, ok := bindings[g.resource]
		if !ok {
			if g.optional {
				continue
			}
			return nil, fmt.Errorf("role %q: no binding for %q", role, g.resource)
		}
		statements = append(statements, policyStatementEntry{
			Effect:       "Allow",
			Action:       g.actions,
			Resource:     []string{binding.pattern},
			resourceArgs: binding.args,
		})
	}
	return statements, nil
}

func newAssumeRolePolicyDocumentString(service string) (string, error) {
	var doc assumeRolePolicyDocument
	doc.Version = "2012-10-17"
	doc.Statement = []assumeRolePolicyStatmentEntry{
		{
			Sid:    "",
			Effect: "Allow",
			Action: "sts:AssumeRole",
			Principal: assumeRolePolicyStatmentEntryPrincipal{
				Service: service,
			},
		},
	}

	byteSlice, err := json.Marshal(&doc)

	return string(byteSlice), err
}

func newPolicyDocumentString(statementEntries ...policyStatementEntry) (string, []interface{}, error) {
	var args []interface{}
	for _, statement := range statementEntries {
		args = append(args, statement.resourceArgs...)
	}
	var doc policyDocument
	doc.Version = "2012-10-17"
	doc.Statement = statementEntries

	byteSlice, err := json.Marshal(&doc)

	return string(byteSlice), args, err
}
