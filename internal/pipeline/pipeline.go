// Package pipeline holds the contract shared by the deployment program and the
// upload trigger: key layout, metadata records and workflow input.
package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	// KeyPrefix is the decoded prefix every pipeline upload must start with.
	KeyPrefix = "uploads/tenant="

	// NotificationFilterPrefix is KeyPrefix as S3 matches it in notification
	// filters, with the "=" URL-encoded.
	NotificationFilterPrefix = "uploads/tenant%3D"

	tenantMarker = "tenant="

	// executionNameHashLen keeps execution names under the 80 character limit.
	executionNameHashLen = 56
)

// ErrMalformedKey is returned for keys under KeyPrefix that do not name a tenant.
var ErrMalformedKey = errors.New("malformed upload key")

var createdEvents = map[string]bool{
	"ObjectCreated:Put":                     true,
	"ObjectCreated:Post":                    true,
	"ObjectCreated:Copy":                    true,
	"ObjectCreated:CompleteMultipartUpload": true,
}

// IsCreatedEvent reports whether an S3 event name describes a new object.
// S3 sends names without the "s3:" prefix in notification records.
func IsCreatedEvent(eventName string) bool {
	return createdEvents[strings.TrimPrefix(eventName, "s3:")]
}

// DecodeKey decodes an object key as it appears in an S3 notification.
func DecodeKey(rawKey string) (string, error) {
	key, err := url.QueryUnescape(rawKey)
	if err != nil {
		return "", errors.Wrapf(err, "decode object key %q", rawKey)
	}
	return key, nil
}

// MatchesPrefix reports whether a decoded key belongs to the pipeline.
func MatchesPrefix(key string) bool {
	return strings.HasPrefix(key, KeyPrefix)
}

// Upload describes a newly created object in the upload bucket.
type Upload struct {
	Bucket    string
	Key       string
	Size      int64
	ETag      string
	VersionID string
	Sequencer string
	EventTime time.Time
}

// MediaFileURI addresses the object the way Transcribe expects it.
func (u Upload) MediaFileURI() string {
	return fmt.Sprintf("s3://%s/%s", u.Bucket, u.Key)
}

// Tenant returns the value of the first "tenant=" path segment.
func (u Upload) Tenant() (string, error) {
	for _, part := range strings.Split(u.Key, "/") {
		if !strings.HasPrefix(part, tenantMarker) {
			continue
		}
		tenant := strings.TrimPrefix(part, tenantMarker)
		if tenant == "" {
			break
		}
		return tenant, nil
	}
	return "", errors.Wrapf(ErrMalformedKey, "no tenant in %q", u.Key)
}

// ExecutionName derives the workflow execution name for this object version.
// Redeliveries of the same notification map to the same name, which lets Step
// Functions reject the duplicate start.
func (u Upload) ExecutionName() string {
	revision := u.VersionID
	if revision == "" {
		revision = u.Sequencer
	}
	sum := sha256.Sum256([]byte(u.Bucket + "/" + u.Key + "#" + revision))
	return "upload-" + hex.EncodeToString(sum[:])[:executionNameHashLen]
}

// ExecutionInput is the document every workflow execution starts with.
type ExecutionInput struct {
	MediaFileURI string `json:"media_file_uri"`
	Tenant       string `json:"tenant,omitempty"`
	UniqueID     string `json:"unique_id,omitempty"`
}

// MetadataRecord is the bookkeeping row written for each upload.
type MetadataRecord struct {
	PK            string `dynamodbav:"pk"`
	SK            string `dynamodbav:"sk"`
	Tenant        string `dynamodbav:"tenant"`
	Bucket        string `dynamodbav:"bucket"`
	ObjectKey     string `dynamodbav:"object_key"`
	Size          int64  `dynamodbav:"size"`
	ETag          string `dynamodbav:"etag,omitempty"`
	VersionID     string `dynamodbav:"version_id,omitempty"`
	Sequencer     string `dynamodbav:"sequencer,omitempty"`
	MediaFileURI  string `dynamodbav:"media_file_uri"`
	ExecutionName string `dynamodbav:"execution_name"`
	UniqueID      string `dynamodbav:"unique_id"`
	EventTime     string `dynamodbav:"event_time,omitempty"`
	RecordedAt    string `dynamodbav:"recorded_at"`
}

// NewMetadataRecord builds the record for an upload. The key pair is derived
// from the tenant and the execution name so a redelivery targets the same row.
func NewMetadataRecord(u Upload, uniqueID string, now time.Time) (MetadataRecord, error) {
	tenant, err := u.Tenant()
	if err != nil {
		return MetadataRecord{}, err
	}

	name := u.ExecutionName()
	rec := MetadataRecord{
		PK:            "tenant#" + tenant,
		SK:            "upload#" + name,
		Tenant:        tenant,
		Bucket:        u.Bucket,
		ObjectKey:     u.Key,
		Size:          u.Size,
		ETag:          u.ETag,
		VersionID:     u.VersionID,
		Sequencer:     u.Sequencer,
		MediaFileURI:  u.MediaFileURI(),
		ExecutionName: name,
		UniqueID:      uniqueID,
		RecordedAt:    now.UTC().Format(time.RFC3339Nano),
	}
	if !u.EventTime.IsZero() {
		rec.EventTime = u.EventTime.UTC().Format(time.RFC3339Nano)
	}
	return rec, nil
}

// ExecutionInput returns the workflow input matching this record.
func (r MetadataRecord) ExecutionInput() ExecutionInput {
	return ExecutionInput{
		MediaFileURI: r.MediaFileURI,
		Tenant:       r.Tenant,
		UniqueID:     r.UniqueID,
	}
}
