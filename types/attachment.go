package types

import (
	"time"

	"github.com/google/uuid"
)

// Attachment is the metadata row for an uploaded file. The payload itself
// lives in the blob store under StorageKey.
type Attachment struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	TaskID         *uuid.UUID `json:"taskId,omitempty" db:"task_id"`
	Filename       string     `json:"filename" db:"filename"`
	ContentType    string     `json:"contentType" db:"content_type"`
	SizeBytes      int64      `json:"sizeBytes" db:"size_bytes"`
	ChecksumSHA256 string     `json:"checksumSha256" db:"checksum_sha256"`
	StorageKey     string     `json:"-" db:"storage_key"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time  `json:"updatedAt" db:"updated_at"`
}

// DeleteResult reports both phases of an attachment delete. BlobError is set
// when the metadata row is gone but the payload could not be removed.
type DeleteResult struct {
	MetadataDeleted bool   `json:"metadataDeleted"`
	BlobDeleted     bool   `json:"blobDeleted"`
	BlobError       string `json:"blobError,omitempty"`
}
