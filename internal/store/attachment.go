package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/taskboard/apiserver/types"
)

const attachmentColumns = `id, task_id, filename, content_type, size_bytes, checksum_sha256, storage_key, created_at, updated_at`

// AttachmentRepository handles persistence for attachment metadata.
type AttachmentRepository struct {
	db *sql.DB
}

func NewAttachmentRepository(db *sql.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

func (r *AttachmentRepository) Create(ctx context.Context, att types.Attachment) (types.Attachment, error) {
	now := time.Now().UTC()
	if att.ID == uuid.Nil {
		att.ID = uuid.New()
	}
	att.CreatedAt = now
	att.UpdatedAt = now

	const query = `
		INSERT INTO attachment (id, task_id, filename, content_type, size_bytes, checksum_sha256, storage_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		att.ID,
		nullUUID(att.TaskID),
		att.Filename,
		att.ContentType,
		att.SizeBytes,
		att.ChecksumSHA256,
		att.StorageKey,
		att.CreatedAt,
		att.UpdatedAt,
	); err != nil {
		return types.Attachment{}, err
	}
	return att, nil
}

func (r *AttachmentRepository) Get(ctx context.Context, id uuid.UUID) (types.Attachment, error) {
	query := `SELECT ` + attachmentColumns + ` FROM attachment WHERE id = $1`
	return scanAttachment(r.db.QueryRowContext(ctx, query, id))
}

func (r *AttachmentRepository) ListByTask(ctx context.Context, taskID uuid.UUID) ([]types.Attachment, error) {
	query := `SELECT ` + attachmentColumns + ` FROM attachment WHERE task_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attachments := make([]types.Attachment, 0)
	for rows.Next() {
		att, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, att)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return attachments, nil
}

// SetTask links the attachment to taskID, or unlinks it when taskID is nil.
func (r *AttachmentRepository) SetTask(ctx context.Context, id uuid.UUID, taskID *uuid.UUID) (types.Attachment, error) {
	query := `
		UPDATE attachment
		SET task_id = $1, updated_at = $2
		WHERE id = $3
		RETURNING ` + attachmentColumns
	return scanAttachment(r.db.QueryRowContext(ctx, query, nullUUID(taskID), time.Now().UTC(), id))
}

func (r *AttachmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM attachment WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

func scanAttachment(row rowScanner) (types.Attachment, error) {
	var (
		att    types.Attachment
		taskID uuid.NullUUID
	)
	err := row.Scan(
		&att.ID,
		&taskID,
		&att.Filename,
		&att.ContentType,
		&att.SizeBytes,
		&att.ChecksumSHA256,
		&att.StorageKey,
		&att.CreatedAt,
		&att.UpdatedAt,
	)
	if err != nil {
		return types.Attachment{}, notFound(err)
	}
	if taskID.Valid {
		id := taskID.UUID
		att.TaskID = &id
	}
	return att, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
