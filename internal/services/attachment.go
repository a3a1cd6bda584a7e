package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/taskboard/apiserver/internal/logging"
	"github.com/taskboard/apiserver/internal/mq"
	"github.com/taskboard/apiserver/internal/storage"
	"github.com/taskboard/apiserver/types"
)

const (
	defaultFilename = "file"

	// Both columns are VARCHAR(255); Postgres counts characters.
	maxFilenameLength    = 255
	maxContentTypeLength = 255
)

// AttachmentRepository defines persistence operations for attachment metadata.
type AttachmentRepository interface {
	Create(ctx context.Context, att types.Attachment) (types.Attachment, error)
	Get(ctx context.Context, id uuid.UUID) (types.Attachment, error)
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]types.Attachment, error)
	SetTask(ctx context.Context, id uuid.UUID, taskID *uuid.UUID) (types.Attachment, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// TaskLookup resolves live tasks.
type TaskLookup interface {
	Get(ctx context.Context, id uuid.UUID) (types.Task, error)
}

// OrphanPublisher hands blobs that could not be removed inline to the reaper.
type OrphanPublisher interface {
	PublishOrphan(ctx context.Context, blob mq.OrphanedBlob) (string, error)
}

// Upload describes an incoming file.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// AttachmentService coordinates attachment metadata with the blob store. The
// two are not written atomically; blobs left without a row are reported to
// the orphan publisher.
type AttachmentService struct {
	repo    AttachmentRepository
	tasks   TaskLookup
	storage *storage.Storage
	orphans OrphanPublisher
	log     logging.Logger
}

func NewAttachmentService(repo AttachmentRepository, tasks TaskLookup, store *storage.Storage, orphans OrphanPublisher, log logging.Logger) *AttachmentService {
	return &AttachmentService{
		repo:    repo,
		tasks:   tasks,
		storage: store,
		orphans: orphans,
		log:     log,
	}
}

func (s *AttachmentService) UploadUnlinked(ctx context.Context, up Upload) (types.Attachment, error) {
	return s.upload(ctx, nil, up)
}

// UploadAndAttach stores the file and links it to taskID, which must exist.
func (s *AttachmentService) UploadAndAttach(ctx context.Context, taskID uuid.UUID, up Upload) (types.Attachment, error) {
	if _, err := s.tasks.Get(ctx, taskID); err != nil {
		return types.Attachment{}, err
	}
	return s.upload(ctx, &taskID, up)
}

func (s *AttachmentService) ListByTask(ctx context.Context, taskID uuid.UUID) ([]types.Attachment, error) {
	if _, err := s.tasks.Get(ctx, taskID); err != nil {
		return nil, err
	}
	return s.repo.ListByTask(ctx, taskID)
}

func (s *AttachmentService) Get(ctx context.Context, id uuid.UUID) (types.Attachment, error) {
	return s.repo.Get(ctx, id)
}

func (s *AttachmentService) Attach(ctx context.Context, id, taskID uuid.UUID) (types.Attachment, error) {
	if _, err := s.tasks.Get(ctx, taskID); err != nil {
		return types.Attachment{}, err
	}
	return s.repo.SetTask(ctx, id, &taskID)
}

func (s *AttachmentService) Detach(ctx context.Context, id uuid.UUID) (types.Attachment, error) {
	return s.repo.SetTask(ctx, id, nil)
}

// LoadContent returns the attachment and its payload after checking the
// bytes against the recorded size and checksum.
func (s *AttachmentService) LoadContent(ctx context.Context, id uuid.UUID) (types.Attachment, []byte, error) {
	att, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Attachment{}, nil, err
	}
	data, err := s.storage.LoadVerified(ctx, storage.StoredObject{
		Key:            att.StorageKey,
		ContentType:    att.ContentType,
		Size:           att.SizeBytes,
		ChecksumSHA256: att.ChecksumSHA256,
	})
	if err != nil {
		if errors.Is(err, storage.ErrIntegrity) {
			s.log.Error(ctx, "attachment payload corrupted", "attachment_id", id, "key", att.StorageKey, "error", err)
		}
		return types.Attachment{}, nil, err
	}
	return att, data, nil
}

// Delete removes the metadata row and then the blob. A blob failure does not
// undo the metadata delete; it is reported in the result instead.
func (s *AttachmentService) Delete(ctx context.Context, id uuid.UUID) (types.DeleteResult, error) {
	att, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.DeleteResult{}, err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return types.DeleteResult{}, err
	}

	result := types.DeleteResult{MetadataDeleted: true}
	if err := s.storage.Delete(ctx, att.StorageKey); err != nil {
		s.log.Error(ctx, "attachment blob delete failed", "attachment_id", id, "key", att.StorageKey, "error", err)
		result.BlobError = err.Error()
		s.reportOrphan(ctx, att.StorageKey, mq.ReasonDeleteFailed)
		return result, nil
	}
	result.BlobDeleted = true
	return result, nil
}

func (s *AttachmentService) upload(ctx context.Context, taskID *uuid.UUID, up Upload) (types.Attachment, error) {
	if up.Body == nil {
		return types.Attachment{}, fmt.Errorf("%w: file is required", ErrValidation)
	}
	filename := cleanFilename(up.Filename)
	if utf8.RuneCountInString(up.ContentType) > maxContentTypeLength {
		return types.Attachment{}, fmt.Errorf("%w: content type longer than %d characters", ErrValidation, maxContentTypeLength)
	}

	obj, err := s.storage.Store(ctx, up.Body, filename, up.ContentType, up.Size)
	if err != nil {
		if errors.Is(err, storage.ErrIntegrity) {
			return types.Attachment{}, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return types.Attachment{}, fmt.Errorf("store payload: %w", err)
	}

	att, err := s.repo.Create(ctx, types.Attachment{
		TaskID:         taskID,
		Filename:       filename,
		ContentType:    obj.ContentType,
		SizeBytes:      obj.Size,
		ChecksumSHA256: obj.ChecksumSHA256,
		StorageKey:     obj.Key,
	})
	if err != nil {
		if delErr := s.storage.Delete(ctx, obj.Key); delErr != nil {
			s.log.Error(ctx, "cleanup of unreferenced blob failed", "key", obj.Key, "error", delErr)
			s.reportOrphan(ctx, obj.Key, mq.ReasonMetadataInsertFailed)
		}
		return types.Attachment{}, fmt.Errorf("save attachment: %w", err)
	}

	s.log.Info(ctx, "attachment stored", "attachment_id", att.ID, "key", obj.Key, "size", obj.Size)
	return att, nil
}

func (s *AttachmentService) reportOrphan(ctx context.Context, key, reason string) {
	s.log.Warn(ctx, "orphaned blob", "key", key, "reason", reason)
	if s.orphans == nil {
		return
	}
	if _, err := s.orphans.PublishOrphan(ctx, mq.OrphanedBlob{Key: key, Reason: reason}); err != nil {
		s.log.Error(ctx, "publish orphaned blob failed", "key", key, "reason", reason, "error", err)
	}
}

func cleanFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if name == "" {
		return defaultFilename
	}
	base := path.Base(name)
	if base == "." || base == "/" || base == ".." {
		return defaultFilename
	}
	return truncateFilename(base, maxFilenameLength)
}

// truncateFilename shortens name to at most limit characters, keeping the
// extension when it fits.
func truncateFilename(name string, limit int) string {
	runes := []rune(name)
	if len(runes) <= limit {
		return name
	}
	ext := []rune(path.Ext(name))
	if len(ext) >= limit {
		return string(runes[:limit])
	}
	stem := runes[:len(runes)-len(ext)]
	return string(stem[:limit-len(ext)]) + string(ext)
}
