package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskboard/apiserver/internal/logging"
	"github.com/taskboard/apiserver/internal/mq"
	"github.com/taskboard/apiserver/internal/storage"
	"github.com/taskboard/apiserver/internal/store"
	"github.com/taskboard/apiserver/types"
)

type attachmentFixture struct {
	svc       *AttachmentService
	tasks     *fakeTasks
	rows      *fakeAttachments
	storage   *storage.Storage
	backend   *flakyBackend
	publisher *recordingPublisher
}

func newAttachmentFixture(t *testing.T) attachmentFixture {
	t.Helper()
	blobs, backend := newFlakyStorage(t)
	f := attachmentFixture{
		tasks:     newFakeTasks(),
		rows:      newFakeAttachments(),
		storage:   blobs,
		backend:   backend,
		publisher: &recordingPublisher{},
	}
	f.svc = NewAttachmentService(f.rows, f.tasks, blobs, f.publisher, logging.Discard())
	return f
}

func upload(name, body string) Upload {
	return Upload{Filename: name, ContentType: "text/plain", Size: int64(len(body)), Body: bytes.NewBufferString(body)}
}

func TestAttachmentService_UploadDeleteLifecycle(t *testing.T) {
	f := newAttachmentFixture(t)
	ctx := context.Background()

	att, err := f.svc.UploadUnlinked(ctx, upload("notes.txt", "hello"))
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", att.Filename)
	assert.Equal(t, int64(5), att.SizeBytes)
	assert.Equal(t, storage.Checksum([]byte("hello")), att.ChecksumSHA256)
	assert.Nil(t, att.TaskID)

	_, data, err := f.svc.LoadContent(ctx, att.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	result, err := f.svc.Delete(ctx, att.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DeleteResult{MetadataDeleted: true, BlobDeleted: true}, result)

	_, err = f.storage.Load(ctx, att.StorageKey)
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)

	_, err = f.svc.Delete(ctx, att.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAttachmentService_DeleteToleratesMissingBlob(t *testing.T) {
	f := newAttachmentFixture(t)
	ctx := context.Background()

	att, err := f.svc.UploadUnlinked(ctx, upload("a.bin", "xyz"))
	require.NoError(t, err)
	require.NoError(t, f.storage.Delete(ctx, att.StorageKey))

	result, err := f.svc.Delete(ctx, att.ID)
	require.NoError(t, err)
	assert.True(t, result.MetadataDeleted)
	assert.True(t, result.BlobDeleted)
}

func TestAttachmentService_DeleteReportsBlobFailure(t *testing.T) {
	f := newAttachmentFixture(t)
	ctx := context.Background()

	att, err := f.svc.UploadUnlinked(ctx, upload("a.txt", "abc"))
	require.NoError(t, err)
	f.backend.failDelete = errDiskGone

	result, err := f.svc.Delete(ctx, att.ID)
	require.NoError(t, err)
	assert.True(t, result.MetadataDeleted)
	assert.False(t, result.BlobDeleted)
	assert.Contains(t, result.BlobError, "disk gone")

	_, err = f.svc.Get(ctx, att.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, []mq.OrphanedBlob{{Key: att.StorageKey, Reason: mq.ReasonDeleteFailed}}, f.publisher.published())
}

func TestAttachmentService_FailedInsertRemovesBlob(t *testing.T) {
	f := newAttachmentFixture(t)
	ctx := context.Background()
	f.rows.failCreate = errors.New("insert failed")

	_, err := f.svc.UploadUnlinked(ctx, upload("a.txt", "abc"))
	require.Error(t, err)

	entries, err := filepathEntries(f.backend.Bucket())
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, f.publisher.published())
}

func TestAttachmentService_FailedInsertAndCleanupPublishesOrphan(t *testing.T) {
	f := newAttachmentFixture(t)
	ctx := context.Background()
	f.rows.failCreate = errors.New("insert failed")
	f.backend.failDelete = errDiskGone

	_, err := f.svc.UploadUnlinked(ctx, upload("a.txt", "abc"))
	require.Error(t, err)

	published := f.publisher.published()
	require.Len(t, published, 1)
	assert.Equal(t, mq.ReasonMetadataInsertFailed, published[0].Reason)
}

func TestAttachmentService_AttachDetachList(t *testing.T) {
	f := newAttachmentFixture(t)
	ctx := context.Background()
	task, err := f.tasks.Create(ctx, types.Task{Name: "t"})
	require.NoError(t, err)

	linked, err := f.svc.UploadAndAttach(ctx, task.ID, upload("one.txt", "1"))
	require.NoError(t, err)
	require.NotNil(t, linked.TaskID)
	assert.Equal(t, task.ID, *linked.TaskID)

	loose, err := f.svc.UploadUnlinked(ctx, upload("two.txt", "2"))
	require.NoError(t, err)
	_, err = f.svc.Attach(ctx, loose.ID, task.ID)
	require.NoError(t, err)

	list, err := f.svc.ListByTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	detached, err := f.svc.Detach(ctx, linked.ID)
	require.NoError(t, err)
	assert.Nil(t, detached.TaskID)

	list, err = f.svc.ListByTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAttachmentService_UnknownTask(t *testing.T) {
	f := newAttachmentFixture(t)
	ctx := context.Background()

	_, err := f.svc.UploadAndAttach(ctx, uuid.New(), upload("a.txt", "a"))
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.svc.ListByTask(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAttachmentService_LoadContentDetectsCorruption(t *testing.T) {
	f := newAttachmentFixture(t)
	ctx := context.Background()

	att, err := f.svc.UploadUnlinked(ctx, upload("a.txt", "abc"))
	require.NoError(t, err)

	row := f.rows.rows[att.ID]
	row.ChecksumSHA256 = storage.Checksum([]byte("abd"))
	f.rows.rows[att.ID] = row

	_, _, err = f.svc.LoadContent(ctx, att.ID)
	assert.ErrorIs(t, err, storage.ErrIntegrity)
}

func TestAttachmentService_SizeMismatchIsValidation(t *testing.T) {
	f := newAttachmentFixture(t)

	up := upload("a.txt", "abc")
	up.Size = 10
	_, err := f.svc.UploadUnlinked(context.Background(), up)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCleanFilename(t *testing.T) {
	tests := map[string]string{
		"":                  "file",
		"   ":               "file",
		"report.pdf":        "report.pdf",
		"../../etc/passwd":  "passwd",
		`C:\Users\me\a.txt`: "a.txt",
		"dir/":              "dir",
	}
	for in, want := range tests {
		assert.Equal(t, want, cleanFilename(in), "input %q", in)
	}
}

func TestAttachmentService_LongFilenameIsTruncated(t *testing.T) {
	f := newAttachmentFixture(t)

	name := strings.Repeat("é", 300) + ".pdf"
	att, err := f.svc.UploadUnlinked(context.Background(), upload(name, "pdf"))
	require.NoError(t, err)
	assert.Equal(t, maxFilenameLength, utf8.RuneCountInString(att.Filename))
	assert.True(t, strings.HasSuffix(att.Filename, ".pdf"))
}

func TestAttachmentService_LongContentTypeIsValidation(t *testing.T) {
	f := newAttachmentFixture(t)

	up := upload("a.txt", "abc")
	up.ContentType = "text/" + strings.Repeat("x", 300)
	_, err := f.svc.UploadUnlinked(context.Background(), up)
	assert.ErrorIs(t, err, ErrValidation)

	entries, err := filepathEntries(f.backend.Bucket())
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, f.rows.rows)
}

func TestTruncateFilename(t *testing.T) {
	assert.Equal(t, "short.txt", truncateFilename("short.txt", 10))
	assert.Equal(t, "abcd.txt", truncateFilename("abcdefgh.txt", 8))
	assert.Equal(t, "abcdefgh", truncateFilename("abcdefghij", 8))
	assert.Equal(t, ".aaaa", truncateFilename(".aaaaaaaa", 5))
}
