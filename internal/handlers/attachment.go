package handlers

import (
	"bytes"
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/taskboard/apiserver/internal/logging"
	"github.com/taskboard/apiserver/internal/services"
)

const (
	formFieldFile      = "file"
	maxMultipartMemory = 32 << 20
	multipartOverhead  = 1 << 20
)

// AttachmentHandler provides HTTP handlers for attachments.
type AttachmentHandler struct {
	attachmentService *services.AttachmentService
	maxUploadBytes    int64
	log               logging.Logger
}

func NewAttachmentHandler(attachmentService *services.AttachmentService, maxUploadBytes int64, log logging.Logger) *AttachmentHandler {
	return &AttachmentHandler{
		attachmentService: attachmentService,
		maxUploadBytes:    maxUploadBytes,
		log:               log,
	}
}

// AttachmentRouter registers /attachments routes on the given router.
func AttachmentRouter(r chi.Router, handler *AttachmentHandler) {
	r.Post("/", handler.Upload)
	r.Route("/{attachmentID}", func(r chi.Router) {
		r.Get("/", handler.GetAttachment)
		r.Delete("/", handler.DeleteAttachment)
		r.Get("/content", handler.GetContent)
		r.Put("/task/{taskID}", handler.Attach)
		r.Delete("/task", handler.Detach)
	})
}

// Upload stores a file without linking it to a task.
func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	up, err := h.parseUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	att, err := h.attachmentService.UploadUnlinked(r.Context(), up)
	if err != nil {
		writeServiceError(w, r, h.log, err, "attachment")
		return
	}
	w.Header().Set("Location", "/attachments/"+att.ID.String())
	writeJSON(w, http.StatusCreated, att)
}

// UploadToTask stores a file and links it to the task in the path.
func (h *AttachmentHandler) UploadToTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := parseUUIDParam(r, "taskID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	up, err := h.parseUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	att, err := h.attachmentService.UploadAndAttach(r.Context(), taskID, up)
	if err != nil {
		writeServiceError(w, r, h.log, err, "task")
		return
	}
	w.Header().Set("Location", "/attachments/"+att.ID.String())
	writeJSON(w, http.StatusCreated, att)
}

func (h *AttachmentHandler) ListByTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := parseUUIDParam(r, "taskID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := h.attachmentService.ListByTask(r.Context(), taskID)
	if err != nil {
		writeServiceError(w, r, h.log, err, "task")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *AttachmentHandler) GetAttachment(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "attachmentID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	att, err := h.attachmentService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.log, err, "attachment")
		return
	}
	writeJSON(w, http.StatusOK, att)
}

// GetContent streams the verified payload with its stored content type.
func (h *AttachmentHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "attachmentID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	att, data, err := h.attachmentService.LoadContent(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.log, err, "attachment")
		return
	}

	w.Header().Set("Content-Type", att.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": att.Filename}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *AttachmentHandler) Attach(w http.ResponseWriter, r *http.Request) {
	id, taskID, err := parseAttachmentAndTask(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	att, err := h.attachmentService.Attach(r.Context(), id, taskID)
	if err != nil {
		writeServiceError(w, r, h.log, err, "attachment or task")
		return
	}
	writeJSON(w, http.StatusOK, att)
}

func (h *AttachmentHandler) Detach(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "attachmentID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	att, err := h.attachmentService.Detach(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.log, err, "attachment")
		return
	}
	writeJSON(w, http.StatusOK, att)
}

// DeleteAttachment removes metadata and payload and reports both phases.
func (h *AttachmentHandler) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "attachmentID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.attachmentService.Delete(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.log, err, "attachment")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AttachmentHandler) parseUpload(w http.ResponseWriter, r *http.Request) (services.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return services.Upload{}, errors.New("uploaded file too large")
		}
		return services.Upload{}, errors.New("invalid multipart form")
	}

	file, header, err := r.FormFile(formFieldFile)
	if err != nil {
		return services.Upload{}, errors.New("file is required")
	}
	defer file.Close()

	data, err := readFileLimited(file, h.maxUploadBytes)
	if err != nil {
		return services.Upload{}, err
	}

	return services.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        bytes.NewReader(data),
	}, nil
}

func parseAttachmentAndTask(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	id, err := parseUUIDParam(r, "attachmentID")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	taskID, err := parseUUIDParam(r, "taskID")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return id, taskID, nil
}
