package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/taskboard/apiserver/internal/logging"
	"github.com/taskboard/apiserver/internal/services"
	"github.com/taskboard/apiserver/internal/store"
	"github.com/taskboard/apiserver/types"
)

const (
	headerTotalCount = "X-Total-Count"
	headerLink       = "Link"
)

// TaskHandler provides HTTP handlers for tasks.
type TaskHandler struct {
	taskService *services.TaskService
	log         logging.Logger
}

func NewTaskHandler(taskService *services.TaskService, log logging.Logger) *TaskHandler {
	return &TaskHandler{taskService: taskService, log: log}
}

// TaskRouter registers task routes on the given router. Attachment routes
// nested under a task are mounted when attachments is non-nil; the mock
// insert endpoint only when debugRoutes is set.
func TaskRouter(
	r chi.Router,
	taskService *services.TaskService,
	attachments *AttachmentHandler,
	debugRoutes bool,
	log logging.Logger,
) {
	handler := NewTaskHandler(taskService, log)

	r.Get("/", handler.ListTasks)
	r.Post("/", handler.CreateTask)
	if debugRoutes {
		r.Post("/mock", handler.InsertMock)
	}
	r.Route("/{taskID}", func(r chi.Router) {
		r.Get("/", handler.GetTask)
		r.Put("/", handler.UpdateTask)
		r.Delete("/", handler.DeleteTask)
		r.Get("/detail", handler.GetTaskDetail)
		r.Patch("/completed", handler.SetCompleted)
		if attachments != nil {
			r.Get("/attachments", attachments.ListByTask)
			r.Post("/attachments", attachments.UploadToTask)
		}
	})
}

type CreateTaskRequest struct {
	TaskName string     `json:"taskName"`
	TaskDesc string     `json:"taskDesc"`
	DueDate  *time.Time `json:"dueDate"`
}

type UpdateTaskRequest struct {
	TaskName  *string    `json:"taskName"`
	TaskDesc  *string    `json:"taskDesc"`
	Completed *bool      `json:"completed"`
	DueDate   *time.Time `json:"dueDate"`
}

type CompletedRequest struct {
	Completed *bool `json:"completed"`
}

func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	page, size, sort, err := parseTaskQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.taskService.List(r.Context(), page, size, sort)
	if err != nil {
		writeServiceError(w, r, h.log, err, "task")
		return
	}

	w.Header().Set(headerTotalCount, strconv.Itoa(result.Total))
	if link := pageLinks(r.URL.Path, result, sort); link != "" {
		w.Header().Set(headerLink, link)
	}
	items := result.Items
	if items == nil {
		items = []types.Task{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "taskID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.taskService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.log, err, "task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) GetTaskDetail(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "taskID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	detail, err := h.taskService.Detail(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.log, err, "task")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.taskService.Create(r.Context(), services.TaskInput{
		Name:        req.TaskName,
		Description: req.TaskDesc,
		DueDate:     req.DueDate,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err, "task")
		return
	}

	w.Header().Set("Location", "/tasks/"+task.ID.String())
	writeJSON(w, http.StatusCreated, task)
}

func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "taskID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req UpdateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.taskService.Update(r.Context(), id, services.TaskPatch{
		Name:        req.TaskName,
		Description: req.TaskDesc,
		Completed:   req.Completed,
		DueDate:     req.DueDate,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err, "task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) SetCompleted(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "taskID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req CompletedRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Completed == nil {
		writeError(w, http.StatusBadRequest, "completed is required")
		return
	}

	task, err := h.taskService.SetCompleted(r.Context(), id, *req.Completed)
	if err != nil {
		writeServiceError(w, r, h.log, err, "task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "taskID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.taskService.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, h.log, err, "task")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) InsertMock(w http.ResponseWriter, r *http.Request) {
	task, err := h.taskService.InsertMock(r.Context())
	if err != nil {
		writeServiceError(w, r, h.log, err, "task")
		return
	}
	h.log.Info(r.Context(), "inserted mock task", "task_id", task.ID)
	writeJSON(w, http.StatusOK, task)
}

// parseTaskQuery reads page (zero-based), size and sort=field[,asc|desc].
func parseTaskQuery(q url.Values) (page, size int, sort types.TaskSort, err error) {
	page = 0
	size = services.DefaultPageSize
	sort = services.DefaultTaskSort

	if raw := strings.TrimSpace(q.Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 0 {
			return 0, 0, types.TaskSort{}, errors.New("invalid page")
		}
	}
	if raw := strings.TrimSpace(q.Get("size")); raw != "" {
		size, err = strconv.Atoi(raw)
		if err != nil || size < 1 {
			return 0, 0, types.TaskSort{}, errors.New("invalid size")
		}
		if size > services.MaxPageSize {
			size = services.MaxPageSize
		}
	}
	if raw := strings.TrimSpace(q.Get("sort")); raw != "" {
		sort, err = parseSort(raw)
		if err != nil {
			return 0, 0, types.TaskSort{}, err
		}
	}
	return page, size, sort, nil
}

func parseSort(raw string) (types.TaskSort, error) {
	field, dir, _ := strings.Cut(raw, ",")
	field = strings.TrimSpace(field)
	if !store.TaskSortable(field) {
		return types.TaskSort{}, fmt.Errorf("invalid sort field %q", field)
	}
	switch strings.ToLower(strings.TrimSpace(dir)) {
	case "", "asc":
		return types.TaskSort{Field: field}, nil
	case "desc":
		return types.TaskSort{Field: field, Desc: true}, nil
	default:
		return types.TaskSort{}, fmt.Errorf("invalid sort direction %q", dir)
	}
}

func formatSort(sort types.TaskSort) string {
	if sort.Desc {
		return sort.Field + ",desc"
	}
	return sort.Field + ",asc"
}

// pageLinks renders an RFC 8288 Link header with first, prev, next and last
// relations. Each target keeps the page size and sort order.
func pageLinks(path string, page types.TaskPage, sort types.TaskSort) string {
	last := max(page.TotalPages()-1, 0)
	link := func(n int, rel string) string {
		q := url.Values{}
		q.Set("page", strconv.Itoa(n))
		q.Set("size", strconv.Itoa(page.Size))
		q.Set("sort", formatSort(sort))
		return fmt.Sprintf(`<%s?%s>; rel="%s"`, path, q.Encode(), rel)
	}

	links := []string{link(0, "first")}
	if page.Page > 0 {
		links = append(links, link(min(page.Page-1, last), "prev"))
	}
	if page.Page < last {
		links = append(links, link(page.Page+1, "next"))
	}
	links = append(links, link(last, "last"))
	return strings.Join(links, ", ")
}
