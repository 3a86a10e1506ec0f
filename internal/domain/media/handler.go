package media

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"photovault/internal/middleware"
	"photovault/internal/pkg/response"
)

// Handler handles HTTP requests for a user's media and bin.
type Handler struct {
	service        *Service
	maxUploadBytes int64
	basePath       string
}

// NewHandler builds a handler. basePath prefixes the urls returned to clients.
func NewHandler(service *Service, maxUploadBytes int64, basePath string) *Handler {
	return &Handler{service: service, maxUploadBytes: maxUploadBytes, basePath: basePath}
}

// Upload godoc
// @Summary Upload images and videos
// @Tags Media
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param files formData file true "Files to upload"
// @Success 201 {object} UploadResponse
// @Failure 400,401,413,415,500 {object} map[string]interface{}
// @Router /media [post]
func (h *Handler) Upload(c *gin.Context) {
	userID := mustUserID(c)
	if userID == "" {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "multipart form expected")
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["file"]
	}
	if len(files) == 0 {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "no file provided")
		return
	}

	out := UploadResponse{Uploaded: []MediaResponse{}, Failed: []UploadFailure{}}
	var firstErr error
	for _, fh := range files {
		rec, err := h.ingest(c, userID, fh)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			status, code, msg := classify(err)
			if status >= http.StatusInternalServerError {
				_ = c.Error(err)
			}
			out.Failed = append(out.Failed, UploadFailure{Name: fh.Filename, Code: code, Message: msg})
			continue
		}
		out.Uploaded = append(out.Uploaded, toResponse(rec, h.basePath))
	}

	if len(out.Uploaded) == 0 {
		status, code, msg := classify(firstErr)
		response.ErrorWithDetails(c, status, code, msg, out.Failed)
		return
	}
	response.Success(c, http.StatusCreated, out)
}

func (h *Handler) ingest(c *gin.Context, userID string, fh *multipart.FileHeader) (*Record, error) {
	if h.maxUploadBytes > 0 && fh.Size > h.maxUploadBytes {
		return nil, ErrFileTooLarge
	}
	if _, _, ok := KindFromFilename(fh.Filename); !ok {
		return nil, ErrUnsupportedType
	}

	f, err := fh.Open()
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	defer f.Close()

	var r io.Reader = f
	if h.maxUploadBytes > 0 {
		r = io.LimitReader(f, h.maxUploadBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}

	return h.service.Ingest(c.Request.Context(), IngestCommand{
		UserID:   userID,
		Filename: fh.Filename,
		Data:     data,
	})
}

// ListActive godoc
// @Summary List my media
// @Tags Media
// @Produce json
// @Security BearerAuth
// @Success 200 {array} MediaResponse
// @Router /media [get]
func (h *Handler) ListActive(c *gin.Context) {
	userID := mustUserID(c)
	if userID == "" {
		return
	}

	recs, err := h.service.ListActive(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, toResponses(recs, h.basePath))
}

// ListBinned godoc
// @Summary List my bin
// @Tags Bin
// @Produce json
// @Security BearerAuth
// @Success 200 {array} MediaResponse
// @Router /bin [get]
func (h *Handler) ListBinned(c *gin.Context) {
	userID := mustUserID(c)
	if userID == "" {
		return
	}

	recs, err := h.service.ListBinned(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, toResponses(recs, h.basePath))
}

// GetOriginal godoc
// @Summary Download an active original
// @Tags Media
// @Security BearerAuth
// @Param id path string true "Object ID"
// @Success 200 {file} binary
// @Failure 404 {object} map[string]interface{}
// @Router /media/{id} [get]
func (h *Handler) GetOriginal(c *gin.Context) {
	h.serveOriginal(c, StateActive)
}

// GetBinned godoc
// @Summary Download a binned original
// @Tags Bin
// @Security BearerAuth
// @Param id path string true "Object ID"
// @Success 200 {file} binary
// @Failure 404 {object} map[string]interface{}
// @Router /bin/{id} [get]
func (h *Handler) GetBinned(c *gin.Context) {
	h.serveOriginal(c, StateBinned)
}

func (h *Handler) serveOriginal(c *gin.Context, want State) {
	userID, uri, ok := h.bindObject(c)
	if !ok {
		return
	}

	rec, content, err := h.service.GetOriginal(c.Request.Context(), userID, uri.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if rec.State != want {
		h.fail(c, ErrNotFound)
		return
	}
	response.Blob(c, content.MimeType, content.Name, content.Data)
}

// GetThumbnail godoc
// @Summary Download a thumbnail
// @Description Images return a 412x412 JPEG. Videos have no server-side thumbnail and return 204.
// @Tags Media
// @Security BearerAuth
// @Param id path string true "Object ID"
// @Success 200 {file} binary
// @Success 204
// @Failure 404 {object} map[string]interface{}
// @Router /media/{id}/thumbnail [get]
func (h *Handler) GetThumbnail(c *gin.Context) {
	userID, uri, ok := h.bindObject(c)
	if !ok {
		return
	}

	content, err := h.service.GetThumbnail(c.Request.Context(), userID, uri.ID)
	if errors.Is(err, ErrThumbnailSkipped) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Blob(c, content.MimeType, "", content.Data)
}

// SoftDelete godoc
// @Summary Move media to the bin
// @Tags Media
// @Produce json
// @Security BearerAuth
// @Param id path string true "Object ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404,409,500 {object} map[string]interface{}
// @Router /media/{id} [delete]
func (h *Handler) SoftDelete(c *gin.Context) {
	userID, uri, ok := h.bindObject(c)
	if !ok {
		return
	}

	if err := h.service.SoftDelete(c.Request.Context(), userID, uri.ID); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": uri.ID, "state": StateBinned})
}

// Restore godoc
// @Summary Restore media from the bin
// @Tags Bin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Object ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404,409,500 {object} map[string]interface{}
// @Router /bin/{id}/restore [post]
func (h *Handler) Restore(c *gin.Context) {
	userID, uri, ok := h.bindObject(c)
	if !ok {
		return
	}

	if err := h.service.Restore(c.Request.Context(), userID, uri.ID); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": uri.ID, "state": StateActive})
}

// Purge godoc
// @Summary Permanently delete media from the bin
// @Tags Bin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Object ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404,409,500 {object} map[string]interface{}
// @Router /bin/{id} [delete]
func (h *Handler) Purge(c *gin.Context) {
	userID, uri, ok := h.bindObject(c)
	if !ok {
		return
	}

	if err := h.service.Purge(c.Request.Context(), userID, uri.ID); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": uri.ID, "purged": true})
}

func (h *Handler) bindObject(c *gin.Context) (string, MediaURI, bool) {
	var uri MediaURI
	userID := mustUserID(c)
	if userID == "" {
		return "", uri, false
	}
	if err := c.ShouldBindUri(&uri); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid media id")
		return "", uri, false
	}
	return userID, uri, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, code, msg := classify(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	response.Error(c, status, code, msg)
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, ErrUnsupportedType):
		return http.StatusUnsupportedMediaType, "UNSUPPORTED_TYPE", ErrUnsupportedType.Error()
	case errors.Is(err, ErrEmptyFile):
		return http.StatusBadRequest, "EMPTY_FILE", ErrEmptyFile.Error()
	case errors.Is(err, ErrInvalidName):
		return http.StatusBadRequest, "VALIDATION_ERROR", ErrInvalidName.Error()
	case errors.Is(err, ErrInvalidUserID):
		return http.StatusBadRequest, "INVALID_USER_ID", ErrInvalidUserID.Error()
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", ErrFileTooLarge.Error()
	case errors.Is(err, ErrThumbnailUnavailable):
		return http.StatusNotFound, "THUMBNAIL_UNAVAILABLE", "thumbnail unavailable"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", ErrNotFound.Error()
	case errors.Is(err, ErrInvalidState):
		return http.StatusConflict, "INVALID_STATE", ErrInvalidState.Error()
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, "CONFLICT", ErrConflict.Error()
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR", "storage failure"
}

func mustUserID(c *gin.Context) string {
	id := middleware.UserID(c)
	if id == "" {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
	}
	return id
}
