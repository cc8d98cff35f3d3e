package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/agjmills/drive/internal/account"
	"github.com/agjmills/drive/internal/auth"
	"github.com/agjmills/drive/internal/config"
	"github.com/agjmills/drive/internal/files"
	"github.com/agjmills/drive/internal/logger"
	"github.com/go-chi/chi/v5"
)

type FileHandler struct {
	files *files.Service
	cfg   *config.Config
}

func NewFileHandler(fileService *files.Service, cfg *config.Config) *FileHandler {
	return &FileHandler{
		files: fileService,
		cfg:   cfg,
	}
}

type DeleteFileRequest struct {
	Filename string `json:"filename"`
}

// HomeResponse is the signed-in user's landing payload.
type HomeResponse struct {
	User  UserResponse   `json:"user"`
	Files []files.Record `json:"files"`
}

// Home lists the caller's files in upload order, or by name with ?sort=name.
func (h *FileHandler) Home(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r)

	records, err := h.files.List(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if r.URL.Query().Get("sort") == "name" {
		files.SortByName(records)
	}

	writeJSON(w, http.StatusOK, HomeResponse{
		User: UserResponse{
			ID:       claims.UserID,
			Username: claims.Username,
			Email:    claims.Email,
			Role:     claims.Role,
		},
		Files: records,
	})
}

func (h *FileHandler) tooLarge(w http.ResponseWriter) {
	writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File too large (max %d MB)", h.cfg.MaxUploadSize/(1024*1024)))
}

// Upload streams the first "file" part of a multipart body to the provider.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r)

	// Check Content-Length header first (if provided) for early rejection
	if r.ContentLength > h.cfg.MaxUploadSize {
		h.tooLarge(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize)

	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || params["boundary"] == "" {
		writeError(w, http.StatusBadRequest, "Expected a multipart upload")
		return
	}
	mr := multipart.NewReader(r.Body, params["boundary"])

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				h.tooLarge(w)
				return
			}
			writeError(w, http.StatusBadRequest, "Failed to parse multipart form")
			return
		}

		if part.FormName() != "file" || part.FileName() == "" {
			io.Copy(io.Discard, part)
			part.Close()
			continue
		}

		contentType := part.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		record, err := h.files.Upload(r.Context(), claims.UserID, part, part.FileName(), contentType)
		part.Close()
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				h.tooLarge(w)
				return
			}
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, record)
		return
	}

	writeError(w, http.StatusBadRequest, "No file provided")
}

// Delete removes a file from the caller's list and, best effort, from the
// provider. Deleting an unknown key succeeds with nothing removed.
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r)

	var req DeleteFileRequest
	if err := bind(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	key := strings.TrimSpace(req.Filename)
	if key == "" {
		writeServiceError(w, r, &account.ValidationError{Field: "filename", Message: "Filename is required"})
		return
	}

	result, err := h.files.Delete(r.Context(), claims.UserID, key)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Serve delivers a file by bare identifier.
func (h *FileHandler) Serve(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, chi.URLParam(r, "fileId"))
}

// ServeInFolder delivers a file addressed as folder/filename.
func (h *FileHandler) ServeInFolder(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, chi.URLParam(r, "folder")+"/"+chi.URLParam(r, "filename"))
}

// serve redirects to the delivery URL, or streams the object when the
// provider has no URL to hand out.
func (h *FileHandler) serve(w http.ResponseWriter, r *http.Request, id string) {
	claims := auth.GetClaims(r)

	resolved, err := h.files.Resolve(r.Context(), claims.UserID, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if resolved.URL != "" {
		http.Redirect(w, r, resolved.URL, http.StatusFound)
		return
	}

	rc, record, err := h.files.Open(r.Context(), claims.UserID, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(strings.ToLower(path.Ext(record.OriginalName)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "inline; filename*=UTF-8''"+url.PathEscape(record.OriginalName))
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if _, err := io.Copy(w, rc); err != nil {
		logger.Warn("file stream interrupted", "user_id", claims.UserID, "key", record.StorageKey, "error", err)
	}
}
