package upload

import (
	"crypto/rand"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"teamchat/internal/httpx"
	"teamchat/internal/metrics"
)

// allowedTypes is the accepted MIME allow-list. Anything else is
// rejected before a byte hits disk.
var allowedTypes = map[string]string{
	"image/jpeg":         ".jpg",
	"image/png":          ".png",
	"image/gif":          ".gif",
	"image/webp":         ".webp",
	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
	"text/plain": ".txt",
	"text/csv":   ".csv",
}

type FileInfo struct {
	URL          string `json:"url"`
	OriginalName string `json:"originalName"`
	Mimetype     string `json:"mimetype"`
	Size         int64  `json:"size"`
}

type Handler struct {
	dir     string
	maxSize int64
	log     zerolog.Logger
}

func NewHandler(dir string, maxSize int64, log zerolog.Logger) *Handler {
	return &Handler{dir: dir, maxSize: maxSize, log: log}
}

// EnsureDir creates the upload directory if it does not exist.
func (h *Handler) EnsureDir() error {
	return os.MkdirAll(h.dir, 0o755)
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize)
	if err := r.ParseMultipartForm(h.maxSize); err != nil {
		httpx.Error(w, http.StatusBadRequest, "file exceeds the maximum allowed size")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	if header.Size > h.maxSize {
		httpx.Error(w, http.StatusBadRequest, "file exceeds the maximum allowed size")
		return
	}

	if _, ok := allowedTypes[header.Header.Get("Content-Type")]; !ok {
		httpx.Error(w, http.StatusBadRequest, "file type not allowed")
		return
	}

	info, err := h.store(file, header)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to store upload")
		httpx.Error(w, http.StatusInternalServerError, "failed to store file")
		return
	}

	httpx.JSON(w, http.StatusCreated, map[string]FileInfo{"file": *info})
}

// maxFilesPerRequest caps one multipart batch.
const maxFilesPerRequest = 10

// UploadMultiple stores a batch of files from the "files" field. The
// whole batch is validated before the first byte hits disk, so one bad
// file rejects the request.
func (h *Handler) UploadMultiple(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize*maxFilesPerRequest)
	if err := r.ParseMultipartForm(h.maxSize * maxFilesPerRequest); err != nil {
		httpx.Error(w, http.StatusBadRequest, "request exceeds the maximum allowed size")
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		httpx.Error(w, http.StatusBadRequest, "files field is required")
		return
	}
	if len(headers) > maxFilesPerRequest {
		httpx.Error(w, http.StatusBadRequest,
			fmt.Sprintf("at most %d files per request", maxFilesPerRequest))
		return
	}

	for _, header := range headers {
		if header.Size > h.maxSize {
			httpx.Error(w, http.StatusBadRequest, "file exceeds the maximum allowed size")
			return
		}
		if _, ok := allowedTypes[header.Header.Get("Content-Type")]; !ok {
			httpx.Error(w, http.StatusBadRequest, "file type not allowed")
			return
		}
	}

	infos := make([]FileInfo, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			h.log.Error().Err(err).Msg("failed to open upload part")
			httpx.Error(w, http.StatusInternalServerError, "failed to store file")
			return
		}
		info, err := h.store(file, header)
		file.Close()
		if err != nil {
			h.log.Error().Err(err).Msg("failed to store upload")
			httpx.Error(w, http.StatusInternalServerError, "failed to store file")
			return
		}
		infos = append(infos, *info)
	}

	httpx.JSON(w, http.StatusCreated, map[string][]FileInfo{"files": infos})
}

// store writes one validated part to disk under a generated name.
func (h *Handler) store(file multipart.File, header *multipart.FileHeader) (*FileInfo, error) {
	contentType := header.Header.Get("Content-Type")

	// Sortable, collision-free stored names.
	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader)
	name := fmt.Sprintf("%s%s", id.String(), allowedTypes[contentType])

	dst, err := os.Create(filepath.Join(h.dir, name))
	if err != nil {
		return nil, err
	}
	defer dst.Close()

	written, err := io.Copy(dst, file)
	if err != nil {
		return nil, err
	}

	metrics.FilesUploaded.Inc()
	return &FileInfo{
		URL:          "/uploads/" + name,
		OriginalName: header.Filename,
		Mimetype:     contentType,
		Size:         written,
	}, nil
}

// Serve exposes the upload directory for stored files.
func (h *Handler) Serve() http.Handler {
	return http.StripPrefix("/uploads/", http.FileServer(http.Dir(h.dir)))
}
