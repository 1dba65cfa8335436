package upload

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newTestHandler(t *testing.T, maxSize int64) *Handler {
	t.Helper()
	h := NewHandler(t.TempDir(), maxSize, zerolog.Nop())
	if err := h.EnsureDir(); err != nil {
		t.Fatalf("failed to create upload dir: %v", err)
	}
	return h
}

func multipartBody(t *testing.T, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create part: %v", err)
	}
	part.Write(content)
	writer.Close()
	return body, writer.FormDataContentType()
}

func TestUpload(t *testing.T) {
	h := newTestHandler(t, 1<<20)

	body, contentType := multipartBody(t, "notes.txt", "text/plain", []byte("hello world"))
	req := httptest.NewRequest("POST", "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Upload(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var res struct {
		File FileInfo `json:"file"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if res.File.OriginalName != "notes.txt" {
		t.Fatalf("originalName = %q, want notes.txt", res.File.OriginalName)
	}
	if res.File.Mimetype != "text/plain" {
		t.Fatalf("mimetype = %q, want text/plain", res.File.Mimetype)
	}
	if res.File.Size != int64(len("hello world")) {
		t.Fatalf("size = %d, want %d", res.File.Size, len("hello world"))
	}
	if !strings.HasPrefix(res.File.URL, "/uploads/") || !strings.HasSuffix(res.File.URL, ".txt") {
		t.Fatalf("unexpected url %q", res.File.URL)
	}

	stored := filepath.Join(h.dir, strings.TrimPrefix(res.File.URL, "/uploads/"))
	data, err := os.ReadFile(stored)
	if err != nil {
		t.Fatalf("stored file not readable: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("stored content = %q", data)
	}
}

func TestUploadRejectsDisallowedType(t *testing.T) {
	h := newTestHandler(t, 1<<20)

	body, contentType := multipartBody(t, "app.exe", "application/x-msdownload", []byte{0x4d, 0x5a})
	req := httptest.NewRequest("POST", "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestUploadRejectsOversize(t *testing.T) {
	h := newTestHandler(t, 64)

	body, contentType := multipartBody(t, "big.txt", "text/plain", bytes.Repeat([]byte("a"), 4096))
	req := httptest.NewRequest("POST", "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

type testPart struct {
	filename    string
	contentType string
	content     []byte
}

func multipartFilesBody(t *testing.T, parts []testPart) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, p := range parts {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="files"; filename="`+p.filename+`"`)
		header.Set("Content-Type", p.contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("failed to create part: %v", err)
		}
		part.Write(p.content)
	}
	writer.Close()
	return body, writer.FormDataContentType()
}

func TestUploadMultiple(t *testing.T) {
	h := newTestHandler(t, 1<<20)

	body, contentType := multipartFilesBody(t, []testPart{
		{"notes.txt", "text/plain", []byte("first")},
		{"data.csv", "text/csv", []byte("a,b,c")},
	})
	req := httptest.NewRequest("POST", "/upload/multiple", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.UploadMultiple(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var res struct {
		Files []FileInfo `json:"files"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(res.Files) != 2 {
		t.Fatalf("files = %d, want 2", len(res.Files))
	}
	if res.Files[0].OriginalName != "notes.txt" || res.Files[1].OriginalName != "data.csv" {
		t.Fatalf("unexpected order: %q, %q", res.Files[0].OriginalName, res.Files[1].OriginalName)
	}
	for _, f := range res.Files {
		stored := filepath.Join(h.dir, strings.TrimPrefix(f.URL, "/uploads/"))
		if _, err := os.Stat(stored); err != nil {
			t.Fatalf("stored file %q not on disk: %v", f.URL, err)
		}
	}
}

func TestUploadMultipleRejectsTooManyFiles(t *testing.T) {
	h := newTestHandler(t, 1<<20)

	parts := make([]testPart, 11)
	for i := range parts {
		parts[i] = testPart{"notes.txt", "text/plain", []byte("x")}
	}
	body, contentType := multipartFilesBody(t, parts)
	req := httptest.NewRequest("POST", "/upload/multiple", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.UploadMultiple(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestUploadMultipleRejectsWholeBatchOnBadFile(t *testing.T) {
	h := newTestHandler(t, 1<<20)

	body, contentType := multipartFilesBody(t, []testPart{
		{"notes.txt", "text/plain", []byte("ok")},
		{"app.exe", "application/x-msdownload", []byte{0x4d, 0x5a}},
	})
	req := httptest.NewRequest("POST", "/upload/multiple", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.UploadMultiple(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	// The valid file must not be stored either.
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		t.Fatalf("failed to read upload dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("upload dir has %d files, want 0", len(entries))
	}
}

func TestUploadRequiresFileField(t *testing.T) {
	h := newTestHandler(t, 1<<20)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	writer.WriteField("other", "value")
	writer.Close()

	req := httptest.NewRequest("POST", "/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()

	h.Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
