package handlers

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"file-drop/pkg/errs"
	"file-drop/pkg/logger"
	"file-drop/pkg/models"
	"file-drop/pkg/upload"
)

// HandleUpload accepts a multipart batch in the "files" field and runs it
// through the upload router.
func (h *Handler) HandleUpload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil || len(form.File["files"]) == 0 {
		fail(c, http.StatusBadRequest, "No files selected for upload.")
		return
	}

	backend := models.Service(c.DefaultPostForm("backend", string(models.ServiceObjectStore)))
	temporary := false
	if v := c.PostForm("temporary"); v != "" {
		if temporary, err = strconv.ParseBool(v); err != nil {
			fail(c, http.StatusBadRequest, fmt.Sprintf("invalid temporary flag %q", v))
			return
		}
	}

	files := make([]upload.File, 0, len(form.File["files"]))
	for _, fh := range form.File["files"] {
		f, err := openPart(fh)
		if err != nil {
			logger.Sugar.Errorw("failed to open uploaded part", "file", fh.Filename, "error", err)
			fail(c, http.StatusBadRequest, fmt.Sprintf("could not read %s", fh.Filename))
			return
		}
		defer f.Content.(io.Closer).Close()
		f.Temporary = temporary
		files = append(files, f)
	}

	result, err := h.Uploads.Upload(c.Request.Context(), backend, files, func(pct float64) {
		logger.Sugar.Debugw("upload progress", "backend", backend, "percent", pct)
	})
	if err != nil {
		fail(c, statusFor(err), err.Error())
		return
	}

	if result.Succeeded() == 0 {
		status := http.StatusBadGateway
		if allInvalid(result.Failed) {
			status = http.StatusBadRequest
		}
		c.JSON(status, envelope{Success: false, Error: "no files were uploaded", Data: result})
		return
	}
	ok(c, fmt.Sprintf("Uploaded %d of %d files", result.Succeeded(), len(files)), result)
}

// openPart opens a multipart file and fills in its media type, sniffing the
// content when the client sent none.
func openPart(fh *multipart.FileHeader) (upload.File, error) {
	f, err := fh.Open()
	if err != nil {
		return upload.File{}, err
	}

	mediaType := fh.Header.Get("Content-Type")
	if mediaType == "" || upload.NormalizeType(mediaType) == "application/octet-stream" {
		detected, err := mimetype.DetectReader(f)
		if err == nil {
			mediaType = detected.String()
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return upload.File{}, err
		}
	}

	return upload.File{
		Name:     fh.Filename,
		MimeType: mediaType,
		Size:     fh.Size,
		Content:  f,
	}, nil
}

func allInvalid(failed []upload.Failure) bool {
	for _, f := range failed {
		if f.Kind != errs.ValidationError {
			return false
		}
	}
	return true
}

func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.ValidationError:
		return http.StatusBadRequest
	case errs.TransportFailed, errs.BackendRejected, errs.BlobDeleteFailed, errs.HostedDeleteFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) HandleListFiles(c *gin.Context) {
	files, err := h.Catalog.List(c.Request.Context())
	if err != nil {
		logger.Sugar.Errorw("failed to list files", "error", err)
		fail(c, http.StatusInternalServerError, "failed to list files")
		return
	}
	ok(c, "", files)
}

func (h *Handler) lookup(c *gin.Context) (*models.StoredFile, bool) {
	f, err := h.Catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		logger.Sugar.Errorw("failed to load file", "id", c.Param("id"), "error", err)
		fail(c, http.StatusInternalServerError, "failed to load file")
		return nil, false
	}
	if f == nil {
		fail(c, http.StatusNotFound, "file not found")
		return nil, false
	}
	return f, true
}

// HandleDownload streams object-store files and redirects to hosted ones.
func (h *Handler) HandleDownload(c *gin.Context) {
	f, found := h.lookup(c)
	if !found {
		return
	}
	if f.Service == models.ServiceHostedFile {
		c.Redirect(http.StatusFound, f.URL)
		return
	}

	rc, err := h.Blobs.Get(c.Request.Context(), f.Bucket, f.StorageKey)
	if err != nil {
		logger.Sugar.Warnw("blob unavailable for download", "id", f.ID, "key", f.StorageKey, "error", err)
		fail(c, http.StatusNotFound, "file content is no longer available")
		return
	}
	defer rc.Close()

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": f.Name})
	if disposition == "" {
		disposition = "attachment"
	}
	c.DataFromReader(http.StatusOK, f.Size, f.MimeType, rc, map[string]string{
		"Content-Disposition": disposition,
	})
}

// HandleDelete removes a file from its backend and then from the catalog.
func (h *Handler) HandleDelete(c *gin.Context) {
	f, found := h.lookup(c)
	if !found {
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	report := h.Cleanup.CleanupByRecords(ctx, []models.FileRecord{f.Record()})
	if report.ObjectStore.Success+report.Hosted.Success == 0 {
		c.JSON(http.StatusBadGateway, envelope{Success: false, Error: "failed to delete file", Data: report})
		return
	}

	if _, err := h.Catalog.Delete(ctx, f.ID); err != nil {
		logger.Sugar.Errorw("file deleted from backend but not from catalog", "id", f.ID, "error", err)
		fail(c, http.StatusInternalServerError, "failed to remove file from catalog")
		return
	}
	ok(c, "File deleted", report)
}
