package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"file-drop/pkg/logger"
	"file-drop/pkg/models"
)

// HandleManualCleanup runs one sweep now, detached from the request context.
func (h *Handler) HandleManualCleanup(c *gin.Context) {
	outcome, err := h.Scheduler.TriggerManualCleanup(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		logger.Sugar.Errorw("manual cleanup failed", "error", err)
		c.JSON(http.StatusInternalServerError, envelope{Success: false, Message: "Cleanup failed", Error: err.Error()})
		return
	}
	if outcome.Skipped {
		fail(c, http.StatusConflict, "Cleanup already in progress")
		return
	}
	ok(c, "Cleanup completed", outcome.Report)
}

func (h *Handler) HandleCleanupStats(c *gin.Context) {
	ok(c, "", gin.H{
		"manager": h.Scheduler.GetManagerStats(),
		"files":   h.Cleanup.GetStats(c.Request.Context()),
	})
}

// HandleCleanupFiles deletes caller-supplied records from their backends.
func (h *Handler) HandleCleanupFiles(c *gin.Context) {
	var body struct {
		Files json.RawMessage `json:"files"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || !isArray(body.Files) {
		fail(c, http.StatusBadRequest, "Files array is required")
		return
	}

	var records []models.FileRecord
	if err := json.Unmarshal(body.Files, &records); err != nil {
		fail(c, http.StatusBadRequest, fmt.Sprintf("invalid file record: %v", err))
		return
	}
	for _, r := range records {
		if r.Object == nil && r.Hosted == nil {
			fail(c, http.StatusBadRequest, fmt.Sprintf("unsupported service %q", r.Service))
			return
		}
	}

	report := h.Cleanup.CleanupByRecords(context.WithoutCancel(c.Request.Context()), records)
	ok(c, "", report)
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

// HandlePurge removes ledger rows deleted more than ?days= days ago.
func (h *Handler) HandlePurge(c *gin.Context) {
	days := h.RetentionDays
	if v := c.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			fail(c, http.StatusBadRequest, fmt.Sprintf("invalid days %q", v))
			return
		}
		days = n
	}

	n, err := h.Cleanup.PurgeOldDeletionRecords(c.Request.Context(), days)
	if err != nil {
		fail(c, statusFor(err), err.Error())
		return
	}
	ok(c, fmt.Sprintf("Purged %d records", n), gin.H{"purged": n, "days": days})
}
