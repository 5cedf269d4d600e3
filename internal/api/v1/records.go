package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/evalsync/internal/coordinator"
	"github.com/tphakala/evalsync/internal/evaluation"
)

// CreateRecordRequest is a draft plus the initial status. An empty status
// means local unless the push query flag is set.
type CreateRecordRequest struct {
	evaluation.Payload
	Status string `json:"status,omitempty"`
}

// CreateRecordResponse carries the stored record and, when a push was
// requested and failed, the reason.
type CreateRecordResponse struct {
	Record    *evaluation.Record `json:"record"`
	PushError string             `json:"pushError,omitempty"`
}

// PendingResponse summarizes a bulk push.
type PendingResponse struct {
	Synced  int             `json:"synced"`
	Failed  int             `json:"failed"`
	Results []PendingResult `json:"results"`
}

// PendingResult is one record of a bulk push.
type PendingResult struct {
	ID       string            `json:"id"`
	Status   evaluation.Status `json:"status"`
	Attempts int               `json:"attempts"`
	Error    string            `json:"error,omitempty"`
}

// ListRecords returns records newest first, optionally filtered by ?status=.
func (c *Controller) ListRecords(ctx echo.Context) error {
	records, err := c.DS.ListRecords(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list records", statusFor(err))
	}

	if s := ctx.QueryParam("status"); s != "" {
		status, err := evaluation.ParseStatus(s)
		if err != nil {
			return c.HandleError(ctx, err, "Invalid status filter", http.StatusBadRequest)
		}
		records = evaluation.FilterByStatus(records, status)
	}

	evaluation.SortByTimestampDesc(records)
	if records == nil {
		records = []*evaluation.Record{}
	}
	return ctx.JSON(http.StatusOK, records)
}

// GetRecord returns one record or 404.
func (c *Controller) GetRecord(ctx echo.Context) error {
	id := ctx.Param("id")
	rec, found, err := c.DS.GetRecord(ctx.Request().Context(), id)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to load record", statusFor(err))
	}
	if !found {
		return c.HandleError(ctx, nil, "Record "+id+" not found", http.StatusNotFound)
	}
	return ctx.JSON(http.StatusOK, rec)
}

// CreateRecord validates and stores a draft. With ?push=true the record is
// created queued and pushed before answering.
func (c *Controller) CreateRecord(ctx echo.Context) error {
	var req CreateRecordRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid record payload", http.StatusBadRequest)
	}

	push, _ := strconv.ParseBool(ctx.QueryParam("push"))

	initial := evaluation.StatusLocal
	if push {
		initial = evaluation.StatusQueued
	} else if req.Status != "" {
		status, err := evaluation.ParseStatus(req.Status)
		if err != nil {
			return c.HandleError(ctx, err, "Invalid initial status", http.StatusBadRequest)
		}
		initial = status
	}

	rec, err := evaluation.NewRecord(req.Payload, initial, c.now())
	if err != nil {
		return c.HandleError(ctx, err, "Invalid record", http.StatusBadRequest)
	}

	reqCtx := ctx.Request().Context()
	if err := c.DS.SaveRecord(reqCtx, rec); err != nil {
		return c.HandleError(ctx, err, "Failed to save record", statusFor(err))
	}
	c.invalidateExports()

	resp := CreateRecordResponse{Record: rec}
	if push {
		if err := c.Coordinator.PushWithRetry(reqCtx, rec, c.maxAttempts); err != nil {
			resp.PushError = err.Error()
		}
		c.invalidateExports()
	}
	return ctx.JSON(http.StatusCreated, resp)
}

// DeleteRecord removes a record; deleting an unknown id also answers 204.
func (c *Controller) DeleteRecord(ctx echo.Context) error {
	if err := c.DS.DeleteRecord(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return c.HandleError(ctx, err, "Failed to delete record", statusFor(err))
	}
	c.invalidateExports()
	return ctx.NoContent(http.StatusNoContent)
}

// PushRecord runs a full push with retry for one record.
func (c *Controller) PushRecord(ctx echo.Context) error {
	id := ctx.Param("id")
	rec, err := c.Coordinator.PushByID(ctx.Request().Context(), id, c.maxAttempts)
	if rec != nil {
		c.invalidateExports()
	}
	if err != nil {
		return c.HandleError(ctx, err, "Push of record "+id+" did not complete", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, rec)
}

// PushPending pushes every queued and failed record.
func (c *Controller) PushPending(ctx echo.Context) error {
	summary, err := c.Coordinator.PushPending(ctx.Request().Context(), c.maxAttempts)
	if err != nil {
		return c.HandleError(ctx, err, "Pending push did not run", statusFor(err))
	}
	c.invalidateExports()
	return ctx.JSON(http.StatusOK, pendingResponse(summary))
}

func pendingResponse(summary coordinator.Summary) PendingResponse {
	resp := PendingResponse{
		Synced:  summary.Synced(),
		Failed:  summary.Failed(),
		Results: make([]PendingResult, 0, len(summary.Results)),
	}
	for _, r := range summary.Results {
		item := PendingResult{ID: r.RecordID, Status: r.Status, Attempts: r.Attempts}
		if r.Err != nil {
			item.Error = r.Err.Error()
		}
		resp.Results = append(resp.Results, item)
	}
	return resp
}
