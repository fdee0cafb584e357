package apiv1

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/wahajws/amast-crm-sub000/pkg/audit"
	"github.com/wahajws/amast-crm-sub000/pkg/ingest"
	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

const asyncSyncTimeout = 30 * time.Minute

// SyncGroup triggers ingestion runs and reports their history
type SyncGroup struct {
	pipeline *ingest.Pipeline
	audit    *audit.Log
	inflight sync.WaitGroup
}

func NewSyncGroup(g *echo.Group, pipeline *ingest.Pipeline, auditLog *audit.Log) *SyncGroup {
	sg := &SyncGroup{pipeline: pipeline, audit: auditLog}

	g.POST("", sg.Sync)
	g.GET("/status", sg.Status)

	return sg
}

type SyncRequest struct {
	LabelId string `json:"labelId,omitempty"` // Empty syncs every syncing label
	Async   bool   `json:"async"`
}

type SyncResponse struct {
	Results       []*types.SyncResult `json:"results"`
	EmailsSynced  int                 `json:"emailsSynced"`
	EmailsSkipped int                 `json:"emailsSkipped"`
}

type SyncAcceptedResponse struct {
	Accepted bool   `json:"accepted"`
	LabelId  string `json:"labelId,omitempty"`
}

// Sync runs a manual sync for one label or for all syncing labels
func (sg *SyncGroup) Sync(c echo.Context) error {
	user := currentUser(c)

	var req SyncRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return HandleError(c, &types.ValidationError{Field: "body", Message: "malformed json"})
		}
	}

	if req.Async {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), asyncSyncTimeout)
		sg.inflight.Add(1)
		go func() {
			defer sg.inflight.Done()
			defer cancel()
			if _, err := sg.run(ctx, user, req.LabelId); err != nil {
				log.Warn().Str("user_id", user.Id).Str("label_id", req.LabelId).Err(err).Msg("background sync failed")
			}
		}()
		return c.JSON(http.StatusAccepted, Response{
			Success: true,
			Data:    SyncAcceptedResponse{Accepted: true, LabelId: req.LabelId},
		})
	}

	resp, err := sg.run(c.Request().Context(), user, req.LabelId)
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessResponse(c, resp)
}

// Wait blocks until background syncs started by this group have finished
func (sg *SyncGroup) Wait() {
	sg.inflight.Wait()
}

func (sg *SyncGroup) run(ctx context.Context, user *types.User, labelId string) (*SyncResponse, error) {
	var results []*types.SyncResult

	if labelId != "" {
		result, err := sg.pipeline.SyncLabel(ctx, user, labelId, types.SyncTypeManual)
		if err != nil {
			return nil, err
		}
		results = []*types.SyncResult{result}
	} else {
		all, err := sg.pipeline.SyncAllSyncingLabels(ctx, user, types.SyncTypeManual)
		if err != nil {
			return nil, err
		}
		results = all
	}

	resp := &SyncResponse{Results: results}
	if resp.Results == nil {
		resp.Results = []*types.SyncResult{}
	}
	for _, r := range resp.Results {
		resp.EmailsSynced += r.EmailsSynced
		resp.EmailsSkipped += r.EmailsSkipped
	}
	return resp, nil
}

type SyncStatusResponse struct {
	Runs        []types.SyncRun `json:"runs"`
	LastSuccess *types.SyncRun  `json:"lastSuccess"`
}

// Status returns recent runs, newest first, and the latest successful run
func (sg *SyncGroup) Status(c echo.Context) error {
	ctx := c.Request().Context()
	user := currentUser(c)

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return HandleError(c, &types.ValidationError{Field: "limit", Message: "must be a non-negative integer"})
		}
		limit = n
	}

	var labelId *string
	if raw := c.QueryParam("labelId"); raw != "" {
		labelId = &raw
	}

	runs, err := sg.audit.FindByUser(ctx, user.Id, limit)
	if err != nil {
		return HandleError(c, err)
	}
	if runs == nil {
		runs = []types.SyncRun{}
	}

	last, err := sg.audit.FindLatestSuccess(ctx, user.Id, labelId)
	if err != nil {
		return HandleError(c, err)
	}

	return SuccessResponse(c, SyncStatusResponse{Runs: runs, LastSuccess: last})
}
