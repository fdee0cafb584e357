package apiv1

import (
	"github.com/labstack/echo/v4"

	"github.com/wahajws/amast-crm-sub000/pkg/labels"
	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

// LabelsGroup exposes label preferences
type LabelsGroup struct {
	reconciler *labels.Reconciler
}

func NewLabelsGroup(g *echo.Group, reconciler *labels.Reconciler) *LabelsGroup {
	lg := &LabelsGroup{reconciler: reconciler}

	g.GET("", lg.List)
	g.POST("/sync", lg.Refresh)
	g.PUT("/sync-settings", lg.UpdateSyncSettings)
	g.GET("/syncing", lg.ListSyncing)

	return lg
}

type LabelsResponse struct {
	Labels []types.LabelSyncState `json:"labels"`
}

// List returns stored labels, fetching them from Gmail the first time
func (lg *LabelsGroup) List(c echo.Context) error {
	states, err := lg.reconciler.ListLabels(c.Request().Context(), currentUser(c))
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessResponse(c, LabelsResponse{Labels: nonNilLabels(states)})
}

type RefreshLabelsRequest struct {
	AutoEnable bool `json:"autoEnable"`
}

type RefreshLabelsResponse struct {
	Labels  []types.LabelSyncState `json:"labels"`
	Enabled int                    `json:"enabled"`
}

// Refresh re-reads the label taxonomy from Gmail. With autoEnable every
// user label is switched on.
func (lg *LabelsGroup) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	user := currentUser(c)

	var req RefreshLabelsRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return HandleError(c, &types.ValidationError{Field: "body", Message: "malformed json"})
		}
	}

	states, err := lg.reconciler.RefreshFromProvider(ctx, user)
	if err != nil {
		return HandleError(c, err)
	}

	enabled := 0
	if req.AutoEnable {
		enabled, err = lg.reconciler.AutoEnableUserLabels(ctx, user)
		if err != nil {
			return HandleError(c, err)
		}
		if states, err = lg.reconciler.ListLabels(ctx, user); err != nil {
			return HandleError(c, err)
		}
	}

	return SuccessResponse(c, RefreshLabelsResponse{Labels: nonNilLabels(states), Enabled: enabled})
}

type SyncSettingsRequest struct {
	LabelIds  []string `json:"labelIds"`
	IsSyncing *bool    `json:"isSyncing"`
}

type SyncSettingsResponse struct {
	Updated int `json:"updated"`
}

// UpdateSyncSettings switches sync on or off for a set of labels
func (lg *LabelsGroup) UpdateSyncSettings(c echo.Context) error {
	var req SyncSettingsRequest
	if err := c.Bind(&req); err != nil {
		return HandleError(c, &types.ValidationError{Field: "body", Message: "malformed json"})
	}
	if req.IsSyncing == nil {
		return HandleError(c, &types.ValidationError{Field: "isSyncing", Message: "required"})
	}

	updated, err := lg.reconciler.SetSyncing(c.Request().Context(), currentUser(c), req.LabelIds, *req.IsSyncing)
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessResponse(c, SyncSettingsResponse{Updated: updated})
}

// ListSyncing returns the labels selected for sync
func (lg *LabelsGroup) ListSyncing(c echo.Context) error {
	states, err := lg.reconciler.SyncingLabels(c.Request().Context(), currentUser(c))
	if err != nil {
		return HandleError(c, err)
	}
	return SuccessResponse(c, LabelsResponse{Labels: nonNilLabels(states)})
}

func nonNilLabels(states []types.LabelSyncState) []types.LabelSyncState {
	if states == nil {
		return []types.LabelSyncState{}
	}
	return states
}
