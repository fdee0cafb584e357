package labels

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wahajws/amast-crm-sub000/pkg/gmail"
	"github.com/wahajws/amast-crm-sub000/pkg/repository"
	"github.com/wahajws/amast-crm-sub000/pkg/types"
)

// ClientSource hands out authenticated Gmail clients
type ClientSource interface {
	GetAuthenticatedClient(ctx context.Context, user *types.User) (*gmail.Client, error)
}

// Reconciler keeps the persisted label preferences in line with the
// provider's label taxonomy. It is the only writer of label rows.
type Reconciler struct {
	store   repository.LabelSyncRepository
	clients ClientSource
}

func NewReconciler(store repository.LabelSyncRepository, clients ClientSource) *Reconciler {
	return &Reconciler{store: store, clients: clients}
}

// ListLabels returns the persisted labels, bootstrapping from the provider
// the first time a user has none
func (r *Reconciler) ListLabels(ctx context.Context, user *types.User) ([]types.LabelSyncState, error) {
	states, err := r.store.ListLabelStates(ctx, user.Id)
	if err != nil {
		return nil, fmt.Errorf("list label states: %w", err)
	}
	if len(states) > 0 {
		return states, nil
	}

	log.Debug().Str("user_id", user.Id).Msg("no labels stored, bootstrapping from gmail")
	return r.RefreshFromProvider(ctx, user)
}

// RefreshFromProvider fetches the provider's labels, stores new ones and
// returns the merged view
func (r *Reconciler) RefreshFromProvider(ctx context.Context, user *types.User) ([]types.LabelSyncState, error) {
	client, err := r.clients.GetAuthenticatedClient(ctx, user)
	if err != nil {
		return nil, err
	}

	provider, err := client.ListLabels(ctx)
	if err != nil {
		log.Warn().Str("user_id", user.Id).Err(err).Msg("failed to list gmail labels")
		return nil, err
	}

	if err := r.store.UpsertLabels(ctx, user.Id, provider); err != nil {
		return nil, fmt.Errorf("upsert labels: %w", err)
	}

	local, err := r.store.ListLabelStates(ctx, user.Id)
	if err != nil {
		return nil, fmt.Errorf("list label states: %w", err)
	}

	merged := Merge(user.Id, provider, local)
	log.Info().Str("user_id", user.Id).Int("labels", len(merged)).Msg("labels reconciled")
	return merged, nil
}

// SetSyncing toggles sync for labelIds and returns how many rows changed
func (r *Reconciler) SetSyncing(ctx context.Context, user *types.User, labelIds []string, isSyncing bool) (int, error) {
	if len(labelIds) == 0 {
		return 0, &types.ValidationError{Field: "labelIds", Message: "at least one label id is required"}
	}

	updated, err := r.store.SetLabelsSyncing(ctx, user.Id, labelIds, isSyncing)
	if err != nil {
		return 0, fmt.Errorf("set labels syncing: %w", err)
	}

	log.Info().
		Str("user_id", user.Id).
		Strs("label_ids", labelIds).
		Bool("is_syncing", isSyncing).
		Int("updated", updated).
		Msg("label sync settings updated")
	return updated, nil
}

// AutoEnableUserLabels turns on sync for every user-created label
func (r *Reconciler) AutoEnableUserLabels(ctx context.Context, user *types.User) (int, error) {
	states, err := r.ListLabels(ctx, user)
	if err != nil {
		return 0, err
	}

	ids := UserLabelIds(states)
	if len(ids) == 0 {
		return 0, nil
	}
	return r.SetSyncing(ctx, user, ids, true)
}

// SyncingLabels returns the labels selected for sync
func (r *Reconciler) SyncingLabels(ctx context.Context, user *types.User) ([]types.LabelSyncState, error) {
	states, err := r.store.ListSyncingLabels(ctx, user.Id)
	if err != nil {
		return nil, fmt.Errorf("list syncing labels: %w", err)
	}
	return states, nil
}

// MarkSynced records a completed sync of labelId
func (r *Reconciler) MarkSynced(ctx context.Context, user *types.User, labelId string, at time.Time) error {
	if err := r.store.SetLabelLastSynced(ctx, user.Id, labelId, at); err != nil {
		return fmt.Errorf("set label last synced: %w", err)
	}
	return nil
}
