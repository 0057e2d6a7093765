package migration

import (
	"context"
	"log/slog"

	"github.com/crestwave/acs/internal/datamodel"
	"github.com/crestwave/acs/internal/domain"
)

// Reconciler handles the identity split a data-model migration can cause:
// some units change OUI across the switch, so the post-migration inform
// registers under a brand-new device key while the pre-migration record
// lingers with the backups, credentials, and subscriber binding.
type Reconciler struct {
	devices domain.DeviceRepository
	params  domain.ParameterRepository
	merger  domain.MergeRunner
	log     *slog.Logger
}

func NewReconciler(devices domain.DeviceRepository, params domain.ParameterRepository, merger domain.MergeRunner, log *slog.Logger) *Reconciler {
	return &Reconciler{devices: devices, params: params, merger: merger, log: log}
}

// Reconcile looks for a predecessor record of the given device and, if one
// is found, merges its history into the successor atomically. The successor
// is the record that just informed; the predecessor is a sibling sharing
// serial number and product class under a different key, still on TR-098 or
// still tagged migration-pending.
//
// All mutations run in one transaction: a failure mid-merge leaves both
// records exactly as they were.
func (r *Reconciler) Reconcile(ctx context.Context, successor *domain.Device) (*domain.MergeResult, error) {
	siblings, err := r.devices.FindSiblings(ctx, successor.SerialNumber, successor.ProductClass, successor.DeviceKey)
	if err != nil {
		return nil, err
	}

	var predecessor *domain.Device
	for _, sib := range siblings {
		if sib.HasTag(TagMigrationPending) {
			predecessor = sib
			break
		}
		rows, err := r.params.GetAll(ctx, sib.ID)
		if err != nil {
			return nil, err
		}
		if datamodel.Infer(rows) == domain.DataModelTR098 {
			predecessor = sib
			break
		}
	}
	if predecessor == nil {
		return &domain.MergeResult{Merged: false, SuccessorID: successor.ID}, nil
	}

	res := &domain.MergeResult{
		PredecessorID: predecessor.ID,
		SuccessorID:   successor.ID,
	}

	err = r.merger.RunMerge(ctx, func(tx domain.MergeTx) error {
		moved, err := tx.TransferBackups(ctx, predecessor.ID, successor.ID)
		if err != nil {
			return err
		}
		res.BackupsTransferred = moved

		if predecessor.ConnectionRequestUser != "" && successor.ConnectionRequestUser == "" {
			if err := tx.CopyConnectionCredentials(ctx, predecessor.ID, successor.ID); err != nil {
				return err
			}
			res.CredentialsCopied = true
		}

		if predecessor.SubscriberID != "" && successor.SubscriberID == "" {
			if err := tx.CopySubscriber(ctx, predecessor.ID, successor.ID); err != nil {
				return err
			}
			res.SubscriberCopied = true
		}

		if err := tx.UpdateTags(ctx, predecessor.ID, predecessor.WithTag(TagMigrationSuperseded)); err != nil {
			return err
		}
		if err := tx.UpdateTags(ctx, successor.ID, successor.WithTag(TagMigrated)); err != nil {
			return err
		}
		return tx.SetOffline(ctx, predecessor.ID)
	})
	if err != nil {
		// Rolled back; report what was attempted but claim nothing.
		failed := &domain.MergeResult{
			PredecessorID: predecessor.ID,
			SuccessorID:   successor.ID,
			Err:           err.Error(),
		}
		r.log.Error("identity merge rolled back",
			"predecessor", predecessor.DeviceKey, "successor", successor.DeviceKey, "error", err)
		return failed, err
	}

	res.Merged = true
	r.log.Info("identity merge complete",
		"predecessor", predecessor.DeviceKey,
		"successor", successor.DeviceKey,
		"backups", res.BackupsTransferred,
		"credentials", res.CredentialsCopied,
		"subscriber", res.SubscriberCopied)
	return res, nil
}
