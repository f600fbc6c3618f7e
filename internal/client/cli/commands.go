package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	syncengine "github.com/plateful/plateful/internal/client/sync"
	"github.com/plateful/plateful/internal/common"
	"github.com/plateful/plateful/internal/model"
)

func (a *App) AddEntity(ctx context.Context) error {
	entityType, err := GetSimpleText(a.reader, "Entity type (e.g. restaurant)", os.Stdout)
	if err != nil {
		return err
	}
	name, err := GetSimpleText(a.reader, "Name", os.Stdout)
	if err != nil {
		return err
	}
	attrs, err := GetAttributes(a.reader, os.Stdout)
	if err != nil {
		return err
	}

	rec, err := a.app.CreateEntity(ctx, entityType, name, attrs)
	if err != nil {
		printlnFn("Failed to create entity:", err.Error())
		return err
	}

	printlnFn("Created entity", rec.ID, "(pending sync)")
	return nil
}

func (a *App) AddCuration(ctx context.Context, args []string) error {
	if len(args) != 1 {
		printlnFn("Usage: curate <entity-id>")
		return nil
	}

	if _, err := a.app.Get(ctx, model.CollectionEntities, args[0]); err != nil {
		printlnFn("Unknown entity:", args[0])
		return err
	}

	content, err := GetAttributes(a.reader, os.Stdout)
	if err != nil {
		return err
	}

	rec, err := a.app.CreateCuration(ctx, args[0], a.userName, content)
	if err != nil {
		printlnFn("Failed to create curation:", err.Error())
		return err
	}

	printlnFn("Created curation", rec.ID, "(pending sync)")
	return nil
}

func (a *App) List(ctx context.Context, args []string) error {
	col := model.CollectionEntities
	if len(args) > 0 && args[0] == "curations" {
		col = model.CollectionCurations
	}

	recs, err := a.app.List(ctx, col)
	if err != nil {
		printlnFn("Failed to list:", err.Error())
		return err
	}

	if len(recs) == 0 {
		printlnFn("No records")
		return nil
	}
	for _, rec := range recs {
		label := rec.Name
		if col == model.CollectionCurations {
			label = "on " + rec.EntityID
		}
		printlnFn(fmt.Sprintf("%s  %-30s v%d [%s]", rec.ID, label, rec.Version, rec.SyncState))
	}
	return nil
}

func parseCollectionArg(s string) (model.Collection, bool) {
	col := model.Collection(s)
	return col, col.Valid()
}

func (a *App) Show(ctx context.Context, args []string) error {
	if len(args) != 2 {
		printlnFn("Usage: show <entities|curations> <id>")
		return nil
	}
	col, ok := parseCollectionArg(args[0])
	if !ok {
		printlnFn("Unknown collection:", args[0])
		return nil
	}

	rec, err := a.app.Get(ctx, col, args[1])
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			printlnFn("Not found")
		} else {
			printlnFn("Failed to fetch:", err.Error())
		}
		return err
	}

	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	printlnFn(string(raw))
	if rec.SyncState == model.SyncStateError {
		printlnFn("Last sync error:", rec.SyncErrorDetail)
	}
	return nil
}

func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 2 {
		printlnFn("Usage: delete <entities|curations> <id>")
		return nil
	}
	col, ok := parseCollectionArg(args[0])
	if !ok {
		printlnFn("Unknown collection:", args[0])
		return nil
	}

	if err := a.app.Delete(ctx, col, args[1]); err != nil {
		printlnFn("Failed to delete:", err.Error())
		return err
	}
	printlnFn("Deleted (pending sync)")
	return nil
}

func (a *App) Sync(ctx context.Context) error {
	report, err := a.app.Sync(ctx)
	if err != nil {
		if errors.Is(err, common.ErrSyncInProgress) {
			printlnFn("A sync cycle is already running")
			return nil
		}
		printlnFn("Sync failed:", err.Error())
		if report == nil {
			return err
		}
	}

	printlnFn(fmt.Sprintf("Synced: %d pushed, %d pulled, %d conflicts (%d auto-resolved), %d discarded",
		report.Pushed, report.Pulled, report.Conflicts, report.AutoResolved, report.Discarded))
	for _, f := range report.Failed {
		printlnFn("  rejected:", string(f.Collection), f.ID, "-", f.Err.Error())
	}
	for _, f := range report.NeedsAttention {
		printlnFn("  will retry:", string(f.Collection), f.ID)
	}
	return err
}

func (a *App) Conflicts(ctx context.Context) error {
	for _, col := range model.Collections() {
		recs, err := a.app.Conflicts(ctx, col)
		if err != nil {
			printlnFn("Failed to list conflicts:", err.Error())
			return err
		}
		for _, rec := range recs {
			remoteVersion := "gone"
			if rec.RemoteSnapshot != nil {
				remoteVersion = fmt.Sprintf("v%d", rec.RemoteSnapshot.Version)
			}
			printlnFn(fmt.Sprintf("%s %s  local v%d, server %s", col, rec.ID, rec.Version, remoteVersion))
		}
	}
	return nil
}

func (a *App) Resolve(ctx context.Context, args []string) error {
	if len(args) != 3 {
		printlnFn("Usage: resolve <entities|curations> <id> <keepLocal|keepRemote>")
		return nil
	}
	col, ok := parseCollectionArg(args[0])
	if !ok {
		printlnFn("Unknown collection:", args[0])
		return nil
	}

	var choice syncengine.Choice
	switch args[2] {
	case "keepLocal":
		choice = syncengine.ChoiceKeepLocal
	case "keepRemote":
		choice = syncengine.ChoiceKeepRemote
	default:
		printlnFn("Unknown choice:", args[2])
		return nil
	}

	if err := a.app.Resolve(ctx, col, args[1], choice, nil); err != nil {
		printlnFn("Failed to resolve:", err.Error())
		return err
	}
	printlnFn("Resolved")
	return nil
}
