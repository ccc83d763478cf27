// Package equivset persists materialised equivalence sets: one row per
// graph plus a membership index mapping each content id to its set.
package equivset

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/sorrel/pkg/database"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

// Repository handles equivalence set persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new equivalence set repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying database handle for transactional operations.
func (r *Repository) DB() database.DB {
	return r.db
}

// ReplaceRows writes the given set rows and drops rows for deleted set
// ids. Each member's previous set association is cleared in the same
// transaction, so a content id lives in at most one set at any point a
// reader can observe.
func (r *Repository) ReplaceRows(ctx context.Context, rows []models.EquivalenceSetRow, deleted []int64) error {
	ctx, span := tracing.StartSpan(ctx, "equivset.Repository.ReplaceRows")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	if len(deleted) > 0 {
		del := database.NewDeleteBuilder()
		del.DeleteFrom("equivalence_sets")
		del.Where(del.In("set_id", sqlbuilder.List(deleted)))
		query, args := del.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to delete equivalence sets")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace equivalence sets")
		}

		delMembers := database.NewDeleteBuilder()
		delMembers.DeleteFrom("equivalence_set_members")
		delMembers.Where(delMembers.In("set_id", sqlbuilder.List(deleted)))
		query, args = delMembers.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to delete equivalence set members")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace equivalence sets")
		}
	}

	for _, row := range rows {
		members, err := encodeMembers(row.Members)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to encode set members")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to encode equivalence set")
		}

		upsert := `INSERT INTO equivalence_sets (set_id, members, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (set_id) DO UPDATE SET
				members = EXCLUDED.members,
				updated_at = EXCLUDED.updated_at`
		if _, err := tx.ExecContext(ctx, upsert, row.SetID, members, row.UpdatedAt); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to upsert equivalence set")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace equivalence sets")
		}

		for _, member := range row.Members {
			if member.Core().ID == nil {
				continue
			}
			// Membership is unique per content id: moving a member here
			// removes it from whichever set held it before.
			link := `INSERT INTO equivalence_set_members (content_id, set_id)
				VALUES ($1, $2)
				ON CONFLICT (content_id) DO UPDATE SET set_id = EXCLUDED.set_id`
			if _, err := tx.ExecContext(ctx, link, *member.Core().ID, row.SetID); err != nil {
				r.logger.WithContext(ctx).WithError(err).Error("Failed to link set member")
				return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace equivalence sets")
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit equivalence set write")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"rows":    len(rows),
		"deleted": len(deleted),
	}).Debug("Replaced equivalence sets")
	return nil
}

// ResolveSetsForIDs maps each content id to the materialised set it
// belongs to. Ids outside any set are absent from the result.
func (r *Repository) ResolveSetsForIDs(ctx context.Context, ids []int64) (map[int64]models.EquivalenceSetRow, error) {
	ctx, span := tracing.StartSpan(ctx, "equivset.Repository.ResolveSetsForIDs")
	defer span.End()

	if len(ids) == 0 {
		return map[int64]models.EquivalenceSetRow{}, nil
	}

	sb := database.NewSelectBuilder()
	sb.Select("m.content_id", "s.set_id", "s.members")
	sb.From("equivalence_set_members m")
	sb.Join("equivalence_sets s", "s.set_id = m.set_id")
	sb.Where(sb.In("m.content_id", sqlbuilder.List(ids)))

	query, args := sb.Build()
	var rows []struct {
		ContentID int64  `db:"content_id"`
		SetID     int64  `db:"set_id"`
		Members   []byte `db:"members"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to resolve equivalence sets")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve equivalence sets")
	}

	out := make(map[int64]models.EquivalenceSetRow, len(rows))
	for _, row := range rows {
		members, err := decodeMembers(row.Members)
		if err != nil {
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to decode equivalence set")
		}
		out[row.ContentID] = models.EquivalenceSetRow{SetID: row.SetID, Members: members}
	}
	return out, nil
}

// ResolveSet loads a single set row by its set id.
func (r *Repository) ResolveSet(ctx context.Context, setID int64) (*models.EquivalenceSetRow, error) {
	ctx, span := tracing.StartSpan(ctx, "equivset.Repository.ResolveSet")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("set_id", "members")
	sb.From("equivalence_sets")
	sb.Where(sb.Equal("set_id", setID))

	query, args := sb.Build()
	var row struct {
		SetID   int64  `db:"set_id"`
		Members []byte `db:"members"`
	}
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "equivalence set %d not found", setID)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to resolve equivalence set")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve equivalence set")
	}

	members, err := decodeMembers(row.Members)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to decode equivalence set")
	}
	return &models.EquivalenceSetRow{SetID: row.SetID, Members: members}, nil
}

func encodeMembers(members []models.Content) ([]byte, error) {
	raw, err := models.MarshalContents(members)
	if err != nil {
		return nil, err
	}
	return json.Marshal(raw)
}

func decodeMembers(data []byte) ([]models.Content, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return models.UnmarshalContents(raw)
}
