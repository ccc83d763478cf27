// Package content persists the canonical content table and its alias
// index.
package content

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/sorrel/pkg/database"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

// Repository handles content persistence. It backs both sides of the write
// engine: resolution by id or alias, and versioned writes.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new content repository
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

type contentRow struct {
	ID      int64  `db:"id"`
	Payload []byte `db:"payload"`
}

// ResolveIDs loads full content by id. Missing ids are simply absent from
// the result.
func (r *Repository) ResolveIDs(ctx context.Context, ids []int64) ([]models.Content, error) {
	ctx, span := tracing.StartSpan(ctx, "content.Repository.ResolveIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	sb := database.NewSelectBuilder()
	sb.Select("id", "payload")
	sb.From("contents")
	sb.Where(sb.In("id", sqlbuilder.List(ids)))

	query, args := sb.Build()
	var rows []contentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to resolve content by id")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve content")
	}

	return decodeRows(rows)
}

// ResolveAliases loads a publisher's content matching any of the given
// aliases.
func (r *Repository) ResolveAliases(ctx context.Context, publisher string, aliases []models.Alias) ([]models.Content, error) {
	ctx, span := tracing.StartSpan(ctx, "content.Repository.ResolveAliases")
	defer span.End()

	if len(aliases) == 0 {
		return nil, nil
	}

	sb := database.NewSelectBuilder()
	sb.Select("c.id", "c.payload")
	sb.From("contents c")
	sb.Join("content_aliases a", "a.content_id = c.id")
	conds := make([]string, 0, len(aliases))
	for _, alias := range aliases {
		conds = append(conds, sb.And(
			sb.Equal("a.namespace", alias.Namespace),
			sb.Equal("a.value", alias.Value),
		))
	}
	sb.Where(
		sb.Equal("c.publisher", publisher),
		sb.Or(conds...),
	)
	sb.GroupBy("c.id", "c.payload")

	query, args := sb.Build()
	var rows []contentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to resolve content by alias")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve content")
	}

	return decodeRows(rows)
}

// WriteContent upserts a content version and rebuilds its alias index in
// one transaction. previous is unused by the Postgres layer; the engine
// has already decided the write is not a no-op.
func (r *Repository) WriteContent(ctx context.Context, content, _ models.Content) error {
	ctx, span := tracing.StartSpan(ctx, "content.Repository.WriteContent")
	defer span.End()

	core := content.Core()
	if core.ID == nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "content must carry an id before persistence")
	}

	payload, err := models.MarshalContent(content)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to encode content")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to encode content")
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	upsert := `INSERT INTO contents (id, publisher, type, payload, first_seen, last_updated, this_or_child_last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			payload = EXCLUDED.payload,
			last_updated = EXCLUDED.last_updated,
			this_or_child_last_updated = EXCLUDED.this_or_child_last_updated`
	if _, err := tx.ExecContext(ctx, upsert,
		*core.ID, core.Publisher, string(content.Type()), payload,
		core.FirstSeen, core.LastUpdated, core.ThisOrChildLastUpdated,
	); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to upsert content")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to write content")
	}

	del := database.NewDeleteBuilder()
	del.DeleteFrom("content_aliases")
	del.Where(del.Equal("content_id", *core.ID))
	query, args := del.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to clear content aliases")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to write content")
	}

	if len(core.Aliases) > 0 {
		ins := database.NewInsertBuilder()
		ins.InsertInto("content_aliases")
		ins.Cols("content_id", "publisher", "namespace", "value")
		for _, alias := range core.Aliases {
			ins.Values(*core.ID, core.Publisher, alias.Namespace, alias.Value)
		}
		query, args = ins.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to write content aliases")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to write content")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit content write")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"content_id": *core.ID,
		"publisher":  core.Publisher,
	}).Debug("Wrote content")
	return nil
}

// ListUpdatedSince pages content whose hierarchy changed after the given
// instant, ordered by update time then id.
func (r *Repository) ListUpdatedSince(ctx context.Context, since time.Time, limit int) ([]models.Content, error) {
	ctx, span := tracing.StartSpan(ctx, "content.Repository.ListUpdatedSince")
	defer span.End()

	if limit <= 0 || limit > 500 {
		limit = 500
	}

	sb := database.NewSelectBuilder()
	sb.Select("id", "payload")
	sb.From("contents")
	sb.Where(sb.GreaterThan("this_or_child_last_updated", since))
	sb.OrderBy("this_or_child_last_updated", "id").Asc()
	sb.Limit(limit)

	query, args := sb.Build()
	var rows []contentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list updated content")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list content")
	}

	return decodeRows(rows)
}

func decodeRows(rows []contentRow) ([]models.Content, error) {
	out := make([]models.Content, 0, len(rows))
	for _, row := range rows {
		content, err := models.UnmarshalContent(row.Payload)
		if err != nil {
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to decode stored content")
		}
		out = append(out, content)
	}
	return out, nil
}
