// Package scheduleblock persists schedule blocks: one row per publisher,
// channel and aligned window start.
package scheduleblock

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sorrel/pkg/database"
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

// Repository handles schedule block persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new schedule block repository
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

type blockRow struct {
	Publisher string                                    `db:"publisher"`
	ChannelID string                                    `db:"channel_id"`
	Start     time.Time                                 `db:"block_start"`
	Entries   database.JSONB[[]models.ItemAndBroadcast] `db:"entries"`
}

// ResolveBlocks loads the blocks whose windows intersect the interval, in
// window order.
func (r *Repository) ResolveBlocks(ctx context.Context, publisher, channelID string, interval models.Interval) ([]models.ScheduleBlock, error) {
	ctx, span := tracing.StartSpan(ctx, "scheduleblock.Repository.ResolveBlocks")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("publisher", "channel_id", "block_start", "entries")
	sb.From("schedule_blocks")
	sb.Where(
		sb.Equal("publisher", publisher),
		sb.Equal("channel_id", channelID),
		sb.GreaterEqualThan("block_start", interval.Start.Truncate(time.Hour)),
		sb.LessThan("block_start", interval.End),
	)
	sb.OrderBy("block_start").Asc()

	query, args := sb.Build()
	var rows []blockRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to resolve schedule blocks")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve schedule blocks")
	}

	out := make([]models.ScheduleBlock, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.ScheduleBlock{
			Publisher: row.Publisher,
			ChannelID: row.ChannelID,
			Start:     row.Start,
			Entries:   row.Entries.Data,
		})
	}
	return out, nil
}

// WriteBlocks upserts the given blocks in one transaction. A block with no
// entries still gets a row, recording that its window was reconciled.
func (r *Repository) WriteBlocks(ctx context.Context, blocks []models.ScheduleBlock) error {
	ctx, span := tracing.StartSpan(ctx, "scheduleblock.Repository.WriteBlocks")
	defer span.End()

	if len(blocks) == 0 {
		return nil
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	for _, block := range blocks {
		entries := database.JSONB[[]models.ItemAndBroadcast]{Data: block.Entries}

		upsert := `INSERT INTO schedule_blocks (publisher, channel_id, block_start, entries, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (publisher, channel_id, block_start) DO UPDATE SET
				entries = EXCLUDED.entries,
				updated_at = EXCLUDED.updated_at`
		if _, err := tx.ExecContext(ctx, upsert,
			block.Publisher, block.ChannelID, block.Start, entries, time.Now().UTC(),
		); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to upsert schedule block")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to write schedule blocks")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit schedule block write")
	}

	r.logger.WithContext(ctx).WithField("blocks", len(blocks)).Debug("Wrote schedule blocks")
	return nil
}
