package status

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/taskboard/internal/taskboard/model"
)

var (
	taskStatusTable = goqu.T("task_status")

	taskStatus_entityId = goqu.I("task_status.entity_id")
	taskStatus_status   = goqu.I("task_status.status")
	taskStatus_updated  = goqu.I("task_status.updated")
)

var validStatuses = func() map[model.ExternalStatus]bool {
	valid := map[model.ExternalStatus]bool{}
	for _, status := range model.AllExternalStatuses {
		valid[status] = true
	}
	return valid
}()

// SQLStatusRepository reads backend task statuses from postgres. The backend
// updates the task_status table on its own cadence, independently of the
// event feed, so statuses read here can lag or lead event-derived state.
type SQLStatusRepository struct {
	db      *pgxpool.Pool
	dialect goqu.DialectWrapper
}

func NewSQLStatusRepository(db *pgxpool.Pool) *SQLStatusRepository {
	return &SQLStatusRepository{
		db:      db,
		dialect: goqu.Dialect("postgres"),
	}
}

func (r *SQLStatusRepository) Lookup(ctx context.Context, entityId string) (model.ExternalStatus, bool, error) {
	query, args, err := r.dialect.
		From(taskStatusTable).
		Select(taskStatus_status).
		Where(taskStatus_entityId.Eq(entityId)).
		Order(taskStatus_updated.Desc()).
		Limit(1).
		Prepared(true).
		ToSQL()
	if err != nil {
		return "", false, errors.WithStack(err)
	}

	var status string
	err = r.db.QueryRow(ctx, query, args...).Scan(&status)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "failed to look up status for %s", entityId)
	}

	external := model.ExternalStatus(status)
	if !validStatuses[external] {
		// The backend vocabulary evolves independently; an unknown value
		// is treated as absent rather than guessed at.
		log.WithField("entityId", entityId).Warnf("unknown backend status %q", status)
		return "", false, nil
	}
	return external, true, nil
}
