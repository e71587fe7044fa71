package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/openedu/course-service/internal/models"
	"github.com/openedu/course-service/internal/repositories"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// translateConstraint converts postgres unique/foreign-key violations into
// repositories.ConstraintError so services can map the violated constraint
// name to a descriptive conflict. Anything else passes through unchanged.
func translateConstraint(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return &repositories.ConstraintError{Constraint: pgErr.ConstraintName, Unique: true, Err: err}
		case pgForeignKeyViolation:
			return &repositories.ConstraintError{Constraint: pgErr.ConstraintName, Unique: false, Err: err}
		}
	}
	return err
}

// SharedHelpers contains the ordered-sequence operations shared by the unit,
// topic and question repositories. Each caller binds it to one (model, scope
// column, order column) triple.
type SharedHelpers struct {
	db *gorm.DB
}

func NewSharedHelpers(db *gorm.DB) *SharedHelpers {
	return &SharedHelpers{db: db}
}

// sequenceColumns identifies one orderable content level.
type sequenceColumns struct {
	model       interface{}
	scopeColumn string // e.g. "course_id"
	orderColumn string // "content_order" or "problem_number"
	nameColumn  string // empty when the level has no name (questions)
}

func (h *SharedHelpers) park(ctx context.Context, sc sequenceColumns, id uint) error {
	res := h.db.WithContext(ctx).
		Model(sc.model).
		Where("id = ? AND active = ?", id, true).
		Update(sc.orderColumn, models.SentinelContentOrder)
	if res.Error != nil {
		return translateConstraint(res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (h *SharedHelpers) place(ctx context.Context, sc sequenceColumns, id uint, scopeID uint, order int) error {
	res := h.db.WithContext(ctx).
		Model(sc.model).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			sc.orderColumn: order,
			sc.scopeColumn: scopeID,
		})
	if res.Error != nil {
		return translateConstraint(res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// shiftDown pulls every active order in (after, sentinel) down by one. The
// window is negated first and flipped back second so that no intermediate
// write collides with an untouched row under the unique order constraint.
func (h *SharedHelpers) shiftDown(ctx context.Context, sc sequenceColumns, scopeID uint, after int) error {
	negate := h.db.WithContext(ctx).
		Model(sc.model).
		Where(fmt.Sprintf("%s = ? AND active = ? AND %s > ? AND %s < ?",
			sc.scopeColumn, sc.orderColumn, sc.orderColumn),
			scopeID, true, after, models.SentinelContentOrder).
		Update(sc.orderColumn, gorm.Expr(fmt.Sprintf("-(%s - 1)", sc.orderColumn)))
	if negate.Error != nil {
		return translateConstraint(negate.Error)
	}
	return h.fixNegatives(ctx, sc, scopeID)
}

// shiftUp pushes every active order in [from, sentinel) up by one, with the
// same negate-then-fix two-step.
func (h *SharedHelpers) shiftUp(ctx context.Context, sc sequenceColumns, scopeID uint, from int) error {
	negate := h.db.WithContext(ctx).
		Model(sc.model).
		Where(fmt.Sprintf("%s = ? AND active = ? AND %s >= ? AND %s < ?",
			sc.scopeColumn, sc.orderColumn, sc.orderColumn),
			scopeID, true, from, models.SentinelContentOrder).
		Update(sc.orderColumn, gorm.Expr(fmt.Sprintf("-(%s + 1)", sc.orderColumn)))
	if negate.Error != nil {
		return translateConstraint(negate.Error)
	}
	return h.fixNegatives(ctx, sc, scopeID)
}

func (h *SharedHelpers) fixNegatives(ctx context.Context, sc sequenceColumns, scopeID uint) error {
	fix := h.db.WithContext(ctx).
		Model(sc.model).
		Where(fmt.Sprintf("%s = ? AND active = ? AND %s < 0", sc.scopeColumn, sc.orderColumn),
			scopeID, true).
		Update(sc.orderColumn, gorm.Expr(fmt.Sprintf("-%s", sc.orderColumn)))
	return translateConstraint(fix.Error)
}

func (h *SharedHelpers) maxOrder(ctx context.Context, sc sequenceColumns, scopeID uint) (int, error) {
	var max int
	err := h.db.WithContext(ctx).
		Model(sc.model).
		Where(fmt.Sprintf("%s = ? AND active = ? AND %s < ?", sc.scopeColumn, sc.orderColumn),
			scopeID, true, models.SentinelContentOrder).
		Select(fmt.Sprintf("COALESCE(MAX(%s), 0)", sc.orderColumn)).
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max, nil
}

// nextDeletedOffset looks at every row in the scope, deleted ones included,
// so offsets grow monotonically and are never reused.
func (h *SharedHelpers) nextDeletedOffset(ctx context.Context, sc sequenceColumns, scopeID uint) (int, error) {
	var max int
	err := h.db.WithContext(ctx).
		Model(sc.model).
		Where(fmt.Sprintf("%s = ?", sc.scopeColumn), scopeID).
		Select(fmt.Sprintf("COALESCE(MAX(%s), 0)", sc.orderColumn)).
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// deactivate soft-deletes one active row: flips active, pushes the order out
// of the active range by offset, and tags the name (when the level has one)
// so it cannot collide with a future active row.
func (h *SharedHelpers) deactivate(ctx context.Context, sc sequenceColumns, id uint, offset int) (int64, error) {
	updates := map[string]interface{}{
		"active":       false,
		sc.orderColumn: gorm.Expr(fmt.Sprintf("%s + ?", sc.orderColumn), offset),
	}
	if sc.nameColumn != "" {
		updates[sc.nameColumn] = gorm.Expr(fmt.Sprintf("%s || '-deleted-' || ?", sc.nameColumn), offset)
	}
	res := h.db.WithContext(ctx).
		Model(sc.model).
		Where("id = ? AND active = ?", id, true).
		Updates(updates)
	if res.Error != nil {
		return 0, translateConstraint(res.Error)
	}
	return res.RowsAffected, nil
}
