package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zenspa/identity-service/internal/core/domain"
	"github.com/zenspa/identity-service/internal/core/ports"
)

const assignmentColumns = `id, user_id, role, assigned_at, assigned_by, is_primary`

// RoleRepository stores role assignments in user_roles and writes the
// matching audit_logs row in the same transaction.
type RoleRepository struct {
	pool *pgxpool.Pool
}

func NewRoleRepository(pool *pgxpool.Pool) *RoleRepository {
	return &RoleRepository{pool: pool}
}

var _ ports.RoleRepository = (*RoleRepository)(nil)

func (r *RoleRepository) Assign(ctx context.Context, p ports.AssignRoleParams) (domain.AssignResult, error) {
	var res domain.AssignResult
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		// 1. Serialise primary flips for this user. Duplicate inserts are
		// settled by the (user_id, role) key in insertAssignment.
		if err := lockUser(ctx, tx, p.UserID); err != nil {
			return err
		}

		// 2. Existing row: promote or report as-is.
		existing, err := getAssignment(ctx, tx, p.UserID, p.Role)
		switch {
		case err == nil:
			if !p.IsPrimary || existing.IsPrimary {
				res = domain.AssignResult{Assignment: *existing, Outcome: domain.AssignAlreadyExists}
				return nil
			}
			if err := promote(ctx, tx, existing); err != nil {
				return err
			}
			res = domain.AssignResult{Assignment: *existing, Outcome: domain.AssignPromoted}
		case errors.Is(err, pgx.ErrNoRows):
			// 3. Insert under a savepoint so a lost race leaves the tx usable.
			created, inserted, err := insertAssignment(ctx, tx, p)
			if err != nil {
				return err
			}
			if !inserted {
				winner, err := getAssignment(ctx, tx, p.UserID, p.Role)
				if err != nil {
					return err
				}
				res = domain.AssignResult{Assignment: *winner, Outcome: domain.AssignAlreadyExists}
				return nil
			}
			res = domain.AssignResult{Assignment: *created, Outcome: domain.AssignCreated}
		default:
			return err
		}

		// 4. Audit in the same transaction.
		_, err = insertAudit(ctx, tx, domain.RoleAssignedEvent(res.Assignment, res.Outcome, p.Reason, p.Source, p.Meta))
		return err
	})
	if err != nil {
		return domain.AssignResult{}, wrap("assign role", err)
	}
	return res, nil
}

func (r *RoleRepository) Revoke(ctx context.Context, p ports.RevokeRoleParams) (bool, error) {
	var removed bool
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockUser(ctx, tx, p.UserID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role = $2`, p.UserID, string(p.Role))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		removed = true
		_, err = insertAudit(ctx, tx, domain.RoleRevokedEvent(p.UserID, p.Role, p.RevokedBy, p.Reason, p.Meta))
		return err
	})
	if err != nil {
		return false, wrap("revoke role", err)
	}
	return removed, nil
}

func (r *RoleRepository) ListRoles(ctx context.Context, userID string) ([]domain.RoleAssignment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+assignmentColumns+` FROM user_roles WHERE user_id = $1
		 ORDER BY is_primary DESC, assigned_at, role`, userID)
	if err != nil {
		return nil, wrap("list roles", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.RoleAssignment, error) {
		a, err := scanAssignment(row)
		if err != nil {
			return domain.RoleAssignment{}, err
		}
		return *a, nil
	})
	if err != nil {
		return nil, wrap("list roles", err)
	}
	domain.SortAssignments(out)
	return out, nil
}

func getAssignment(ctx context.Context, q querier, userID string, role domain.Role) (*domain.RoleAssignment, error) {
	return scanAssignment(q.QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM user_roles WHERE user_id = $1 AND role = $2`, userID, string(role)))
}

func promote(ctx context.Context, tx pgx.Tx, a *domain.RoleAssignment) error {
	if err := clearPrimary(ctx, tx, a.UserID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE user_roles SET is_primary = true WHERE id = $1`, a.ID); err != nil {
		return fmt.Errorf("promote: %w", err)
	}
	a.IsPrimary = true
	return nil
}

func clearPrimary(ctx context.Context, tx pgx.Tx, userID string) error {
	if _, err := tx.Exec(ctx, `UPDATE user_roles SET is_primary = false WHERE user_id = $1 AND is_primary`, userID); err != nil {
		return fmt.Errorf("clear primary: %w", err)
	}
	return nil
}

// insertAssignment reports inserted=false when the (user_id, role) key
// already exists, including when a concurrent transaction committed the same
// row first. Clearing the previous primary is rolled back with it. It does
// not depend on lockUser.
func insertAssignment(ctx context.Context, tx pgx.Tx, p ports.AssignRoleParams) (*domain.RoleAssignment, bool, error) {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("savepoint: %w", err)
	}
	if p.IsPrimary {
		if err := clearPrimary(ctx, sp, p.UserID); err != nil {
			_ = sp.Rollback(ctx)
			return nil, false, err
		}
	}
	a, err := scanAssignment(sp.QueryRow(ctx,
		`INSERT INTO user_roles (id, user_id, role, assigned_by, is_primary)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+assignmentColumns,
		uuid.NewString(), p.UserID, string(p.Role), p.AssignedBy, p.IsPrimary))
	if err != nil {
		_ = sp.Rollback(ctx)
		if isUniqueViolation(err, userRoleKey) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("insert role: %w", err)
	}
	if err := sp.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("release savepoint: %w", err)
	}
	return a, true, nil
}

func scanAssignment(row pgx.Row) (*domain.RoleAssignment, error) {
	var (
		a    domain.RoleAssignment
		role string
	)
	if err := row.Scan(&a.ID, &a.UserID, &role, &a.AssignedAt, &a.AssignedBy, &a.IsPrimary); err != nil {
		return nil, err
	}
	a.Role = domain.Role(role)
	a.AssignedAt = a.AssignedAt.UTC()
	return &a, nil
}
