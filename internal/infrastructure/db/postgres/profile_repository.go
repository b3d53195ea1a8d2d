package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zenspa/identity-service/internal/core/domain"
	"github.com/zenspa/identity-service/internal/core/ports"
)

const profileColumns = `id, user_id, full_name, avatar_url, phone, birth_date, created_at, updated_at`

type ProfileRepository struct {
	pool *pgxpool.Pool
}

func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

var _ ports.ProfileRepository = (*ProfileRepository)(nil)

func (r *ProfileRepository) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	p, err := scanProfile(r.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrProfileNotFound
	}
	if err != nil {
		return nil, wrap("get profile", err)
	}
	return p, nil
}

// EnsureProfile relies on the unique user_id: a concurrent insert that wins
// leaves ours as a no-op and the winner's row is returned.
func (r *ProfileRepository) EnsureProfile(ctx context.Context, userID, fullName string) (*domain.Profile, bool, error) {
	p, err := scanProfile(r.pool.QueryRow(ctx,
		`INSERT INTO profiles (id, user_id, full_name) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO NOTHING
		 RETURNING `+profileColumns,
		uuid.NewString(), userID, fullName))
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, wrap("ensure profile", err)
	}
	p, err = r.GetProfile(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return p, false, nil
}

func (r *ProfileRepository) UpdateProfile(ctx context.Context, userID string, upd domain.ProfileUpdate) (*domain.Profile, error) {
	var fullName *string
	if upd.FullName != nil {
		n := strings.TrimSpace(*upd.FullName)
		fullName = &n
	}
	p, err := scanProfile(r.pool.QueryRow(ctx,
		`UPDATE profiles SET
			full_name  = COALESCE($2, full_name),
			avatar_url = CASE WHEN $6 THEN NULL ELSE COALESCE($3, avatar_url) END,
			phone      = CASE WHEN $7 THEN NULL ELSE COALESCE($4, phone) END,
			birth_date = CASE WHEN $8 THEN NULL ELSE COALESCE($5, birth_date) END,
			updated_at = now()
		 WHERE user_id = $1
		 RETURNING `+profileColumns,
		userID, fullName, upd.AvatarURL, upd.Phone, upd.BirthDate,
		upd.ClearAvatarURL, upd.ClearPhone, upd.ClearBirthDate))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrProfileNotFound
	}
	if err != nil {
		return nil, wrap("update profile", err)
	}
	return p, nil
}

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	var p domain.Profile
	if err := row.Scan(&p.ID, &p.UserID, &p.FullName, &p.AvatarURL, &p.Phone, &p.BirthDate, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}
