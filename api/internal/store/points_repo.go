package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// levels are checked top-down; the first threshold reached wins.
var levels = []struct {
	min  int
	name string
}{
	{2500, "Legend"},
	{1000, "Champion"},
	{500, "Warrior"},
	{200, "Guardian"},
	{50, "Starter"},
	{0, "Beginner"},
}

// LevelFor names the level reached with total points.
func LevelFor(total int) string {
	for _, l := range levels {
		if total >= l.min {
			return l.name
		}
	}
	return "Beginner"
}

// Profile is the gamification row of one user.
type Profile struct {
	UserID       string    `json:"uid"`
	TotalPoints  int       `json:"total_points"`
	WeeklyPoints int       `json:"weekly_points"`
	Level        string    `json:"level"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type PointsRepo struct {
	DB  *sql.DB
	now func() time.Time
}

func NewPointsRepo(db *sql.DB) *PointsRepo { return &PointsRepo{DB: db, now: time.Now} }

// AwardPoints creates the row on the first award and increments the total
// and weekly counters afterwards.
func (r *PointsRepo) AwardPoints(ctx context.Context, uid string, amount int, reason string) error {
	if uid == "" {
		return errors.New("store: empty uid")
	}
	if amount <= 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const upsert = `
insert into gamification (uid, total_points, weekly_points, level, last_reason, updated_at)
values ($1, $2, $2, 'Beginner', $3, $4)
on conflict (uid) do update
set total_points  = gamification.total_points + excluded.total_points,
    weekly_points = gamification.weekly_points + excluded.weekly_points,
    last_reason   = excluded.last_reason,
    updated_at    = excluded.updated_at`
	if _, err := tx.ExecContext(ctx, upsert, uid, amount, reason, r.now().UTC()); err != nil {
		return err
	}

	var total int
	if err := tx.QueryRowContext(ctx, `select total_points from gamification where uid = $1`, uid).Scan(&total); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `update gamification set level = $1 where uid = $2`, LevelFor(total), uid); err != nil {
		return err
	}
	return tx.Commit()
}

// Profile returns ErrNotFound for users that never earned points.
func (r *PointsRepo) Profile(ctx context.Context, uid string) (Profile, error) {
	const q = `select uid, total_points, weekly_points, level, updated_at from gamification where uid = $1`
	var p Profile
	if err := r.DB.QueryRowContext(ctx, q, uid).Scan(&p.UserID, &p.TotalPoints, &p.WeeklyPoints, &p.Level, &p.UpdatedAt); err != nil {
		return Profile{}, err
	}
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}
