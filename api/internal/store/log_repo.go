package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"wasteiq/api/internal/classify"
	"wasteiq/api/internal/waste"
)

// DefaultHistoryLimit caps history queries when the caller passes no limit.
const DefaultHistoryLimit = 50

type LogRepo struct{ DB *sql.DB }

func NewLogRepo(db *sql.DB) *LogRepo { return &LogRepo{DB: db} }

// AppendLog stores one classification and returns its generated id.
func (r *LogRepo) AppendLog(ctx context.Context, e classify.LogEntry) (string, error) {
	alts := e.Alternatives
	if alts == nil {
		alts = []waste.Alternative{}
	}
	js, err := json.Marshal(alts)
	if err != nil {
		return "", fmt.Errorf("store: marshal alternatives: %w", err)
	}
	id := uuid.NewString()
	const q = `
insert into waste_logs (
  log_id, uid, object_name, waste_category, confidence,
  disposal_instructions, recycling_tip, alternatives, image_url, image_hash,
  mode, error, created_at
) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err = r.DB.ExecContext(ctx, q,
		id, e.UserID, e.ObjectName, e.Category.String(), e.Confidence,
		e.Instructions, e.Tip, string(js), e.ImageURL, e.ImageHash,
		string(e.Mode), e.Error, e.Timestamp.UTC(),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// History returns the newest logs first. An empty uid means every user.
func (r *LogRepo) History(ctx context.Context, uid string, limit int) ([]classify.LogEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	const cols = `select log_id, uid, object_name, waste_category, confidence,
       disposal_instructions, recycling_tip, alternatives, image_url, image_hash,
       mode, error, created_at
from waste_logs`
	var (
		rows *sql.Rows
		err  error
	)
	if uid == "" {
		rows, err = r.DB.QueryContext(ctx, cols+` order by created_at desc limit $1`, limit)
	} else {
		rows, err = r.DB.QueryContext(ctx, cols+` where uid = $1 order by created_at desc limit $2`, uid, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []classify.LogEntry{}
	for rows.Next() {
		var (
			e        classify.LogEntry
			category string
			mode     string
			alts     string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.ObjectName, &category, &e.Confidence,
			&e.Instructions, &e.Tip, &alts, &e.ImageURL, &e.ImageHash,
			&mode, &e.Error, &e.Timestamp); err != nil {
			return nil, err
		}
		if c, ok := waste.ParseCategory(category); ok {
			e.Category = c
		} else {
			e.Category = waste.General
		}
		e.BinColor = waste.AssignmentFor(e.Category).BinColor
		e.Mode = waste.Mode(mode)
		e.Timestamp = e.Timestamp.UTC()
		if err := json.Unmarshal([]byte(alts), &e.Alternatives); err != nil || e.Alternatives == nil {
			// a broken alternatives column does not hide the record
			e.Alternatives = []waste.Alternative{}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats counts logs per category.
type Stats struct {
	Total      int            `json:"total_classifications"`
	ByCategory map[string]int `json:"by_category"`
}

// Stats aggregates the logs of uid, or of every user when uid is empty.
func (r *LogRepo) Stats(ctx context.Context, uid string) (Stats, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if uid == "" {
		rows, err = r.DB.QueryContext(ctx,
			`select waste_category, count(*) from waste_logs group by waste_category`)
	} else {
		rows, err = r.DB.QueryContext(ctx,
			`select waste_category, count(*) from waste_logs where uid = $1 group by waste_category`, uid)
	}
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()

	st := Stats{ByCategory: map[string]int{}}
	for rows.Next() {
		var (
			cat string
			n   int
		)
		if err := rows.Scan(&cat, &n); err != nil {
			return Stats{}, err
		}
		st.ByCategory[cat] = n
		st.Total += n
	}
	return st, rows.Err()
}
