// Package mapper turns a free-form object label into a waste category.
//
// Strategies are tried in order and the first hit wins: exact table lookup,
// fuzzy match (WRatio >= cutoff), substring match, an optional remote
// tie-break, and finally General. Fuzzy and substring ties go to the key
// declared first in the table.
package mapper

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"wasteiq/api/internal/detect"
	"wasteiq/api/internal/fuzz"
	"wasteiq/api/internal/waste"
)

// TieBreaker asks a remote model for one of the six category strings.
type TieBreaker interface {
	ChooseCategory(ctx context.Context, label string) (string, error)
}

type Strategy string

const (
	StrategyExact     Strategy = "exact"
	StrategyFuzzy     Strategy = "fuzzy"
	StrategySubstring Strategy = "substring"
	StrategyRemote    Strategy = "remote"
	StrategyDefault   Strategy = "default"
)

type Options struct {
	FuzzyCutoff float64       // default 75
	RetryDelay  time.Duration // wait before the single tie-break retry; default 1s
	Timeout     time.Duration // per tie-break call; default 10s
}

func (o *Options) defaults() {
	if o.FuzzyCutoff <= 0 {
		o.FuzzyCutoff = 75
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
}

type Mapper struct {
	table *waste.LabelTable
	keys  []string
	tie   TieBreaker
	opts  Options
}

// New builds a mapper over table; tie may be nil.
func New(table *waste.LabelTable, tie TieBreaker, opts Options) *Mapper {
	if table == nil {
		table = waste.DefaultLabels()
	}
	opts.defaults()
	keys := make([]string, 0, table.Len())
	for _, e := range table.Entries() {
		keys = append(keys, e.Key)
	}
	return &Mapper{table: table, keys: keys, tie: tie, opts: opts}
}

// MapToCategory always returns a valid category.
func (m *Mapper) MapToCategory(ctx context.Context, label string, allowRemote bool) waste.Category {
	c, _ := m.Resolve(ctx, label, allowRemote)
	return c
}

// Resolve is MapToCategory plus the strategy that produced the answer.
func (m *Mapper) Resolve(ctx context.Context, label string, allowRemote bool) (waste.Category, Strategy) {
	lower := strings.ToLower(strings.TrimSpace(label))
	if lower == "" {
		return waste.General, StrategyDefault
	}

	if c, ok := m.table.Lookup(lower); ok {
		return c, StrategyExact
	}

	if hit, ok := fuzz.ExtractOne(lower, m.keys, m.opts.FuzzyCutoff); ok {
		slog.Debug("mapper: fuzzy match", "label", lower, "key", hit.Choice, "score", hit.Score)
		return m.table.Entries()[hit.Index].Category, StrategyFuzzy
	}

	if c, ok := m.substring(lower); ok {
		return c, StrategySubstring
	}

	if allowRemote && m.tie != nil {
		if c, ok := m.remote(ctx, label); ok {
			return c, StrategyRemote
		}
	}
	return waste.General, StrategyDefault
}

func (m *Mapper) substring(lower string) (waste.Category, bool) {
	entries := m.table.Entries()
	for _, e := range entries {
		if strings.Contains(lower, e.Key) {
			return e.Category, true
		}
	}
	for _, e := range entries {
		if strings.Contains(e.Key, lower) {
			return e.Category, true
		}
	}
	return 0, false
}

// remote makes at most two calls: one retry after RetryDelay, and only
// when the first call was rate limited.
func (m *Mapper) remote(ctx context.Context, label string) (waste.Category, bool) {
	for attempt := 1; attempt <= 2; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
		raw, err := m.tie.ChooseCategory(cctx, label)
		cancel()
		if err == nil {
			c, ok := waste.ParseCategory(raw)
			if !ok {
				slog.Warn("mapper: tie-break returned unknown category", "label", label, "category", raw)
			}
			return c, ok
		}
		err = detect.ClassifyError(err)
		if attempt == 1 && errors.Is(err, detect.ErrRateLimited) {
			slog.Warn("mapper: tie-break rate limited, retrying", "label", label)
			if detect.Sleep(ctx, m.opts.RetryDelay) != nil {
				return 0, false
			}
			continue
		}
		slog.Warn("mapper: tie-break failed", "label", label, "err", err)
		return 0, false
	}
	return 0, false
}
