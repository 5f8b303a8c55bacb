package mapper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/googleapi"

	"wasteiq/api/internal/waste"
)

type tieReply struct {
	cat string
	err error
}

type stubTie struct {
	mu      sync.Mutex
	replies []tieReply
	n       int
}

func (s *stubTie) ChooseCategory(ctx context.Context, label string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	if len(s.replies) == 0 {
		return "", errors.New("no reply scripted")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r.cat, r.err
}

func (s *stubTie) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

func table(t *testing.T, entries ...waste.Entry) *waste.LabelTable {
	t.Helper()
	tbl, err := waste.NewLabelTable(entries)
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

var quota = &googleapi.Error{Code: 429}

func TestResolveDefaultTable(t *testing.T) {
	t.Parallel()

	m := New(nil, nil, Options{})
	cases := []struct {
		label    string
		want     waste.Category
		strategy Strategy
	}{
		{"Banana Peel", waste.Wet, StrategyExact},
		{"  SMARTPHONE ", waste.EWaste, StrategyExact},
		{"bananaa", waste.Wet, StrategyFuzzy},
		{"hedfones", waste.EWaste, StrategyFuzzy},
		{"qqqq 12345", waste.General, StrategyDefault},
		{"", waste.General, StrategyDefault},
	}
	for _, tc := range cases {
		got, s := m.Resolve(context.Background(), tc.label, false)
		if got != tc.want || s != tc.strategy {
			t.Errorf("Resolve(%q) = %v/%s; want %v/%s", tc.label, got, s, tc.want, tc.strategy)
		}
	}
}

func TestExactNeverCallsRemote(t *testing.T) {
	t.Parallel()

	tie := &stubTie{replies: []tieReply{{cat: "E-Waste"}}}
	m := New(nil, tie, Options{})
	if got := m.MapToCategory(context.Background(), "banana peel", true); got != waste.Wet {
		t.Fatalf("got %v", got)
	}
	if tie.calls() != 0 {
		t.Errorf("tie-breaker called %d times", tie.calls())
	}
}

func TestFuzzyTieGoesToFirstKey(t *testing.T) {
	t.Parallel()

	entries := []waste.Entry{
		{Key: "jug", Category: waste.Recyclable},
		{Key: "rug", Category: waste.Dry},
	}
	// "mug" is one edit from both keys
	m := New(table(t, entries...), nil, Options{FuzzyCutoff: 60})
	got, s := m.Resolve(context.Background(), "mug", false)
	if got != waste.Recyclable || s != StrategyFuzzy {
		t.Fatalf("got %v/%s", got, s)
	}

	entries[0], entries[1] = entries[1], entries[0]
	m = New(table(t, entries...), nil, Options{FuzzyCutoff: 60})
	if got := m.MapToCategory(context.Background(), "mug", false); got != waste.Dry {
		t.Fatalf("reordered table: got %v", got)
	}
}

func TestSubstring(t *testing.T) {
	t.Parallel()

	t.Run("label contains key", func(t *testing.T) {
		t.Parallel()
		m := New(table(t, waste.Entry{Key: "tv", Category: waste.EWaste}), nil, Options{})
		got, s := m.Resolve(context.Background(), "old broken tv set", false)
		if got != waste.EWaste || s != StrategySubstring {
			t.Fatalf("got %v/%s", got, s)
		}
	})
	t.Run("declaration order wins", func(t *testing.T) {
		t.Parallel()
		m := New(table(t,
			waste.Entry{Key: "can", Category: waste.Recyclable},
			waste.Entry{Key: "cup", Category: waste.Dry},
		), nil, Options{})
		got, s := m.Resolve(context.Background(), "a large paper cup with a can inside", false)
		if got != waste.Recyclable || s != StrategySubstring {
			t.Fatalf("got %v/%s", got, s)
		}
	})
	t.Run("key contains label", func(t *testing.T) {
		t.Parallel()
		m := New(table(t, waste.Entry{Key: "ultra compact rechargeable pack", Category: waste.EWaste}), nil, Options{})
		got, s := m.Resolve(context.Background(), "pac", false)
		if got != waste.EWaste || s != StrategySubstring {
			t.Fatalf("got %v/%s", got, s)
		}
	})
}

func TestRemoteTieBreak(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		replies []tieReply
		want    waste.Category
		strat   Strategy
		calls   int
	}{
		{"valid category", []tieReply{{cat: "Hazardous Waste"}}, waste.Hazardous, StrategyRemote, 1},
		{"unknown category", []tieReply{{cat: "Compost"}}, waste.General, StrategyDefault, 1},
		{"rate limit then ok", []tieReply{{err: quota}, {cat: "E-Waste"}}, waste.EWaste, StrategyRemote, 2},
		{"rate limit twice", []tieReply{{err: quota}, {err: quota}, {cat: "E-Waste"}}, waste.General, StrategyDefault, 2},
		{"other error", []tieReply{{err: errors.New("boom")}, {cat: "E-Waste"}}, waste.General, StrategyDefault, 1},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tie := &stubTie{replies: tc.replies}
			m := New(nil, tie, Options{RetryDelay: time.Millisecond})
			got, s := m.Resolve(context.Background(), "qqqq 12345", true)
			if got != tc.want || s != tc.strat {
				t.Errorf("got %v/%s; want %v/%s", got, s, tc.want, tc.strat)
			}
			if tie.calls() != tc.calls {
				t.Errorf("calls = %d, want %d", tie.calls(), tc.calls)
			}
		})
	}
}

func TestRemoteDisallowed(t *testing.T) {
	t.Parallel()

	tie := &stubTie{replies: []tieReply{{cat: "E-Waste"}}}
	m := New(nil, tie, Options{})
	if got := m.MapToCategory(context.Background(), "qqqq 12345", false); got != waste.General {
		t.Fatalf("got %v", got)
	}
	if tie.calls() != 0 {
		t.Errorf("tie-breaker must not be called when remote is disallowed")
	}
}
