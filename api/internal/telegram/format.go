package telegram

import (
	"fmt"
	"sort"
	"strings"

	"wasteiq/api/internal/classify"
	"wasteiq/api/internal/store"
	"wasteiq/api/internal/waste"
)

// FormatEntry renders one classification as a Markdown reply.
func FormatEntry(e classify.LogEntry) string {
	if e.Mode == waste.ModeError {
		msg := "⚠️ I could not classify this photo right now. Please try again in a minute."
		if e.Error != "" {
			msg += "\n_" + esc(e.Error) + "_"
		}
		return msg
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s* (%.1f%%)\n", esc(e.ObjectName), e.Confidence)
	fmt.Fprintf(&b, "Category: *%s*, %s bin\n\n", esc(e.Category.String()), waste.AssignmentFor(e.Category).Bin)
	b.WriteString("🗑 ")
	b.WriteString(esc(e.Instructions))
	b.WriteString("\n💡 ")
	b.WriteString(esc(e.Tip))
	if len(e.Alternatives) > 0 {
		b.WriteString("\n\nAlso possible: ")
		for i, a := range e.Alternatives {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s %.1f%%", esc(a.Name), a.Confidence)
		}
	}
	if e.Mode == waste.ModeLocal {
		b.WriteString("\n\n_offline model_")
	}
	if e.PointsAwarded > 0 {
		fmt.Fprintf(&b, "\n\n+%d points", e.PointsAwarded)
	}
	return b.String()
}

func FormatHistory(logs []classify.LogEntry) string {
	if len(logs) == 0 {
		return "No classifications yet. Send a photo to start."
	}
	var b strings.Builder
	b.WriteString("*Recent classifications*\n")
	for _, e := range logs {
		fmt.Fprintf(&b, "%s  %s → %s\n", e.Timestamp.Format("02 Jan 15:04"), esc(e.ObjectName), esc(e.Category.String()))
	}
	return b.String()
}

// FormatStats lists categories by count, ties alphabetically.
func FormatStats(st store.Stats) string {
	if st.Total == 0 {
		return "No classifications yet."
	}
	cats := make([]string, 0, len(st.ByCategory))
	for c := range st.ByCategory {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool {
		if st.ByCategory[cats[i]] != st.ByCategory[cats[j]] {
			return st.ByCategory[cats[i]] > st.ByCategory[cats[j]]
		}
		return cats[i] < cats[j]
	})
	var b strings.Builder
	fmt.Fprintf(&b, "*%d classifications*\n", st.Total)
	for _, c := range cats {
		fmt.Fprintf(&b, "%s: %d\n", esc(c), st.ByCategory[c])
	}
	return b.String()
}

func FormatProfile(p store.Profile) string {
	return fmt.Sprintf("🏅 Level: *%s*\nTotal points: %d\nThis week: %d", esc(p.Level), p.TotalPoints, p.WeeklyPoints)
}

// esc escapes legacy Markdown control characters.
func esc(s string) string {
	s = strings.ReplaceAll(s, "`", "'")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "[", "\\[")
	return s
}
