package classify

import (
	"context"
	"log/slog"
	"time"

	"wasteiq/api/internal/imagenorm"
	"wasteiq/api/internal/waste"
)

const (
	// PointsPerClassification is awarded for every non-error result.
	PointsPerClassification = 5
	PointsReason            = "Waste classification"
)

// Request is one image submitted by a user.
type Request struct {
	Image    []byte
	UserID   string
	ImageURL string
}

// LogEntry is the persisted record of one classification.
type LogEntry struct {
	ID           string              `json:"log_id"`
	UserID       string              `json:"uid"`
	ObjectName   string              `json:"object_name"`
	Category     waste.Category      `json:"waste_category"`
	Confidence   float64             `json:"confidence"`
	Instructions string              `json:"disposal_instructions"`
	Tip          string              `json:"recycling_tip"`
	BinColor     string              `json:"bin_color"`
	Alternatives []waste.Alternative `json:"alternatives"`
	ImageURL     string              `json:"image_url"`
	ImageHash    string              `json:"image_hash,omitempty"`
	Timestamp    time.Time           `json:"timestamp"`
	Mode         waste.Mode          `json:"mode"`
	Error        string              `json:"error,omitempty"`

	// PointsAwarded is what this request credited; 0 when nothing was.
	PointsAwarded int `json:"points_awarded"`
}

// LogStore persists classification records and returns the new record id.
type LogStore interface {
	AppendLog(ctx context.Context, e LogEntry) (string, error)
}

// Points credits gamification points to a user.
type Points interface {
	AwardPoints(ctx context.Context, uid string, amount int, reason string) error
}

type Classifier interface {
	Classify(ctx context.Context, img []byte) waste.Result
}

// Service classifies an image and records the outcome. Store and points
// failures are logged and never reach the caller.
type Service struct {
	clf    Classifier
	logs   LogStore
	points Points
	now    func() time.Time
}

// NewService wires the collaborators; logs and points may be nil.
func NewService(clf Classifier, logs LogStore, points Points) *Service {
	return &Service{clf: clf, logs: logs, points: points, now: time.Now}
}

func (s *Service) ClassifyAndSave(ctx context.Context, req Request) LogEntry {
	res := s.clf.Classify(ctx, req.Image)

	entry := LogEntry{
		UserID:       req.UserID,
		ObjectName:   res.ObjectName,
		Category:     res.Category,
		Confidence:   res.Confidence,
		Instructions: res.Instructions,
		Tip:          res.Tip,
		BinColor:     res.BinColor,
		Alternatives: res.Alternatives,
		ImageURL:     req.ImageURL,
		Timestamp:    s.now().UTC(),
		Mode:         res.Mode,
		Error:        res.Error,
	}
	if entry.Alternatives == nil {
		entry.Alternatives = []waste.Alternative{}
	}
	if res.Mode != waste.ModeError {
		if h, err := imagenorm.Fingerprint(req.Image); err == nil {
			entry.ImageHash = h
		}
	}

	if s.logs != nil {
		id, err := s.logs.AppendLog(ctx, entry)
		if err != nil {
			slog.Error("classify: save log failed", "uid", req.UserID, "err", err)
		} else {
			entry.ID = id
			slog.Info("classify: saved log", "log_id", id, "category", entry.Category.String(), "mode", entry.Mode)
		}
	}

	if res.Mode != waste.ModeError && s.points != nil {
		if err := s.points.AwardPoints(ctx, req.UserID, PointsPerClassification, PointsReason); err != nil {
			slog.Warn("classify: award points failed", "uid", req.UserID, "err", err)
		} else {
			entry.PointsAwarded = PointsPerClassification
		}
	}
	return entry
}
