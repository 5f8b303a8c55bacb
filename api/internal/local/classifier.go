// Package local is the offline fallback tier: an ImageNet classifier whose
// top label is resolved to a waste category without any network call.
package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"golang.org/x/sync/semaphore"

	"wasteiq/api/internal/util"
	"wasteiq/api/internal/waste"
)

// Source says which resolution step produced a Prediction.
type Source string

const (
	SourceImageNet Source = "imagenet"
	SourceKeyword  Source = "keyword"
	SourceFallback Source = "fallback"
)

// Prediction is a self-resolved local answer.
type Prediction struct {
	ObjectName   string
	Category     waste.Category
	Confidence   float64 // 0..100, one decimal
	Alternatives []waste.Alternative
	TopLabel     string // raw model label, lower case
	Source       Source
}

type Options struct {
	Classes     *ClassTable
	Keywords    *waste.LabelTable
	Concurrency int64 // concurrent inferences; default 1
}

type Classifier struct {
	lazy     *Lazy
	sem      *semaphore.Weighted
	classes  *ClassTable
	keywords *waste.LabelTable
}

func New(lazy *Lazy, opts Options) *Classifier {
	if opts.Classes == nil {
		opts.Classes = DefaultClasses()
	}
	if opts.Keywords == nil {
		opts.Keywords = waste.DefaultLabels()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Classifier{
		lazy:     lazy,
		sem:      semaphore.NewWeighted(opts.Concurrency),
		classes:  opts.Classes,
		keywords: opts.Keywords,
	}
}

// Classify runs the model on img and resolves its top label.
func (c *Classifier) Classify(ctx context.Context, img []byte) (Prediction, error) {
	model, err := c.lazy.Get()
	if err != nil {
		return Prediction{}, err
	}
	decoded, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return Prediction{}, fmt.Errorf("local: decode: %w", err)
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return Prediction{}, fmt.Errorf("local: waiting for model: %w", err)
	}
	scores, err := model.Predict(decoded)
	c.sem.Release(1)
	if err != nil {
		return Prediction{}, fmt.Errorf("local: predict: %w", err)
	}
	if len(scores) == 0 {
		return Prediction{}, errors.New("local: model returned no scores")
	}
	return c.Resolve(scores), nil
}

// Resolve turns ranked scores into a Prediction: the curated ImageNet table
// first, then a keyword scan of the shared label table, else General.
func (c *Classifier) Resolve(scores []Score) Prediction {
	top := strings.ToLower(strings.TrimSpace(scores[0].Label))
	p := Prediction{
		Confidence: waste.Round1(scores[0].Prob * 100),
		TopLabel:   top,
	}
	for i := 1; i < len(scores) && len(p.Alternatives) < waste.MaxAlternatives; i++ {
		p.Alternatives = append(p.Alternatives, waste.Alternative{
			Name:       util.TitleWords(scores[i].Label),
			Confidence: waste.Round1(scores[i].Prob * 100),
		})
	}

	if cls, ok := c.classes.Match(top); ok {
		p.ObjectName, p.Category, p.Source = cls.Display, cls.Category, SourceImageNet
		return p
	}
	for _, e := range c.keywords.Entries() {
		if strings.Contains(top, e.Key) {
			p.ObjectName = util.TitleWords(strings.ReplaceAll(top, ",", ""))
			p.Category, p.Source = e.Category, SourceKeyword
			return p
		}
	}
	first, _, _ := strings.Cut(top, ",")
	p.ObjectName = util.TitleWords(first)
	p.Category, p.Source = waste.General, SourceFallback
	return p
}
