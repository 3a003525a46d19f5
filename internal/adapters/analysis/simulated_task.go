package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/crew-api/internal/core"
	"github.com/target/crew-api/internal/domain/model"
)

// SimulatedTask produces a deterministic research report locally. It is used in
// development when no analysis endpoint is configured.
type SimulatedTask struct {
	// Step is the pause before each company/position pair (default 500ms).
	Step time.Duration
	// Logger receives dropped progress events. Defaults to slog.Default().
	Logger *slog.Logger
}

var _ core.Task = (*SimulatedTask)(nil)

type positionReport struct {
	Title                 string   `json:"title"`
	Name                  string   `json:"name"`
	BlogArticlesURLs      []string `json:"blog_articles_urls"`
	YoutubeInterviewsURLs []string `json:"youtube_interviews_urls"`
}

type companyReport struct {
	Name      string           `json:"name"`
	Positions []positionReport `json:"positions"`
}

type researchReport struct {
	Companies []companyReport `json:"companies"`
}

// Run walks every company/position pair, reporting progress as it goes.
func (s *SimulatedTask) Run(ctx context.Context, req model.CrewRequest, progress core.ProgressReporter) (string, error) {
	step := s.Step
	if step <= 0 {
		step = 500 * time.Millisecond
	}

	out := researchReport{Companies: make([]companyReport, 0, len(req.Companies))}
	for _, company := range req.Companies {
		cr := companyReport{Name: company, Positions: make([]positionReport, 0, len(req.Positions))}
		for _, position := range req.Positions {
			timer := time.NewTimer(step)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", ctx.Err()
			case <-timer.C:
			}

			report(ctx, s.Logger, progress, fmt.Sprintf("Researched %s at %s", position, company))
			cr.Positions = append(cr.Positions, positionReport{
				Title:                 position,
				BlogArticlesURLs:      []string{},
				YoutubeInterviewsURLs: []string{},
			})
		}
		out.Companies = append(out.Companies, cr)
	}

	body, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode research report: %w", err)
	}
	return string(body), nil
}
