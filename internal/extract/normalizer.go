package extract

import (
	"log/slog"

	"github.com/qepting91/review-harvester/internal/domain"
)

// Normalizer converts Raw fields into a domain.Record, logging every sentinel
// substitution at warn level.
type Normalizer struct {
	Logger *slog.Logger
}

// Record builds the record and returns the substitutions it made.
func (n Normalizer) Record(raw Raw) (domain.Record, []Substitution) {
	var subs []Substitution

	rec := domain.Record{
		ID:     CleanText(raw.ID),
		Author: CleanText(raw.Author),
		Avatar: CleanText(raw.Avatar),
		Text:   CleanText(raw.Text),
	}

	if raw.Rating != "" {
		rating, err := ParseRating(raw.Rating)
		if err != nil {
			subs = append(subs, Substitution{Field: "rating", Raw: raw.Rating, Reason: err.Error()})
		}
		rec.Rating = rating
	}

	if raw.Date != "" {
		date, err := NormalizeDate(raw.Date)
		if err != nil {
			subs = append(subs, Substitution{Field: "date", Raw: raw.Date, Reason: err.Error()})
		}
		rec.Date = date
	}

	engagement, err := ParseCount(raw.Engagement)
	if err != nil {
		subs = append(subs, Substitution{Field: "engagement", Raw: raw.Engagement, Reason: err.Error()})
		engagement = 0
	}
	rec.Engagement = engagement

	if len(subs) > 0 {
		logger := n.Logger
		if logger == nil {
			logger = slog.Default()
		}
		for _, s := range subs {
			logger.Warn("malformed field substituted",
				"kind", domain.KindMalformedRecord,
				"id", rec.ID,
				"field", s.Field,
				"raw", s.Raw,
				"reason", s.Reason,
			)
		}
	}

	return rec, subs
}
