package service

import (
	"context"
	"fmt"

	"github.com/kindredlabs/kindred/internal/coaching/storage"
	"github.com/kindredlabs/kindred/internal/coaching/traits"
)

// LoadCatalog builds the question catalog from stored questions.
func LoadCatalog(ctx context.Context, store storage.QuestionStore) (traits.Catalog, error) {
	records, err := store.ListQuestions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	questions := make([]traits.Question, 0, len(records))
	for _, record := range records {
		questions = append(questions, traits.Question{
			ID:       record.ID,
			Axis:     traits.Axis(record.Axis),
			Facet:    record.Facet,
			Weight:   record.Weight,
			ValueMap: record.ValueMap,
		})
	}
	return traits.NewCatalog(questions)
}

// SaveCatalog persists a validated catalog so it can be loaded on startup.
func SaveCatalog(ctx context.Context, store storage.QuestionStore, catalog traits.Catalog) error {
	records := make([]storage.Question, 0, len(catalog))
	for _, question := range catalog {
		records = append(records, storage.Question{
			ID:       question.ID,
			Axis:     string(question.Axis),
			Facet:    question.Facet,
			Weight:   question.Weight,
			ValueMap: question.ValueMap,
		})
	}
	if err := store.PutQuestions(ctx, records); err != nil {
		return fmt.Errorf("save catalog: %w", err)
	}
	return nil
}
