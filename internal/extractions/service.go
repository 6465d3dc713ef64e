package extractions

import (
	"context"
	"strings"
)

// Service exposes read access to extractions.
type Service struct {
	Repo Repo
}

// Get returns an extraction owned by userID.
func (s *Service) Get(ctx context.Context, userID, extractionID string) (Extraction, error) {
	if strings.TrimSpace(extractionID) == "" {
		return Extraction{}, ErrNotFound
	}
	return s.Repo.GetByID(ctx, userID, extractionID)
}

// Latest returns the newest extraction for a document.
func (s *Service) Latest(ctx context.Context, userID, documentID string) (Extraction, error) {
	if strings.TrimSpace(documentID) == "" {
		return Extraction{}, ErrNotFound
	}
	return s.Repo.LatestForDocument(ctx, userID, documentID)
}
