package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/makolabs/mako/internal/apperror"
	"github.com/makolabs/mako/internal/model"
	"github.com/makolabs/mako/internal/repository"
)

// VersionPreviewRunes caps how much execution output is stored with a
// version snapshot. Full output can be megabytes; the history panel only
// needs the first screenful.
const VersionPreviewRunes = 500

// VersionService records per-tab execution snapshots.
type VersionService struct {
	repo   repository.VersionRepository
	logger *slog.Logger
}

func NewVersionService(repo repository.VersionRepository, logger *slog.Logger) *VersionService {
	return &VersionService{
		repo:   repo,
		logger: logger,
	}
}

// Save stores a snapshot of a tab's code and execution outcome. Saving
// code identical to the tab's latest snapshot is a no-op; the returned
// bool reports whether a new version was actually written.
func (s *VersionService) Save(ctx context.Context, tab, code, output string, success bool) (*model.Version, bool, error) {
	tab = strings.TrimSpace(tab)
	if tab == "" {
		return nil, false, apperror.ValidationFailed("tab", "tab name is required")
	}
	if code == "" {
		return nil, false, apperror.ValidationFailed("code", "code is required")
	}
	if len(code) > MaxCodeLength {
		return nil, false, apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
	}

	latest, err := s.repo.LatestVersionByTab(ctx, tab)
	switch {
	case err == nil:
		if latest.Code == code {
			return latest, false, nil
		}
	case errors.Is(err, apperror.ErrNotFound):
		// First version for this tab.
	default:
		s.logger.Error("failed to load latest version",
			slog.String("tab", tab),
			slog.String("error", err.Error()),
		)
		return nil, false, fmt.Errorf("loading latest version: %w", err)
	}

	v := &model.Version{
		Tab:           tab,
		Code:          code,
		OutputPreview: previewOf(output),
		Success:       success,
	}

	if err := s.repo.CreateVersion(ctx, v); err != nil {
		s.logger.Error("failed to save version",
			slog.String("tab", tab),
			slog.String("error", err.Error()),
		)
		return nil, false, fmt.Errorf("saving version: %w", err)
	}

	s.logger.Info("version saved",
		slog.String("id", v.ID),
		slog.String("tab", v.Tab),
		slog.Bool("success", v.Success),
	)

	return v, true, nil
}

// ListByTab returns a tab's snapshots, newest first.
func (s *VersionService) ListByTab(ctx context.Context, tab string, limit, offset int) ([]model.Version, error) {
	tab = strings.TrimSpace(tab)
	if tab == "" {
		return nil, apperror.ValidationFailed("tab", "tab name is required")
	}

	versions, err := s.repo.ListVersionsByTab(ctx, tab, repository.ListOptions{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.logger.Error("failed to list versions",
			slog.String("tab", tab),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("listing versions: %w", err)
	}

	return versions, nil
}

// GetByID retrieves a single version snapshot.
// Returns apperror.ErrNotFound if the version doesn't exist.
func (s *VersionService) GetByID(ctx context.Context, id string) (*model.Version, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "version ID is required")
	}

	return s.repo.GetVersionByID(ctx, id)
}

// previewOf truncates execution output for storage, marking the cut with
// an ellipsis the way the history panel expects.
func previewOf(output string) string {
	runes := []rune(output)
	if len(runes) <= VersionPreviewRunes {
		return output
	}
	return string(runes[:VersionPreviewRunes]) + "..."
}
