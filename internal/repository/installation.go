package repository

import (
	"context"

	"github.com/oncallsupport/rotator/internal/domain"
)

type InstallationRepository interface {
	Put(ctx context.Context, i *domain.Installation) error
	// UpdatePagerDutyToken sets the workspace-level fallback token. It
	// must fail with domain.ErrInstallationNotFound when the key is
	// absent.
	UpdatePagerDutyToken(ctx context.Context, team string, token string) error
	GetByTeam(ctx context.Context, team string) (*domain.Installation, error)
	ScanAll(ctx context.Context) ([]*domain.Installation, error)
}
