package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oncallsupport/rotator/internal/crypto"
	"github.com/oncallsupport/rotator/internal/domain"
)

// InstallationRepository stores workspace credentials. The Slack access
// token and the PagerDuty fallback token are encrypted at this boundary.
type InstallationRepository struct {
	pool      *pgxpool.Pool
	encryptor *crypto.Encryptor
	logger    *slog.Logger
}

func NewInstallationRepository(pool *pgxpool.Pool, encryptor *crypto.Encryptor, logger *slog.Logger) *InstallationRepository {
	return &InstallationRepository{pool: pool, encryptor: encryptor, logger: logger.With("component", "installation_repo")}
}

const installationColumns = `
	team, team_id, team_name, enterprise_id, enterprise_name, is_enterprise_install,
	access_token, token_type, scope, authed_user_id, app_id, bot_user_id,
	pagerduty_token, created_at, updated_at`

func (r *InstallationRepository) Put(ctx context.Context, i *domain.Installation) error {
	access, err := r.seal(i.AccessToken)
	if err != nil {
		return err
	}
	pd, err := r.sealOptional(i.PagerDutyToken)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO installations (` + installationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (team) DO UPDATE SET
			team_name = EXCLUDED.team_name,
			enterprise_name = EXCLUDED.enterprise_name,
			access_token = EXCLUDED.access_token,
			token_type = EXCLUDED.token_type,
			scope = EXCLUDED.scope,
			authed_user_id = EXCLUDED.authed_user_id,
			app_id = EXCLUDED.app_id,
			bot_user_id = EXCLUDED.bot_user_id,
			updated_at = EXCLUDED.updated_at`

	_, err = r.pool.Exec(ctx, query,
		i.Key(), i.TeamID, i.TeamName, i.EnterpriseID, i.EnterpriseName, i.IsEnterpriseInstall,
		access, i.TokenType, i.Scope, i.AuthedUserID, i.AppID, i.BotUserID,
		pd, i.CreatedAt, i.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put installation: %w", err)
	}

	r.logger.Info("saved installation", "team", i.Key(), "team_name", i.TeamName)
	return nil
}

// UpdatePagerDutyToken sets the workspace fallback token, failing when
// the installation row does not already exist.
func (r *InstallationRepository) UpdatePagerDutyToken(ctx context.Context, team string, token string) error {
	sealed, err := r.seal(token)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE installations SET pagerduty_token = $2, updated_at = $3 WHERE team = $1`,
		team, sealed, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update pagerduty token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInstallationNotFound
	}
	return nil
}

func (r *InstallationRepository) GetByTeam(ctx context.Context, team string) (*domain.Installation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+installationColumns+` FROM installations WHERE team = $1`, team)
	i, err := r.scanInstallation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrInstallationNotFound
	}
	return i, err
}

func (r *InstallationRepository) ScanAll(ctx context.Context) ([]*domain.Installation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+installationColumns+` FROM installations`)
	if err != nil {
		return nil, fmt.Errorf("list installations: %w", err)
	}
	defer rows.Close()

	var installations []*domain.Installation
	for rows.Next() {
		i, err := r.scanInstallation(rows)
		if err != nil {
			return nil, err
		}
		installations = append(installations, i)
	}
	return installations, rows.Err()
}

func (r *InstallationRepository) scanInstallation(row pgx.Row) (*domain.Installation, error) {
	var i domain.Installation
	var key string
	var access string
	var pd *string

	err := row.Scan(
		&key, &i.TeamID, &i.TeamName, &i.EnterpriseID, &i.EnterpriseName, &i.IsEnterpriseInstall,
		&access, &i.TokenType, &i.Scope, &i.AuthedUserID, &i.AppID, &i.BotUserID,
		&pd, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan installation: %w", err)
	}

	if i.AccessToken, err = r.open(access); err != nil {
		return nil, fmt.Errorf("installation %s: access token: %w", key, err)
	}
	if pd != nil && *pd != "" {
		plain, err := r.open(*pd)
		if err != nil {
			return nil, fmt.Errorf("installation %s: pagerduty token: %w", key, err)
		}
		i.PagerDutyToken = &plain
	}
	return &i, nil
}

func (r *InstallationRepository) seal(plain string) (string, error) {
	env, err := r.encryptor.Encrypt(plain)
	if err != nil {
		return "", fmt.Errorf("encrypt token: %w", err)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal token envelope: %w", err)
	}
	return string(raw), nil
}

func (r *InstallationRepository) sealOptional(plain *string) (*string, error) {
	if plain == nil {
		return nil, nil
	}
	sealed, err := r.seal(*plain)
	if err != nil {
		return nil, err
	}
	return &sealed, nil
}

func (r *InstallationRepository) open(stored string) (string, error) {
	var env crypto.Envelope
	if err := json.Unmarshal([]byte(stored), &env); err != nil {
		return "", fmt.Errorf("parse token envelope: %w", err)
	}
	return r.encryptor.Decrypt(env)
}
