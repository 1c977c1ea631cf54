package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oncallsupport/rotator/internal/crypto"
	"github.com/oncallsupport/rotator/internal/domain"
)

// TaskRepository stores rotation tasks. The optional per-task PagerDuty
// token is encrypted at this boundary; the rest of the system only ever
// sees the decrypted value.
type TaskRepository struct {
	pool      *pgxpool.Pool
	encryptor *crypto.Encryptor
	logger    *slog.Logger
}

func NewTaskRepository(pool *pgxpool.Pool, encryptor *crypto.Encryptor, logger *slog.Logger) *TaskRepository {
	return &TaskRepository{pool: pool, encryptor: encryptor, logger: logger.With("component", "task_repo")}
}

const taskColumns = `
	team, task_id, next_unix, next_local,
	team_id, team_domain, channel_id, channel_name,
	enterprise_id, enterprise_name, is_enterprise_install,
	user_group_id, user_group_handle, pagerduty_schedule_id, pagerduty_token,
	cron_expr, timezone,
	created_by_user_id, created_by_user_name, created_at, updated_at`

func (r *TaskRepository) Put(ctx context.Context, t *domain.Task) error {
	token, err := r.sealOptional(t.PagerDutyToken)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
		        $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (team, task_id) DO UPDATE SET
			next_unix = EXCLUDED.next_unix,
			next_local = EXCLUDED.next_local,
			channel_name = EXCLUDED.channel_name,
			pagerduty_token = EXCLUDED.pagerduty_token,
			cron_expr = EXCLUDED.cron_expr,
			timezone = EXCLUDED.timezone,
			created_by_user_id = EXCLUDED.created_by_user_id,
			created_by_user_name = EXCLUDED.created_by_user_name,
			updated_at = EXCLUDED.updated_at`

	_, err = r.pool.Exec(ctx, query,
		t.Team, t.TaskID, t.NextUnix, t.NextLocal,
		t.TeamID, t.TeamDomain, t.ChannelID, t.ChannelName,
		t.EnterpriseID, t.EnterpriseName, t.IsEnterpriseInstall,
		t.UserGroupID, t.UserGroupHandle, t.PagerDutyScheduleID, token,
		t.CronExpr, t.Timezone,
		t.CreatedByUserID, t.CreatedByUserName, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put task: %w", err)
	}

	r.logger.Info("saved task", "team", t.Team, "task_id", t.TaskID, "next", t.NextLocal)
	return nil
}

// UpdateOccurrence advances the task's next occurrence, failing when the
// row no longer exists so a deleted task is not resurrected.
func (r *TaskRepository) UpdateOccurrence(ctx context.Context, team, taskID string, nextUnix int64, nextLocal string, updatedAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tasks
		 SET next_unix = $3, next_local = $4, updated_at = $5
		 WHERE team = $1 AND task_id = $2`,
		team, taskID, nextUnix, nextLocal, updatedAt)
	if err != nil {
		return fmt.Errorf("update occurrence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (r *TaskRepository) ScanAll(ctx context.Context) ([]*domain.Task, error) {
	return r.list(ctx, `SELECT `+taskColumns+` FROM tasks`)
}

func (r *TaskRepository) ListByTeam(ctx context.Context, team string) ([]*domain.Task, error) {
	return r.list(ctx, `SELECT `+taskColumns+` FROM tasks WHERE team = $1`, team)
}

func (r *TaskRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		t, err := r.scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *TaskRepository) Delete(ctx context.Context, team, taskID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE team = $1 AND task_id = $2`, team, taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func (r *TaskRepository) scanTask(row pgx.Row) (*domain.Task, error) {
	var t domain.Task
	var token *string

	err := row.Scan(
		&t.Team, &t.TaskID, &t.NextUnix, &t.NextLocal,
		&t.TeamID, &t.TeamDomain, &t.ChannelID, &t.ChannelName,
		&t.EnterpriseID, &t.EnterpriseName, &t.IsEnterpriseInstall,
		&t.UserGroupID, &t.UserGroupHandle, &t.PagerDutyScheduleID, &token,
		&t.CronExpr, &t.Timezone,
		&t.CreatedByUserID, &t.CreatedByUserName, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	t.PagerDutyToken, err = r.openOptional(token)
	if err != nil {
		return nil, fmt.Errorf("task %s/%s: %w", t.Team, t.TaskID, err)
	}
	return &t, nil
}

func (r *TaskRepository) sealOptional(plain *string) (*string, error) {
	if plain == nil {
		return nil, nil
	}
	env, err := r.encryptor.Encrypt(*plain)
	if err != nil {
		return nil, fmt.Errorf("encrypt token: %w", err)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal token envelope: %w", err)
	}
	s := string(raw)
	return &s, nil
}

func (r *TaskRepository) openOptional(stored *string) (*string, error) {
	if stored == nil || *stored == "" {
		return nil, nil
	}
	var env crypto.Envelope
	if err := json.Unmarshal([]byte(*stored), &env); err != nil {
		return nil, fmt.Errorf("parse token envelope: %w", err)
	}
	plain, err := r.encryptor.Decrypt(env)
	if err != nil {
		return nil, fmt.Errorf("decrypt token: %w", err)
	}
	return &plain, nil
}
