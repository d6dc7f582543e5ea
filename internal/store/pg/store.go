package pg

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"botgw/internal/domain"
	"botgw/internal/store"
)

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// GetActiveDeployment authenticates a webhook delivery. The lookup keys on
// (id, webhook_secret, is_active) in a single joined query so a missing
// deployment, a wrong secret and a deactivated deployment are
// indistinguishable to the caller.
func (s *Store) GetActiveDeployment(ctx context.Context, deploymentID, secret string) (store.DeploymentWithBot, bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT d.id, d.bot_id, d.platform, COALESCE(d.config, '{}'::jsonb), d.is_active, d.created_at, d.updated_at,
		       b.id, b.user_id, b.name, b.bot_type,
		       COALESCE(b.personality,''), COALESCE(b.greeting_message,''), COALESCE(b.description,''), b.is_active
		FROM deployments d
		JOIN bots b ON b.id = d.bot_id
		WHERE d.id=$1 AND d.webhook_secret=$2 AND d.is_active=true
	`, deploymentID, secret)

	var (
		out       store.DeploymentWithBot
		platform  string
		botType   string
		configRaw []byte
	)
	err := row.Scan(
		&out.Deployment.ID, &out.Deployment.BotID, &platform, &configRaw,
		&out.Deployment.IsActive, &out.Deployment.CreatedAt, &out.Deployment.UpdatedAt,
		&out.Bot.ID, &out.Bot.UserID, &out.Bot.Name, &botType,
		&out.Bot.Personality, &out.Bot.Greeting, &out.Bot.Description, &out.Bot.IsActive,
	)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return store.DeploymentWithBot{}, false, nil
		}
		return store.DeploymentWithBot{}, false, err
	}

	out.Deployment.Platform = domain.Platform(platform)
	out.Deployment.WebhookSecret = secret
	out.Bot.BotType = domain.BotType(botType)
	_ = json.Unmarshal(configRaw, &out.Deployment.Config)
	return out, true, nil
}

// GetDeployment loads one deployment by id regardless of secret. The sender
// worker uses it to resolve platform credentials at delivery time, so rotated
// credentials apply to already-queued jobs.
func (s *Store) GetDeployment(ctx context.Context, deploymentID string) (store.Deployment, bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT id, bot_id, platform, webhook_secret, COALESCE(config, '{}'::jsonb), is_active, created_at, updated_at
		FROM deployments WHERE id=$1
	`, deploymentID)

	var (
		d         store.Deployment
		platform  string
		configRaw []byte
	)
	err := row.Scan(&d.ID, &d.BotID, &platform, &d.WebhookSecret, &configRaw, &d.IsActive, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return store.Deployment{}, false, nil
		}
		return store.Deployment{}, false, err
	}
	d.Platform = domain.Platform(platform)
	_ = json.Unmarshal(configRaw, &d.Config)
	return d, true, nil
}

func (s *Store) InsertWebhookLog(ctx context.Context, in store.WebhookLogInsert) error {
	b, _ := json.Marshal(in.RequestBody)
	_, err := s.DB.Exec(ctx, `
		INSERT INTO webhook_logs (id, deployment_id, request_body, response_status, error, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, in.ID, in.DeploymentID, b, in.ResponseStatus, nullIfEmpty(in.Error), in.Now)
	return err
}

func (s *Store) ListWebhookLogs(ctx context.Context, deploymentID string, limit int) ([]store.WebhookLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.Query(ctx, `
		SELECT id, deployment_id, request_body, response_status, COALESCE(error,''), created_at
		FROM webhook_logs WHERE deployment_id=$1
		ORDER BY created_at DESC LIMIT $2
	`, deploymentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.WebhookLog
	for rows.Next() {
		var l store.WebhookLog
		if err := rows.Scan(&l.ID, &l.DeploymentID, &l.RequestBody, &l.ResponseStatus, &l.Error, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
