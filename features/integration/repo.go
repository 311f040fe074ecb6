// Package integration persists integration targets and their delivery
// records.
package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/lib/pq"

	sink "github.com/alereyleyva/extractify/internal/integration"
)

var ErrDeliveryNotOpen = errors.New("delivery already terminal or missing")

type TargetRepo struct {
	db *sql.DB
}

func NewTargetRepo(db *sql.DB) *TargetRepo {
	return &TargetRepo{db: db}
}

func (r *TargetRepo) ListEnabled(ctx context.Context, ownerID string, ids []string) ([]sink.Target, error) {
	query := `SELECT id, owner_id, type, name, enabled, config, version FROM integration_targets WHERE owner_id = $1 AND enabled = true ORDER BY created_at`
	args := []interface{}{ownerID}
	if len(ids) > 0 {
		query = `SELECT id, owner_id, type, name, enabled, config, version FROM integration_targets WHERE owner_id = $1 AND enabled = true AND id = ANY($2) ORDER BY created_at`
		args = append(args, pq.Array(ids))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []sink.Target
	for rows.Next() {
		var t sink.Target
		var config []byte
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Type, &t.Name, &t.Enabled, &config, &t.Version); err != nil {
			return nil, err
		}
		t.Config = json.RawMessage(config)
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

func (r *TargetRepo) UpdateConfig(ctx context.Context, id string, version int64, config json.RawMessage) (bool, error) {
	query := `UPDATE integration_targets SET config = $1, version = version + 1, updated_at = NOW() WHERE id = $2 AND version = $3`
	res, err := r.db.ExecContext(ctx, query, []byte(config), id, version)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type DeliveryRepo struct {
	db *sql.DB
}

func NewDeliveryRepo(db *sql.DB) *DeliveryRepo {
	return &DeliveryRepo{db: db}
}

func (r *DeliveryRepo) Create(ctx context.Context, targetID, extractionID string) (string, error) {
	var id string
	query := `INSERT INTO integration_deliveries (target_id, extraction_id, status) VALUES ($1, $2, $3) RETURNING id`
	err := r.db.QueryRowContext(ctx, query, targetID, extractionID, string(sink.DeliveryPending)).Scan(&id)
	return id, err
}

func (r *DeliveryRepo) MarkProcessing(ctx context.Context, id string) error {
	query := `UPDATE integration_deliveries SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`
	_, err := r.db.ExecContext(ctx, query, string(sink.DeliveryProcessing), id, string(sink.DeliveryPending))
	return err
}

// Complete sets the terminal status. A delivery that is already terminal is
// left untouched and ErrDeliveryNotOpen is returned.
func (r *DeliveryRepo) Complete(ctx context.Context, id string, status sink.DeliveryStatus, responseStatus *int, errorMessage *string) error {
	query := `UPDATE integration_deliveries SET status = $1, response_status = $2, error_message = $3, updated_at = NOW() WHERE id = $4 AND status IN ('pending', 'processing')`
	res, err := r.db.ExecContext(ctx, query, string(status), nullInt(responseStatus), nullString(errorMessage), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDeliveryNotOpen
	}
	return nil
}

func (r *DeliveryRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM integration_deliveries GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
