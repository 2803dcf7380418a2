package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"routeeta/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies the up migrations found in dir.
func (p *Postgres) MigrateDir(dir string) error {
	drv, err := migratepgx.WithInstance(p.db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("migrate driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "pgx5", drv)
	if err != nil {
		return fmt.Errorf("migrate source %s: %w", dir, err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

const driverCols = `id, tenant_id, COALESCE(name,''), vehicle_type, lat, lng, position_at`

func scanDriver(row interface{ Scan(...any) error }) (model.Driver, error) {
	var d model.Driver
	var vehicle string
	var lat, lng sql.NullFloat64
	var at sql.NullTime
	if err := row.Scan(&d.ID, &d.TenantID, &d.Name, &vehicle, &lat, &lng, &at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return d, ErrNotFound
		}
		return d, err
	}
	d.VehicleType = model.VehicleType(vehicle)
	if lat.Valid && lng.Valid {
		d.Position = &model.Coordinate{Lat: lat.Float64, Lng: lng.Float64}
	}
	if at.Valid {
		t := at.Time.UTC()
		d.PositionAt = &t
	}
	return d, nil
}

func (p *Postgres) UpsertDriver(ctx context.Context, d model.Driver) (model.Driver, error) {
	var lat, lng, at any
	if d.Position != nil {
		lat, lng = d.Position.Lat, d.Position.Lng
		if d.PositionAt != nil {
			at = *d.PositionAt
		} else {
			at = time.Now().UTC()
		}
	}
	row := p.db.QueryRowContext(ctx, `INSERT INTO drivers (tenant_id, id, name, vehicle_type, lat, lng, position_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (tenant_id, id) DO UPDATE SET
            name=EXCLUDED.name,
            vehicle_type=EXCLUDED.vehicle_type,
            lat=COALESCE(EXCLUDED.lat, drivers.lat),
            lng=COALESCE(EXCLUDED.lng, drivers.lng),
            position_at=COALESCE(EXCLUDED.position_at, drivers.position_at),
            updated_at=now()
        RETURNING `+driverCols, d.TenantID, d.ID, nullIfEmpty(d.Name), string(d.VehicleType), lat, lng, at)
	return scanDriver(row)
}

func (p *Postgres) GetDriver(ctx context.Context, tenantID, driverID string) (model.Driver, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+driverCols+` FROM drivers WHERE tenant_id=$1 AND id=$2`, tenantID, driverID)
	return scanDriver(row)
}

func (p *Postgres) UpdateDriverPosition(ctx context.Context, tenantID, driverID string, pos model.Coordinate, at time.Time) (model.Driver, error) {
	row := p.db.QueryRowContext(ctx, `INSERT INTO drivers (tenant_id, id, lat, lng, position_at)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (tenant_id, id) DO UPDATE SET lat=EXCLUDED.lat, lng=EXCLUDED.lng, position_at=EXCLUDED.position_at, updated_at=now()
        RETURNING `+driverCols, tenantID, driverID, pos.Lat, pos.Lng, at.UTC())
	return scanDriver(row)
}

const assignmentCols = `tenant_id, order_id, driver_id, COALESCE(order_number,''), status,
    pickup_lat, pickup_lng, COALESCE(pickup_address,''), COALESCE(merchant_name,''),
    delivery_lat, delivery_lng, COALESCE(delivery_address,''), COALESCE(customer_name,''),
    assigned_at, updated_at`

func scanAssignment(row interface{ Scan(...any) error }) (model.Assignment, error) {
	var a model.Assignment
	err := row.Scan(&a.TenantID, &a.OrderID, &a.DriverID, &a.OrderNumber, &a.Status,
		&a.PickupLat, &a.PickupLng, &a.PickupAddress, &a.MerchantName,
		&a.DeliveryLat, &a.DeliveryLng, &a.DeliveryAddress, &a.CustomerName,
		&a.AssignedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	a.AssignedAt, a.UpdatedAt = a.AssignedAt.UTC(), a.UpdatedAt.UTC()
	return a, err
}

func (p *Postgres) AssignOrder(ctx context.Context, tenantID, driverID string, in model.AssignmentIn) (model.Assignment, error) {
	if _, err := p.GetDriver(ctx, tenantID, driverID); err != nil {
		return model.Assignment{}, err
	}
	if in.Status == "" {
		in.Status = model.StatusDriverAssigned
	}
	// Re-assigning to the same driver keeps the original assigned_at so route input order is stable.
	row := p.db.QueryRowContext(ctx, `INSERT INTO assignments (tenant_id, order_id, driver_id, order_number, status,
            pickup_lat, pickup_lng, pickup_address, merchant_name, delivery_lat, delivery_lng, delivery_address, customer_name)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        ON CONFLICT (tenant_id, order_id) DO UPDATE SET
            assigned_at=CASE WHEN assignments.driver_id=EXCLUDED.driver_id THEN assignments.assigned_at ELSE now() END,
            driver_id=EXCLUDED.driver_id, order_number=EXCLUDED.order_number, status=EXCLUDED.status,
            pickup_lat=EXCLUDED.pickup_lat, pickup_lng=EXCLUDED.pickup_lng, pickup_address=EXCLUDED.pickup_address,
            merchant_name=EXCLUDED.merchant_name, delivery_lat=EXCLUDED.delivery_lat, delivery_lng=EXCLUDED.delivery_lng,
            delivery_address=EXCLUDED.delivery_address, customer_name=EXCLUDED.customer_name, updated_at=now()
        RETURNING `+assignmentCols,
		tenantID, in.OrderID, driverID, nullIfEmpty(in.OrderNumber), in.Status,
		in.PickupLat, in.PickupLng, nullIfEmpty(in.PickupAddress), nullIfEmpty(in.MerchantName),
		in.DeliveryLat, in.DeliveryLng, nullIfEmpty(in.DeliveryAddress), nullIfEmpty(in.CustomerName))
	return scanAssignment(row)
}

func (p *Postgres) ListActiveAssignments(ctx context.Context, tenantID, driverID string) ([]model.Assignment, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+assignmentCols+` FROM assignments
        WHERE tenant_id=$1 AND driver_id=$2 AND status = ANY($3)
        ORDER BY assigned_at, order_id`, tenantID, driverID, model.ActiveStatuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Assignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateAssignmentStatus(ctx context.Context, tenantID, driverID, orderID, status string) (model.Assignment, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Assignment{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var cur string
	err = tx.QueryRowContext(ctx, `SELECT status FROM assignments WHERE tenant_id=$1 AND order_id=$2 AND driver_id=$3 FOR UPDATE`,
		tenantID, orderID, driverID).Scan(&cur)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Assignment{}, ErrNotFound
	}
	if err != nil {
		return model.Assignment{}, err
	}
	if err := checkTransition(cur, status); err != nil {
		return model.Assignment{}, err
	}
	a, err := scanAssignment(tx.QueryRowContext(ctx, `UPDATE assignments SET status=$3, updated_at=now()
        WHERE tenant_id=$1 AND order_id=$2 RETURNING `+assignmentCols, tenantID, orderID, status))
	if err != nil {
		return model.Assignment{}, err
	}
	return a, tx.Commit()
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.New().String()
	ev, _ := json.Marshal(req.Events)
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`, id, req.TenantID, req.URL, ev, nullIfEmpty(req.Secret))
	if err != nil {
		return model.Subscription{}, err
	}
	return model.Subscription{ID: id, TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	filter, _ := json.Marshal([]string{eventType})
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions WHERE tenant_id=$1 AND events @> $2::jsonb`, tenantID, string(filter))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var ev []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil {
			return nil, err
		}
		s.TenantID = tenantID
		_ = json.Unmarshal(ev, &s.Events)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Subscription{}
	var last string
	for rows.Next() {
		var s model.Subscription
		var ev []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil {
			return nil, "", err
		}
		s.TenantID = tenantID
		_ = json.Unmarshal(ev, &s.Events)
		out = append(out, s)
		last = s.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id::text=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Webhook deliveries
func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	dk := computeDedupKey(payload)
	var id string
	err := p.db.QueryRowContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now(),$8)
        ON CONFLICT (tenant_id, event_type, url, dedup_key) DO NOTHING
        RETURNING id::text`, uuid.New().String(), tenantID, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload, dk).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		// Duplicate event: report the delivery already queued for it.
		err = p.db.QueryRowContext(ctx, `SELECT id::text FROM webhook_deliveries
        WHERE tenant_id=$1 AND event_type=$2 AND url=$3 AND dedup_key=$4`, tenantID, eventType, url, dk).Scan(&id)
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if !success {
		if nextAttemptAt == nil {
			t := time.Now().Add(time.Minute)
			nextAttemptAt = &t
		}
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
			id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
		return err
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]DeliveryView, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id::text, event_type, status, attempts, next_attempt_at, COALESCE(last_error,''), url, COALESCE(response_code,0) FROM webhook_deliveries WHERE tenant_id=$1`
	args := []any{tenantID}
	if status != "" {
		args = append(args, status)
		q += fmt.Sprintf(` AND status=$%d`, len(args))
	}
	if cursor != "" {
		args = append(args, cursor)
		q += fmt.Sprintf(` AND id::text > $%d`, len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []DeliveryView{}
	for rows.Next() {
		var v DeliveryView
		var nextAt time.Time
		if err := rows.Scan(&v.ID, &v.EventType, &v.Status, &v.Attempts, &nextAt, &v.LastError, &v.URL, &v.ResponseCode); err != nil {
			return nil, "", err
		}
		if v.Status == DeliveryPending || v.Status == DeliveryRetry {
			at := nextAt.UTC()
			v.NextAttemptAt = &at
		}
		out = append(out, v)
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now(), updated_at=now() WHERE tenant_id=$1 AND id::text=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// computeDedupKey uses the event id when the payload carries one, else a short content hash.
func computeDedupKey(payload []byte) string {
	var m map[string]any
	if json.Unmarshal(payload, &m) == nil {
		if v, ok := m["id"].(string); ok && v != "" {
			return v
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
