package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/VladKvetkin/keyflow/internal/entities"
	"github.com/jackc/pgerrcode"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// withdrawalLockKey serializes withdrawals against each other.
const withdrawalLockKey = 7_300_001

type PostgresStorage struct {
	db *sqlx.DB
}

func NewPostgresStorage(db *sqlx.DB) (Storage, error) {
	storage := &PostgresStorage{db: db}

	err := storage.runMigrations(context.Background())
	if err != nil {
		return nil, err
	}

	return storage, nil
}

func selectOrdersFrom(source string) string {
	return `SELECT o.id, o.user_id, o.service_id, o.variant_id, o.amount, o.status, o.payment_method,
		o.correlation_id, o.expires_at, o.reminded, o.created_at, o.updated_at,
		COALESCE(s.name, '') AS service_name,
		COALESCE(v.duration, '') AS duration,
		COALESCE(u.username, '') AS username
	FROM ` + source + ` o
	LEFT JOIN services s ON s.id = o.service_id
	LEFT JOIN service_variants v ON v.id = o.variant_id
	LEFT JOIN users u ON u.id = o.user_id`
}

var selectOrders = selectOrdersFrom("orders")

func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoRows
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pgerrcode.IsIntegrityConstraintViolation(string(pqErr.Code)) {
		return ErrConflict
	}

	return err
}

func (s *PostgresStorage) CreateOrder(ctx context.Context, order entities.Order) (int64, error) {
	var orderID int64

	row := s.db.QueryRowxContext(
		ctx,
		`INSERT INTO orders (user_id, service_id, variant_id, amount, status, payment_method, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id;`,
		order.UserID, order.ServiceID, order.VariantID, order.Amount, entities.OrderStatusPending,
		order.PaymentMethod, order.CorrelationID,
	)

	if err := row.Scan(&orderID); err != nil {
		return 0, mapError(err)
	}

	return orderID, nil
}

func (s *PostgresStorage) GetOrder(ctx context.Context, id int64) (entities.Order, error) {
	var order entities.Order

	if err := s.db.GetContext(ctx, &order, selectOrders+" WHERE o.id = $1;", id); err != nil {
		return entities.Order{}, mapError(err)
	}

	return order, nil
}

func (s *PostgresStorage) GetOrderByCorrelationID(ctx context.Context, correlationID string) (entities.Order, error) {
	var order entities.Order

	err := s.db.GetContext(
		ctx,
		&order,
		selectOrders+" WHERE o.correlation_id = $1 ORDER BY o.id DESC LIMIT 1;",
		correlationID,
	)
	if err != nil {
		return entities.Order{}, mapError(err)
	}

	return order, nil
}

func (s *PostgresStorage) GetOrdersByCorrelationID(ctx context.Context, correlationID string) ([]entities.Order, error) {
	var orders []entities.Order

	err := s.db.SelectContext(ctx, &orders, selectOrders+" WHERE o.correlation_id = $1 ORDER BY o.id ASC;", correlationID)
	if err != nil {
		return nil, err
	}

	return orders, nil
}

func (s *PostgresStorage) UpdateOrderStatus(ctx context.Context, id int64, status string, from ...string) (entities.Order, error) {
	var order entities.Order

	err := s.db.GetContext(
		ctx,
		&order,
		`WITH updated AS (
			UPDATE orders SET status = $1, updated_at = now()
			WHERE id = $2 AND status = ANY($3)
			RETURNING *
		) `+selectOrdersFrom("updated")+";",
		status, id, pq.Array(from),
	)
	if err == nil {
		return order, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return entities.Order{}, err
	}

	current, err := s.GetOrder(ctx, id)
	if err != nil {
		return entities.Order{}, err
	}

	return current, ErrStatusMismatch
}

func (s *PostgresStorage) SetOrderExpiry(ctx context.Context, id int64, expiresAt time.Time) error {
	result, err := s.db.ExecContext(
		ctx,
		`UPDATE orders SET expires_at = $1::date, updated_at = now() WHERE id = $2 AND expires_at IS NULL;`,
		expiresAt.Format(dateLayout), id,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return ErrConflict
	}

	return nil
}

func (s *PostgresStorage) MarkOrderReminded(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(
		ctx,
		`UPDATE orders SET reminded = TRUE
		WHERE id = $1 AND status = $2 AND expires_at IS NOT NULL AND NOT reminded;`,
		id, entities.OrderStatusCompleted,
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

func (s *PostgresStorage) GetUserOrders(ctx context.Context, userID int64, limit int) ([]entities.Order, error) {
	var orders []entities.Order

	err := s.db.SelectContext(ctx, &orders, selectOrders+" WHERE o.user_id = $1 ORDER BY o.id DESC LIMIT $2;", userID, limit)
	if err != nil {
		return nil, err
	}

	return orders, nil
}

func (s *PostgresStorage) GetActiveOrders(ctx context.Context, limit int) ([]entities.Order, error) {
	var orders []entities.Order

	err := s.db.SelectContext(
		ctx,
		&orders,
		selectOrders+" WHERE o.status NOT IN ($1, $2) ORDER BY o.id DESC LIMIT $3;",
		entities.OrderStatusCompleted, entities.OrderStatusCancelled, limit,
	)
	if err != nil {
		return nil, err
	}

	return orders, nil
}

func (s *PostgresStorage) GetExpiringOrders(ctx context.Context, date time.Time) ([]entities.Order, error) {
	var orders []entities.Order

	err := s.db.SelectContext(
		ctx,
		&orders,
		selectOrders+` WHERE o.status = $1 AND o.expires_at = $2::date AND NOT o.reminded ORDER BY o.id ASC;`,
		entities.OrderStatusCompleted, date.Format(dateLayout),
	)
	if err != nil {
		return nil, err
	}

	return orders, nil
}

type upsertedUser struct {
	entities.User
	Inserted bool `db:"inserted"`
}

func (s *PostgresStorage) UpsertUser(ctx context.Context, user entities.User) (entities.User, bool, error) {
	var upserted upsertedUser

	err := s.db.GetContext(
		ctx,
		&upserted,
		`INSERT INTO users (id, username, full_name, ref_code, referred_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username, full_name = EXCLUDED.full_name
		RETURNING id, username, full_name, ref_code, referred_by, bonus_balance, referral_rewarded, created_at,
			(xmax = 0) AS inserted;`,
		user.ID, user.Username, user.FullName, user.ReferralCode, user.ReferredBy,
	)
	if err != nil {
		return entities.User{}, false, mapError(err)
	}

	return upserted.User, upserted.Inserted, nil
}

func (s *PostgresStorage) GetUser(ctx context.Context, id int64) (entities.User, error) {
	var user entities.User

	if err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1;", id); err != nil {
		return entities.User{}, mapError(err)
	}

	return user, nil
}

func (s *PostgresStorage) GetUserByReferralCode(ctx context.Context, code string) (entities.User, error) {
	var user entities.User

	if err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE ref_code = $1;", code); err != nil {
		return entities.User{}, mapError(err)
	}

	return user, nil
}

func (s *PostgresStorage) GetUserIDs(ctx context.Context) ([]int64, error) {
	var ids []int64

	if err := s.db.SelectContext(ctx, &ids, "SELECT id FROM users ORDER BY created_at ASC;"); err != nil {
		return nil, err
	}

	return ids, nil
}

func (s *PostgresStorage) GetRecentUsers(ctx context.Context, limit int) ([]entities.User, error) {
	var users []entities.User

	if err := s.db.SelectContext(ctx, &users, "SELECT * FROM users ORDER BY created_at DESC LIMIT $1;", limit); err != nil {
		return nil, err
	}

	return users, nil
}

func (s *PostgresStorage) CountUsers(ctx context.Context) (int64, error) {
	var count int64

	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM users;"); err != nil {
		return 0, err
	}

	return count, nil
}

func (s *PostgresStorage) CountReferrals(ctx context.Context, userID int64) (int64, error) {
	var count int64

	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM users WHERE referred_by = $1;", userID); err != nil {
		return 0, err
	}

	return count, nil
}

func (s *PostgresStorage) CreditReferralBonus(ctx context.Context, referredID int64, amount decimal.Decimal) (int64, bool, error) {
	var referrerID int64

	err := s.db.GetContext(
		ctx,
		&referrerID,
		`WITH claimed AS (
			UPDATE users SET referral_rewarded = TRUE
			WHERE id = $1 AND referred_by IS NOT NULL AND NOT referral_rewarded
			RETURNING referred_by
		)
		UPDATE users SET bonus_balance = users.bonus_balance + $2
		FROM claimed
		WHERE users.id = claimed.referred_by
		RETURNING users.id;`,
		referredID, amount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}

		return 0, false, err
	}

	return referrerID, true, nil
}

func (s *PostgresStorage) GetServices(ctx context.Context) ([]entities.Service, error) {
	var services []entities.Service

	if err := s.db.SelectContext(ctx, &services, "SELECT * FROM services ORDER BY id ASC;"); err != nil {
		return nil, err
	}

	return services, nil
}

func (s *PostgresStorage) GetService(ctx context.Context, id int64) (entities.Service, error) {
	var service entities.Service

	if err := s.db.GetContext(ctx, &service, "SELECT * FROM services WHERE id = $1;", id); err != nil {
		return entities.Service{}, mapError(err)
	}

	return service, nil
}

func (s *PostgresStorage) GetServiceVariants(ctx context.Context, serviceID int64) ([]entities.Variant, error) {
	var variants []entities.Variant

	err := s.db.SelectContext(ctx, &variants, "SELECT * FROM service_variants WHERE service_id = $1 ORDER BY price ASC;", serviceID)
	if err != nil {
		return nil, err
	}

	return variants, nil
}

func (s *PostgresStorage) GetVariant(ctx context.Context, id int64) (entities.Variant, error) {
	var variant entities.Variant

	if err := s.db.GetContext(ctx, &variant, "SELECT * FROM service_variants WHERE id = $1;", id); err != nil {
		return entities.Variant{}, mapError(err)
	}

	return variant, nil
}

func (s *PostgresStorage) ToggleService(ctx context.Context, id int64) (entities.Service, error) {
	var service entities.Service

	err := s.db.GetContext(ctx, &service, "UPDATE services SET is_active = NOT is_active WHERE id = $1 RETURNING *;", id)
	if err != nil {
		return entities.Service{}, mapError(err)
	}

	return service, nil
}

func (s *PostgresStorage) CreateWithdrawal(ctx context.Context, withdrawal entities.Withdrawal) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}

	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1);", withdrawalLockKey); err != nil {
		return 0, err
	}

	var available decimal.Decimal

	err = tx.GetContext(
		ctx,
		&available,
		`SELECT (SELECT COALESCE(SUM(amount), 0) FROM orders WHERE status = $1)
			- (SELECT COALESCE(SUM(amount), 0) FROM withdrawals WHERE status = $2);`,
		entities.OrderStatusCompleted, entities.WithdrawalStatusCompleted,
	)
	if err != nil {
		return 0, err
	}

	if withdrawal.Amount.GreaterThan(available) {
		return 0, ErrNotEnoughBalance
	}

	var withdrawalID int64

	row := tx.QueryRowxContext(
		ctx,
		`INSERT INTO withdrawals (operator_id, amount, details, status)
		VALUES ($1, $2, $3, $4) RETURNING id;`,
		withdrawal.OperatorID, withdrawal.Amount, withdrawal.Details, entities.WithdrawalStatusCompleted,
	)

	if err := row.Scan(&withdrawalID); err != nil {
		return 0, mapError(err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return withdrawalID, nil
}

func (s *PostgresStorage) GetWithdrawals(ctx context.Context, limit int) ([]entities.Withdrawal, error) {
	var withdrawals []entities.Withdrawal

	if err := s.db.SelectContext(ctx, &withdrawals, "SELECT * FROM withdrawals ORDER BY id DESC LIMIT $1;", limit); err != nil {
		return nil, err
	}

	return withdrawals, nil
}

func (s *PostgresStorage) GetOrderTotals(ctx context.Context) ([]entities.StatusTotal, error) {
	var totals []entities.StatusTotal

	err := s.db.SelectContext(
		ctx,
		&totals,
		"SELECT status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount FROM orders GROUP BY status;",
	)
	if err != nil {
		return nil, err
	}

	return totals, nil
}

func (s *PostgresStorage) GetRevenueSince(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	var revenue decimal.Decimal

	err := s.db.GetContext(
		ctx,
		&revenue,
		"SELECT COALESCE(SUM(amount), 0) FROM orders WHERE status = $1 AND created_at >= $2;",
		entities.OrderStatusCompleted, since,
	)
	if err != nil {
		return decimal.Zero, err
	}

	return revenue, nil
}

func (s *PostgresStorage) CountOrdersSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64

	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM orders WHERE created_at >= $1;", since); err != nil {
		return 0, err
	}

	return count, nil
}

func (s *PostgresStorage) GetRevenueByMethod(ctx context.Context) ([]entities.MethodTotal, error) {
	var totals []entities.MethodTotal

	err := s.db.SelectContext(
		ctx,
		&totals,
		`SELECT payment_method, COALESCE(SUM(amount), 0) AS amount
		FROM orders WHERE status = $1 GROUP BY payment_method ORDER BY payment_method ASC;`,
		entities.OrderStatusCompleted,
	)
	if err != nil {
		return nil, err
	}

	return totals, nil
}

func (s *PostgresStorage) GetWithdrawnTotal(ctx context.Context) (decimal.Decimal, error) {
	var withdrawn decimal.Decimal

	err := s.db.GetContext(
		ctx,
		&withdrawn,
		"SELECT COALESCE(SUM(amount), 0) FROM withdrawals WHERE status = $1;",
		entities.WithdrawalStatusCompleted,
	)
	if err != nil {
		return decimal.Zero, err
	}

	return withdrawn, nil
}

func (s *PostgresStorage) runMigrations(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer tx.Rollback()

	_, err = tx.ExecContext(
		ctx,
		`
		CREATE TABLE IF NOT EXISTS users(
			id BIGINT PRIMARY KEY,
			username TEXT NOT NULL DEFAULT '',
			full_name TEXT NOT NULL DEFAULT '',
			ref_code TEXT NOT NULL UNIQUE,
			referred_by BIGINT DEFAULT NULL CHECK (referred_by <> id),
			bonus_balance NUMERIC(12, 2) NOT NULL DEFAULT 0 CHECK (bonus_balance >= 0),
			referral_rewarded BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS users_referred_by_idx ON users (referred_by);
		`,
	)

	if err != nil {
		return err
	}

	_, err = tx.ExecContext(
		ctx,
		`
		CREATE TABLE IF NOT EXISTS services(
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			emoji TEXT NOT NULL DEFAULT '🔑',
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT 'other',
			min_price NUMERIC(12, 2) NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		);
		CREATE TABLE IF NOT EXISTS service_variants(
			id BIGSERIAL PRIMARY KEY,
			service_id BIGINT NOT NULL REFERENCES services(id),
			duration TEXT NOT NULL,
			price NUMERIC(12, 2) NOT NULL
		);
		`,
	)

	if err != nil {
		return err
	}

	_, err = tx.ExecContext(
		ctx,
		`
		CREATE TABLE IF NOT EXISTS orders(
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			service_id BIGINT NOT NULL,
			variant_id BIGINT NOT NULL,
			amount NUMERIC(12, 2) NOT NULL CHECK (amount > 0),
			status TEXT NOT NULL DEFAULT 'pending',
			payment_method TEXT NOT NULL DEFAULT '',
			correlation_id TEXT NOT NULL DEFAULT '',
			expires_at DATE DEFAULT NULL,
			reminded BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS orders_user_id_idx ON orders (user_id);
		CREATE INDEX IF NOT EXISTS orders_status_idx ON orders (status);
		CREATE INDEX IF NOT EXISTS orders_correlation_id_idx ON orders (correlation_id) WHERE correlation_id <> '';
		CREATE INDEX IF NOT EXISTS orders_expires_at_idx ON orders (expires_at) WHERE NOT reminded;
		`,
	)

	if err != nil {
		return err
	}

	_, err = tx.ExecContext(
		ctx,
		`
		CREATE TABLE IF NOT EXISTS withdrawals(
			id BIGSERIAL PRIMARY KEY,
			operator_id BIGINT NOT NULL,
			amount NUMERIC(12, 2) NOT NULL CHECK (amount > 0),
			details TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'completed',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		`,
	)

	if err != nil {
		return err
	}

	if err := seedCatalog(ctx, tx); err != nil {
		return err
	}

	return tx.Commit()
}

func seedCatalog(ctx context.Context, tx *sqlx.Tx) error {
	for _, service := range seedServices() {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO services (id, name, emoji, description, category, min_price)
			VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING;`,
			service.ID, service.Name, service.Emoji, service.Description, service.Category, service.MinPrice,
		); err != nil {
			return err
		}
	}

	for _, variant := range seedVariants() {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO service_variants (id, service_id, duration, price)
			VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING;`,
			variant.ID, variant.ServiceID, variant.Duration, variant.Price,
		); err != nil {
			return err
		}
	}

	_, err := tx.ExecContext(
		ctx,
		`SELECT setval(pg_get_serial_sequence('services', 'id'), (SELECT MAX(id) FROM services));
		SELECT setval(pg_get_serial_sequence('service_variants', 'id'), (SELECT MAX(id) FROM service_variants));`,
	)

	return err
}
