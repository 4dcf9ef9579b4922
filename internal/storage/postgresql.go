// Package storage реализует хранилище подписчиков на основе PostgreSQL.
// Предоставляет создание, чтение по id и email и применение сверочных
// обновлений с охраной от перезаписи customer id и устаревших событий.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/magabrotheeeer/billing-gateway/internal/models"
)

var (
	// ErrSubscriberNotFound подписчик отсутствует в базе.
	ErrSubscriberNotFound = errors.New("subscriber not found")
	// ErrSubscriberExists подписчик с таким email уже зарегистрирован.
	ErrSubscriberExists = errors.New("subscriber already exists")
)

const uniqueViolation = "23505"

// Storage инкапсулирует соединение с базой данных PostgreSQL
// и реализует методы работы с подписчиками.
type Storage struct {
	DB *sql.DB
}

// New создаёт подключение к PostgreSQL.
func New(storageConnectionString string) (*Storage, error) {
	const op = "storage.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{
		DB: db,
	}, nil
}

const subscriberColumns = `id, email, name, password_hash, subscription_status,
			   subscription_tier, trial_ends_at, external_customer_id,
			   external_subscription_id, last_event_at, created_at, updated_at`

func scanSubscriber(row interface{ Scan(...any) error }) (*models.Subscriber, error) {
	var sub models.Subscriber
	err := row.Scan(&sub.ID, &sub.Email, &sub.Name, &sub.PasswordHash,
		&sub.SubscriptionStatus, &sub.SubscriptionTier, &sub.TrialEndsAt,
		&sub.ExternalCustomerID, &sub.ExternalSubscriptionID, &sub.LastEventAt,
		&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreateSubscriber сохраняет нового подписчика и возвращает его ID.
// Email уникален; повторная регистрация возвращает ErrSubscriberExists.
func (s *Storage) CreateSubscriber(ctx context.Context, email, name, passwordHash string) (string, error) {
	const op = "storage.CreateSubscriber"

	newID := uuid.NewString()
	query := `INSERT INTO subscribers (id, email, name, password_hash, subscription_status, subscription_tier)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING id;`
	if err := s.DB.QueryRowContext(ctx, query,
		newID, email, name, passwordHash, models.StatusNone, models.TierStarter).Scan(&newID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", fmt.Errorf("%s: %w", op, ErrSubscriberExists)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// GetByID возвращает подписчика по идентификатору.
func (s *Storage) GetByID(ctx context.Context, id string) (*models.Subscriber, error) {
	const op = "storage.GetByID"

	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE id = $1;`
	sub, err := scanSubscriber(s.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrSubscriberNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// GetByEmail возвращает подписчика по email (email хранится в нижнем регистре).
func (s *Storage) GetByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	const op = "storage.GetByEmail"

	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE email = $1;`
	sub, err := scanSubscriber(s.DB.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrSubscriberNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// ApplyReconcile применяет сверочное обновление одной командой UPDATE.
// Гарантии переносятся в SQL, чтобы параллельные обновления не требовали
// внешней блокировки:
//   - external_customer_id после первой установки не перезаписывается;
//   - обновление с токеном упорядочивания не новее уже применённого
//     не применяется (applied = false, возвращается текущая запись);
//   - обновление без токена (административное) применяется безусловно.
func (s *Storage) ApplyReconcile(ctx context.Context, id string, upd models.ReconcileUpdate) (*models.Subscriber, bool, error) {
	const op = "storage.ApplyReconcile"

	query := `UPDATE subscribers SET
				external_customer_id = COALESCE(external_customer_id, $2),
				external_subscription_id = COALESCE($3, external_subscription_id),
				subscription_status = COALESCE($4, subscription_status),
				subscription_tier = COALESCE($5, subscription_tier),
				last_event_at = COALESCE($6, last_event_at),
				updated_at = now()
			  WHERE id = $1
				AND ($6::timestamptz IS NULL OR last_event_at IS NULL OR last_event_at < $6)
			  RETURNING ` + subscriberColumns + `;`

	var status, tier *string
	if upd.Status != nil {
		v := string(*upd.Status)
		status = &v
	}
	if upd.Tier != nil {
		v := string(*upd.Tier)
		tier = &v
	}

	sub, err := scanSubscriber(s.DB.QueryRowContext(ctx, query,
		id, upd.ExternalCustomerID, upd.ExternalSubscriptionID, status, tier, upd.EventAt))
	if errors.Is(err, sql.ErrNoRows) {
		// либо подписчика нет, либо событие устарело
		current, getErr := s.GetByID(ctx, id)
		if getErr != nil {
			return nil, false, fmt.Errorf("%s: %w", op, getErr)
		}
		return current, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return sub, true, nil
}
