// internal/storage/postgres/postgres.go
package postgres

import (
	"card-recommender/internal/domain"
	"card-recommender/internal/storage"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type Storage struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewStorage(db *pgxpool.Pool) *Storage {
	return &Storage{db: db, now: time.Now}
}

// validID: ID в базе имеют тип UUID; всё остальное заведомо не найдётся
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// === CardStorage ===

func (s *Storage) ListCards(ctx context.Context, userID string) ([]domain.Card, error) {
	if !validID(userID) {
		return []domain.Card{}, nil
	}

	rows, err := s.db.Query(ctx, `
		SELECT
			c.id, c.user_id, c.name, c.network, c.color, c.base_rate, c.created_at, c.updated_at,
			b.category, b.rate
		FROM cards c
		LEFT JOIN card_category_bonuses b ON b.card_id = c.id
		WHERE c.user_id = $1
		ORDER BY c.created_at, c.seq, b.position
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query cards: %w", err)
	}
	defer rows.Close()

	cards := make([]domain.Card, 0)
	index := make(map[string]int)
	for rows.Next() {
		var c domain.Card
		var category *string
		var rate *float64

		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Network, &c.Color, &c.BaseRate,
			&c.CreatedAt, &c.UpdatedAt, &category, &rate); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}

		i, exists := index[c.ID]
		if !exists {
			c.CategoryBonuses = []domain.CategoryBonus{}
			cards = append(cards, c)
			i = len(cards) - 1
			index[c.ID] = i
		}
		if category != nil && rate != nil {
			cards[i].CategoryBonuses = append(cards[i].CategoryBonuses, domain.CategoryBonus{
				Category: *category,
				Rate:     *rate,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return cards, nil
}

func (s *Storage) GetCard(ctx context.Context, userID, cardID string) (*domain.Card, error) {
	if !validID(userID) || !validID(cardID) {
		return nil, storage.ErrNotFound
	}
	return getCard(ctx, s.db, userID, cardID)
}

// querier: общий интерфейс пула и транзакции
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getCard(ctx context.Context, q querier, userID, cardID string) (*domain.Card, error) {
	var c domain.Card
	err := q.QueryRow(ctx, `
		SELECT id, user_id, name, network, color, base_rate, created_at, updated_at
		FROM cards
		WHERE id = $1 AND user_id = $2
	`, cardID, userID).Scan(&c.ID, &c.UserID, &c.Name, &c.Network, &c.Color, &c.BaseRate, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("find card: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT category, rate FROM card_category_bonuses
		WHERE card_id = $1
		ORDER BY position
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("query bonuses: %w", err)
	}
	defer rows.Close()

	c.CategoryBonuses = []domain.CategoryBonus{}
	for rows.Next() {
		var b domain.CategoryBonus
		if err := rows.Scan(&b.Category, &b.Rate); err != nil {
			return nil, fmt.Errorf("scan bonus: %w", err)
		}
		c.CategoryBonuses = append(c.CategoryBonuses, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return &c, nil
}

func (s *Storage) InsertCard(ctx context.Context, userID string, card domain.Card) (*domain.Card, error) {
	if !validID(userID) {
		return nil, fmt.Errorf("invalid user id %q", userID)
	}
	rec := storage.NewCardRecord(userID, card, s.now().UTC())

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO cards (id, user_id, name, network, color, base_rate, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.UserID, rec.Name, rec.Network, rec.Color, rec.BaseRate, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert card: %w", err)
	}

	if err := insertBonuses(ctx, tx, rec.ID, rec.CategoryBonuses); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	slog.Debug("InsertCard completed", "user_id", userID, "card_id", rec.ID)
	return &rec, nil
}

func (s *Storage) UpdateCard(ctx context.Context, userID, cardID string, card domain.Card) (*domain.Card, error) {
	if !validID(userID) || !validID(cardID) {
		return nil, storage.ErrNotFound
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	existing, err := getCard(ctx, tx, userID, cardID)
	if err != nil {
		return nil, err
	}
	updated := storage.ApplyCardUpdate(*existing, card, s.now().UTC())

	_, err = tx.Exec(ctx, `
		UPDATE cards
		SET name = $3, network = $4, color = $5, base_rate = $6, updated_at = $7
		WHERE id = $1 AND user_id = $2
	`, cardID, userID, updated.Name, updated.Network, updated.Color, updated.BaseRate, updated.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update card: %w", err)
	}

	_, err = tx.Exec(ctx, "DELETE FROM card_category_bonuses WHERE card_id = $1", cardID)
	if err != nil {
		return nil, fmt.Errorf("clear old bonuses: %w", err)
	}
	if err := insertBonuses(ctx, tx, cardID, updated.CategoryBonuses); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &updated, nil
}

func insertBonuses(ctx context.Context, tx pgx.Tx, cardID string, bonuses []domain.CategoryBonus) error {
	for i, b := range bonuses {
		_, err := tx.Exec(ctx, `
			INSERT INTO card_category_bonuses (card_id, position, category, rate)
			VALUES ($1, $2, $3, $4)
		`, cardID, i, b.Category, b.Rate)
		if err != nil {
			return fmt.Errorf("insert bonus %q: %w", b.Category, err)
		}
	}
	return nil
}

func (s *Storage) DeleteCard(ctx context.Context, userID, cardID string) error {
	if !validID(userID) || !validID(cardID) {
		return storage.ErrNotFound
	}

	result, err := s.db.Exec(ctx, "DELETE FROM cards WHERE id = $1 AND user_id = $2", cardID, userID)
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// === UserStorage ===

func (s *Storage) CreateUser(ctx context.Context, email, passwordHash string) (*domain.User, error) {
	u := domain.User{
		ID:           uuid.NewString(),
		Email:        storage.NormalizeEmail(email),
		PasswordHash: passwordHash,
		CreatedAt:    s.now().UTC(),
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, created_at) VALUES ($1, $2, $3, $4)
	`, u.ID, u.Email, u.PasswordHash, u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, storage.ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &u, nil
}

func (s *Storage) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := s.db.QueryRow(ctx, `
		SELECT id, email, password_hash, created_at FROM users WHERE email = $1
	`, storage.NormalizeEmail(email)).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (s *Storage) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	if !validID(userID) {
		return nil, storage.ErrNotFound
	}

	var u domain.User
	err := s.db.QueryRow(ctx, `
		SELECT id, email, password_hash, created_at FROM users WHERE id = $1
	`, userID).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// === SettingsStorage ===

func (s *Storage) GetSettings(ctx context.Context, userID string) (*domain.UserSettings, error) {
	st := domain.UserSettings{UserID: userID}
	if !validID(userID) {
		return &st, nil
	}

	err := s.db.QueryRow(ctx, `
		SELECT location_enabled, telegram_id FROM user_settings WHERE user_id = $1
	`, userID).Scan(&st.LocationEnabled, &st.TelegramID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return &st, nil
}

func (s *Storage) SetLocationEnabled(ctx context.Context, userID string, enabled bool) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO user_settings (user_id, location_enabled) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET location_enabled = EXCLUDED.location_enabled
	`, userID, enabled)
	if err != nil {
		return fmt.Errorf("set location enabled: %w", err)
	}
	return nil
}

func (s *Storage) LinkTelegram(ctx context.Context, userID string, telegramID int64) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE user_settings SET telegram_id = NULL
		WHERE telegram_id = $1 AND user_id <> $2
	`, telegramID, userID)
	if err != nil {
		return fmt.Errorf("unlink previous owner: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO user_settings (user_id, telegram_id) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET telegram_id = EXCLUDED.telegram_id
	`, userID, telegramID)
	if err != nil {
		return fmt.Errorf("link telegram: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *Storage) UserByTelegram(ctx context.Context, telegramID int64) (string, error) {
	var userID string
	err := s.db.QueryRow(ctx, `
		SELECT user_id FROM user_settings WHERE telegram_id = $1
	`, telegramID).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("find telegram link: %w", err)
	}
	return userID, nil
}
