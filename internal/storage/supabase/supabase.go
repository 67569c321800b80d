// internal/storage/supabase/supabase.go
package supabase

import (
	"card-recommender/internal/domain"
	"card-recommender/internal/storage"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	supa "github.com/supabase-community/supabase-go"
)

const cardColumns = "id,user_id,name,network,color,base_rate,created_at,updated_at,seq,card_category_bonuses(position,category,rate)"

// Storage работает с той же схемой, что и postgres, но через PostgREST API Supabase.
type Storage struct {
	client *supa.Client
	now    func() time.Time
}

// NewClient создаёт клиента Supabase по URL проекта и ключу
func NewClient(url, key string) (*supa.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("supabase url is empty")
	}
	if key == "" {
		return nil, fmt.Errorf("supabase key is empty")
	}
	client, err := supa.NewClient(url, key, &supa.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("init supabase client: %w", err)
	}
	return client, nil
}

func NewStorage(client *supa.Client) *Storage {
	return &Storage{client: client, now: time.Now}
}

type bonusRow struct {
	Position int     `json:"position"`
	Category string  `json:"category"`
	Rate     float64 `json:"rate"`
}

type bonusInsertRow struct {
	CardID   string  `json:"card_id"`
	Position int     `json:"position"`
	Category string  `json:"category"`
	Rate     float64 `json:"rate"`
}

type cardRow struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Name      string     `json:"name"`
	Network   string     `json:"network"`
	Color     string     `json:"color"`
	BaseRate  float64    `json:"base_rate"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Seq       int64      `json:"seq,omitempty"` // bigserial, при вставке заполняет база
	Bonuses   []bonusRow `json:"card_category_bonuses,omitempty"`
}

type cardUpdateRow struct {
	Name      string    `json:"name"`
	Network   string    `json:"network"`
	Color     string    `json:"color"`
	BaseRate  float64   `json:"base_rate"`
	UpdatedAt time.Time `json:"updated_at"`
}

type userRow struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

type settingsRow struct {
	UserID          string `json:"user_id"`
	LocationEnabled bool   `json:"location_enabled"`
	TelegramID      *int64 `json:"telegram_id"`
}

func (r cardRow) toDomain() domain.Card {
	bonuses := append([]bonusRow(nil), r.Bonuses...)
	sort.SliceStable(bonuses, func(i, j int) bool { return bonuses[i].Position < bonuses[j].Position })

	c := domain.Card{
		ID:              r.ID,
		UserID:          r.UserID,
		Name:            r.Name,
		Network:         r.Network,
		Color:           r.Color,
		BaseRate:        r.BaseRate,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		CategoryBonuses: make([]domain.CategoryBonus, 0, len(bonuses)),
	}
	for _, b := range bonuses {
		c.CategoryBonuses = append(c.CategoryBonuses, domain.CategoryBonus{Category: b.Category, Rate: b.Rate})
	}
	return c
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// === CardStorage ===

func (s *Storage) ListCards(ctx context.Context, userID string) ([]domain.Card, error) {
	if !validID(userID) {
		return []domain.Card{}, nil
	}

	data, _, err := s.client.From("cards").Select(cardColumns, "exact", false).Eq("user_id", userID).Execute()
	if err != nil {
		return nil, fmt.Errorf("select cards: %w", err)
	}

	var rows []cardRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal cards: %w", err)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].Seq < rows[j].Seq
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})

	cards := make([]domain.Card, 0, len(rows))
	for _, r := range rows {
		cards = append(cards, r.toDomain())
	}
	return cards, nil
}

func (s *Storage) GetCard(ctx context.Context, userID, cardID string) (*domain.Card, error) {
	if !validID(userID) || !validID(cardID) {
		return nil, storage.ErrNotFound
	}

	data, _, err := s.client.From("cards").Select(cardColumns, "exact", false).
		Eq("id", cardID).
		Eq("user_id", userID).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("select card: %w", err)
	}

	var rows []cardRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal card: %w", err)
	}
	if len(rows) == 0 {
		return nil, storage.ErrNotFound
	}
	c := rows[0].toDomain()
	return &c, nil
}

func (s *Storage) InsertCard(ctx context.Context, userID string, card domain.Card) (*domain.Card, error) {
	if !validID(userID) {
		return nil, fmt.Errorf("invalid user id %q", userID)
	}
	rec := storage.NewCardRecord(userID, card, s.now().UTC())

	row := cardRow{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Name:      rec.Name,
		Network:   rec.Network,
		Color:     rec.Color,
		BaseRate:  rec.BaseRate,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if _, _, err := s.client.From("cards").Insert(row, false, "", "minimal", "").Execute(); err != nil {
		return nil, fmt.Errorf("insert card: %w", err)
	}

	// PostgREST не даёт транзакций между запросами; при ошибке убираем карту
	if err := s.insertBonuses(rec.ID, rec.CategoryBonuses); err != nil {
		_, _, _ = s.client.From("cards").Delete("minimal", "").Eq("id", rec.ID).Execute()
		return nil, err
	}
	return &rec, nil
}

func (s *Storage) insertBonuses(cardID string, bonuses []domain.CategoryBonus) error {
	if len(bonuses) == 0 {
		return nil
	}
	rows := make([]bonusInsertRow, 0, len(bonuses))
	for i, b := range bonuses {
		rows = append(rows, bonusInsertRow{CardID: cardID, Position: i, Category: b.Category, Rate: b.Rate})
	}
	if _, _, err := s.client.From("card_category_bonuses").Insert(rows, false, "", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("insert bonuses: %w", err)
	}
	return nil
}

func (s *Storage) UpdateCard(ctx context.Context, userID, cardID string, card domain.Card) (*domain.Card, error) {
	existing, err := s.GetCard(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}
	updated := storage.ApplyCardUpdate(*existing, card, s.now().UTC())

	patch := cardUpdateRow{
		Name:      updated.Name,
		Network:   updated.Network,
		Color:     updated.Color,
		BaseRate:  updated.BaseRate,
		UpdatedAt: updated.UpdatedAt,
	}
	data, _, err := s.client.From("cards").Update(patch, "representation", "").
		Eq("id", cardID).
		Eq("user_id", userID).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("update card: %w", err)
	}
	var rows []cardRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal updated card: %w", err)
	}
	if len(rows) == 0 {
		return nil, storage.ErrNotFound
	}

	if _, _, err := s.client.From("card_category_bonuses").Delete("minimal", "").Eq("card_id", cardID).Execute(); err != nil {
		return nil, fmt.Errorf("clear old bonuses: %w", err)
	}
	if err := s.insertBonuses(cardID, updated.CategoryBonuses); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Storage) DeleteCard(ctx context.Context, userID, cardID string) error {
	if !validID(userID) || !validID(cardID) {
		return storage.ErrNotFound
	}

	data, _, err := s.client.From("cards").Delete("representation", "").
		Eq("id", cardID).
		Eq("user_id", userID).
		Execute()
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	var rows []cardRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("unmarshal deleted card: %w", err)
	}
	if len(rows) == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// === UserStorage ===

func (s *Storage) CreateUser(ctx context.Context, email, passwordHash string) (*domain.User, error) {
	row := userRow{
		ID:           uuid.NewString(),
		Email:        storage.NormalizeEmail(email),
		PasswordHash: passwordHash,
		CreatedAt:    s.now().UTC(),
	}
	if _, _, err := s.client.From("users").Insert(row, false, "", "minimal", "").Execute(); err != nil {
		if strings.Contains(err.Error(), "23505") || strings.Contains(err.Error(), "duplicate key") {
			return nil, storage.ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &domain.User{ID: row.ID, Email: row.Email, PasswordHash: row.PasswordHash, CreatedAt: row.CreatedAt}, nil
}

func (s *Storage) findUser(column, value string) (*domain.User, error) {
	data, _, err := s.client.From("users").Select("*", "exact", false).Eq(column, value).Execute()
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	var rows []userRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	if len(rows) == 0 {
		return nil, storage.ErrNotFound
	}
	r := rows[0]
	return &domain.User{ID: r.ID, Email: r.Email, PasswordHash: r.PasswordHash, CreatedAt: r.CreatedAt}, nil
}

func (s *Storage) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.findUser("email", storage.NormalizeEmail(email))
}

func (s *Storage) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	if !validID(userID) {
		return nil, storage.ErrNotFound
	}
	return s.findUser("id", userID)
}

// === SettingsStorage ===

func (s *Storage) GetSettings(ctx context.Context, userID string) (*domain.UserSettings, error) {
	st := domain.UserSettings{UserID: userID}
	if !validID(userID) {
		return &st, nil
	}

	data, _, err := s.client.From("user_settings").Select("*", "exact", false).Eq("user_id", userID).Execute()
	if err != nil {
		return nil, fmt.Errorf("select settings: %w", err)
	}
	var rows []settingsRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	if len(rows) > 0 {
		st.LocationEnabled = rows[0].LocationEnabled
		st.TelegramID = rows[0].TelegramID
	}
	return &st, nil
}

func (s *Storage) SetLocationEnabled(ctx context.Context, userID string, enabled bool) error {
	row := map[string]any{"user_id": userID, "location_enabled": enabled}
	if _, _, err := s.client.From("user_settings").Insert(row, true, "user_id", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}

func (s *Storage) LinkTelegram(ctx context.Context, userID string, telegramID int64) error {
	tid := strconv.FormatInt(telegramID, 10)
	_, _, err := s.client.From("user_settings").Update(map[string]any{"telegram_id": nil}, "minimal", "").
		Eq("telegram_id", tid).
		Neq("user_id", userID).
		Execute()
	if err != nil {
		return fmt.Errorf("unlink previous owner: %w", err)
	}

	row := map[string]any{"user_id": userID, "telegram_id": telegramID}
	if _, _, err := s.client.From("user_settings").Insert(row, true, "user_id", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("link telegram: %w", err)
	}
	return nil
}

func (s *Storage) UserByTelegram(ctx context.Context, telegramID int64) (string, error) {
	data, _, err := s.client.From("user_settings").Select("user_id", "exact", false).
		Eq("telegram_id", strconv.FormatInt(telegramID, 10)).
		Execute()
	if err != nil {
		return "", fmt.Errorf("select telegram link: %w", err)
	}
	var rows []settingsRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return "", fmt.Errorf("unmarshal telegram link: %w", err)
	}
	if len(rows) == 0 {
		return "", storage.ErrNotFound
	}
	return rows[0].UserID, nil
}
