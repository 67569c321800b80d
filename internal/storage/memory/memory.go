// internal/storage/memory/memory.go
package memory

import (
	"card-recommender/internal/domain"
	"card-recommender/internal/storage"
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Storage хранит всё в памяти процесса. Подходит для локального запуска и тестов.
type Storage struct {
	mu        sync.RWMutex
	cards     map[string]map[string]domain.Card // userID -> cardID -> card
	users     map[string]domain.User
	byEmail   map[string]string
	settings  map[string]domain.UserSettings
	telegrams map[int64]string

	// порядок вставки: при равном CreatedAt он решает, какая карта первая
	seq     map[string]uint64 // cardID -> номер вставки
	nextSeq uint64

	now func() time.Time
}

func NewStorage() *Storage {
	return &Storage{
		cards:     make(map[string]map[string]domain.Card),
		users:     make(map[string]domain.User),
		byEmail:   make(map[string]string),
		settings:  make(map[string]domain.UserSettings),
		telegrams: make(map[int64]string),
		seq:       make(map[string]uint64),
		now:       time.Now,
	}
}

// === CardStorage ===

func (s *Storage) ListCards(ctx context.Context, userID string) ([]domain.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Card, 0, len(s.cards[userID]))
	for _, c := range s.cards[userID] {
		out = append(out, cloneCard(c))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return s.seq[out[i].ID] < s.seq[out[j].ID]
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Storage) GetCard(ctx context.Context, userID, cardID string) (*domain.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cards[userID][cardID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c = cloneCard(c)
	return &c, nil
}

func (s *Storage) InsertCard(ctx context.Context, userID string, card domain.Card) (*domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := storage.NewCardRecord(userID, card, s.now())
	if s.cards[userID] == nil {
		s.cards[userID] = make(map[string]domain.Card)
	}
	s.cards[userID][rec.ID] = rec
	s.nextSeq++
	s.seq[rec.ID] = s.nextSeq

	slog.Debug("card inserted", "user_id", userID, "card_id", rec.ID)
	out := cloneCard(rec)
	return &out, nil
}

func (s *Storage) UpdateCard(ctx context.Context, userID, cardID string, card domain.Card) (*domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.cards[userID][cardID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	updated := storage.ApplyCardUpdate(existing, card, s.now())
	s.cards[userID][cardID] = updated

	out := cloneCard(updated)
	return &out, nil
}

func (s *Storage) DeleteCard(ctx context.Context, userID, cardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cards[userID][cardID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.cards[userID], cardID)
	delete(s.seq, cardID)
	return nil
}

// === UserStorage ===

func (s *Storage) CreateUser(ctx context.Context, email, passwordHash string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = storage.NormalizeEmail(email)
	if _, taken := s.byEmail[email]; taken {
		return nil, storage.ErrEmailTaken
	}

	u := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    s.now(),
	}
	s.users[u.ID] = u
	s.byEmail[email] = u.ID
	return &u, nil
}

func (s *Storage) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[storage.NormalizeEmail(email)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	u := s.users[id]
	return &u, nil
}

func (s *Storage) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &u, nil
}

// === SettingsStorage ===

func (s *Storage) GetSettings(ctx context.Context, userID string) (*domain.UserSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.settings[userID]
	if !ok {
		st = domain.UserSettings{UserID: userID}
	}
	return &st, nil
}

func (s *Storage) SetLocationEnabled(ctx context.Context, userID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.settings[userID]
	st.UserID = userID
	st.LocationEnabled = enabled
	s.settings[userID] = st
	return nil
}

func (s *Storage) LinkTelegram(ctx context.Context, userID string, telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// у telegram-аккаунта только один владелец
	if prev, ok := s.telegrams[telegramID]; ok && prev != userID {
		st := s.settings[prev]
		st.TelegramID = nil
		s.settings[prev] = st
	}
	st := s.settings[userID]
	if st.TelegramID != nil {
		delete(s.telegrams, *st.TelegramID)
	}
	st.UserID = userID
	id := telegramID
	st.TelegramID = &id
	s.settings[userID] = st
	s.telegrams[telegramID] = userID
	return nil
}

func (s *Storage) UserByTelegram(ctx context.Context, telegramID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.telegrams[telegramID]
	if !ok {
		return "", storage.ErrNotFound
	}
	return userID, nil
}

func cloneCard(c domain.Card) domain.Card {
	bonuses := make([]domain.CategoryBonus, len(c.CategoryBonuses))
	copy(bonuses, c.CategoryBonuses)
	c.CategoryBonuses = bonuses
	return c
}
