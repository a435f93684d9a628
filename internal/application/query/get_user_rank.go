package query

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/sam399/gamehub-engine/internal/domain/leaderboard"
	"github.com/sam399/gamehub-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET USER RANK QUERY
// Возвращает позицию игрока в лидерборде и его соседей по рейтингу.
// Подсказка рангов используется только как быстрый ответ "есть ли игрок
// вообще"; сама запись всегда читается из хранилища.
// ══════════════════════════════════════════════════════════════════════════════

// GetUserRankQuery содержит параметры запроса позиции игрока.
type GetUserRankQuery struct {
	// LeaderboardID - идентификатор лидерборда.
	LeaderboardID string

	// UserID - идентификатор игрока.
	UserID string

	// NeighborRadius - сколько соседей по каждую сторону вернуть
	// (0 = без соседей, максимум 10).
	NeighborRadius int
}

// Validate проверяет и нормализует параметры запроса.
func (q *GetUserRankQuery) Validate() error {
	if q.LeaderboardID == "" {
		return errors.New("leaderboard id is required")
	}
	if q.UserID == "" {
		return errors.New("user id is required")
	}
	if q.NeighborRadius < 0 {
		return errors.New("neighbor radius cannot be negative")
	}
	if q.NeighborRadius > 10 {
		q.NeighborRadius = 10
	}
	return nil
}

// GetUserRankResult содержит позицию игрока и контекст вокруг неё.
type GetUserRankResult struct {
	// LeaderboardID - идентификатор лидерборда.
	LeaderboardID string `json:"leaderboard_id"`

	// Entry - запись игрока.
	Entry EntryDTO `json:"entry"`

	// TotalCount - общее количество участников.
	TotalCount int `json:"total_count"`

	// Percentile - доля участников, которых игрок опережает (0-100).
	Percentile float64 `json:"percentile"`

	// HintRank - оптимистичный ранг из кеша-подсказки, если тот свежее
	// сохранённого (0 = подсказки нет или она совпадает).
	HintRank int `json:"hint_rank,omitempty"`

	// Neighbors - соседние записи, включая самого игрока, по рангу.
	Neighbors []EntryDTO `json:"neighbors,omitempty"`

	// GeneratedAt - время генерации результата.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetUserRankHandler обрабатывает запросы позиции игрока.
type GetUserRankHandler struct {
	entries leaderboard.EntryRepository
	hint    leaderboard.RankHintCache // nil, если Redis недоступен
}

// NewGetUserRankHandler создаёт обработчик. hint может быть nil.
func NewGetUserRankHandler(entries leaderboard.EntryRepository, hint leaderboard.RankHintCache) *GetUserRankHandler {
	return &GetUserRankHandler{entries: entries, hint: hint}
}

// Handle выполняет запрос позиции игрока.
func (h *GetUserRankHandler) Handle(ctx context.Context, query GetUserRankQuery) (*GetUserRankResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetUserRank", shared.ErrValidation, err.Error(), err)
	}

	userID := shared.UserID(query.UserID)

	entry, err := h.entries.GetEntry(ctx, query.LeaderboardID, userID)
	if err != nil {
		return nil, err
	}

	total, err := h.entries.CountByLeaderboard(ctx, query.LeaderboardID)
	if err != nil {
		return nil, shared.WrapError("query", "GetUserRank", shared.ErrExternalService, "count entries", err)
	}

	result := &GetUserRankResult{
		LeaderboardID: query.LeaderboardID,
		Entry:         toEntryDTO(entry),
		TotalCount:    total,
		Percentile:    percentile(int(entry.Rank), total),
		GeneratedAt:   time.Now().UTC(),
	}

	// Между полными пересчётами подсказка может знать более свежий ранг
	// (узкий путь OnScoreWrite). Сохранённый ранг остаётся истиной.
	if h.hint != nil {
		if hintRank, hintErr := h.hint.GetHintRank(ctx, query.LeaderboardID, userID); hintErr == nil &&
			hintRank != leaderboard.Unranked && hintRank != entry.Rank {
			result.HintRank = int(hintRank)
		}
	}

	if query.NeighborRadius > 0 {
		neighbors, err := h.loadNeighbors(ctx, query.LeaderboardID, int(entry.Rank), query.NeighborRadius)
		if err == nil {
			result.Neighbors = neighbors
		}
	}

	return result, nil
}

// loadNeighbors читает окно записей вокруг ранга. Читается префикс рейтинга
// до нижней границы окна и отрезается нужный кусок: ранги смежные, поэтому
// ранг однозначно задаёт позицию в префиксе.
func (h *GetUserRankHandler) loadNeighbors(ctx context.Context, leaderboardID string, rank, radius int) ([]EntryDTO, error) {
	start := rank - radius
	if start < 1 {
		start = 1
	}
	end := rank + radius

	prefix, err := h.entries.GetTop(ctx, leaderboardID, end)
	if err != nil {
		return nil, err
	}
	if start-1 >= len(prefix) {
		return nil, nil
	}
	window := prefix[start-1:]

	dtos := make([]EntryDTO, len(window))
	for i, e := range window {
		dtos[i] = toEntryDTO(e)
	}
	return dtos, nil
}

// percentile возвращает долю участников не выше игрока (0-100).
func percentile(rank, total int) float64 {
	if total <= 0 || rank <= 0 {
		return 0
	}
	p := float64(total-rank) / float64(total) * 100
	return math.Round(p*10) / 10
}
