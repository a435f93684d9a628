// Package query содержит операции чтения (CQRS).
// Запросы никогда не меняют состояние - только читают и возвращают данные.
// Каждый запрос - самостоятельный use case со своими типами входа/выхода.
package query

import (
	"context"
	"errors"
	"time"

	"github.com/sam399/gamehub-engine/internal/domain/leaderboard"
	"github.com/sam399/gamehub-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Возвращает страницу лидерборда. Первая страница читается из подсказки
// рангов, если та прогрета; истина всегда в постоянном хранилище.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery содержит параметры запроса страницы лидерборда.
type GetLeaderboardQuery struct {
	// LeaderboardID - идентификатор лидерборда.
	LeaderboardID string

	// Page - номер страницы (1-based, 0 трактуется как 1).
	Page int

	// PageSize - размер страницы (по умолчанию 20, максимум 100).
	PageSize int

	// IncludePrivate - возвращать и непубличные лидерборды.
	// Публичность - свойство определения; запросы платформы передают false.
	IncludePrivate bool
}

// Validate проверяет и нормализует параметры запроса.
func (q *GetLeaderboardQuery) Validate() error {
	if q.LeaderboardID == "" {
		return errors.New("leaderboard id is required")
	}
	if q.Page < 0 {
		return errors.New("page cannot be negative")
	}
	if q.PageSize < 0 {
		return errors.New("page size cannot be negative")
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = shared.DefaultPageSize
	}
	if q.PageSize > shared.MaxPageSize {
		q.PageSize = shared.MaxPageSize
	}
	return nil
}

// EntryDTO - одна строка лидерборда для внешнего потребителя.
type EntryDTO struct {
	// Rank - позиция в рейтинге (начиная с 1).
	Rank int `json:"rank"`

	// UserID - идентификатор игрока.
	UserID string `json:"user_id"`

	// Score - итоговые очки по метрике лидерборда.
	Score float64 `json:"score"`

	// Metadata - разбивка очков по источникам (для custom-метрик).
	Metadata map[string]float64 `json:"metadata,omitempty"`

	// LastUpdatedAt - момент последнего изменения записи.
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// GetLeaderboardResult содержит страницу лидерборда с метаданными.
type GetLeaderboardResult struct {
	// LeaderboardID - идентификатор лидерборда.
	LeaderboardID string `json:"leaderboard_id"`

	// Name - отображаемое имя лидерборда.
	Name string `json:"name"`

	// Metric - метрика, по которой считаются очки.
	Metric string `json:"metric"`

	// Direction - направление сортировки (highest_wins / lowest_wins).
	Direction string `json:"direction"`

	// Entries - записи страницы.
	Entries []EntryDTO `json:"entries"`

	// TotalCount - общее количество участников.
	TotalCount int `json:"total_count"`

	// Page - текущая страница (1-based).
	Page int `json:"page"`

	// PageSize - размер страницы.
	PageSize int `json:"page_size"`

	// HasMore - есть ли записи после текущей страницы.
	HasMore bool `json:"has_more"`

	// FromHint - страница отдана из кеша-подсказки, а не из хранилища.
	FromHint bool `json:"from_hint"`

	// LastRefreshedAt - момент последнего успешного пересчёта.
	LastRefreshedAt time.Time `json:"last_refreshed_at"`

	// GeneratedAt - время генерации результата.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetLeaderboardHandler обрабатывает запросы страниц лидерборда.
type GetLeaderboardHandler struct {
	definitions leaderboard.DefinitionRepository
	entries     leaderboard.EntryRepository
	hint        leaderboard.RankHintCache // nil, если Redis недоступен
}

// NewGetLeaderboardHandler создаёт обработчик. hint может быть nil.
func NewGetLeaderboardHandler(
	definitions leaderboard.DefinitionRepository,
	entries leaderboard.EntryRepository,
	hint leaderboard.RankHintCache,
) *GetLeaderboardHandler {
	return &GetLeaderboardHandler{
		definitions: definitions,
		entries:     entries,
		hint:        hint,
	}
}

// Handle выполняет запрос страницы лидерборда.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, query GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetLeaderboard", shared.ErrValidation, err.Error(), err)
	}

	def, err := h.definitions.GetByID(ctx, query.LeaderboardID)
	if err != nil {
		return nil, err
	}
	if !def.IsPublic && !query.IncludePrivate {
		return nil, shared.ErrLeaderboardNotFound
	}

	total, err := h.entries.CountByLeaderboard(ctx, query.LeaderboardID)
	if err != nil {
		return nil, shared.WrapError("query", "GetLeaderboard", shared.ErrExternalService, "count entries", err)
	}

	// Первая страница - горячий путь; подсказка избавляет от чтения таблицы.
	var (
		page     []*leaderboard.Entry
		fromHint bool
	)
	if query.Page == 1 && h.hint != nil {
		cached, hintErr := h.hint.GetHintTop(ctx, query.LeaderboardID, query.PageSize)
		if hintErr == nil && len(cached) > 0 {
			page = cached
			fromHint = true
		}
	}
	if page == nil {
		page, err = h.entries.GetPage(ctx, query.LeaderboardID, shared.Pagination{
			Page:     query.Page,
			PageSize: query.PageSize,
		})
		if err != nil {
			return nil, shared.WrapError("query", "GetLeaderboard", shared.ErrExternalService, "read page", err)
		}
	}

	dtos := make([]EntryDTO, len(page))
	for i, entry := range page {
		dtos[i] = toEntryDTO(entry)
	}

	offset := (query.Page - 1) * query.PageSize

	return &GetLeaderboardResult{
		LeaderboardID:   def.ID,
		Name:            def.Name,
		Metric:          def.Metric.String(),
		Direction:       string(def.Direction),
		Entries:         dtos,
		TotalCount:      total,
		Page:            query.Page,
		PageSize:        query.PageSize,
		HasMore:         offset+len(dtos) < total,
		FromHint:        fromHint,
		LastRefreshedAt: def.LastRefreshedAt,
		GeneratedAt:     time.Now().UTC(),
	}, nil
}

// toEntryDTO конвертирует доменную запись в DTO.
func toEntryDTO(e *leaderboard.Entry) EntryDTO {
	return EntryDTO{
		Rank:          int(e.Rank),
		UserID:        e.UserID.String(),
		Score:         e.Score.Float64(),
		Metadata:      e.Metadata,
		LastUpdatedAt: e.LastUpdatedAt,
	}
}
