package query

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/sam399/gamehub-engine/internal/domain/achievement"
	"github.com/sam399/gamehub-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ACHIEVEMENT PROGRESS QUERY
// Возвращает прогресс игрока по достижениям, объединённый с определениями.
// Прогресс без активного определения не показывается (достижение сняли).
// ══════════════════════════════════════════════════════════════════════════════

// GetAchievementProgressQuery содержит параметры запроса прогресса.
type GetAchievementProgressQuery struct {
	// UserID - идентификатор игрока.
	UserID string

	// GameID - ограничить достижениями одной игры (пусто = все).
	GameID string

	// OnlyUnlocked - вернуть только разблокированные достижения.
	OnlyUnlocked bool
}

// Validate проверяет параметры запроса.
func (q *GetAchievementProgressQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user id is required")
	}
	return nil
}

// ProgressDTO - прогресс по одному достижению.
type ProgressDTO struct {
	// AchievementID - идентификатор достижения.
	AchievementID string `json:"achievement_id"`

	// Name - название достижения.
	Name string `json:"name"`

	// Description - описание условия.
	Description string `json:"description"`

	// Category - категория достижения.
	Category string `json:"category"`

	// Rarity - редкость достижения.
	Rarity string `json:"rarity"`

	// Points - очки за разблокировку.
	Points int `json:"points"`

	// Current - текущее значение статистики.
	Current int `json:"current"`

	// Target - порог разблокировки.
	Target int `json:"target"`

	// Percentage - процент выполнения (0-100).
	Percentage int `json:"percentage"`

	// IsUnlocked - разблокировано ли достижение.
	IsUnlocked bool `json:"is_unlocked"`

	// UnlockedAt - момент разблокировки (nil, пока не разблокировано).
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// GetAchievementProgressResult содержит прогресс игрока.
type GetAchievementProgressResult struct {
	// UserID - идентификатор игрока.
	UserID string `json:"user_id"`

	// Achievements - прогресс по каждому достижению, разблокированные
	// впереди, далее по убыванию процента.
	Achievements []ProgressDTO `json:"achievements"`

	// UnlockedCount - количество разблокированных.
	UnlockedCount int `json:"unlocked_count"`

	// TotalPoints - сумма очков за разблокированные.
	TotalPoints int `json:"total_points"`

	// GeneratedAt - время генерации результата.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetAchievementProgressHandler обрабатывает запросы прогресса достижений.
type GetAchievementProgressHandler struct {
	definitions achievement.DefinitionRepository
	progress    achievement.ProgressRepository
}

// NewGetAchievementProgressHandler создаёт обработчик.
func NewGetAchievementProgressHandler(
	definitions achievement.DefinitionRepository,
	progress achievement.ProgressRepository,
) *GetAchievementProgressHandler {
	return &GetAchievementProgressHandler{
		definitions: definitions,
		progress:    progress,
	}
}

// Handle выполняет запрос прогресса игрока.
func (h *GetAchievementProgressHandler) Handle(ctx context.Context, query GetAchievementProgressQuery) (*GetAchievementProgressResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetAchievementProgress", shared.ErrValidation, err.Error(), err)
	}

	gameID := shared.GameID(query.GameID)

	defs, err := h.definitions.ListActive(ctx, gameID)
	if err != nil {
		return nil, shared.WrapError("query", "GetAchievementProgress", shared.ErrExternalService, "list definitions", err)
	}
	defsByID := make(map[string]*achievement.Definition, len(defs))
	for _, def := range defs {
		if query.GameID != "" && !def.GameID.IsEmpty() && def.GameID != gameID {
			continue
		}
		defsByID[def.ID] = def
	}

	records, err := h.progress.ListByUser(ctx, shared.UserID(query.UserID))
	if err != nil {
		return nil, shared.WrapError("query", "GetAchievementProgress", shared.ErrExternalService, "list progress", err)
	}

	dtos := make([]ProgressDTO, 0, len(records))
	unlocked := 0
	points := 0
	for _, rec := range records {
		def, ok := defsByID[rec.AchievementID]
		if !ok {
			continue
		}
		if query.OnlyUnlocked && !rec.IsUnlocked {
			continue
		}
		dto := toProgressDTO(rec, def)
		if rec.IsUnlocked {
			unlocked++
			points += def.Points
		}
		dtos = append(dtos, dto)
	}

	sort.SliceStable(dtos, func(i, j int) bool {
		if dtos[i].IsUnlocked != dtos[j].IsUnlocked {
			return dtos[i].IsUnlocked
		}
		return dtos[i].Percentage > dtos[j].Percentage
	})

	return &GetAchievementProgressResult{
		UserID:        query.UserID,
		Achievements:  dtos,
		UnlockedCount: unlocked,
		TotalPoints:   points,
		GeneratedAt:   time.Now().UTC(),
	}, nil
}

// toProgressDTO объединяет запись прогресса с определением.
func toProgressDTO(rec *achievement.Progress, def *achievement.Definition) ProgressDTO {
	dto := ProgressDTO{
		AchievementID: rec.AchievementID,
		Name:          def.Name,
		Description:   def.Description,
		Category:      string(def.Category),
		Rarity:        string(def.Rarity),
		Points:        def.Points,
		Current:       rec.Current,
		Target:        rec.Target,
		Percentage:    rec.Percentage,
		IsUnlocked:    rec.IsUnlocked,
	}
	if rec.IsUnlocked && !rec.UnlockedAt.IsZero() {
		unlockedAt := rec.UnlockedAt
		dto.UnlockedAt = &unlockedAt
	}
	return dto
}
