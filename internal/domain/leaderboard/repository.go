// Package leaderboard содержит доменную модель лидербордов GameHub.
package leaderboard

import (
	"context"
	"time"

	"github.com/sam399/gamehub-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEFINITION REPOSITORY INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// DefinitionRepository определяет контракт для работы с определениями
// лидербордов. Реализация находится в infrastructure слое (PostgreSQL).
type DefinitionRepository interface {
	// Save сохраняет определение (создание или обновление).
	Save(ctx context.Context, def *Definition) error

	// GetByID возвращает определение по идентификатору.
	GetByID(ctx context.Context, id string) (*Definition, error)

	// ListActive возвращает все активные лидерборды.
	ListActive(ctx context.Context) ([]*Definition, error)

	// ListScheduled возвращает активные лидерборды с автоматическим
	// интервалом обновления (всё, кроме manual).
	ListScheduled(ctx context.Context) ([]*Definition, error)

	// MarkRefreshed фиксирует момент успешного обновления.
	// Вызывается только после того, как цикл завершился без ошибок.
	MarkRefreshed(ctx context.Context, id string, at time.Time) error

	// SetActive включает или выключает лидерборд.
	SetActive(ctx context.Context, id string, active bool) error
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY REPOSITORY INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// EntryRepository определяет контракт для хранения записей лидерборда.
//
// Философия: полный пересчёт переписывает ранги целиком в одной
// транзакции - частичных записей, оставляющих пропуски или дубли рангов,
// быть не может.
type EntryRepository interface {
	// ListByLeaderboard возвращает все записи лидерборда.
	// Используется как вход полного пересчёта (сохранённый набор несёт
	// FirstScoredAt для воспроизводимого тай-брейка).
	ListByLeaderboard(ctx context.Context, leaderboardID string) ([]*Entry, error)

	// GetEntry возвращает запись игрока. Не более одной записи на пару
	// (лидерборд, игрок) - инвариант обеспечивается уникальным ключом.
	GetEntry(ctx context.Context, leaderboardID string, userID shared.UserID) (*Entry, error)

	// ReplaceRanking атомарно сохраняет результат полного пересчёта:
	// upsert всех записей с новыми очками и рангами в одной транзакции.
	ReplaceRanking(ctx context.Context, set *RankedSet) error

	// GetTop возвращает первые n записей по рангу.
	GetTop(ctx context.Context, leaderboardID string, n int) ([]*Entry, error)

	// GetPage возвращает страницу записей по рангу.
	GetPage(ctx context.Context, leaderboardID string, p shared.Pagination) ([]*Entry, error)

	// CountByLeaderboard возвращает количество записей.
	CountByLeaderboard(ctx context.Context, leaderboardID string) (int, error)

	// DeleteByLeaderboard удаляет все записи лидерборда.
	// Единственный легальный путь удаления записей - деактивация лидерборда.
	DeleteByLeaderboard(ctx context.Context, leaderboardID string) (int, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// RANK HINT CACHE INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// RankHintCache - оптимистичный кеш рангов (Redis sorted set или in-memory).
// НЕ источник истины: подсказка для UI между полными пересчётами.
// Перестраивается из RankedSet на каждом обновлении.
type RankHintCache interface {
	// RebuildHint полностью перестраивает подсказку из результата пересчёта.
	RebuildHint(ctx context.Context, set *RankedSet) error

	// OnScoreWrite обновляет очки одного игрока в подсказке.
	// Узкий путь вне полного пересчёта; сверяется с истиной на следующем
	// плановом обновлении.
	OnScoreWrite(ctx context.Context, leaderboardID string, userID shared.UserID, score shared.Score) error

	// GetHintTop возвращает закешированный топ-N.
	// Возвращает nil, если кеш пуст.
	GetHintTop(ctx context.Context, leaderboardID string, n int) ([]*Entry, error)

	// GetHintRank возвращает подсказанный ранг игрока (0, если нет).
	GetHintRank(ctx context.Context, leaderboardID string, userID shared.UserID) (Rank, error)

	// Invalidate сбрасывает подсказку лидерборда.
	Invalidate(ctx context.Context, leaderboardID string) error
}

// ══════════════════════════════════════════════════════════════════════════════
// BROADCASTER INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Broadcaster рассылает широковещательный сигнал "лидерборд обновился".
// Гарантий доставки нет - best-effort для внешних дашбордов.
type Broadcaster interface {
	// PublishLeaderboardUpdated публикует сигнал обновления.
	PublishLeaderboardUpdated(ctx context.Context, leaderboardID string) error
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERY OPTIONS
// ══════════════════════════════════════════════════════════════════════════════

// QueryOptions содержит опции для запросов к лидербордам.
type QueryOptions struct {
	// Scope - фильтр по области действия (пусто = все).
	Scope Scope

	// GameID - фильтр по игре.
	GameID shared.GameID

	// OnlyPublic - показывать только публичные лидерборды.
	OnlyPublic bool

	// Page - номер страницы (начиная с 1).
	Page int

	// PageSize - размер страницы.
	PageSize int
}

// DefaultQueryOptions возвращает опции по умолчанию.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		OnlyPublic: false,
		Page:       1,
		PageSize:   20,
	}
}

// WithScope устанавливает фильтр по области действия.
func (o QueryOptions) WithScope(scope Scope) QueryOptions {
	o.Scope = scope
	return o
}

// WithGame устанавливает фильтр по игре.
func (o QueryOptions) WithGame(gameID shared.GameID) QueryOptions {
	o.GameID = gameID
	return o
}

// WithOnlyPublic включает фильтр только публичных лидербордов.
func (o QueryOptions) WithOnlyPublic() QueryOptions {
	o.OnlyPublic = true
	return o
}

// WithPage устанавливает номер страницы.
func (o QueryOptions) WithPage(page int) QueryOptions {
	if page < 1 {
		page = 1
	}
	o.Page = page
	return o
}

// WithPageSize устанавливает размер страницы.
func (o QueryOptions) WithPageSize(size int) QueryOptions {
	if size < 1 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	o.PageSize = size
	return o
}

// Offset возвращает смещение для SQL-запроса.
func (o QueryOptions) Offset() int {
	return (o.Page - 1) * o.PageSize
}

// Limit возвращает лимит для SQL-запроса.
func (o QueryOptions) Limit() int {
	return o.PageSize
}
