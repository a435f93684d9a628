// Package leaderboard содержит доменную модель лидербордов GameHub.
// Лидерборд - это именованный рейтинг игроков по одной метрике активности
// (часы игры, отзывы, достижения и т.д.) с плотной нумерацией мест.
// Философия: ранги пересчитываются целиком на каждом обновлении -
// инкрементальные обновления служат только подсказкой для UI.
package leaderboard

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sam399/gamehub-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Rank представляет позицию игрока в лидерборде.
// Rank начинается с 1 (первое место).
type Rank int

// Unranked - игрок ещё не получил место в рейтинге.
const Unranked Rank = 0

// IsValid проверяет, что ранг положительный.
func (r Rank) IsValid() bool {
	return r > 0
}

// IsTop10 возвращает true, если игрок в топ-10.
func (r Rank) IsTop10() bool {
	return r >= 1 && r <= 10
}

// IsTop100 возвращает true, если игрок в топ-100.
func (r Rank) IsTop100() bool {
	return r >= 1 && r <= 100
}

// String возвращает строковое представление ранга.
func (r Rank) String() string {
	return fmt.Sprintf("#%d", r)
}

// Metric определяет метрику, по которой строится лидерборд.
// Закрытое перечисление: неизвестная метрика невозможна для встроенных типов.
type Metric string

const (
	// MetricGamesPlayed - количество отслеженных игр.
	MetricGamesPlayed Metric = "games_played"
	// MetricHoursPlayed - суммарные часы игры.
	MetricHoursPlayed Metric = "hours_played"
	// MetricAchievements - количество разблокированных достижений.
	MetricAchievements Metric = "achievements"
	// MetricReviewCount - количество активных отзывов.
	MetricReviewCount Metric = "review_count"
	// MetricForumPosts - количество активных постов на форуме.
	MetricForumPosts Metric = "forum_posts"
	// MetricFriendsCount - размер списка друзей.
	MetricFriendsCount Metric = "friends_count"
	// MetricCustom - пользовательская формула. Пока не вычисляется:
	// агрегатор возвращает пустой набор очков.
	MetricCustom Metric = "custom"
)

// AllMetrics возвращает все поддерживаемые метрики.
func AllMetrics() []Metric {
	return []Metric{
		MetricGamesPlayed,
		MetricHoursPlayed,
		MetricAchievements,
		MetricReviewCount,
		MetricForumPosts,
		MetricFriendsCount,
		MetricCustom,
	}
}

// IsValid проверяет, что метрика входит в закрытый набор.
func (m Metric) IsValid() bool {
	switch m {
	case MetricGamesPlayed, MetricHoursPlayed, MetricAchievements,
		MetricReviewCount, MetricForumPosts, MetricFriendsCount, MetricCustom:
		return true
	}
	return false
}

// String возвращает строковое представление метрики.
func (m Metric) String() string {
	return string(m)
}

// ParseMetric разбирает строку в Metric.
func ParseMetric(s string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", shared.ErrUnknownMetric
	}
	return m, nil
}

// Scope определяет область действия лидерборда.
type Scope string

const (
	// ScopeGlobal - по всей платформе, без ограничения по игре.
	ScopeGlobal Scope = "global"
	// ScopePerGame - только активность в одной игре.
	ScopePerGame Scope = "per_game"
	// ScopeTimeWindowed - активность внутри временного окна.
	ScopeTimeWindowed Scope = "time_windowed"
	// ScopeEventBound - привязан к игровому событию (турнир и т.п.).
	ScopeEventBound Scope = "event_bound"
)

// IsValid проверяет корректность области действия.
func (s Scope) IsValid() bool {
	switch s {
	case ScopeGlobal, ScopePerGame, ScopeTimeWindowed, ScopeEventBound:
		return true
	}
	return false
}

// RequiresGame возвращает true, если область требует привязки к игре.
func (s Scope) RequiresGame() bool {
	return s == ScopePerGame
}

// ScoringDirection определяет, какие очки считаются лучшими.
type ScoringDirection string

const (
	// DirectionHighestWins - чем больше очков, тем выше место.
	DirectionHighestWins ScoringDirection = "highest_wins"
	// DirectionLowestWins - чем меньше очков, тем выше место (спидраны и т.п.).
	DirectionLowestWins ScoringDirection = "lowest_wins"
	// DirectionAccumulative - очки только накапливаются; сортировка как
	// у highest_wins.
	DirectionAccumulative ScoringDirection = "accumulative"
)

// IsValid проверяет корректность направления.
func (d ScoringDirection) IsValid() bool {
	switch d {
	case DirectionHighestWins, DirectionLowestWins, DirectionAccumulative:
		return true
	}
	return false
}

// Descending возвращает true, если сортировка идёт по убыванию очков.
func (d ScoringDirection) Descending() bool {
	return d != DirectionLowestWins
}

// RefreshInterval определяет периодичность автоматического обновления.
type RefreshInterval string

const (
	// RefreshManual - обновление только по явному запросу.
	RefreshManual RefreshInterval = "manual"
	// RefreshRealtime - примерно каждые 30 секунд.
	RefreshRealtime RefreshInterval = "realtime"
	// RefreshHourly - каждый час.
	RefreshHourly RefreshInterval = "hourly"
	// RefreshDaily - каждые сутки.
	RefreshDaily RefreshInterval = "daily"
	// RefreshWeekly - каждую неделю.
	RefreshWeekly RefreshInterval = "weekly"
)

// IsValid проверяет корректность интервала.
func (ri RefreshInterval) IsValid() bool {
	switch ri {
	case RefreshManual, RefreshRealtime, RefreshHourly, RefreshDaily, RefreshWeekly:
		return true
	}
	return false
}

// Duration возвращает длительность интервала. Для manual и неизвестных
// значений возвращает 0 - таймер не взводится.
func (ri RefreshInterval) Duration() time.Duration {
	switch ri {
	case RefreshRealtime:
		return 30 * time.Second
	case RefreshHourly:
		return time.Hour
	case RefreshDaily:
		return 24 * time.Hour
	case RefreshWeekly:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// IsScheduled возвращает true, если интервал взводит таймер.
func (ri RefreshInterval) IsScheduled() bool {
	return ri.Duration() > 0
}

// Metadata хранит разбивку очков по метрике (часы + игры, количество +
// средний рейтинг и т.д.). Ключи зависят от метрики.
type Metadata map[string]float64

// Clone возвращает копию метаданных.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD DEFINITION
// ══════════════════════════════════════════════════════════════════════════════

// Definition описывает один лидерборд: область, метрику, направление
// подсчёта и периодичность обновления. Создаётся администратором;
// никогда не удаляется - только деактивируется.
type Definition struct {
	ID              string
	Name            string
	Description     string
	Scope           Scope
	GameID          shared.GameID // пустой для global
	Metric          Metric
	Direction       ScoringDirection
	Window          shared.TimeRange // активное окно [start, end?]
	RefreshInterval RefreshInterval
	IsActive        bool
	IsPublic        bool
	LastRefreshedAt time.Time // нулевое значение = ещё не обновлялся
	CreatedAt       time.Time
}

// NewDefinition создаёт новый лидерборд с валидацией.
func NewDefinition(id, name string, scope Scope, gameID shared.GameID, metric Metric, direction ScoringDirection, interval RefreshInterval) (*Definition, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrEmptyLeaderboardID
	}
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyLeaderboardName
	}
	if !scope.IsValid() {
		return nil, ErrInvalidScope
	}
	if scope.RequiresGame() && gameID.IsEmpty() {
		return nil, ErrGameRequired
	}
	if !metric.IsValid() {
		return nil, shared.ErrUnknownMetric
	}
	if !direction.IsValid() {
		return nil, shared.ErrInvalidScoringDirection
	}
	if !interval.IsValid() {
		return nil, ErrInvalidRefreshInterval
	}

	now := time.Now()
	return &Definition{
		ID:              id,
		Name:            strings.TrimSpace(name),
		Scope:           scope,
		GameID:          gameID,
		Metric:          metric,
		Direction:       direction,
		Window:          shared.TimeRange{From: now},
		RefreshInterval: interval,
		IsActive:        true,
		IsPublic:        true,
		CreatedAt:       now,
	}, nil
}

// Deactivate выключает лидерборд. Таймер обновления должен быть снят
// вызывающей стороной.
func (d *Definition) Deactivate() {
	d.IsActive = false
}

// Activate включает лидерборд обратно.
func (d *Definition) Activate() {
	d.IsActive = true
}

// MarkRefreshed фиксирует момент успешного обновления.
// При ошибке цикла обновления НЕ вызывается - lastRefreshedAt остаётся прежним.
func (d *Definition) MarkRefreshed(at time.Time) {
	d.LastRefreshedAt = at
}

// IsWithinWindow проверяет, что момент времени попадает в активное окно.
func (d *Definition) IsWithinWindow(t time.Time) bool {
	if d.Window.From.IsZero() {
		return true
	}
	return d.Window.Contains(t)
}

// IsRefreshable возвращает true, если лидерборд можно обновлять:
// активен и текущий момент внутри окна.
func (d *Definition) IsRefreshable(now time.Time) bool {
	return d.IsActive && d.IsWithinWindow(now)
}

// Validate проверяет инварианты определения.
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return ErrEmptyLeaderboardID
	}
	if strings.TrimSpace(d.Name) == "" {
		return ErrEmptyLeaderboardName
	}
	if !d.Scope.IsValid() {
		return ErrInvalidScope
	}
	if d.Scope.RequiresGame() && d.GameID.IsEmpty() {
		return ErrGameRequired
	}
	if !d.Metric.IsValid() {
		return shared.ErrUnknownMetric
	}
	if !d.Direction.IsValid() {
		return shared.ErrInvalidScoringDirection
	}
	if !d.RefreshInterval.IsValid() {
		return ErrInvalidRefreshInterval
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry - строка одного игрока в одном лидерборде.
// Инвариант: не более одной записи на пару (лидерборд, игрок).
// Создаётся при первом появлении игрока в наборе очков, дальше только
// обновляется; удаляется лишь при деактивации лидерборда.
type Entry struct {
	LeaderboardID string
	UserID        shared.UserID
	Score         shared.Score
	Rank          Rank
	Metadata      Metadata
	FirstScoredAt time.Time // первый выход в рейтинг; участвует в тай-брейке
	LastUpdatedAt time.Time
}

// NewEntry создаёт новую запись с валидацией.
func NewEntry(leaderboardID string, userID shared.UserID, score shared.Score, meta Metadata, now time.Time) (*Entry, error) {
	if strings.TrimSpace(leaderboardID) == "" {
		return nil, ErrEmptyLeaderboardID
	}
	if userID.IsEmpty() {
		return nil, ErrEmptyUserID
	}
	if !score.IsValid() {
		return nil, ErrNegativeScore
	}
	return &Entry{
		LeaderboardID: leaderboardID,
		UserID:        userID,
		Score:         score,
		Rank:          Unranked,
		Metadata:      meta.Clone(),
		FirstScoredAt: now,
		LastUpdatedAt: now,
	}, nil
}

// ApplyScore обновляет очки и метаданные записи. Ранг НЕ трогает -
// ранги назначает только полный пересчёт.
func (e *Entry) ApplyScore(score shared.Score, meta Metadata, now time.Time) {
	e.Score = score
	e.Metadata = meta.Clone()
	e.LastUpdatedAt = now
}

// IsNewHighScore проверяет, является ли новое значение улучшением:
// строго больше прежнего. Равные очки улучшением не считаются.
func (e *Entry) IsNewHighScore(newScore shared.Score) bool {
	return newScore.GreaterThan(e.Score)
}

// Key возвращает ключ уникальности записи.
func (e *Entry) Key() string {
	return e.LeaderboardID + ":" + e.UserID.String()
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrEmptyLeaderboardID     = errors.New("leaderboard ID cannot be empty")
	ErrEmptyLeaderboardName   = errors.New("leaderboard name cannot be empty")
	ErrEmptyUserID            = errors.New("user ID cannot be empty")
	ErrInvalidScope           = errors.New("invalid leaderboard scope")
	ErrGameRequired           = errors.New("per-game leaderboard requires a game reference")
	ErrInvalidRefreshInterval = errors.New("invalid refresh interval")
	ErrNegativeScore          = errors.New("score cannot be negative")
	ErrRankGap                = errors.New("ranks must form a contiguous sequence starting at 1")
)
