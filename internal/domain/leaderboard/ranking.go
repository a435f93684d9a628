package leaderboard

import (
	"encoding/binary"
	"math"
	"sort"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/sam399/gamehub-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCORE SET
// ══════════════════════════════════════════════════════════════════════════════

// ScoreRow - результат агрегатора для одного игрока: очки плюс разбивка.
type ScoreRow struct {
	UserID   shared.UserID
	Score    shared.Score
	Metadata Metadata
}

// ScoreSet - полный набор кандидатов одного цикла подсчёта.
// Игроки без подходящих записей в источнике сюда не попадают вовсе.
type ScoreSet []ScoreRow

// ByUser индексирует набор по игроку.
func (s ScoreSet) ByUser() map[shared.UserID]ScoreRow {
	out := make(map[shared.UserID]ScoreRow, len(s))
	for _, row := range s {
		out[row.UserID] = row
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITIONS
// ══════════════════════════════════════════════════════════════════════════════

// Transition - обнаруженный переход "новый рекорд": игрок строго улучшил
// свои очки либо впервые появился в лидерборде. Ровно один переход на
// одно улучшение; равные очки перехода не дают.
type Transition struct {
	LeaderboardID   string
	LeaderboardName string
	UserID          shared.UserID
	Score           shared.Score
	PreviousScore   shared.Score
	Rank            Rank
	FirstEntry      bool
	DetectedAt      time.Time
}

// Event преобразует переход в доменное событие.
func (t Transition) Event() shared.NewHighScoreEvent {
	return shared.NewNewHighScoreEvent(
		t.LeaderboardID,
		t.LeaderboardName,
		t.UserID.String(),
		t.Score.Float64(),
		t.PreviousScore.Float64(),
		int(t.Rank),
		t.FirstEntry,
	)
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKING (полный пересчёт - единственный источник истины)
// ══════════════════════════════════════════════════════════════════════════════

// RankedSet - итог полного пересчёта: записи с назначенными плотными
// рангами 1..N без пропусков и дублей.
type RankedSet struct {
	LeaderboardID string
	Entries       []*Entry
	RankedAt      time.Time

	byUser map[shared.UserID]*Entry
}

// Rebuild выполняет полный пересчёт лидерборда.
//
// На вход подаётся сохранённый набор записей (не только свежие очки -
// иначе тай-брейк не воспроизводится между перезапусками) и новый
// ScoreSet. Алгоритм:
//  1. для каждой строки очков: обновить существующую запись либо
//     создать новую; строго большие очки дают Transition;
//  2. записи игроков, отсутствующих в наборе очков, сохраняются
//     с прежними очками;
//  3. сортировка по направлению, тай-брейк детерминированный:
//     раньше FirstScoredAt - выше, затем UserID лексикографически;
//  4. ранги = позиция в отсортированной последовательности, с единицы,
//     плотно, без разделения мест между равными очками.
func Rebuild(def *Definition, persisted []*Entry, scores ScoreSet, now time.Time) (*RankedSet, []Transition, error) {
	if def == nil {
		return nil, nil, ErrEmptyLeaderboardID
	}

	byUser := make(map[shared.UserID]*Entry, len(persisted))
	entries := make([]*Entry, 0, len(persisted)+len(scores))
	for _, e := range persisted {
		if e == nil {
			continue
		}
		if _, dup := byUser[e.UserID]; dup {
			return nil, nil, shared.ErrDuplicateEntry
		}
		byUser[e.UserID] = e
		entries = append(entries, e)
	}

	var transitions []Transition
	for _, row := range scores {
		existing, ok := byUser[row.UserID]
		if !ok {
			entry, err := NewEntry(def.ID, row.UserID, row.Score, row.Metadata, now)
			if err != nil {
				return nil, nil, err
			}
			byUser[row.UserID] = entry
			entries = append(entries, entry)
			transitions = append(transitions, Transition{
				LeaderboardID:   def.ID,
				LeaderboardName: def.Name,
				UserID:          row.UserID,
				Score:           row.Score,
				FirstEntry:      true,
				DetectedAt:      now,
			})
			continue
		}

		improved := existing.IsNewHighScore(row.Score)
		prev := existing.Score
		existing.ApplyScore(row.Score, row.Metadata, now)
		if improved {
			transitions = append(transitions, Transition{
				LeaderboardID:   def.ID,
				LeaderboardName: def.Name,
				UserID:          row.UserID,
				Score:           row.Score,
				PreviousScore:   prev,
				DetectedAt:      now,
			})
		}
	}

	sortEntries(entries, def.Direction)
	for i, e := range entries {
		e.Rank = Rank(i + 1)
	}

	// Ранг в переходе заполняется после назначения мест.
	for i := range transitions {
		if e, ok := byUser[transitions[i].UserID]; ok {
			transitions[i].Rank = e.Rank
		}
	}

	return &RankedSet{
		LeaderboardID: def.ID,
		Entries:       entries,
		RankedAt:      now,
		byUser:        byUser,
	}, transitions, nil
}

// sortEntries сортирует записи по направлению подсчёта.
// Тай-брейк: раньше вошёл в рейтинг - выше место; последний рубеж -
// лексикографический порядок UserID, чтобы порядок был тотальным.
func sortEntries(entries []*Entry, direction ScoringDirection) {
	desc := direction.Descending()
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score != b.Score {
			if desc {
				return a.Score > b.Score
			}
			return a.Score < b.Score
		}
		if !a.FirstScoredAt.Equal(b.FirstScoredAt) {
			return a.FirstScoredAt.Before(b.FirstScoredAt)
		}
		return a.UserID < b.UserID
	})
}

// Len возвращает количество записей.
func (rs *RankedSet) Len() int {
	return len(rs.Entries)
}

// GetByUser возвращает запись игрока.
func (rs *RankedSet) GetByUser(userID shared.UserID) (*Entry, bool) {
	if rs.byUser != nil {
		e, ok := rs.byUser[userID]
		return e, ok
	}
	for _, e := range rs.Entries {
		if e.UserID == userID {
			return e, true
		}
	}
	return nil, false
}

// Top возвращает первые n записей.
func (rs *RankedSet) Top(n int) []*Entry {
	if n <= 0 || n > len(rs.Entries) {
		n = len(rs.Entries)
	}
	return rs.Entries[:n]
}

// ValidateContiguous проверяет инвариант плотной нумерации: ранги
// образуют ровно {1..N} без пропусков и дублей.
func (rs *RankedSet) ValidateContiguous() error {
	seen := make(map[Rank]struct{}, len(rs.Entries))
	for _, e := range rs.Entries {
		if !e.Rank.IsValid() || int(e.Rank) > len(rs.Entries) {
			return ErrRankGap
		}
		if _, dup := seen[e.Rank]; dup {
			return ErrRankGap
		}
		seen[e.Rank] = struct{}{}
	}
	return nil
}

// Digest возвращает BLAKE2b-отпечаток упорядоченной последовательности
// (игрок, очки, ранг). Совпадение отпечатков двух пересчётов означает,
// что наблюдаемое состояние лидерборда не изменилось и широковещательное
// уведомление можно не отправлять.
func (rs *RankedSet) Digest() [32]byte {
	h, _ := blake2b.New256(nil)
	var buf [8]byte
	for _, e := range rs.Entries {
		h.Write([]byte(e.UserID))
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(e.Score.Float64()))
		h.Write(buf[:])
		binary.BigEndian.PutUint64(buf[:], uint64(e.Rank))
		h.Write(buf[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
