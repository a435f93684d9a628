// Package projections maintains in-memory read models derived from the
// persistent leaderboard state. The view is rebuilt per leaderboard after
// each refresh and serves hot read paths without touching postgres.
package projections

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sam399/gamehub-engine/internal/domain/leaderboard"
	"github.com/sam399/gamehub-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD VIEW
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardView holds one in-memory snapshot per leaderboard. All reads
// return copies; callers may mutate results freely.
type LeaderboardView struct {
	mu     sync.RWMutex
	boards map[string]*boardState
}

type boardState struct {
	definition  *leaderboard.Definition
	entries     []*ViewEntry // sorted by rank ascending
	byUser      map[string]*ViewEntry
	version     int64
	refreshedAt time.Time
}

// ViewEntry is one denormalized row of the view.
type ViewEntry struct {
	LeaderboardID string
	UserID        string
	Score         float64
	Rank          int
	Metadata      map[string]float64
	LastUpdatedAt time.Time
}

// ViewPage is one page of view entries.
type ViewPage struct {
	Entries    []*ViewEntry
	Page       int
	PageSize   int
	TotalCount int
	TotalPages int
}

// ViewMetadata describes the freshness of one board's view.
type ViewMetadata struct {
	LeaderboardID string
	Name          string
	EntryCount    int
	Version       int64
	RefreshedAt   time.Time
}

// NewLeaderboardView creates an empty view.
func NewLeaderboardView() *LeaderboardView {
	return &LeaderboardView{
		boards: make(map[string]*boardState),
	}
}

// Apply replaces the view's snapshot of one leaderboard. Entries must
// already carry contiguous ranks; the view trusts and preserves their order.
func (v *LeaderboardView) Apply(def *leaderboard.Definition, entries []*leaderboard.Entry) error {
	if def == nil {
		return ErrNilDefinition
	}

	converted := make([]*ViewEntry, 0, len(entries))
	byUser := make(map[string]*ViewEntry, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		ve := &ViewEntry{
			LeaderboardID: entry.LeaderboardID,
			UserID:        entry.UserID.String(),
			Score:         entry.Score.Float64(),
			Rank:          int(entry.Rank),
			Metadata:      cloneMetadata(entry.Metadata),
			LastUpdatedAt: entry.LastUpdatedAt,
		}
		converted = append(converted, ve)
		byUser[ve.UserID] = ve
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	prev := v.boards[def.ID]
	version := int64(1)
	if prev != nil {
		version = prev.version + 1
	}

	v.boards[def.ID] = &boardState{
		definition:  def,
		entries:     converted,
		byUser:      byUser,
		version:     version,
		refreshedAt: time.Now(),
	}
	return nil
}

// Remove drops one leaderboard from the view.
func (v *LeaderboardView) Remove(leaderboardID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.boards, leaderboardID)
}

// GetTop returns the first n entries of the board. The second return value
// reports whether the board is present in the view at all.
func (v *LeaderboardView) GetTop(leaderboardID string, n int) ([]*ViewEntry, bool) {
	if n <= 0 {
		n = 10
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	board, ok := v.boards[leaderboardID]
	if !ok {
		return nil, false
	}
	if n > len(board.entries) {
		n = len(board.entries)
	}
	return cloneEntries(board.entries[:n]), true
}

// GetPage returns one page of the board.
func (v *LeaderboardView) GetPage(leaderboardID string, p shared.Pagination) (*ViewPage, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	board, ok := v.boards[leaderboardID]
	if !ok {
		return nil, false
	}

	total := len(board.entries)
	offset := p.Offset()
	limit := p.Limit()

	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}

	page := p.Page
	if page <= 0 {
		page = 1
	}

	return &ViewPage{
		Entries:    cloneEntries(board.entries[start:end]),
		Page:       page,
		PageSize:   limit,
		TotalCount: total,
		TotalPages: totalPages,
	}, true
}

// GetUserEntry returns one user's entry on the board.
func (v *LeaderboardView) GetUserEntry(leaderboardID, userID string) (*ViewEntry, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	board, ok := v.boards[leaderboardID]
	if !ok {
		return nil, false
	}
	entry, ok := board.byUser[userID]
	if !ok {
		return nil, false
	}
	return entry.clone(), true
}

// GetNeighbors returns the user's entry together with up to radius entries
// on each side of it. Returns false when the board or the user is absent.
func (v *LeaderboardView) GetNeighbors(leaderboardID, userID string, radius int) ([]*ViewEntry, bool) {
	if radius < 0 {
		radius = 0
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	board, ok := v.boards[leaderboardID]
	if !ok {
		return nil, false
	}
	center, ok := board.byUser[userID]
	if !ok {
		return nil, false
	}

	// Rank is 1-based and contiguous, so it doubles as slice position.
	idx := center.Rank - 1
	if idx < 0 || idx >= len(board.entries) {
		return nil, false
	}

	start := idx - radius
	if start < 0 {
		start = 0
	}
	end := idx + radius + 1
	if end > len(board.entries) {
		end = len(board.entries)
	}
	return cloneEntries(board.entries[start:end]), true
}

// Metadata returns the freshness descriptor for one board.
func (v *LeaderboardView) Metadata(leaderboardID string) (ViewMetadata, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	board, ok := v.boards[leaderboardID]
	if !ok {
		return ViewMetadata{}, false
	}
	return ViewMetadata{
		LeaderboardID: leaderboardID,
		Name:          board.definition.Name,
		EntryCount:    len(board.entries),
		Version:       board.version,
		RefreshedAt:   board.refreshedAt,
	}, true
}

// Boards lists the leaderboard IDs currently held by the view.
func (v *LeaderboardView) Boards() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	ids := make([]string, 0, len(v.boards))
	for id := range v.boards {
		ids = append(ids, id)
	}
	return ids
}

func (e *ViewEntry) clone() *ViewEntry {
	c := *e
	c.Metadata = cloneMetadata(e.Metadata)
	return &c
}

func cloneEntries(entries []*ViewEntry) []*ViewEntry {
	out := make([]*ViewEntry, len(entries))
	for i, e := range entries {
		out[i] = e.clone()
	}
	return out
}

func cloneMetadata(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, val := range m {
		out[k] = val
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// PROJECTOR
// ══════════════════════════════════════════════════════════════════════════════

// Projector keeps the view in sync by reloading a leaderboard from the
// repositories whenever its ranked set changes.
type Projector struct {
	view        *LeaderboardView
	definitions leaderboard.DefinitionRepository
	entries     leaderboard.EntryRepository
	logger      *slog.Logger
	timeout     time.Duration
}

// NewProjector creates a projector over the given view and repositories.
func NewProjector(
	view *LeaderboardView,
	definitions leaderboard.DefinitionRepository,
	entries leaderboard.EntryRepository,
	logger *slog.Logger,
) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projector{
		view:        view,
		definitions: definitions,
		entries:     entries,
		logger:      logger,
		timeout:     30 * time.Second,
	}
}

// Handler returns the event handler to register for leaderboard update
// events. The handler reloads the affected board; reload failures leave the
// previous (stale) snapshot in place.
func (p *Projector) Handler() shared.EventHandler {
	return func(event shared.Event) error {
		leaderboardID := event.AggregateID()
		if leaderboardID == "" {
			return nil
		}
		if err := p.Reload(context.Background(), leaderboardID); err != nil {
			p.logger.Warn("projection reload failed",
				"leaderboard_id", leaderboardID,
				"error", err,
			)
			return err
		}
		return nil
	}
}

// Reload fetches the leaderboard's current state and applies it to the view.
func (p *Projector) Reload(ctx context.Context, leaderboardID string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	def, err := p.definitions.GetByID(ctx, leaderboardID)
	if err != nil {
		return fmt.Errorf("load definition %s: %w", leaderboardID, err)
	}
	list, err := p.entries.ListByLeaderboard(ctx, leaderboardID)
	if err != nil {
		return fmt.Errorf("load entries %s: %w", leaderboardID, err)
	}
	return p.view.Apply(def, list)
}

// Warm preloads the view with every active leaderboard.
func (p *Projector) Warm(ctx context.Context) error {
	defs, err := p.definitions.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active leaderboards: %w", err)
	}
	for _, def := range defs {
		if err := p.Reload(ctx, def.ID); err != nil {
			p.logger.Warn("projection warm-up skipped board",
				"leaderboard_id", def.ID,
				"error", err,
			)
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrNilDefinition = errors.New("projections: nil leaderboard definition")
)
