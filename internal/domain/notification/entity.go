// Package notification содержит доменную модель уведомлений GameHub.
// Уведомления - второстепенный эффект переходов (новый рекорд, разблокировка
// достижения). Философия: доставка best-effort, без повторов - пропущенное
// уведомление принимается как известное ограничение, а не маскируется.
package notification

import (
	"errors"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Kind определяет тип уведомления о переходе.
type Kind string

const (
	// KindAchievementUnlocked - игрок разблокировал достижение.
	KindAchievementUnlocked Kind = "achievement_unlocked"

	// KindNewHighScore - игрок установил новый рекорд в лидерборде.
	KindNewHighScore Kind = "new_highscore"
)

// IsValid проверяет корректность типа.
func (k Kind) IsValid() bool {
	switch k {
	case KindAchievementUnlocked, KindNewHighScore:
		return true
	}
	return false
}

// String возвращает строковое представление типа.
func (k Kind) String() string {
	return string(k)
}

// Visibility определяет, кому видна запись в ленте активности.
type Visibility string

const (
	// VisibilityPublic - видна всем.
	VisibilityPublic Visibility = "public"
	// VisibilityFriends - видна только друзьям.
	VisibilityFriends Visibility = "friends"
	// VisibilityPrivate - видна только самому игроку.
	VisibilityPrivate Visibility = "private"
)

// IsValid проверяет корректность видимости.
func (v Visibility) IsValid() bool {
	switch v {
	case VisibilityPublic, VisibilityFriends, VisibilityPrivate:
		return true
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY FEED ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// ActivityEntry - одна запись ленты активности.
// Лента хранится внешней системой; ядро только добавляет записи.
type ActivityEntry struct {
	ID         string
	UserID     string
	Type       Kind
	Data       map[string]interface{}
	Visibility Visibility
	CreatedAt  time.Time
}

// NewActivityEntry создаёт запись ленты с валидацией.
func NewActivityEntry(id, userID string, kind Kind, data map[string]interface{}, visibility Visibility) (*ActivityEntry, error) {
	if id == "" {
		return nil, ErrEmptyNotificationID
	}
	if userID == "" {
		return nil, ErrEmptyRecipient
	}
	if !kind.IsValid() {
		return nil, ErrInvalidKind
	}
	if !visibility.IsValid() {
		return nil, ErrInvalidVisibility
	}
	return &ActivityEntry{
		ID:         id,
		UserID:     userID,
		Type:       kind,
		Data:       data,
		Visibility: visibility,
		CreatedAt:  time.Now(),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION
// ══════════════════════════════════════════════════════════════════════════════

// Notification - одно уведомление для одного игрока.
type Notification struct {
	ID        string
	UserID    string
	Kind      Kind
	Title     string
	Body      string
	Payload   map[string]interface{}
	CreatedAt time.Time
}

// NewNotification создаёт уведомление с валидацией.
func NewNotification(id, userID string, kind Kind, title, body string, payload map[string]interface{}) (*Notification, error) {
	if id == "" {
		return nil, ErrEmptyNotificationID
	}
	if userID == "" {
		return nil, ErrEmptyRecipient
	}
	if !kind.IsValid() {
		return nil, ErrInvalidKind
	}
	return &Notification{
		ID:        id,
		UserID:    userID,
		Kind:      kind,
		Title:     title,
		Body:      body,
		Payload:   payload,
		CreatedAt: time.Now(),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrEmptyNotificationID = errors.New("notification ID cannot be empty")
	ErrEmptyRecipient      = errors.New("recipient cannot be empty")
	ErrInvalidKind         = errors.New("invalid notification kind")
	ErrInvalidVisibility   = errors.New("invalid activity visibility")
)
