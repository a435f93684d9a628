// Package notification содержит доменную модель уведомлений GameHub.
package notification

import (
	"context"
)

// ActivityFeed - контракт добавления записей в ленту активности.
// Хранение ленты принадлежит внешней системе.
type ActivityFeed interface {
	// AppendActivity добавляет одну запись. Best-effort: ошибка не должна
	// откатывать уже сохранённое состояние очков или прогресса.
	AppendActivity(ctx context.Context, entry *ActivityEntry) error
}

// Dispatcher - контракт отправки уведомлений игроку.
type Dispatcher interface {
	// Notify отправляет одно уведомление. Best-effort, без повторов:
	// при сбое переход не переотправляется.
	Notify(ctx context.Context, n *Notification) error
}

// IDGenerator выдаёт уникальные идентификаторы для записей и уведомлений.
type IDGenerator interface {
	NewID() string
}
