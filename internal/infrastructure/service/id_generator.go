package service

import (
	"github.com/google/uuid"
)

// UUIDGenerator implements notification.IDGenerator with random UUIDs.
type UUIDGenerator struct{}

func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

func (g *UUIDGenerator) NewID() string {
	return uuid.New().String()
}
