package services

import (
	"time"

	"restorepick/internal/domain"
)

type ListResult struct {
	Path     string
	Items    []domain.ListItem
	Duration time.Duration
	Cached   bool
}

type RestoreResult struct {
	Kind         domain.RestoreKind
	ID           string
	SuccessCount int
	FailureCount int
	Duration     time.Duration
	Message      string
	Errors       []string
}
