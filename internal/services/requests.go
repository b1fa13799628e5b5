package services

import "restorepick/internal/domain"

type ListRequest struct {
	RewindID string
	Path     string
}

type RestoreRequest struct {
	Kind        domain.RestoreKind
	RewindID    string
	Destination string
	CheckList   domain.CheckList
	SafeMode    bool
}
