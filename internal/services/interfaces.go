package services

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("path not found in snapshot")

type Lister interface {
	List(ctx context.Context, req ListRequest) (ListResult, error)
}

type Restorer interface {
	Restore(ctx context.Context, req RestoreRequest) (RestoreResult, error)
}
