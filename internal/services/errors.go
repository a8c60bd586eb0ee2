package services

import (
	"context"
	"errors"

	"github.com/khanhquoc4114/app-sub000/internal/models"
)

var (
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrUserNotFound = errors.New("user not found")
)

type userReader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}
