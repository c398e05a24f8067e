package repository

import (
	"fmt"

	"jma-forecast/internal/models"
)

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}

func storageErr(op string, err error) error {
	return &models.StorageError{Op: op, Err: err}
}
