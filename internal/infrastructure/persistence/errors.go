package persistence

import (
	"errors"

	"github.com/meatco/stockledger/internal/domain/shared"
	"gorm.io/gorm"
)

// mapError converts gorm errors to the domain taxonomy. It relies on
// gorm.Config.TranslateError so unique violations surface as ErrDuplicatedKey.
func mapError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return shared.ErrAlreadyExists
	default:
		return shared.NewStorageError(op, err)
	}
}
