package handler

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/meatco/stockledger/internal/domain/inventory"
	"github.com/meatco/stockledger/internal/domain/shared"
)

const dateLayout = "2006-01-02"

// parseDate reads a calendar date (YYYY-MM-DD) as UTC midnight
func parseDate(field, value string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, shared.NewDomainError(shared.CodeInvalidInput,
			fmt.Sprintf("%s must be a date in YYYY-MM-DD format", field))
	}
	return t, nil
}

// parseOptionalDate is parseDate for nil-able fields
func parseOptionalDate(field string, value *string) (*time.Time, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	t, err := parseDate(field, *value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseInstant accepts RFC 3339 timestamps or plain dates
func parseInstant(field, value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	return parseDate(field, value)
}

// parseLocation converts an optional location name
func parseLocation(value *string) (*inventory.StorageLocation, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	loc := inventory.StorageLocation(*value)
	if !loc.IsValid() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("Invalid storage location %q", *value))
	}
	return &loc, nil
}

// parseLotID reads the :id path parameter
func parseLotID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, shared.NewDomainError(shared.CodeInvalidInput, "Lot id must be a UUID")
	}
	return id, nil
}

// parseNonNegativeInt reads an optional integer query parameter
func parseNonNegativeInt(field, raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("%s must be a non-negative integer", field))
	}
	return n, nil
}
