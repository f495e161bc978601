package domain

import (
	"errors"
	"strconv"
	"strings"
)

// Item is one requested or received line of cable stock.
type Item struct {
	CableType   string `json:"cable_type"`
	CableLength string `json:"cable_length"`
	Quantity    int    `json:"quantity"`
}

// ItemInput is an unvalidated item. Quantity holds the raw client value so
// "5" and 5 are both accepted while 5.5 is not.
type ItemInput struct {
	CableType   string
	CableLength string
	Quantity    string
}

var (
	ErrItemsRequired       = errors.New("items_required")
	ErrItemFieldsRequired  = errors.New("item_fields_required")
	ErrItemQuantityInteger = errors.New("item_quantity_not_integer")
	ErrItemQuantityRange   = errors.New("item_quantity_not_positive")
)

// ItemErrorMessage returns the client facing text for an item validation
// error, or "" if err is not one.
func ItemErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrItemsRequired):
		return "items must be a non-empty list"
	case errors.Is(err, ErrItemFieldsRequired):
		return "Each item requires cable_type and cable_length"
	case errors.Is(err, ErrItemQuantityInteger):
		return "Each item quantity must be an integer"
	case errors.Is(err, ErrItemQuantityRange):
		return "Each item quantity must be greater than zero"
	default:
		return ""
	}
}

// NormalizeItems trims and validates items for tickets and receipts.
func NormalizeItems(raw []ItemInput) ([]Item, error) {
	if len(raw) == 0 {
		return nil, ErrItemsRequired
	}

	items := make([]Item, 0, len(raw))
	for _, in := range raw {
		cableType := strings.TrimSpace(in.CableType)
		cableLength := strings.TrimSpace(in.CableLength)
		if cableType == "" || cableLength == "" {
			return nil, ErrItemFieldsRequired
		}

		qty, err := strconv.Atoi(strings.TrimSpace(in.Quantity))
		if err != nil {
			return nil, ErrItemQuantityInteger
		}
		if qty <= 0 {
			return nil, ErrItemQuantityRange
		}

		items = append(items, Item{CableType: cableType, CableLength: cableLength, Quantity: qty})
	}
	return items, nil
}
