package rental

import (
	"encoding/hex"
	"strconv"

	"nftrental/core/types"
)

const (
	EventTypeUserRegistered    = "rental.user_registered"
	EventTypeListed            = "rental.listed"
	EventTypeLendStopped       = "rental.lend_stopped"
	EventTypeRented            = "rental.rented"
	EventTypeReturned          = "rental.returned"
	EventTypeCollateralClaimed = "rental.collateral_claimed"
	EventTypeWishlisted        = "rental.wishlisted"
)

// NewUserRegisteredEvent returns the canonical payload emitted when an
// address self-registers.
func NewUserRegisteredEvent(addr [20]byte) *types.Event {
	return &types.Event{Type: EventTypeUserRegistered, Attributes: map[string]string{
		"address": hex.EncodeToString(addr[:]),
	}}
}

// NewListedEvent returns the canonical payload for a freshly opened listing.
func NewListedEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeListed, l)
}

// NewLendStoppedEvent returns the payload emitted when a lender cancels an
// open listing.
func NewLendStoppedEvent(l *Listing) *types.Event {
	return newListingEvent(EventTypeLendStopped, l)
}

// NewRentedEvent returns the payload emitted when a rental starts.
func NewRentedEvent(r *Rental, rentPaid string) *types.Event {
	evt := newRentalEvent(EventTypeRented, r)
	evt.Attributes["rentPaid"] = rentPaid
	return evt
}

// NewReturnedEvent returns the payload emitted when the borrower returns the
// asset. The late attribute distinguishes the terminating branch.
func NewReturnedEvent(r *Rental, late bool) *types.Event {
	evt := newRentalEvent(EventTypeReturned, r)
	evt.Attributes["late"] = strconv.FormatBool(late)
	return evt
}

// NewCollateralClaimedEvent returns the payload emitted when the lender
// claims collateral after the due time.
func NewCollateralClaimedEvent(r *Rental, collateral string) *types.Event {
	evt := newRentalEvent(EventTypeCollateralClaimed, r)
	evt.Attributes["collateral"] = collateral
	return evt
}

// NewWishlistedEvent returns the payload emitted when a user wishlists a key.
func NewWishlistedEvent(addr [20]byte, key string) *types.Event {
	return &types.Event{Type: EventTypeWishlisted, Attributes: map[string]string{
		"address": hex.EncodeToString(addr[:]),
		"nftKey":  key,
	}}
}

func newListingEvent(eventType string, l *Listing) *types.Event {
	attrs := make(map[string]string)
	if l == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeListing(l)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["nftKey"] = sanitized.Key
	attrs["lender"] = hex.EncodeToString(sanitized.Lender[:])
	attrs["dueDate"] = strconv.FormatInt(sanitized.DueDate, 10)
	attrs["dailyRent"] = sanitized.DailyRent.String()
	attrs["collateral"] = sanitized.Collateral.String()
	if sanitized.Borrower != ([20]byte{}) {
		attrs["borrower"] = hex.EncodeToString(sanitized.Borrower[:])
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newRentalEvent(eventType string, r *Rental) *types.Event {
	attrs := make(map[string]string)
	if r == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeRental(r)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["nftKey"] = sanitized.Key
	attrs["lender"] = hex.EncodeToString(sanitized.Lender[:])
	attrs["borrower"] = hex.EncodeToString(sanitized.Borrower[:])
	attrs["numberOfDays"] = strconv.FormatUint(sanitized.Days, 10)
	attrs["rentalStartTime"] = strconv.FormatInt(sanitized.StartTime, 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}
