package rental

import "errors"

var (
	ErrUnauthorized        = errors.New("rental: unauthorized caller")
	ErrNotRegistered       = errors.New("rental: user does not exist")
	ErrAlreadyListed       = errors.New("rental: nft is already available for renting")
	ErrNotListed           = errors.New("rental: nft is not listed for renting")
	ErrNotAvailable        = errors.New("rental: nft is not available for renting")
	ErrNotRented           = errors.New("rental: nft is not rented")
	ErrAlreadyRented       = errors.New("rental: nft is currently rented")
	ErrNonOwner            = errors.New("rental: caller is not the nft owner")
	ErrBadTimeBounds       = errors.New("rental: bad time bounds")
	ErrExceedsWindow       = errors.New("rental: rental exceeds the available window")
	ErrInsufficientPayment = errors.New("rental: insufficient amount paid")
	ErrInsufficientFunds   = errors.New("rental: insufficient balance")
	ErrSelfRental          = errors.New("rental: borrower address equals lender address")
	ErrBeforeDueTime       = errors.New("rental: rental due time has not passed")
	ErrNotMatchingBorrower = errors.New("rental: caller is not the borrower")
	ErrNoSuchAsset         = errors.New("rental: no such lended nft")
	ErrNotFound            = errors.New("rental: record not found")
	ErrIndexOutOfRange     = errors.New("rental: index out of range")
	ErrWishlisted          = errors.New("rental: new nft cannot already be wishlisted")
)
