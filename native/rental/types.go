package rental

import (
	"fmt"
	"math/big"
	"strings"
)

// SecondsPerDay converts a rental duration in days into the epoch-second
// bounds used by the settlement checks.
const SecondsPerDay int64 = 86_400

// User records a registered participant together with the ordered key lists
// backing the per-user accessors. Lists keep insertion order so index-based
// lookups stay stable across settlements.
type User struct {
	Address    [20]byte
	LendedKeys []string
	RentedKeys []string
	Wishlist   []string
}

// Clone returns a deep copy of the user record.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	clone := &User{Address: u.Address}
	clone.LendedKeys = append([]string(nil), u.LendedKeys...)
	clone.RentedKeys = append([]string(nil), u.RentedKeys...)
	clone.Wishlist = append([]string(nil), u.Wishlist...)
	return clone
}

// NFTProps is the static catalog metadata for a listed asset. It persists
// across relist/rent/return cycles and is removed only on a permanent
// teardown (collateral claim or explicit stop-lend).
type NFTProps struct {
	Key           string
	Owner         [20]byte
	ContractAddr  [20]byte
	TokenID       uint64
	WishlistCount uint64
	Name          string
	ImageURL      string
}

// Clone returns a copy of the props record.
func (p *NFTProps) Clone() *NFTProps {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// Listing is the offer of one asset for rent. The same shape serves two
// records with different lifetimes: the global "currently open" entry, which
// dies the moment a rental starts, and the lender ledger entry, which
// survives the rented phase with Borrower populated.
type Listing struct {
	Key        string
	Lender     [20]byte
	Borrower   [20]byte
	DueDate    int64
	DailyRent  *big.Int
	Collateral *big.Int
}

// Clone returns a deep copy of the listing so callers can safely mutate the
// copy without affecting the stored instance.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	clone.DailyRent = cloneBigInt(l.DailyRent)
	clone.Collateral = cloneBigInt(l.Collateral)
	return &clone
}

// Rental is the record of one active rental, stored globally and mirrored in
// the borrower's per-user table. It exists exactly while collateral is held
// in escrow for the key.
type Rental struct {
	Key       string
	Lender    [20]byte
	Borrower  [20]byte
	Days      uint64
	StartTime int64
}

// Clone returns a copy of the rental record.
func (r *Rental) Clone() *Rental {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// DueTime returns the instant the rental becomes overdue.
func (r *Rental) DueTime() int64 {
	return r.StartTime + int64(r.Days)*SecondsPerDay
}

// SanitizeListing validates and normalises a listing definition, returning a
// cloned instance with non-nil amount fields. The original is not mutated.
func SanitizeListing(l *Listing) (*Listing, error) {
	if l == nil {
		return nil, fmt.Errorf("nil listing")
	}
	clone := l.Clone()
	if strings.TrimSpace(clone.Key) == "" {
		return nil, fmt.Errorf("listing key must not be empty")
	}
	if clone.Lender == ([20]byte{}) {
		return nil, fmt.Errorf("listing lender must not be the zero address")
	}
	if clone.DailyRent == nil {
		clone.DailyRent = big.NewInt(0)
	}
	if clone.Collateral == nil {
		clone.Collateral = big.NewInt(0)
	}
	if clone.DailyRent.Sign() < 0 || clone.Collateral.Sign() < 0 {
		return nil, fmt.Errorf("listing amounts must be non-negative")
	}
	return clone, nil
}

// SanitizeRental validates a rental record.
func SanitizeRental(r *Rental) (*Rental, error) {
	if r == nil {
		return nil, fmt.Errorf("nil rental")
	}
	clone := r.Clone()
	if strings.TrimSpace(clone.Key) == "" {
		return nil, fmt.Errorf("rental key must not be empty")
	}
	if clone.Lender == ([20]byte{}) || clone.Borrower == ([20]byte{}) {
		return nil, fmt.Errorf("rental parties must not be the zero address")
	}
	return clone, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
