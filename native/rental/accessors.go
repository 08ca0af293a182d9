package rental

import "math/big"

// AvailableNftKeys returns a snapshot of the keys currently open for rent.
func (e *Engine) AvailableNftKeys() ([]string, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	keys, err := e.state.AvailableKeys()
	if err != nil {
		return nil, err
	}
	return append([]string(nil), keys...), nil
}

// Props returns the catalog metadata for a key.
func (e *Engine) Props(key string) (*NFTProps, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	props, ok := e.state.PropsGet(key)
	if !ok {
		return nil, ErrNotFound
	}
	return props, nil
}

// ListedNft returns the global "open for rent" record for a key.
func (e *Engine) ListedNft(key string) (*Listing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	listing, ok := e.state.ListingGet(key)
	if !ok {
		return nil, ErrNotFound
	}
	return listing, nil
}

// RentedNft returns the global rented record for a key.
func (e *Engine) RentedNft(key string) (*Rental, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	rented, ok := e.state.RentedGet(key)
	if !ok {
		return nil, ErrNotFound
	}
	return rented, nil
}

// UserLendedNftDetails returns the lender ledger entry for (lender, key).
// Unlike ListedNft this also resolves while the asset is rented out.
func (e *Engine) UserLendedNftDetails(lender [20]byte, key string) (*Listing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, ok := e.state.UserGet(lender); !ok {
		return nil, ErrNotRegistered
	}
	entry, ok := e.state.LendedGet(lender, key)
	if !ok {
		return nil, ErrNoSuchAsset
	}
	return entry, nil
}

// UserLendedNftAt resolves the lender's ledger entry by position in the
// lender's ordered key list.
func (e *Engine) UserLendedNftAt(lender [20]byte, index uint64) (*Listing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	user, ok := e.state.UserGet(lender)
	if !ok {
		return nil, ErrNotRegistered
	}
	if index >= uint64(len(user.LendedKeys)) {
		return nil, ErrIndexOutOfRange
	}
	entry, ok := e.state.LendedGet(lender, user.LendedKeys[index])
	if !ok {
		return nil, ErrNoSuchAsset
	}
	return entry, nil
}

// UserRentedNftDetails returns the borrower's mirror of an active rental.
func (e *Engine) UserRentedNftDetails(borrower [20]byte, key string) (*Rental, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, ok := e.state.UserGet(borrower); !ok {
		return nil, ErrNotRegistered
	}
	rented, ok := e.state.BorrowerRentedGet(borrower, key)
	if !ok {
		return nil, ErrNotFound
	}
	return rented, nil
}

// UserRentedNftAt resolves the borrower's rental by position in the
// borrower's ordered key list.
func (e *Engine) UserRentedNftAt(borrower [20]byte, index uint64) (*Rental, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	user, ok := e.state.UserGet(borrower)
	if !ok {
		return nil, ErrNotRegistered
	}
	if index >= uint64(len(user.RentedKeys)) {
		return nil, ErrIndexOutOfRange
	}
	rented, ok := e.state.BorrowerRentedGet(borrower, user.RentedKeys[index])
	if !ok {
		return nil, ErrNotFound
	}
	return rented, nil
}

// UserAddresses returns the ordered list of every registered address.
func (e *Engine) UserAddresses() ([][20]byte, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.UserAddresses()
}

// UserCounts reports the sizes of a user's lended, rented and wishlist lists.
func (e *Engine) UserCounts(addr [20]byte) (lended, rented, wishlist int, err error) {
	if e == nil || e.state == nil {
		return 0, 0, 0, errNilState
	}
	user, ok := e.state.UserGet(addr)
	if !ok {
		return 0, 0, 0, ErrNotRegistered
	}
	return len(user.LendedKeys), len(user.RentedKeys), len(user.Wishlist), nil
}

// BalanceOf returns the spendable balance of an address.
func (e *Engine) BalanceOf(addr [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	balance, err := e.balanceOf(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(balance), nil
}

// EscrowBalance returns the aggregate collateral pool held by the vault.
func (e *Engine) EscrowBalance() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.ensureVaultConfigured(); err != nil {
		return nil, err
	}
	return e.BalanceOf(e.vault)
}
