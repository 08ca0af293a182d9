package rental

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"nftrental/core/events"
	"nftrental/core/types"
)

var (
	errNilState = errors.New("rental engine: state not configured")
	errNilVault = errors.New("rental engine: escrow vault not configured")
)

// engineState is the narrow view of persistent state the engine mutates. The
// four record families plus the two ordered indexes are kept in lock-step by
// the operations below; nothing else writes to them.
type engineState interface {
	UserGet(addr [20]byte) (*User, bool)
	UserPut(*User) error
	UserAddresses() ([][20]byte, error)
	UserAddressesAppend(addr [20]byte) error

	PropsGet(key string) (*NFTProps, bool)
	PropsPut(*NFTProps) error
	PropsDelete(key string) error

	ListingGet(key string) (*Listing, bool)
	ListingPut(*Listing) error
	ListingDelete(key string) error

	LendedGet(lender [20]byte, key string) (*Listing, bool)
	LendedPut(lender [20]byte, l *Listing) error
	LendedDelete(lender [20]byte, key string) error

	RentedGet(key string) (*Rental, bool)
	RentedPut(*Rental) error
	RentedDelete(key string) error

	BorrowerRentedGet(borrower [20]byte, key string) (*Rental, bool)
	BorrowerRentedPut(borrower [20]byte, r *Rental) error
	BorrowerRentedDelete(borrower [20]byte, key string) error

	AvailableKeys() ([]string, error)
	AvailableKeysAppend(key string) error
	AvailableKeysRemove(key string) error

	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
}

type rentalEvent struct {
	evt *types.Event
}

func (e rentalEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e rentalEvent) Event() *types.Event { return e.evt }

// Engine owns the escrow/settlement state machine for the rental
// marketplace. Every mutating operation validates its preconditions against
// loaded copies before the first state write, so a rejected call leaves no
// partial effects behind.
type Engine struct {
	state   engineState
	emitter events.Emitter
	vault   [20]byte
	nowFn   func() int64
}

// NewEngine creates a rental engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetVault configures the address that holds escrowed collateral.
func (e *Engine) SetVault(addr [20]byte) { e.vault = addr }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(rentalEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ensureVaultConfigured() error {
	if e == nil || e.vault == ([20]byte{}) {
		return errNilVault
	}
	return nil
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return types.NewAccount()
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

func (e *Engine) balanceOf(addr [20]byte) (*big.Int, error) {
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return ensureAccount(acc).Balance, nil
}

func (e *Engine) transfer(from, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("rental: negative transfer amount")
	}
	fromAcc, err := e.state.GetAccount(from)
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to)
	if err != nil {
		return err
	}
	fromAcc = ensureAccount(fromAcc)
	toAcc = ensureAccount(toAcc)
	if fromAcc.Balance.Cmp(amt) < 0 {
		return ErrInsufficientFunds
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := e.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to, toAcc)
}

// Mint credits an account balance. Exposed for genesis allocation and the
// operator faucet; it is not reachable from the public marketplace surface
// without the RPC auth token.
func (e *Engine) Mint(addr [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return fmt.Errorf("rental: mint amount must be positive")
	}
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return err
	}
	acc = ensureAccount(acc)
	acc.Balance = new(big.Int).Add(acc.Balance, amt)
	return e.state.PutAccount(addr, acc)
}

// Register adds the caller to the user registry. Only the owning identity may
// register its own address. Re-registration is a no-op so the global address
// list stays duplicate-free.
func (e *Engine) Register(caller, addr [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if caller != addr {
		return ErrUnauthorized
	}
	if _, ok := e.state.UserGet(addr); ok {
		return nil
	}
	if err := e.state.UserPut(&User{Address: addr}); err != nil {
		return err
	}
	if err := e.state.UserAddressesAppend(addr); err != nil {
		return err
	}
	e.emit(NewUserRegisteredEvent(addr))
	return nil
}

// ListParams carries the full addNFTToLend argument set.
type ListParams struct {
	Key           string
	Owner         [20]byte
	ContractAddr  [20]byte
	TokenID       uint64
	WishlistCount uint64
	Name          string
	ImageURL      string
	Lender        [20]byte
	DueDate       int64
	DailyRent     *big.Int
	Collateral    *big.Int
}

// AddNFTToLend opens a listing: it creates or refreshes the catalog props,
// the global listing record and the lender ledger entry, and indexes the key
// as available. Ownership is self-asserted; the engine only checks that the
// asserted owner is the lender itself.
func (e *Engine) AddNFTToLend(caller [20]byte, p ListParams) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if caller != p.Lender {
		return ErrUnauthorized
	}
	lender, ok := e.state.UserGet(p.Lender)
	if !ok {
		return ErrNotRegistered
	}
	if _, ok := e.state.ListingGet(p.Key); ok {
		return ErrAlreadyListed
	}
	if p.Owner != p.Lender {
		return ErrNonOwner
	}
	if p.WishlistCount != 0 {
		return ErrWishlisted
	}
	if p.DueDate <= e.now() {
		return ErrBadTimeBounds
	}
	listing, err := SanitizeListing(&Listing{
		Key:        p.Key,
		Lender:     p.Lender,
		DueDate:    p.DueDate,
		DailyRent:  p.DailyRent,
		Collateral: p.Collateral,
	})
	if err != nil {
		return err
	}
	props := &NFTProps{
		Key:          p.Key,
		Owner:        p.Owner,
		ContractAddr: p.ContractAddr,
		TokenID:      p.TokenID,
		Name:         p.Name,
		ImageURL:     p.ImageURL,
	}
	if err := e.state.PropsPut(props); err != nil {
		return err
	}
	if err := e.state.ListingPut(listing); err != nil {
		return err
	}
	if err := e.state.LendedPut(p.Lender, listing); err != nil {
		return err
	}
	if err := e.state.AvailableKeysAppend(p.Key); err != nil {
		return err
	}
	if !containsKey(lender.LendedKeys, p.Key) {
		lender.LendedKeys = append(lender.LendedKeys, p.Key)
		if err := e.state.UserPut(lender); err != nil {
			return err
		}
	}
	e.emit(NewListedEvent(listing))
	return nil
}

// StopLend cancels an open listing. Only legal while the asset is available;
// it tears down the listing, the ledger entry and the catalog props.
func (e *Engine) StopLend(caller [20]byte, key string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	user, ok := e.state.UserGet(caller)
	if !ok {
		return ErrNotRegistered
	}
	if _, rented := e.state.RentedGet(key); rented {
		return ErrAlreadyRented
	}
	listing, ok := e.state.ListingGet(key)
	if !ok {
		return ErrNotListed
	}
	ledger, ok := e.state.LendedGet(caller, key)
	if !ok || ledger.Lender != caller || listing.Lender != caller {
		return ErrUnauthorized
	}
	if err := e.state.ListingDelete(key); err != nil {
		return err
	}
	if err := e.state.LendedDelete(caller, key); err != nil {
		return err
	}
	if err := e.state.PropsDelete(key); err != nil {
		return err
	}
	if err := e.state.AvailableKeysRemove(key); err != nil {
		return err
	}
	user.LendedKeys = removeKey(user.LendedKeys, key)
	if err := e.state.UserPut(user); err != nil {
		return err
	}
	e.emit(NewLendStoppedEvent(listing))
	return nil
}

// RentNft starts a rental. The attached value must cover the rent for the
// whole duration plus the collateral; rent is paid to the lender immediately
// while collateral (and any overpayment) moves into the escrow vault. The
// global listing disappears, the lender ledger entry gains the borrower, and
// the rented records are created in both the global and per-borrower tables.
func (e *Engine) RentNft(caller [20]byte, key string, borrower [20]byte, numberOfDays uint64, rentalStartTime int64, value *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.ensureVaultConfigured(); err != nil {
		return err
	}
	if caller != borrower {
		return ErrUnauthorized
	}
	borrowerUser, ok := e.state.UserGet(borrower)
	if !ok {
		return ErrNotRegistered
	}
	listing, ok := e.state.ListingGet(key)
	if !ok {
		return ErrNotAvailable
	}
	now := e.now()
	if rentalStartTime > now {
		return ErrBadTimeBounds
	}
	// Window arithmetic stays in big.Int so an absurd duration cannot wrap
	// int64 and slip past the due date.
	rentalEnd := new(big.Int).Mul(new(big.Int).SetUint64(numberOfDays), big.NewInt(SecondsPerDay))
	rentalEnd.Add(rentalEnd, big.NewInt(rentalStartTime))
	if rentalEnd.Cmp(big.NewInt(listing.DueDate)) > 0 {
		return ErrExceedsWindow
	}
	rent := new(big.Int).Mul(listing.DailyRent, new(big.Int).SetUint64(numberOfDays))
	owed := new(big.Int).Add(rent, listing.Collateral)
	paid := cloneBigInt(value)
	if paid.Cmp(owed) < 0 {
		return ErrInsufficientPayment
	}
	if borrower == listing.Lender {
		return ErrSelfRental
	}
	balance, err := e.balanceOf(borrower)
	if err != nil {
		return err
	}
	if balance.Cmp(paid) < 0 {
		return ErrInsufficientFunds
	}
	ledger, ok := e.state.LendedGet(listing.Lender, key)
	if !ok {
		return ErrNoSuchAsset
	}

	// Rent goes straight to the lender; collateral plus any overpayment is
	// retained by the vault until settlement.
	if err := e.transfer(borrower, listing.Lender, rent); err != nil {
		return err
	}
	escrowed := new(big.Int).Sub(paid, rent)
	if err := e.transfer(borrower, e.vault, escrowed); err != nil {
		return err
	}

	if err := e.state.ListingDelete(key); err != nil {
		return err
	}
	if err := e.state.AvailableKeysRemove(key); err != nil {
		return err
	}
	ledger.Borrower = borrower
	if err := e.state.LendedPut(listing.Lender, ledger); err != nil {
		return err
	}
	rented, err := SanitizeRental(&Rental{
		Key:       key,
		Lender:    listing.Lender,
		Borrower:  borrower,
		Days:      numberOfDays,
		StartTime: rentalStartTime,
	})
	if err != nil {
		return err
	}
	if err := e.state.RentedPut(rented); err != nil {
		return err
	}
	if err := e.state.BorrowerRentedPut(borrower, rented); err != nil {
		return err
	}
	if !containsKey(borrowerUser.RentedKeys, key) {
		borrowerUser.RentedKeys = append(borrowerUser.RentedKeys, key)
		if err := e.state.UserPut(borrowerUser); err != nil {
			return err
		}
	}
	e.emit(NewRentedEvent(rented, rent.String()))
	return nil
}

// ReturnNFT settles a rental from the borrower side. Collateral is refunded
// either way; an on-time return reopens the listing from the surviving ledger
// entry, a late return terminates the lending relationship entirely.
func (e *Engine) ReturnNFT(caller [20]byte, key string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.ensureVaultConfigured(); err != nil {
		return err
	}
	borrowerUser, ok := e.state.UserGet(caller)
	if !ok {
		return ErrNotRegistered
	}
	rented, ok := e.state.RentedGet(key)
	if !ok {
		return ErrNotRented
	}
	if rented.Borrower != caller {
		return ErrNotMatchingBorrower
	}
	ledger, ok := e.state.LendedGet(rented.Lender, key)
	if !ok {
		return ErrNoSuchAsset
	}
	late := e.now() > rented.DueTime()

	if err := e.transfer(e.vault, rented.Borrower, ledger.Collateral); err != nil {
		return err
	}
	if err := e.teardownRented(rented, borrowerUser); err != nil {
		return err
	}
	if late {
		// The lending relationship ends; a fresh listing is required to
		// make the asset rentable again. Catalog props survive.
		if err := e.state.LendedDelete(rented.Lender, key); err != nil {
			return err
		}
		if lenderUser, ok := e.state.UserGet(rented.Lender); ok {
			lenderUser.LendedKeys = removeKey(lenderUser.LendedKeys, key)
			if err := e.state.UserPut(lenderUser); err != nil {
				return err
			}
		}
	} else {
		ledger.Borrower = [20]byte{}
		if err := e.state.LendedPut(rented.Lender, ledger); err != nil {
			return err
		}
		if err := e.state.ListingPut(ledger); err != nil {
			return err
		}
		if err := e.state.AvailableKeysAppend(key); err != nil {
			return err
		}
	}
	e.emit(NewReturnedEvent(rented, late))
	return nil
}

// ClaimCollateral settles a rental from the lender side after the due time
// has passed: the collateral is forfeited to the lender and the asset is
// permanently removed from the system, catalog props included. Whichever of
// ReturnNFT and ClaimCollateral lands first wins; the loser then fails on
// record absence.
func (e *Engine) ClaimCollateral(caller [20]byte, key string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.ensureVaultConfigured(); err != nil {
		return err
	}
	lenderUser, ok := e.state.UserGet(caller)
	if !ok {
		return ErrNotRegistered
	}
	ledger, ok := e.state.LendedGet(caller, key)
	if !ok {
		return ErrNoSuchAsset
	}
	rented, ok := e.state.RentedGet(key)
	if !ok {
		return ErrNotRented
	}
	if e.now() <= rented.DueTime() {
		return ErrBeforeDueTime
	}

	if err := e.transfer(e.vault, caller, ledger.Collateral); err != nil {
		return err
	}
	borrowerUser, ok := e.state.UserGet(rented.Borrower)
	if !ok {
		return ErrNotRegistered
	}
	if err := e.teardownRented(rented, borrowerUser); err != nil {
		return err
	}
	if err := e.state.LendedDelete(caller, key); err != nil {
		return err
	}
	lenderUser.LendedKeys = removeKey(lenderUser.LendedKeys, key)
	if err := e.state.UserPut(lenderUser); err != nil {
		return err
	}
	if _, ok := e.state.ListingGet(key); ok {
		if err := e.state.ListingDelete(key); err != nil {
			return err
		}
		if err := e.state.AvailableKeysRemove(key); err != nil {
			return err
		}
	}
	if err := e.state.PropsDelete(key); err != nil {
		return err
	}
	e.emit(NewCollateralClaimedEvent(rented, ledger.Collateral.String()))
	return nil
}

// AddToWishlist records interest in a listed asset. Wishlisting the same key
// twice is a no-op.
func (e *Engine) AddToWishlist(caller [20]byte, key string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	user, ok := e.state.UserGet(caller)
	if !ok {
		return ErrNotRegistered
	}
	props, ok := e.state.PropsGet(key)
	if !ok {
		return ErrNoSuchAsset
	}
	if containsKey(user.Wishlist, key) {
		return nil
	}
	props.WishlistCount++
	if err := e.state.PropsPut(props); err != nil {
		return err
	}
	user.Wishlist = append(user.Wishlist, key)
	if err := e.state.UserPut(user); err != nil {
		return err
	}
	e.emit(NewWishlistedEvent(caller, key))
	return nil
}

// teardownRented removes the global rented record and the borrower mirror.
// Both settlement paths share it; the caller handles the ledger branch.
func (e *Engine) teardownRented(rented *Rental, borrowerUser *User) error {
	if err := e.state.RentedDelete(rented.Key); err != nil {
		return err
	}
	if err := e.state.BorrowerRentedDelete(rented.Borrower, rented.Key); err != nil {
		return err
	}
	borrowerUser.RentedKeys = removeKey(borrowerUser.RentedKeys, rented.Key)
	return e.state.UserPut(borrowerUser)
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func removeKey(keys []string, key string) []string {
	out := keys[:0]
	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}
	return out
}
