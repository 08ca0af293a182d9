package state

import (
	"errors"
	"math/big"
	"testing"

	"nftrental/native/rental"
	"nftrental/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemDB())
}

func addr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

func TestUserRoundTrip(t *testing.T) {
	m := newTestManager(t)
	if _, ok := m.UserGet(addr(0x01)); ok {
		t.Fatalf("unexpected user before put")
	}
	user := &rental.User{
		Address:    addr(0x01),
		LendedKeys: []string{"a", "b"},
		RentedKeys: []string{"c"},
		Wishlist:   []string{"d"},
	}
	if err := m.UserPut(user); err != nil {
		t.Fatalf("userPut: %v", err)
	}
	got, ok := m.UserGet(addr(0x01))
	if !ok {
		t.Fatalf("user missing after put")
	}
	if got.Address != user.Address || len(got.LendedKeys) != 2 || got.LendedKeys[1] != "b" {
		t.Fatalf("unexpected user %+v", got)
	}
	if len(got.RentedKeys) != 1 || len(got.Wishlist) != 1 {
		t.Fatalf("unexpected lists %+v", got)
	}
}

func TestListingRoundTrip(t *testing.T) {
	m := newTestManager(t)
	listing := &rental.Listing{
		Key:        "key-1",
		Lender:     addr(0x02),
		DueDate:    4294967295,
		DailyRent:  big.NewInt(1_000_000),
		Collateral: big.NewInt(10_000_000_000_000),
	}
	if err := m.ListingPut(listing); err != nil {
		t.Fatalf("listingPut: %v", err)
	}
	got, ok := m.ListingGet("key-1")
	if !ok {
		t.Fatalf("listing missing")
	}
	if got.DueDate != listing.DueDate || got.DailyRent.Cmp(listing.DailyRent) != 0 {
		t.Fatalf("unexpected listing %+v", got)
	}
	if err := m.ListingDelete("key-1"); err != nil {
		t.Fatalf("listingDelete: %v", err)
	}
	if _, ok := m.ListingGet("key-1"); ok {
		t.Fatalf("listing should be gone")
	}
}

func TestLendedLedgerIsScopedByLender(t *testing.T) {
	m := newTestManager(t)
	listing := &rental.Listing{
		Key:        "key-1",
		Lender:     addr(0x02),
		DueDate:    100,
		DailyRent:  big.NewInt(1),
		Collateral: big.NewInt(2),
	}
	if err := m.LendedPut(addr(0x02), listing); err != nil {
		t.Fatalf("lendedPut: %v", err)
	}
	if _, ok := m.LendedGet(addr(0x03), "key-1"); ok {
		t.Fatalf("ledger entry leaked across lenders")
	}
	got, ok := m.LendedGet(addr(0x02), "key-1")
	if !ok || got.Key != "key-1" {
		t.Fatalf("ledger entry missing")
	}
}

func TestRentedRoundTrip(t *testing.T) {
	m := newTestManager(t)
	rented := &rental.Rental{
		Key:       "key-1",
		Lender:    addr(0x02),
		Borrower:  addr(0x03),
		Days:      5,
		StartTime: 1_700_000_000,
	}
	if err := m.RentedPut(rented); err != nil {
		t.Fatalf("rentedPut: %v", err)
	}
	if err := m.BorrowerRentedPut(addr(0x03), rented); err != nil {
		t.Fatalf("borrowerRentedPut: %v", err)
	}
	got, ok := m.RentedGet("key-1")
	if !ok || got.StartTime != rented.StartTime || got.Days != 5 {
		t.Fatalf("unexpected rented %+v", got)
	}
	mirror, ok := m.BorrowerRentedGet(addr(0x03), "key-1")
	if !ok || mirror.Lender != rented.Lender {
		t.Fatalf("unexpected mirror %+v", mirror)
	}
	if err := m.RentedDelete("key-1"); err != nil {
		t.Fatalf("rentedDelete: %v", err)
	}
	if err := m.BorrowerRentedDelete(addr(0x03), "key-1"); err != nil {
		t.Fatalf("borrowerRentedDelete: %v", err)
	}
	if _, ok := m.RentedGet("key-1"); ok {
		t.Fatalf("rented should be gone")
	}
}

func TestAvailableKeysIndex(t *testing.T) {
	m := newTestManager(t)
	keys, err := m.AvailableKeys()
	if err != nil || len(keys) != 0 {
		t.Fatalf("fresh index should be empty, keys=%v err=%v", keys, err)
	}
	for _, k := range []string{"a", "b", "c"} {
		if err := m.AvailableKeysAppend(k); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := m.AvailableKeysRemove("b"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	keys, _ = m.AvailableKeys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "c" {
		t.Fatalf("unexpected index %v", keys)
	}
}

func TestAccountDefaultsToZero(t *testing.T) {
	m := newTestManager(t)
	acc, err := m.GetAccount(addr(0x05))
	if err != nil {
		t.Fatalf("getAccount: %v", err)
	}
	if acc.Balance.Sign() != 0 {
		t.Fatalf("fresh account should be empty")
	}
	acc.Balance = big.NewInt(123)
	acc.Nonce = 7
	if err := m.PutAccount(addr(0x05), acc); err != nil {
		t.Fatalf("putAccount: %v", err)
	}
	got, err := m.GetAccount(addr(0x05))
	if err != nil || got.Balance.Int64() != 123 || got.Nonce != 7 {
		t.Fatalf("unexpected account %+v err=%v", got, err)
	}
}

func TestEngineOverManager(t *testing.T) {
	db := storage.NewMemDB()
	m := NewManager(db)
	engine := rental.NewEngine()
	engine.SetState(m)
	vault := addr(0xEE)
	engine.SetVault(vault)
	now := int64(1_700_000_000)
	engine.SetNowFunc(func() int64 { return now })

	lender, borrower := addr(0x11), addr(0x22)
	if err := engine.Register(lender, lender); err != nil {
		t.Fatalf("register lender: %v", err)
	}
	if err := engine.Register(borrower, borrower); err != nil {
		t.Fatalf("register borrower: %v", err)
	}
	params := rental.ListParams{
		Key:        "cryptopunk#7",
		Owner:      lender,
		Lender:     lender,
		Name:       "CryptoPunk #7",
		DueDate:    now + 30*rental.SecondsPerDay,
		DailyRent:  big.NewInt(1_000_000),
		Collateral: big.NewInt(10_000_000_000_000),
	}
	if err := engine.AddNFTToLend(lender, params); err != nil {
		t.Fatalf("addNFTToLend: %v", err)
	}
	value := big.NewInt(1_000_000*5 + 10_000_000_000_000)
	if err := engine.Mint(borrower, value); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := engine.RentNft(borrower, params.Key, borrower, 5, now-10, value); err != nil {
		t.Fatalf("rentNft: %v", err)
	}

	// Reopen the state from the same backing store; the rental must still
	// be visible, proving the records were persisted, not cached.
	reopened := rental.NewEngine()
	reopened.SetState(NewManager(db))
	reopened.SetVault(vault)
	reopened.SetNowFunc(func() int64 { return now })
	rented, err := reopened.RentedNft(params.Key)
	if err != nil || rented.Borrower != borrower {
		t.Fatalf("rented after reopen = %+v, err=%v", rented, err)
	}
	escrow, err := reopened.EscrowBalance()
	if err != nil || escrow.Cmp(big.NewInt(10_000_000_000_000)) != 0 {
		t.Fatalf("escrow after reopen = %v, err=%v", escrow, err)
	}
	if err := reopened.ReturnNFT(borrower, params.Key); err != nil {
		t.Fatalf("returnNFT after reopen: %v", err)
	}
	if _, err := reopened.RentedNft(params.Key); !errors.Is(err, rental.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after return, got %v", err)
	}
	if _, ok := NewManager(db).ListingGet(params.Key); !ok {
		t.Fatalf("listing must be reopened after early return")
	}
}
