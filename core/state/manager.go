package state

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"nftrental/core/types"
	"nftrental/native/rental"
	"nftrental/storage"
)

const (
	prefixUser       = "rental/user/"
	prefixProps      = "rental/props/"
	prefixListing    = "rental/listing/"
	prefixLended     = "rental/lended/"
	prefixRented     = "rental/rented/"
	prefixRentedUser = "rental/rented-user/"
	prefixAccount    = "account/"
	keyUserList      = "rental/users"
	keyAvailable     = "rental/available-keys"
)

// Manager persists the rental engine's state in a key-value store. Records
// are RLP encoded; signed timestamps are stored as uint64 because the RPC
// layer bounds them to the 32-bit epoch range.
type Manager struct {
	db storage.Database
}

// NewManager wraps a database in a rental state manager.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

type storedUser struct {
	Address    [20]byte
	LendedKeys []string
	RentedKeys []string
	Wishlist   []string
}

type storedProps struct {
	Key           string
	Owner         [20]byte
	ContractAddr  [20]byte
	TokenID       uint64
	WishlistCount uint64
	Name          string
	ImageURL      string
}

type storedListing struct {
	Key        string
	Lender     [20]byte
	Borrower   [20]byte
	DueDate    uint64
	DailyRent  *big.Int
	Collateral *big.Int
}

type storedRental struct {
	Key       string
	Lender    [20]byte
	Borrower  [20]byte
	Days      uint64
	StartTime uint64
}

type storedAccount struct {
	Nonce   uint64
	Balance *big.Int
}

func userKey(addr [20]byte) []byte {
	return []byte(prefixUser + hex.EncodeToString(addr[:]))
}

func propsKey(key string) []byte {
	return []byte(prefixProps + key)
}

func listingKey(key string) []byte {
	return []byte(prefixListing + key)
}

func lendedKey(lender [20]byte, key string) []byte {
	return []byte(prefixLended + hex.EncodeToString(lender[:]) + "/" + key)
}

func rentedKey(key string) []byte {
	return []byte(prefixRented + key)
}

func rentedUserKey(borrower [20]byte, key string) []byte {
	return []byte(prefixRentedUser + hex.EncodeToString(borrower[:]) + "/" + key)
}

func accountKey(addr [20]byte) []byte {
	return []byte(prefixAccount + hex.EncodeToString(addr[:]))
}

func (m *Manager) read(key []byte, out interface{}) (bool, error) {
	raw, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", key, err)
	}
	return true, nil
}

func (m *Manager) write(key []byte, in interface{}) error {
	raw, err := rlp.EncodeToBytes(in)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	return m.db.Put(key, raw)
}

// --- users ---

func (m *Manager) UserGet(addr [20]byte) (*rental.User, bool) {
	var stored storedUser
	ok, err := m.read(userKey(addr), &stored)
	if err != nil || !ok {
		return nil, false
	}
	return &rental.User{
		Address:    stored.Address,
		LendedKeys: stored.LendedKeys,
		RentedKeys: stored.RentedKeys,
		Wishlist:   stored.Wishlist,
	}, true
}

func (m *Manager) UserPut(u *rental.User) error {
	if u == nil {
		return fmt.Errorf("state: nil user")
	}
	return m.write(userKey(u.Address), &storedUser{
		Address:    u.Address,
		LendedKeys: u.LendedKeys,
		RentedKeys: u.RentedKeys,
		Wishlist:   u.Wishlist,
	})
}

func (m *Manager) UserAddresses() ([][20]byte, error) {
	var addresses [][20]byte
	if _, err := m.read([]byte(keyUserList), &addresses); err != nil {
		return nil, err
	}
	return addresses, nil
}

func (m *Manager) UserAddressesAppend(addr [20]byte) error {
	addresses, err := m.UserAddresses()
	if err != nil {
		return err
	}
	return m.write([]byte(keyUserList), append(addresses, addr))
}

// --- catalog props ---

func (m *Manager) PropsGet(key string) (*rental.NFTProps, bool) {
	var stored storedProps
	ok, err := m.read(propsKey(key), &stored)
	if err != nil || !ok {
		return nil, false
	}
	return &rental.NFTProps{
		Key:           stored.Key,
		Owner:         stored.Owner,
		ContractAddr:  stored.ContractAddr,
		TokenID:       stored.TokenID,
		WishlistCount: stored.WishlistCount,
		Name:          stored.Name,
		ImageURL:      stored.ImageURL,
	}, true
}

func (m *Manager) PropsPut(p *rental.NFTProps) error {
	if p == nil {
		return fmt.Errorf("state: nil props")
	}
	return m.write(propsKey(p.Key), &storedProps{
		Key:           p.Key,
		Owner:         p.Owner,
		ContractAddr:  p.ContractAddr,
		TokenID:       p.TokenID,
		WishlistCount: p.WishlistCount,
		Name:          p.Name,
		ImageURL:      p.ImageURL,
	})
}

func (m *Manager) PropsDelete(key string) error {
	return m.db.Delete(propsKey(key))
}

// --- listings and lender ledger ---

func encodeListing(l *rental.Listing) (*storedListing, error) {
	sanitized, err := rental.SanitizeListing(l)
	if err != nil {
		return nil, err
	}
	if sanitized.DueDate < 0 {
		return nil, fmt.Errorf("state: negative due date")
	}
	return &storedListing{
		Key:        sanitized.Key,
		Lender:     sanitized.Lender,
		Borrower:   sanitized.Borrower,
		DueDate:    uint64(sanitized.DueDate),
		DailyRent:  sanitized.DailyRent,
		Collateral: sanitized.Collateral,
	}, nil
}

func decodeListing(stored *storedListing) *rental.Listing {
	return &rental.Listing{
		Key:        stored.Key,
		Lender:     stored.Lender,
		Borrower:   stored.Borrower,
		DueDate:    int64(stored.DueDate),
		DailyRent:  stored.DailyRent,
		Collateral: stored.Collateral,
	}
}

func (m *Manager) ListingGet(key string) (*rental.Listing, bool) {
	var stored storedListing
	ok, err := m.read(listingKey(key), &stored)
	if err != nil || !ok {
		return nil, false
	}
	return decodeListing(&stored), true
}

func (m *Manager) ListingPut(l *rental.Listing) error {
	encoded, err := encodeListing(l)
	if err != nil {
		return err
	}
	return m.write(listingKey(encoded.Key), encoded)
}

func (m *Manager) ListingDelete(key string) error {
	return m.db.Delete(listingKey(key))
}

func (m *Manager) LendedGet(lender [20]byte, key string) (*rental.Listing, bool) {
	var stored storedListing
	ok, err := m.read(lendedKey(lender, key), &stored)
	if err != nil || !ok {
		return nil, false
	}
	return decodeListing(&stored), true
}

func (m *Manager) LendedPut(lender [20]byte, l *rental.Listing) error {
	encoded, err := encodeListing(l)
	if err != nil {
		return err
	}
	return m.write(lendedKey(lender, encoded.Key), encoded)
}

func (m *Manager) LendedDelete(lender [20]byte, key string) error {
	return m.db.Delete(lendedKey(lender, key))
}

// --- rented records ---

func encodeRental(r *rental.Rental) (*storedRental, error) {
	sanitized, err := rental.SanitizeRental(r)
	if err != nil {
		return nil, err
	}
	if sanitized.StartTime < 0 {
		return nil, fmt.Errorf("state: negative rental start time")
	}
	return &storedRental{
		Key:       sanitized.Key,
		Lender:    sanitized.Lender,
		Borrower:  sanitized.Borrower,
		Days:      sanitized.Days,
		StartTime: uint64(sanitized.StartTime),
	}, nil
}

func decodeRental(stored *storedRental) *rental.Rental {
	return &rental.Rental{
		Key:       stored.Key,
		Lender:    stored.Lender,
		Borrower:  stored.Borrower,
		Days:      stored.Days,
		StartTime: int64(stored.StartTime),
	}
}

func (m *Manager) RentedGet(key string) (*rental.Rental, bool) {
	var stored storedRental
	ok, err := m.read(rentedKey(key), &stored)
	if err != nil || !ok {
		return nil, false
	}
	return decodeRental(&stored), true
}

func (m *Manager) RentedPut(r *rental.Rental) error {
	encoded, err := encodeRental(r)
	if err != nil {
		return err
	}
	return m.write(rentedKey(encoded.Key), encoded)
}

func (m *Manager) RentedDelete(key string) error {
	return m.db.Delete(rentedKey(key))
}

func (m *Manager) BorrowerRentedGet(borrower [20]byte, key string) (*rental.Rental, bool) {
	var stored storedRental
	ok, err := m.read(rentedUserKey(borrower, key), &stored)
	if err != nil || !ok {
		return nil, false
	}
	return decodeRental(&stored), true
}

func (m *Manager) BorrowerRentedPut(borrower [20]byte, r *rental.Rental) error {
	encoded, err := encodeRental(r)
	if err != nil {
		return err
	}
	return m.write(rentedUserKey(borrower, encoded.Key), encoded)
}

func (m *Manager) BorrowerRentedDelete(borrower [20]byte, key string) error {
	return m.db.Delete(rentedUserKey(borrower, key))
}

// --- available index ---

func (m *Manager) AvailableKeys() ([]string, error) {
	var keys []string
	if _, err := m.read([]byte(keyAvailable), &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (m *Manager) AvailableKeysAppend(key string) error {
	keys, err := m.AvailableKeys()
	if err != nil {
		return err
	}
	return m.write([]byte(keyAvailable), append(keys, key))
}

func (m *Manager) AvailableKeysRemove(key string) error {
	keys, err := m.AvailableKeys()
	if err != nil {
		return err
	}
	out := keys[:0]
	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}
	return m.write([]byte(keyAvailable), out)
}

// --- accounts ---

func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	var stored storedAccount
	ok, err := m.read(accountKey(addr), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return types.NewAccount(), nil
	}
	balance := stored.Balance
	if balance == nil {
		balance = big.NewInt(0)
	}
	return &types.Account{Nonce: stored.Nonce, Balance: balance}, nil
}

func (m *Manager) PutAccount(addr [20]byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	balance := account.Balance
	if balance == nil {
		balance = big.NewInt(0)
	}
	return m.write(accountKey(addr), &storedAccount{Nonce: account.Nonce, Balance: balance})
}
