package crypto

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the bech32 human-readable part for marketplace addresses.
const AddressPrefix = "rent"

// Address represents a 20-byte marketplace address. The zero value is the
// distinguished "no address" sentinel used for an absent borrower or owner.
type Address struct {
	bytes [20]byte
}

// NewAddress wraps a raw 20-byte value.
func NewAddress(b [20]byte) Address {
	return Address{bytes: b}
}

// AddressFromBytes converts a byte slice into an Address, rejecting any
// length other than 20.
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) != 20 {
		return Address{}, fmt.Errorf("address must be 20 bytes long, got %d", len(b))
	}
	var raw [20]byte
	copy(raw[:], b)
	return Address{bytes: raw}, nil
}

// String renders the address in bech32 with the "rent" prefix.
func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AddressPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns the raw 20-byte representation.
func (a Address) Bytes() [20]byte { return a.bytes }

// IsZero reports whether the address is the all-zero sentinel.
func (a Address) IsZero() bool { return a.bytes == [20]byte{} }

// DecodeAddress parses a bech32 string into an Address, enforcing the
// marketplace prefix.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != AddressPrefix {
		return Address{}, fmt.Errorf("unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return AddressFromBytes(conv)
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

// GeneratePrivateKey creates a new secp256k1 private key.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{PrivateKey: key}, nil
}

// PrivateKeyFromBytes rehydrates a private key from its raw 32-byte form.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := ethcrypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{PrivateKey: key}, nil
}

// Bytes returns the raw 32-byte private key material.
func (p *PrivateKey) Bytes() []byte {
	return ethcrypto.FromECDSA(p.PrivateKey)
}

func (p *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{PublicKey: &p.PublicKey}
}

// Address derives the marketplace address from the public key using the
// standard Ethereum scheme (last 20 bytes of the keccak256 of the pubkey).
func (p *PublicKey) Address() Address {
	ethAddr := ethcrypto.PubkeyToAddress(*p.PublicKey)
	var raw [20]byte
	copy(raw[:], ethAddr.Bytes())
	return NewAddress(raw)
}
