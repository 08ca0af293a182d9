package rental

import (
	"math/big"
	"testing"
)

func TestListingCloneIsIndependent(t *testing.T) {
	original := &Listing{
		Key:        "key",
		Lender:     newTestAddress(0x01),
		DueDate:    100,
		DailyRent:  big.NewInt(5),
		Collateral: big.NewInt(9),
	}
	clone := original.Clone()
	clone.DailyRent.SetInt64(42)
	clone.Borrower = newTestAddress(0x02)
	if original.DailyRent.Int64() != 5 {
		t.Fatalf("clone mutation leaked into original rent")
	}
	if original.Borrower != ([20]byte{}) {
		t.Fatalf("clone mutation leaked into original borrower")
	}
}

func TestSanitizeListing(t *testing.T) {
	if _, err := SanitizeListing(nil); err == nil {
		t.Fatalf("nil listing must be rejected")
	}
	if _, err := SanitizeListing(&Listing{Key: " ", Lender: newTestAddress(0x01)}); err == nil {
		t.Fatalf("blank key must be rejected")
	}
	if _, err := SanitizeListing(&Listing{Key: "k"}); err == nil {
		t.Fatalf("zero lender must be rejected")
	}
	sanitized, err := SanitizeListing(&Listing{Key: "k", Lender: newTestAddress(0x01)})
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if sanitized.DailyRent == nil || sanitized.Collateral == nil {
		t.Fatalf("amounts must be non-nil after sanitize")
	}
	if _, err := SanitizeListing(&Listing{Key: "k", Lender: newTestAddress(0x01), DailyRent: big.NewInt(-1)}); err == nil {
		t.Fatalf("negative rent must be rejected")
	}
}

func TestSanitizeRental(t *testing.T) {
	if _, err := SanitizeRental(&Rental{Key: "k", Lender: newTestAddress(0x01)}); err == nil {
		t.Fatalf("zero borrower must be rejected")
	}
	if _, err := SanitizeRental(&Rental{Key: "", Lender: newTestAddress(0x01), Borrower: newTestAddress(0x02)}); err == nil {
		t.Fatalf("blank key must be rejected")
	}
}

func TestRentalDueTime(t *testing.T) {
	r := &Rental{StartTime: 1_000, Days: 2}
	if got := r.DueTime(); got != 1_000+2*SecondsPerDay {
		t.Fatalf("dueTime = %d", got)
	}
}
