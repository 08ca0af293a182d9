package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"nftrental/crypto"
	"nftrental/native/rental"
)

// Times travel the wire as Unix epoch seconds in the 32-bit range.
const maxEpochSeconds int64 = 4294967295

type registerParams struct {
	Caller  string `json:"caller"`
	Address string `json:"address"`
}

type addNFTToLendParams struct {
	Caller        string `json:"caller"`
	NftKey        string `json:"nftKey"`
	Owner         string `json:"owner"`
	NftAddress    string `json:"nftAddress"`
	NftID         uint64 `json:"nftId"`
	WishlistCount uint64 `json:"wishlistCount"`
	Name          string `json:"name"`
	ImageURL      string `json:"imageUrl"`
	Lender        string `json:"lender"`
	DueDate       int64  `json:"dueDate"`
	DailyRent     string `json:"dailyRent"`
	Collateral    string `json:"collateral"`
}

type keyedParams struct {
	Caller string `json:"caller"`
	NftKey string `json:"nftKey"`
}

type rentNftParams struct {
	Caller          string `json:"caller"`
	NftKey          string `json:"nftKey"`
	Borrower        string `json:"borrower"`
	NumberOfDays    uint64 `json:"numberOfDays"`
	RentalStartTime int64  `json:"rentalStartTime"`
	Value           string `json:"value"`
}

type mintParams struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type lendedQueryParams struct {
	Lender string  `json:"lender"`
	NftKey string  `json:"nftKey,omitempty"`
	Index  *uint64 `json:"index,omitempty"`
}

type rentedQueryParams struct {
	Borrower string  `json:"borrower,omitempty"`
	NftKey   string  `json:"nftKey,omitempty"`
	Index    *uint64 `json:"index,omitempty"`
}

type addressParams struct {
	Address string `json:"address"`
}

type nftKeyParams struct {
	NftKey string `json:"nftKey"`
}

type listingJSON struct {
	NftKey     string  `json:"nftKey"`
	Lender     string  `json:"lender"`
	Borrower   *string `json:"borrower,omitempty"`
	DueDate    int64   `json:"dueDate"`
	DailyRent  string  `json:"dailyRent"`
	Collateral string  `json:"collateral"`
}

type rentalJSON struct {
	NftKey          string `json:"nftKey"`
	Lender          string `json:"lender"`
	Borrower        string `json:"borrower"`
	NumberOfDays    uint64 `json:"numberOfDays"`
	RentalStartTime int64  `json:"rentalStartTime"`
}

type propsJSON struct {
	NftKey        string `json:"nftKey"`
	Owner         string `json:"owner"`
	NftAddress    string `json:"nftAddress"`
	NftID         uint64 `json:"nftId"`
	WishlistCount uint64 `json:"wishlistCount"`
	Name          string `json:"name"`
	ImageURL      string `json:"imageUrl"`
}

type balanceJSON struct {
	Balance string `json:"balance"`
}

type userCountsJSON struct {
	Lended   int `json:"lended"`
	Rented   int `json:"rented"`
	Wishlist int `json:"wishlist"`
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseBech32Address(value string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Bytes(), nil
}

func parseContractAddress(value string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return [20]byte{}, nil
	}
	if !ethcommon.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("invalid contract address %q", value)
	}
	return ethcommon.HexToAddress(trimmed), nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func checkEpoch(value int64) error {
	if value < 0 || value > maxEpochSeconds {
		return fmt.Errorf("epoch seconds out of range: %d", value)
	}
	return nil
}

func encodeAddress(addr [20]byte) string {
	return crypto.NewAddress(addr).String()
}

func listingToJSON(l *rental.Listing) *listingJSON {
	out := &listingJSON{
		NftKey:     l.Key,
		Lender:     encodeAddress(l.Lender),
		DueDate:    l.DueDate,
		DailyRent:  l.DailyRent.String(),
		Collateral: l.Collateral.String(),
	}
	if l.Borrower != ([20]byte{}) {
		borrower := encodeAddress(l.Borrower)
		out.Borrower = &borrower
	}
	return out
}

func rentalToJSON(r *rental.Rental) *rentalJSON {
	return &rentalJSON{
		NftKey:          r.Key,
		Lender:          encodeAddress(r.Lender),
		Borrower:        encodeAddress(r.Borrower),
		NumberOfDays:    r.Days,
		RentalStartTime: r.StartTime,
	}
}

func propsToJSON(p *rental.NFTProps) *propsJSON {
	return &propsJSON{
		NftKey:        p.Key,
		Owner:         encodeAddress(p.Owner),
		NftAddress:    ethcommon.BytesToAddress(p.ContractAddr[:]).Hex(),
		NftID:         p.TokenID,
		WishlistCount: p.WishlistCount,
		Name:          p.Name,
		ImageURL:      p.ImageURL,
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params registerParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseBech32Address(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.Register(caller, addr); err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleAddNFTToLend(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addNFTToLendParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := parseBech32Address(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	lender, err := parseBech32Address(params.Lender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	contract, err := parseContractAddress(params.NftAddress)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if strings.TrimSpace(params.NftKey) == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "nftKey required")
		return
	}
	if err := checkEpoch(params.DueDate); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	dailyRent, err := parseAmount(params.DailyRent)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	collateral, err := parseAmount(params.Collateral)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	listErr := s.engine.AddNFTToLend(caller, rental.ListParams{
		Key:           params.NftKey,
		Owner:         owner,
		ContractAddr:  contract,
		TokenID:       params.NftID,
		WishlistCount: params.WishlistCount,
		Name:          params.Name,
		ImageURL:      params.ImageURL,
		Lender:        lender,
		DueDate:       params.DueDate,
		DailyRent:     dailyRent,
		Collateral:    collateral,
	})
	if listErr != nil {
		s.writeEngineError(w, req, listErr)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleStopLend(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleKeyedMutation(w, req, s.engine.StopLend)
}

func (s *Server) handleReturnNFT(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleKeyedMutation(w, req, s.engine.ReturnNFT)
}

func (s *Server) handleClaimCollateral(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleKeyedMutation(w, req, s.engine.ClaimCollateral)
}

func (s *Server) handleAddToWishlist(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.handleKeyedMutation(w, req, s.engine.AddToWishlist)
}

func (s *Server) handleKeyedMutation(w http.ResponseWriter, req *RPCRequest, op func([20]byte, string) error) {
	var params keyedParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if strings.TrimSpace(params.NftKey) == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "nftKey required")
		return
	}
	if err := op(caller, params.NftKey); err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleRentNft(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params rentNftParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	borrower, err := parseBech32Address(params.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := checkEpoch(params.RentalStartTime); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if params.NumberOfDays == 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "numberOfDays must be positive")
		return
	}
	value, err := parseAmount(params.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	rentErr := s.engine.RentNft(caller, params.NftKey, borrower, params.NumberOfDays, params.RentalStartTime, value)
	if rentErr != nil {
		s.writeEngineError(w, req, rentErr)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleMint(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params mintParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseBech32Address(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.Mint(addr, amount); err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleGetAvailableNfts(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	keys, err := s.engine.AvailableNftKeys()
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, keys)
}

func (s *Server) handleGetNftProps(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params nftKeyParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	props, err := s.engine.Props(params.NftKey)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, propsToJSON(props))
}

func (s *Server) handleGetListedNft(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params nftKeyParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	listing, err := s.engine.ListedNft(params.NftKey)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, listingToJSON(listing))
}

func (s *Server) handleGetLendedNft(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params lendedQueryParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	lender, err := parseBech32Address(params.Lender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	var entry *rental.Listing
	var lookupErr error
	switch {
	case params.Index != nil:
		entry, lookupErr = s.engine.UserLendedNftAt(lender, *params.Index)
	case strings.TrimSpace(params.NftKey) != "":
		entry, lookupErr = s.engine.UserLendedNftDetails(lender, params.NftKey)
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "nftKey or index required")
		return
	}
	if lookupErr != nil {
		s.writeEngineError(w, req, lookupErr)
		return
	}
	writeResult(w, req.ID, listingToJSON(entry))
}

func (s *Server) handleGetRentedNft(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params rentedQueryParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	var rented *rental.Rental
	var lookupErr error
	switch {
	case strings.TrimSpace(params.Borrower) != "":
		borrower, err := parseBech32Address(params.Borrower)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
		if params.Index != nil {
			rented, lookupErr = s.engine.UserRentedNftAt(borrower, *params.Index)
		} else {
			rented, lookupErr = s.engine.UserRentedNftDetails(borrower, params.NftKey)
		}
	case strings.TrimSpace(params.NftKey) != "":
		rented, lookupErr = s.engine.RentedNft(params.NftKey)
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "borrower or nftKey required")
		return
	}
	if lookupErr != nil {
		s.writeEngineError(w, req, lookupErr)
		return
	}
	writeResult(w, req.ID, rentalToJSON(rented))
}

func (s *Server) handleGetUserAddressList(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addresses, err := s.engine.UserAddresses()
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	encoded := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		encoded = append(encoded, encodeAddress(addr))
	}
	writeResult(w, req.ID, encoded)
}

func (s *Server) handleGetUserCounts(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseBech32Address(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	lended, rented, wishlist, err := s.engine.UserCounts(addr)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, &userCountsJSON{Lended: lended, Rented: rented, Wishlist: wishlist})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseBech32Address(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	balance, err := s.engine.BalanceOf(addr)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, &balanceJSON{Balance: balance.String()})
}

func (s *Server) handleEscrowBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	balance, err := s.engine.EscrowBalance()
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, &balanceJSON{Balance: balance.String()})
}
