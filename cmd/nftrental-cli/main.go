package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"nftrental/crypto"
)

var rpcEndpoint = defaultRPCEndpoint()
var rpcAuthToken = os.Getenv("NFTRENTAL_RPC_TOKEN")

func defaultRPCEndpoint() string {
	if url := strings.TrimSpace(os.Getenv("RPC_URL")); url != "" {
		return url
	}
	return "http://127.0.0.1:8645"
}

func main() {
	args := os.Args[1:]
	args = applyGlobalFlags(args)

	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	args = args[1:]
	var err error
	switch command {
	case "generate-key":
		err = generateKey(arg(args, 0, "wallet.key"))
	case "show-address":
		err = showAddress(arg(args, 0, "wallet.key"))
	case "register":
		err = withCaller(args, 0, func(caller string, rest []string) error {
			return call("rental_register", map[string]interface{}{"caller": caller, "address": caller})
		})
	case "lend":
		err = lend(args)
	case "stop-lend":
		err = keyedCommand(args, "rental_stopLend")
	case "rent":
		err = rent(args)
	case "return":
		err = keyedCommand(args, "rental_returnNFT")
	case "claim":
		err = keyedCommand(args, "rental_claimCollateral")
	case "wishlist":
		err = keyedCommand(args, "rental_addToWishlist")
	case "available":
		err = call("rental_getAvailableNfts", nil)
	case "props":
		err = requireArgs(args, 1, func() error {
			return call("rental_getNftProps", map[string]interface{}{"nftKey": args[0]})
		})
	case "lended":
		err = requireArgs(args, 2, func() error {
			return call("rental_getLendedNft", map[string]interface{}{"lender": args[0], "nftKey": args[1]})
		})
	case "rented":
		err = requireArgs(args, 2, func() error {
			return call("rental_getRentedNft", map[string]interface{}{"borrower": args[0], "nftKey": args[1]})
		})
	case "balance":
		err = requireArgs(args, 1, func() error {
			return call("rental_getBalance", map[string]interface{}{"address": args[0]})
		})
	case "escrow-balance":
		err = call("rental_escrowBalance", nil)
	case "counts":
		err = requireArgs(args, 1, func() error {
			return call("rental_getUserCounts", map[string]interface{}{"address": args[0]})
		})
	case "users":
		err = call("rental_getUserAddressList", nil)
	case "mint":
		err = requireArgs(args, 2, func() error {
			return call("rental_mint", map[string]interface{}{"address": args[0], "amount": args[1]})
		})
	default:
		printUsage()
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: nftrental-cli [--rpc <url>] <command> [args]

Key management:
  generate-key [file]                     create a new key file
  show-address [file]                     print the address of a key file

Marketplace (caller derived from the key file):
  register <keyfile>
  lend <keyfile> <nftKey> <nftAddress> <nftId> <name> <imageUrl> <dueDate> <dailyRent> <collateral>
  stop-lend <keyfile> <nftKey>
  rent <keyfile> <nftKey> <numberOfDays> <rentalStartTime> <value>
  return <keyfile> <nftKey>
  claim <keyfile> <nftKey>
  wishlist <keyfile> <nftKey>

Queries:
  available                               keys currently open for rent
  props <nftKey>
  lended <lender> <nftKey>
  rented <borrower> <nftKey>
  balance <address>
  counts <address>
  escrow-balance
  users

Operator:
  mint <address> <amount>                 credit a balance (requires auth token)`)
}

func applyGlobalFlags(args []string) []string {
	out := args[:0]
	for i := 0; i < len(args); i++ {
		if args[i] == "--rpc" && i+1 < len(args) {
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		out = append(out, args[i])
	}
	return out
}

func arg(args []string, i int, fallback string) string {
	if i < len(args) {
		return args[i]
	}
	return fallback
}

func requireArgs(args []string, n int, fn func() error) error {
	if len(args) < n {
		printUsage()
		return fmt.Errorf("expected %d argument(s), got %d", n, len(args))
	}
	return fn()
}

func generateKey(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("refusing to overwrite existing key file %s", path)
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key.Bytes())), 0o600); err != nil {
		return err
	}
	fmt.Println("Address:", key.PubKey().Address().String())
	fmt.Println("Key written to", path)
	return nil
}

func loadAddress(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	decoded, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return "", fmt.Errorf("invalid key file %s: %w", path, err)
	}
	key, err := crypto.PrivateKeyFromBytes(decoded)
	if err != nil {
		return "", err
	}
	return key.PubKey().Address().String(), nil
}

func showAddress(path string) error {
	addr, err := loadAddress(path)
	if err != nil {
		return err
	}
	fmt.Println(addr)
	return nil
}

func withCaller(args []string, extra int, fn func(caller string, rest []string) error) error {
	if len(args) < 1+extra {
		printUsage()
		return fmt.Errorf("expected a key file and %d argument(s)", extra)
	}
	caller, err := loadAddress(args[0])
	if err != nil {
		return err
	}
	return fn(caller, args[1:])
}

func keyedCommand(args []string, method string) error {
	return withCaller(args, 1, func(caller string, rest []string) error {
		return call(method, map[string]interface{}{"caller": caller, "nftKey": rest[0]})
	})
}

func lend(args []string) error {
	return withCaller(args, 8, func(caller string, rest []string) error {
		nftID, err := strconv.ParseUint(rest[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid nftId: %w", err)
		}
		dueDate, err := strconv.ParseInt(rest[5], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid dueDate: %w", err)
		}
		return call("rental_addNFTToLend", map[string]interface{}{
			"caller":     caller,
			"nftKey":     rest[0],
			"owner":      caller,
			"nftAddress": rest[1],
			"nftId":      nftID,
			"name":       rest[3],
			"imageUrl":   rest[4],
			"lender":     caller,
			"dueDate":    dueDate,
			"dailyRent":  rest[6],
			"collateral": rest[7],
		})
	})
}

func rent(args []string) error {
	return withCaller(args, 4, func(caller string, rest []string) error {
		days, err := strconv.ParseUint(rest[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid numberOfDays: %w", err)
		}
		start, err := strconv.ParseInt(rest[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid rentalStartTime: %w", err)
		}
		return call("rental_rentNft", map[string]interface{}{
			"caller":          caller,
			"nftKey":          rest[0],
			"borrower":        caller,
			"numberOfDays":    days,
			"rentalStartTime": start,
			"value":           rest[3],
		})
	})
}

func call(method string, params interface{}) error {
	reqBody := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		reqBody["params"] = []interface{}{params}
	}
	raw, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if rpcAuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+rpcAuthToken)
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int         `json:"code"`
			Message string      `json:"message"`
			Data    interface{} `json:"data"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return err
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s (%d): %v", rpcResp.Error.Message, rpcResp.Error.Code, rpcResp.Error.Data)
	}
	pretty, err := json.MarshalIndent(rpcResp.Result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}
