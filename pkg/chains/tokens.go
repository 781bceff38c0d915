package chains

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TokenType identifies a well-known stablecoin
type TokenType string

const (
	TokenTypeUSDC TokenType = "USDC"
	TokenTypeUSDT TokenType = "USDT"
)

// usdcAddresses maps chain IDs to USDC contract addresses
var usdcAddresses = map[int]string{
	1:        "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
	8453:     "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
	42161:    "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
	137:      "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
	10:       "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85",
	11155111: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
	84532:    "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
}

// usdtAddresses maps chain IDs to USDT contract addresses
var usdtAddresses = map[int]string{
	1:     "0xdAC17F958D2ee523a2206206994597C13D831ec7",
	8453:  "0xfde4C96c8593536E31F229EA8f37b2ADa2699bb2",
	42161: "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9",
	137:   "0xc2132D05D31c914a87C6611C10748AEb04B58e8F",
	10:    "0x94b008aA00579c1307B0EF2c499aD98a8ce58e58",
}

// GetUSDCAddress returns the USDC contract address for a given chain ID
func GetUSDCAddress(chainID int) string {
	address, exists := usdcAddresses[chainID]
	if !exists {
		return ""
	}
	return address
}

// GetUSDTAddress returns the USDT contract address for a given chain ID
func GetUSDTAddress(chainID int) string {
	address, exists := usdtAddresses[chainID]
	if !exists {
		return ""
	}
	return address
}

// GetTokenType returns from the address the name of the token (USDC or USDT)
// return an empty string if not found
func GetTokenType(address string) TokenType {
	address = strings.ToLower(address)

	for _, usdcAddress := range usdcAddresses {
		if strings.ToLower(usdcAddress) == address {
			return TokenTypeUSDC
		}
	}

	for _, usdtAddress := range usdtAddresses {
		if strings.ToLower(usdtAddress) == address {
			return TokenTypeUSDT
		}
	}

	return ""
}

// ResolveToken accepts either a token symbol known for the chain or a hex address
func ResolveToken(chainID int, token string) (common.Address, error) {
	switch TokenType(strings.ToUpper(token)) {
	case TokenTypeUSDC:
		if addr := GetUSDCAddress(chainID); addr != "" {
			return common.HexToAddress(addr), nil
		}
		return common.Address{}, fmt.Errorf("USDC is not available on chain %d", chainID)
	case TokenTypeUSDT:
		if addr := GetUSDTAddress(chainID); addr != "" {
			return common.HexToAddress(addr), nil
		}
		return common.Address{}, fmt.Errorf("USDT is not available on chain %d", chainID)
	}

	if !common.IsHexAddress(token) {
		return common.Address{}, fmt.Errorf("invalid token: %s, must be a known symbol or a valid address", token)
	}
	return common.HexToAddress(token), nil
}

// KnownDecimals returns the decimals of a well-known stablecoin on a chain.
// Both USDC and USDT use 6 decimals on every supported chain.
func KnownDecimals(chainID int, tokenType TokenType) (uint8, bool) {
	if !IsSupported(chainID) {
		return 0, false
	}
	switch tokenType {
	case TokenTypeUSDC, TokenTypeUSDT:
		return 6, true
	}
	return 0, false
}

// ToBaseUnits converts a human readable token amount into the token's base units.
// Fractional digits beyond the token precision are rejected rather than rounded.
func ToBaseUnits(amount decimal.Decimal, decimals uint8) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("amount must not be negative: %s", amount)
	}
	shifted := amount.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}
	return shifted.BigInt(), nil
}

// GetStandardizedAmount converts a base-unit amount into its human readable value
func GetStandardizedAmount(baseAmount *big.Int, decimals uint8) (decimal.Decimal, error) {
	if baseAmount == nil {
		return decimal.Zero, fmt.Errorf("amount is nil")
	}
	if baseAmount.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("amount must be positive: %s", baseAmount)
	}
	return decimal.NewFromBigInt(baseAmount, -int32(decimals)), nil
}
