package chains

// ChainList contains the list of supported chain IDs
var ChainList = []int{
	1,        // Ethereum
	8453,     // Base
	42161,    // Arbitrum
	137,      // Polygon
	10,       // Optimism
	11155111, // Sepolia
	84532,    // Base Sepolia
}

// chainNames maps chain IDs to their names
var chainNames = map[int]string{
	1:        "ETHEREUM",
	8453:     "BASE",
	42161:    "ARBITRUM",
	137:      "POLYGON",
	10:       "OPTIMISM",
	11155111: "SEPOLIA",
	84532:    "BASE_SEPOLIA",
}

// GetChainName returns the name of the chain for a given chain ID
func GetChainName(chainID int) string {
	name, exists := chainNames[chainID]
	if !exists {
		return ""
	}
	return name
}

// IsSupported reports whether the chain ID is one the service knows about
func IsSupported(chainID int) bool {
	_, exists := chainNames[chainID]
	return exists
}
