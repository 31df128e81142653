package chain

import "strconv"

// Network identifies the chain the client is connected to.
type Network struct {
	ID   uint64
	Name string
}

// networkNames maps chain IDs to display names.
var networkNames = map[uint64]string{
	1:        "Ethereum",
	3:        "Ethereum Ropsten",
	4:        "Ethereum Rinkeby",
	5:        "Ethereum Goerli",
	10:       "Optimism",
	56:       "BNB Chain",
	97:       "BNB Chain Testnet",
	137:      "Polygon",
	250:      "Fantom",
	420:      "Optimism Goerli",
	1001:     "Klaytn Testnet",
	4002:     "Fantom Testnet",
	8217:     "Klaytn",
	31337:    "Hardhat",
	42161:    "Arbitrum",
	42170:    "Arbitrum Nova",
	43113:    "Avalanche Fuji",
	43114:    "Avalanche",
	80001:    "Polygon Mumbai",
	421613:   "Arbitrum Goerli",
	11155111: "Ethereum Sepolia",
}

// NetworkName returns the display name for a chain ID, or "chain <id>" for
// unknown networks.
func NetworkName(id uint64) string {
	if name, ok := networkNames[id]; ok {
		return name
	}
	return "chain " + strconv.FormatUint(id, 10)
}

// String returns "Name (id)".
func (n Network) String() string {
	return n.Name + " (" + strconv.FormatUint(n.ID, 10) + ")"
}
