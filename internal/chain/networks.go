package chain

import (
	"errors"
	"sort"
	"strings"
)

// ErrUnknownNetwork is returned when a chain id is not in the network table.
var ErrUnknownNetwork = errors.New("unknown network")

// Network describes an EVM network the CrowdFunding contract may live on.
type Network struct {
	Name     string
	ChainID  int64
	Currency string
	// Explorer is the block explorer base URL, empty for local nodes.
	Explorer string
	Testnet  bool
}

// TxURL links a transaction hash on the explorer, or returns "" when the
// network has none.
func (n Network) TxURL(hash string) string {
	if n.Explorer == "" || hash == "" {
		return ""
	}
	return strings.TrimRight(n.Explorer, "/") + "/tx/" + hash
}

// AddressURL links an account or contract on the explorer.
func (n Network) AddressURL(addr string) string {
	if n.Explorer == "" || addr == "" {
		return ""
	}
	return strings.TrimRight(n.Explorer, "/") + "/address/" + addr
}

var networks = map[int64]Network{
	1:        {Name: "Ethereum", ChainID: 1, Currency: "ETH", Explorer: "https://etherscan.io"},
	11155111: {Name: "Sepolia", ChainID: 11155111, Currency: "ETH", Explorer: "https://sepolia.etherscan.io", Testnet: true},
	17000:    {Name: "Holesky", ChainID: 17000, Currency: "ETH", Explorer: "https://holesky.etherscan.io", Testnet: true},
	8453:     {Name: "Base", ChainID: 8453, Currency: "ETH", Explorer: "https://basescan.org"},
	84532:    {Name: "Base Sepolia", ChainID: 84532, Currency: "ETH", Explorer: "https://sepolia.basescan.org", Testnet: true},
	10:       {Name: "Optimism", ChainID: 10, Currency: "ETH", Explorer: "https://optimistic.etherscan.io"},
	42161:    {Name: "Arbitrum One", ChainID: 42161, Currency: "ETH", Explorer: "https://arbiscan.io"},
	137:      {Name: "Polygon", ChainID: 137, Currency: "POL", Explorer: "https://polygonscan.com"},
	80002:    {Name: "Polygon Amoy", ChainID: 80002, Currency: "POL", Explorer: "https://amoy.polygonscan.com", Testnet: true},
	31337:    {Name: "Hardhat", ChainID: 31337, Currency: "ETH", Testnet: true},
	1337:     {Name: "Local", ChainID: 1337, Currency: "ETH", Testnet: true},
}

// NetworkByID looks a network up by chain id.
func NetworkByID(id int64) (Network, error) {
	n, ok := networks[id]
	if !ok {
		return Network{}, ErrUnknownNetwork
	}
	return n, nil
}

// Networks returns every known network ordered by chain id.
func Networks() []Network {
	out := make([]Network, 0, len(networks))
	for _, n := range networks {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}
