package domain

import "strings"

// Network 地址规则所属的链
type Network string

const (
	NetworkBEP20    Network = "bep20"
	NetworkEthereum Network = "ethereum"
	NetworkStellar  Network = "stellar"
	NetworkBitcoin  Network = "bitcoin"
	NetworkSolana   Network = "solana"
)

// SupportedNetworks 可以创建/恢复钱包的链
var SupportedNetworks = []Network{
	NetworkBEP20,
	NetworkEthereum,
	NetworkStellar,
	NetworkBitcoin,
	NetworkSolana,
}

func ParseNetwork(s string) Network {
	return Network(strings.ToLower(strings.TrimSpace(s)))
}

func (n Network) Supported() bool {
	for _, s := range SupportedNetworks {
		if s == n {
			return true
		}
	}
	return false
}

// IsEVM bep20 与 ethereum 共用 secp256k1 + 0x 地址
func (n Network) IsEVM() bool {
	return n == NetworkBEP20 || n == NetworkEthereum
}

func (n Network) String() string { return string(n) }
