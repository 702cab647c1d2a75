package paidquery

// NetworkChainID maps a v1 network identifier to its EIP-155 chain id.
// Returns ErrInvalidNetwork for networks this client does not know.
func NetworkChainID(network string) (int64, error) {
	switch network {
	case "base":
		return 8453, nil
	case "base-sepolia":
		return 84532, nil
	case "ethereum":
		return 1, nil
	case "sepolia":
		return 11155111, nil
	case "polygon":
		return 137, nil
	case "polygon-amoy":
		return 80002, nil
	case "avalanche":
		return 43114, nil
	case "avalanche-fuji":
		return 43113, nil
	default:
		return 0, ErrInvalidNetwork
	}
}

// KnownNetwork reports whether the network identifier is supported.
func KnownNetwork(network string) bool {
	_, err := NetworkChainID(network)
	return err == nil
}
