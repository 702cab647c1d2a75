package paidquery

import (
	"errors"
	"testing"
)

func acceptsFixture() []PaymentRequirements {
	return []PaymentRequirements{
		{
			Scheme:            SchemeExact,
			Network:           "base",
			MaxAmountRequired: "1000000",
			Asset:             "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			PayTo:             "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
			MaxTimeoutSeconds: 300,
		},
		{
			Scheme:            SchemeExact,
			Network:           "polygon",
			MaxAmountRequired: "2000000",
			Asset:             "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
			PayTo:             "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
			MaxTimeoutSeconds: 300,
		},
	}
}

func TestFirstAccepted(t *testing.T) {
	accepts := acceptsFixture()

	selected, err := FirstAccepted{}.Select(accepts)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if selected.Network != "base" {
		t.Errorf("selected %s, want the first method (base)", selected.Network)
	}
}

func TestFirstAccepted_Empty(t *testing.T) {
	_, err := FirstAccepted{}.Select(nil)
	if !errors.Is(err, ErrNoPaymentMethod) {
		t.Errorf("got %v, want ErrNoPaymentMethod", err)
	}
}

func TestAllowList(t *testing.T) {
	accepts := acceptsFixture()

	tests := []struct {
		name        string
		filter      AllowList
		wantNetwork string
		wantErr     error
	}{
		{
			name:        "empty lists permit everything",
			filter:      AllowList{},
			wantNetwork: "base",
		},
		{
			name:        "network allow-list skips earlier methods",
			filter:      AllowList{Networks: []string{"polygon"}},
			wantNetwork: "polygon",
		},
		{
			name:        "asset allow-list is case-insensitive",
			filter:      AllowList{Assets: []string{"0x3C499C542CEF5E3811E1192CE70D8CC03D5C3359"}},
			wantNetwork: "polygon",
		},
		{
			name:    "nothing passes",
			filter:  AllowList{Networks: []string{"avalanche"}},
			wantErr: ErrNoPaymentMethod,
		},
		{
			name:    "empty accepts",
			filter:  AllowList{},
			wantErr: ErrNoPaymentMethod,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := accepts
			if tt.name == "empty accepts" {
				input = nil
			}

			selected, err := tt.filter.Select(input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got err %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Select failed: %v", err)
			}
			if selected.Network != tt.wantNetwork {
				t.Errorf("selected %s, want %s", selected.Network, tt.wantNetwork)
			}
		})
	}
}

func TestNetworkChainID(t *testing.T) {
	tests := []struct {
		network string
		chainID int64
		wantErr bool
	}{
		{"base", 8453, false},
		{"base-sepolia", 84532, false},
		{"ethereum", 1, false},
		{"polygon", 137, false},
		{"avalanche-fuji", 43113, false},
		{"solana", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.network, func(t *testing.T) {
			chainID, err := NetworkChainID(tt.network)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidNetwork) {
					t.Errorf("got %v, want ErrInvalidNetwork", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NetworkChainID failed: %v", err)
			}
			if chainID != tt.chainID {
				t.Errorf("chainID = %d, want %d", chainID, tt.chainID)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		amount  string
		wantErr bool
	}{
		{"1000000", false},
		{"0", false},
		{"115792089237316195423570985008687907853269984665640564039457584007913129639935", false},
		{"-1", true},
		{"1.5", true},
		{"", true},
		{"0x10", true},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			_, err := ParseAmount(tt.amount)
			if tt.wantErr && !errors.Is(err, ErrInvalidAmount) {
				t.Errorf("ParseAmount(%q) = %v, want ErrInvalidAmount", tt.amount, err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ParseAmount(%q) failed: %v", tt.amount, err)
			}
		})
	}
}
