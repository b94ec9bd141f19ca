package chain

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// transferSelector is the 4-byte selector of transfer(address,uint256).
var transferSelector = keccak256([]byte("transfer(address,uint256)"))[:4]

// TransferCalldata ABI-encodes an ERC-20 transfer of amount base units to.
func TransferCalldata(to string, amount *big.Int) ([]byte, error) {
	if !IsHexAddress(to) {
		return nil, fmt.Errorf("invalid recipient address %q", to)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	if amount.BitLen() > 256 {
		return nil, fmt.Errorf("amount overflows uint256")
	}

	addr, _ := hex.DecodeString(strings.ToLower(to[2:]))

	data := make([]byte, 4+32+32)
	copy(data[:4], transferSelector)
	copy(data[4+12:36], addr)
	amount.FillBytes(data[36:68])
	return data, nil
}

func encodeHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
