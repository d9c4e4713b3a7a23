/*
 * Copyright (c) 2024 Bima Kharisma Wicaksana
 * GitHub: https://github.com/bimakw
 *
 * Licensed under MIT License with Attribution Requirement.
 * See LICENSE file for details.
 */

package ethereum

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Error(string) selector prefixing Solidity revert payloads -> 0x08c379a0
var revertSelector = common.FromHex("0x08c379a0")

// decodeRevertReason extracts the human-readable reason from revert data.
// Returns an empty string when the payload carries no Error(string).
func decodeRevertReason(data []byte) string {
	if len(data) < len(revertSelector) || !bytes.Equal(data[:len(revertSelector)], revertSelector) {
		return ""
	}

	reason, err := decodeStringOrBytes32(data[len(revertSelector):])
	if err != nil {
		return ""
	}
	return reason
}

// decodeStringOrBytes32 decodes a response that could be either:
// 1. ABI-encoded string: offset (32 bytes) + length (32 bytes) + data (padded to 32 bytes)
// 2. bytes32: raw 32 bytes
func decodeStringOrBytes32(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty data")
	}

	if len(data) < 32 {
		return "", fmt.Errorf("data too short: %d bytes", len(data))
	}

	// Check if first 32 bytes could be an offset (typically 0x20 = 32)
	if len(data) >= 64 {
		offset := new(big.Int).SetBytes(data[:32])
		if offset.Uint64() == 32 {
			length := new(big.Int).SetBytes(data[32:64])
			strLen := int(length.Uint64())

			if strLen == 0 {
				return "", nil
			}

			if len(data) >= 64+strLen {
				strData := data[64 : 64+strLen]
				return strings.TrimRight(string(strData), "\x00"), nil
			}
		}
	}

	// Fallback: treat as bytes32
	result := bytes.TrimRight(data[:32], "\x00")

	if isPrintableASCII(result) {
		return string(result), nil
	}

	return "0x" + hex.EncodeToString(data[:32]), nil
}

// isPrintableASCII checks if all bytes are printable ASCII characters
func isPrintableASCII(data []byte) bool {
	for _, b := range data {
		if b < 32 || b > 126 {
			return false
		}
	}
	return len(data) > 0
}
