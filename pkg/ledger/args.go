package ledger

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

// ArgString decodes data[i] as a string (account ids, hashes). JSON numbers are returned verbatim.
func ArgString(data []json.RawMessage, i int) (string, error) {
	raw, err := arg(data, i)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("arg %d: expected string, got %s", i, string(raw))
}

// ArgUint decodes data[i] as an unsigned integer (era, session and batch indexes).
func ArgUint(data []json.RawMessage, i int) (uint64, error) {
	raw, err := arg(data, i)
	if err != nil {
		return 0, err
	}
	return ParseUint(raw)
}

// ArgBalance decodes data[i] as a balance.
func ArgBalance(data []json.RawMessage, i int) (*uint256.Int, error) {
	raw, err := arg(data, i)
	if err != nil {
		return nil, err
	}
	return ParseBalance(raw)
}

func arg(data []json.RawMessage, i int) (json.RawMessage, error) {
	if i < 0 || i >= len(data) {
		return nil, fmt.Errorf("arg %d out of range (%d args)", i, len(data))
	}
	return data[i], nil
}

// ParseUint accepts a JSON number or a decimal / 0x-hex string.
func ParseUint(raw json.RawMessage) (uint64, error) {
	text := unquote(raw)
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		return strconv.ParseUint(text[2:], 16, 64)
	}
	return strconv.ParseUint(text, 10, 64)
}

// ParseBalance accepts a JSON number, a decimal string or a 0x-hex string. Balances are u128 on
// chain; uint256 keeps the arithmetic exact.
func ParseBalance(raw json.RawMessage) (*uint256.Int, error) {
	text := unquote(raw)
	if text == "" {
		return nil, fmt.Errorf("empty balance")
	}
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		v, err := uint256.FromHex(normalizeHex(text))
		if err != nil {
			return nil, fmt.Errorf("balance %q: %w", text, err)
		}
		return v, nil
	}
	v, err := uint256.FromDecimal(text)
	if err != nil {
		return nil, fmt.Errorf("balance %q: %w", text, err)
	}
	return v, nil
}

func unquote(raw json.RawMessage) string {
	text := strings.TrimSpace(string(raw))
	if len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"' {
		text = text[1 : len(text)-1]
	}
	return strings.ReplaceAll(text, ",", "")
}

// normalizeHex strips leading zeros: uint256.FromHex rejects "0x00ff".
func normalizeHex(s string) string {
	digits := strings.TrimLeft(s[2:], "0")
	if digits == "" {
		digits = "0"
	}
	return "0x" + digits
}
