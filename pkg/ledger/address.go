package ledger

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/crypto/blake2b"
)

const (
	publicKeyLen = 32
	checksumLen  = 2
)

var (
	ss58Prefix = []byte("SS58PRE")

	ErrInvalidAddress = errors.New("invalid ss58 address")
)

// DecodeAddress returns the 32 byte public key behind an SS58 address. A 0x-prefixed hex public
// key is accepted as-is, which is how some sidecars render accounts of unknown networks.
func DecodeAddress(address string) ([]byte, error) {
	if strings.HasPrefix(address, "0x") {
		pub, err := hex.DecodeString(address[2:])
		if err != nil || len(pub) != publicKeyLen {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
		}
		return pub, nil
	}

	raw := base58.Decode(address)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: %q is not base58", ErrInvalidAddress, address)
	}

	prefixLen := 1
	if raw[0]&0b0100_0000 != 0 {
		prefixLen = 2
	}
	if raw[0] > 127 || len(raw) != prefixLen+publicKeyLen+checksumLen {
		return nil, fmt.Errorf("%w: %q has unexpected length %d", ErrInvalidAddress, address, len(raw))
	}

	body := raw[:len(raw)-checksumLen]
	sum := ss58Checksum(body)
	if !bytes.Equal(sum[:checksumLen], raw[len(raw)-checksumLen:]) {
		return nil, fmt.Errorf("%w: %q checksum mismatch", ErrInvalidAddress, address)
	}
	return append([]byte(nil), body[prefixLen:]...), nil
}

// EncodeAddress renders pub as an SS58 address for the given network identifier (0..16383).
func EncodeAddress(pub []byte, network uint16) (string, error) {
	if len(pub) != publicKeyLen {
		return "", fmt.Errorf("public key must be %d bytes, got %d", publicKeyLen, len(pub))
	}
	if network > 16383 {
		return "", fmt.Errorf("network identifier %d out of range", network)
	}

	var prefix []byte
	if network < 64 {
		prefix = []byte{byte(network)}
	} else {
		first := byte((network&0b0000_0000_1111_1100)>>2) | 0b0100_0000
		second := byte(network>>8) | byte((network&0b11)<<6)
		prefix = []byte{first, second}
	}

	body := append(prefix, pub...)
	sum := ss58Checksum(body)
	return base58.Encode(append(body, sum[:checksumLen]...)), nil
}

// PublicKeyHex is the Account.PubKey representation: 0x-prefixed lowercase hex.
func PublicKeyHex(address string) (string, error) {
	pub, err := DecodeAddress(address)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(pub), nil
}

func ss58Checksum(body []byte) [blake2b.Size]byte {
	return blake2b.Sum512(append(append([]byte(nil), ss58Prefix...), body...))
}
