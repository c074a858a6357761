package chain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"golang.org/x/crypto/sha3"
)

const (
	FormatEVM    = "evm"
	FormatBech32 = "bech32"
)

var (
	ErrEmptyAddress   = errors.New("address is empty")
	ErrBadChecksum    = errors.New("address checksum mismatch")
	ErrAddressLength  = errors.New("address must encode 20 bytes")
	ErrAddressPrefix  = errors.New("address prefix does not match chain")
	ErrAddressCharset = errors.New("address is not valid hex")

	evmHashPattern    = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
	cosmosHashPattern = regexp.MustCompile(`^[0-9A-F]{64}$`)
)

// AddressValidator checks wallet addresses for the configured chain family.
type AddressValidator struct {
	Format string
	Prefix string
}

func (v AddressValidator) Validate(addr string) error {
	if addr == "" {
		return ErrEmptyAddress
	}
	switch v.Format {
	case FormatBech32:
		return validateBech32(addr, v.Prefix)
	case FormatEVM, "":
		return validateEIP55(addr)
	default:
		return fmt.Errorf("unknown address format %q", v.Format)
	}
}

// Normalize returns the canonical form used for comparisons: the checksummed
// form for EVM addresses, lower case for bech32.
func (v AddressValidator) Normalize(addr string) string {
	if v.Format == FormatBech32 {
		return strings.ToLower(addr)
	}
	if len(addr) == 42 {
		if cs, err := ToChecksumAddress(addr); err == nil {
			return cs
		}
	}
	return addr
}

// ValidTxHash reports whether hash has the shape of a transaction hash on the
// configured chain family.
func (v AddressValidator) ValidTxHash(hash string) bool {
	if v.Format == FormatBech32 {
		return cosmosHashPattern.MatchString(hash)
	}
	return evmHashPattern.MatchString(hash)
}

// ToChecksumAddress applies EIP-55 mixed-case encoding to a 0x-prefixed
// 20-byte hex address.
func ToChecksumAddress(addr string) (string, error) {
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return "", ErrAddressCharset
	}
	body := strings.ToLower(addr[2:])
	if len(body) != 40 {
		return "", ErrAddressLength
	}
	if _, err := hex.DecodeString(body); err != nil {
		return "", ErrAddressCharset
	}

	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write([]byte(body))
	digest := h.Sum(nil)

	out := make([]byte, 0, 42)
	out = append(out, '0', 'x')
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c >= 'a' && c <= 'f' {
			nibble := digest[i/2]
			if i%2 == 0 {
				nibble >>= 4
			}
			if nibble&0x0f >= 8 {
				c -= 'a' - 'A'
			}
		}
		out = append(out, c)
	}
	return string(out), nil
}

func validateEIP55(addr string) error {
	cs, err := ToChecksumAddress(addr)
	if err != nil {
		return err
	}
	if cs != addr {
		return ErrBadChecksum
	}
	return nil
}

func validateBech32(addr, prefix string) error {
	hrp, data, err := bech32.Decode(addr)
	if err != nil {
		return err
	}
	if prefix != "" && hrp != prefix {
		return ErrAddressPrefix
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return err
	}
	if len(raw) != 20 {
		return ErrAddressLength
	}
	return nil
}
