package smbpoll

import (
	"encoding/binary"
	"encoding/hex"
	"unicode/utf16"

	"golang.org/x/crypto/md4"
)

// ntHash computes the NT hash (MD4 of UTF-16LE password).
func ntHash(password string) []byte {
	h := md4.New()
	h.Write(encodeUTF16LE(password))
	return h.Sum(nil)
}

// encodeUTF16LE encodes s as little-endian UTF-16 without a BOM.
func encodeUTF16LE(s string) []byte {
	units := utf16.Encode([]rune(s))
	b := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(b[2*i:], u)
	}
	return b
}

// resolveCredentials derives the NT hash handed to the NTLM initiator so
// the pool never needs the plaintext password again. Validate has already
// checked PasswordHash.
func (c *Config) resolveCredentials() {
	if c.GuestAccess {
		return
	}
	if c.PasswordHash != "" {
		c.ntHash, _ = hex.DecodeString(c.PasswordHash)
		return
	}
	c.ntHash = ntHash(c.Password)
}
