package admin

import (
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/blowfish"
)

// loginSalt is the fixed salt the wire protocol requires for the LOGIN
// handshake's CREDENTIAL field (spec.md §4.12) — every client hashes the
// same way so the server never needs to see or store the plaintext.
const loginSalt = "7EqJtq98hPqEX7fNZaFWoO"
const loginCost = 10

// bcryptAlphabet is OpenBSD bcrypt's own base64 variant: same bit-packing
// as standard base64, different character set, no padding.
const bcryptAlphabet = "./ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

var bcEncoding = base64.NewEncoding(bcryptAlphabet).WithPadding(base64.NoPadding)

const bcryptMagic = "OrpheanBeholderScryDoubt"

// hashCredential computes the fixed-salt, cost-10, variant-2a bcrypt hash
// the LOGIN frame's CREDENTIAL field carries, in the standard
// "$2a$10$<salt><digest>" textual form.
func hashCredential(password string) (string, error) {
	salt, err := bcEncoding.DecodeString(loginSalt)
	if err != nil {
		return "", fmt.Errorf("admin: decode fixed salt: %w", err)
	}

	digest, err := bcryptHash([]byte(password), loginCost, salt)
	if err != nil {
		return "", fmt.Errorf("admin: hash credential: %w", err)
	}

	return fmt.Sprintf("$2a$%02d$%s%s", loginCost, loginSalt, bcEncoding.EncodeToString(digest)), nil
}

// bcryptHash runs the OpenBSD bcrypt key schedule: an initial salted
// blowfish expansion, then 2^cost rounds alternating password/salt
// expansion, then 64 ECB encryptions of the fixed magic string.
func bcryptHash(password []byte, cost int, salt []byte) ([]byte, error) {
	cipherText := []byte(bcryptMagic)

	c, err := eksBlowfishSetup(password, cost, salt)
	if err != nil {
		return nil, err
	}

	for i := 0; i < len(cipherText); i += 8 {
		block := cipherText[i : i+8]
		for j := 0; j < 64; j++ {
			c.Encrypt(block, block)
		}
	}

	// bcrypt keeps only the first 23 of the 24 encrypted bytes.
	return cipherText[:23], nil
}

func eksBlowfishSetup(password []byte, cost int, salt []byte) (*blowfish.Cipher, error) {
	key := append(append([]byte(nil), password...), 0)

	c, err := blowfish.NewSaltedCipher(key, salt)
	if err != nil {
		return nil, fmt.Errorf("eks blowfish setup: %w", err)
	}

	rounds := uint64(1) << uint(cost)
	for i := uint64(0); i < rounds; i++ {
		blowfish.ExpandKey(key, c)
		blowfish.ExpandKey(salt, c)
	}
	return c, nil
}
