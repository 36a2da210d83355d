package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const secretAlphabet = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789" // omit easily confused chars

// GenerateAPIKey returns a key of the form wid_<prefix>_<secret> and its prefix.
func GenerateAPIKey() (key, prefix string, err error) {
	prefix, err = randomString(secretAlphabet, 8)
	if err != nil {
		return "", "", err
	}
	secret, err := randomString(secretAlphabet, 32)
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf("wid_%s_%s", prefix, secret), prefix, nil
}

func randomString(alphabet string, n int) (string, error) {
	b := make([]byte, n)
	for i := 0; i < n; i++ {
		idxBig, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", err
		}
		b[i] = alphabet[idxBig.Int64()]
	}
	return string(b), nil
}
