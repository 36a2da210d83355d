package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordRoundTrip(t *testing.T) {
	hashed, err := HashPassword("rahasia123")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hashed, "rahasia123"))
	assert.False(t, CheckPassword(hashed, "wrong"))
}

func TestCheckPasswordAcrossCosts(t *testing.T) {
	old := PasswordCost
	t.Cleanup(func() { PasswordCost = old })

	PasswordCost = bcrypt.MinCost
	cheap, err := HashPassword("rahasia123")
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(cheap))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)

	PasswordCost = bcrypt.MinCost + 1
	assert.True(t, CheckPassword(cheap, "rahasia123"))

	_, err = HashPassword(strings.Repeat("x", 73))
	assert.Error(t, err)
}

func TestGenerateAPIKey(t *testing.T) {
	key, prefix, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "wid_"+prefix+"_"))
	assert.Len(t, prefix, 8)
	assert.Len(t, key, len("wid_")+8+1+32)
}

func TestRandomStringUsesAlphabet(t *testing.T) {
	s, err := randomString("ab", 64)
	require.NoError(t, err)
	assert.Len(t, s, 64)
	assert.Empty(t, strings.Trim(s, "ab"))

	s, err = randomString(secretAlphabet, 0)
	require.NoError(t, err)
	assert.Empty(t, s)
}

func TestValidHMACSHA256(t *testing.T) {
	body := []byte(`{"object":"whatsapp_business_account"}`)
	sig := "sha256=" + HMACSHA256Hex("app-secret", body)

	assert.True(t, ValidHMACSHA256("app-secret", body, sig))
	assert.False(t, ValidHMACSHA256("other", body, sig))
	assert.False(t, ValidHMACSHA256("app-secret", body, "sha1=abc"))
	assert.False(t, ValidHMACSHA256("app-secret", body, "sha256=zz"))
	assert.True(t, ValidHMACSHA256("app-secret", body, "sha256="+strings.ToUpper(strings.TrimPrefix(sig, "sha256="))))
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"+62 812-3456-7890": "6281234567890",
		"0812 3456 7890":    "6281234567890",
		"12345":             "",
		"":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePhone(in, "62"), in)
	}
}
