package password

import (
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/argon2"
)

func TestHashAndVerify(t *testing.T) {
	encoded, err := Hash("correct horse")
	require.NoError(t, err)
	assert.True(t, Verify("correct horse", encoded))
	assert.False(t, Verify("wrong horse", encoded))

	again, err := Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, encoded, again, "salt must differ per hash")
}

func TestVerifyAcceptsOtherCostSettings(t *testing.T) {
	salt := []byte("0123456789abcdef")
	key := argon2.IDKey([]byte("pw"), salt, 2, 8*1024, 1, 16)
	encoded := fmt.Sprintf("$argon2id$v=19$m=%d,t=2,p=1$%s$%s", 8*1024,
		base64.RawStdEncoding.EncodeToString(salt), base64.RawStdEncoding.EncodeToString(key))

	assert.True(t, Verify("pw", encoded))
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	for _, encoded := range []string{
		"",
		"plain",
		"$argon2id$v=19$m=1$a$b",
		"$bcrypt$v=19$m=1,t=1,p=1$YQ$Yg",
		"$argon2id$v=18$m=1,t=1,p=1$YQ$Yg",
		"$argon2id$v=19$m=1,t=1,p=1$$Yg",
	} {
		assert.False(t, Verify("x", encoded), encoded)
		_, _, _, err := decode(encoded)
		assert.ErrorIs(t, err, ErrMalformedHash, encoded)
	}
}
