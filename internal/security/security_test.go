package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckInitialContext_RejectsOversize(t *testing.T) {
	assert.NoError(t, CheckInitialContext(make([]byte, MaxInitialContextBytes)))
	err := CheckInitialContext(make([]byte, MaxInitialContextBytes+1))
	assert.Error(t, err)
	var limitErr *LimitExceededError
	assert.ErrorAs(t, err, &limitErr)
}

func TestCheckUserResponse_RejectsOversize(t *testing.T) {
	assert.NoError(t, CheckUserResponse(make([]byte, MaxUserResponseBytes)))
	assert.Error(t, CheckUserResponse(make([]byte, MaxUserResponseBytes+1)))
}

func TestCheckSeedFile_RejectsOversize(t *testing.T) {
	assert.NoError(t, CheckSeedFile(make([]byte, MaxSeedFileBytes)))
	assert.Error(t, CheckSeedFile(make([]byte, MaxSeedFileBytes+1)))
}

func TestTruncateLLMResponse_TruncatesWithWarning(t *testing.T) {
	small := "hello"
	out, truncated := TruncateLLMResponse(small)
	assert.False(t, truncated)
	assert.Equal(t, small, out)

	big := strings.Repeat("a", MaxLLMResponseBytes+100)
	out, truncated = TruncateLLMResponse(big)
	assert.True(t, truncated)
	assert.Less(t, len(out), len(big))
	assert.Contains(t, out, "truncated")
}

func TestIsSensitiveField_MatchesKnownNamesCaseInsensitively(t *testing.T) {
	assert.True(t, IsSensitiveField("api_key"))
	assert.True(t, IsSensitiveField("API_KEY"))
	assert.True(t, IsSensitiveField("Password"))
	assert.True(t, IsSensitiveField("token"))
	assert.True(t, IsSensitiveField("bearer"))
	assert.False(t, IsSensitiveField("username"))
}

func TestMaskValue_RetainsLastFourChars(t *testing.T) {
	assert.Equal(t, "*********3456", MaskValue("1234567893456"))
	assert.Equal(t, "****", MaskValue("abcd"))
	assert.Equal(t, "***", MaskValue("abc"))
}

func TestMaskField_OnlyMasksSensitiveFields(t *testing.T) {
	assert.Equal(t, strings.Repeat("*", len("sk-abcdef9012")-4)+"9012", MaskField("api_key", "sk-abcdef9012"))
	assert.Equal(t, "alice", MaskField("username", "alice"))
}

func TestMaskSensitiveValues_ScrubsEmbeddedSecrets(t *testing.T) {
	text := "calling provider with sk-abcdefghijklmnop and Bearer qrstuvwxyz123"
	masked := MaskSensitiveValues(text)
	assert.NotContains(t, masked, "sk-abcdefghijklmnop")
	assert.NotContains(t, masked, "Bearer qrstuvwxyz123")
	assert.Contains(t, masked, "calling provider with")
}

func TestMaskSensitiveValues_LeavesOrdinaryTextAlone(t *testing.T) {
	text := "routed fingerprint=abc123 tier=frugal"
	assert.Equal(t, text, MaskSensitiveValues(text))
}
