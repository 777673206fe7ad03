package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedup(t *testing.T) {
	in := []string{"http://a/", "http://a", " http://b ", "", "http://b/"}
	assert.Equal(t, []string{"http://a", "http://b"}, Dedup(in))
}

func TestSplitCSV(t *testing.T) {
	assert.Nil(t, SplitCSV(""))
	assert.Equal(t, []string{"a", "b"}, SplitCSV(" a, ,b,"))
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("PX_TEST_INT", "12")
	t.Setenv("PX_TEST_BAD_INT", "abc")
	t.Setenv("PX_TEST_BOOL", "Yes")

	assert.Equal(t, 12, EnvInt("PX_TEST_INT", 1))
	assert.Equal(t, 1, EnvInt("PX_TEST_BAD_INT", 1))
	assert.Equal(t, int64(12), EnvInt64("PX_TEST_INT", 0))
	assert.True(t, EnvBool("PX_TEST_BOOL", false))
	assert.True(t, EnvBool("PX_TEST_MISSING", true))
	assert.Equal(t, "fallback", Env("PX_TEST_MISSING", "fallback"))
}
