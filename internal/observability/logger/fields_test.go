package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"ana@example.com":     "a…@e….com",
		"  Bob@Mail.co.uk ":   "b…@m….co.uk",
		"x@y.io":              "x@y.io",
		"":                    "",
		"abc":                 "***",
		"not-an-email-at-all": "n…l",
	}
	for in, want := range cases {
		assert.Equal(t, want, MaskEmail(in), in)
	}
}

func TestContextRoundTrip(t *testing.T) {
	base := L().With(Component("test"))
	ctx := ToContext(context.Background(), base)
	assert.Same(t, base, From(ctx))
	assert.Same(t, L(), From(context.Background()))
}
