package retry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := map[string]Category{
		"dial tcp 1.2.3.4:443: connect: connection refused": CategoryNetwork,
		"i/o timeout":                               CategoryNetwork,
		"tls: handshake failure":                    CategoryTls,
		"x509: certificate signed by unknown authority": CategoryVerify,
		"remote: 401 Unauthorized":                  CategoryAuth,
		"invalid credentials":                       CategoryAuth,
		"fatal: repository not found":               CategoryProtocol,
		"unexpected http status 422":                 CategoryProtocol,
		"something truly unexpected":                CategoryInternal,
	}
	for msg, want := range cases {
		got := Classify(context.Background(), errors.New(msg))
		require.Equal(t, want, got, "message %q", msg)
	}
}

func TestClassify_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Equal(t, CategoryCancel, Classify(ctx, errors.New("some I/O failure")))
}

// S6-adjacent: partial filter decision table, property 4.
func TestDecidePartialFallback(t *testing.T) {
	depth := uint32(5)

	require.Nil(t, DecidePartialFallback(nil, "", false))
	require.Nil(t, DecidePartialFallback(&depth, "blob:none", true))

	d := DecidePartialFallback(&depth, "blob:none", false)
	require.NotNil(t, d)
	require.True(t, d.Shallow)

	d = DecidePartialFallback(nil, "blob:none", false)
	require.NotNil(t, d)
	require.False(t, d.Shallow)
}
