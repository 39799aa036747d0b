package signing

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedSigner() *Signer {
	s := New("key", "secret")
	s.Now = func() time.Time { return time.Unix(1700000000, 0) }
	return s
}

func TestSignDeterministicForSortedQuery(t *testing.T) {
	s := fixedSigner()
	q1 := url.Values{"b": {"2"}, "a": {"1"}}
	q2 := url.Values{"a": {"1"}, "b": {"2"}}
	sig1, ts1 := s.Sign("/v1/orders", q1, []byte(`{}`))
	sig2, ts2 := s.Sign("/v1/orders", q2, []byte(`{}`))
	require.Equal(t, sig1, sig2)
	require.Equal(t, ts1, ts2)
}

func TestSignChangesWithInputs(t *testing.T) {
	s := fixedSigner()
	base, _ := s.Sign("/v1/orders", nil, []byte(`{}`))
	otherPath, _ := s.Sign("/v1/inventory", nil, []byte(`{}`))
	otherBody, _ := s.Sign("/v1/orders", nil, []byte(`{"x":1}`))
	require.NotEqual(t, base, otherPath)
	require.NotEqual(t, base, otherBody)

	later := New("key", "secret")
	later.Now = func() time.Time { return time.Unix(1700000060, 0) }
	otherTime, _ := later.Sign("/v1/orders", nil, []byte(`{}`))
	require.NotEqual(t, base, otherTime)
}

func TestVerifyRoundTrip(t *testing.T) {
	s := fixedSigner()
	q := url.Values{"page_token": {"abc"}}
	sig, ts := s.Sign("/v1/orders", q, nil)
	require.True(t, s.Verify("/v1/orders", q, nil, ts, sig))
	require.False(t, s.Verify("/v1/orders", q, nil, ts, "deadbeef"))
	require.False(t, s.Verify("/v1/orders", q, nil, "1700000001", sig))
	require.False(t, s.Verify("/v1/orders", q, nil, ts, "zz-not-hex"))
}
