package auth

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efreitasn/clob/internal/domain"
)

func newKey(t *testing.T) ([]byte, string) {
	t.Helper()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	return crypto.FromECDSA(priv), crypto.PubkeyToAddress(priv.PublicKey).Hex()
}

func TestSignatureVerifier_Valid(t *testing.T) {
	key, addr := newKey(t)
	body := []byte(`{"side":"buy"}`)
	sigHex, err := Sign(key, "POST", "/markets/1/orders", 7, body)
	require.NoError(t, err)
	sig, err := hexutil.Decode(sigHex)
	require.NoError(t, err)

	v := SignatureVerifier{}
	assert.NoError(t, v.Verify(addr, Message("POST", "/markets/1/orders", 7, body), sig))
	assert.NoError(t, v.Verify(strings.ToLower(addr), Message("POST", "/markets/1/orders", 7, body), sig))
}

func TestSignatureVerifier_LegacyRecoveryID(t *testing.T) {
	key, addr := newKey(t)
	sigHex, err := Sign(key, "DELETE", "/markets/1/orders/3", 7, nil)
	require.NoError(t, err)
	sig, _ := hexutil.Decode(sigHex)
	sig[crypto.RecoveryIDOffset] += 27

	assert.NoError(t, SignatureVerifier{}.Verify(addr, Message("DELETE", "/markets/1/orders/3", 7, nil), sig))
}

func TestSignatureVerifier_Rejects(t *testing.T) {
	key, addr := newKey(t)
	_, otherAddr := newKey(t)
	msg := Message("POST", "/markets/1/orders", 7, []byte("{}"))
	sigHex, _ := Sign(key, "POST", "/markets/1/orders", 7, []byte("{}"))
	sig, _ := hexutil.Decode(sigHex)

	tests := []struct {
		name    string
		account string
		msg     []byte
		sig     []byte
	}{
		{"other account", otherAddr, msg, sig},
		{"tampered message", addr, Message("POST", "/markets/2/orders", 7, []byte("{}")), sig},
		{"tampered nonce", addr, Message("POST", "/markets/1/orders", 8, []byte("{}")), sig},
		{"not an address", "alice", msg, sig},
		{"short signature", addr, msg, sig[:64]},
		{"missing signature", addr, msg, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SignatureVerifier{}.Verify(tt.account, tt.msg, tt.sig)
			assert.ErrorIs(t, err, domain.ErrUnauthorized)
		})
	}
}

func TestTrustedVerifier(t *testing.T) {
	assert.NoError(t, TrustedVerifier{}.Verify("alice", nil, nil))
	assert.ErrorIs(t, TrustedVerifier{}.Verify("", nil, nil), domain.ErrUnauthorized)
}

func TestMiddleware(t *testing.T) {
	key, addr := newKey(t)
	var gotAccount, gotBody string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccount, _ = Account(r.Context())
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusNoContent)
	})
	var rejected error
	onError := func(w http.ResponseWriter, err error) {
		rejected = err
		w.WriteHeader(http.StatusUnauthorized)
	}
	h := Middleware(SignatureVerifier{}, NewNonceGuard(time.Minute), onError)(next)

	body := `{"price":100}`
	nonce := uint64(time.Now().UnixMilli())
	sig, err := Sign(key, "POST", "/markets/1/orders", nonce, []byte(body))
	require.NoError(t, err)

	send := func(account, nonce, sig, body string) int {
		req := httptest.NewRequest("POST", "/markets/1/orders", strings.NewReader(body))
		if account != "" {
			req.Header.Set(HeaderAccount, account)
		}
		if nonce != "" {
			req.Header.Set(HeaderNonce, nonce)
		}
		req.Header.Set(HeaderSignature, sig)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	n := strconv.FormatUint(nonce, 10)

	t.Run("valid", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, send(addr, n, sig, body))
		assert.Equal(t, addr, gotAccount)
		assert.Equal(t, body, gotBody, "body must be readable downstream")
	})

	t.Run("replayed", func(t *testing.T) {
		rejected = nil
		assert.Equal(t, http.StatusUnauthorized, send(addr, n, sig, body))
		assert.ErrorIs(t, rejected, domain.ErrUnauthorized)
	})

	t.Run("missing account", func(t *testing.T) {
		rejected = nil
		assert.Equal(t, http.StatusUnauthorized, send("", n, sig, body))
		assert.True(t, errors.Is(rejected, domain.ErrUnauthorized))
	})

	t.Run("missing nonce", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, send(addr, "", sig, body))
	})

	t.Run("malformed nonce", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, send(addr, "soon", sig, body))
	})

	t.Run("malformed signature", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, send(addr, strconv.FormatUint(nonce+1, 10), "zz", body))
	})

	t.Run("body changed after signing", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, send(addr, strconv.FormatUint(nonce+1, 10), sig, `{"price":1}`))
	})

	t.Run("lowercase address maps to the checksummed account", func(t *testing.T) {
		fresh := nonce + 2
		sig, err := Sign(key, "POST", "/markets/1/orders", fresh, []byte(body))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, send(strings.ToLower(addr), strconv.FormatUint(fresh, 10), sig, body))
		assert.Equal(t, addr, gotAccount)
	})
}

func TestNonceGuard(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g := NewNonceGuard(time.Minute)
	g.now = func() time.Time { return now }
	ms := func(d time.Duration) uint64 { return uint64(now.Add(d).UnixMilli()) }

	require.NoError(t, g.Check("alice", ms(0)))
	assert.ErrorIs(t, g.Check("alice", ms(0)), domain.ErrUnauthorized, "same nonce twice")
	assert.ErrorIs(t, g.Check("alice", ms(-time.Second)), domain.ErrUnauthorized, "older nonce")
	assert.NoError(t, g.Check("alice", ms(time.Second)))
	assert.NoError(t, g.Check("bob", ms(0)), "nonces are tracked per account")

	assert.ErrorIs(t, g.Check("carol", ms(-2*time.Minute)), domain.ErrUnauthorized, "stale")
	assert.ErrorIs(t, g.Check("carol", ms(2*time.Minute)), domain.ErrUnauthorized, "too far ahead")

	// Once the window has passed, old entries are dropped but their
	// nonces stay unusable because they are stale.
	now = now.Add(5 * time.Minute)
	assert.ErrorIs(t, g.Check("alice", ms(-5*time.Minute+time.Second)), domain.ErrUnauthorized)
	assert.NoError(t, g.Check("dave", ms(0)))
	g.mu.Lock()
	_, kept := g.last["alice"]
	g.mu.Unlock()
	assert.False(t, kept, "expired entries are pruned")
}

func TestCanonical(t *testing.T) {
	_, addr := newKey(t)
	assert.Equal(t, addr, Canonical(strings.ToLower(addr)))
	assert.Equal(t, addr, Canonical(addr))
	assert.Equal(t, "alice", Canonical("alice"))
}

func TestAccount_Empty(t *testing.T) {
	_, ok := Account(httptest.NewRequest("GET", "/", nil).Context())
	assert.False(t, ok)
}
