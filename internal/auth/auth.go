// Package auth attests that a request originates from the account it
// claims to act for.
package auth

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/efreitasn/clob/internal/domain"
)

// Request headers carrying the claimed identity and its proof.
const (
	HeaderAccount   = "X-Account"
	HeaderSignature = "X-Signature"
	HeaderNonce     = "X-Nonce"
)

// maxBody bounds the body read for signature verification.
const maxBody = 1 << 20

// Verifier checks that signature proves control of account over message.
// Failures wrap domain.ErrUnauthorized.
type Verifier interface {
	Verify(account string, message, signature []byte) error
}

// SignatureVerifier accepts secp256k1 signatures over keccak256(message)
// whose recovered address equals the account (a 0x hex address).
type SignatureVerifier struct{}

// Verify implements Verifier.
func (SignatureVerifier) Verify(account string, message, signature []byte) error {
	if !common.IsHexAddress(account) {
		return fmt.Errorf("%w: account must be a hex address", domain.ErrUnauthorized)
	}
	if len(signature) != crypto.SignatureLength {
		return fmt.Errorf("%w: signature must be %d bytes", domain.ErrUnauthorized, crypto.SignatureLength)
	}

	sig := make([]byte, len(signature))
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(crypto.Keccak256(message), sig)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if crypto.PubkeyToAddress(*pub) != common.HexToAddress(account) {
		return fmt.Errorf("%w: signature does not match account", domain.ErrUnauthorized)
	}
	return nil
}

// TrustedVerifier accepts any non-empty account. For deployments where an
// upstream gateway has already authenticated the caller.
type TrustedVerifier struct{}

// Verify implements Verifier.
func (TrustedVerifier) Verify(account string, _, _ []byte) error {
	if account == "" {
		return fmt.Errorf("%w: missing account", domain.ErrUnauthorized)
	}
	return nil
}

// Message is the byte string a client signs for a request.
func Message(method, path string, nonce uint64, body []byte) []byte {
	var b bytes.Buffer
	b.WriteString(method)
	b.WriteByte('\n')
	b.WriteString(path)
	b.WriteByte('\n')
	b.WriteString(strconv.FormatUint(nonce, 10))
	b.WriteByte('\n')
	b.Write(body)
	return b.Bytes()
}

// Sign produces the X-Signature header value for a request. Used by
// clients and tests.
func Sign(key []byte, method, path string, nonce uint64, body []byte) (string, error) {
	priv, err := crypto.ToECDSA(key)
	if err != nil {
		return "", err
	}
	sig, err := crypto.Sign(crypto.Keccak256(Message(method, path, nonce, body)), priv)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

// Canonical returns the checksummed form of a hex address and leaves
// other identifiers untouched, so one key always maps to one account.
func Canonical(account string) string {
	if common.IsHexAddress(account) {
		return common.HexToAddress(account).Hex()
	}
	return account
}

// NonceGuard rejects replayed requests. A nonce is a unix timestamp in
// milliseconds; it must be greater than the last one accepted for the
// account and within window of the current time.
type NonceGuard struct {
	mu     sync.Mutex
	last   map[string]uint64
	window time.Duration
	now    func() time.Time
}

// NewNonceGuard creates a NonceGuard accepting nonces up to window away
// from the current time.
func NewNonceGuard(window time.Duration) *NonceGuard {
	return &NonceGuard{
		last:   make(map[string]uint64),
		window: window,
		now:    time.Now,
	}
}

// Check records nonce for account, failing with domain.ErrUnauthorized
// when it is stale or not newer than the last accepted one.
func (g *NonceGuard) Check(account string, nonce uint64) error {
	now := g.now()
	lo := uint64(now.Add(-g.window).UnixMilli())
	hi := uint64(now.Add(g.window).UnixMilli())
	if nonce < lo || nonce > hi {
		return fmt.Errorf("%w: nonce outside the accepted window", domain.ErrUnauthorized)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if nonce <= g.last[account] {
		return fmt.Errorf("%w: nonce already used", domain.ErrUnauthorized)
	}
	g.last[account] = nonce
	// Entries older than the window can no longer be replayed.
	for a, n := range g.last {
		if n < lo {
			delete(g.last, a)
		}
	}
	return nil
}

type ctxKey struct{}

// WithAccount returns ctx carrying the verified account.
func WithAccount(ctx context.Context, account string) context.Context {
	return context.WithValue(ctx, ctxKey{}, account)
}

// Account returns the verified account stored in ctx.
func Account(ctx context.Context) (string, bool) {
	a, ok := ctx.Value(ctxKey{}).(string)
	return a, ok && a != ""
}

// Middleware verifies the X-Account, X-Nonce and X-Signature headers
// against the request method, path and body, and stores the canonical
// account in the request context. When nonces is set, each nonce is
// accepted once per account. Rejections are written through onError.
func Middleware(v Verifier, nonces *NonceGuard, onError func(http.ResponseWriter, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account := r.Header.Get(HeaderAccount)
			if account == "" {
				onError(w, fmt.Errorf("%w: missing %s header", domain.ErrUnauthorized, HeaderAccount))
				return
			}

			var body []byte
			if r.Body != nil {
				var err error
				body, err = io.ReadAll(io.LimitReader(r.Body, maxBody))
				if err != nil {
					onError(w, fmt.Errorf("%w: unreadable body", domain.ErrUnauthorized))
					return
				}
				r.Body.Close()
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			var sig []byte
			if h := r.Header.Get(HeaderSignature); h != "" {
				decoded, err := hexutil.Decode(h)
				if err != nil {
					onError(w, fmt.Errorf("%w: malformed %s header", domain.ErrUnauthorized, HeaderSignature))
					return
				}
				sig = decoded
			}

			var nonce uint64
			if h := r.Header.Get(HeaderNonce); h != "" {
				n, err := strconv.ParseUint(h, 10, 64)
				if err != nil {
					onError(w, fmt.Errorf("%w: malformed %s header", domain.ErrUnauthorized, HeaderNonce))
					return
				}
				nonce = n
			} else if nonces != nil {
				onError(w, fmt.Errorf("%w: missing %s header", domain.ErrUnauthorized, HeaderNonce))
				return
			}

			if err := v.Verify(account, Message(r.Method, r.URL.Path, nonce, body), sig); err != nil {
				onError(w, err)
				return
			}
			account = Canonical(account)
			if nonces != nil {
				if err := nonces.Check(account, nonce); err != nil {
					onError(w, err)
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), account)))
		})
	}
}
