package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
)

// keys: bal/<account>/<asset> → 8-byte big-endian balance,
// xfer/<transfer-id> → empty marker of an applied transfer.
func balanceKey(account, asset string) []byte {
	return []byte("bal/" + account + "/" + asset)
}

func balancePrefix(account string) []byte {
	return []byte("bal/" + account + "/")
}

func transferKey(id string) []byte {
	return []byte("xfer/" + id)
}

// Pebble is a durable ledger on top of a pebble database. Every transfer
// is written as one synced batch, so ApplyAll is atomic across legs and
// crash-safe. Applied transfer ids are recorded; replaying an id is a
// no-op.
type Pebble struct {
	mu sync.Mutex // serializes read-modify-write batches
	db *pebble.DB
}

// OpenPebble opens (or creates) a ledger database at path.
func OpenPebble(path string, opts *pebble.Options) (*Pebble, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble ledger at %s: %w", path, err)
	}
	return &Pebble{db: db}, nil
}

// Close closes the database.
func (p *Pebble) Close() error {
	return p.db.Close()
}

// Apply applies a single leg.
func (p *Pebble) Apply(ctx context.Context, leg Leg) error {
	return p.ApplyAll(ctx, "", []Leg{leg})
}

// ApplyAll applies every leg or none. An empty transferID skips the
// idempotency record.
func (p *Pebble) ApplyAll(ctx context.Context, transferID string, legs []Leg) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if transferID != "" {
		_, closer, err := p.db.Get(transferKey(transferID))
		if err == nil {
			closer.Close()
			return nil
		}
		if !errors.Is(err, pebble.ErrNotFound) {
			return fmt.Errorf("failed to read transfer %s: %w", transferID, err)
		}
	}

	batch := p.db.NewIndexedBatch()
	defer batch.Close()

	for _, leg := range legs {
		key := balanceKey(leg.Account, leg.Asset)
		balance, err := readBalance(batch, key)
		if err != nil {
			return err
		}
		n, err := next(leg, balance)
		if err != nil {
			return err
		}
		if err := batch.Set(key, encodeBalance(n), nil); err != nil {
			return fmt.Errorf("failed to stage balance: %w", err)
		}
	}
	if transferID != "" {
		if err := batch.Set(transferKey(transferID), nil, nil); err != nil {
			return fmt.Errorf("failed to stage transfer marker: %w", err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit transfer: %w", err)
	}
	return nil
}

// Deposit credits amount of asset to account.
func (p *Pebble) Deposit(ctx context.Context, account, asset string, amount int64) error {
	leg, err := depositLeg(account, asset, amount)
	if err != nil {
		return err
	}
	return p.Apply(ctx, leg)
}

// Balance returns the balance of one asset, zero when never touched.
func (p *Pebble) Balance(account, asset string) (int64, error) {
	return readBalance(p.db, balanceKey(account, asset))
}

// Balances returns every asset balance the account holds.
func (p *Pebble) Balances(_ context.Context, account string) (map[string]int64, error) {
	prefix := balancePrefix(account)
	upper := append([]byte(nil), prefix...)
	upper[len(upper)-1]++ // '/' + 1

	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	out := make(map[string]int64)
	for iter.First(); iter.Valid(); iter.Next() {
		asset := strings.TrimPrefix(string(iter.Key()), string(prefix))
		out[asset] = decodeBalance(iter.Value())
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate balances: %w", err)
	}
	return out, nil
}

type reader interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

func readBalance(r reader, key []byte) (int64, error) {
	val, closer, err := r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance %s: %w", key, err)
	}
	defer closer.Close()
	return decodeBalance(val), nil
}

func encodeBalance(v int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return b[:]
}

func decodeBalance(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}
