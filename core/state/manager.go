package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"cdpcore/crypto"
	"cdpcore/storage"
)

var (
	errNegativeAmount = errors.New("state: negative amount not allowed")
	errAmountOverflow = errors.New("state: amount exceeds 256 bits")
)

type journalEntry struct {
	value   []byte
	deleted bool
}

// Manager persists every engine record as RLP under Keccak-hashed keys.
// Writes are staged in a journal until Commit flushes them as one batch;
// Rollback discards them.
type Manager struct {
	db      storage.Database
	journal map[string]*journalEntry
}

// NewManager creates a state manager backed by db.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, journal: make(map[string]*journalEntry)}
}

// Dirty reports the number of staged writes.
func (m *Manager) Dirty() int {
	return len(m.journal)
}

// Commit writes the journal atomically and clears it.
func (m *Manager) Commit() error {
	if len(m.journal) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m.journal))
	for k := range m.journal {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := storage.NewBatch()
	for _, k := range keys {
		entry := m.journal[k]
		if entry.deleted {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), entry.value)
	}
	if err := m.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.journal = make(map[string]*journalEntry)
	return nil
}

// Rollback drops every staged write.
func (m *Manager) Rollback() {
	m.journal = make(map[string]*journalEntry)
}

func (m *Manager) read(key []byte) ([]byte, error) {
	if entry, ok := m.journal[string(key)]; ok {
		if entry.deleted {
			return nil, nil
		}
		return entry.value, nil
	}
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

// KVPut stores the RLP encoding of value under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.journal[string(key)] = &journalEntry{value: encoded}
	return nil
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether the key exists.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	data, err := m.read(key)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes key.
func (m *Manager) KVDelete(key []byte) error {
	m.journal[string(key)] = &journalEntry{deleted: true}
	return nil
}

func kvKey(prefix string, parts ...[]byte) []byte {
	buf := []byte(prefix)
	for _, part := range parts {
		buf = append(buf, '/')
		buf = append(buf, part...)
	}
	return ethcrypto.Keccak256(buf)
}

func uintBytes(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

func toU256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, errNegativeAmount
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, errAmountOverflow
	}
	return out, nil
}

func fromU256(v *uint256.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v.ToBig()
}

// amountCodec converts a record's amounts, keeping the first error.
type amountCodec struct {
	err error
}

func (c *amountCodec) enc(v *big.Int) *uint256.Int {
	if c.err != nil {
		return nil
	}
	out, err := toU256(v)
	if err != nil {
		c.err = err
		return nil
	}
	return out
}

func (c *amountCodec) encList(values []*big.Int) []*uint256.Int {
	out := make([]*uint256.Int, len(values))
	for i, v := range values {
		out[i] = c.enc(v)
	}
	return out
}

func decList(values []*uint256.Int) []*big.Int {
	out := make([]*big.Int, len(values))
	for i, v := range values {
		out[i] = fromU256(v)
	}
	return out
}

func addrString(a crypto.Address) string {
	if a.IsZero() {
		return ""
	}
	return a.String()
}

// addrCodec parses persisted bech32 strings, keeping the first error.
type addrCodec struct {
	err error
}

func (c *addrCodec) dec(s string) crypto.Address {
	if c.err != nil || s == "" {
		return crypto.Address{}
	}
	out, err := crypto.DecodeAddress(s)
	if err != nil {
		c.err = err
		return crypto.Address{}
	}
	return out
}
