package state

import (
	"github.com/holiman/uint256"

	"cdpcore/crypto"
	"cdpcore/native/oracle"
)

const (
	prefixOracleLatest = "oracle/latest"
	prefixOracleRound  = "oracle/round"
)

type latestRoundRecord struct {
	ID uint64
}

type roundRecord struct {
	Answer    *uint256.Int
	UpdatedAt uint64
	Decimals  uint8
}

// LatestRoundID returns zero when no round was ever stored for token.
func (m *Manager) LatestRoundID(token crypto.Address) (uint64, error) {
	var rec latestRoundRecord
	if _, err := m.KVGet(kvKey(prefixOracleLatest, token.Bytes()), &rec); err != nil {
		return 0, err
	}
	return rec.ID, nil
}

// GetRound returns nil when round id is unknown.
func (m *Manager) GetRound(token crypto.Address, id uint64) (*oracle.Round, error) {
	var rec roundRecord
	ok, err := m.KVGet(kvKey(prefixOracleRound, token.Bytes(), uintBytes(id)), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &oracle.Round{
		ID:        id,
		Answer:    fromU256(rec.Answer),
		UpdatedAt: rec.UpdatedAt,
		Decimals:  rec.Decimals,
	}, nil
}

// PutRound stores r and advances the latest pointer when r is newer.
func (m *Manager) PutRound(token crypto.Address, r oracle.Round) error {
	var c amountCodec
	rec := &roundRecord{
		Answer:    c.enc(r.Answer),
		UpdatedAt: r.UpdatedAt,
		Decimals:  r.Decimals,
	}
	if c.err != nil {
		return c.err
	}
	if err := m.KVPut(kvKey(prefixOracleRound, token.Bytes(), uintBytes(r.ID)), rec); err != nil {
		return err
	}
	latest, err := m.LatestRoundID(token)
	if err != nil {
		return err
	}
	if r.ID <= latest {
		return nil
	}
	return m.KVPut(kvKey(prefixOracleLatest, token.Bytes()), &latestRoundRecord{ID: r.ID})
}
