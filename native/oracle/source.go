package oracle

import (
	"math/big"

	"cdpcore/crypto"
	nativecommon "cdpcore/native/common"
)

var (
	errNoRound          = nativecommon.NewError(nativecommon.ErrStaleData, "oracle: round not found")
	errNilRoundState    = nativecommon.NewError(nativecommon.ErrValidation, "oracle: round state not configured")
	errNonPositiveRound = nativecommon.NewError(nativecommon.ErrValidation, "oracle: answer must be positive")
)

// RoundState persists submitted rounds.
type RoundState interface {
	LatestRoundID(token crypto.Address) (uint64, error)
	GetRound(token crypto.Address, id uint64) (*Round, error)
	PutRound(token crypto.Address, r Round) error
}

// StoredSource is the built-in aggregator. Operators push answers into it and
// the rounds live in the same state as the engines, so a push made by a
// failed operation is discarded with it.
type StoredSource struct {
	state RoundState
}

func NewStoredSource(state RoundState) *StoredSource {
	return &StoredSource{state: state}
}

// Push records a new round for token and returns its identifier.
func (s *StoredSource) Push(token crypto.Address, answer *big.Int, decimals uint8, updatedAt uint64) (uint64, error) {
	if s == nil || s.state == nil {
		return 0, errNilRoundState
	}
	if answer == nil || answer.Sign() <= 0 {
		return 0, errNonPositiveRound
	}
	latest, err := s.state.LatestRoundID(token)
	if err != nil {
		return 0, err
	}
	id := latest + 1
	err = s.state.PutRound(token, Round{
		ID:        id,
		Answer:    nativecommon.Clone(answer),
		UpdatedAt: updatedAt,
		Decimals:  decimals,
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *StoredSource) LatestRound(token crypto.Address) (Round, error) {
	if s == nil || s.state == nil {
		return Round{}, errNilRoundState
	}
	id, err := s.state.LatestRoundID(token)
	if err != nil {
		return Round{}, err
	}
	if id == 0 {
		return Round{}, errNoRound
	}
	return s.RoundData(token, id)
}

func (s *StoredSource) RoundData(token crypto.Address, id uint64) (Round, error) {
	if s == nil || s.state == nil {
		return Round{}, errNilRoundState
	}
	if id == 0 {
		return Round{}, errNoRound
	}
	r, err := s.state.GetRound(token, id)
	if err != nil {
		return Round{}, err
	}
	if r == nil {
		return Round{}, errNoRound
	}
	out := *r
	out.Answer = nativecommon.Clone(r.Answer)
	return out, nil
}
