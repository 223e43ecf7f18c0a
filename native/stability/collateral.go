package stability

import (
	"math/big"

	"cdpcore/core/events"
	"cdpcore/crypto"
)

// EnableCollateral assigns collateral a slot, reusing the oldest sunset slot
// once its window has expired. Enabling an enrolled collateral is a no-op.
func (e *Engine) EnableCollateral(collateral crypto.Address) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	p, err := e.loadPool()
	if err != nil {
		return 0, err
	}
	for i, slot := range p.Slots {
		if !slot.Collateral.Equal(collateral) {
			continue
		}
		if slot.Sunset {
			return 0, ErrCollateralSunset
		}
		return uint64(i), nil
	}
	if len(p.SunsetQueue) > 0 && p.SunsetQueue[0].Expiry < e.now {
		entry := p.SunsetQueue[0]
		p.SunsetQueue = p.SunsetQueue[1:]
		if err := e.overwriteCollateral(p, collateral, entry.Index); err != nil {
			return 0, err
		}
		return entry.Index, e.storePool(p)
	}
	if len(p.Slots) >= MaxCollaterals {
		return 0, ErrTooManyCollaterals
	}
	p.Slots = append(p.Slots, Slot{Collateral: collateral})
	p.LastCollateralErrors = append(p.LastCollateralErrors, big.NewInt(0))
	idx := uint64(len(p.Slots) - 1)
	if err := e.storePool(p); err != nil {
		return 0, err
	}
	e.emitter.Emit(events.StabilityCollateral{Kind: events.TypeStabilityCollateralEnabled, Collateral: collateral, Index: idx})
	return idx, nil
}

// overwriteCollateral hands slot idx to collateral after clearing the slot's
// sums at every (epoch, scale) up to the current ones.
func (e *Engine) overwriteCollateral(p *Pool, collateral crypto.Address, idx uint64) error {
	if idx >= uint64(len(p.Slots)) {
		return errSlotOutOfRange
	}
	zero := big.NewInt(0)
	for epoch := uint64(0); epoch <= p.Epoch; epoch++ {
		for scale := uint64(0); scale <= p.Scale; scale++ {
			if err := e.state.PutEpochScaleSum(epoch, scale, idx, zero); err != nil {
				return err
			}
		}
	}
	p.Slots[idx] = Slot{Collateral: collateral, Generation: p.Slots[idx].Generation + 1}
	p.LastCollateralErrors[idx] = big.NewInt(0)
	e.emitter.Emit(events.StabilityCollateral{Kind: events.TypeStabilityCollateralOverwritten, Collateral: collateral, Index: idx})
	return nil
}

// StartCollateralSunset stops collateral from receiving offsets and queues
// its slot for reuse after SunsetDuration.
func (e *Engine) StartCollateralSunset(caller, collateral crypto.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.core.RequireOwner(caller); err != nil {
		return err
	}
	p, err := e.loadPool()
	if err != nil {
		return err
	}
	idx, ok := p.indexOf(collateral)
	if !ok {
		return ErrCollateralSunset
	}
	p.Slots[idx].Sunset = true
	expiry := e.now + SunsetDuration
	p.SunsetQueue = append(p.SunsetQueue, SunsetEntry{Index: uint64(idx), Expiry: expiry})
	if err := e.storePool(p); err != nil {
		return err
	}
	e.emitter.Emit(events.StabilityCollateral{Kind: events.TypeStabilityCollateralSunset, Collateral: collateral, Index: uint64(idx), Expiry: expiry})
	return nil
}
