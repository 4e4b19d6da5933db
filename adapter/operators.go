package adapter

import (
	"github.com/ethereum/go-ethereum/common"
)

// Operators is the adapter's role configuration. Management changes hands
// only through the two-step pending-then-accept handshake; the remaining
// roles are set directly by management.
type Operators struct {
	Management        common.Address `json:"management"`
	PendingManagement common.Address `json:"pendingManagement"`
	FeeRecipient      common.Address `json:"feeRecipient"`
	Keeper            common.Address `json:"keeper"`
	EmergencyAdmin    common.Address `json:"emergencyAdmin"`
}

// isManagement reports whether caller holds the management role.
func (o Operators) isManagement(caller common.Address) bool {
	return caller == o.Management
}

// isKeeper reports whether caller may run keeper-gated operations.
// Management is always allowed.
func (o Operators) isKeeper(caller common.Address) bool {
	return caller == o.Keeper || caller == o.Management
}

// isEmergencyAuthorized reports whether caller may run emergency operations.
// Management is always allowed.
func (o Operators) isEmergencyAuthorized(caller common.Address) bool {
	return (o.EmergencyAdmin != (common.Address{}) && caller == o.EmergencyAdmin) || caller == o.Management
}

// Operators returns a copy of the current role configuration.
func (a *Adapter) Operators() Operators {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ops
}

// SetFeeRecipient updates the fee recipient. Management only; the zero
// address is rejected.
func (a *Adapter) SetFeeRecipient(caller, recipient common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.ops.isManagement(caller) {
		return ErrUnauthorized
	}
	if recipient == (common.Address{}) {
		return ErrZeroAddress
	}
	a.ops.FeeRecipient = recipient
	a.logger.Info("fee recipient updated", "asset", a.asset.Address(), "feeRecipient", recipient)
	return nil
}

// SetKeeper updates the keeper. Management only.
func (a *Adapter) SetKeeper(caller, keeper common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.ops.isManagement(caller) {
		return ErrUnauthorized
	}
	a.ops.Keeper = keeper
	a.logger.Info("keeper updated", "asset", a.asset.Address(), "keeper", keeper)
	return nil
}

// SetEmergencyAdmin updates the emergency admin. Management only.
func (a *Adapter) SetEmergencyAdmin(caller, admin common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.ops.isManagement(caller) {
		return ErrUnauthorized
	}
	a.ops.EmergencyAdmin = admin
	a.logger.Info("emergency admin updated", "asset", a.asset.Address(), "emergencyAdmin", admin)
	return nil
}

// TransferManagement starts the ownership handshake: the nominee must call
// AcceptManagement before taking over. Management only; the zero address is
// rejected.
func (a *Adapter) TransferManagement(caller, pending common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.ops.isManagement(caller) {
		return ErrUnauthorized
	}
	if pending == (common.Address{}) {
		return ErrZeroAddress
	}
	a.ops.PendingManagement = pending
	a.logger.Info("management transfer started", "asset", a.asset.Address(), "pending", pending)
	return nil
}

// AcceptManagement completes the handshake. Only the pending management may
// call it.
func (a *Adapter) AcceptManagement(caller common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ops.PendingManagement == (common.Address{}) || caller != a.ops.PendingManagement {
		return ErrNotPendingManager
	}
	a.ops.Management = caller
	a.ops.PendingManagement = common.Address{}
	a.logger.Info("management transferred", "asset", a.asset.Address(), "management", caller)
	return nil
}
