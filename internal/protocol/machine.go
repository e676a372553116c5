// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package protocol

import (
	"github.com/google/uuid"

	"github.com/tomtom215/steambridge/internal/storage"
)

// MachineID returns the installation's machine ID, generating and storing a
// new one on first use. The server ties refresh tokens to it, so it must stay
// stable across restarts.
func MachineID(state *storage.State) string {
	if raw, ok := state.Get(storage.KeyMachineID); ok && len(raw) > 0 {
		return string(raw)
	}
	id := uuid.New().String()
	state.Set(storage.KeyMachineID, []byte(id))
	return id
}
