// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package config

import (
	"fmt"

	"github.com/tomtom215/steambridge/internal/validation"
)

// Validate runs the struct tag rules and then the cross-field checks.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	validators := []func() error{
		c.validateNetwork,
		c.validateStorage,
		c.validateEvents,
		c.validateTimeouts,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateNetwork() error {
	if c.Network.DirectoryURL == "" && len(c.Network.Servers) == 0 {
		return fmt.Errorf("STEAM_DIRECTORY_URL or STEAM_SERVERS must be set")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return fmt.Errorf("STORAGE_PATH is required unless STORAGE_IN_MEMORY=true")
	}
	return nil
}

func (c *Config) validateEvents() error {
	if !c.Events.Enabled {
		return nil
	}
	if c.Events.Embedded && c.Events.StoreDir == "" {
		return fmt.Errorf("EVENTS_STORE_DIR is required when EVENTS_EMBEDDED=true")
	}
	if !c.Events.Embedded && c.Events.NATSURL == "" {
		return fmt.Errorf("NATS_URL is required when EVENTS_ENABLED=true")
	}
	return nil
}

// validateTimeouts rejects combinations where a nested wait can never finish
// before its enclosing one.
func (c *Config) validateTimeouts() error {
	if c.Network.DialTimeout > c.Auth.ResumeTimeout {
		return fmt.Errorf("STEAM_DIAL_TIMEOUT (%v) must not exceed AUTH_RESUME_TIMEOUT (%v)",
			c.Network.DialTimeout, c.Auth.ResumeTimeout)
	}
	return nil
}
