// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/bassosimone/sockpipe"
	"github.com/joho/godotenv"
)

const (
	envPortMin          = "SOCKPIPE_PORT_MIN"
	envPortMax          = "SOCKPIPE_PORT_MAX"
	envBindAttempts     = "SOCKPIPE_BIND_ATTEMPTS"
	envHandshakeTimeout = "SOCKPIPE_HANDSHAKE_TIMEOUT"
)

var envKeys = []string{envPortMin, envPortMax, envBindAttempts, envHandshakeTimeout}

// readEnv returns the SOCKPIPE_* settings. Values from the process
// environment override the ones from path, which may be empty.
func readEnv(path string) (map[string]string, error) {
	env := make(map[string]string)
	if path != "" {
		data, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("(env-file) %w", err)
		}
		for _, key := range envKeys {
			if value, found := data[key]; found {
				env[key] = value
			}
		}
	}
	for _, key := range envKeys {
		if value, found := os.LookupEnv(key); found {
			env[key] = value
		}
	}
	return env, nil
}

// applyEnv overrides cfg fields with the given settings.
func applyEnv(cfg *sockpipe.Config, env map[string]string) error {
	if value, found := env[envPortMin]; found {
		port, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return fmt.Errorf("%s: %w", envPortMin, err)
		}
		cfg.PortMin = uint16(port)
	}
	if value, found := env[envPortMax]; found {
		port, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return fmt.Errorf("%s: %w", envPortMax, err)
		}
		cfg.PortMax = uint16(port)
	}
	if cfg.PortMax <= cfg.PortMin {
		return fmt.Errorf("empty port range [%d, %d)", cfg.PortMin, cfg.PortMax)
	}
	if value, found := env[envBindAttempts]; found {
		attempts, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s: %w", envBindAttempts, err)
		}
		if attempts <= 0 {
			return fmt.Errorf("%s: must be positive", envBindAttempts)
		}
		cfg.MaxBindAttempts = attempts
	}
	if value, found := env[envHandshakeTimeout]; found {
		timeout, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: %w", envHandshakeTimeout, err)
		}
		cfg.HandshakeTimeout = timeout
	}
	return nil
}
