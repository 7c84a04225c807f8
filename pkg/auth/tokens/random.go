// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// APIKeyPrefix marks API keys so they can be recognised in logs and scanners.
const APIKeyPrefix = "ag_"

// RandomToken returns an unguessable opaque token of 26 base32 characters.
func RandomToken() string {
	return rand.Text()
}

// NewRecordID returns a time-ordered id for stored records.
func NewRecordID() string {
	return ksuid.New().String()
}

// NewTokenID returns a random id for the JWT "jti" claim.
func NewTokenID() string {
	return uuid.NewString()
}

// DigestAPIKey returns the hex SHA-256 digest under which an API key is stored.
func DigestAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
