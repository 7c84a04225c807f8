// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/authguard/pkg/auth/storage"
	"github.com/stacklok/authguard/pkg/auth/tokens"
	"github.com/stacklok/authguard/pkg/logger"
)

// Seed is the bootstrap document: principals created at startup.
type Seed struct {
	Accounts     []SeedAccount     `yaml:"accounts"`
	Applications []SeedApplication `yaml:"applications"`
	Clients      []SeedClient      `yaml:"clients"`
}

// SeedAccount is an account with a single username/password credential.
// The password is hashed when the seed is applied.
type SeedAccount struct {
	ID          string   `yaml:"id"`
	Domain      string   `yaml:"domain"`
	Email       string   `yaml:"email"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	Roles       []string `yaml:"roles"`
	Permissions []string `yaml:"permissions"`
	Inactive    bool     `yaml:"inactive"`
}

// SeedApplication is an application principal.
type SeedApplication struct {
	ID              string   `yaml:"id"`
	Domain          string   `yaml:"domain"`
	Name            string   `yaml:"name"`
	ParentAccountID string   `yaml:"parentAccountId"`
	Roles           []string `yaml:"roles"`
	Permissions     []string `yaml:"permissions"`
	Inactive        bool     `yaml:"inactive"`
}

// SeedClient is an OAuth client.
type SeedClient struct {
	ID         int64              `yaml:"id"`
	Name       string             `yaml:"name"`
	ClientType storage.ClientType `yaml:"clientType"`
	Domain     string             `yaml:"domain"`
	BaseURL    string             `yaml:"baseUrl"`
	AccountID  string             `yaml:"accountId"`
}

// Hasher hashes plaintext passwords.
type Hasher interface {
	Hash(plain string) (string, error)
}

// LoadSeed reads a seed document. Unknown fields are rejected.
func LoadSeed(path string) (*Seed, error) {
	// #nosec G304: the seed path comes from operator configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	seed := &Seed{}
	if err := dec.Decode(seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return seed, nil
}

// Apply creates every principal in the seed. Records that already exist
// are left untouched, so applying the same seed twice is harmless.
// defaultDomain fills entries without a domain.
func (s *Seed) Apply(ctx context.Context, store storage.PrincipalStorage, hasher Hasher, defaultDomain string) error {
	domainOr := func(d string) string {
		if d == "" {
			return defaultDomain
		}
		return d
	}

	for _, a := range s.Accounts {
		if a.ID == "" || a.Username == "" {
			return fmt.Errorf("seed account %q needs an id and a username", a.ID)
		}
		domain := domainOr(a.Domain)
		err := store.CreateAccount(ctx, &storage.Account{
			ID: a.ID, Domain: domain, Email: a.Email,
			Roles: a.Roles, Permissions: a.Permissions, Active: !a.Inactive,
		})
		if errors.Is(err, storage.ErrAlreadyExists) {
			logger.Debugw("seed account already exists, skipping its credential", "id", a.ID)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to create account %s: %w", a.ID, err)
		}

		hash, err := hasher.Hash(a.Password)
		if err != nil {
			return fmt.Errorf("failed to hash password for %s: %w", a.Username, err)
		}
		err = store.CreateCredential(ctx, &storage.Credential{
			ID: tokens.NewRecordID(), AccountID: a.ID, Domain: domain,
			Username: a.Username, PasswordHash: hash,
		})
		if err := skipExisting(err, "credential", a.Username); err != nil {
			return err
		}
	}

	for _, app := range s.Applications {
		err := store.CreateApplication(ctx, &storage.Application{
			ID: app.ID, Domain: domainOr(app.Domain), Name: app.Name, ParentAccountID: app.ParentAccountID,
			Roles: app.Roles, Permissions: app.Permissions, Active: !app.Inactive,
		})
		if err := skipExisting(err, "application", app.ID); err != nil {
			return err
		}
	}

	for _, c := range s.Clients {
		clientType := c.ClientType
		if clientType == "" {
			clientType = storage.ClientTypeStandard
		}
		if clientType != storage.ClientTypeStandard && clientType != storage.ClientTypeSSO {
			return fmt.Errorf("seed client %d has unknown type %q", c.ID, c.ClientType)
		}
		err := store.CreateClient(ctx, &storage.Client{
			ID: c.ID, Name: c.Name, ClientType: clientType, Domain: domainOr(c.Domain),
			BaseURL: c.BaseURL, AccountID: c.AccountID,
		})
		if err := skipExisting(err, "client", fmt.Sprint(c.ID)); err != nil {
			return err
		}
	}

	logger.Infow("seed applied",
		"accounts", len(s.Accounts), "applications", len(s.Applications), "clients", len(s.Clients))
	return nil
}

func skipExisting(err error, kind, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrAlreadyExists):
		logger.Debugw("seed record already exists", "kind", kind, "id", id)
		return nil
	default:
		return fmt.Errorf("failed to create %s %s: %w", kind, id, err)
	}
}
