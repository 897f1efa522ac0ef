// SPDX-License-Identifier: Apache-2.0
// Copyright (C) 2023 Nordix Foundation.

// Package storage builds the key-value store backing infradb
package storage

import (
	"fmt"

	"github.com/philippgille/gokv"
	"github.com/philippgille/gokv/encoding"
	"github.com/philippgille/gokv/gomap"
	"github.com/philippgille/gokv/redis"
)

// Store wraps the gokv client selected by the database flag
type Store struct {
	client gokv.Store
}

// NewStore creates a store of the given type. The address is only used by
// redis.
func NewStore(dbtype string, address string) (*Store, error) {
	switch dbtype {
	case "", "gomap":
		return &Store{client: gomap.NewStore(gomap.Options{Codec: encoding.JSON})}, nil
	case "redis":
		options := redis.DefaultOptions
		options.Address = address
		options.Codec = encoding.JSON
		client, err := redis.NewClient(options)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis at %s: %w", address, err)
		}
		return &Store{client: client}, nil
	default:
		return nil, fmt.Errorf("unknown database type %q", dbtype)
	}
}

// GetClient returns the underlying gokv store
func (s *Store) GetClient() gokv.Store {
	return s.client
}
