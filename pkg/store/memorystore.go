// Package store implements a simple key-value store with append-once Set
// semantics, used for collecting job results and tracking artifacts.
package store

import (
	"errors"
	"sync"
)

var (
	ErrKeyExists      = errors.New("store: key already exists")
	ErrKeyDoesntExist = errors.New("store: key does not exist")
)

type Store interface {
	// Set writes a value for a new key. Writing an existing key returns
	// ErrKeyExists, so each key has exactly one writer.
	Set(key string, value interface{}) error
	Get(key string) (interface{}, error)
	Delete(key string) error
	Update(key string, newValue interface{}) error
}

type MemStore struct {
	lock  sync.RWMutex
	store map[string]interface{}
}

func NewMemStore() *MemStore {
	return &MemStore{
		store: make(map[string]interface{}),
	}
}

func (m *MemStore) Set(key string, value interface{}) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.store[key]; ok {
		return ErrKeyExists
	}
	m.store[key] = value
	return nil
}

func (m *MemStore) Get(key string) (interface{}, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	v, ok := m.store[key]
	if !ok {
		return nil, ErrKeyDoesntExist
	}
	return v, nil
}

func (m *MemStore) Delete(key string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.store[key]; !ok {
		return ErrKeyDoesntExist
	}
	delete(m.store, key)
	return nil
}

func (m *MemStore) Update(key string, value interface{}) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.store[key]; !ok {
		return ErrKeyDoesntExist
	}
	m.store[key] = value
	return nil
}
