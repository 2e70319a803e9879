package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukerupert/duesbot/internal/model"
)

// LedgerKey is the KV key holding the ledger document.
const LedgerKey = "ledger"

// PersistenceError reports that the ledger could not be read or written.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// LedgerStore loads and saves the ledger as a single JSON document.
type LedgerStore struct {
	kv            KV
	defaultTarget int64
}

func NewLedgerStore(kv KV, defaultTarget int64) *LedgerStore {
	return &LedgerStore{kv: kv, defaultTarget: defaultTarget}
}

// Load returns the stored ledger, or a default one if nothing was ever saved.
// A stored document that cannot be decoded or fails validation is an error.
func (s *LedgerStore) Load(ctx context.Context) (model.Ledger, error) {
	data, err := s.kv.Read(ctx, LedgerKey)
	if errors.Is(err, ErrNotFound) {
		return model.DefaultLedger(s.defaultTarget), nil
	}
	if err != nil {
		return model.Ledger{}, &PersistenceError{Op: "load", Key: LedgerKey, Err: err}
	}

	l, err := DecodeLedger(data)
	if err != nil {
		return model.Ledger{}, &PersistenceError{Op: "load", Key: LedgerKey, Err: err}
	}
	return l, nil
}

// Save validates and overwrites the stored ledger.
func (s *LedgerStore) Save(ctx context.Context, l model.Ledger) error {
	data, err := EncodeLedger(l)
	if err != nil {
		return &PersistenceError{Op: "save", Key: LedgerKey, Err: err}
	}
	if err := s.kv.Write(ctx, LedgerKey, data); err != nil {
		return &PersistenceError{Op: "save", Key: LedgerKey, Err: err}
	}
	return nil
}

func EncodeLedger(l model.Ledger) ([]byte, error) {
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("validate ledger: %w", err)
	}
	if l.Members == nil {
		l.Members = []model.Member{}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshal ledger: %w", err)
	}
	return data, nil
}

func DecodeLedger(data []byte) (model.Ledger, error) {
	var l model.Ledger
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&l); err != nil {
		return model.Ledger{}, fmt.Errorf("decode ledger: %w", err)
	}
	if l.Members == nil {
		l.Members = []model.Member{}
	}
	if err := l.Validate(); err != nil {
		return model.Ledger{}, fmt.Errorf("validate ledger: %w", err)
	}
	return l, nil
}
