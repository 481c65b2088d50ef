// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package state persists the registry's durable state: operator records,
// registered keys, quorum parameters, and a height-ordered journal of
// membership transitions. Reloading replays the journal to rebuild every
// checkpoint stream exactly as it was written.
package state

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/ids"
)

const (
	// journalKey = [height] + [quorum]. At most one transition is recorded
	// per quorum per height, so the key is unique, and big-endian heights
	// make iteration replay transitions in commit order.
	journalKeyLength = database.Uint64Size + 1
)

var (
	operatorPrefix = []byte("operator")
	keyPrefix      = []byte("key")
	quorumPrefix   = []byte("quorum")
	journalPrefix  = []byte("journal")

	errUnexpectedJournalKeyLength = fmt.Errorf("expected journal key length %d", journalKeyLength)
)

type TransitionKind uint8

const (
	QuorumCreated TransitionKind = iota
	Joined
	Left
	Replaced
)

// Transition is one journal entry. For Replaced, Operator is the admitted
// joiner and Evicted the incumbent it displaced. Key bytes are recorded
// inline so that replay reproduces historical aggregates even if an operator
// later swapped its key.
type Transition struct {
	Kind       TransitionKind `serialize:"true"`
	Quorum     uint8          `serialize:"true"`
	Operator   ids.ShortID    `serialize:"true"`
	Key        []byte         `serialize:"true"`
	Evicted    ids.ShortID    `serialize:"true"`
	EvictedKey []byte         `serialize:"true"`
}

// OperatorRecord is the durable per-operator state.
type OperatorRecord struct {
	Status       uint8  `serialize:"true"`
	Bitmap       []byte `serialize:"true"`
	Socket       string `serialize:"true"`
	LastEjection uint64 `serialize:"true"` // unix seconds, 0 = never ejected
}

// QuorumRecord is the durable per-quorum capacity configuration.
type QuorumRecord struct {
	MaxOperatorCount        uint32 `serialize:"true"`
	ChurnMarginBips         uint16 `serialize:"true"`
	EjectabilityCeilingBips uint16 `serialize:"true"`
}

// Store namespaces one backing database into the registry's keyspaces.
type Store struct {
	operatorDB database.Database
	keyDB      database.Database
	quorumDB   database.Database
	journalDB  database.Database
}

func New(db database.Database) *Store {
	return &Store{
		operatorDB: prefixdb.New(operatorPrefix, db),
		keyDB:      prefixdb.New(keyPrefix, db),
		quorumDB:   prefixdb.New(quorumPrefix, db),
		journalDB:  prefixdb.New(journalPrefix, db),
	}
}

func (s *Store) PutOperator(operator ids.ShortID, rec OperatorRecord) error {
	b, err := Codec.Marshal(CodecVersion, &rec)
	if err != nil {
		return err
	}
	return s.operatorDB.Put(operator.Bytes(), b)
}

func (s *Store) GetOperator(operator ids.ShortID) (OperatorRecord, bool, error) {
	var rec OperatorRecord
	b, err := s.operatorDB.Get(operator.Bytes())
	if err == database.ErrNotFound {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, err
	}
	_, err = Codec.Unmarshal(b, &rec)
	return rec, err == nil, err
}

// Operators visits every stored operator record.
func (s *Store) Operators(visit func(ids.ShortID, OperatorRecord) error) error {
	it := s.operatorDB.NewIterator()
	defer it.Release()
	for it.Next() {
		operator, err := ids.ToShortID(it.Key())
		if err != nil {
			return err
		}
		var rec OperatorRecord
		if _, err := Codec.Unmarshal(it.Value(), &rec); err != nil {
			return err
		}
		if err := visit(operator, rec); err != nil {
			return err
		}
	}
	return it.Error()
}

func (s *Store) PutKey(operator ids.ShortID, pk *bls.PublicKey) error {
	return s.keyDB.Put(operator.Bytes(), bls.PublicKeyToCompressedBytes(pk))
}

// Keys visits every stored operator key.
func (s *Store) Keys(visit func(ids.ShortID, *bls.PublicKey) error) error {
	it := s.keyDB.NewIterator()
	defer it.Release()
	for it.Next() {
		operator, err := ids.ToShortID(it.Key())
		if err != nil {
			return err
		}
		pk, err := bls.PublicKeyFromCompressedBytes(it.Value())
		if err != nil {
			return err
		}
		if err := visit(operator, pk); err != nil {
			return err
		}
	}
	return it.Error()
}

func (s *Store) PutQuorum(quorum uint8, rec QuorumRecord) error {
	b, err := Codec.Marshal(CodecVersion, &rec)
	if err != nil {
		return err
	}
	return s.quorumDB.Put([]byte{quorum}, b)
}

// Quorums visits every stored quorum record in ascending quorum order.
func (s *Store) Quorums(visit func(uint8, QuorumRecord) error) error {
	it := s.quorumDB.NewIterator()
	defer it.Release()
	for it.Next() {
		key := it.Key()
		if len(key) != 1 {
			return fmt.Errorf("expected quorum key length 1, got %d", len(key))
		}
		var rec QuorumRecord
		if _, err := Codec.Unmarshal(it.Value(), &rec); err != nil {
			return err
		}
		if err := visit(key[0], rec); err != nil {
			return err
		}
	}
	return it.Error()
}

func (s *Store) AppendTransition(height uint64, t Transition) error {
	b, err := Codec.Marshal(CodecVersion, &t)
	if err != nil {
		return err
	}
	return s.journalDB.Put(journalKey(height, t.Quorum), b)
}

// Transitions visits every journal entry in ascending height order.
func (s *Store) Transitions(visit func(uint64, Transition) error) error {
	it := s.journalDB.NewIterator()
	defer it.Release()
	for it.Next() {
		height, _, err := unpackJournalKey(it.Key())
		if err != nil {
			return err
		}
		var t Transition
		if _, err := Codec.Unmarshal(it.Value(), &t); err != nil {
			return err
		}
		if err := visit(height, t); err != nil {
			return err
		}
	}
	return it.Error()
}

func (s *Store) Close() error {
	return errors.Join(
		s.operatorDB.Close(),
		s.keyDB.Close(),
		s.quorumDB.Close(),
		s.journalDB.Close(),
	)
}

func journalKey(height uint64, quorum uint8) []byte {
	key := make([]byte, journalKeyLength)
	binary.BigEndian.PutUint64(key, height)
	key[database.Uint64Size] = quorum
	return key
}

func unpackJournalKey(key []byte) (uint64, uint8, error) {
	if len(key) != journalKeyLength {
		return 0, 0, errUnexpectedJournalKeyLength
	}
	return binary.BigEndian.Uint64(key), key[database.Uint64Size], nil
}
