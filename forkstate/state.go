package forkstate

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/vulcanize/go-evm-tracer/backend"
)

type recordKind uint8

const (
	accountLoad recordKind = iota
	slotLoad
	created
)

// record is one entry of the load journal, undone on snapshot revert
type record struct {
	kind recordKind
	addr common.Address
	slot common.Hash
}

// State is a vm.StateDB that pulls accounts, code and storage from a Backend the
// first time they are touched. Loads are journaled alongside the underlying
// StateDB so reverting a snapshot forgets them too.
type State struct {
	*state.StateDB

	backend backend.Backend
	ctx     context.Context

	accounts map[common.Address]struct{}
	slots    map[common.Address]map[common.Hash]struct{}
	fresh    map[common.Address]struct{}
	// origin holds backend values loaded since the last commit; the underlying
	// StateDB only learns them as committed state on Finalise.
	origin  map[common.Address]map[common.Hash]common.Hash
	journal []record
	marks   map[int]int

	err    error
	logger log.Logger
}

var _ vm.StateDB = (*State)(nil)

var emptyCodeHash = crypto.Keccak256Hash(nil)

// New returns an empty overlay over b
func New(b backend.Backend) (*State, error) {
	db, err := state.New(common.Hash{}, state.NewDatabase(rawdb.NewMemoryDatabase()), nil)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	return &State{
		StateDB:  db,
		backend:  b,
		ctx:      context.Background(),
		accounts: make(map[common.Address]struct{}),
		slots:    make(map[common.Address]map[common.Hash]struct{}),
		fresh:    make(map[common.Address]struct{}),
		origin:   make(map[common.Address]map[common.Hash]common.Hash),
		marks:    make(map[int]int),
		logger:   log.New("module", "forkstate"),
	}, nil
}

// Backend returns the backend the overlay reads from
func (s *State) Backend() backend.Backend {
	return s.backend
}

// SetContext sets the context used for backend fetches
func (s *State) SetContext(ctx context.Context) {
	s.ctx = ctx
}

// BackendErr returns the first backend failure since the last ClearErr
func (s *State) BackendErr() error {
	return s.err
}

// ClearErr forgets a recorded backend failure
func (s *State) ClearErr() {
	s.err = nil
}

func (s *State) setErr(err error) {
	if s.err == nil {
		s.logger.Warn("State fetch failed", "err", err)
		s.err = err
	}
}

func (s *State) ensureAccount(addr common.Address) {
	if _, ok := s.accounts[addr]; ok {
		return
	}
	acc, code, err := s.fetchAccount(addr)
	if err != nil {
		// left unmarked so the next access retries the fetch
		s.setErr(err)
		return
	}
	s.accounts[addr] = struct{}{}
	s.journal = append(s.journal, record{kind: accountLoad, addr: addr})
	if acc.Empty() {
		return
	}
	s.StateDB.SetBalance(addr, acc.Balance)
	s.StateDB.SetNonce(addr, acc.Nonce)
	if len(code) > 0 {
		s.StateDB.SetCode(addr, code)
	}
}

func (s *State) fetchAccount(addr common.Address) (*backend.Account, []byte, error) {
	acc, err := s.backend.GetAccount(s.ctx, addr)
	if err != nil {
		return nil, nil, err
	}
	if acc.Empty() || acc.CodeHash == (common.Hash{}) || acc.CodeHash == emptyCodeHash {
		return acc, nil, nil
	}
	code, err := s.backend.GetCode(s.ctx, addr)
	if err != nil {
		return nil, nil, err
	}
	return acc, code, nil
}

func (s *State) ensureSlot(addr common.Address, slot common.Hash) {
	s.ensureAccount(addr)
	if _, ok := s.fresh[addr]; ok {
		return
	}
	if _, ok := s.slots[addr][slot]; ok {
		return
	}
	value, err := s.backend.GetStorage(s.ctx, addr, slot)
	if err != nil {
		s.setErr(err)
		return
	}
	if s.slots[addr] == nil {
		s.slots[addr] = make(map[common.Hash]struct{})
	}
	s.slots[addr][slot] = struct{}{}
	s.journal = append(s.journal, record{kind: slotLoad, addr: addr, slot: slot})
	if value == (common.Hash{}) {
		return
	}
	if s.origin[addr] == nil {
		s.origin[addr] = make(map[common.Hash]common.Hash)
	}
	s.origin[addr][slot] = value
	s.StateDB.SetState(addr, slot, value)
}

func (s *State) CreateAccount(addr common.Address) {
	s.ensureAccount(addr)
	if _, ok := s.fresh[addr]; !ok {
		s.fresh[addr] = struct{}{}
		s.journal = append(s.journal, record{kind: created, addr: addr})
	}
	s.StateDB.CreateAccount(addr)
}

func (s *State) SubBalance(addr common.Address, amount *big.Int) {
	s.ensureAccount(addr)
	s.StateDB.SubBalance(addr, amount)
}

func (s *State) AddBalance(addr common.Address, amount *big.Int) {
	s.ensureAccount(addr)
	s.StateDB.AddBalance(addr, amount)
}

func (s *State) SetBalance(addr common.Address, amount *big.Int) {
	s.ensureAccount(addr)
	s.StateDB.SetBalance(addr, amount)
}

func (s *State) GetBalance(addr common.Address) *big.Int {
	s.ensureAccount(addr)
	return s.StateDB.GetBalance(addr)
}

func (s *State) GetNonce(addr common.Address) uint64 {
	s.ensureAccount(addr)
	return s.StateDB.GetNonce(addr)
}

func (s *State) SetNonce(addr common.Address, nonce uint64) {
	s.ensureAccount(addr)
	s.StateDB.SetNonce(addr, nonce)
}

func (s *State) GetCodeHash(addr common.Address) common.Hash {
	s.ensureAccount(addr)
	return s.StateDB.GetCodeHash(addr)
}

func (s *State) GetCode(addr common.Address) []byte {
	s.ensureAccount(addr)
	return s.StateDB.GetCode(addr)
}

func (s *State) SetCode(addr common.Address, code []byte) {
	s.ensureAccount(addr)
	s.StateDB.SetCode(addr, code)
}

func (s *State) GetCodeSize(addr common.Address) int {
	s.ensureAccount(addr)
	return s.StateDB.GetCodeSize(addr)
}

func (s *State) GetCommittedState(addr common.Address, slot common.Hash) common.Hash {
	s.ensureSlot(addr, slot)
	if v, ok := s.origin[addr][slot]; ok {
		return v
	}
	return s.StateDB.GetCommittedState(addr, slot)
}

func (s *State) GetState(addr common.Address, slot common.Hash) common.Hash {
	s.ensureSlot(addr, slot)
	return s.StateDB.GetState(addr, slot)
}

func (s *State) SetState(addr common.Address, slot, value common.Hash) {
	s.ensureSlot(addr, slot)
	s.StateDB.SetState(addr, slot, value)
}

func (s *State) Suicide(addr common.Address) bool {
	s.ensureAccount(addr)
	return s.StateDB.Suicide(addr)
}

func (s *State) Exist(addr common.Address) bool {
	s.ensureAccount(addr)
	return s.StateDB.Exist(addr)
}

func (s *State) Empty(addr common.Address) bool {
	s.ensureAccount(addr)
	return s.StateDB.Empty(addr)
}

func (s *State) Snapshot() int {
	id := s.StateDB.Snapshot()
	s.marks[id] = len(s.journal)
	return id
}

func (s *State) RevertToSnapshot(id int) {
	s.StateDB.RevertToSnapshot(id)
	mark, ok := s.marks[id]
	if !ok {
		return
	}
	for i := len(s.journal) - 1; i >= mark; i-- {
		r := s.journal[i]
		switch r.kind {
		case accountLoad:
			delete(s.accounts, r.addr)
		case slotLoad:
			delete(s.slots[r.addr], r.slot)
			delete(s.origin[r.addr], r.slot)
		case created:
			delete(s.fresh, r.addr)
		}
	}
	s.journal = s.journal[:mark]
	for snap := range s.marks {
		if snap >= id {
			delete(s.marks, snap)
		}
	}
}

// Commit finalises pending changes so they become the committed state seen by
// later transactions and returns the resulting state root
func (s *State) Commit() common.Hash {
	s.StateDB.Finalise(true)
	s.origin = make(map[common.Address]map[common.Hash]common.Hash)
	s.journal = s.journal[:0]
	s.marks = make(map[int]int)
	return s.StateDB.IntermediateRoot(true)
}
