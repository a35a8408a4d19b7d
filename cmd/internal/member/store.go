package member

import (
	"context"
	"crypto/subtle"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// Backend is the durable half of the store. Save must not return until the
// record is synced to stable storage.
type Backend interface {
	Load(ctx context.Context, id string) (Record, bool, error)
	Save(ctx context.Context, rec Record) error
	Scan(ctx context.Context, fn func(Record) error) error
	Close() error
}

// Observer receives one callback per store operation (metrics hook).
type Observer interface {
	ObserveStoreOp(op string, took time.Duration, err error)
}

// Store is the member store used by every entry point (chat events, admin
// commands, HTTP). Writes for one id are serialized; reads take no lock.
type Store struct {
	backend Backend
	obs     Observer
	locks   keyedMutex
}

// Option configures Store.
type Option func(*Store) error

// WithObserver attaches an operation observer.
func WithObserver(o Observer) Option {
	return func(s *Store) error {
		s.obs = o
		return nil
	}
}

// NewStore wraps a backend.
func NewStore(backend Backend, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, OpError{Op: "member.NewStore", Kind: ErrInvalidInput, Msg: "backend is nil"}
	}
	s := &Store{backend: backend}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Close closes the backend.
func (s *Store) Close() error {
	if s == nil || s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

// Get returns the record for id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (rec Record, err error) {
	defer s.observe("get", time.Now(), &err)

	if !validID(id) {
		return Record{}, OpError{Op: "member.Get", Kind: ErrInvalidInput, Msg: "empty id"}
	}
	rec, ok, err := s.backend.Load(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, NotFoundError{Op: "member.Get", Ref: id}
	}
	return rec, nil
}

// GetByName scans for a record whose display name equals name.
// More than one match is reported as ErrAmbiguousName instead of picking one.
func (s *Store) GetByName(ctx context.Context, name string) (rec Record, err error) {
	defer s.observe("get_by_name", time.Now(), &err)

	name = strings.TrimSpace(name)
	if name == "" {
		return Record{}, OpError{Op: "member.GetByName", Kind: ErrInvalidInput, Msg: "empty name"}
	}

	var matches []Record
	err = s.backend.Scan(ctx, func(r Record) error {
		if r.DisplayName == name {
			matches = append(matches, r)
		}
		return nil
	})
	if err != nil {
		return Record{}, err
	}

	switch len(matches) {
	case 0:
		return Record{}, NotFoundError{Op: "member.GetByName", Ref: name}
	case 1:
		return matches[0], nil
	default:
		return Record{}, OpError{Op: "member.GetByName", Kind: ErrAmbiguousName, Msg: name}
	}
}

// List returns every record ordered by id.
func (s *Store) List(ctx context.Context) (out []Record, err error) {
	defer s.observe("list", time.Now(), &err)

	err = s.backend.Scan(ctx, func(r Record) error {
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpsertBlank creates a blank record for id when none exists.
// It reports whether a record was created; existing records are untouched.
func (s *Store) UpsertBlank(ctx context.Context, id, displayName, avatarRef string) (created bool, err error) {
	defer s.observe("upsert_blank", time.Now(), &err)

	if !validID(id) {
		return false, OpError{Op: "member.UpsertBlank", Kind: ErrInvalidInput, Msg: "empty id"}
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	_, ok, err := s.backend.Load(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}

	rec := blank(id)
	rec.DisplayName = displayName
	rec.AvatarRef = avatarRef
	if err := s.backend.Save(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}

// SetApproval creates or updates the record for ident.ID with the given
// approval flag. A missing key is generated. Display fields are only written
// (and the record marked valid) when ident carries a display name.
func (s *Store) SetApproval(ctx context.Context, ident Identity, approved bool) (rec Record, err error) {
	defer s.observe("set_approval", time.Now(), &err)

	if !validID(ident.ID) {
		return Record{}, OpError{Op: "member.SetApproval", Kind: ErrInvalidInput, Msg: "empty id"}
	}

	unlock := s.locks.Lock(ident.ID)
	defer unlock()

	rec, ok, err := s.backend.Load(ctx, ident.ID)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		rec = blank(ident.ID)
	}

	rec.Approved = approved
	if !rec.HasKey() {
		key, err := NewKey()
		if err != nil {
			return Record{}, err
		}
		rec.Key = key
	}
	if ident.hasDisplay() {
		rec.DisplayName = ident.DisplayName
		rec.AvatarRef = ident.AvatarRef
		rec.Valid = true
	}

	if err := s.backend.Save(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// RefreshIdentity writes fresh display fields observed on a live event and
// marks the record valid.
func (s *Store) RefreshIdentity(ctx context.Context, id, displayName, avatarRef string) (rec Record, err error) {
	defer s.observe("refresh_identity", time.Now(), &err)

	if !validID(id) {
		return Record{}, OpError{Op: "member.RefreshIdentity", Kind: ErrInvalidInput, Msg: "empty id"}
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	rec, ok, err := s.backend.Load(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, NotFoundError{Op: "member.RefreshIdentity", Ref: id}
	}

	rec.DisplayName = displayName
	rec.AvatarRef = avatarRef
	rec.Valid = true
	if err := s.backend.Save(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Invalidate resets the record to blank, optionally keeping its key so a
// returning member can present the same secret. Unknown ids are a no-op.
func (s *Store) Invalidate(ctx context.Context, id string, keepKey bool) (err error) {
	defer s.observe("invalidate", time.Now(), &err)

	if !validID(id) {
		return OpError{Op: "member.Invalidate", Kind: ErrInvalidInput, Msg: "empty id"}
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	old, ok, err := s.backend.Load(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	rec := blank(id)
	if keepKey {
		rec.Key = old.Key
	}
	return s.backend.Save(ctx, rec)
}

// Delete resets the record to blank, key included.
// It reports false when no record exists for id.
func (s *Store) Delete(ctx context.Context, id string) (removed bool, err error) {
	defer s.observe("delete", time.Now(), &err)

	if !validID(id) {
		return false, OpError{Op: "member.Delete", Kind: ErrInvalidInput, Msg: "empty id"}
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	_, ok, err := s.backend.Load(ctx, id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := s.backend.Save(ctx, blank(id)); err != nil {
		return false, err
	}
	return true, nil
}

// MatchKey compares a challenge response with the stored key.
// The comparison is exact and case-sensitive; an empty stored key never matches.
func (s *Store) MatchKey(ctx context.Context, id, response string) (bool, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !rec.HasKey() {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(rec.Key), []byte(response)) == 1, nil
}

func (s *Store) observe(op string, start time.Time, errp *error) {
	if s.obs == nil {
		return
	}
	var err error
	if errp != nil {
		err = *errp
	}
	s.obs.ObserveStoreOp(op, time.Since(start), err)
}

// keyedMutex hands out one mutex per id, dropping entries once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(id string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refLock)
	}
	l, ok := k.locks[id]
	if !ok {
		l = &refLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
