// Package store persists a set of prefixes, such as a derived blacklist, in a
// badger database and answers longest-prefix-match queries against it.
package store

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dgraph-io/badger/v4"

	"github.com/sudorandom/asn-hitlist/pkg/prefix"
)

var ErrCorruptKey = errors.New("corrupt store key")

// Store is safe for concurrent use.
type Store struct {
	db    *badger.DB
	cache sync.Map // netip.Addr -> lookupResult
}

type lookupResult struct {
	key prefix.Prefix
	val []byte
	ok  bool
}

// Open opens or creates the store in directory path.
func Open(path string) (*Store, error) {
	return open(badger.DefaultOptions(path))
}

// OpenInMemory opens a store that lives only as long as the process.
func OpenInMemory() (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true))
}

func open(opts badger.Options) (*Store, error) {
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open store %q: %w", opts.Dir, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Key layout: address length (4 or 16), address bytes, prefix length.
func encodeKey(addr netip.Addr, bits int) []byte {
	raw := addr.AsSlice()
	key := make([]byte, 0, len(raw)+2)
	key = append(key, byte(len(raw)))
	key = append(key, raw...)
	return append(key, byte(bits))
}

func decodeKey(k []byte) (prefix.Prefix, error) {
	if len(k) < 2 || int(k[0]) != len(k)-2 {
		return prefix.Prefix{}, fmt.Errorf("%w: %x", ErrCorruptKey, k)
	}
	addr, ok := netip.AddrFromSlice(k[1 : len(k)-1])
	if !ok {
		return prefix.Prefix{}, fmt.Errorf("%w: %x", ErrCorruptKey, k)
	}
	p := netip.PrefixFrom(addr, int(k[len(k)-1]))
	if !p.IsValid() {
		return prefix.Prefix{}, fmt.Errorf("%w: %x", ErrCorruptKey, k)
	}
	return prefix.FromNetip(p), nil
}

// Put stores value under p.
func (s *Store) Put(p prefix.Prefix, value []byte) error {
	if !p.IsValid() {
		return fmt.Errorf("%w: zero prefix", prefix.ErrInvalidPrefix)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(encodeKey(p.Addr(), p.Bits()), value)
	})
	s.cache.Clear()
	return err
}

// Replace drops every stored prefix and writes prefixes in one batch, each
// with the same value.
func (s *Store) Replace(prefixes []prefix.Prefix, value []byte) error {
	defer s.cache.Clear()
	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("drop store: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, p := range prefixes {
		if !p.IsValid() {
			continue
		}
		if err := wb.Set(encodeKey(p.Addr(), p.Bits()), value); err != nil {
			return err
		}
	}
	if err := wb.Flush(); err != nil {
		return err
	}
	log.Info("Wrote prefix store", "prefixes", len(prefixes))
	return nil
}

// Lookup returns the most specific stored prefix that contains ip.
func (s *Store) Lookup(ip netip.Addr) (prefix.Prefix, []byte, bool, error) {
	ip = ip.Unmap()
	if v, ok := s.cache.Load(ip); ok {
		res := v.(lookupResult)
		return res.key, res.val, res.ok, nil
	}

	key, val, ok, err := s.longestMatch(prefix.FromAddr(ip))
	if err == nil {
		s.cache.Store(ip, lookupResult{key: key, val: val, ok: ok})
	}
	return key, val, ok, err
}

// Covers reports whether a stored prefix contains all of p.
func (s *Store) Covers(p prefix.Prefix) (bool, error) {
	_, _, ok, err := s.longestMatch(p)
	return ok, err
}

// longestMatch probes every prefix length from p.Bits() down to zero.
func (s *Store) longestMatch(p prefix.Prefix) (key prefix.Prefix, val []byte, ok bool, err error) {
	if !p.IsValid() {
		return prefix.Prefix{}, nil, false, nil
	}
	err = s.db.View(func(txn *badger.Txn) error {
		for m := p.Bits(); m >= 0; m-- {
			probe := netip.PrefixFrom(p.Addr(), m).Masked()
			item, getErr := txn.Get(encodeKey(probe.Addr(), m))
			if errors.Is(getErr, badger.ErrKeyNotFound) {
				continue
			}
			if getErr != nil {
				return getErr
			}
			val, getErr = item.ValueCopy(nil)
			if getErr != nil {
				return getErr
			}
			key, ok = prefix.FromNetip(probe), true
			return nil
		}
		return nil
	})
	return key, val, ok, err
}

// ForEach calls fn for every stored prefix in key order.
func (s *Store) ForEach(fn func(p prefix.Prefix, v []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			p, err := decodeKey(item.Key())
			if err != nil {
				return err
			}
			err = item.Value(func(v []byte) error {
				return fn(p, v)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Len counts the stored prefixes.
func (s *Store) Len() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}
