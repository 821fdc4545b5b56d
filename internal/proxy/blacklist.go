// Package proxy validates candidate egress proxies and persists the ones
// that failed so later runs skip them without network traffic.
package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/news-harvester/internal/harvest"
)

// DefaultLockTTL is how old a lock file must be before it is treated as abandoned.
const DefaultLockTTL = 30 * time.Second

const lockPoll = 25 * time.Millisecond

// Blacklist is an append-only set of proxies persisted one per line. Writers
// are serialized by a mutex within the process and by a lock file created
// with O_EXCL across processes. Duplicate lines are tolerated on read.
type Blacklist struct {
	path    string
	lockTTL time.Duration
	mu      sync.Mutex
}

// NewBlacklist opens the blacklist at path. The file is created on first Add.
func NewBlacklist(path string, lockTTL time.Duration) (*Blacklist, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("blacklist path is required")
	}
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return &Blacklist{path: path, lockTTL: lockTTL}, nil
}

// Path returns the backing file.
func (b *Blacklist) Path() string {
	return b.path
}

// Entries returns the distinct blacklisted proxies in file order.
func (b *Blacklist) Entries() ([]harvest.Proxy, error) {
	_, order, err := b.load()
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Contains reports whether p is blacklisted.
func (b *Blacklist) Contains(p harvest.Proxy) (bool, error) {
	set, _, err := b.load()
	if err != nil {
		return false, err
	}
	_, ok := set[normalize(p)]
	return ok, nil
}

// Add records p unless it is already present.
func (b *Blacklist) Add(ctx context.Context, p harvest.Proxy) error {
	p = normalize(p)
	if p == "" {
		return errors.New("cannot blacklist an empty proxy")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	release, err := b.acquireLock(ctx)
	if err != nil {
		return err
	}
	defer release()

	set, _, err := b.load()
	if err != nil {
		return err
	}
	if _, ok := set[p]; ok {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(b.path), 0o750); err != nil {
		return fmt.Errorf("create blacklist dir: %w", err)
	}
	// #nosec G304 -- path comes from operator configuration.
	f, err := os.OpenFile(b.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open blacklist: %w", err)
	}
	if _, err := f.WriteString(string(p) + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("append blacklist: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync blacklist: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close blacklist: %w", err)
	}
	return nil
}

func (b *Blacklist) load() (map[harvest.Proxy]struct{}, []harvest.Proxy, error) {
	set := map[harvest.Proxy]struct{}{}
	// #nosec G304 -- path comes from operator configuration.
	f, err := os.Open(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return set, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open blacklist: %w", err)
	}
	defer func() { _ = f.Close() }()

	var order []harvest.Proxy
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		p := normalize(harvest.Proxy(sc.Text()))
		if p == "" {
			continue
		}
		if _, dup := set[p]; dup {
			continue
		}
		set[p] = struct{}{}
		order = append(order, p)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("read blacklist: %w", err)
	}
	return set, order, nil
}

func (b *Blacklist) acquireLock(ctx context.Context) (func(), error) {
	lockPath := b.path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o750); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	for {
		// #nosec G304 -- lock path derives from operator configuration.
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, _ = fmt.Fprintf(f, `{"pid":%d,"time":%d}`+"\n", os.Getpid(), time.Now().Unix())
			_ = f.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("create lock: %w", err)
		}
		if fi, statErr := os.Stat(lockPath); statErr == nil && time.Since(fi.ModTime()) >= b.lockTTL {
			_ = os.Remove(lockPath)
			continue
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for blacklist lock: %w", ctx.Err())
		case <-time.After(lockPoll):
		}
	}
}

func normalize(p harvest.Proxy) harvest.Proxy {
	return harvest.Proxy(strings.TrimSpace(string(p)))
}
