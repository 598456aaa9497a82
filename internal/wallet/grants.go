package wallet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Grants records which accounts the user has authorized this client to see,
// which one is selected, and whether the wallet is locked. It lives in a
// file so that a connection survives between invocations.
type Grants struct {
	Authorized []common.Address `json:"authorized"`
	Selected   common.Address   `json:"selected"`
	Locked     bool             `json:"locked,omitempty"`
}

// Has reports whether addr has been authorized.
func (g *Grants) Has(addr common.Address) bool {
	for _, a := range g.Authorized {
		if a == addr {
			return true
		}
	}
	return false
}

func (g *Grants) authorize(addr common.Address) {
	if !g.Has(addr) {
		g.Authorized = append(g.Authorized, addr)
	}
	g.Selected = addr
	g.Locked = false
}

func (g *Grants) drop(addr common.Address) {
	kept := g.Authorized[:0]
	for _, a := range g.Authorized {
		if a != addr {
			kept = append(kept, a)
		}
	}
	g.Authorized = kept
	if g.Selected == addr {
		g.Selected = common.Address{}
	}
}

// GrantStore persists Grants.
type GrantStore interface {
	LoadGrants() (Grants, error)
	SaveGrants(Grants) error
}

// FileGrants keeps grants in a JSON file readable only by the current user.
type FileGrants struct {
	path string
}

// NewFileGrants returns a grant store at path.
func NewFileGrants(path string) *FileGrants {
	return &FileGrants{path: path}
}

// LoadGrants returns empty grants when the file does not exist.
func (f *FileGrants) LoadGrants() (Grants, error) {
	var g Grants
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return g, nil
	}
	if err != nil {
		return g, err
	}
	if err := json.Unmarshal(data, &g); err != nil {
		return Grants{}, fmt.Errorf("parsing %s: %w", f.path, err)
	}
	return g, nil
}

func (f *FileGrants) SaveGrants(g Grants) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return err
	}
	_ = os.Chmod(f.path, 0o600)
	return nil
}

// MemGrants keeps grants in memory.
type MemGrants struct {
	mu sync.Mutex
	g  Grants
}

func (m *MemGrants) LoadGrants() (Grants, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.g
	g.Authorized = append([]common.Address(nil), m.g.Authorized...)
	return g, nil
}

func (m *MemGrants) SaveGrants(g Grants) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.g = g
	m.g.Authorized = append([]common.Address(nil), g.Authorized...)
	return nil
}
