package app

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/connecto/internal/domain"
)

// Entry is the live state of one connected participant. The registry owns
// the transport handle exclusively; Partner is a weak back-reference only,
// the session itself belongs to the matcher.
type Entry struct {
	ID      domain.UserID
	Account domain.AccountID
	Name    string
	Conn    Conn
	Status  domain.Status
	Partner domain.UserID
}

// Presence is the authoritative map of connected identities.
// Pairwise transitions go through SetMatched/ClearMatch so that no observer
// ever sees one member matched while the other is still available.
type Presence struct {
	mu      sync.RWMutex
	entries map[domain.UserID]*Entry

	// onChange is invoked after every mutation, outside the lock,
	// with a consistent snapshot. Used for online_users broadcasts.
	onChange func([]domain.UserInfo)
}

func NewPresence() *Presence {
	return &Presence{entries: make(map[domain.UserID]*Entry)}
}

// OnChange installs the presence-changed sink. Must be set before serving.
func (p *Presence) OnChange(fn func([]domain.UserInfo)) { p.onChange = fn }

func (p *Presence) Register(id domain.UserID, account domain.AccountID, name string, conn Conn) (*Entry, error) {
	p.mu.Lock()
	if _, ok := p.entries[id]; ok {
		p.mu.Unlock()
		return nil, ErrDuplicateIdentity
	}
	e := &Entry{ID: id, Account: account, Name: name, Conn: conn, Status: domain.StatusAvailable}
	p.entries[id] = e
	p.mu.Unlock()

	log.Info().Str("module", "app.presence").Str("uid", string(id)).Msg("registered")
	p.changed()
	return e, nil
}

// Unregister is idempotent.
func (p *Presence) Unregister(id domain.UserID) {
	p.mu.Lock()
	_, ok := p.entries[id]
	delete(p.entries, id)
	p.mu.Unlock()

	if ok {
		log.Info().Str("module", "app.presence").Str("uid", string(id)).Msg("unregistered")
		p.changed()
	}
}

func (p *Presence) Get(id domain.UserID) (*Entry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[id]
	return e, ok
}

// PartnerOf returns the current partner of id, if any.
func (p *Presence) PartnerOf(id domain.UserID) (*Entry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[id]
	if !ok || e.Partner == "" {
		return nil, false
	}
	partner, ok := p.entries[e.Partner]
	return partner, ok
}

func (p *Presence) SetSearching(id domain.UserID) {
	p.setStatus(id, domain.StatusSearching)
}

func (p *Presence) SetAvailable(id domain.UserID) {
	p.setStatus(id, domain.StatusAvailable)
}

func (p *Presence) setStatus(id domain.UserID, s domain.Status) {
	p.mu.Lock()
	e, ok := p.entries[id]
	if ok {
		e.Status = s
		e.Partner = ""
	}
	p.mu.Unlock()
	if ok {
		p.changed()
	}
}

// SetMatched flips both members to matched in one critical section.
func (p *Presence) SetMatched(a, b domain.UserID) {
	p.mu.Lock()
	ea, okA := p.entries[a]
	eb, okB := p.entries[b]
	if okA && okB {
		ea.Status = domain.StatusMatched
		ea.Partner = b
		eb.Status = domain.StatusMatched
		eb.Partner = a
	}
	p.mu.Unlock()
	if okA && okB {
		p.changed()
	}
}

// ClearMatch releases both members back to available in one critical section.
// Either member may already be gone (disconnect teardown).
func (p *Presence) ClearMatch(a, b domain.UserID) {
	p.mu.Lock()
	if e, ok := p.entries[a]; ok {
		e.Status = domain.StatusAvailable
		e.Partner = ""
	}
	if e, ok := p.entries[b]; ok {
		e.Status = domain.StatusAvailable
		e.Partner = ""
	}
	p.mu.Unlock()
	p.changed()
}

func (p *Presence) ListAvailable() []domain.UserID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.UserID, 0, len(p.entries))
	for id, e := range p.entries {
		if e.Status == domain.StatusAvailable {
			out = append(out, id)
		}
	}
	return out
}

func (p *Presence) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Snapshot returns a stable, transport-free view of everyone online.
func (p *Presence) Snapshot() []domain.UserInfo {
	p.mu.RLock()
	out := make([]domain.UserInfo, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, domain.UserInfo{ID: e.ID, Name: e.Name, Status: e.Status})
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (p *Presence) changed() {
	if p.onChange != nil {
		p.onChange(p.Snapshot())
	}
}
