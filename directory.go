package portal

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Directory caches the roster of addressable employees and the groups
// the current user belongs to. Fetches replace each list; group
// broadcasts patch it.
type Directory struct {
	self     string
	session  *Session
	presence *Presence
	notify   notifier
	logger   *slog.Logger

	// resync, when set, is run after every membership broadcast so the
	// local patch is reconciled with the server's view.
	resync func()
	// resyncs collapses broadcasts arriving while a resync is in flight
	// into that one round trip.
	resyncs singleflight.Group

	mu        sync.RWMutex
	employees []Employee
	groups    []Group
}

type groupRef struct {
	GroupID any `json:"groupId"`
}

type membersUpdate struct {
	GroupID any   `json:"groupId"`
	Members []any `json:"members"`
	Removed []any `json:"removedMembers"`
}

func (d *Directory) attach(s *Session) {
	s.On(EventEmployeeList, d.handleEmployeeList)
	s.On(EventUserGroups, d.handleUserGroups)
	s.On(EventGroupCreated, d.handleGroupCreated)
	s.On(EventAddedToGroup, d.handleAddedToGroup)
	s.On(EventGroupMembersUpdated, d.handleMembersUpdated)
	s.On(EventRemovedFromGroup, d.handleRemovedFromGroup)
	s.On(EventGroupDeleted, d.handleGroupDeleted)
}

// ============================================================================
// Fetches
// ============================================================================

// RefreshEmployees replaces the roster with the server's.
func (d *Directory) RefreshEmployees(ctx context.Context) ([]Employee, error) {
	wire, err := RequestField[[]wireEmployee](ctx, d.session, EventRequestEmployees,
		map[string]string{"userId": d.self}, "employees")
	if err != nil {
		return nil, err
	}
	d.setEmployees(wire)
	return d.Employees(), nil
}

// RefreshGroups replaces the group list with the server's.
func (d *Directory) RefreshGroups(ctx context.Context) ([]Group, error) {
	wire, err := RequestField[[]wireGroup](ctx, d.session, EventRequestUserGroups,
		map[string]string{"userId": d.self}, "groups")
	if err != nil {
		return nil, err
	}
	d.setGroups(wire)
	return d.Groups(), nil
}

// ============================================================================
// Reads
// ============================================================================

// Employees returns the roster without the current user, each entry
// marked with its online state.
func (d *Directory) Employees() []Employee {
	d.mu.RLock()
	roster := d.employees
	d.mu.RUnlock()

	out := make([]Employee, 0, len(roster))
	for _, e := range roster {
		if e.ID == d.self {
			continue
		}
		if d.presence != nil {
			e.Online = d.presence.IsOnline(e.ID)
		}
		out = append(out, e)
	}
	return out
}

// Groups returns the current group list. The slice is shared and must
// not be modified.
func (d *Directory) Groups() []Group {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.groups
}

// Group looks up one group by id.
func (d *Directory) Group(id string) (Group, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, g := range d.groups {
		if g.ID == id {
			return g, true
		}
	}
	return Group{}, false
}

// ============================================================================
// Push handlers
// ============================================================================

func (d *Directory) handleEmployeeList(p Payload) {
	if f, ok := p.Field("employees"); ok {
		p = f
	}
	var wire []wireEmployee
	if err := p.Decode(&wire); err != nil {
		d.logger.Debug("ignoring employee list", "error", err)
		return
	}
	d.setEmployees(wire)
}

func (d *Directory) handleUserGroups(p Payload) {
	if f, ok := p.Field("groups"); ok {
		p = f
	}
	var wire []wireGroup
	if err := p.Decode(&wire); err != nil {
		d.logger.Debug("ignoring group list", "error", err)
		return
	}
	d.setGroups(wire)
}

func (d *Directory) handleGroupCreated(p Payload) {
	if g, ok := decodeGroup(p); ok {
		d.upsertGroup(g)
	}
}

func (d *Directory) handleAddedToGroup(p Payload) {
	if g, ok := decodeGroup(p); ok {
		d.upsertGroup(g)
	}
	d.requestResync()
}

func (d *Directory) handleMembersUpdated(p Payload) {
	var u membersUpdate
	if err := p.Decode(&u); err != nil {
		return
	}
	id := idString(u.GroupID)
	if id == "" {
		return
	}
	removed := idList(u.Removed)
	if d.selfRemoved(id, removed) {
		d.dropGroup(id)
		d.requestResync()
		return
	}
	if !d.mergeMembers(id, idList(u.Members), removed) {
		d.logger.Debug("membership update for unknown group", "group", id)
	}
	d.requestResync()
}

// selfRemoved reports whether removed takes the current user out of
// group id. The creator is never removed.
func (d *Directory) selfRemoved(id string, removed []string) bool {
	for _, r := range removed {
		if r != d.self {
			continue
		}
		g, ok := d.Group(id)
		return !ok || g.Creator != d.self
	}
	return false
}

func (d *Directory) handleRemovedFromGroup(p Payload) {
	var ref groupRef
	if err := p.Decode(&ref); err == nil {
		d.dropGroup(idString(ref.GroupID))
	}
	d.requestResync()
}

func (d *Directory) handleGroupDeleted(p Payload) {
	var ref groupRef
	if err := p.Decode(&ref); err == nil {
		d.dropGroup(idString(ref.GroupID))
	}
	d.requestResync()
}

func (d *Directory) requestResync() {
	if d.resync == nil {
		return
	}
	go d.resyncs.Do("groups", func() (any, error) {
		d.resync()
		return nil, nil
	})
}

// decodeGroup accepts a bare group or one wrapped as {group: ...}.
func decodeGroup(p Payload) (Group, bool) {
	if f, ok := p.Field("group"); ok {
		p = f
	}
	var w wireGroup
	if err := p.Decode(&w); err != nil {
		return Group{}, false
	}
	g := normalizeGroup(w)
	return g, g.ID != ""
}

// ============================================================================
// Copy-on-write mutations
// ============================================================================

func (d *Directory) setEmployees(wire []wireEmployee) {
	next := make([]Employee, 0, len(wire))
	for _, w := range wire {
		next = append(next, normalizeEmployee(w))
	}
	d.mu.Lock()
	d.employees = next
	d.mu.Unlock()
	d.notify.changed(StoreDirectory, "employees")
}

func (d *Directory) setGroups(wire []wireGroup) {
	next := make([]Group, 0, len(wire))
	for _, w := range wire {
		if g := normalizeGroup(w); g.ID != "" {
			next = append(next, g)
		}
	}
	d.mu.Lock()
	d.groups = next
	d.mu.Unlock()
	d.notify.changed(StoreDirectory, "groups")
}

func (d *Directory) upsertGroup(g Group) {
	d.mu.Lock()
	next := make([]Group, 0, len(d.groups)+1)
	replaced := false
	for _, existing := range d.groups {
		if existing.ID == g.ID {
			next = append(next, g)
			replaced = true
			continue
		}
		next = append(next, existing)
	}
	if !replaced {
		next = append(next, g)
	}
	d.groups = next
	d.mu.Unlock()
	d.notify.changed(StoreDirectory, g.ID)
}

// mergeMembers adds and removes members of a known group, treating the
// member list as a set. Reports whether the group was found.
func (d *Directory) mergeMembers(id string, add, remove []string) bool {
	d.mu.Lock()
	idx := -1
	for i, g := range d.groups {
		if g.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		d.mu.Unlock()
		return false
	}

	g := d.groups[idx]
	drop := make(map[string]struct{}, len(remove))
	for _, r := range remove {
		if r != g.Creator {
			drop[r] = struct{}{}
		}
	}
	members := make([]string, 0, len(g.Members)+len(add))
	seen := make(map[string]struct{}, len(g.Members)+len(add))
	for _, m := range append(append([]string(nil), g.Members...), add...) {
		if _, skip := drop[m]; skip {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		members = append(members, m)
	}
	g.Members = members

	next := append([]Group(nil), d.groups...)
	next[idx] = g
	d.groups = next
	d.mu.Unlock()
	d.notify.changed(StoreDirectory, id)
	return true
}

func (d *Directory) dropGroup(id string) {
	if id == "" {
		return
	}
	d.mu.Lock()
	next := make([]Group, 0, len(d.groups))
	found := false
	for _, g := range d.groups {
		if g.ID == id {
			found = true
			continue
		}
		next = append(next, g)
	}
	if !found {
		d.mu.Unlock()
		return
	}
	d.groups = next
	d.mu.Unlock()
	d.notify.changed(StoreDirectory, id)
}
