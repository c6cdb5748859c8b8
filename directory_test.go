package portal

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/hrportal/portal/sdk/golang/internal/testutil"
)

func seedGroups(t *testing.T, sock *fakeSocket, d *Directory) {
	t.Helper()
	sock.reply(EventRequestUserGroups, map[string]any{"success": true, "groups": []map[string]any{
		{"_id": "g1", "name": "Payroll", "members": []string{"u1", "u2"}, "creator": "u1"},
		{"_id": "g2", "name": "All hands", "members": []string{"u1", "u3"}, "creator": "u3"},
		{"_id": "g3", "name": "Legacy", "members": []string{"u1"}},
	}})
	if _, err := d.RefreshGroups(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func sortedMembers(g Group) []string {
	out := append([]string(nil), g.Members...)
	sort.Strings(out)
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPresenceReplacesSet(t *testing.T) {
	p, sock, _ := newTestProvider(t, "u1")

	sock.push(EventOnlineUsers, []string{"u1", "u2", "u2"})
	if p.Presence().Count() != 2 || !p.Presence().IsOnline("u2") {
		t.Fatalf("online = %v", p.Presence().Online())
	}
	sock.push(EventOnlineUsers, []string{"u3"})
	if got := p.Presence().Online(); !equalStrings(got, []string{"u3"}) {
		t.Errorf("online = %v, want [u3]", got)
	}
}

func TestDirectoryEmployees(t *testing.T) {
	p, sock, _ := newTestProvider(t, "u1")
	d := p.Directory()

	sock.reply(EventRequestEmployees, []map[string]any{
		{"_id": "u1", "name": "Me"},
		{"_id": "u2", "name": "Ana", "department": "Finance"},
		{"id": 42, "name": "Ben"},
	})
	if _, err := d.RefreshEmployees(context.Background()); err != nil {
		t.Fatal(err)
	}
	sock.push(EventOnlineUsers, []string{"u2"})

	got := d.Employees()
	if len(got) != 2 {
		t.Fatalf("employees = %+v, want self excluded", got)
	}
	if got[0].ID != "u2" || !got[0].Online || got[0].Department != "Finance" {
		t.Errorf("employee[0] = %+v", got[0])
	}
	if got[1].ID != "42" || got[1].Online {
		t.Errorf("employee[1] = %+v", got[1])
	}

	sock.push(EventEmployeeList, []map[string]any{{"_id": "u9", "name": "New"}})
	if got := d.Employees(); len(got) != 1 || got[0].ID != "u9" {
		t.Errorf("after push = %+v", got)
	}
}

func TestDirectoryMembershipSetSemantics(t *testing.T) {
	p, sock, _ := newTestProvider(t, "u1")
	d := p.Directory()
	seedGroups(t, sock, d)

	update := map[string]any{"groupId": "g1", "members": []string{"u2", "u4", "u4"}}
	sock.push(EventGroupMembersUpdated, update)
	sock.push(EventGroupMembersUpdated, update)
	sock.push(EventGroupMembersUpdated, map[string]any{"groupId": "g1", "members": []string{"u1", "u5", "u4"}})

	g, _ := d.Group("g1")
	if want := []string{"u1", "u2", "u4", "u5"}; !equalStrings(sortedMembers(g), want) {
		t.Errorf("members = %v, want %v", sortedMembers(g), want)
	}

	t.Run("removal", func(t *testing.T) {
		sock.push(EventGroupMembersUpdated, map[string]any{"groupId": "g1", "removedMembers": []string{"u4", "u1"}})
		g, ok := d.Group("g1")
		if !ok {
			t.Fatal("g1 dropped although the current user created it")
		}
		// The creator stays a member.
		if want := []string{"u1", "u2", "u5"}; !equalStrings(sortedMembers(g), want) {
			t.Errorf("members = %v, want %v", sortedMembers(g), want)
		}
	})

	t.Run("self removed", func(t *testing.T) {
		sock.push(EventGroupMembersUpdated, map[string]any{"groupId": "g2", "removedMembers": []string{"u1"}})
		if _, ok := d.Group("g2"); ok {
			t.Error("g2 kept after the current user was removed")
		}
	})
}

func TestDirectoryGroupBroadcasts(t *testing.T) {
	p, sock, _ := newTestProvider(t, "u1")
	d := p.Directory()
	seedGroups(t, sock, d)

	sock.push(EventAddedToGroup, map[string]any{"group": map[string]any{
		"_id": "g4", "name": "Recruiting", "members": []string{"u7"}, "creator": "u7",
	}})
	g4, ok := d.Group("g4")
	if !ok || !g4.HasMember("u7") {
		t.Fatalf("g4 = %+v, %v", g4, ok)
	}

	sock.push(EventGroupCreated, map[string]any{"_id": "g4", "name": "Recruiting 2026", "members": []string{"u7", "u1"}, "creator": "u7"})
	if g4, _ := d.Group("g4"); g4.Name != "Recruiting 2026" || len(d.Groups()) != 4 {
		t.Errorf("upsert: %+v, %d groups", g4, len(d.Groups()))
	}

	before := d.Groups()
	sock.push(EventRemovedFromGroup, map[string]any{"groupId": "g2"})
	sock.push(EventGroupDeleted, map[string]any{"groupId": "g3"})
	sock.push(EventGroupDeleted, map[string]any{"groupId": "unknown"})

	var ids []string
	for _, g := range d.Groups() {
		ids = append(ids, g.ID)
	}
	if !equalStrings(ids, []string{"g1", "g4"}) {
		t.Errorf("groups = %v", ids)
	}
	if len(before) != 4 {
		t.Error("earlier snapshot changed")
	}
}

func TestDirectoryResyncOnBroadcast(t *testing.T) {
	p, sock, _ := newTestProvider(t, "u1", WithGroupResync(true))
	d := p.Directory()

	fetched := make(chan struct{}, 4)
	sock.respond(EventRequestUserGroups, func(any) any {
		fetched <- struct{}{}
		return []map[string]any{{"_id": "g8", "name": "Server view", "members": []string{"u1"}}}
	})

	sock.push(EventAddedToGroup, map[string]any{"_id": "g8", "name": "Local view", "members": []string{"u1"}})
	testutil.RequireReceive(t, fetched, 5*time.Second, "waiting for group resync")

	deadline := time.Now().Add(5 * time.Second)
	for {
		if g, ok := d.Group("g8"); ok && g.Name == "Server view" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("groups = %+v", d.Groups())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDirectoryResyncCoalesces(t *testing.T) {
	p, sock, _ := newTestProvider(t, "u1", WithGroupResync(true))

	started := make(chan struct{}, 8)
	release := make(chan struct{})
	sock.respond(EventRequestUserGroups, func(any) any {
		started <- struct{}{}
		<-release
		return []map[string]any{{"_id": "g1", "name": "Ops", "members": []string{"u1"}}}
	})

	sock.push(EventGroupDeleted, map[string]any{"groupId": "gx"})
	testutil.RequireReceive(t, started, 5*time.Second, "waiting for the first resync")

	// A burst while the first resync is in flight joins it.
	for range 5 {
		sock.push(EventGroupMembersUpdated, map[string]any{"groupId": "gx", "members": []string{"u2"}})
	}
	time.Sleep(50 * time.Millisecond)
	close(release)

	testutil.RequireNoReceive(t, started, 200*time.Millisecond, "burst started another resync")
	if n := len(sock.sent(EventRequestUserGroups)); n != 1 {
		t.Errorf("requestUserGroups sent %d times, want 1", n)
	}
	if _, ok := p.Directory().Group("g1"); !ok {
		t.Errorf("groups = %+v", p.Directory().Groups())
	}
}
