package portal

import (
	"context"
	"errors"
	"testing"
)

func TestGroupsCreate(t *testing.T) {
	p, sock, _ := newTestProvider(t, "u1")

	sock.respond(EventCreateGroup, func(data any) any {
		var req createGroupRequest
		as(t, data, &req)
		return map[string]any{"success": true, "group": map[string]any{
			"_id": "g1", "name": req.Name, "members": req.Members, "creator": req.Creator,
		}}
	})

	g, err := p.Groups().Create(context.Background(), "Payroll", []string{"u2", "u2", "u3"})
	if err != nil {
		t.Fatal(err)
	}
	if g.ID != "g1" || g.Creator != "u1" || !g.HasMember("u1") || len(g.Members) != 3 {
		t.Errorf("group = %+v", g)
	}
	if _, ok := p.Directory().Group("g1"); !ok {
		t.Error("created group missing from directory")
	}

	t.Run("invalid", func(t *testing.T) {
		if _, err := p.Groups().Create(context.Background(), "", nil); !errors.Is(err, ErrInvalidGroup) {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("server failure", func(t *testing.T) {
		sock.reply(EventCreateGroup, map[string]any{"success": false, "error": "name taken"})
		if _, err := p.Groups().Create(context.Background(), "Payroll", nil); err == nil || err.Error() != "name taken" {
			t.Errorf("error = %v", err)
		}
		sock.reply(EventCreateGroup, map[string]any{"success": true})
		if _, err := p.Groups().Create(context.Background(), "Payroll", nil); err == nil || err.Error() != "failed to create group" {
			t.Errorf("missing group error = %v", err)
		}
	})
}

func TestGroupsCreatorGuard(t *testing.T) {
	p, sock, _ := newTestProvider(t, "u1")
	seedGroups(t, sock, p.Directory())
	emits := sock.emitCount()

	groups := p.Groups()
	if err := groups.AddMembers(context.Background(), "g2", []string{"u9"}); !errors.Is(err, ErrNotGroupCreator) {
		t.Errorf("AddMembers = %v", err)
	}
	if err := groups.RemoveMember(context.Background(), "g2", "u3"); !errors.Is(err, ErrNotGroupCreator) {
		t.Errorf("RemoveMember = %v", err)
	}
	if err := groups.Delete(context.Background(), "g2"); !errors.Is(err, ErrNotGroupCreator) {
		t.Errorf("Delete = %v", err)
	}
	if sock.emitCount() != emits {
		t.Error("guarded operations reached the socket")
	}

	// Groups without a creator are left to the server.
	sock.reply(EventAddGroupMembers, map[string]any{"success": true})
	if err := groups.AddMembers(context.Background(), "g3", []string{"u9"}); err != nil {
		t.Errorf("legacy group AddMembers = %v", err)
	}
}

func TestGroupsMembership(t *testing.T) {
	p, sock, _ := newTestProvider(t, "u1")
	d := p.Directory()
	seedGroups(t, sock, d)
	groups := p.Groups()

	sock.reply(EventAddGroupMembers, map[string]any{"success": true})
	sock.reply(EventRemoveGroupMember, map[string]any{"success": true})
	sock.reply(EventDeleteGroup, map[string]any{"success": true})

	if err := groups.AddMembers(context.Background(), "g1", []string{"u2", "u6"}); err != nil {
		t.Fatal(err)
	}
	var add addMembersRequest
	as(t, sock.sent(EventAddGroupMembers)[0].data, &add)
	if add.GroupID != "g1" || add.UserID != "u1" {
		t.Errorf("add request = %+v", add)
	}
	g, _ := d.Group("g1")
	if want := []string{"u1", "u2", "u6"}; !equalStrings(sortedMembers(g), want) {
		t.Errorf("members = %v, want %v", sortedMembers(g), want)
	}

	if err := groups.RemoveMember(context.Background(), "g1", "u2"); err != nil {
		t.Fatal(err)
	}
	g, _ = d.Group("g1")
	if g.HasMember("u2") {
		t.Errorf("u2 still in %v", g.Members)
	}
	if err := groups.RemoveMember(context.Background(), "g1", "u1"); !errors.Is(err, ErrInvalidGroup) {
		t.Errorf("removing the creator = %v", err)
	}

	if err := groups.Delete(context.Background(), "g1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := d.Group("g1"); ok {
		t.Error("deleted group still listed")
	}

	t.Run("server failure keeps state", func(t *testing.T) {
		sock.reply(EventDeleteGroup, map[string]any{"success": false})
		err := groups.Delete(context.Background(), "g3")
		if err == nil || err.Error() != "failed to delete group" {
			t.Fatalf("error = %v", err)
		}
		if _, ok := d.Group("g3"); !ok {
			t.Error("g3 dropped after a failed delete")
		}
	})
}
