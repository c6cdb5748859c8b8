package portal

import (
	"context"
	"log/slog"
)

// Groups runs the group lifecycle round trips. Each successful call is
// reflected in the Directory at once; the server's broadcasts to the
// other members arrive through the Directory's push handlers.
//
// Only a group's creator may change its membership or delete it. The
// check here is a courtesy; the server enforces it.
type Groups struct {
	self      string
	session   *Session
	directory *Directory
	logger    *slog.Logger
}

type createGroupRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
	Creator string   `json:"creator"`
}

type addMembersRequest struct {
	GroupID string   `json:"groupId"`
	Members []string `json:"members"`
	UserID  string   `json:"userId"`
}

type removeMemberRequest struct {
	GroupID  string `json:"groupId"`
	MemberID string `json:"memberId"`
	UserID   string `json:"userId"`
}

type deleteGroupRequest struct {
	GroupID string `json:"groupId"`
	UserID  string `json:"userId"`
}

// Create makes a group owned by the current user with the given
// members. The current user is always added.
func (g *Groups) Create(ctx context.Context, name string, members []string) (Group, error) {
	if name == "" {
		return Group{}, ErrInvalidGroup
	}
	ids := make([]any, 0, len(members)+1)
	for _, m := range members {
		ids = append(ids, m)
	}
	ids = append(ids, g.self)
	req := createGroupRequest{Name: name, Members: idList(ids), Creator: g.self}

	wire, err := RequestField[*wireGroup](ctx, g.session, EventCreateGroup, req, "group")
	if err != nil {
		return Group{}, err
	}
	if wire == nil {
		return Group{}, &ServerError{Op: EventCreateGroup}
	}
	created := normalizeGroup(*wire)
	if created.ID == "" {
		return Group{}, &ServerError{Op: EventCreateGroup}
	}
	g.directory.upsertGroup(created)
	g.logger.Info("group created", "group", created.ID, "members", len(created.Members))
	return created, nil
}

// AddMembers adds members to a group the current user created.
func (g *Groups) AddMembers(ctx context.Context, groupID string, members []string) error {
	if groupID == "" || len(members) == 0 {
		return ErrInvalidGroup
	}
	if err := g.guard(groupID); err != nil {
		return err
	}
	err := g.session.callStatus(ctx, EventAddGroupMembers,
		addMembersRequest{GroupID: groupID, Members: members, UserID: g.self})
	if err != nil {
		return err
	}
	g.directory.mergeMembers(groupID, members, nil)
	return nil
}

// RemoveMember removes memberID from a group the current user created.
// The creator cannot be removed.
func (g *Groups) RemoveMember(ctx context.Context, groupID, memberID string) error {
	if groupID == "" || memberID == "" {
		return ErrInvalidGroup
	}
	if err := g.guard(groupID); err != nil {
		return err
	}
	if known, ok := g.directory.Group(groupID); ok && known.Creator == memberID {
		return ErrInvalidGroup
	}
	err := g.session.callStatus(ctx, EventRemoveGroupMember,
		removeMemberRequest{GroupID: groupID, MemberID: memberID, UserID: g.self})
	if err != nil {
		return err
	}
	if memberID == g.self {
		g.directory.dropGroup(groupID)
		return nil
	}
	g.directory.mergeMembers(groupID, nil, []string{memberID})
	return nil
}

// Delete deletes a group the current user created.
func (g *Groups) Delete(ctx context.Context, groupID string) error {
	if groupID == "" {
		return ErrInvalidGroup
	}
	if err := g.guard(groupID); err != nil {
		return err
	}
	err := g.session.callStatus(ctx, EventDeleteGroup,
		deleteGroupRequest{GroupID: groupID, UserID: g.self})
	if err != nil {
		return err
	}
	g.directory.dropGroup(groupID)
	g.logger.Info("group deleted", "group", groupID)
	return nil
}

// guard rejects changes to a known group by anyone but its creator.
// Unknown groups are left to the server.
func (g *Groups) guard(groupID string) error {
	if known, ok := g.directory.Group(groupID); ok && !known.CanManage(g.self) {
		return ErrNotGroupCreator
	}
	return nil
}
