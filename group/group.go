// Package group implements the NIP-29-style moderated group state machine:
// membership, admin roles, invites, and timeline linkage layered atop the
// generic event flow. It follows the teacher's database/query idiom
// (*sqlx.DB, struct scanning) and reaches for
// puzpuzpuz/xsync, already a teacher dependency via dvm, for the
// membership/existence caches the spec requires to be invalidated on every
// write.
package group

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	"github.com/nbd-wtf/go-nostr"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/subzero-relay/subzero/model"
	"github.com/subzero-relay/subzero/store"
)

// Group event kinds, per the NIP-29-style state machine.
const (
	KindJoinRequest  = 9021
	KindLeaveRequest = 9022

	KindPutUser      = 9000
	KindRemoveUser   = 9001
	KindEditMetadata = 9002
	KindDeleteEvent  = 9005
	KindCreateGroup  = 9007
	KindDeleteGroup  = 9008
	KindCreateInvite = 9009

	KindMetaGroup   = 39000
	KindMetaAdmins  = 39001
	KindMetaMembers = 39002
	KindMetaRoles   = 39003

	moderationKindMin = 9000
	moderationKindMax = 9020
)

// actionRoles maps a moderation kind to the admin role required to submit
// it; kinds in the moderation range with no explicit entry default to
// "admin" (relay kernel invariant: any non-admin 9000-9020 submission is
// rejected).
var actionRoles = map[int]string{
	KindPutUser:      "admin",
	KindRemoveUser:   "admin",
	KindEditMetadata: "admin",
	KindCreateGroup:  "admin",
	KindDeleteGroup:  "admin",
	KindCreateInvite: "admin",
	KindDeleteEvent:  "moderator",
}

var (
	ErrGroupNotFound    = errors.New("group does not exist")
	ErrNotMember        = errors.New("not a member of this group")
	ErrAlreadyMember    = errors.New("already a member of this group")
	ErrGroupClosed      = errors.New("Group is closed and no valid invite code provided")
	ErrInsufficientRole = errors.New("insufficient role for this action")
	ErrNotRelay         = errors.New("only the relay may publish this kind")
	ErrUnknownPrevious  = errors.New("unknown previous event reference")
	ErrInviteNotFound   = errors.New("invite code not found")
)

//go:embed ddl.sql
var ddl string

type groupRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Picture   string `db:"picture"`
	About     string `db:"about"`
	Public    bool   `db:"public"`
	Open      bool   `db:"open"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

// Module is the group state machine. It persists synthesized relay-authored
// events (9000/9001) through the injected store so they are visible to
// ordinary REQ queries, and reports them to Broadcast (if set) so the
// dispatcher can fan them out the same way a client-submitted event is.
type Module struct {
	db          *sqlx.DB
	store       store.Store
	relayPubKey string
	relaySecKey string

	Broadcast func(*model.Event)

	existsCache *xsync.MapOf[string, bool]
	memberCache *xsync.MapOf[string, bool]
}

func New(db *sqlx.DB, s store.Store, relaySecKey string) (*Module, error) {
	pub, err := nostr.GetPublicKey(relaySecKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive relay pubkey")
	}

	return &Module{
		db:          db,
		store:       s,
		relayPubKey: pub,
		relaySecKey: relaySecKey,
		existsCache: xsync.NewMapOf[string, bool](),
		memberCache: xsync.NewMapOf[string, bool](),
	}, nil
}

func (m *Module) Init(ctx context.Context) error {
	for _, statement := range strings.Split(ddl, "--------") {
		if _, err := m.db.ExecContext(ctx, statement); err != nil {
			return errors.Wrap(err, "failed to apply group schema")
		}
	}

	return nil
}

func memberKey(groupID, pubkey string) string { return groupID + "|" + pubkey }

func (m *Module) invalidateGroup(groupID string) {
	m.existsCache.Delete(groupID)
}

func (m *Module) invalidateMember(groupID, pubkey string) {
	m.memberCache.Delete(memberKey(groupID, pubkey))
}

func (m *Module) groupExists(ctx context.Context, groupID string) (bool, error) {
	if v, ok := m.existsCache.Load(groupID); ok {
		return v, nil
	}

	var n int
	if err := m.db.GetContext(ctx, &n, `select count(1) from groups where id = ?`, groupID); err != nil {
		return false, errors.Wrap(err, "failed to check group existence")
	}
	exists := n > 0
	m.existsCache.Store(groupID, exists)

	return exists, nil
}

func (m *Module) getGroup(ctx context.Context, groupID string) (*groupRow, error) {
	var g groupRow
	if err := m.db.GetContext(ctx, &g, `select id, name, picture, about, public, open, created_at, updated_at from groups where id = ?`, groupID); err != nil {
		return nil, errors.Wrap(ErrGroupNotFound, err.Error())
	}

	return &g, nil
}

func (m *Module) isMember(ctx context.Context, groupID, pubkey string) (bool, error) {
	key := memberKey(groupID, pubkey)
	if v, ok := m.memberCache.Load(key); ok {
		return v, nil
	}

	var n int
	if err := m.db.GetContext(ctx, &n, `select count(1) from group_members where group_id = ? and pubkey = ?`, groupID, pubkey); err != nil {
		return false, errors.Wrap(err, "failed to check membership")
	}
	member := n > 0
	m.memberCache.Store(key, member)

	return member, nil
}

func (m *Module) adminRoles(ctx context.Context, groupID, pubkey string) ([]string, error) {
	var roles string
	err := m.db.GetContext(ctx, &roles, `select roles from group_admins where group_id = ? and pubkey = ?`, groupID, pubkey)
	if err != nil {
		return nil, nil //nolint:nilerr // absence of an admin row just means no roles
	}
	if roles == "" {
		return nil, nil
	}

	return strings.Split(roles, ","), nil
}

func (m *Module) timelineRefExists(ctx context.Context, groupID, refHash string) (bool, error) {
	var n int
	if err := m.db.GetContext(ctx, &n, `select count(1) from group_timeline_refs where group_id = ? and ref_hash = ?`, groupID, refHash); err != nil {
		return false, errors.Wrap(err, "failed to check timeline reference")
	}

	return n > 0, nil
}

func (m *Module) recordTimelineRef(ctx context.Context, groupID, eventID string) error {
	const refHashLen = 8
	refHash := eventID
	if len(refHash) > refHashLen {
		refHash = refHash[:refHashLen]
	}
	_, err := m.db.ExecContext(ctx, `insert into group_timeline_refs (group_id, event_id, ref_hash, created_at) values (?, ?, ?, ?)`,
		groupID, eventID, refHash, time.Now().Unix())

	return errors.Wrap(err, "failed to record timeline reference")
}

// IsGroupEvent reports whether event is part of the group state machine:
// either h-tagged, or an addressable relay metadata kind keyed by "d".
func IsGroupEvent(event *model.Event) bool {
	if event.HasTag("h") {
		return true
	}

	return event.Kind >= KindMetaGroup && event.Kind <= KindMetaRoles
}

// RejectEvent is the pre-store rejection handler: every authorization
// decision (group existence, membership, role requirement, invite
// validity, previous-tag linkage) is made here, before the event reaches
// the store chain, so a rejected action never lands in the event log.
// Store (called afterward) repeats the role, membership and invite checks
// before applying its side effects.
func (m *Module) RejectEvent(ctx context.Context, event *model.Event) (bool, string) {
	if event.Kind >= KindMetaGroup && event.Kind <= KindMetaRoles {
		if event.PubKey != m.relayPubKey {
			return true, ErrNotRelay.Error()
		}

		return false, ""
	}

	hTag := event.GetTag("h")
	if hTag == nil {
		return false, ""
	}
	groupID := hTag.Value()

	if event.Kind == KindCreateGroup {
		if err := m.requireRole(ctx, groupID, event); err != nil {
			return true, err.Error()
		}

		return false, ""
	}

	exists, err := m.groupExists(ctx, groupID)
	if err != nil {
		return true, "internal error"
	}
	if !exists {
		return true, ErrGroupNotFound.Error()
	}

	switch {
	case event.Kind == KindJoinRequest:
		return m.rejectJoin(ctx, groupID, event)
	case event.Kind == KindLeaveRequest:
		return false, ""
	case event.Kind >= moderationKindMin && event.Kind <= moderationKindMax:
		if err := m.requireRole(ctx, groupID, event); err != nil {
			return true, err.Error()
		}

		return false, ""
	default:
		return m.rejectGroupMessage(ctx, groupID, event)
	}
}

func (m *Module) rejectJoin(ctx context.Context, groupID string, event *model.Event) (bool, string) {
	member, err := m.isMember(ctx, groupID, event.PubKey)
	if err != nil {
		return true, "internal error"
	}
	if member {
		return true, ErrAlreadyMember.Error()
	}

	g, err := m.getGroup(ctx, groupID)
	if err != nil {
		return true, "internal error"
	}
	if g.Open {
		return false, ""
	}

	code := event.GetTag("code")
	if code == nil || code.Value() == "" {
		return true, ErrGroupClosed.Error()
	}
	valid, err := m.inviteValid(ctx, groupID, code.Value())
	if err != nil {
		return true, "internal error"
	}
	if !valid {
		return true, ErrGroupClosed.Error()
	}

	return false, ""
}

func (m *Module) rejectGroupMessage(ctx context.Context, groupID string, event *model.Event) (bool, string) {
	g, err := m.getGroup(ctx, groupID)
	if err != nil {
		return true, "internal error"
	}

	if !g.Public && event.PubKey != m.relayPubKey {
		member, err := m.isMember(ctx, groupID, event.PubKey)
		if err != nil {
			return true, "internal error"
		}
		if !member {
			return true, ErrNotMember.Error()
		}
	}

	for _, prev := range event.GetTagValues("previous") {
		ok, err := m.timelineRefExists(ctx, groupID, prev)
		if err != nil {
			return true, "internal error"
		}
		if !ok {
			return true, ErrUnknownPrevious.Error()
		}
	}

	return false, ""
}

// inviteValid reports whether code still has uses remaining, without
// consuming one. Store's handleJoin performs the atomic consume.
func (m *Module) inviteValid(ctx context.Context, groupID, code string) (bool, error) {
	var maxUses, usedCount int
	err := m.db.QueryRowContext(ctx, `select max_uses, used_count from group_invites where group_id = ? and code = ?`, groupID, code).
		Scan(&maxUses, &usedCount)
	if err != nil {
		return false, nil //nolint:nilerr // no such invite: caller reports the generic "closed" reason
	}

	return usedCount < maxUses, nil
}

// IsGroupManagementKind reports whether kind is handled by Store rather
// than being a plain h-tagged group message.
func IsGroupManagementKind(kind int) bool {
	switch {
	case kind == KindJoinRequest || kind == KindLeaveRequest:
		return true
	case kind >= moderationKindMin && kind <= moderationKindMax:
		return true
	case kind >= KindMetaGroup && kind <= KindMetaRoles:
		return true
	default:
		return false
	}
}

// Store intercepts group-management kinds; any other h-tagged event (e.g.
// ordinary group chat messages) returns accepted=false, nil so the regular
// store chain persists it after RejectEvent has already authorized it.
// Relay-authored metadata kinds (39000-39003) are addressable events keyed
// by the "d" tag rather than "h", per NIP-33 convention.
func (m *Module) Store(ctx context.Context, event *model.Event) (bool, error) {
	var groupID string
	if event.Kind >= KindMetaGroup && event.Kind <= KindMetaRoles {
		groupID = event.Tags.GetD()
	} else if hTag := event.GetTag("h"); hTag != nil {
		groupID = hTag.Value()
	}
	if groupID == "" {
		return false, nil
	}

	switch {
	case event.Kind == KindJoinRequest:
		return m.handleJoin(ctx, groupID, event)
	case event.Kind == KindLeaveRequest:
		return m.handleLeave(ctx, groupID, event)
	case event.Kind >= moderationKindMin && event.Kind <= moderationKindMax:
		return m.handleModeration(ctx, groupID, event)
	case event.Kind >= KindMetaGroup && event.Kind <= KindMetaRoles:
		return m.handleMeta(ctx, groupID, event)
	default:
		if err := m.recordTimelineRef(ctx, groupID, event.ID); err != nil {
			return false, err
		}

		return false, nil
	}
}

func (m *Module) requireRole(ctx context.Context, groupID string, event *model.Event) error {
	if event.PubKey == m.relayPubKey {
		return nil
	}

	required, ok := actionRoles[event.Kind]
	if !ok {
		required = "admin"
	}

	roles, err := m.adminRoles(ctx, groupID, event.PubKey)
	if err != nil {
		return errors.Wrap(err, "internal error")
	}
	for _, r := range roles {
		if r == required {
			return nil
		}
	}

	return ErrInsufficientRole
}

func (m *Module) handleJoin(ctx context.Context, groupID string, event *model.Event) (bool, error) {
	member, err := m.isMember(ctx, groupID, event.PubKey)
	if err != nil {
		return false, err
	}
	if member {
		return false, ErrAlreadyMember
	}

	g, err := m.getGroup(ctx, groupID)
	if err != nil {
		return false, err
	}

	if !g.Open {
		code := event.GetTag("code")
		if code == nil || code.Value() == "" {
			return false, ErrGroupClosed
		}
		if ok, err := m.consumeInvite(ctx, groupID, code.Value()); err != nil {
			return false, err
		} else if !ok {
			return false, ErrGroupClosed
		}
	}

	if _, err = m.db.ExecContext(ctx, `insert into group_members (group_id, pubkey, joined_at) values (?, ?, ?)`,
		groupID, event.PubKey, time.Now().Unix()); err != nil {
		return false, errors.Wrap(err, "failed to insert group member")
	}
	m.invalidateMember(groupID, event.PubKey)

	return true, m.synthesize(ctx, groupID, KindPutUser, [][]string{{"p", event.PubKey}})
}

func (m *Module) handleLeave(ctx context.Context, groupID string, event *model.Event) (bool, error) {
	if _, err := m.db.ExecContext(ctx, `delete from group_members where group_id = ? and pubkey = ?`, groupID, event.PubKey); err != nil {
		return false, errors.Wrap(err, "failed to remove group member")
	}
	if _, err := m.db.ExecContext(ctx, `delete from group_admins where group_id = ? and pubkey = ?`, groupID, event.PubKey); err != nil {
		return false, errors.Wrap(err, "failed to remove group admin record")
	}
	m.invalidateMember(groupID, event.PubKey)

	return true, m.synthesize(ctx, groupID, KindRemoveUser, [][]string{{"p", event.PubKey}})
}

func (m *Module) consumeInvite(ctx context.Context, groupID, code string) (bool, error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "failed to begin invite transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	var maxUses, usedCount int
	err = tx.QueryRowContext(ctx, `select max_uses, used_count from group_invites where group_id = ? and code = ?`, groupID, code).
		Scan(&maxUses, &usedCount)
	if err != nil {
		return false, nil //nolint:nilerr // no such invite: caller reports the generic "closed" reason
	}
	if usedCount >= maxUses {
		return false, nil
	}

	if _, err = tx.ExecContext(ctx, `update group_invites set used_count = used_count + 1 where group_id = ? and code = ?`, groupID, code); err != nil {
		return false, errors.Wrap(err, "failed to account invite use")
	}

	return true, errors.Wrap(tx.Commit(), "failed to commit invite transaction")
}

func (m *Module) handleModeration(ctx context.Context, groupID string, event *model.Event) (bool, error) {
	if err := m.requireRole(ctx, groupID, event); err != nil {
		return false, err
	}

	switch event.Kind {
	case KindPutUser:
		return m.putUser(ctx, groupID, event)
	case KindRemoveUser:
		return m.removeUser(ctx, groupID, event)
	case KindEditMetadata:
		return m.editMetadata(ctx, groupID, event)
	case KindDeleteEvent:
		return m.deleteEvent(ctx, event)
	case KindCreateGroup:
		return m.createGroup(ctx, groupID, event)
	case KindDeleteGroup:
		return m.deleteGroup(ctx, groupID)
	case KindCreateInvite:
		return m.createInvite(ctx, groupID, event)
	default:
		return false, nil
	}
}

func (m *Module) putUser(ctx context.Context, groupID string, event *model.Event) (bool, error) {
	for _, p := range event.GetTagValues("p") {
		if _, err := m.db.ExecContext(ctx, `insert or ignore into group_members (group_id, pubkey, joined_at) values (?, ?, ?)`,
			groupID, p, time.Now().Unix()); err != nil {
			return false, errors.Wrap(err, "failed to put group member")
		}
		m.invalidateMember(groupID, p)
	}

	roles := event.GetTagValues("role")
	if len(roles) > 0 {
		for _, p := range event.GetTagValues("p") {
			if _, err := m.db.ExecContext(ctx, `insert or replace into group_admins (group_id, pubkey, roles) values (?, ?, ?)`,
				groupID, p, strings.Join(roles, ",")); err != nil {
				return false, errors.Wrap(err, "failed to set admin roles")
			}
		}
	}

	return true, nil
}

func (m *Module) removeUser(ctx context.Context, groupID string, event *model.Event) (bool, error) {
	for _, p := range event.GetTagValues("p") {
		if _, err := m.db.ExecContext(ctx, `delete from group_members where group_id = ? and pubkey = ?`, groupID, p); err != nil {
			return false, errors.Wrap(err, "failed to remove group member")
		}
		if _, err := m.db.ExecContext(ctx, `delete from group_admins where group_id = ? and pubkey = ?`, groupID, p); err != nil {
			return false, errors.Wrap(err, "failed to remove group admin record")
		}
		m.invalidateMember(groupID, p)
	}

	return true, nil
}

func (m *Module) editMetadata(ctx context.Context, groupID string, event *model.Event) (bool, error) {
	name, picture, about := metadataFromTags(event)
	if _, err := m.db.ExecContext(ctx, `update groups set name = coalesce(nullif(?, ''), name), picture = coalesce(nullif(?, ''), picture), about = coalesce(nullif(?, ''), about), updated_at = ? where id = ?`,
		name, picture, about, time.Now().Unix(), groupID); err != nil {
		return false, errors.Wrap(err, "failed to edit group metadata")
	}

	return true, nil
}

func metadataFromTags(event *model.Event) (name, picture, about string) {
	if t := event.GetTag("name"); t != nil {
		name = t.Value()
	}
	if t := event.GetTag("picture"); t != nil {
		picture = t.Value()
	}
	if t := event.GetTag("about"); t != nil {
		about = t.Value()
	}

	return
}

// deleteEvent invokes the delete chain for the referenced event id, scoped
// to the publisher of the 9005 request itself (the moderator), per the
// kind's definition -- it is not a blanket bypass of store ownership.
func (m *Module) deleteEvent(ctx context.Context, event *model.Event) (bool, error) {
	eTag := event.GetTag("e")
	if eTag == nil {
		return false, errors.New("missing e tag for delete-event")
	}

	idFilter := &model.Subscription{Filters: model.Filters{{IDs: []string{eTag.Value()}}}}
	_, err := m.store.Delete(ctx, idFilter, event.PubKey)

	return true, err
}

func (m *Module) createGroup(ctx context.Context, groupID string, event *model.Event) (bool, error) {
	public := event.HasTag("public")
	open := event.HasTag("open")
	now := time.Now().Unix()

	if _, err := m.db.ExecContext(ctx, `insert or replace into groups (id, name, picture, about, public, open, created_at, updated_at) values (?, '', '', '', ?, ?, ?, ?)`,
		groupID, public, open, now, now); err != nil {
		return false, errors.Wrap(err, "failed to create group")
	}
	m.invalidateGroup(groupID)

	return true, nil
}

func (m *Module) deleteGroup(ctx context.Context, groupID string) (bool, error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "failed to begin delete-group transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"group_members", "group_admins", "group_roles", "group_invites", "group_timeline_refs", "groups"} {
		col := "group_id"
		if table == "groups" {
			col = "id"
		}
		if _, err = tx.ExecContext(ctx, fmt.Sprintf(`delete from %s where %s = ?`, table, col), groupID); err != nil {
			return false, errors.Wrapf(err, "failed to cascade-delete %s", table)
		}
	}

	if err = tx.Commit(); err != nil {
		return false, errors.Wrap(err, "failed to commit delete-group transaction")
	}
	m.invalidateGroup(groupID)

	return true, nil
}

func (m *Module) createInvite(ctx context.Context, groupID string, event *model.Event) (bool, error) {
	code := "default"
	if t := event.GetTag("code"); t != nil && t.Value() != "" {
		code = t.Value()
	}
	maxUses := 1
	if t := event.GetTag("max_uses"); t != nil {
		fmt.Sscanf(t.Value(), "%d", &maxUses) //nolint:errcheck
	}
	var expiresAt int64
	if t := event.GetTag("expires_at"); t != nil {
		fmt.Sscanf(t.Value(), "%d", &expiresAt) //nolint:errcheck
	}

	if _, err := m.db.ExecContext(ctx, `insert or replace into group_invites (group_id, code, creator_pubkey, created_at, expires_at, max_uses, used_count) values (?, ?, ?, ?, ?, ?, 0)`,
		groupID, code, event.PubKey, time.Now().Unix(), expiresAt, maxUses); err != nil {
		return false, errors.Wrap(err, "failed to create invite")
	}

	return true, nil
}

// handleMeta applies relay-authored metadata kinds (39000..39003). Only the
// relay's own pubkey may publish these regardless of admin role.
func (m *Module) handleMeta(ctx context.Context, groupID string, event *model.Event) (bool, error) {
	if event.PubKey != m.relayPubKey {
		return false, ErrNotRelay
	}

	switch event.Kind {
	case KindMetaGroup:
		name, picture, about := metadataFromTags(event)
		public := event.HasTag("public")
		open := event.HasTag("open")
		if _, err := m.db.ExecContext(ctx, `insert or replace into groups (id, name, picture, about, public, open, created_at, updated_at)
			values (?, ?, ?, ?, ?, ?, coalesce((select created_at from groups where id = ?), ?), ?)`,
			groupID, name, picture, about, public, open, groupID, time.Now().Unix(), time.Now().Unix()); err != nil {
			return false, errors.Wrap(err, "failed to replace group metadata")
		}
		m.invalidateGroup(groupID)
	case KindMetaAdmins:
		if _, err := m.db.ExecContext(ctx, `delete from group_admins where group_id = ?`, groupID); err != nil {
			return false, errors.Wrap(err, "failed to clear group admins")
		}
		for _, p := range event.GetTagValues("p") {
			if _, err := m.db.ExecContext(ctx, `insert into group_admins (group_id, pubkey, roles) values (?, ?, '')`, groupID, p); err != nil {
				return false, errors.Wrap(err, "failed to replace group admins")
			}
		}
	case KindMetaMembers:
		if _, err := m.db.ExecContext(ctx, `delete from group_members where group_id = ?`, groupID); err != nil {
			return false, errors.Wrap(err, "failed to clear group members")
		}
		for _, p := range event.GetTagValues("p") {
			if _, err := m.db.ExecContext(ctx, `insert into group_members (group_id, pubkey, joined_at) values (?, ?, ?)`, groupID, p, time.Now().Unix()); err != nil {
				return false, errors.Wrap(err, "failed to replace group members")
			}
		}
		m.memberCache.Clear()
	case KindMetaRoles:
		if _, err := m.db.ExecContext(ctx, `delete from group_roles where group_id = ?`, groupID); err != nil {
			return false, errors.Wrap(err, "failed to clear group roles")
		}
		for _, t := range event.Tags {
			if t.Key() != "role" || len(t) < 2 {
				continue
			}
			desc := ""
			if len(t) >= 3 {
				desc = t[2]
			}
			if _, err := m.db.ExecContext(ctx, `insert into group_roles (group_id, role_name, description) values (?, ?, ?)`, groupID, t[1], desc); err != nil {
				return false, errors.Wrap(err, "failed to replace group roles")
			}
		}
	}

	return true, nil
}

// synthesize builds, signs with the relay's key, persists, and broadcasts a
// relay-authored event, per the teacher's NIP-29 example -- corrected here
// to use real secp256k1 Schnorr signing instead of the HMAC/SHA-256
// stand-ins the original used.
func (m *Module) synthesize(ctx context.Context, groupID string, kind int, extraTags [][]string) error {
	ev := &model.Event{Event: nostr.Event{
		PubKey:    m.relayPubKey,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      kind,
		Tags:      nostr.Tags{nostr.Tag{"h", groupID}},
	}}
	for _, t := range extraTags {
		ev.Tags = append(ev.Tags, nostr.Tag(t))
	}

	if err := ev.Sign(m.relaySecKey); err != nil {
		return errors.Wrap(err, "failed to sign synthesized group event")
	}

	if _, err := m.store.Store(ctx, ev); err != nil {
		return errors.Wrap(err, "failed to store synthesized group event")
	}

	if m.Broadcast != nil {
		m.Broadcast(ev)
	}

	return nil
}
