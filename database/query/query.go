// SPDX-License-Identifier: ice License 1.0

package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"

	"github.com/subzero-relay/subzero/model"
	"github.com/subzero-relay/subzero/store"
)

const (
	selectDefaultBatchLimit = 100
)

var (
	ErrUnexpectedRowsAffected   = errors.New("unexpected rows affected")
	errEventIteratorInterrupted = errors.New("interrupted")
)

type databaseEvent struct {
	model.Event
	SystemCreatedAt int64
	ReferenceID     sql.NullString
	Jtags           string
}

// Store persists a regular (non-replaceable, non-ephemeral) event. Callers
// are expected to have already routed replaceable/addressable events to
// Replace and ephemeral events around the store entirely.
func (db *SQLiteStore) Store(ctx context.Context, event *model.Event) (bool, error) {
	const stmt = `insert into events
	(kind, created_at, system_created_at, id, pubkey, sig, content, tags, reference_id)
values
	(:kind, :created_at, :system_created_at, :id, :pubkey, :sig, :content, :jtags, :reference_id)`

	jtags, err := json.Marshal(event.Tags)
	if err != nil {
		return false, errors.Wrap(err, "failed to marshal tags")
	}

	dbEvent := databaseEvent{
		Event:           *event,
		SystemCreatedAt: time.Now().UnixNano(),
		Jtags:           string(jtags),
	}

	rowsAffected, err := db.exec(ctx, stmt, dbEvent)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return false, model.ErrDuplicate
		}

		return false, errors.Wrap(err, "failed to exec insert event sql")
	}
	if rowsAffected == 0 {
		return false, ErrUnexpectedRowsAffected
	}

	return true, nil
}

// Replace is the unconditional delete-then-insert half of the
// replaceable/addressable resolver; ordering and atomicity against
// concurrent writers to the same address is the caller's (replace package)
// responsibility via per-address serialization.
func (db *SQLiteStore) Replace(ctx context.Context, event *model.Event) (bool, error) {
	const deleteStmt = `delete from events where kind = :kind and pubkey = :pubkey and d_tag = :d_tag`
	const insertStmt = `insert or replace into events
	(kind, created_at, system_created_at, id, pubkey, sig, content, tags, d_tag, reference_id)
values
	(:kind, :created_at, :system_created_at, :id, :pubkey, :sig, :content, :jtags, :d_tag, :reference_id)`

	jtags, err := json.Marshal(event.Tags)
	if err != nil {
		return false, errors.Wrap(err, "failed to marshal tags")
	}

	dTag := ""
	if d := event.Tags.GetD(); d != "" {
		dTag = d
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "failed to begin replace transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err = tx.NamedExecContext(ctx, deleteStmt, map[string]any{
		"kind": event.Kind, "pubkey": event.PubKey, "d_tag": dTag,
	}); err != nil {
		return false, errors.Wrap(err, "failed to delete superseded events")
	}

	dbEvent := databaseEvent{
		Event:           *event,
		SystemCreatedAt: time.Now().UnixNano(),
		Jtags:           string(jtags),
	}
	dbEvent.Event.Tags = event.Tags

	if _, err = tx.NamedExecContext(ctx, insertStmt, struct {
		databaseEvent
		DTag string `db:"d_tag"`
	}{databaseEvent: dbEvent, DTag: dTag}); err != nil {
		return false, errors.Wrap(err, "failed to insert replacement event")
	}

	if err = tx.Commit(); err != nil {
		return false, errors.Wrap(err, "failed to commit replace transaction")
	}

	return true, nil
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (db *SQLiteStore) Query(ctx context.Context, subscription *model.Subscription) store.EventIterator {
	limit := int64(selectDefaultBatchLimit)
	hasLimitFilter := subscription != nil && len(subscription.Filters) > 0 && subscription.Filters[0].Limit > 0
	if hasLimitFilter {
		limit = int64(subscription.Filters[0].Limit)
	}

	it := &eventIterator{
		oneShot: hasLimitFilter && limit <= selectDefaultBatchLimit,
		fetch: func(pivot keysetPivot) (*sqlx.Rows, error) {
			if limit <= 0 {
				return nil, nil
			}

			sql, params, err := generateSelectEventsSQL(subscription, pivot, min(selectDefaultBatchLimit, limit))
			if err != nil {
				return nil, err
			}

			stmt, err := db.prepare(ctx, sql, hashSQL(sql))
			if err != nil {
				return nil, errors.Wrapf(err, "failed to prepare query sql: %q", sql)
			}

			rows, err := stmt.QueryxContext(ctx, params)
			if err != nil {
				err = errors.Wrapf(err, "failed to query query events sql: %q", sql)
			}

			if hasLimitFilter && err == nil {
				limit -= selectDefaultBatchLimit
			}

			return rows, err
		}}

	return func(yield func(*model.Event, error) bool) {
		err := it.Each(ctx, func(event *model.Event) error {
			if !yield(event, nil) {
				return errEventIteratorInterrupted
			}

			return nil
		})

		if err != nil && !errors.Is(err, errEventIteratorInterrupted) {
			yield(nil, errors.Wrap(err, "failed to iterate events"))
		}
	}
}

func (db *SQLiteStore) Delete(ctx context.Context, subscription *model.Subscription, ownerPubKey string) (bool, error) {
	where, params, err := generateEventsWhereClause(subscription)
	if err != nil {
		return false, errors.Wrap(err, "failed to generate events where clause")
	}

	params["owner_pub_key"] = ownerPubKey
	rowsAffected, err := db.exec(ctx, fmt.Sprintf(`delete from events where %v AND pubkey = :owner_pub_key`, where), params)
	if err != nil {
		return false, errors.Wrap(err, "failed to exec delete events sql")
	}

	return rowsAffected > 0, nil
}

func (db *SQLiteStore) Count(ctx context.Context, subscription *model.Subscription) (count int64, err error) {
	where, params, err := generateEventsWhereClause(subscription)
	if err != nil {
		return -1, errors.Wrap(err, "failed to generate events where clause")
	}

	sql := `select count(id) from events e where ` + where

	stmt, err := db.prepare(ctx, sql, hashSQL(sql))
	if err != nil {
		return -1, errors.Wrapf(err, "failed to prepare query sql: %q", sql)
	}

	err = stmt.GetContext(ctx, &count, params)
	if err != nil {
		err = errors.Wrapf(err, "failed to query events count sql: %q", sql)
	}

	return count, err
}

func generateSelectEventsSQL(subscription *model.Subscription, pivot keysetPivot, limit int64) (sql string, params map[string]any, err error) {
	where, params, err := generateEventsWhereClause(subscription)
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to generate events where clause")
	}

	var pivotFilter string
	if pivot.set {
		pivotFilter = " (created_at < :pivot_created_at OR (created_at = :pivot_created_at AND id > :pivot_id)) AND "
		params["pivot_created_at"] = pivot.createdAt
		params["pivot_id"] = pivot.id
	}

	var limitQuery string
	if limit > 0 {
		params["mainlimit"] = limit
		limitQuery = " limit :mainlimit"
	}

	return `
select
	e.kind,
	e.created_at,
	e.system_created_at,
	e.id,
	e.pubkey,
	e.sig,
	e.content,
	tags as jtags
from
	events e
where ` + pivotFilter + `(` + where + `)
order by
	created_at desc, id asc
` + limitQuery, params, nil
}

func generateEventsWhereClause(subscription *model.Subscription) (clause string, params map[string]any, err error) {
	var filters []model.Filter

	if subscription != nil {
		filters = subscription.Filters
	}

	return newWhereBuilder().Build(filters...)
}
