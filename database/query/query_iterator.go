// SPDX-License-Identifier: ice License 1.0

package query

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"

	"github.com/subzero-relay/subzero/model"
)

// keysetPivot is the (created_at, id) cursor used to page through results
// ordered by created_at desc, id asc without re-scanning earlier pages --
// system_created_at (pure insertion order) is not reusable as a cursor once
// the result order is the protocol-mandated created_at/id order.
type keysetPivot struct {
	createdAt int64
	id        string
	set       bool
}

type eventIterator struct {
	fetch   func(pivot keysetPivot) (*sqlx.Rows, error)
	oneShot bool
}

func (it *eventIterator) decodeTags(jtags string) (tags model.Tags, err error) {
	if len(jtags) == 0 {
		return
	}

	if err = tags.Scan(jtags); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal tags")
	}

	return tags, nil
}

func (it *eventIterator) scanEvent(rows *sqlx.Rows) (_ *databaseEvent, err error) {
	var ev databaseEvent

	if err := rows.StructScan(&ev); err != nil {
		return nil, errors.Wrap(err, "failed to struct scan")
	}

	if ev.Tags, err = it.decodeTags(ev.Jtags); err != nil {
		return nil, errors.Wrap(err, "failed to decode tags")
	}

	return &ev, nil
}

func (it *eventIterator) scanBatch(ctx context.Context, fn func(*model.Event) error, pivot keysetPivot) (keysetPivot, int, error) {
	rows, err := it.fetch(pivot)
	if err != nil {
		return pivot, 0, errors.Wrap(err, "failed to get events")
	} else if rows == nil {
		return pivot, 0, nil
	}
	defer rows.Close()

	count := 0
	for rows.Next() && ctx.Err() == nil {
		event, err := it.scanEvent(rows)
		if err != nil {
			return pivot, count, errors.Wrap(err, "failed to scan event")
		}

		pivot = keysetPivot{createdAt: int64(event.CreatedAt), id: event.ID, set: true}
		count++

		if err = fn(&event.Event); err != nil {
			return pivot, count, errors.Wrap(err, "failed to process event")
		}
	}

	return pivot, count, nil
}

func (it *eventIterator) Each(ctx context.Context, fn func(*model.Event) error) error {
	var pivot keysetPivot

	for ctx.Err() == nil {
		newPivot, count, err := it.scanBatch(ctx, fn, pivot)
		if err != nil {
			return err
		}

		if count == 0 || it.oneShot {
			return nil
		}

		pivot = newPivot
	}

	return ctx.Err()
}
