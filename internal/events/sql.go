package events

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chandiniv1/secret-number-game/internal/game"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type sqlLog struct{ db *sql.DB }

// NewSQLLog returns a Log over the events table of a migrated database.
func NewSQLLog(db *sql.DB) Log { return &sqlLog{db: db} }

func (l *sqlLog) Append(ctx context.Context, e game.Event) (Event, error) {
	correct := 0
	if e.Correct {
		correct = 1
	}
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO events(kind, round, player, request_id, total_guesses, correct, at)
		 VALUES(?,?,?,?,?,?,?)`,
		string(e.Kind), e.Round, e.Player, string(e.RequestID), e.TotalGuesses, correct,
		e.At.UTC().Format(timeLayout),
	)
	if err != nil {
		return Event{}, fmt.Errorf("append event: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return Event{}, fmt.Errorf("append event: %w", err)
	}
	return Event{Seq: seq, Event: e}, nil
}

func (l *sqlLog) List(ctx context.Context, since int64, limit int) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT seq, kind, round, player, request_id, total_guesses, correct, at
		 FROM events
		 WHERE seq > ?
		 ORDER BY seq ASC
		 LIMIT ?`, since, clampLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var (
			ev      Event
			kind    string
			reqID   string
			correct int
			at      string
		)
		if err := rows.Scan(&ev.Seq, &kind, &ev.Round, &ev.Player, &reqID, &ev.TotalGuesses, &correct, &at); err != nil {
			return nil, err
		}
		ev.Kind = game.EventKind(kind)
		ev.RequestID = game.RequestID(reqID)
		ev.Correct = correct != 0
		if ev.At, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("event %d: %w", ev.Seq, err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
