package model

import (
	"encoding/json"
	"strings"
)

// ChangeOp is the kind of row-level change.
type ChangeOp string

// Change operations delivered by the feed.
const (
	OpInsert ChangeOp = "INSERT"
	OpUpdate ChangeOp = "UPDATE"
)

// Tables with change notifications.
const (
	TableChats    = "chats"
	TableMessages = "messages"
	TablePosts    = "posts"
)

// ChangeEvent is one row-level notification. Record holds the new row as JSON
// and is decoded into a typed record only after boundary validation.
// A Partial record lacks its free-text columns (text, content, media_url)
// because the full row did not fit into a notification.
type ChangeEvent struct {
	Table   string
	Op      ChangeOp
	Record  json.RawMessage
	Partial bool
	fields  map[string]json.RawMessage
}

// NewChangeEvent builds an event and indexes the top-level record fields for filtering.
func NewChangeEvent(table string, op ChangeOp, record json.RawMessage) (ChangeEvent, error) {
	ev := ChangeEvent{Table: table, Op: op, Record: record}
	if err := json.Unmarshal(record, &ev.fields); err != nil {
		return ChangeEvent{}, err
	}
	return ev, nil
}

// Field returns the textual value of a top-level record column.
func (e ChangeEvent) Field(name string) (string, bool) {
	raw, ok := e.fields[name]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	v := strings.TrimSpace(string(raw))
	if v == "null" {
		return "", false
	}
	return v, true
}
