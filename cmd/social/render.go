package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	u "github.com/gofrs/uuid/v5"

	"github.com/and161185/sociallink/internal/model"
	"github.com/and161185/sociallink/internal/present"
)

const previewLen = 40

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= previewLen {
		return s
	}
	return string(r[:previewLen-1]) + "…"
}

func participantName(p model.ProfileSummary) string {
	if p.Username != "" && p.Username != p.Name {
		return fmt.Sprintf("%s (@%s)", p.Name, p.Username)
	}
	return p.Name
}

func renderChats(w io.Writer, items []model.ChatItem, self u.UUID, loc *time.Location) {
	if len(items) == 0 {
		fmt.Fprintln(w, "no chats yet")
		return
	}
	for _, it := range items {
		line := fmt.Sprintf("%s  %s", it.ChatID, participantName(it.Participant))
		if m := it.LastMessage; m != nil {
			who := ""
			if m.SentBy == self {
				who = "you: "
			}
			line += fmt.Sprintf("  %s%s  %s", who, preview(m.Text), present.FormatClock(m.CreatedAt, loc))
			if r := present.ReceiptFor(*m, self); r != present.ReceiptNone {
				line += " " + r.String()
			}
		}
		fmt.Fprintln(w, line)
	}
}

func renderPosts(w io.Writer, posts []model.FeedPost, now time.Time, loc *time.Location) {
	if len(posts) == 0 {
		fmt.Fprintln(w, "no posts yet")
		return
	}
	for _, p := range posts {
		day := present.DayOf(p.CreatedAt, loc)
		fmt.Fprintf(w, "%s  %s  %s %s  likes=%d comments=%d\n", p.ID, p.AuthorName,
			present.DayLabel(day, now), present.FormatClock(p.CreatedAt, loc), p.LikesCount, p.CommentsCount)
		if p.Content != "" {
			fmt.Fprintf(w, "  %s\n", p.Content)
		}
		if p.MediaURL != nil && *p.MediaURL != "" {
			fmt.Fprintf(w, "  [%s] %s\n", p.Type, *p.MediaURL)
		}
	}
}

func renderComments(w io.Writer, comments []model.PostComment, loc *time.Location) {
	if len(comments) == 0 {
		fmt.Fprintln(w, "no comments")
		return
	}
	for _, c := range comments {
		indent := ""
		if c.ParentCommentID != nil {
			indent = "  ↳ "
		}
		fmt.Fprintf(w, "%s%s  %s  %s\n", indent, c.UserID, present.FormatClock(c.CreatedAt, loc), c.Text)
	}
}

// tail prints a live transcript incrementally: new messages are appended
// under day headers and receipt changes of own messages are reported.
type tail struct {
	self    u.UUID
	loc     *time.Location
	now     func() time.Time
	lastDay time.Time
	shown   map[u.UUID]present.Receipt
}

func newTail(self u.UUID, loc *time.Location, now func() time.Time) *tail {
	return &tail{self: self, loc: loc, now: now, shown: map[u.UUID]present.Receipt{}}
}

func (t *tail) update(w io.Writer, msgs []model.Message) {
	for _, sec := range present.GroupByDay(msgs, t.loc) {
		for _, m := range sec.Messages {
			r := present.ReceiptFor(m, t.self)
			prev, seen := t.shown[m.ID]
			switch {
			case !seen:
				if !sec.Day.Equal(t.lastDay) {
					fmt.Fprintf(w, "── %s ──\n", present.DayLabel(sec.Day, t.now()))
					t.lastDay = sec.Day
				}
				fmt.Fprintln(w, t.line(m, r))
			case prev != r:
				fmt.Fprintf(w, "   %s %q\n", r, preview(m.Text))
			}
			t.shown[m.ID] = r
		}
	}
}

func (t *tail) line(m model.Message, r present.Receipt) string {
	who := ">"
	if m.SentBy == t.self {
		who = "<"
	}
	s := fmt.Sprintf("%s %s %s", present.FormatClock(m.CreatedAt, t.loc), who, m.Text)
	if r != present.ReceiptNone {
		s += " " + r.String()
	}
	return s
}
