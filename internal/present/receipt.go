package present

import (
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/sociallink/internal/model"
)

// Receipt is the delivery state shown next to an own message.
type Receipt int

// Receipt states.
const (
	ReceiptNone    Receipt = iota // counterpart's message, nothing shown
	ReceiptPending                // no sent_at yet: one empty mark
	ReceiptSent                   // sent, not seen: one filled and one empty mark
	ReceiptSeen                   // seen: two filled marks
)

// ReceiptFor derives the receipt of m as seen by self.
func ReceiptFor(m model.Message, self uuid.UUID) Receipt {
	switch {
	case m.SentBy != self:
		return ReceiptNone
	case m.SeenAt != nil:
		return ReceiptSeen
	case m.SentAt != nil:
		return ReceiptSent
	default:
		return ReceiptPending
	}
}

// Marks lists the check marks to draw, true meaning filled.
func (r Receipt) Marks() []bool {
	switch r {
	case ReceiptPending:
		return []bool{false}
	case ReceiptSent:
		return []bool{true, false}
	case ReceiptSeen:
		return []bool{true, true}
	default:
		return nil
	}
}

// String renders the marks for a terminal: "✓" filled, "·" empty.
func (r Receipt) String() string {
	var b strings.Builder
	for _, filled := range r.Marks() {
		if filled {
			b.WriteString("✓")
		} else {
			b.WriteString("·")
		}
	}
	return b.String()
}
