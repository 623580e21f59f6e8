package session

import (
	"iter"
	"sync/atomic"

	"roomchat/pkg/interfaces"
	"roomchat/pkg/types"
)

// History decodes stored messages lazily, oldest first
// FUNCTIONAL DISCOVERY: A message that fails to open yields the placeholder
// with Failed set and iteration continues, so one corrupt record never hides
// the rest. The sequence is single-use: ranging over it a second time yields
// nothing.
func History(msgs []*types.Message, cipher interfaces.Cipher, key, iv []byte) iter.Seq[types.HistoryEntry] {
	var consumed atomic.Bool

	return func(yield func(types.HistoryEntry) bool) {
		if !consumed.CompareAndSwap(false, true) {
			return
		}

		for _, msg := range msgs {
			entry := types.HistoryEntry{
				Sender:    msg.Sender,
				Timestamp: msg.Timestamp,
			}

			text, err := cipher.Open(msg.Ciphertext, key, iv)
			if err != nil {
				entry.Text = HistoryPlaceholder
				entry.Failed = true
			} else {
				entry.Text = text
			}

			if !yield(entry) {
				return
			}
		}
	}
}
