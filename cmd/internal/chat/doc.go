// Package chat is the conversation and message core: participant-set resolution of
// conversations, the message channel with its denormalised conversation summary,
// and read state.
//
// Every operation is a sequence of independent document writes. Nothing is
// transactional: duplicate conversations under concurrent resolution and
// last-write-wins summaries are accepted outcomes, and partial failures are
// reported (PartialWriteError), never rolled back or retried.
package chat
