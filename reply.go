package rdthemis

import (
	"bytes"
	"fmt"
	"strconv"
)

// ReplyKind is the protocol type of a Reply.
type ReplyKind int

const (
	ReplySimpleString ReplyKind = iota
	ReplyBulk
	ReplyInteger
	ReplyError
)

const (
	wrongTypeMessage = "WRONGTYPE Operation against a key holding the wrong kind of value"
	timeoutMessage   = "Request timedout"
	spawnMessage     = "ERR Can't start thread"
)

// Reply is the protocol-level answer to a command.
type Reply struct {
	Kind    ReplyKind
	Str     string
	Bulk    []byte
	Integer int64
}

func okReply() Reply {
	return Reply{Kind: ReplySimpleString, Str: "OK"}
}

func timeoutReply() Reply {
	return Reply{Kind: ReplySimpleString, Str: timeoutMessage}
}

func bulkReply(payload []byte) Reply {
	return Reply{Kind: ReplyBulk, Bulk: bytes.Clone(payload)}
}

func integerReply(n int64) Reply {
	return Reply{Kind: ReplyInteger, Integer: n}
}

func errorReply(format string, args ...interface{}) Reply {
	return Reply{Kind: ReplyError, Str: fmt.Sprintf(format, args...)}
}

func wrongTypeReply() Reply {
	return Reply{Kind: ReplyError, Str: wrongTypeMessage}
}

// IsError reports whether the reply is an error reply.
func (r Reply) IsError() bool {
	return r.Kind == ReplyError
}

// IsTimeout reports whether the reply is the asynchronous timeout reply.
func (r Reply) IsTimeout() bool {
	return r.Kind == ReplySimpleString && r.Str == timeoutMessage
}

// String renders the reply the way an interactive client prints it.
func (r Reply) String() string {
	switch r.Kind {
	case ReplySimpleString:
		return r.Str
	case ReplyBulk:
		return strconv.Quote(string(r.Bulk))
	case ReplyInteger:
		return "(integer) " + strconv.FormatInt(r.Integer, 10)
	case ReplyError:
		return "(error) " + r.Str
	default:
		return "(unknown)"
	}
}

// AppendRESP appends the RESP2 wire encoding of the reply to dst.
func (r Reply) AppendRESP(dst []byte) []byte {
	switch r.Kind {
	case ReplySimpleString:
		dst = append(dst, '+')
		dst = append(dst, r.Str...)
	case ReplyBulk:
		dst = append(dst, '$')
		dst = strconv.AppendInt(dst, int64(len(r.Bulk)), 10)
		dst = append(dst, '\r', '\n')
		dst = append(dst, r.Bulk...)
	case ReplyInteger:
		dst = append(dst, ':')
		dst = strconv.AppendInt(dst, r.Integer, 10)
	case ReplyError:
		dst = append(dst, '-')
		dst = append(dst, r.Str...)
	}
	return append(dst, '\r', '\n')
}
