package mpd

import (
	"errors"
	"fmt"
)

// ACK error codes, as numbered by MPD.
const (
	AckErrorArg         = 2
	AckErrorUnknown     = 5
	AckErrorNoExist     = 50
	AckErrorPlaylistMax = 51
	AckErrorSystem      = 52
)

// AckError is a protocol failure reported to the client as an ACK line.
type AckError struct {
	Code    int
	Command string
	Message string
}

func (e *AckError) Error() string {
	return fmt.Sprintf("{%s} %s", e.Command, e.Message)
}

func newAck(code int, command, format string, args ...any) *AckError {
	return &AckError{Code: code, Command: command, Message: fmt.Sprintf(format, args...)}
}

// ackLine renders err for the command at listIndex of the current batch.
// Errors that are not an AckError surface as system errors.
func ackLine(err error, verb string, listIndex int) string {
	var ack *AckError
	if !errors.As(err, &ack) {
		ack = &AckError{Code: AckErrorSystem, Command: verb, Message: err.Error()}
	}
	if ack.Command == "" {
		ack.Command = verb
	}
	return fmt.Sprintf("ACK [%d@%d] {%s} %s", ack.Code, listIndex, ack.Command, ack.Message)
}
