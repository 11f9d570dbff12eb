package mpd

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const greeting = "OK MPD 0.21.11"

const maxLineLength = 64 * 1024

// conn is the per-client protocol state machine.
type conn struct {
	server *Server
	nc     net.Conn
	sub    *Subscription
	logger *zap.Logger

	idle   bool
	inList bool
	listOK bool
	batch  []string
}

func newConn(s *Server, nc net.Conn) *conn {
	return &conn{
		server: s,
		nc:     nc,
		logger: s.logger.With(
			zap.String("conn", uuid.NewString()),
			zap.String("remote", nc.RemoteAddr().String()),
		),
	}
}

func (c *conn) serve(ctx context.Context) {
	c.sub = c.server.notifier.Subscribe()
	defer c.server.notifier.Unsubscribe(c.sub)
	defer c.nc.Close()

	c.logger.Info("client connected")
	defer c.logger.Info("client disconnected")

	done := make(chan struct{})
	defer close(done)
	lines := make(chan string)
	readErr := make(chan error, 1)
	go c.readLines(lines, readErr, done)

	if err := c.write([]string{greeting}); err != nil {
		return
	}

	for {
		var signal <-chan struct{}
		if c.idle {
			signal = c.sub.C()
		}

		select {
		case <-ctx.Done():
			return
		case err := <-readErr:
			if err != io.EOF {
				c.logger.Debug("read failed", zap.Error(err))
			}
			return
		case <-signal:
			changes := c.sub.Drain()
			if len(changes) == 0 {
				continue
			}
			c.idle = false
			if err := c.write([]string{changedLine(changes), "OK"}); err != nil {
				return
			}
		case line := <-lines:
			if !c.handleLine(ctx, line) {
				return
			}
		}
	}
}

func (c *conn) readLines(lines chan<- string, readErr chan<- error, done <-chan struct{}) {
	scanner := bufio.NewScanner(c.nc)
	scanner.Buffer(make([]byte, 4096), maxLineLength)
	for scanner.Scan() {
		select {
		case lines <- strings.TrimRight(scanner.Text(), "\r"):
		case <-done:
			return
		}
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	readErr <- err
}

// handleLine processes one input line and reports whether the connection
// stays open.
func (c *conn) handleLine(ctx context.Context, line string) bool {
	verb, _, _ := strings.Cut(strings.TrimSpace(line), " ")

	if c.idle {
		c.idle = false
		out := []string{"OK"}
		if changes := c.sub.Drain(); len(changes) > 0 {
			out = []string{changedLine(changes), "OK"}
		}
		if err := c.write(out); err != nil {
			return false
		}
		if verb == "noidle" {
			return true
		}
	}

	if c.inList {
		if verb == "command_list_end" {
			batch := c.batch
			c.inList, c.batch = false, nil
			return c.runBatch(ctx, batch, c.listOK)
		}
		c.batch = append(c.batch, line)
		return true
	}

	switch verb {
	case "":
		return true
	case "command_list_begin", "command_list_ok_begin":
		c.inList = true
		c.listOK = verb == "command_list_ok_begin"
		c.batch = nil
		return true
	case "idle":
		if changes := c.sub.Drain(); len(changes) > 0 {
			return c.write([]string{changedLine(changes), "OK"}) == nil
		}
		c.idle = true
		c.nc.SetWriteDeadline(time.Time{})
		return true
	case "noidle":
		return true
	case "close":
		return false
	}
	return c.runBatch(ctx, []string{line}, false)
}

// runBatch executes lines in order, stopping at the first failure. The
// whole response is written as one chunk.
func (c *conn) runBatch(ctx context.Context, batch []string, listOK bool) bool {
	var out []string
	for i, line := range batch {
		verb, lines, err := c.server.dispatch(ctx, line)
		c.logger.Debug("->", zap.String("verb", verb), zap.Int("index", i))
		if err != nil {
			ack := ackLine(err, verb, i)
			c.logger.Info("ack", zap.String("reply", ack))
			out = append(out, ack)
			return c.write(out) == nil
		}
		out = append(out, lines...)
		if listOK {
			out = append(out, "list_OK")
		}
	}
	out = append(out, "OK")
	return c.write(out) == nil
}

func (c *conn) write(lines []string) error {
	c.nc.SetWriteDeadline(time.Now().Add(c.server.writeTimeout))
	_, err := io.WriteString(c.nc, strings.Join(lines, "\n")+"\n")
	if err != nil {
		c.logger.Debug("write failed", zap.Error(err))
	}
	return err
}
