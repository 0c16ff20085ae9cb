// Package logger implements a per-request in-memory log buffer.
//
// Detail lines accumulate while a fetch or ingest is in progress.
// On failure the whole buffer replays followed by the final error, so
// the log tells the story of exactly the request that broke.  On
// success the buffer is dropped and a single short line is written.
//
// Thread safety comes from a dedicated logger goroutine and a command
// channel; no mutexes.
package logger

import (
	"bytes"
	"log"
	"strings"
	"time"
)

type action int

const (
	actBegin action = iota
	actAppend
	actSuccess
	actFlushErr
)

type cmd struct {
	act     action
	reqID   string
	message string    // for Append
	label   string    // for Success
	err     error     // for FlushError
	when    time.Time // timestamp, kept in case ordering ever matters
}

// Entry points only send into the channel.

var ch = make(chan cmd, 128) // buffered for bursts

// Begin enables buffering for reqID.
func Begin(reqID string) { ch <- cmd{act: actBegin, reqID: reqID, when: time.Now()} }

// Append adds one detail line.
func Append(reqID, msg string) {
	ch <- cmd{act: actAppend, reqID: reqID, message: msg, when: time.Now()}
}

// Success drops the buffer and writes a short confirmation line.
func Success(reqID, label string) {
	ch <- cmd{act: actSuccess, reqID: reqID, label: label, when: time.Now()}
}

// FlushError replays the accumulated buffer plus the final error.
func FlushError(reqID string, err error) {
	ch <- cmd{act: actFlushErr, reqID: reqID, err: err, when: time.Now()}
}

func init() { go runloop() }

func runloop() {
	buffers := make(map[string]*bytes.Buffer)

	for c := range ch {
		switch c.act {
		case actBegin:
			buffers[c.reqID] = &bytes.Buffer{}

		case actAppend:
			if b := buffers[c.reqID]; b != nil {
				_, _ = b.WriteString(c.message + "\n")
			} else {
				log.Print(c.message) // no buffer, write immediately
			}

		case actSuccess:
			log.Printf("[%-6s][Fetch] done %q", c.reqID, c.label)
			delete(buffers, c.reqID)

		case actFlushErr:
			if b := buffers[c.reqID]; b != nil {
				lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
				for _, ln := range lines {
					log.Print(ln)
				}
				delete(buffers, c.reqID)
			}
			log.Printf("[%-6s][ERROR] %v", c.reqID, c.err)
		}
	}
}
