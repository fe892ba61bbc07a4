// Package cli provides the interactive command-line shell over a
// caskdb engine. It parses user commands and executes them against the
// storage engine.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/rendlabs/caskdb/internal/caskerr"
	"github.com/rendlabs/caskdb/internal/engine"
	"github.com/rendlabs/caskdb/internal/keydir"
)

// Handler manages the interactive command-line interface for the engine.
type Handler struct {
	engine  *engine.Engine
	log     *zap.SugaredLogger
	scanner *bufio.Scanner
	out     io.Writer
}

// NewHandler creates a new Handler reading commands from in and writing
// output to out.
func NewHandler(e *engine.Engine, log *zap.SugaredLogger, in io.Reader, out io.Writer) *Handler {
	return &Handler{
		engine:  e,
		log:     log,
		scanner: bufio.NewScanner(in),
		out:     out,
	}
}

// Run starts the interactive command loop, processing user input until
// an EXIT/QUIT command is received or the input stream ends.
func (h *Handler) Run() error {
	fmt.Fprintln(h.out, "caskdb - embedded log-structured key-value store")
	fmt.Fprintln(h.out, "Commands: PUT <key> <value>, GET <key>, DELETE <key>, SCAN, COMPACT, EXIT")
	fmt.Fprint(h.out, "> ")

	for h.scanner.Scan() {
		line := strings.TrimSpace(h.scanner.Text())
		if line == "" {
			fmt.Fprint(h.out, "> ")
			continue
		}

		parts := strings.Fields(line)
		command := strings.ToUpper(parts[0])

		switch command {
		case "PUT":
			h.handlePut(parts)
		case "GET":
			h.handleGet(parts)
		case "DELETE":
			h.handleDelete(parts)
		case "SCAN":
			h.handleScan()
		case "COMPACT":
			h.handleCompact()
		case "EXIT", "QUIT":
			h.log.Infow("cli: shutdown requested by user")
			fmt.Fprintln(h.out, "bye")
			return nil
		default:
			h.log.Warnw("cli: unknown command received", "command", command)
			fmt.Fprintf(h.out, "unknown command: %s\n", command)
		}

		fmt.Fprint(h.out, "> ")
	}

	if err := h.scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

func (h *Handler) handlePut(parts []string) {
	if len(parts) < 3 {
		fmt.Fprintln(h.out, "usage: PUT <key> <value>")
		return
	}

	key := parts[1]
	value := strings.Join(parts[2:], " ")
	h.log.Debugw("cli: executing PUT", "key", key, "value_size", len(value))

	if err := h.engine.Set([]byte(key), []byte(value)); err != nil {
		h.log.Errorw("cli: PUT failed", "key", key, "error", err)
		fmt.Fprintf(h.out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(h.out, "OK")
}

func (h *Handler) handleGet(parts []string) {
	if len(parts) < 2 {
		fmt.Fprintln(h.out, "usage: GET <key>")
		return
	}

	key := parts[1]
	value, err := h.engine.Get([]byte(key))
	if err != nil {
		if caskerr.IsCode(err, caskerr.CodeKeyNotFound) {
			fmt.Fprintln(h.out, "(not found)")
			return
		}
		h.log.Errorw("cli: GET failed", "key", key, "error", err)
		fmt.Fprintf(h.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(h.out, "%s\n", value)
}

func (h *Handler) handleDelete(parts []string) {
	if len(parts) < 2 {
		fmt.Fprintln(h.out, "usage: DELETE <key>")
		return
	}

	key := parts[1]
	if err := h.engine.Delete([]byte(key)); err != nil {
		h.log.Errorw("cli: DELETE failed", "key", key, "error", err)
		fmt.Fprintf(h.out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(h.out, "OK")
}

func (h *Handler) handleScan() {
	cursor := h.engine.Scan(keydir.All())
	count := 0
	for {
		key, value, err, ok := cursor.Next()
		if !ok {
			break
		}
		if err != nil {
			h.log.Errorw("cli: SCAN read failed", "error", err)
			fmt.Fprintf(h.out, "error: %v\n", err)
			return
		}
		fmt.Fprintf(h.out, "%q -> %q\n", key, value)
		count++
	}
	fmt.Fprintf(h.out, "(%d keys)\n", count)
}

func (h *Handler) handleCompact() {
	live, total, err := h.engine.Sizes()
	if err != nil {
		fmt.Fprintf(h.out, "error: %v\n", err)
		return
	}
	h.log.Infow("cli: compacting", "live_bytes", live, "total_bytes", total)

	if err := h.engine.Compact(); err != nil {
		h.log.Errorw("cli: COMPACT failed", "error", err)
		fmt.Fprintf(h.out, "error: %v\n", err)
		return
	}
	_, newTotal, err := h.engine.Sizes()
	if err != nil {
		fmt.Fprintf(h.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(h.out, "OK (%s -> %s bytes)\n", strconv.FormatUint(total, 10), strconv.FormatUint(newTotal, 10))
}
