package controller

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/satindergrewal/handpan/internal/voice"
)

// Manual mode note parameters.
const (
	ManualVelocity = 100
	ManualDuration = 400 * time.Millisecond
	Prompt         = "note> "
)

// runManual reads note numbers from the operator until quit, end of input,
// Stop or cancellation. Bad input is reported and the loop continues.
//
// Closable input is closed on return, which ends the reader goroutine.
// Stdin cannot be interrupted; its reader exits at the next line or EOF.
func (c *Controller) runManual(ctx context.Context) error {
	lines := make(chan string)
	quit := make(chan struct{})
	defer close(quit)
	if rc, ok := c.in.(io.Closer); ok && c.in != io.Reader(os.Stdin) {
		defer rc.Close()
	}

	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-quit:
				return
			}
		}
		if err := sc.Err(); err != nil {
			log.Printf("[%s] Input read error: %v", c.short(), err)
		}
	}()

	fmt.Fprintf(c.out, "Enter note numbers (%d-%d), q to quit\n", voice.MinPitch, voice.MaxPitch)
	for {
		fmt.Fprint(c.out, Prompt)

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			return nil
		case <-c.halt:
			fmt.Fprintln(c.out)
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(c.out)
			log.Printf("[%s] End of input", c.short())
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if q := strings.ToLower(line); q == "q" || q == "quit" {
			return nil
		}

		pitch, err := parseNote(line)
		if err != nil {
			fmt.Fprintf(c.out, "Warning: %v\n", err)
			continue
		}
		if err := c.engine.Play(pitch, ManualVelocity, ManualDuration); err != nil {
			select {
			case <-c.halt:
				return nil
			default:
			}
			return fmt.Errorf("play note %d: %w", pitch, err)
		}
	}
}

// parseNote parses an operator note number. Errors wrap ErrInvalidInput.
func parseNote(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a note number", ErrInvalidInput, s)
	}
	if n < voice.MinPitch || n > voice.MaxPitch {
		return 0, fmt.Errorf("%w: note %d out of range %d-%d", ErrInvalidInput, n, voice.MinPitch, voice.MaxPitch)
	}
	return n, nil
}
