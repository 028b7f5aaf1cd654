// Package shell implements the sloty command language: a small workspace of
// named slots and carriers driven one command line at a time.
package shell

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"weak"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/calvinalkan/hiddenslot/pkg/slot"
)

// DefaultGCTimeout bounds how long the gc command waits for dropped
// carriers to be collected.
const DefaultGCTimeout = 2 * time.Second

// Carrier is the object slots are attached to inside a session.
type Carrier struct {
	Name string
}

// Options configure a Session.
type Options struct {
	Out    io.Writer
	ErrOut io.Writer

	// Logger receives diagnostics. Nil means zap.NewNop.
	Logger *zap.Logger

	// GCTimeout bounds the gc command. Zero means DefaultGCTimeout.
	GCTimeout time.Duration

	// NewName names carriers created without an explicit name.
	// Nil means a short random uuid.
	NewName func() string
}

// Session holds the named slots and carriers of one sloty run.
//
// A Session is not safe for concurrent use.
type Session struct {
	out       io.Writer
	errOut    io.Writer
	log       *zap.Logger
	gcTimeout time.Duration
	newName   func() string

	slots     map[string]*slot.Handle[string]
	slotNames []string

	carriers     map[string]*Carrier
	carrierNames []string

	// dropped tracks carriers released by drop until they are collected.
	dropped []droppedCarrier
}

type droppedCarrier struct {
	name string
	ref  weak.Pointer[Carrier]
}

// NewSession returns an empty session.
func NewSession(opts Options) *Session {
	s := &Session{
		out:       opts.Out,
		errOut:    opts.ErrOut,
		log:       opts.Logger,
		gcTimeout: opts.GCTimeout,
		newName:   opts.NewName,
		slots:     make(map[string]*slot.Handle[string]),
		carriers:  make(map[string]*Carrier),
	}

	if s.out == nil {
		s.out = io.Discard
	}

	if s.errOut == nil {
		s.errOut = io.Discard
	}

	if s.log == nil {
		s.log = zap.NewNop()
	}

	if s.gcTimeout <= 0 {
		s.gcTimeout = DefaultGCTimeout
	}

	if s.newName == nil {
		s.newName = shortUUID
	}

	return s
}

func shortUUID() string {
	return uuid.NewString()[:8]
}

// Exec runs one command line. It reports whether the line asked to quit.
//
// Command errors are printed to the error output and also returned, so
// script runners can count failures.
func (s *Session) Exec(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	word := strings.ToLower(fields[0])
	args := fields[1:]

	o := NewIO(s.out, s.errOut)
	defer o.Finish()

	switch word {
	case "exit", "quit", "q":
		return true, nil
	case "help", "?":
		s.printHelp(o)

		return false, nil
	}

	for _, cmd := range s.commands() {
		if !cmd.Matches(word) {
			continue
		}

		s.log.Debug("exec", zap.String("command", cmd.Name()), zap.Strings("args", args))

		err := cmd.Run(ctx, o, args)
		if err != nil {
			o.ErrPrintln("error:", err)

			return false, err
		}

		return false, nil
	}

	err := fmt.Errorf("%w: %s (type 'help' for commands)", errUnknownCommand, word)
	o.ErrPrintln("error:", err)

	return false, err
}

// CommandNames lists every command name and alias, for completion.
func (s *Session) CommandNames() []string {
	names := []string{"help", "exit", "quit"}

	for _, cmd := range s.commands() {
		names = append(names, cmd.Name())
		names = append(names, cmd.Aliases...)
	}

	return names
}

// Complete returns completions for a partial input line: command names for
// the first word, slot and carrier names after that.
func (s *Session) Complete(line string) []string {
	fields := strings.Fields(line)
	trailingSpace := strings.HasSuffix(line, " ")

	if len(fields) == 0 || (len(fields) == 1 && !trailingSpace) {
		var completions []string

		lower := strings.ToLower(line)
		for _, name := range s.CommandNames() {
			if strings.HasPrefix(name, lower) {
				completions = append(completions, name)
			}
		}

		return completions
	}

	prefix := ""
	head := fields

	if !trailingSpace {
		prefix = fields[len(fields)-1]
		head = fields[:len(fields)-1]
	}

	base := strings.Join(head, " ") + " "

	var completions []string

	for _, name := range s.candidateNames(len(head)) {
		if strings.HasPrefix(name, prefix) {
			completions = append(completions, base+name)
		}
	}

	return completions
}

// candidateNames returns the names that fit argument position pos
// (1 is the first argument).
func (s *Session) candidateNames(pos int) []string {
	if pos == 1 {
		return append(append([]string{}, s.slotNames...), s.carrierNames...)
	}

	return s.carrierNames
}

func (s *Session) printHelp(o *IO) {
	o.Println("Commands:")

	for _, cmd := range s.commands() {
		o.Println(cmd.HelpLine())
	}

	o.Printf("  %-34s %s\n", "help", "Show this help")
	o.Printf("  %-34s %s\n", "exit / quit / q", "Exit")
	o.Println()
	o.Println("Run '<command> --help' for details.")
}

func (s *Session) lookupSlot(name string) (*slot.Handle[string], error) {
	h, ok := s.slots[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errSlotNotFound, name)
	}

	return h, nil
}

func (s *Session) lookupCarrier(name string) (*Carrier, error) {
	c, ok := s.carriers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errCarrierNotFound, name)
	}

	return c, nil
}

// lookupPair resolves the common "<slot> <carrier>" argument prefix.
func (s *Session) lookupPair(args []string) (*slot.Handle[string], *Carrier, error) {
	h, err := s.lookupSlot(args[0])
	if err != nil {
		return nil, nil, err
	}

	c, err := s.lookupCarrier(args[1])
	if err != nil {
		return nil, nil, err
	}

	return h, c, nil
}

func (s *Session) addSlot(name string, h *slot.Handle[string]) error {
	if _, exists := s.slots[name]; exists {
		return fmt.Errorf("%w: %s", errSlotExists, name)
	}

	s.slots[name] = h
	s.slotNames = append(s.slotNames, name)

	return nil
}

func (s *Session) addCarrier(c *Carrier) error {
	if _, exists := s.carriers[c.Name]; exists {
		return fmt.Errorf("%w: %s", errCarrierExists, c.Name)
	}

	s.carriers[c.Name] = c
	s.carrierNames = append(s.carrierNames, c.Name)

	return nil
}

func (s *Session) removeCarrier(name string) (*Carrier, error) {
	c, err := s.lookupCarrier(name)
	if err != nil {
		return nil, err
	}

	delete(s.carriers, name)

	for i, n := range s.carrierNames {
		if n == name {
			s.carrierNames = append(s.carrierNames[:i], s.carrierNames[i+1:]...)

			break
		}
	}

	return c, nil
}

// sweepDropped forgets dropped carriers that have been collected and
// returns how many were collected and how many are still pending.
func (s *Session) sweepDropped() (int, int) {
	reclaimed := 0
	pending := s.dropped[:0]

	for _, d := range s.dropped {
		if d.ref.Value() == nil {
			s.log.Debug("carrier reclaimed", zap.String("carrier", d.name))

			reclaimed++

			continue
		}

		pending = append(pending, d)
	}

	s.dropped = pending

	return reclaimed, len(pending)
}
