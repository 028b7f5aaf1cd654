package shell

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"
	"weak"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/calvinalkan/hiddenslot/pkg/slot"
)

// commands builds the command table. Flag sets keep parsed values, so the
// table is rebuilt for every line.
func (s *Session) commands() []*Command {
	return []*Command{
		s.slotCmd(),
		s.carrierCmd(),
		s.attachCmd(),
		s.hasCmd(),
		s.getCmd(),
		s.setCmd(),
		s.appendCmd(),
		s.dropCmd(),
		s.gcCmd(),
		s.statsCmd(),
		s.lsCmd(),
		s.dumpCmd(),
		s.benchCmd(),
	}
}

func (s *Session) slotCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("slot", flag.ContinueOnError),
		Usage: "slot <name> [default]",
		Short: "Create a slot",
		Long:  "Create a new slot. Every binding of the slot starts at default (empty if omitted).",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) < 1 {
				return fmt.Errorf("%w: slot <name> [default]", errWrongArgs)
			}

			def := strings.Join(args[1:], " ")

			err := s.addSlot(args[0], slot.New(def))
			if err != nil {
				return err
			}

			s.log.Debug("slot created", zap.String("slot", args[0]), zap.String("default", def))
			o.Printf("slot %s (default %q)\n", args[0], def)

			return nil
		},
	}
}

func (s *Session) carrierCmd() *Command {
	return &Command{
		Flags:   flag.NewFlagSet("carrier", flag.ContinueOnError),
		Usage:   "carrier [name...]",
		Aliases: []string{"new"},
		Short:   "Create carriers",
		Long:    "Create one carrier per name, or a single carrier with a generated name.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			names := args
			if len(names) == 0 {
				names = []string{s.newName()}
			}

			for _, name := range names {
				err := s.addCarrier(&Carrier{Name: name})
				if err != nil {
					return err
				}

				o.Println("carrier", name)
			}

			return nil
		},
	}
}

func (s *Session) attachCmd() *Command {
	return &Command{
		Flags:   flag.NewFlagSet("attach", flag.ContinueOnError),
		Usage:   "attach <slot> <carrier...>",
		Aliases: []string{"define"},
		Short:   "Attach a slot to carriers",
		Long:    "Attach a slot to each carrier, starting at the slot default. Attaching twice is an error.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) < 2 {
				return fmt.Errorf("%w: attach <slot> <carrier...>", errWrongArgs)
			}

			h, err := s.lookupSlot(args[0])
			if err != nil {
				return err
			}

			for _, name := range args[1:] {
				c, lookupErr := s.lookupCarrier(name)
				if lookupErr != nil {
					return lookupErr
				}

				c, err = slot.Define(h, c)
				if err != nil {
					return fmt.Errorf("attach %s to %s: %w", args[0], name, err)
				}

				o.Printf("attached %s to %s\n", args[0], c.Name)
			}

			return nil
		},
	}
}

func (s *Session) hasCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("has", flag.ContinueOnError),
		Usage: "has <slot> <carrier>",
		Short: "Report whether a slot is attached",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("%w: has <slot> <carrier>", errWrongArgs)
			}

			h, c, err := s.lookupPair(args)
			if err != nil {
				return err
			}

			o.Println(h.Has(c))

			return nil
		},
	}
}

func (s *Session) getCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("get", flag.ContinueOnError),
		Usage: "get <slot> <carrier>",
		Short: "Print the bound value",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("%w: get <slot> <carrier>", errWrongArgs)
			}

			h, c, err := s.lookupPair(args)
			if err != nil {
				return err
			}

			value, err := h.Get(c)
			if err != nil {
				return fmt.Errorf("get %s on %s: %w", args[0], args[1], err)
			}

			o.Printf("%q\n", value)

			return nil
		},
	}
}

func (s *Session) setCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("set", flag.ContinueOnError),
		Usage: "set <slot> <carrier> <value...>",
		Short: "Replace the bound value",
		Long:  "Replace the bound value. Remaining words are joined with single spaces.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) < 3 {
				return fmt.Errorf("%w: set <slot> <carrier> <value...>", errWrongArgs)
			}

			h, c, err := s.lookupPair(args)
			if err != nil {
				return err
			}

			value, err := h.Set(c, strings.Join(args[2:], " "))
			if err != nil {
				return fmt.Errorf("set %s on %s: %w", args[0], args[1], err)
			}

			o.Printf("%q\n", value)

			return nil
		},
	}
}

func (s *Session) appendCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("append", flag.ContinueOnError),
		Usage: "append <slot> <carrier> <suffix...>",
		Short: "Append to the bound value atomically",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) < 3 {
				return fmt.Errorf("%w: append <slot> <carrier> <suffix...>", errWrongArgs)
			}

			h, c, err := s.lookupPair(args)
			if err != nil {
				return err
			}

			suffix := strings.Join(args[2:], " ")

			value, err := h.Update(c, func(current string) string { return current + suffix })
			if err != nil {
				return fmt.Errorf("append %s on %s: %w", args[0], args[1], err)
			}

			o.Printf("%q\n", value)

			return nil
		},
	}
}

func (s *Session) dropCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("drop", flag.ContinueOnError),
		Usage: "drop <carrier...>",
		Short: "Release carriers so they can be collected",
		Long:  "Forget the session's reference to each carrier. Its bindings disappear once it is collected (see gc).",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("%w: drop <carrier...>", errWrongArgs)
			}

			for _, name := range args {
				c, err := s.removeCarrier(name)
				if err != nil {
					return err
				}

				s.dropped = append(s.dropped, droppedCarrier{name: name, ref: weak.Make(c)})
				s.log.Debug("carrier dropped", zap.String("carrier", name))
				o.Println("dropped", name)
			}

			return nil
		},
	}
}

func (s *Session) gcCmd() *Command {
	flags := flag.NewFlagSet("gc", flag.ContinueOnError)
	timeout := flags.DurationP("timeout", "t", s.gcTimeout, "how long to wait for dropped carriers")

	return &Command{
		Flags: flags,
		Usage: "gc [flags]",
		Short: "Collect garbage and report reclaimed carriers",
		Long: "Run the garbage collector until every dropped carrier is reclaimed or the timeout elapses, " +
			"then print registry stats.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			deadline := time.Now().Add(*timeout)
			total := 0

			for {
				runtime.GC()

				reclaimed, pending := s.sweepDropped()
				total += reclaimed

				if pending == 0 || time.Now().After(deadline) {
					break
				}

				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(10 * time.Millisecond):
				}
			}

			o.Printf("reclaimed %d carrier(s)\n", total)

			if _, pending := s.sweepDropped(); pending > 0 {
				o.Warn(fmt.Sprintf("%d dropped carrier(s) still reachable", pending), "retry gc or raise --timeout")
			}

			printStats(o, slot.Stats())

			return nil
		},
	}
}

func (s *Session) statsCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("stats", flag.ContinueOnError),
		Usage: "stats",
		Short: "Print process-wide registry stats",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			printStats(o, slot.Stats())

			return nil
		},
	}
}

func printStats(o *IO, stats slot.RegistryStats) {
	o.Printf("registry: carriers=%d bindings=%d\n", stats.Carriers, stats.Bindings)
}

func (s *Session) benchCmd() *Command {
	flags := flag.NewFlagSet("bench", flag.ContinueOnError)
	count := flags.IntP("count", "n", 100000, "number of carriers")

	return &Command{
		Flags: flags,
		Usage: "bench [flags]",
		Short: "Benchmark attach+set+get",
		Long:  "Attach a fresh slot to count new carriers, then set and get each one. Carriers are not kept.",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			if *count <= 0 {
				return fmt.Errorf("%w: %d", errInvalidCount, *count)
			}

			h := slot.New("")
			start := time.Now()

			for i := range *count {
				c := &Carrier{}

				err := h.Attach(c)
				if err != nil {
					return fmt.Errorf("bench carrier %d: %w", i, err)
				}

				_, err = h.Set(c, "v")
				if err != nil {
					return fmt.Errorf("bench carrier %d: %w", i, err)
				}

				_, err = h.Get(c)
				if err != nil {
					return fmt.Errorf("bench carrier %d: %w", i, err)
				}
			}

			elapsed := time.Since(start)
			ops := float64(*count*3) / elapsed.Seconds()

			o.Printf("bench: %d carriers, %d ops in %s (%.0f ops/s)\n", *count, *count*3, elapsed.Round(time.Microsecond), ops)

			return nil
		},
	}
}
