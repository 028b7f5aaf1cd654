package shell

import (
	"context"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command defines a session command with unified help generation.
type Command struct {
	// Flags defines command-specific flags.
	// The FlagSet name is not used - command identity comes from Usage.
	Flags *flag.FlagSet

	// Usage is the freeform usage string, starting with the command name.
	// Examples: "get <slot> <carrier>", "gc [flags]"
	Usage string

	// Aliases are alternative names accepted at the prompt.
	Aliases []string

	// Short is a one-line description for the help listing.
	Short string

	// Long is the full description shown in command help.
	// If empty, Short is used instead.
	Long string

	// Exec runs the command after flags are parsed.
	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name returns the command name (first word of Usage).
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

// Matches reports whether word names this command or one of its aliases.
func (c *Command) Matches(word string) bool {
	if word == c.Name() {
		return true
	}

	for _, alias := range c.Aliases {
		if word == alias {
			return true
		}
	}

	return false
}

// HelpLine returns the short help line for the command listing.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-34s %s", c.Usage, c.Short)
}

// PrintHelp prints the full help output for "<cmd> --help".
func (c *Command) PrintHelp(o *IO) {
	o.Println("Usage:", c.Usage)
	o.Println()

	desc := c.Long
	if desc == "" {
		desc = c.Short
	}

	o.Println(desc)

	if c.Flags != nil && c.Flags.HasFlags() {
		o.Println()
		o.Println("Flags:")

		var buf strings.Builder
		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		o.Printf("%s", buf.String())
	}
}

// Run parses flags and executes the command.
// Help requests print help and return nil.
func (c *Command) Run(ctx context.Context, o *IO, args []string) error {
	c.Flags.SetOutput(&strings.Builder{}) // discard pflag output

	err := c.Flags.Parse(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintHelp(o)
			return nil
		}

		return fmt.Errorf("%s: %w", c.Name(), err)
	}

	return c.Exec(ctx, o, c.Flags.Args())
}
