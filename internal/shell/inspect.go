package shell

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/calvinalkan/hiddenslot/pkg/slot"
)

// Snapshot is the YAML document printed by dump.
type Snapshot struct {
	Slots    []SlotSnapshot `yaml:"slots"`
	Carriers []string       `yaml:"carriers"`
	Registry RegistrySnap   `yaml:"registry"`
}

// SlotSnapshot describes one slot and the carriers it is attached to.
type SlotSnapshot struct {
	Name     string            `yaml:"name"`
	Default  string            `yaml:"default"`
	Bindings map[string]string `yaml:"bindings,omitempty"`
}

// RegistrySnap mirrors slot.RegistryStats.
type RegistrySnap struct {
	Carriers int `yaml:"carriers"`
	Bindings int `yaml:"bindings"`
}

// Snapshot captures the session's slots, carriers and bindings.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		Slots:    make([]SlotSnapshot, 0, len(s.slotNames)),
		Carriers: append([]string{}, s.carrierNames...),
	}

	for _, name := range s.slotNames {
		h := s.slots[name]
		entry := SlotSnapshot{Name: name, Default: h.Default()}

		for _, carrierName := range s.carrierNames {
			value, err := h.Get(s.carriers[carrierName])
			if err != nil {
				continue
			}

			if entry.Bindings == nil {
				entry.Bindings = make(map[string]string)
			}

			entry.Bindings[carrierName] = value
		}

		snap.Slots = append(snap.Slots, entry)
	}

	stats := slot.Stats()
	snap.Registry = RegistrySnap{Carriers: stats.Carriers, Bindings: stats.Bindings}

	return snap
}

func (s *Session) lsCmd() *Command {
	flags := flag.NewFlagSet("ls", flag.ContinueOnError)
	boundOnly := flags.BoolP("bound", "b", false, "only list bindings")

	return &Command{
		Flags:   flags,
		Usage:   "ls [flags]",
		Aliases: []string{"list"},
		Short:   "List slots, carriers and bindings",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			snap := s.Snapshot()

			if !*boundOnly {
				o.Println("slots:")

				for _, sl := range snap.Slots {
					o.Printf("  %s (default %q)\n", sl.Name, sl.Default)
				}

				o.Println("carriers:")

				for _, name := range snap.Carriers {
					o.Printf("  %s\n", name)
				}
			}

			o.Println("bindings:")

			for _, sl := range snap.Slots {
				// Carrier order, not map order.
				for _, carrierName := range snap.Carriers {
					value, ok := sl.Bindings[carrierName]
					if !ok {
						continue
					}

					o.Printf("  %s @ %s = %q\n", sl.Name, carrierName, value)
				}
			}

			return nil
		},
	}
}

func (s *Session) dumpCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("dump", flag.ContinueOnError),
		Usage: "dump",
		Short: "Print the session as YAML",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			data, err := yaml.Marshal(s.Snapshot())
			if err != nil {
				return fmt.Errorf("marshal snapshot: %w", err)
			}

			o.Printf("%s", data)

			return nil
		},
	}
}
