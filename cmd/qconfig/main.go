// Command qconfig exercises the store end to end from a shell, for
// manual poking and scripted tests alike: get/set a value, or run a
// document's pending saves. Wiring follows cmd/muscle/muscle.go's
// pattern of one global flag set plus a small context struct per
// sub-command, translated from flag.FlagSet to cobra.Command.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	log "github.com/sirupsen/logrus"

	"github.com/qconfig/qconfig"
	"github.com/qconfig/qconfig/cursor"
	"github.com/qconfig/qconfig/internal/value"
)

var globalContext struct {
	create   bool
	logLevel string
}

func main() {
	root := &cobra.Command{
		Use:   "qconfig",
		Short: "Inspect and edit qconfig-managed configuration documents",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := log.ParseLevel(globalContext.logLevel)
			if err != nil {
				return fmt.Errorf("invalid --verbosity %q: %w", globalContext.logLevel, err)
			}
			log.SetLevel(level)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&globalContext.logLevel, "verbosity", "warning",
		"log level, one of "+strings.Join(levelNames(), ", "))
	root.PersistentFlags().BoolVar(&globalContext.create, "create", false,
		"create the document if it does not already exist")

	root.AddCommand(getCmd(), setCmd(), syncCmd())

	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func levelNames() []string {
	var out []string
	for _, l := range log.AllLevels {
		out = append(out, l.String())
	}
	return out
}

func openCursor(doc string) (*qconfig.Store, *cursor.Cursor, error) {
	store := qconfig.New()
	c, err := store.Open(globalContext.create, doc)
	if err != nil {
		return nil, nil, err
	}
	return store, c, nil
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get DOCUMENT KEY",
		Short: "Print the value stored at KEY in DOCUMENT",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, c, err := openCursor(args[0])
			if err != nil {
				return err
			}
			defer store.Shutdown()

			v := c.Value(args[1], value.NewNull(), cursor.Normal)
			fmt.Println(renderScalar(v))
			return nil
		},
	}
}

func setCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set DOCUMENT KEY VALUE",
		Short: "Write VALUE at KEY in DOCUMENT and sync immediately",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, c, err := openCursor(args[0])
			if err != nil {
				return err
			}
			defer store.Shutdown()

			c.SetValue(args[1], value.NewScalar(value.Str(args[2])), cursor.Normal)
			c.Sync()
			return nil
		},
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync DOCUMENT",
		Short: "Open DOCUMENT and run its pending saves; an unmodified document is not rewritten",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, c, err := openCursor(args[0])
			if err != nil {
				return err
			}
			c.Sync()
			store.Shutdown()
			return nil
		},
	}
}

func renderScalar(v value.Value) string {
	s, ok := v.Scalar()
	if !ok {
		return ""
	}
	switch s.Kind {
	case value.String, value.Opaque:
		return s.Str
	case value.Int:
		return fmt.Sprintf("%d", s.Int)
	case value.Float:
		return fmt.Sprintf("%g", s.Float)
	case value.Bool:
		return fmt.Sprintf("%t", s.Bool)
	case value.Time:
		return s.Time.String()
	default:
		return fmt.Sprintf("%v", s.Bytes)
	}
}
