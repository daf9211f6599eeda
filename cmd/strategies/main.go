// Command strategies prints the best learned action for the top-valued
// states of each persisted agent table.
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/logrusorgru/aurora"
	flag "github.com/spf13/pflag"

	"github.com/talgya/clipwright/internal/agents"
	"github.com/talgya/clipwright/internal/config"
	"github.com/talgya/clipwright/internal/qlearn"
)

func main() {
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "strategies:", err)
		os.Exit(1)
	}
}

func run(w io.Writer, args []string) error {
	flags := flag.NewFlagSet("strategies", flag.ContinueOnError)
	dataDir := flags.String("data-dir", "data", "directory holding the Q-table files")
	top := flags.IntP("top", "n", 10, "states to show per agent")
	only := flags.String("agent", "", "show a single agent (production, resource or price)")
	noColor := flags.Bool("no-color", false, "disable coloured output")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *top < 0 {
		return fmt.Errorf("--top %d must not be negative", *top)
	}

	au := aurora.NewAurora(!*noColor)
	paths := config.Config{DataDir: *dataDir}

	shown := 0
	for _, s := range []agents.Strategy{agents.NewProduction(), agents.NewResource(), agents.NewPrice()} {
		if *only != "" && *only != s.Name() {
			continue
		}
		shown++
		if err := printAgent(w, au, s, paths.TablePath(s.Name()), *top); err != nil {
			return err
		}
	}
	if shown == 0 {
		return fmt.Errorf("unknown agent %q", *only)
	}
	return nil
}

func printAgent(w io.Writer, au aurora.Aurora, s agents.Strategy, path string, top int) error {
	fmt.Fprintln(w, au.Bold(au.Cyan(fmt.Sprintf("== %s ==", s.Name()))))

	t, err := qlearn.ReadTable(path, len(s.Actions()))
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(w, au.Yellow("  no table yet: "+path))
		fmt.Fprintln(w)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "  %s states learned\n", humanize.Comma(int64(t.Len())))
	for i, st := range qlearn.SummarizeTable(t, s.Actions(), top) {
		value := au.Green(fmt.Sprintf("%10.3f", st.Value))
		if st.Value < 0 {
			value = au.Red(fmt.Sprintf("%10.3f", st.Value))
		}
		fmt.Fprintf(w, "  %3d. %s  %-20s %s\n", i+1, value, st.Action, st.State)
	}
	fmt.Fprintln(w)
	return nil
}
