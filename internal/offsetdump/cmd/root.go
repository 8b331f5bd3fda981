package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/charmbracelet/fang"
	charmlog "github.com/charmbracelet/log"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"offsetdump/internal/config"
	"offsetdump/internal/dump"
	"offsetdump/internal/logging"
	"offsetdump/internal/memory"
	"offsetdump/internal/offsetdump/log"
	"offsetdump/internal/output"
	"offsetdump/internal/procmem"
	"offsetdump/internal/trace"
	"offsetdump/internal/ui/colorize"
)

const defaultConfigPath = "config.json"

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase log verbosity")
	rootCmd.PersistentFlags().StringP("target", "t", "", "Target process executable name (overrides the config)")
	rootCmd.PersistentFlags().StringP("bitness", "b", "", "Pointer width of the target: x86 or x64")
	rootCmd.PersistentFlags().Int32P("pid", "p", 0, "Attach to this process id instead of searching by name")
	rootCmd.PersistentFlags().Bool("match-count", false, "Count every match of each pattern and warn about ambiguous ones")

	rootCmd.Flags().BoolP("help", "h", false, "Help")
	rootCmd.Flags().StringP("output", "o", "", "Base name of the output files (overrides the config)")
	rootCmd.Flags().StringSliceP("format", "f", nil, "Output formats: json, min.json, yaml, toml, hpp, cs, vb, rs (default all)")
	rootCmd.Flags().Bool("print", false, "Print the C++ header to stdout instead of a summary")
	rootCmd.Flags().BoolP("no-tui", "n", false, "Plain summary without markdown rendering")
	rootCmd.Flags().String("cpuprofile", "", "Write CPU profile to file")
	rootCmd.Flags().String("memprofile", "", "Write memory profile to file")
}

var rootCmd = &cobra.Command{
	Use:   "offsetdump [config]",
	Short: "Signature and netvar offset dumper",
	Long: `Offsetdump attaches to a running process, snapshots its modules and resolves
the signatures and network variables listed in the config file. Results are
written as JSON, YAML and source headers.`,
	Example: `
# Dump with config.json from the current directory
offsetdump

# Use a YAML config, attach by pid and only write headers
offsetdump -p 4242 -f hpp,cs offsets.yaml

# Print the generated header with debug logging
offsetdump -v --print
  `,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cpuprofile, _ := cmd.Flags().GetString("cpuprofile")
		if cpuprofile != "" {
			f, err := os.Create(cpuprofile)
			if err != nil {
				return fmt.Errorf("could not create CPU profile: %v", err)
			}
			defer f.Close()
			if err := pprof.StartCPUProfile(f); err != nil {
				return fmt.Errorf("could not start CPU profile: %v", err)
			}
			defer pprof.StopCPUProfile()
		}

		memprofile, _ := cmd.Flags().GetString("memprofile")
		if memprofile != "" {
			defer func() {
				f, err := os.Create(memprofile)
				if err != nil {
					fmt.Fprintf(os.Stderr, "could not create memory profile: %v\n", err)
					return
				}
				defer f.Close()
				if err := pprof.WriteHeapProfile(f); err != nil {
					fmt.Fprintf(os.Stderr, "could not write memory profile: %v\n", err)
				}
			}()
		}

		formatNames, _ := cmd.Flags().GetStringSlice("format")
		formats, err := output.ParseFormats(formatNames)
		if err != nil {
			return err
		}

		s, err := newSession(cmd, args)
		if err != nil {
			return err
		}
		defer s.Close()

		if name, _ := cmd.Flags().GetString("output"); name != "" {
			s.cfg.Filename = name
		}

		interactive := term.IsTerminal(os.Stdout.Fd())
		if !interactive {
			os.Setenv("OFFSETDUMP_NO_COLOR", "1")
		}
		noTUI, _ := cmd.Flags().GetBool("no-tui")
		printHeader, _ := cmd.Flags().GetBool("print")
		if interactive && !noTUI && !printHeader {
			return runBrowser(cmd, s, formats)
		}

		rep, err := s.run(cmd.Context())
		if err != nil {
			return err
		}

		res := output.FromReport(rep, time.Now())
		written, err := res.WriteFiles(s.cfg.Filename, formats)
		if err != nil {
			return fmt.Errorf("write results: %w", err)
		}
		s.logger.Info("results written", "files", strings.Join(written, ", "))

		if printHeader {
			hpp, err := res.Bytes(output.HPP)
			if err != nil {
				return err
			}
			colored, err := colorize.Source(string(hpp), string(output.HPP))
			if err != nil {
				colored = string(hpp)
			}
			fmt.Fprint(cmd.OutOrStdout(), colored)
			return nil
		}

		if !interactive {
			fmt.Fprint(cmd.OutOrStdout(), renderPlain(rep, s.target))
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), renderMarkdown(rep, s.target, 100))
		return nil
	},
}

// session is a loaded config attached to a live process.
type session struct {
	cfg    *config.Config
	logger *logging.LoggerCloser
	target procmem.Target
	proc   memory.Process
	width  memory.PointerWidth
	count  bool
}

func newSession(cmd *cobra.Command, args []string) (*session, error) {
	lg := logging.NewLogger()
	verbose, _ := cmd.Flags().GetCount("verbose")
	if verbose > 0 {
		lg.SetLevel(charmlog.DebugLevel)
	}
	log.Setup(lg.Logger, verbose > 1)

	path := defaultConfigPath
	if len(args) > 0 {
		path = args[0]
	}
	cfg := loadConfig(path, lg.Logger)

	s := &session{cfg: cfg, logger: lg}
	if t, _ := cmd.Flags().GetString("target"); t != "" {
		cfg.Executable = t
	}
	if b, _ := cmd.Flags().GetString("bitness"); b != "" {
		cfg.Bitness = b
	}
	if cfg.Bitness != "" {
		w, err := memory.ParsePointerWidth(cfg.Bitness)
		if err != nil {
			lg.Close()
			return nil, err
		}
		s.width = w
	}
	s.count, _ = cmd.Flags().GetBool("match-count")

	pid, _ := cmd.Flags().GetInt32("pid")
	if err := s.attach(cmd.Context(), pid); err != nil {
		lg.Close()
		return nil, err
	}
	return s, nil
}

// loadConfig falls back to the built in defaults when path cannot be used.
func loadConfig(path string, lg *charmlog.Logger) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			lg.Warn("config not found, using defaults", "path", path)
		} else {
			lg.Warn("could not load config, using defaults", "path", path, "error", err)
		}
		return config.Default()
	}
	lg.Debug("config loaded", "path", path, "signatures", len(cfg.Signatures), "netvars", len(cfg.Netvars))
	return cfg
}

func (s *session) attach(ctx context.Context, pid int32) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		t   procmem.Target
		err error
	)
	if pid != 0 {
		t, err = procmem.FindByPID(ctx, pid)
	} else {
		t, err = procmem.FindByName(ctx, s.cfg.Executable)
	}
	if err != nil {
		return fmt.Errorf("could not find process: %w", err)
	}

	proc, err := procmem.OpenTarget(t)
	if err != nil {
		return err
	}
	s.target = t
	s.proc = proc
	s.logger.Info("attached", "process", t.Name, "pid", t.PID, "bitness", proc.PointerWidth())
	return nil
}

func (s *session) run(ctx context.Context) (*dump.Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return dump.Run(ctx, s.proc, s.cfg, s.dumpOptions(logging.TraceSink(s.logger.Logger)))
}

func (s *session) dumpOptions(sink trace.Sink) dump.Options {
	return dump.Options{Width: s.width, MatchCount: s.count, Trace: sink}
}

func (s *session) Close() error {
	if s.proc != nil {
		if err := s.proc.Close(); err != nil {
			slog.Debug("close process", "error", err)
		}
	}
	return s.logger.Close()
}

func Execute() {
	noTUI := false
	for _, arg := range os.Args[1:] {
		if arg == "--no-tui" || arg == "-n" {
			noTUI = true
			break
		}
	}

	// Bypass fang when output is being piped
	if !noTUI && !term.IsTerminal(os.Stdout.Fd()) {
		noTUI = true
	}

	if noTUI {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
	} else {
		if err := fang.Execute(
			context.Background(),
			rootCmd,
			fang.WithNotifySignal(os.Interrupt),
		); err != nil {
			os.Exit(1)
		}
	}
}
