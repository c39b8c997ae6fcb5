package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/unitdebug/internal/cliconfig"
	"github.com/bft-labs/unitdebug/internal/debugger"
	"github.com/bft-labs/unitdebug/internal/runtimeconf"
	_ "github.com/bft-labs/unitdebug/internal/units"
	"github.com/bft-labs/unitdebug/pkg/log"
	"github.com/bft-labs/unitdebug/pkg/pipeline"
	"github.com/bft-labs/unitdebug/pkg/unit"
)

const longHelp = `Attach to a unit instance with verbose logging and run it in a controlled way.

Without a subcommand the unit runs its normal main loop. The subcommands
process a single message (optionally injected or as a dry run), inspect or
manipulate the unit's queues, or open an interactive console on the unit.`

var exampleUsage = strings.TrimSpace(`
  unitdebug run filter-expert
  unitdebug process filter-expert --dryrun --msg '{"source.port": 8080}'
  unitdebug message get filter-expert
  unitdebug message send filter-expert '{"comment": "hello"}'
  unitdebug console filter-expert lua
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// cli carries the configuration shared by all subcommands.
type cli struct {
	cfg     cliconfig.Config
	cfgPath string
	module  string
	logger  *log.Handle
}

func main() {
	c := &cli{cfg: cliconfig.DefaultConfig()}
	c.logger = cliconfig.Logger(c.cfg.LogLevel)

	root := &cobra.Command{
		Use:           "unitdebug",
		Short:         "Interactive debugger for message-processing units",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgPath, "config", "", "path to config file (default: $HOME/.unitdebug/config.toml)")
	flags.StringVar(&c.cfg.RuntimePath, "runtime", c.cfg.RuntimePath, "runtime configuration of the units")
	flags.StringVar(&c.module, "module", "", "module reference overriding the unit's configured module")
	flags.StringVar(&c.cfg.Broker, "broker", c.cfg.Broker, "queue broker: sqlite or memory")
	flags.StringVar(&c.cfg.QueueDB, "queue-db", c.cfg.QueueDB, "sqlite database holding the queues")
	flags.StringVar(&c.cfg.LogDir, "log-dir", c.cfg.LogDir, "directory for unit log and dump files")
	flags.StringVar(&c.cfg.LogLevel, "log-level", c.cfg.LogLevel, "log level of unitdebug itself")
	flags.StringVar(&c.cfg.ConsoleKind, "console", c.cfg.ConsoleKind, "preferred console when the console subcommand gets no KIND")
	flags.StringVar(&c.cfg.MetricsAddr, "metrics-addr", c.cfg.MetricsAddr, "serve unit metrics on this address while running")
	flags.DurationVar(&c.cfg.PollInterval, "poll", c.cfg.PollInterval, "poll interval when the source queue is empty")

	root.AddCommand(
		c.runCommand(),
		c.processCommand(),
		c.messageCommand(),
		c.consoleCommand(),
		c.unitsCommand(),
	)

	if err := root.Execute(); err != nil {
		c.logger.Error("unitdebug", log.Err(err))
		os.Exit(1)
	}
}

// load resolves the configuration: flags override environment variables
// (UNITDEBUG_*), which override the config file.
func (c *cli) load(cmd *cobra.Command) error {
	cfgFile := c.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&c.cfg, fc, changed); err != nil {
			return err
		}
	}
	if err := cliconfig.ApplyEnvConfig(&c.cfg, changed); err != nil {
		return err
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	c.logger = cliconfig.Logger(c.cfg.LogLevel)
	c.logger.Debug("configuration", log.Any("config", c.cfg))
	return nil
}

func (c *cli) broker() pipeline.Broker {
	if c.cfg.Broker == cliconfig.BrokerMemory {
		return pipeline.NewMemoryBroker()
	}
	return pipeline.NewSQLiteBroker(pipeline.SQLiteConfig{Path: c.cfg.QueueDB})
}

func (c *cli) controller() *debugger.Controller {
	opts := []unit.Option{
		unit.WithConfigSource(runtimeconf.Open(c.cfg.RuntimePath)),
		unit.WithBroker(c.broker()),
		unit.WithPollInterval(c.cfg.PollInterval),
	}
	if c.cfg.LogDir != "" {
		opts = append(opts, unit.WithLogDir(c.cfg.LogDir))
	}
	if c.cfg.MetricsAddr != "" {
		opts = append(opts, unit.WithMetricsAddr(c.cfg.MetricsAddr))
	}
	return debugger.NewController(unit.DefaultRegistry(),
		debugger.WithUnitOptions(opts...),
		debugger.WithLogger(c.logger),
	)
}

// session runs one debugging session, cancelling it on SIGINT or SIGTERM.
func (c *cli) session(o debugger.Options) error {
	o.Module = c.module

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			c.logger.Info("received signal, stopping...")
			cancel()
		case <-ctx.Done():
		}
	}()

	err := c.controller().Run(ctx, o)
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *cli) runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run UNIT_ID",
		Short: "Run the unit's main loop with debug logging",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.session(debugger.Options{UnitID: args[0], Subcommand: debugger.SubcommandRun})
		},
	}
}

func (c *cli) processCommand() *cobra.Command {
	var (
		dryRun bool
		msg    string
	)
	cmd := &cobra.Command{
		Use:   "process UNIT_ID",
		Short: "Process a single message",
		Long: `Process a single message. With --msg the given JSON is processed instead
of the next queued message. With --dryrun nothing is sent or acknowledged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.session(debugger.Options{
				UnitID:     args[0],
				Subcommand: debugger.SubcommandProcess,
				DryRun:     dryRun,
				Message:    msg,
			})
		},
	}
	cmd.Flags().BoolVarP(&dryRun, "dryrun", "d", false, "never really send or acknowledge messages")
	cmd.Flags().StringVarP(&msg, "msg", "m", "", "process this message instead of one from the source queue")
	return cmd
}

func (c *cli) messageCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "message get|pop|send UNIT_ID [MESSAGE]",
		Short: "Inspect or manipulate the unit's queues",
		Long: `get  shows the next message without removing it from the source queue.
pop  removes the next message from the source queue and shows it.
send sends MESSAGE to the unit's output paths.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			o := debugger.Options{
				UnitID:        args[1],
				Subcommand:    debugger.SubcommandMessage,
				MessageAction: debugger.MessageAction(args[0]),
			}
			if len(args) == 3 {
				o.Message = args[2]
			}
			return c.session(o)
		},
	}
}

func (c *cli) consoleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "console UNIT_ID [KIND]",
		Short: "Open an interactive console on the unit",
		Long: `Open an interactive console on the unit. KIND selects the preferred console
(lua, jq or shell); unavailable consoles fall back in that order.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := c.cfg.ConsoleKind
			if len(args) == 2 {
				kind = args[1]
			}
			return c.session(debugger.Options{
				UnitID:      args[0],
				Subcommand:  debugger.SubcommandConsole,
				ConsoleKind: kind,
			})
		},
	}
}

func (c *cli) unitsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "units",
		Short: "List configured units and available modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ids, err := runtimeconf.Open(c.cfg.RuntimePath).Units()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "Units:")
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			fmt.Fprintln(out, "Modules:")
			for _, m := range unit.DefaultRegistry().Modules() {
				fmt.Fprintf(out, "  %s\n", m)
			}
			return nil
		},
	}
}
