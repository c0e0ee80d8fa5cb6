package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/stomasense/stomalink/internal/cliconfig"
	"github.com/stomasense/stomalink/pkg/log"
)

const helpDescription = `
Talk to a StomaSense device over its serial port.

The device prints one JSON object per line. stomalink sends text commands,
correlates the replies by their "cmd" field and runs the load-cell
calibration workflows.

Configuration is read from $HOME/.stomalink/config.toml, STOMALINK_*
environment variables and flags, in increasing order of precedence.
`

var exampleUsage = strings.TrimSpace(`
  stomalink ports
  stomalink --port /dev/ttyACM0 ok
  stomalink --port /dev/ttyACM0 raw 0 10
  stomalink --port /dev/ttyACM0 calib run 0 10 5 0.1
  stomalink --port /dev/ttyACM0 send pump 250 50 --wait 2s
  stomalink --port /dev/ttyACM0 --wait-for-port 1m monitor
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// cli carries the resolved configuration and logger across subcommands.
type cli struct {
	cfg      cliconfig.Config
	cfgPath  string
	logger   log.Logger
	closeLog func() error
}

func main() {
	c := &cli{
		cfg:      cliconfig.DefaultConfig(),
		logger:   log.NewZerologAdapter(),
		closeLog: func() error { return nil },
	}

	root := &cobra.Command{
		Use:           "stomalink",
		Short:         "Host client for StomaSense devices",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadConfig(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.closeLog()
		},
	}
	c.bindFlags(root.PersistentFlags())

	root.AddCommand(
		c.portsCmd(),
		c.okCmd(),
		c.rawCmd(),
		c.calibCmd(),
		c.sendCmd(),
		c.monitorCmd(),
	)

	if err := root.Execute(); err != nil {
		c.logger.Error("stomalink", log.Err(err))
		_ = c.closeLog()
		os.Exit(1)
	}
}

func (c *cli) bindFlags(fs *pflag.FlagSet) {
	cfg := &c.cfg
	fs.StringVar(&c.cfgPath, "config", "", "path to config file (default: $HOME/.stomalink/config.toml)")

	fs.StringVarP(&cfg.Port, "port", "p", cfg.Port, "serial device, e.g. /dev/ttyACM0 or COM3")
	fs.IntVar(&cfg.BaudRate, "baud", cfg.BaudRate, "baud rate")
	fs.StringVar(&cfg.Driver, "driver", cfg.Driver, "serial driver (tarm or gobug)")
	fs.StringVar(&cfg.Terminator, "terminator", cfg.Terminator, "message terminator, Go escapes allowed")
	fs.StringVar(&cfg.Ignore, "ignore", cfg.Ignore, "bytes stripped from device output, Go escapes allowed")
	fs.StringVar(&cfg.Separator, "separator", cfg.Separator, "command argument separator")
	fs.IntVar(&cfg.MaxMessageLen, "max-message-len", cfg.MaxMessageLen, "maximum message length before older bytes are dropped")
	fs.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "driver read timeout")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "write timeout (0 disables)")
	fs.DurationVar(&cfg.IdleInterval, "idle-interval", cfg.IdleInterval, "sleep between empty reads")
	fs.IntVar(&cfg.QueueCapacity, "queue-capacity", cfg.QueueCapacity, "maximum undelivered records")
	fs.DurationVar(&cfg.AckTimeout, "ack-timeout", cfg.AckTimeout, "wait for single replies and acknowledgments")
	fs.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "directory for calibration.json (default: $HOME/.stomalink)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "additional JSON log file")
	fs.DurationVar(&cfg.WaitForPort, "wait-for-port", cfg.WaitForPort, "wait this long for the device to be attached")
	fs.BoolVar(&cfg.SkipPortCheck, "skip-port-check", cfg.SkipPortCheck, "open the port even if it is not listed")
}

// loadConfig applies the config file and environment below explicitly set
// flags, then replaces the bootstrap logger.
func (c *cli) loadConfig(cmd *cobra.Command) error {
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

	logger, closeLog, err := cliconfig.NewLogger(c.cfg, os.Stderr)
	if err != nil {
		return err
	}
	c.logger = logger
	c.closeLog = closeLog
	return nil
}
