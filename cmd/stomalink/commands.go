package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stomasense/stomalink/internal/calib"
	"github.com/stomasense/stomalink/pkg/link"
	"github.com/stomasense/stomalink/pkg/log"
	"github.com/stomasense/stomalink/pkg/session"
	"github.com/stomasense/stomalink/pkg/state"
	"github.com/stomasense/stomalink/pkg/stomalink"
)

// connect validates the configuration and starts a client. The caller
// must Stop it.
func (c *cli) connect(ctx context.Context, opts ...stomalink.Option) (*stomalink.Client, error) {
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}
	c.logger.Debug("configuration", log.Any("config", c.cfg))

	opts = append([]stomalink.Option{stomalink.WithLogger(c.logger)}, opts...)
	client, err := stomalink.New(c.cfg.ClientConfig(), opts...)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	if err := client.Start(ctx); err != nil {
		return nil, fmt.Errorf("start client: %w", err)
	}
	return client, nil
}

// withClient runs fn against a started client and stops it afterwards.
func (c *cli) withClient(cmd *cobra.Command, fn func(ctx context.Context, client *stomalink.Client) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	runErr := fn(ctx, client)
	if err := client.Stop(); err != nil && runErr == nil {
		runErr = fmt.Errorf("stop client: %w", err)
	}
	return runErr
}

func (c *cli) calibService(client *stomalink.Client) *calib.Service {
	return calib.New(client.Session(), c.logger,
		calib.WithTimeouts(c.cfg.CalibTimeouts()),
		calib.WithRepository(state.NewFileRepository(c.cfg.StateDir)),
		calib.WithPort(c.cfg.Port),
	)
}

func printRecord(cmd *cobra.Command, r session.Response) {
	fmt.Fprintln(cmd.OutOrStdout(), r.String())
}

func (c *cli) portsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List attached serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := link.ListPorts()
			if err != nil {
				return fmt.Errorf("list ports: %w", err)
			}
			if len(ports) == 0 {
				c.logger.Warn("no serial ports found")
			}
			for _, p := range ports {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}

func (c *cli) okCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ok",
		Short: "Check that the device answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(cmd, func(ctx context.Context, client *stomalink.Client) error {
				r, err := c.calibService(client).Ping(ctx)
				if err != nil {
					return err
				}
				printRecord(cmd, r)
				return nil
			})
		},
	}
}

func (c *cli) rawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "raw <slot> <n> [timeout-ms]",
		Short: "Sample a load cell n times",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ints, err := parseInts(args)
			if err != nil {
				return err
			}
			timeoutMs := calib.DefaultRawTimeoutMs
			if len(ints) == 3 {
				timeoutMs = ints[2]
			}
			return c.withClient(cmd, func(ctx context.Context, client *stomalink.Client) error {
				r, err := c.calibService(client).HxRaw(ctx, ints[0], ints[1], timeoutMs)
				if err != nil {
					return err
				}
				printRecord(cmd, r)
				return nil
			})
		},
	}
}

func (c *cli) calibCmd() *cobra.Command {
	calibCmd := &cobra.Command{
		Use:   "calib",
		Short: "Load-cell calibration",
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Print the device calibration table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(cmd, func(ctx context.Context, client *stomalink.Client) error {
				r, err := c.calibService(client).Get(ctx)
				if err != nil {
					return err
				}
				printRecord(cmd, r)
				return nil
			})
		},
	}

	null := &cobra.Command{
		Use:   "null <slot>...",
		Short: "Reset slots to an identity calibration",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slots, err := parseInts(args)
			if err != nil {
				return err
			}
			return c.withClient(cmd, func(ctx context.Context, client *stomalink.Client) error {
				r, err := c.calibService(client).SetNull(ctx, slots)
				if err != nil {
					return err
				}
				printRecord(cmd, r)
				return nil
			})
		},
	}

	run := &cobra.Command{
		Use:   "run <slot> <n> <weight> <weight-error>",
		Short: "Calibrate offset and slope against a reference weight",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ints, err := parseInts(args[:2])
			if err != nil {
				return err
			}
			weight, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("weight: %w", err)
			}
			weightErr, err := strconv.ParseFloat(args[3], 64)
			if err != nil {
				return fmt.Errorf("weight-error: %w", err)
			}
			return c.withClient(cmd, func(ctx context.Context, client *stomalink.Client) error {
				r, err := c.calibService(client).Calibrate(ctx, ints[0], ints[1], weight, weightErr)
				if !r.IsZero() {
					printRecord(cmd, r)
				}
				return err
			})
		},
	}

	calibCmd.AddCommand(get, null, run)
	return calibCmd
}

func (c *cli) sendCmd() *cobra.Command {
	var wait, result time.Duration

	cmd := &cobra.Command{
		Use:   "send <cmd> [args...]",
		Short: "Send a raw command and print its reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			cmdArgs := make([]any, len(args)-1)
			for i, a := range args[1:] {
				cmdArgs[i] = a
			}

			return c.withClient(cmd, func(ctx context.Context, client *stomalink.Client) error {
				s := client.Session()
				if wait <= 0 {
					return s.SendCommand(name, cmdArgs...)
				}

				var r session.Response
				var err error
				if result > 0 {
					r, err = s.Call(ctx, session.CallOptions{AckTimeout: wait, ResultTimeout: result}, name, cmdArgs...)
				} else {
					r, err = s.Request(ctx, wait, name, cmdArgs...)
				}
				if err != nil {
					return err
				}
				printRecord(cmd, r)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 5*time.Second, "wait for the reply (0 sends without waiting)")
	cmd.Flags().DurationVar(&result, "result-timeout", 0, "wait for a deferred result after a processing acknowledgment")
	return cmd
}

func (c *cli) monitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Print every record until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, ctx := errgroup.WithContext(cmd.Context())

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			g.Go(func() error {
				select {
				case sig := <-sigCh:
					c.logger.Info("received signal, stopping...", log.String("signal", sig.String()))
					return errStopped
				case <-ctx.Done():
					return nil
				}
			})

			g.Go(func() error {
				client, err := c.connect(ctx)
				if err != nil {
					return err
				}
				runErr := printRecords(ctx, client.Session(), cmd.OutOrStdout())
				if err := client.Stop(); err != nil && runErr == nil {
					runErr = fmt.Errorf("stop client: %w", err)
				}
				return runErr
			})

			if err := g.Wait(); err != nil && !errors.Is(err, errStopped) {
				return err
			}
			return nil
		},
	}
}

var errStopped = errors.New("stopped by signal")

// printRecords takes every record off the queue in arrival order and
// writes it to w until ctx is done.
func printRecords(ctx context.Context, s *session.Session, w io.Writer) error {
	for {
		r, err := s.WaitForResponse(ctx, "", 0)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fmt.Fprintln(w, r.String())
	}
}

func parseInts(args []string) ([]int, error) {
	out := make([]int, len(args))
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", a, err)
		}
		out[i] = v
	}
	return out, nil
}
