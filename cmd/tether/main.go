// Program tether is a command-line utility for running and talking to
// tether servers.
package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/tether"
	"github.com/creachadair/tether/eventlog"
	"github.com/creachadair/tether/handler"
)

var rootFlags struct {
	Config   string `flag:"config,Configuration file (TOML)"`
	LogLevel string `flag:"log-level,Log level (trace|debug|info|warn|error|off)"`
}

var serveFlags struct {
	Address string `flag:"address,Address to listen on (default 127.0.0.1)"`
	Port    int    `flag:"port,Port to listen on (default 8080)"`
	Reply   string `flag:"reply,Send this text back in response to every frame"`
	Echo    bool   `flag:"echo,Send unrecognized frames back to their sender"`
}

var clientFlags struct {
	Timeout time.Duration `flag:"timeout,Connection timeout (default 4s)"`
	Wait    time.Duration `flag:"wait,default=500ms,How long to wait for replies after sending"`
}

func main() {
	root := &command.C{
		Name:     filepath.Base(os.Args[0]),
		Help:     "Run and talk to servers using the tether text protocol.",
		SetFlags: command.Flags(flax.MustBind, &rootFlags),
		Commands: []*command.C{
			{
				Name: "serve",
				Help: `Run a server until interrupted.

Each line read from stdin is broadcast to every connected peer.
Frames received from peers are logged, and the following commands
are answered:

  echo <text>       : reply with text
  time              : reply with the current time
  count             : reply with the number of connected peers
  broadcast <text>  : send text to every connected peer
`,
				SetFlags: command.Flags(flax.MustBind, &serveFlags),
				Run:      runServe,
			},
			{
				Name:  "connect",
				Usage: "[host:port]",
				Help: `Connect to a server and exchange frames.

Each line read from stdin is sent as a frame, and each frame received is
printed to stdout. The connection closes at the end of input.`,
				SetFlags: command.Flags(flax.MustBind, &clientFlags),
				Run:      runConnect,
			},
			{
				Name:     "send",
				Usage:    "host:port <text>...",
				Help:     "Send each argument as a frame, and print the replies.",
				SetFlags: command.Flags(flax.MustBind, &clientFlags),
				Run:      runSend,
			},
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

// setup loads the configuration and constructs an event logger for it.
func setup() (Config, *eventlog.Logger, error) {
	cfg, err := loadConfig(rootFlags.Config)
	if err != nil {
		return Config{}, nil, err
	}
	if rootFlags.LogLevel != "" {
		cfg.Log.Level = rootFlags.LogLevel
	}
	return cfg, eventlog.New(newLogger(os.Stderr, cfg.Log)), nil
}

func runServe(env *command.Env) error {
	if len(env.Args) != 0 {
		return env.Usagef("extra arguments: %q", env.Args)
	}
	cfg, elog, err := setup()
	if err != nil {
		return err
	}
	if serveFlags.Address != "" {
		cfg.Server.Address = serveFlags.Address
	}
	if serveFlags.Port != 0 {
		cfg.Server.Port = serveFlags.Port
	}
	if serveFlags.Reply != "" {
		cfg.Server.Reply = serveFlags.Reply
	}
	cfg.Server.Echo = cfg.Server.Echo || serveFlags.Echo
	if err := cfg.Validate(); err != nil {
		return err
	}

	srv := elog.Attach(tether.NewServer())
	mux := newServeMux(srv, cfg.Server.Echo)
	srv.OnData(func(c *tether.Conn, text string) {
		elog.Data(c, text)
		if cfg.Server.Reply != "" {
			c.Send(cfg.Server.Reply)
		}
		mux.Dispatch(c, text)
	})
	if err := srv.Start(cfg.Server.Address, cfg.Server.Port); err != nil {
		return err
	}
	defer srv.Stop()

	ctx, cancel := signal.NotifyContext(env.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Broadcast input lines until interrupted. At the end of input the server
	// keeps running.
	lines := readLines(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			srv.Broadcast(line)
		}
	}
}

// newServeMux returns a mux for the commands answered by the serve command.
// If echo is true, frames that do not match a command are sent back.
func newServeMux(srv *tether.Server, echo bool) *handler.Mux {
	m := handler.NewMux().
		Handle("echo", handler.ParamResult(func(_ *tether.Conn, text string) string {
			return text
		})).
		Handle("time", handler.ParamResult(func(*tether.Conn, string) string {
			return time.Now().Format(time.RFC3339)
		})).
		Handle("count", handler.ParamResult(func(*tether.Conn, string) string {
			return strconv.Itoa(srv.ConnectedCount())
		})).
		Handle("broadcast", handler.ParamError(func(_ *tether.Conn, text string) error {
			srv.Broadcast(text)
			return nil
		}))
	if echo {
		m.Handle("", func(c *tether.Conn, text string) { c.Send(text) })
	} else {
		m.Handle("", func(*tether.Conn, string) {}) // already logged
	}
	return m
}

func runConnect(env *command.Env) error {
	cfg, elog, err := setup()
	if err != nil {
		return err
	}
	host, port := cfg.Client.Host, cfg.Client.Port
	switch len(env.Args) {
	case 0:
	case 1:
		host, port, err = splitHostPort(env.Args[0])
		if err != nil {
			return err
		}
	default:
		return env.Usagef("extra arguments after address: %q", env.Args[1:])
	}

	done := make(chan struct{})
	cli := elog.AttachClient(tether.NewClient()).
		OnData(func(text string) {
			elog.ClientData(text)
			fmt.Println(text)
		}).
		OnDisconnect(func() {
			elog.ClientDisconnected()
			close(done)
		})
	if err := cli.Connect(env.Context(), host, port, timeoutOr(cfg.Client.Timeout)); err != nil {
		return err
	}
	defer cli.Wait()
	defer cli.Disconnect()

	ctx, cancel := signal.NotifyContext(env.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	lines := readLines(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return nil // the server closed the connection
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			cli.Send(line)
		}
	}
}

func runSend(env *command.Env) error {
	if len(env.Args) < 2 {
		return env.Usagef("missing address and text")
	}
	host, port, err := splitHostPort(env.Args[0])
	if err != nil {
		return err
	}
	cfg, elog, err := setup()
	if err != nil {
		return err
	}

	cli := elog.AttachClient(tether.NewClient()).OnData(func(text string) {
		fmt.Println(text)
	})
	if err := cli.Connect(env.Context(), host, port, timeoutOr(cfg.Client.Timeout)); err != nil {
		return err
	}
	for _, text := range env.Args[1:] {
		cli.Send(text)
	}

	// Give the server a chance to reply before hanging up.
	select {
	case <-env.Context().Done():
	case <-time.After(clientFlags.Wait):
	}
	cli.Disconnect()
	cli.Wait()
	return nil
}

func timeoutOr(d time.Duration) time.Duration {
	if clientFlags.Timeout > 0 {
		return clientFlags.Timeout
	}
	return d
}

func splitHostPort(s string) (string, int, error) {
	host, ps, err := net.SplitHostPort(s)
	if err != nil {
		return "", 0, fmt.Errorf("invalid address: %w", err)
	}
	port, err := strconv.Atoi(ps)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q", ps)
	}
	return host, port, nil
}

// readLines returns a channel that delivers the lines of r, and is closed at
// the end of input.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}
