package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/pitline/pitline/console"
	"github.com/pitline/pitline/internal/logx"
	"github.com/pitline/pitline/schema"
	"pkt.systems/pslog"
)

func newChatCmd() *cobra.Command {
	var cfgPath string
	var userID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the copilot console on this terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := resolveLocalUser(userID)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx = logx.ContextWithUserLogger(ctx, pslog.Ctx(ctx).With("user", uid), uid)

			rt, err := buildRuntime(ctx, cfgPath)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			return runLocalConsole(ctx, rt, uid)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&userID, "user", "", "user id for history and snapshots (default: login name)")
	return cmd
}

func runLocalConsole(ctx context.Context, rt *appRuntime, uid schema.UserID) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("stdin is not a terminal; chat needs an interactive terminal")
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("raw mode: %w", err)
	}
	defer func() { _ = term.Restore(fd, oldState) }()

	cfg := rt.sessionConfig(ctx, uid)
	cfg.Output = os.Stdout

	chunks := make(chan string, 16)
	go readStdin(ctx, chunks)
	cfg.Chunks = chunks

	resize := make(chan console.Size, 4)
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, unix.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-winch:
				if w, h, err := term.GetSize(fd); err == nil {
					select {
					case resize <- console.Size{Width: w, Height: h}:
					default:
					}
				}
			}
		}
	}()
	cfg.Resize = resize

	ui := console.NewSession(cfg)
	if w, h, err := term.GetSize(fd); err == nil {
		ui.SetSize(w, h)
	}
	err = ui.Run(ctx)

	// Raw mode leaves the cursor mid-line; end cleanly before cobra
	// or the shell prints anything.
	fmt.Fprint(os.Stdout, "\r\n")
	return err
}

// readStdin forwards raw terminal input to the session and closes the
// channel on EOF so the session loop exits with the terminal.
func readStdin(ctx context.Context, chunks chan<- string) {
	defer close(chunks)
	buf := make([]byte, 1024)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			select {
			case chunks <- string(buf[:n]):
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if !errors.Is(err, os.ErrClosed) {
				pslog.Ctx(ctx).Debug("stdin closed", "err", err)
			}
			return
		}
	}
}

func resolveLocalUser(flagValue string) (schema.UserID, error) {
	name := strings.TrimSpace(flagValue)
	if name == "" {
		current, err := user.Current()
		if err != nil {
			return "", fmt.Errorf("resolve login name: %w (use --user)", err)
		}
		name = current.Username
	}
	uid := schema.UserID(strings.ToLower(name))
	if err := schema.ValidateUserID(uid); err != nil {
		return "", fmt.Errorf("user id %q: %w", name, err)
	}
	return uid, nil
}
