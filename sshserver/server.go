// Package sshserver serves the pitline console over SSH. Login is
// public key first, then a TOTP code via keyboard-interactive; each
// authenticated session gets its own console.Session fed from the
// network connection.
package sshserver

import (
	"context"
	"errors"
	"io"
	"net"

	gliderssh "github.com/gliderlabs/ssh"
	"golang.org/x/crypto/ssh"

	"github.com/pitline/pitline/console"
	"github.com/pitline/pitline/internal/eventbus"
	"github.com/pitline/pitline/internal/logx"
	"github.com/pitline/pitline/schema"
	"pkt.systems/pslog"
)

// LoginAuthStore validates SSH login credentials.
type LoginAuthStore interface {
	HasLoginPubKey(userID schema.UserID, key ssh.PublicKey) (bool, error)
	ValidateTOTP(username string, totpCode string) error
}

// SessionFactory builds the console session for an authenticated user.
// The server fills cfg's transport fields (Output, Chunks, Resize,
// Events, UserID) before calling; the factory adds the copilot,
// command handler, theme, and snapshot wiring.
type SessionFactory func(ctx context.Context, cfg console.Config) (*console.Session, error)

// Server exposes pitline over SSH.
type Server struct {
	Addr        string
	HostKeyPath string
	Listener    net.Listener
	AuthStore   LoginAuthStore
	EventBus    *eventbus.Bus
	NewSession  SessionFactory
	logger      pslog.Logger
}

type authContextKey string

const loginPubKeyOK authContextKey = "login-pubkey-ok"

// ListenAndServe starts the SSH server and shuts down on context
// cancellation.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.logger == nil {
		s.logger = pslog.Ctx(ctx)
	}
	if s.AuthStore == nil {
		return errors.New("auth store is required for SSH")
	}
	if s.NewSession == nil {
		return errors.New("session factory is required")
	}

	signer, err := EnsureHostKey(s.HostKeyPath)
	if err != nil {
		return err
	}

	server := &gliderssh.Server{
		Addr:                       s.Addr,
		Handler:                    s.handleSession,
		PublicKeyHandler:           s.handlePublicKey,
		KeyboardInteractiveHandler: s.handleKeyboardInteractive,
	}
	server.AddHostKey(signer)

	errCh := make(chan error, 1)
	go func() {
		if s.Listener != nil {
			errCh <- server.Serve(s.Listener)
			return
		}
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		_ = server.Close()
		return nil
	case err := <-errCh:
		return err
	}
}

// handlePublicKey records a matching key on the connection context but
// still returns false: the TOTP challenge must also pass, so auth
// falls through to keyboard-interactive.
func (s *Server) handlePublicKey(ctx gliderssh.Context, key gliderssh.PublicKey) bool {
	fingerprint := ssh.FingerprintSHA256(key)
	userID := schema.UserID(ctx.User())
	log := s.logger.With("remote", remoteAddr(ctx), "fingerprint", fingerprint)
	if userID == "" {
		log.Warn("ssh pubkey rejected", "reason", "missing user")
		return false
	}
	log = log.With("user", userID)
	ok, err := s.AuthStore.HasLoginPubKey(userID, key)
	if err != nil {
		log.Warn("ssh pubkey rejected", "err", err)
		return false
	}
	if !ok {
		log.Warn("ssh pubkey rejected", "reason", "no matching key")
		return false
	}
	ctx.SetValue(loginPubKeyOK, true)
	log.Info("ssh pubkey accepted")
	return false
}

func (s *Server) handleKeyboardInteractive(ctx gliderssh.Context, challenger ssh.KeyboardInteractiveChallenge) bool {
	if ctx.Value(loginPubKeyOK) != true {
		return false
	}
	userID := schema.UserID(ctx.User())
	log := s.logger.With("user", userID, "remote", remoteAddr(ctx))
	answers, err := challenger(ctx.User(), "", []string{"Verification code: "}, []bool{false})
	if err != nil {
		log.Warn("ssh totp rejected", "reason", "challenge failed", "err", err)
		return false
	}
	if len(answers) != 1 {
		log.Warn("ssh totp rejected", "reason", "invalid answer count", "count", len(answers))
		return false
	}
	if err := s.AuthStore.ValidateTOTP(ctx.User(), answers[0]); err != nil {
		log.Warn("ssh totp rejected", "reason", "invalid code", "err", err)
		return false
	}
	log.Info("ssh totp accepted")
	return true
}

func remoteAddr(ctx gliderssh.Context) string {
	if ctx == nil || ctx.RemoteAddr() == nil {
		return ""
	}
	return ctx.RemoteAddr().String()
}

func (s *Server) handleSession(sess gliderssh.Session) {
	userID := schema.UserID(sess.User())
	remote := sess.RemoteAddr().String()
	log := s.logger.With("user", userID, "remote", remote)
	if userID == "" {
		log.Info("ssh session rejected", "reason", "missing user")
		_, _ = io.WriteString(sess, "missing user\n")
		return
	}

	pty, winCh, ok := sess.Pty()
	if !ok {
		log.Info("ssh session rejected", "reason", "pty required")
		_, _ = io.WriteString(sess, "pty required\n")
		return
	}

	ctx, cancel := context.WithCancel(logx.ContextWithUserLogger(sess.Context(), log, userID))
	defer cancel()

	log.Info("ssh session opened", "term", pty.Term)

	var events <-chan eventbus.Event
	if s.EventBus != nil {
		var unsubscribe func()
		events, unsubscribe = s.EventBus.Subscribe(userID)
		defer unsubscribe()
	}

	chunks := make(chan string, 16)
	go readChunks(ctx, sess, chunks)
	resize := make(chan console.Size, 4)
	go forwardResizes(ctx, winCh, resize)

	ui, err := s.NewSession(ctx, console.Config{
		Output: sess,
		Chunks: chunks,
		Resize: resize,
		Events: events,
		UserID: userID,
	})
	if err != nil {
		log.Warn("ssh session setup failed", "err", err)
		_, _ = io.WriteString(sess, "session unavailable\n")
		return
	}
	ui.SetSize(pty.Window.Width, pty.Window.Height)
	if err := ui.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("ssh session errored", "err", err)
	}
	log.Info("ssh session closed", "term", pty.Term)
}

// readChunks pumps raw terminal input into the session. The channel is
// closed on EOF so the console exits when the connection drops.
func readChunks(ctx context.Context, r io.Reader, chunks chan<- string) {
	defer close(chunks)
	buf := make([]byte, 1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case chunks <- string(buf[:n]):
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func forwardResizes(ctx context.Context, winCh <-chan gliderssh.Window, resize chan<- console.Size) {
	for {
		select {
		case win, ok := <-winCh:
			if !ok {
				return
			}
			select {
			case resize <- console.Size{Width: win.Width, Height: win.Height}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
