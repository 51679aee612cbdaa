package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-fleet-portal/internal/config"
	"github.com/jrsteele09/go-fleet-portal/internal/logging"
	"github.com/jrsteele09/go-fleet-portal/portal"
	"github.com/jrsteele09/go-fleet-portal/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

const ownerPasswordVar = "FLEET_OWNER_PASSWORD"

type flags struct {
	configPath string
	persona    string
	email      string
}

func main() {
	var f flags
	pflag.StringVarP(&f.configPath, "config", "c", "", "path to a YAML config file")
	pflag.StringVarP(&f.persona, "login", "l", "", "start a sign-in for a persona (owner, fleet-user)")
	pflag.StringVar(&f.email, "email", "", "sign the owner in directly; the password is read from "+ownerPasswordVar)
	pflag.Parse()

	for {
		if err := run(f); err != nil {
			log.Fatal().Err(err).Msg("error running fleet sync")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("fleet sync stopped")
}

func run(f flags) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := loadConfig(f.configPath)
	if err != nil {
		return err
	}
	logger := logging.New(c.GetEnv(), c.GetLogLevel())
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := portal.New(ctx, c, portal.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("portal.New: %w", err)
	}
	defer p.Shutdown()

	p.Sessions.OnPersonaChange(func(ev session.PersonaEvent) {
		if ev.Current == session.PersonaOwner {
			go openDashboard(ctx, p, logger)
		}
	})

	server := &http.Server{Addr: c.GetCallbackAddr(), Handler: p}
	go func() {
		if err := listenAndServe(server, logger); err != nil {
			logger.Error().Err(err).Msg("callback server stopped")
		}
	}()

	if err := signIn(ctx, p, f); err != nil {
		logger.Error().Err(err).Msg("sign-in failed")
	}

	waitForStopSignal()
	return shutdown(server)
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.New()
	}
	return config.Load(path)
}

func signIn(ctx context.Context, p *portal.Portal, f flags) error {
	if f.email != "" {
		_, err := p.Sessions.LoginOwner(ctx, session.Credentials{
			Email:    f.email,
			Password: os.Getenv(ownerPasswordVar),
		})
		return err
	}
	if f.persona == "" {
		return nil
	}
	persona, err := session.ParsePersona(f.persona)
	if err != nil {
		return err
	}
	return p.Sessions.Login(ctx, persona, "")
}

func openDashboard(ctx context.Context, p *portal.Portal, logger zerolog.Logger) {
	if err := p.Dashboard().Open(ctx); err != nil {
		logger.Warn().Err(err).Msg("dashboard not opened")
	}
}

func listenAndServe(server *http.Server, logger zerolog.Logger) error {
	logger.Info().Str("addr", server.Addr).Msg("callback server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
