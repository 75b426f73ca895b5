// cmd/trivia-devserver/main.go
//
// Runs the in-memory development backend until interrupted.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kingrea/trivia-terminal/internal/config"
	"github.com/kingrea/trivia-terminal/internal/devserver"
	"github.com/kingrea/trivia-terminal/internal/logbook"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		die("load .env: %v", err)
	}
	settings := devserver.SettingsFromEnv()
	flag.StringVar(&settings.Host, "host", settings.Host, "interface to bind")
	flag.IntVar(&settings.Port, "port", settings.Port, "TCP port (0 picks a free port)")
	flag.StringVar(&settings.BankPath, "bank", settings.BankPath, "path to a YAML question bank (defaults to the built-in bank)")
	flag.IntVar(&settings.QuestionsPerSession, "questions", settings.QuestionsPerSession, "questions per session (0 serves the whole category)")
	flag.StringVar(&settings.Token, "token", settings.Token, "require this bearer token on /api routes")
	logPath := flag.String("log", "", "append activity to this file instead of stderr only")
	flag.Parse()

	var opts []devserver.Option
	logger := stderrLogger{}
	if *logPath != "" {
		lb, err := logbook.New(*logPath)
		if err != nil {
			die("open log: %v", err)
		}
		opts = append(opts, devserver.WithLogger(teeLogger{book: lb.Component("devserver")}))
	} else {
		opts = append(opts, devserver.WithLogger(logger))
	}

	srv, err := devserver.NewServer(settings, opts...)
	if err != nil {
		die("configure server: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.Start(ctx); err != nil {
		die("start: %v", err)
	}
	fmt.Printf("Trivia dev backend listening on %s\n", srv.BaseURL())
	fmt.Printf("Point the client at it with TRIVIA_API_URL=%s\n", srv.BaseURL())

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		die("shutdown: %v", err)
	}
}

type stderrLogger struct{}

func (stderrLogger) Info(format string, args ...any)  { logLine("INFO", format, args...) }
func (stderrLogger) Warn(format string, args ...any)  { logLine("WARN", format, args...) }
func (stderrLogger) Error(format string, args ...any) { logLine("ERROR", format, args...) }

func logLine(level, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %-5s %s\n", time.Now().Format(time.TimeOnly), level, fmt.Sprintf(format, args...))
}

type teeLogger struct {
	book logbook.Logger
}

func (t teeLogger) Info(format string, args ...any) {
	t.book.Info(format, args...)
	logLine("INFO", format, args...)
}

func (t teeLogger) Warn(format string, args ...any) {
	t.book.Warn(format, args...)
	logLine("WARN", format, args...)
}

func (t teeLogger) Error(format string, args ...any) {
	t.book.Error(format, args...)
	logLine("ERROR", format, args...)
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
