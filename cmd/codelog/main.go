// codeLog terminal editor
//
// Signs in to a codeLog server, shows the user's file tree and edits the
// selected file with debounced autosave.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/lemesvini/codeLog/internal/config"
	"github.com/lemesvini/codeLog/internal/logging"
	"github.com/lemesvini/codeLog/internal/retry"
	"github.com/lemesvini/codeLog/internal/store/remote"
	"github.com/lemesvini/codeLog/internal/tui"
	"github.com/lemesvini/codeLog/internal/workspace"
)

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server URL")
	flag.StringVar(&cfg.Username, "user", cfg.Username, "Username")
	flag.DurationVar(&cfg.AutosaveDelay, "autosave", cfg.AutosaveDelay, "Quiet period before an edit is saved")
	flag.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Write logs to this file (default: discard)")
	flag.Parse()

	// The terminal belongs to the UI, so logs only go to a file.
	if cfg.LogFile != "" {
		if err := logging.Init(logging.Config{
			Level:      cfg.LogLevel,
			Format:     "json",
			OutputPath: cfg.LogFile,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			os.Exit(1)
		}
	} else {
		logging.InitNop()
	}
	defer logging.Sync()

	if err := readCredentials(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.RetryAttempts
	client := remote.New(remote.Config{
		BaseURL:     cfg.ServerURL,
		Timeout:     30 * time.Second,
		RetryConfig: retryCfg,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Server %s unreachable: %v\n", cfg.ServerURL, err)
		os.Exit(1)
	}
	if err := client.Login(ctx, cfg.Username, cfg.Password); err != nil {
		fmt.Fprintf(os.Stderr, "Login failed: %v\n", err)
		os.Exit(1)
	}

	bridge := tui.NewBridge()
	ws := workspace.New(client, workspace.Options{
		Prompter:      bridge,
		Confirmer:     bridge,
		AutosaveDelay: cfg.AutosaveDelay,
		OnSelect:      bridge.Selected,
	})

	p := tea.NewProgram(tui.New(ctx, ws, client.Username(), client.Logout), tea.WithAltScreen())
	bridge.Attach(p.Send)

	_, runErr := p.Run()

	// Unanswered prompts give up once ctx is cancelled.
	cancel()
	flushCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := ws.Flush(flushCtx); err != nil {
		logging.Error("final save failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Warning: last edit was not saved: %v\n", err)
	}
	ws.Close()

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
}

// readCredentials asks for whatever the environment and flags left out.
func readCredentials(cfg *config.ClientConfig) error {
	if cfg.Username == "" {
		fmt.Print("Username: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("read username: %w", err)
		}
		cfg.Username = strings.TrimSpace(line)
	}
	if cfg.Password == "" {
		fmt.Print("Password: ")
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		cfg.Password = string(b)
	}
	if cfg.Username == "" || cfg.Password == "" {
		return fmt.Errorf("username and password required")
	}
	return nil
}
