// Package cli implements the twin CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Allreality/my-twin/internal/config"
	"github.com/Allreality/my-twin/internal/twin"
)

var (
	configPath string
	dbPath     string
	subject    string
	sessionID  string
	modeFlag   string
	logLevel   string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "twin",
	Short: "Context assembly for a personal digital twin",
	Long: "Builds the prompt context for a digital twin from its personality, emotional state, " +
		"long-term memories and recent conversation, and writes each exchange back.",
	SilenceUsage: true,
}

func init() {
	f := RootCmd.PersistentFlags()
	f.StringVarP(&configPath, "config", "c", "", "Config file (default: $TWIN_CONFIG, ./twin.yaml or ~/.twin/twin.yaml)")
	f.StringVarP(&dbPath, "db", "d", "", "Database path (default: ~/.twin/twin.db)")
	f.StringVarP(&subject, "subject", "u", "", "Subject whose emotional state is tracked")
	f.StringVarP(&sessionID, "session", "s", "default", "Conversation session id")
	f.StringVarP(&modeFlag, "mode", "m", "", "Personality mode")
	f.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

func loadConfig() (*config.Config, error) {
	v := config.New()
	if dbPath != "" {
		v.Set("db", dbPath)
	}
	if subject != "" {
		v.Set("subject", subject)
	}
	if logLevel != "" {
		v.Set("log.level", logLevel)
	}
	return config.Load(v, configPath)
}

func newLogger(cfg config.LogConfig) (*logrus.Logger, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	logger.SetLevel(level)
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logger.SetOutput(os.Stderr)
	if cfg.File != "" {
		logger.SetOutput(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		})
	}
	return logger, nil
}

func openEngine() (*twin.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	return twin.New(cfg, logger)
}

func mustEngine() *twin.Engine {
	e, err := openEngine()
	if err != nil {
		exitErr("open engine", err)
	}
	return e
}

// readContent joins positional args, falling back to piped stdin.
func readContent(args []string) (string, error) {
	if len(args) > 0 {
		return strings.TrimSpace(strings.Join(args, " ")), nil
	}
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	return "", nil
}

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
