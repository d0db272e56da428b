package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"quizdesk/internal/events"
	"quizdesk/internal/exam"
	"quizdesk/internal/handler"
	appI18n "quizdesk/internal/i18n"
	"quizdesk/internal/model"
	"quizdesk/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "quizdesk",
		Short: "Self-hosted testing platform with manual review",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `quizdesk --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP test server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "quizdesk.db", "SQLite database path")
	f.StringSliceP("tests", "t", nil, "Paths to test JSON files to import (repeatable)")
	f.StringP("lang", "l", "ru", "UI language (en, ru)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("admin-password", "", "Initial admin password (or set QUIZDESK_ADMIN_PASSWORD)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a test's results with protocols as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "quizdesk.db", "SQLite database path")
	f.String("test-id", "", "Test identifier to export (required)")
	f.StringP("lang", "l", "ru", "Language for protocol placeholders (en, ru)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("test-id")

	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("QUIZDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("quizdesk")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/quizdesk")
	v.AddConfigPath("/etc/quizdesk")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Seed default admin user if no users exist.
	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	if err := db.CleanupExpiredSessions(); err != nil {
		slog.Warn("cleanup expired sessions", "error", err)
	}

	if err := importTests(db, v.GetStringSlice("tests")); err != nil {
		return fmt.Errorf("import tests: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	cfg := model.ServerConfig{
		Addr:          v.GetString("addr"),
		Lang:          lang,
		SecureCookies: v.GetBool("secure-cookies"),
	}

	hub := events.NewHub()
	h := handler.New(db, hub, cfg)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	slog.Info("starting server", "addr", cfg.Addr, "lang", lang, "db", v.GetString("db"))
	return http.ListenAndServe(cfg.Addr, r)
}

// exportedResult is one result with its rendered protocol.
type exportedResult struct {
	Summary  model.ResultSummary   `json:"summary"`
	Protocol []model.ProtocolEntry `json:"protocolData"`
}

type testExport struct {
	TestID     string           `json:"testId"`
	TestName   string           `json:"testName"`
	ExportedAt string           `json:"exportedAt"`
	Results    []exportedResult `json:"results"`
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx := appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer(lang))

	testID := v.GetString("test-id")
	test, err := db.GetTest(testID)
	if err != nil {
		return fmt.Errorf("look up test %s: %w", testID, err)
	}

	ids, err := db.ListResultIDs(testID)
	if err != nil {
		return fmt.Errorf("list results: %w", err)
	}

	export := testExport{
		TestID:     test.ID,
		TestName:   test.Name,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Results:    make([]exportedResult, 0, len(ids)),
	}
	for _, id := range ids {
		summary, err := db.GetResultSummary(id)
		if err != nil {
			return fmt.Errorf("load result %d: %w", id, err)
		}
		records, err := db.AnswersForResult(id)
		if err != nil {
			return fmt.Errorf("load answers for result %d: %w", id, err)
		}
		questionIDs := make([]string, 0, len(records))
		for _, rec := range records {
			if rec.QuestionID != "" {
				questionIDs = append(questionIDs, rec.QuestionID)
			}
		}
		options, err := db.OptionsForQuestions(questionIDs)
		if err != nil {
			return fmt.Errorf("load options for result %d: %w", id, err)
		}
		export.Results = append(export.Results, exportedResult{
			Summary:  summary,
			Protocol: exam.BuildProtocol(ctx, records, options),
		})
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

// testImport is the wire shape of a test definition file.
type testImport struct {
	Name     string `json:"name"`
	Settings *struct {
		DurationMinutes  int `json:"duration_minutes"`
		PassingScore     int `json:"passing_score"`
		QuestionsPerTest int `json:"questions_per_test"`
	} `json:"settings,omitempty"`
	Questions []model.Question `json:"questions"`
}

// importTests loads test definition files into the database, once per file
// content. A changed file is skipped rather than re-imported so historical
// answers keep pointing at the questions they were graded against.
func importTests(db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		metaKey := "import:" + path
		storedHash, err := db.GetMetadata(metaKey)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}
		if storedHash == hash {
			slog.Info("test file unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Warn("test file changed since last import, skipping to keep existing results consistent",
				"path", path)
			continue
		}

		var ti testImport
		if err := json.Unmarshal(data, &ti); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if strings.TrimSpace(ti.Name) == "" {
			return fmt.Errorf("parse %s: test name is required", path)
		}

		test, err := db.CreateTest(ti.Name)
		if err != nil {
			return fmt.Errorf("create test from %s: %w", path, err)
		}
		if ti.Settings != nil {
			if err := db.SaveSettings(model.TestSettings{
				TestID:           test.ID,
				DurationMinutes:  ti.Settings.DurationMinutes,
				PassingScore:     ti.Settings.PassingScore,
				QuestionsPerTest: ti.Settings.QuestionsPerTest,
			}); err != nil {
				return fmt.Errorf("save settings from %s: %w", path, err)
			}
		}
		for _, q := range ti.Questions {
			q.ID = ""
			if _, err := db.SaveQuestion(test.ID, q); err != nil {
				return fmt.Errorf("insert question from %s: %w", path, err)
			}
		}

		if err := db.SetMetadata(metaKey, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported test", "path", path, "name", ti.Name, "questions", len(ti.Questions))
	}

	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or QUIZDESK_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
