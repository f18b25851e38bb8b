package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/hamiltonprep/mathcoach/internal/handler"
	appI18n "github.com/hamiltonprep/mathcoach/internal/i18n"
	"github.com/hamiltonprep/mathcoach/internal/llm"
	_ "github.com/hamiltonprep/mathcoach/internal/llm/gemini"
	"github.com/hamiltonprep/mathcoach/internal/llm/mock"
	_ "github.com/hamiltonprep/mathcoach/internal/llm/openai"
	"github.com/hamiltonprep/mathcoach/internal/metrics"
	"github.com/hamiltonprep/mathcoach/internal/model"
	"github.com/hamiltonprep/mathcoach/internal/store"
)

const sessionCleanupInterval = time.Hour

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mathcoach",
		Short: "Olympiad proof practice with LLM hints and rubric grading",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), userCmd(), exportCmd(), gradeOnceCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

// addLogFlags registers the logging flags every command shares.
func addLogFlags(cmd *cobra.Command) {
	cmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().String("log-format", "text", "Log format (text, json)")
}

// addTutorFlags registers the flags that select and configure the LLM provider.
func addTutorFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("provider", "openai", "Tutor provider (openai, gemini, mock)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for the OpenAI-compatible endpoint")
	f.String("llm-model", "llama3.2", "Model name for the OpenAI-compatible endpoint")
	f.String("gemini-key", "", "Gemini API key (or set MATHCOACH_GEMINI_KEY)")
	f.String("gemini-model", "gemini-2.5-flash", "Gemini model name")
	f.Int("max-attempts", 2, "Generation attempts before giving up on invalid JSON")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "mathcoach.db", "SQLite database path")
	f.StringSlice("seed", []string{"seed/problems.json"}, "Problems and moves seed files (repeatable)")
	f.StringP("lang", "l", "en", "Default language for messages (en, ru)")
	f.StringSlice("cors-origins", nil, "Allowed CORS origins (repeatable)")
	f.Int64("body-limit", 1<<20, "Maximum JSON request body in bytes")
	f.Bool("allow-sign-up", false, "Allow self-service student sign-up")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("admin-password", "", "Initial teacher account password (or set MATHCOACH_ADMIN_PASSWORD)")
	addTutorFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>...",
		Short: "Import problems and moves from seed JSON files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	cmd.Flags().String("db", "mathcoach.db", "SQLite database path")
	addLogFlags(cmd)
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a user",
		RunE:  runUserAdd,
	}
	f := add.Flags()
	f.String("db", "mathcoach.db", "SQLite database path")
	f.StringP("username", "u", "", "Username (required)")
	f.StringP("password", "p", "", "Password (required)")
	f.String("display-name", "", "Display name (defaults to the username)")
	f.String("role", string(model.UserRoleStudent), "Role (STUDENT, TEACHER)")
	addLogFlags(add)
	_ = add.MarkFlagRequired("username")
	_ = add.MarkFlagRequired("password")

	cmd.AddCommand(add)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export student progress as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "mathcoach.db", "SQLite database path")
	f.String("provider", "", "Provider name recorded in the export metadata")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func gradeOnceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade-once",
		Short: "Grade one attempt against a stored problem and print the feedback",
		RunE:  runGradeOnce,
	}
	f := cmd.Flags()
	f.String("db", "mathcoach.db", "SQLite database path")
	f.String("problem", "", "Problem ID (required)")
	f.String("attempt-file", "-", "File with the attempt text (- for stdin)")
	f.StringSlice("hints-used", nil, "Hint rungs already used (NUDGE, POINTER, KEY)")
	addTutorFlags(cmd)
	addLogFlags(cmd)
	_ = cmd.MarkFlagRequired("problem")
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

	v.SetEnvPrefix("MATHCOACH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("mathcoach")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/mathcoach")
	v.AddConfigPath("/etc/mathcoach")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// newTutor builds the Tutor for the configured provider.
func newTutor(v *viper.Viper) (llm.Tutor, string, error) {
	provider := strings.ToLower(strings.TrimSpace(v.GetString("provider")))
	if provider == "mock" {
		return mock.New(), provider, nil
	}

	cfg := llm.Config{
		BaseURL: v.GetString("llm-url"),
		APIKey:  v.GetString("llm-key"),
		Model:   v.GetString("llm-model"),
	}
	if provider == "gemini" {
		cfg = llm.Config{APIKey: v.GetString("gemini-key"), Model: v.GetString("gemini-model")}
	}
	backend, err := llm.NewBackend(provider, cfg)
	if err != nil {
		return nil, provider, fmt.Errorf("%w (available: %s, mock)", err, strings.Join(llm.Backends(), ", "))
	}
	return llm.NewCoach(backend, v.GetInt("max-attempts")), provider, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if err := importSeeds(db, v.GetStringSlice("seed")); err != nil {
		return fmt.Errorf("import seeds: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	tutor, provider, err := newTutor(v)
	if err != nil {
		return fmt.Errorf("create tutor: %w", err)
	}

	h := handler.New(db, tutor, model.ServerConfig{
		Provider:      provider,
		BodyLimit:     v.GetInt64("body-limit"),
		AllowSignUp:   v.GetBool("allow-sign-up"),
		SecureCookies: v.GetBool("secure-cookies"),
	})

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if origins := v.GetStringSlice("cors-origins"); len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Accept-Language", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(metrics.Middleware)
	r.Use(appI18n.Middleware(lang))

	r.Handle("/metrics", metrics.Handler())
	h.Routes(r)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go cleanupSessions(ctx, db)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"provider", provider,
			"lang", lang,
			"allow_sign_up", v.GetBool("allow-sign-up"),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// cleanupSessions removes expired auth sessions until ctx is done.
func cleanupSessions(ctx context.Context, db *store.Store) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()
	for {
		n, err := db.CleanupExpiredSessions()
		if err != nil {
			slog.Warn("failed to clean up auth sessions", "error", err)
		} else if n > 0 {
			slog.Info("removed expired auth sessions", "count", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	return importSeeds(db, args)
}

func importSeeds(db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if _, err := db.ImportSeed(path, data); err != nil {
			return err
		}
	}
	return nil
}

func runUserAdd(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	role := model.UserRole(strings.ToUpper(v.GetString("role")))
	if role != model.UserRoleStudent && role != model.UserRoleTeacher {
		return fmt.Errorf("invalid role %q: use STUDENT or TEACHER", role)
	}
	username := strings.TrimSpace(v.GetString("username"))
	displayName := v.GetString("display-name")
	if displayName == "" {
		displayName = username
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	existing, err := db.GetUserByUsername(username)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("user %q already exists", username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(v.GetString("password")), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	id, err := db.CreateUser(model.User{
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %s %q (id %d)\n", strings.ToLower(string(role)), username, id)
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	students, err := db.ExportProgress()
	if err != nil {
		return fmt.Errorf("export progress: %w", err)
	}

	export := model.ProgressExport{
		GeneratedAt: time.Now().UTC(),
		Provider:    v.GetString("provider"),
		Students:    students,
	}
	return writeJSONOutput(v.GetString("output"), export)
}

func writeJSONOutput(outPath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

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
	_, _ = fmt.Fprintln(w)
	return nil
}

func runGradeOnce(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	var hintsUsed []model.HintRung
	for _, s := range v.GetStringSlice("hints-used") {
		rung := model.HintRung(strings.ToUpper(strings.TrimSpace(s)))
		if !rung.Valid() {
			return fmt.Errorf("invalid hint rung %q", s)
		}
		hintsUsed = append(hintsUsed, rung)
	}

	text, err := readAttempt(v.GetString("attempt-file"))
	if err != nil {
		return err
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	problem, err := db.GetProblem(v.GetString("problem"))
	if err != nil {
		return fmt.Errorf("load problem %s: %w", v.GetString("problem"), err)
	}

	tutor, _, err := newTutor(v)
	if err != nil {
		return fmt.Errorf("create tutor: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stderr := cmd.ErrOrStderr()
	fb, err := tutor.GradeAttempt(ctx, llm.GradeParams{
		Problem:         problem,
		AttemptText:     text,
		StartConfidence: 50,
		FinalConfidence: 50,
		HintsUsed:       hintsUsed,
		OnDelta: func(d llm.Delta) {
			if d.ThoughtDelta != "" {
				fmt.Fprint(stderr, d.ThoughtDelta)
			}
		},
	})
	fmt.Fprintln(stderr)
	if err != nil {
		return fmt.Errorf("grade attempt: %w", err)
	}
	return writeJSONOutput("-", fb)
}

func readAttempt(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read attempt: %w", err)
	}
	return string(data), nil
}

// seedAdmin creates the first teacher account when the database has no users.
func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or MATHCOACH_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleTeacher,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default teacher account", "username", "admin")
	return nil
}
