// FawnBot is a QQ group bot: fan-art submission wizard, lyric quizzes and
// media download requests, all driven by short-lived chat sessions.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kanolab/fawnbot/internal/api"
	"github.com/kanolab/fawnbot/internal/dispatch"
	"github.com/kanolab/fawnbot/internal/flow"
	"github.com/kanolab/fawnbot/internal/gallery"
	"github.com/kanolab/fawnbot/internal/lockfile"
	"github.com/kanolab/fawnbot/internal/media"
	"github.com/kanolab/fawnbot/internal/models"
	"github.com/kanolab/fawnbot/internal/onebot"
	"github.com/kanolab/fawnbot/internal/quiz"
	"github.com/kanolab/fawnbot/internal/session"
	"github.com/kanolab/fawnbot/internal/store"
	"github.com/kanolab/fawnbot/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for FawnBot state data
	DefaultStateDir = "/var/lib/fawnbot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "fawnbot.db"
	// DefaultAPIAddr is the default inspection API listen address
	DefaultAPIAddr = ":8080"
)

func main() {
	config := loadEnvironmentConfig()
	initializeLogger(config.Debug)
	flags := parseCommandLineFlags(config)

	lock, err := lockfile.Acquire(*flags.stateDir)
	if err != nil {
		slog.Error("FawnBot failed to lock state directory", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	archive, err := openArchive(*flags.dbDSN)
	if err != nil {
		slog.Error("FawnBot failed to open archive store", "error", err)
		os.Exit(1)
	}
	defer archive.Close()

	client, err := onebot.NewClient(
		onebot.WithURL(*flags.onebotURL),
		onebot.WithAccessToken(config.OneBotToken),
	)
	if err != nil {
		slog.Error("FawnBot failed to create gateway client", "error", err)
		os.Exit(1)
	}

	gal := gallery.New(*flags.galleryDir, gallery.NewHTTPFetcher(), archive)
	library := quiz.NewLibrary(*flags.lyricDir, *flags.clipDir)
	checker := media.NewChecker(&media.ExecProber{ProxyURL: config.ProxyURL})
	pipeline := media.NewPipeline(archive, &media.ExecDownloader{
		OutputDir: *flags.downloadDir,
		ProxyURL:  config.ProxyURL,
	}, client)

	sessions := session.NewStore()
	engine := flow.NewEngine(sessions, client)
	for _, def := range []*flow.Definition{
		flow.NewSubmissionDefinition(gal, client),
		flow.NewQuizDefinition(library, &quizArchive{archive: archive}),
		flow.NewDownloadDefinition(checker, pipeline),
	} {
		if err := engine.Register(def); err != nil {
			slog.Error("FawnBot failed to register flow", "error", err)
			os.Exit(1)
		}
	}

	dispatcher := dispatch.NewDispatcher(engine)
	dispatcher.RegisterCommand("recommend art", func(ctx context.Context, ev models.Event) {
		msg, err := gal.Recommend(ctx, ev.ActorID)
		if err != nil {
			slog.Warn("Recommend command failed", "error", err, "actorID", ev.ActorID)
			msg = models.TextMessage("The gallery is empty for now, nothing to recommend.")
		}
		if err := client.Send(ctx, ev.ReplyDestination(), msg); err != nil {
			slog.Error("Recommend command send failed", "error", err)
		}
	})

	apiServer := api.NewServer(*flags.apiAddr, sessions, archive)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go client.Run(ctx)
	go dispatcher.Run(ctx, client.Events())
	go func() {
		if err := apiServer.Start(); err != nil {
			slog.Error("Inspection API failed", "error", err)
			stop()
		}
	}()

	slog.Info("FawnBot running", "api_addr", *flags.apiAddr, "state_dir", *flags.stateDir)
	<-ctx.Done()

	slog.Info("FawnBot shutting down")
	if err := apiServer.Shutdown(context.Background()); err != nil {
		slog.Error("Inspection API shutdown failed", "error", err)
	}
	slog.Info("FawnBot exited successfully")
}

// Config holds environment configuration
type Config struct {
	OneBotURL   string
	OneBotToken string
	DbDSN       string
	StateDir    string
	GalleryDir  string
	LyricDir    string
	ClipDir     string
	DownloadDir string
	ProxyURL    string
	APIAddr     string
	Debug       bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir    *string
	dbDSN       *string
	onebotURL   *string
	galleryDir  *string
	lyricDir    *string
	clipDir     *string
	downloadDir *string
	apiAddr     *string
}

// initializeLogger sets up structured logging
func initializeLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		OneBotURL:   os.Getenv("FAWNBOT_ONEBOT_WS_URL"),
		OneBotToken: os.Getenv("FAWNBOT_ONEBOT_ACCESS_TOKEN"),
		DbDSN:       os.Getenv("DATABASE_URL"),
		StateDir:    util.EnvOrDefault("FAWNBOT_STATE_DIR", DefaultStateDir),
		GalleryDir:  os.Getenv("FAWNBOT_GALLERY_DIR"),
		LyricDir:    os.Getenv("FAWNBOT_LYRIC_DIR"),
		ClipDir:     os.Getenv("FAWNBOT_CLIP_DIR"),
		DownloadDir: os.Getenv("FAWNBOT_DOWNLOAD_DIR"),
		ProxyURL:    os.Getenv("FAWNBOT_PROXY_URL"),
		APIAddr:     util.EnvOrDefault("FAWNBOT_API_ADDR", DefaultAPIAddr),
		Debug:       util.ParseBoolEnv("FAWNBOT_DEBUG", false),
	}

	// Content directories default to subdirectories of the state directory.
	if config.DbDSN == "" {
		config.DbDSN = filepath.Join(config.StateDir, DefaultDBFileName)
	}
	if config.GalleryDir == "" {
		config.GalleryDir = filepath.Join(config.StateDir, "gallery")
	}
	if config.LyricDir == "" {
		config.LyricDir = filepath.Join(config.StateDir, "lyrics")
	}
	if config.ClipDir == "" {
		config.ClipDir = filepath.Join(config.StateDir, "clips")
	}
	if config.DownloadDir == "" {
		config.DownloadDir = filepath.Join(config.StateDir, "downloads")
	}

	slog.Debug("environment variables loaded",
		"FAWNBOT_ONEBOT_WS_URL", config.OneBotURL,
		"FAWNBOT_ONEBOT_ACCESS_TOKEN_SET", config.OneBotToken != "",
		"DATABASE_URL_SET", config.DbDSN != "",
		"FAWNBOT_STATE_DIR", config.StateDir,
		"FAWNBOT_API_ADDR", config.APIAddr)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for FawnBot data (overrides $FAWNBOT_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DbDSN, "archive database DSN, SQLite path or Postgres URL (overrides $DATABASE_URL)"),
		onebotURL:   flag.String("onebot-url", config.OneBotURL, "OneBot v11 WebSocket URL (overrides $FAWNBOT_ONEBOT_WS_URL)"),
		galleryDir:  flag.String("gallery-dir", config.GalleryDir, "fan-art gallery root directory (overrides $FAWNBOT_GALLERY_DIR)"),
		lyricDir:    flag.String("lyric-dir", config.LyricDir, "LRC lyric file directory for quizzes (overrides $FAWNBOT_LYRIC_DIR)"),
		clipDir:     flag.String("clip-dir", config.ClipDir, "audio clip directory for quizzes (overrides $FAWNBOT_CLIP_DIR)"),
		downloadDir: flag.String("download-dir", config.DownloadDir, "directory for finished media downloads (overrides $FAWNBOT_DOWNLOAD_DIR)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "inspection API address (overrides $FAWNBOT_API_ADDR)"),
	}

	flag.Parse()

	// A state-dir override moves the default database and content
	// directories along with it.
	if *flags.stateDir != config.StateDir {
		if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) {
			*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		}
		if *flags.galleryDir == filepath.Join(config.StateDir, "gallery") {
			*flags.galleryDir = filepath.Join(*flags.stateDir, "gallery")
		}
		if *flags.lyricDir == filepath.Join(config.StateDir, "lyrics") {
			*flags.lyricDir = filepath.Join(*flags.stateDir, "lyrics")
		}
		if *flags.clipDir == filepath.Join(config.StateDir, "clips") {
			*flags.clipDir = filepath.Join(*flags.stateDir, "clips")
		}
		if *flags.downloadDir == filepath.Join(config.StateDir, "downloads") {
			*flags.downloadDir = filepath.Join(*flags.stateDir, "downloads")
		}
	}

	return flags
}

// openArchive picks the archive backend from the DSN shape.
func openArchive(dsn string) (store.Store, error) {
	switch store.DetectDSNType(dsn) {
	case "postgres":
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(dsn))
	default:
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
		return store.NewSQLiteStore(store.WithDSN(dsn))
	}
}

// quizArchive adapts the archive store to the quiz flow's recorder.
type quizArchive struct {
	archive store.Store
}

func (q *quizArchive) RecordQuizRound(ctx context.Context, groupID int64, song string, starterID, winnerID int64, timedOut bool) error {
	_, err := q.archive.AddQuizResult(store.QuizResult{
		GroupID:   groupID,
		Song:      song,
		StarterID: starterID,
		WinnerID:  winnerID,
		TimedOut:  timedOut,
	})
	return err
}
