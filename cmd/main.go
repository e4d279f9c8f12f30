package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"document-qa/internal/chunker"
	"document-qa/internal/config"
	"document-qa/internal/helper"
	"document-qa/internal/history"
	"document-qa/internal/parser"
	"document-qa/internal/rag"
	"document-qa/internal/server"
	"document-qa/internal/tui"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	filePath := flag.String("file", "", "Path to the PDF document")
	query := flag.String("query", "", "Question to be answered")
	serve := flag.Bool("serve", false, "Start the HTTP server")
	interactive := flag.Bool("tui", false, "Ask questions interactively")
	dryRun := flag.Bool("dry-run", false, "Parse and chunk the document without calling any service")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	setupLogger(&cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *serve:
		runServer(ctx, cfg)
	case *filePath == "":
		log.Fatal().Msg("Please provide a document using the -file flag, or start the server with -serve")
	case *dryRun:
		previewChunks(cfg, *filePath)
	case *interactive:
		runTUI(ctx, cfg, *filePath)
	case *query != "":
		answerOnce(ctx, cfg, *filePath, *query)
	default:
		log.Fatal().Msg("Please provide a question using the -query flag, or use -tui")
	}
}

func setupLogger(logConfig *config.LogConfig) {
	level, err := zerolog.ParseLevel(logConfig.Level)
	if err != nil {
		log.Warn().Str("level", logConfig.Level).Msg("Unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if logConfig.JSON {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()
	}
}

func openHistory(ctx context.Context, cfg *config.Config) (history.Recorder, func()) {
	if !cfg.Database.Enabled {
		return history.Nop{}, func() {}
	}
	store, err := history.Open(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Error connecting to database")
	}
	return store, func() { store.Close() }
}

func newSession(ctx context.Context, cfg *config.Config, filePath string) (*rag.Session, func()) {
	recorder, closeHistory := openHistory(ctx, cfg)
	session, err := rag.NewSession(cfg, cfg.LLM.Key, rag.WithRecorder(recorder))
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating session")
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error reading document")
	}
	res, err := session.Upload(ctx, filepath.Base(filePath), data)
	if err != nil {
		log.Fatal().Err(err).Msg("Error indexing document")
	}
	log.Debug().Interface("document", res).Msg("Indexed document")
	return session, closeHistory
}

// parse and chunk only, no service is called
func previewChunks(cfg *config.Config, filePath string) {
	splitter, err := chunker.New(cfg.RAG.Splitter, cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating splitter")
	}
	pages, err := parser.ParsePDFFile(filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error parsing document")
	}
	chunks, err := splitter.Split(pages)
	if err != nil {
		log.Fatal().Err(err).Msg("Error chunking document")
	}
	log.Info().Int("pages", len(pages)).Int("chunks", len(chunks)).Msg("Parsed document")
	helper.PrettyPrint(chunks)
}

func answerOnce(ctx context.Context, cfg *config.Config, filePath, query string) {
	session, closeHistory := newSession(ctx, cfg, filePath)
	defer closeHistory()

	answer, err := session.Ask(ctx, query)
	if err != nil {
		log.Fatal().Err(err).Msg("Error answering question")
	}

	bold := color.New(color.Bold).SprintFunc()
	boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	fmt.Printf("%s\n%s\n\n", bold("Question"), answer.Question)
	fmt.Printf("%s\n%s\n\n", boldGreen("Answer"), answer.Text)
	fmt.Println(boldCyan("Relevant context"))
	if top, ok := answer.TopContext(); ok {
		fmt.Println(faint(fmt.Sprintf("page %d, score %.3f", answer.Context[0].PageNumber, answer.Context[0].Similarity)))
		fmt.Printf("%s\n\n", top)
	} else {
		fmt.Printf("%s\n\n", answer.Text)
	}
	fmt.Printf("Processing time: %.2f s\n", answer.Elapsed.Seconds())
}

func runTUI(ctx context.Context, cfg *config.Config, filePath string) {
	session, closeHistory := newSession(ctx, cfg, filePath)
	defer closeHistory()

	// keep log lines from drawing over the UI
	zerolog.SetGlobalLevel(zerolog.Disabled)

	model := tui.New(ctx, session, filepath.Base(filePath))
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runServer(ctx context.Context, cfg *config.Config) {
	recorder, closeHistory := openHistory(ctx, cfg)
	defer closeHistory()

	srv := server.New(cfg, server.WithRecorder(recorder))
	if err := srv.ListenAndServe(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}
}
