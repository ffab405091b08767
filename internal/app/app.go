package app

import (
	"context"
	"fmt"
	"time"

	"github.com/markdave123-py/Studya/internal/config"
	"github.com/markdave123-py/Studya/internal/core"
	db "github.com/markdave123-py/Studya/internal/core/database"
	"github.com/markdave123-py/Studya/internal/core/embedding"
	"github.com/markdave123-py/Studya/internal/core/extraction"
	"github.com/markdave123-py/Studya/internal/core/intent"
	"github.com/markdave123-py/Studya/internal/core/llm"
	objectclient "github.com/markdave123-py/Studya/internal/core/object-client"
	"github.com/markdave123-py/Studya/internal/core/summarizer"
	"github.com/markdave123-py/Studya/internal/core/transcripts"
	"github.com/markdave123-py/Studya/internal/core/websearch"
	"github.com/markdave123-py/Studya/internal/jobs"
	"github.com/markdave123-py/Studya/internal/models"
	"github.com/markdave123-py/Studya/internal/platform/logger"
	"github.com/markdave123-py/Studya/internal/progress"
	"github.com/markdave123-py/Studya/internal/services"
)

// App owns every long-lived component and their shutdown order.
type App struct {
	Log        *logger.Logger
	DBClient   core.DbClient
	Bus        progress.Bus
	Dispatcher *jobs.Dispatcher
	Server     *Server

	embedder *llm.GeminiEmbedder
	llm      *llm.GeminiLLM
	ocr      *llm.GeminiOCR
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("database initialized and ready")

	objClient, err := objectclient.NewS3Client(appCtx, cfg, log)
	if err != nil {
		return nil, err
	}

	bus, err := progress.NewRedisBus(cfg.RedisAddr, log)
	if err != nil {
		return nil, fmt.Errorf("progress bus: %w", err)
	}
	log.Info("progress bus connected", "addr", cfg.RedisAddr)

	geminiEmbedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}
	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the llm: %w", err)
	}
	ocrProvider, err := llm.NewGeminiOCR(appCtx, cfg.AIAPIKey, cfg.OCRModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize ocr: %w", err)
	}

	var webProvider core.WebSearchProvider
	if cfg.WebSearchURL != "" {
		webProvider, err = websearch.NewClient(cfg.WebSearchURL, cfg.WebSearchKey)
		if err != nil {
			return nil, fmt.Errorf("web search: %w", err)
		}
	} else {
		log.Warn("WEB_SEARCH_URL not set, chat answers run without web results")
	}

	useReadability := false
	extractor := extraction.NewExtractor(ocrProvider, transcripts.NewYouTubeTranscripts(), useReadability, log)
	embedder := embedding.NewNormalizer(geminiEmbedder, cfg.EmbedDim)

	sum := summarizer.NewSummarizer(llmProvider, summarizer.Config{
		MaxFiles:        cfg.SummaryMaxFiles,
		CharBudget:      cfg.SummaryCharBudget,
		DirectLimit:     cfg.SummaryDirectLimit,
		CoarseChunkSize: cfg.SummaryCoarseChunk,
		LLMDelay:        time.Duration(cfg.SummaryLLMDelayMS) * time.Millisecond,
	}, log)

	classifier := intent.NewClassifier(intent.DefaultWeights(), llmProvider, log)

	dispatcher := jobs.NewDispatcher(dbClient, bus, log)

	ingestSvc := services.NewIngestService(dbClient, objClient, extractor, embedder, log)
	genSvc := services.NewGenerationService(dbClient, objClient, sum, llmProvider, cfg.BucketName, cfg.SummaryMaxFiles, cfg.SummaryChunksPer, log)
	chatSvc := services.NewChatService(dbClient, embedder, llmProvider, classifier, webProvider, log)
	userSvc := services.NewUserService(dbClient)
	docSvc := services.NewDocumentService(dbClient, objClient, dispatcher, bus, cfg.BucketName, cfg.DefaultChunkSize, cfg.DefaultChunkOverlap, log)

	dispatcher.Register(models.JobKindIngest, ingestSvc.Handle)
	dispatcher.Register(models.JobKindVideo, ingestSvc.Handle)
	dispatcher.Register(models.JobKindSummary, genSvc.HandleSummary)
	dispatcher.Register(models.JobKindQuiz, genSvc.HandleQuiz)
	dispatcher.Register(models.JobKindFlashcard, genSvc.HandleFlashcards)

	server := NewServer(cfg, dbClient, dispatcher, bus, userSvc, docSvc, genSvc, chatSvc, log)

	return &App{
		Log:        log,
		DBClient:   dbClient,
		Bus:        bus,
		Dispatcher: dispatcher,
		Server:     server,
		embedder:   geminiEmbedder,
		llm:        llmProvider,
		ocr:        ocrProvider,
	}, nil
}

// Start launches the job workers and the HTTP server.
func (a *App) Start(ctx context.Context, numWorkers int) {
	a.Dispatcher.Start(ctx, numWorkers)
	go a.Server.Start(a.Log)
}

func (a *App) Close() {
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.llm != nil {
		_ = a.llm.Close()
	}
	if a.ocr != nil {
		_ = a.ocr.Close()
	}
	if a.Bus != nil {
		_ = a.Bus.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
