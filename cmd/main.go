package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"github.com/Kylethg/wayback-ecommerce-chatbot/internal/models"
	"github.com/Kylethg/wayback-ecommerce-chatbot/pkg/cache"
	cfgPkg "github.com/Kylethg/wayback-ecommerce-chatbot/pkg/config"
	"github.com/Kylethg/wayback-ecommerce-chatbot/pkg/pipeline"
	"github.com/Kylethg/wayback-ecommerce-chatbot/server"
)

type flags struct {
	configPath string
	serve      bool
	addr       string
	provider   string
	model      string
	apiKey     string
	cacheDir   string
	clearCache bool
	verbose    bool
}

func main() {
	f := parseFlags()

	config, err := loadConfig(f)
	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}

	if errs := config.Validate(); len(errs) > 0 {
		color.Red("Invalid configuration:")
		for _, e := range errs {
			color.Red("  - %s: %s", e.Field, e.Message)
		}
		os.Exit(1)
	}

	log := logrus.New()
	if f.verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}

	if f.clearCache {
		if err := clearCache(config); err != nil {
			color.Red("Error clearing cache: %v", err)
			os.Exit(1)
		}
		color.Green("Cache cleared.")
		return
	}

	if f.serve {
		if err := server.Run(config, f.addr, log); err != nil {
			color.Red("Error: %v", err)
			os.Exit(1)
		}
		return
	}

	if err := runChat(config, log); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func parseFlags() flags {
	var f flags

	flag.StringVar(&f.configPath, "config", "", "Path to config file")
	flag.BoolVar(&f.serve, "serve", false, "Run as a WebSocket server instead of the terminal chat")
	flag.StringVar(&f.addr, "addr", ":8080", "Address for the WebSocket server")
	flag.StringVar(&f.provider, "provider", "", "LLM provider (googleai, openai, ollama)")
	flag.StringVar(&f.model, "model", "", "LLM model to use")
	flag.StringVar(&f.apiKey, "api-key", "", "LLM API key")
	flag.StringVar(&f.cacheDir, "cache-dir", "", "Directory for cached answers")
	flag.BoolVar(&f.clearCache, "clear-cache", false, "Remove all cached answers and exit")
	flag.BoolVar(&f.verbose, "verbose", false, "Enable debug logging")
	flag.Parse()

	return f
}

func loadConfig(f flags) (*cfgPkg.Config, error) {
	config, err := cfgPkg.LoadConfig(f.configPath)
	if err != nil {
		return nil, err
	}

	// Command line flags override the config file
	if f.provider != "" {
		config.LLM.Provider = f.provider
	}
	if f.model != "" {
		config.LLM.Model = f.model
	}
	if f.apiKey != "" {
		config.LLM.APIKey = f.apiKey
	}
	if f.cacheDir != "" {
		config.Cache.Dir = f.cacheDir
	}

	return config, nil
}

func clearCache(config *cfgPkg.Config) error {
	store, err := cache.New(config.Cache.Dir, config.CacheTTL())
	if err != nil {
		return err
	}
	return store.Clear()
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func stageDescription(stage string) string {
	switch stage {
	case pipeline.StageParsing:
		return "🧭 Understanding your question..."
	case pipeline.StageSearching:
		return "🔍 Searching the archive..."
	case pipeline.StageFetching:
		return "📄 Fetching the archived page..."
	case pipeline.StageExtracting:
		return "🔎 Extracting page content..."
	case pipeline.StageAnalyzing:
		return "🤖 Analyzing the snapshot..."
	default:
		return stage
	}
}

type exchange struct {
	Question string
	Result   models.Result
}

func runChat(config *cfgPkg.Config, log *logrus.Logger) error {
	ctx := context.Background()

	pipe, err := pipeline.FromConfig(ctx, config, log)
	if err != nil {
		return err
	}

	color.Cyan("\nAsk me about a website's past (type 'exit' to quit, 'history' to review)")
	color.Cyan("Example: What was asos.com promoting this time last year?")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	var history []exchange

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		question := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(question) {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "history":
			printHistory(history)
			continue
		}

		var spinner *progressbar.ProgressBar
		pipe.OnStage = func(stage string) {
			if spinner != nil {
				spinner.Finish()
				fmt.Print("\r")
			}
			spinner = getSpinner(stageDescription(stage))
		}

		result, err := pipe.Ask(ctx, question)

		if spinner != nil {
			spinner.Finish()
			fmt.Print("\r")
		}
		pipe.OnStage = nil

		if err != nil {
			log.WithError(err).Debug("question failed")
			color.Yellow("\n%s\n", pipeline.UserMessage(err))
			continue
		}

		fmt.Print("\n")
		assistantPrompt("Assistant:\n")
		fmt.Println(result.Response)
		if result.FromCache {
			color.Blue("(cached answer from %s)", result.GeneratedAt.Format("Jan 2 15:04"))
		}

		history = append(history, exchange{Question: question, Result: result})
		if max := config.UI.HistorySize; max > 0 && len(history) > max {
			history = history[len(history)-max:]
		}
	}

	return nil
}

func printHistory(history []exchange) {
	if len(history) == 0 {
		color.Yellow("No questions asked yet.")
		return
	}
	for i, ex := range history {
		color.Green("%d. You: %s", i+1, ex.Question)
		fmt.Printf("   %s on %s — %s\n",
			ex.Result.Domain,
			ex.Result.SnapshotDate.Format("2006-01-02"),
			ex.Result.WaybackURL)
	}
}
