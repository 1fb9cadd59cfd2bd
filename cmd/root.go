package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"formosa/cmd/dataset"
	"formosa/cmd/fetch"
	"formosa/cmd/harvest"
	"formosa/cmd/normalize"
	"formosa/cmd/rank"
	"formosa/cmd/reason"
	"formosa/internal/cache"
	"formosa/internal/config"
	"formosa/internal/keyring"
	"formosa/internal/logging"
	"formosa/internal/ratelimit"
)

// CLI is the complete command structure for the formosa pipeline.
type CLI struct {
	// Global flags
	LogDir      string `help:"Directory for per-command log files" default:"./logs/"`
	CacheDBFile string `help:"Path to cache SQLite database file" default:"./cache.db"`
	CacheTTL    string `help:"Cache time-to-live duration (e.g., 720h for 30 days)" default:"720h"`

	Fetch     FetchCmd     `cmd:"" help:"Download attraction metadata JSON from the open-data portal"`
	Rank      RankCmd      `cmd:"" help:"Rank attractions by search result count and keep the top K"`
	Harvest   HarvestCmd   `cmd:"" help:"Download candidate images per attraction from one source"`
	Normalize NormalizeCmd `cmd:"" help:"Convert harvested images to flattened JPEG"`
	Reason    ReasonCmd    `cmd:"" help:"Generate visual-reasoning captions for harvested images"`
	Dataset   DatasetCmd   `cmd:"" help:"Dataset maintenance: filter, split, rename"`
}

// FetchCmd downloads one metadata JSON file per attraction identifier.
type FetchCmd struct {
	Input  string `short:"f" help:"Path to the attraction list CSV" required:""`
	Output string `short:"o" help:"Directory for per-attraction JSON files"`
}

// RankCmd counts search results per attraction and writes the top-K table.
type RankCmd struct {
	Input      string `short:"f" help:"Path to the attraction list CSV" required:""`
	Output     string `short:"o" help:"Path for the ranked output CSV" default:"./attraction_ranked.csv"`
	Checkpoint string `help:"Path for the intermediate counts CSV" default:"./attraction_search_count.csv"`
	Mode       string `help:"Count source, api or scrape (empty = configured rank.mode)"`
	TopK       int    `help:"Number of attractions to keep (0 = configured default)"`
	BatchSize  int    `help:"Checkpoint cadence in processed attractions (0 = configured default)"`
}

// HarvestCmd downloads candidate images from one of the image sources.
type HarvestCmd struct {
	Source      string `arg:"" help:"Image source" enum:"maps,cse,flickr"`
	Input       string `short:"f" help:"Ranked CSV listing the attractions to harvest"`
	Attractions string `help:"Metadata JSON directory to take names from instead of a CSV"`
	Output      string `short:"o" help:"Root directory for per-attraction images"`
	Max         int    `help:"Images per attraction (0 = configured default for the source)"`
}

// NormalizeCmd converts every harvested image to JPEG.
type NormalizeCmd struct {
	Input   string `short:"d" help:"Root directory of the image tree"`
	Quality int    `help:"JPEG encoding quality" default:"95"`
}

// ReasonCmd generates captions with the configured Gemini model.
type ReasonCmd struct {
	Input            string `short:"f" help:"Ranked CSV with attraction names and descriptions" required:""`
	Images           string `short:"d" help:"Root directory of the image tree"`
	Output           string `short:"o" help:"JSONL output file (appended, resumable)"`
	Template         string `short:"t" help:"Prompt template file" required:""`
	Workers          int    `help:"Concurrent generation workers (0 = configured default)"`
	MaxPerAttraction int    `help:"Images per attraction (0 = all)"`
	Model            string `help:"Model name (empty = configured default)"`
}

// DatasetCmd groups the dataset maintenance subcommands.
type DatasetCmd struct {
	Filter DatasetFilterCmd `cmd:"" help:"Copy ranked attractions' metadata and images into a dataset root"`
	Split  DatasetSplitCmd  `cmd:"" help:"Split each attraction's images into train/ and val/ trees"`
	Rename DatasetRenameCmd `cmd:"" help:"Renumber every attraction's images into a dense sequence"`
}

// DatasetFilterCmd copies the ranked subset into a fresh dataset root.
type DatasetFilterCmd struct {
	Ranked      string `short:"f" help:"Ranked CSV listing the attractions to keep" required:""`
	Attractions string `help:"Metadata JSON directory"`
	Images      string `short:"d" help:"Root directory of the image tree"`
	Output      string `short:"o" help:"Dataset output root" required:""`
}

// DatasetSplitCmd splits images into train and validation trees.
type DatasetSplitCmd struct {
	Images     string  `short:"d" help:"Root directory of the image tree" required:""`
	Output     string  `short:"o" help:"Split output root" required:""`
	TrainRatio float64 `help:"Fraction of images per attraction that go to train" default:"0.9"`
}

// DatasetRenameCmd renumbers image files per attraction directory.
type DatasetRenameCmd struct {
	Images string `short:"d" help:"Root directory of the image tree" required:""`
}

// Execute parses the command line and runs the selected command.
func Execute() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("formosa"),
		kong.Description("A pipeline for building a captioned Taiwanese attraction image dataset."),
		kong.UsageOnError(),
	)

	initConfig(&cli)

	command, _, _ := strings.Cut(ctx.Command(), " ")
	cleanup, err := logging.Setup(command, cli.LogDir)
	if err != nil {
		slog.Error("Failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := ctx.Run(); err != nil {
		slog.Error("Command failed", "error", err)
		cleanup()
		os.Exit(1)
	}
}

func initConfig(cli *CLI) {
	// Credentials come from .env in the original workflow; absence is fine.
	_ = godotenv.Load()

	config.SetDefaults()
	if err := config.BindCredentialEnv(); err != nil {
		slog.Error("Failed to bind environment variables", "error", err)
	}
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("Fatal error reading config file", "error", err)
			os.Exit(1)
		}
	}

	viper.Set("LogDir", cli.LogDir)
	viper.Set("cache.dbfile", cli.CacheDBFile)
	viper.Set("cache.ttl", cli.CacheTTL)

	config.InitConfig()
}

func (f *FetchCmd) Run() error {
	output := f.Output
	if output == "" {
		output = viper.GetString("AttractionsDir")
	}
	return fetch.Run(fetch.Options{
		Input:     f.Input,
		OutputDir: output,
		BaseURL:   viper.GetString("fetch.baseurl"),
		IDColumn:  viper.GetString("fetch.idcolumn"),
	})
}

func (r *RankCmd) Run() error {
	counter, err := buildCounter(rankMode(r.Mode))
	if err != nil {
		return err
	}

	topK := r.TopK
	if topK == 0 {
		topK = viper.GetInt("rank.topk")
	}
	batchSize := r.BatchSize
	if batchSize == 0 {
		batchSize = viper.GetInt("rank.batchsize")
	}

	return rank.Run(rank.Options{
		Input:          r.Input,
		Output:         r.Output,
		CheckpointFile: r.Checkpoint,
		TopK:           topK,
		BatchSize:      batchSize,
		Columns: rank.Columns{
			Name:     viper.GetString("rank.namecolumn"),
			City:     viper.GetString("rank.citycolumn"),
			District: viper.GetString("rank.districtcolumn"),
		},
		Counter: counter,
	})
}

// rankMode resolves the count source: the flag wins, the rank.mode config
// key is the fallback.
func rankMode(flag string) string {
	if flag != "" {
		return flag
	}
	return viper.GetString("rank.mode")
}

func buildCounter(mode string) (rank.Counter, error) {
	switch mode {
	case "scrape":
		return &rank.ScrapeCounter{}, nil
	case "api":
		ring, err := keyring.New(config.GoogleAPIKeys)
		if err != nil {
			return nil, fmt.Errorf("GOOGLE_API_KEY is required for api mode: %w", err)
		}
		engineID := config.GoogleSearchEngineID
		if engineID == "" {
			return nil, fmt.Errorf("GOOGLE_SEARCH_ENGINE_ID is required for api mode")
		}

		db, err := cache.Global()
		if err != nil {
			slog.Warn("Continuing without response cache", "error", err)
			db = nil
		}
		return &rank.APICounter{Keys: ring, EngineID: engineID, Cache: db}, nil
	default:
		return nil, fmt.Errorf("unknown rank mode %q (want api or scrape)", mode)
	}
}

func (h *HarvestCmd) Run() error {
	source, defaultMax, err := buildSource(h.Source)
	if err != nil {
		return err
	}

	var names []string
	switch {
	case h.Attractions != "":
		names, err = harvest.NamesFromAttractions(h.Attractions)
	case h.Input != "":
		names, err = harvest.NamesFromCSV(h.Input, viper.GetString("rank.namecolumn"))
	default:
		return fmt.Errorf("either --input or --attractions is required")
	}
	if err != nil {
		return err
	}

	maxImages := h.Max
	if maxImages == 0 {
		maxImages = defaultMax
	}
	output := h.Output
	if output == "" {
		output = viper.GetString("harvest.outputdir")
	}

	opts := harvest.Options{
		Names:     names,
		OutputDir: output,
		Max:       maxImages,
		Source:    source,
	}
	if h.Source == "flickr" {
		// Flickr scrape results include thumbnails worth filtering out.
		opts.MinBytes = viper.GetInt64("harvest.minimagebytes")
	}
	return harvest.Run(opts)
}

func buildSource(name string) (harvest.Source, int, error) {
	switch name {
	case "maps":
		ring, err := keyring.New(config.GoogleAPIKeys)
		if err != nil {
			return nil, 0, fmt.Errorf("GOOGLE_API_KEY is required for the maps source: %w", err)
		}
		return &harvest.MapsSource{Keys: ring}, viper.GetInt("harvest.maxmaps"), nil
	case "cse":
		ring, err := keyring.New(config.GoogleAPIKeys)
		if err != nil {
			return nil, 0, fmt.Errorf("GOOGLE_API_KEY is required for the cse source: %w", err)
		}
		if config.GoogleSearchEngineID == "" {
			return nil, 0, fmt.Errorf("GOOGLE_SEARCH_ENGINE_ID is required for the cse source")
		}
		db, err := cache.Global()
		if err != nil {
			slog.Warn("Continuing without response cache", "error", err)
			db = nil
		}
		return &harvest.CSESource{
			Keys:     ring,
			EngineID: config.GoogleSearchEngineID,
			Pacer:    ratelimit.NewPacer(config.RequestDelay, config.RequestJitter),
			Cache:    db,
		}, viper.GetInt("harvest.maxcse"), nil
	case "flickr":
		if config.FlickrAPIKey == "" {
			return nil, 0, fmt.Errorf("FLICKR_API_KEY is required for the flickr source")
		}
		return &harvest.FlickrSource{APIKey: config.FlickrAPIKey}, viper.GetInt("harvest.maxflickr"), nil
	default:
		return nil, 0, fmt.Errorf("unknown image source %q", name)
	}
}

func (n *NormalizeCmd) Run() error {
	input := n.Input
	if input == "" {
		input = viper.GetString("harvest.outputdir")
	}
	_, err := normalize.Run(normalize.Options{InputDir: input, Quality: n.Quality})
	return err
}

func (r *ReasonCmd) Run() error {
	ring, err := keyring.New(config.GeminiAPIKeys)
	if err != nil {
		return fmt.Errorf("GEMINI_API_KEY is required: %w", err)
	}

	template, err := os.ReadFile(r.Template)
	if err != nil {
		return fmt.Errorf("failed to read prompt template: %w", err)
	}

	model := r.Model
	if model == "" {
		model = viper.GetString("reason.model")
	}
	workers := r.Workers
	if workers == 0 {
		workers = viper.GetInt("reason.workers")
	}
	maxPer := r.MaxPerAttraction
	if maxPer == 0 {
		maxPer = viper.GetInt("reason.maxperattraction")
	}
	images := r.Images
	if images == "" {
		images = viper.GetString("harvest.outputdir")
	}
	output := r.Output
	if output == "" {
		output = viper.GetString("reason.output")
	}

	_, err = reason.Run(reason.Options{
		Input:             r.Input,
		ImageDir:          images,
		Output:            output,
		Template:          string(template),
		NameColumn:        viper.GetString("rank.namecolumn"),
		DescriptionColumn: viper.GetString("rank.descriptioncolumn"),
		MaxPerAttraction:  maxPer,
		Workers:           workers,
		Limiter:           ratelimit.New("gemini", viper.GetInt("reason.rps")),
		Generator:         &reason.GeminiGenerator{Keys: ring, Model: model},
	})
	return err
}

func (d *DatasetFilterCmd) Run() error {
	attractions := d.Attractions
	if attractions == "" {
		attractions = viper.GetString("AttractionsDir")
	}
	images := d.Images
	if images == "" {
		images = viper.GetString("harvest.outputdir")
	}
	_, err := dataset.Filter(dataset.FilterOptions{
		RankedCSV:      d.Ranked,
		NameColumn:     viper.GetString("rank.namecolumn"),
		AttractionsDir: attractions,
		ImageDir:       images,
		OutputDir:      d.Output,
	})
	return err
}

func (d *DatasetSplitCmd) Run() error {
	_, err := dataset.Split(dataset.SplitOptions{
		ImageDir:   d.Images,
		OutputDir:  d.Output,
		TrainRatio: d.TrainRatio,
	})
	return err
}

func (d *DatasetRenameCmd) Run() error {
	_, err := dataset.Rename(dataset.RenameOptions{ImageDir: d.Images})
	return err
}
