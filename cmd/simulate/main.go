// Command simulate measures how well the rating engine recovers a hidden
// ranking from noisy pairwise votes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/okian/arena/internal/adapters/repository"
	app "github.com/okian/arena/internal/app"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/normalize"
	"github.com/okian/arena/internal/simulation"
	"github.com/okian/arena/pkg/logger"
)

// Default configuration constants.
const (
	defaultTimeout = 10 * time.Minute
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	def := simulation.DefaultConfig()
	var (
		items       = flag.Int("items", def.Items, "Number of items")
		votes       = flag.Int("votes", def.Votes, "Number of ballots to cast")
		workers     = flag.Int("workers", def.Workers, "Number of concurrent voters")
		spread      = flag.Float64("spread", def.Spread, "Std dev of hidden true quality")
		noise       = flag.Float64("noise", def.Noise, "Std dev of voter perception error")
		draw        = flag.Float64("draw", def.Draw, "Perceived gap treated as a draw")
		seed        = flag.Int64("seed", def.Seed, "Random seed")
		minSpearman = flag.Float64("min-spearman", 0, "Fail if any dimension correlates below this")
		logFile     = flag.String("log", "", "Log file, - for stdout only")
		format      = flag.String("format", logger.FormatText, "Log format: text or json")
		verbose     = flag.Bool("verbose", false, "Log progress while voting")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulation.ShowHelp()
		return 0
	}

	closeLog, err := simulation.SetupLogging(*logFile, *format)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = closeLog() }()
	log := logger.Get()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	store := repository.NewMemoryStore(ctx, repository.WithSeed(*seed))
	defer store.Close()

	svc := app.New(
		app.WithStore(store),
		app.WithLogger(log),
		app.WithWorkerCount(*workers),
		app.WithSeed(*seed),
	)
	if err := svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		return 1
	}
	defer svc.Stop()

	rep, err := simulation.Run(ctx, svc, simulation.Config{
		Items:   *items,
		Votes:   *votes,
		Workers: *workers,
		Spread:  *spread,
		Noise:   *noise,
		Draw:    *draw,
		Seed:    *seed,
		Verbose: *verbose,
	})
	if err != nil {
		log.Error(ctx, "simulation failed", logger.Error(err))
		return 1
	}

	out, _ := json.MarshalIndent(rep, "", "  ")
	os.Stdout.Write(append(out, '\n'))

	if rep.MinSpearman() < *minSpearman {
		log.Error(ctx, "ranking recovery below threshold",
			logger.Float64("min_spearman", rep.MinSpearman()),
			logger.Float64("required", *minSpearman))
		return 1
	}
	if drift := rep.MaxMeanDrift(model.DefaultBaseline); drift > normalize.DefaultThreshold {
		log.Warn(ctx, "population mean drifted from baseline", logger.Float64("drift", drift))
	}
	return 0
}
