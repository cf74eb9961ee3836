package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"JewelForecast/internal/di"
	"JewelForecast/internal/domain/models"
	"JewelForecast/internal/usecase"
	"JewelForecast/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	model := flag.String("model", "all", "model to train: gold, diamond or all")
	ifStale := flag.Bool("if-stale", false, "skip models trained within training.stale_after")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	targets, err := targetsOf(*model)
	if err != nil {
		log.Fatalf("%v", err)
	}

	trainer, cleanup, err := di.InitializeTrainer(cfg)
	if err != nil {
		log.Fatalf("trainer initialization failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	res := run(ctx, trainer, targets, *ifStale)
	stop()
	cleanup()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(res)
	if !res.Succeeded() {
		os.Exit(1)
	}
}

func targetsOf(model string) ([]models.ModelType, error) {
	if model == "" || model == "all" {
		return models.AllModelTypes, nil
	}
	mt, err := models.ParseModelType(model)
	if err != nil {
		return nil, err
	}
	return []models.ModelType{mt}, nil
}

func run(ctx context.Context, trainer *usecase.TrainingOrchestrator, targets []models.ModelType, ifStale bool) *models.TrainAllResult {
	res := &models.TrainAllResult{Errors: []string{}}
	for _, mt := range targets {
		if ifStale {
			stale, err := trainer.ShouldRetrain(ctx, mt)
			if err != nil {
				res.Errors = append(res.Errors, string(mt)+": "+err.Error())
				continue
			}
			if !stale {
				log.Printf("%s model is fresh, skipping", mt)
				continue
			}
		}
		entry, err := trainer.Train(ctx, mt)
		r := &models.TrainingResult{Success: err == nil}
		if err != nil {
			r.Error = err.Error()
			res.Errors = append(res.Errors, string(mt)+": "+r.Error)
		} else {
			r.Version = entry.Version
			r.Metrics = &entry.Metrics
		}
		switch mt {
		case models.ModelGold:
			res.GoldModel = r
		case models.ModelDiamond:
			res.DiamondModel = r
		}
	}
	return res
}
