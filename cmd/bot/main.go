package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/aleksashka/quiz-bot/core/buildinfo"
	corecmd "github.com/aleksashka/quiz-bot/core/cmd"
	"github.com/aleksashka/quiz-bot/internal/app"
)

func main() {
	showVersion := flag.Bool("version", false, "print build info and exit")
	flag.Parse()
	if *showVersion {
		fmt.Printf("quiz-bot %s (%s %s)\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
		return
	}

	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "configs/config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return app.LoadConfig(path)
		},
		Bootstrap: func(cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			appCfg, ok := cfg.(*app.Config)
			if !ok {
				return nil, fmt.Errorf("unexpected config type %T", cfg)
			}
			return app.Bootstrap(appCfg)
		},
	})
	if err != nil {
		log.Printf("fatal: %v", err)
		os.Exit(1)
	}
}
