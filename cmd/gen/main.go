package main

import (
	"flag"

	"github.com/utrading/utrading-perp-core/config"
	"github.com/utrading/utrading-perp-core/internal/dal"
)

func main() {
	var configFile, outPath string
	flag.StringVar(&configFile, "config", "cfg.toml", "config file path")
	flag.StringVar(&outPath, "out", "internal/dal/query", "output directory")
	flag.Parse()

	if err := config.Init(configFile); err != nil {
		panic(err)
	}
	defer config.Stop()

	if err := dal.InitDB(config.Get().MySQL); err != nil {
		panic(err)
	}
	defer dal.CloseDB()

	dal.GenExecute(outPath, dal.DB())
}
