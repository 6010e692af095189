package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vitos/trade_engine/internal/config"
	"github.com/vitos/trade_engine/internal/infrastructure/broker"
	"go.uber.org/zap"
)

// Quick connectivity check against the terminal bridge: ping, tick, symbol
// constraints and account state for each configured symbol.
func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, _ := zap.NewDevelopment()
	bridge := broker.NewBridgeClient(cfg.Broker.RESTEndpoint, cfg.Broker.WSEndpoint, cfg.Broker.AuthToken, log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := bridge.EnsureConnected(ctx); err != nil {
		fmt.Printf("Bridge unreachable: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Bridge: OK")

	acct, err := bridge.GetAccount(ctx)
	if err != nil {
		fmt.Printf("Account: FAILED (%v)\n", err)
	} else {
		fmt.Printf("Account: equity=%.2f free_margin=%.2f %s\n", acct.Equity, acct.FreeMargin, acct.Currency)
	}

	for _, symbol := range cfg.Symbols {
		tick, err := bridge.GetTick(ctx, symbol)
		if err != nil {
			fmt.Printf("%s tick: FAILED (%v)\n", symbol, err)
			continue
		}
		info, err := bridge.GetSymbolInfo(ctx, symbol)
		if err != nil {
			fmt.Printf("%s info: FAILED (%v)\n", symbol, err)
			continue
		}
		fmt.Printf("%s: bid=%.5f ask=%.5f point=%g vol=[%g..%g step %g]\n",
			symbol, tick.Bid, tick.Ask, info.Point, info.VolumeMin, info.VolumeMax, info.VolumeStep)
	}
}
