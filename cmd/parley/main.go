package main

//                      _
//   _ __    __ _  _ __| |  ___  _   _
//  | '_ \  / _` || '__| | / _ \| | | |
//  | |_) || (_| || |  | ||  __/| |_| |
//  | .__/  \__,_||_|  |_| \___| \__, |
//  |_|   .  talk  to  your  tools|___/

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mazznoer/colorgrad"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"parley/internal/config"
	"parley/internal/core"
	"parley/internal/gateway"
	"parley/internal/llm"
	"parley/internal/mcp"
	"parley/internal/session"
	"parley/internal/transcribe"
)

const version = "0.3"

func main() {
	fmt.Printf("%s\n", getBanner())

	cmd := &cli.Command{
		Name:    "parley",
		Usage:   "conversational gateway for MCP tool servers",
		Version: version,
		Flags:   config.GetFlags(),
		Action:  runServer,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		// Print to stderr first in case logger isn't initialized
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		zap.S().Fatal(err)
	}
}

func getBanner() string {
	banner := `
                     _
  _ __    __ _  _ __| |  ___  _   _
 | '_ \  / _' || '__| | / _ \| | | |
 | |_) || (_| || |  | ||  __/| |_| |
 | .__/  \__,_||_|  |_| \___| \__, |
 |_|   talk to your tools     |___/   [v` + version + `]
`
	grad, _ := colorgrad.NewGradient().
		HtmlColors("#12b886ff", "#fdfdfdff").
		Build()

	lines := strings.Split(banner, "\n")

	// Find max line length for gradient spread
	maxLen := 0
	for _, line := range lines {
		if len(line) > maxLen {
			maxLen = len(line)
		}
	}

	colors := grad.Colors(uint(maxLen))
	var coloredBanner strings.Builder

	for _, line := range lines {
		for i, ch := range line {
			r, g, b, _ := colors[i].RGBA255()
			coloredBanner.WriteString(fmt.Sprintf("\x1b[38;2;%d;%d;%dm%c", r, g, b, ch))
		}
		coloredBanner.WriteString("\x1b[0m\n")
	}

	return coloredBanner.String()
}

func runServer(ctx context.Context, c *cli.Command) error {
	cfg := config.NewConfiguration(c)
	core.InitLogger(cfg.Chat.Verbose)
	defer zap.L().Sync() // Flushes buffer, if any

	if cfg.Chat.Verbose {
		cfg.PrintConfig()
	}

	registry := mcp.NewRegistry(mcp.NewConnector(version))
	backend := llm.NewBackend(cfg)
	sess := session.New(cfg, registry, backend)
	stt := transcribe.NewClient(cfg.API)
	srv := gateway.NewServer(cfg.HTTP, sess, stt)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return err
	}

	zap.S().Infow("Gateway listening",
		"addr", listener.Addr().String(),
		"model", cfg.Model.Model,
		"toolservers", len(cfg.ToolServers),
	)
	return srv.Serve(ctx, listener)
}
