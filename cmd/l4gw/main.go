/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Command l4gw runs the gateway as a standalone process: load
// configuration, start the orchestrator, and block until an interrupt
// or terminate signal arrives.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	libcbr "github.com/nabbar/golib/cobra"
	liblog "github.com/nabbar/golib/logger"
	loglvl "github.com/nabbar/golib/logger/level"
	libver "github.com/nabbar/golib/version"
	spfcbr "github.com/spf13/cobra"

	"github.com/nabbar/l4gw/config"
	"github.com/nabbar/l4gw/gateway"
)

var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

const shutdownGrace = 10 * time.Second

func main() {
	var configPath string

	app := libcbr.New()
	app.SetVersion(libver.NewVersion(
		libver.License_MIT,
		"l4gw",
		"Programmable layer-4 TCP/UDP gateway",
		buildDate,
		buildCommit,
		buildVersion,
		"Nicolas JUHEL",
		"l4gw",
		struct{}{},
		0,
	))
	app.Init()

	if err := app.SetFlagConfig(true, &configPath); err != nil {
		fmt.Fprintln(os.Stderr, "cannot register --config flag:", err)
		os.Exit(1)
	}
	app.AddCommandCompletion()

	root := app.Cobra()
	root.RunE = func(cmd *spfcbr.Command, args []string) error {
		return run(configPath)
	}

	if err := app.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := liblog.New(context.Background())
	log.SetLevel(loglvl.InfoLevel)

	gw := gateway.New(cfg, nil)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := gw.Start(ctx); err != nil {
		return err
	}
	log.Info("%s started", nil, cfg.Name)

	<-ctx.Done()
	log.Info("shutting down", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	gw.Shutdown(shutdownCtx)
	return nil
}
