//go:build linux

/*
 * MIT License
 *
 * Copyright (c) 2021 Nicolas JUHEL
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
 */

// Command spid bridges N=3 Unix-domain stream sockets to a SPI link
// framed by a sync and an interrupt GPIO line. It is the entrypoint
// wiring of internal/bridge's transaction loop: argument handling,
// logging, resource setup, and clean shutdown on signal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tessel/spid/internal/bridge"
	"github.com/tessel/spid/internal/closer"
	"github.com/tessel/spid/internal/fdlimit"
	"github.com/tessel/spid/internal/gpio"
	"github.com/tessel/spid/internal/health"
	"github.com/tessel/spid/internal/logging"
	"github.com/tessel/spid/internal/metrics"
	"github.com/tessel/spid/internal/spi"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spid /dev/spidevX.Y irq_gpio sync_gpio /var/run/tessel",
		Short: "Bridge Unix-domain sockets to a SPI link over two GPIO lines",
		Args:  cobra.ExactArgs(4),
		RunE:  runSpid,
	}
	return cmd
}

func runSpid(_ *cobra.Command, args []string) error {
	spiPath, irqGPIO, syncGPIO, socketDir := args[0], args[1], args[2], args[3]

	metricsAddr := os.Getenv("SPIBRIDGE_METRICS_ADDR")
	log := logging.New("spid", true)
	log.Info("Starting")

	if soft, hard, err := fdlimit.Current(); err == nil {
		log.Debugf("RLIMIT_NOFILE before raise: soft=%d hard=%d", soft, hard)
	}

	if _, _, err := fdlimit.Raise(1 + bridge.NumChannels*2 + 16); err != nil {
		log.Infof("could not raise RLIMIT_NOFILE, continuing with current limit: %s", err)
	}

	cl := closer.New()
	defer func() {
		if err := cl.Close(); err != nil {
			log.Errorf("cleanup: %s", err)
		}
	}()

	dev, err := spi.Open(spiPath)
	if err != nil {
		logging.Must(log, err, "opening SPI device")
	}
	cl.Add(dev)

	irq, err := gpio.OpenNumbered(irqGPIO)
	if err != nil {
		logging.Must(log, err, "opening IRQ GPIO")
	}
	cl.Add(irq)

	sync, err := gpio.OpenNumbered(syncGPIO)
	if err != nil {
		logging.Must(log, err, "opening sync GPIO")
	}
	cl.Add(sync)

	listenFDs, err := bridge.ListenAll(socketDir)
	if err != nil {
		logging.Must(log, err, fmt.Sprintf("listening under %s", socketDir))
	}
	for _, fd := range listenFDs {
		cl.Add(bridge.FD(fd))
	}

	cfg := bridge.Config{}

	healthSnap := health.NewSnapshot()
	cfg.Health = healthSnap

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		reg := metrics.New()
		cfg.Metrics = reg
		go func() {
			if err := metrics.Serve(ctx, metricsAddr, reg, healthSnap); err != nil {
				log.Errorf("metrics listener: %s", err)
			}
		}()
	}

	if err := bridge.Run(ctx, log, cfg, irq, sync, dev, listenFDs); err != nil {
		logging.Must(log, err, "transaction loop")
	}

	log.Info("Shutting down")
	return nil
}
