// ABOUTME: Entry point for the simulated translation bridge
// ABOUTME: Serves a scripted call for exercising the console without telephony
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Evatrad/evatrad-go/internal/bridge"
	"github.com/charmbracelet/log"
)

var (
	port         = flag.Int("port", 3000, "HTTP and WebSocket port")
	name         = flag.String("name", "", "Advertised name (default: hostname-evatrad-bridge)")
	logFile      = flag.String("log-file", "evatrad-bridge.log", "Log file path")
	debug        = flag.Bool("debug", false, "Enable debug logging")
	noMDNS       = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	answerAfter  = flag.Duration("answer-after", 3*time.Second, "Ring time before the receiver answers")
	turnInterval = flag.Duration("turn-interval", 4*time.Second, "Silence before each receiver turn")
	clockSkew    = flag.Duration("clock-skew", 0, "Offset added to the server clock")
	hangup       = flag.Bool("hangup", true, "Receiver hangs up after the script")
	busy         = flag.String("busy", "", "Comma-separated numbers that report busy")
)

func main() {
	flag.Parse()

	// Set up logging (both file and console)
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	level := log.InfoLevel
	if *debug {
		level = log.DebugLevel
	}
	log.SetDefault(log.NewWithOptions(io.MultiWriter(os.Stdout, f), log.Options{
		ReportTimestamp: true,
		Level:           level,
	}))

	var busyNumbers []string
	for _, n := range strings.Split(*busy, ",") {
		if n = strings.TrimSpace(n); n != "" {
			busyNumbers = append(busyNumbers, n)
		}
	}

	srv := bridge.New(bridge.Config{
		Port:           *port,
		Name:           *name,
		EnableMDNS:     !*noMDNS,
		AnswerAfter:    *answerAfter,
		TurnInterval:   *turnInterval,
		ClockSkew:      *clockSkew,
		EndAfterScript: *hangup,
		BusyNumbers:    busyNumbers,
	})

	log.Info("Starting bridge simulator", "port", *port, "log_file", *logFile)
	log.Info("Press Ctrl-C to stop")

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info("Shutting down", "signal", sig)
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		log.Error("Server error", "err", err)
		f.Close()
		os.Exit(1)
	}

	log.Info("Bridge stopped")
}
