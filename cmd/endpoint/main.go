// Command endpoint runs a single causal-messaging process: it binds the
// reliable-unicast transport, wires the causal-delivery layer on top, and
// can serve Prometheus's default registry over HTTP. The transport's own
// counters live in a private registry that this command does not serve.
package main

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/kayua/causalnet/internal/config"
	"github.com/kayua/causalnet/internal/endpoint"
	"github.com/kayua/causalnet/internal/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
)

func main() {
	var (
		processID   = pflag.IntP("process-id", "p", 0, "this process's id within the group")
		numProcs    = pflag.IntP("num-processes", "n", 1, "total number of processes in the group")
		address     = pflag.String("address", "127.0.0.1", "IP address this process advertises to peers")
		listenPort  = pflag.Int("listen-port", 9000, "UDP port to bind")
		maxDelay    = pflag.Duration("max-delay", 0, "uniform jitter applied to first send attempts")
		lossProb    = pflag.Float64("loss-probability", 0, "fraction of outbound datagrams dropped pre-wire")
		ackLossProb = pflag.Float64("ack-loss-probability", 0, "fraction of outbound acks dropped pre-wire")
		ackTimeout  = pflag.Duration("ack-timeout", 0, "how long a send waits for an ack before retrying")
		maxRetries  = pflag.Int("max-retries", 5, "retransmissions attempted before giving up on a message")
		metricsAddr = pflag.String("metrics-addr", "", "if set, serve /metrics on this address")
		debug       = pflag.Bool("debug", false, "enable debug-level logging")
	)
	pflag.Parse()

	if *ackTimeout <= 0 {
		*ackTimeout = defaultAckTimeout
	}

	logger := logging.NewDefault()
	logger.ToggleDebug(*debug)

	cfg := config.Config{
		ProcessID:          *processID,
		NumProcesses:       *numProcs,
		Address:            *address,
		ListenPort:         *listenPort,
		MaxDelay:           *maxDelay,
		LossProbability:    *lossProb,
		AckLossProbability: *ackLossProb,
		AckTimeout:         *ackTimeout,
		MaxRetries:         *maxRetries,
	}

	ep, err := endpoint.New(cfg, logger)
	if err != nil {
		logger.Fatalf("endpoint: failed to start: %v", err)
	}
	defer ep.Close()

	if *metricsAddr != "" {
		go serveMetrics(logger, *metricsAddr)
	}

	logger.Infof("endpoint %d listening on %s:%d", ep.ID(), *address, *listenPort)
	runShell(ep, logger)
}

const defaultAckTimeout = 500_000_000 // 500ms, in time.Duration's ns units

func serveMetrics(logger logging.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warnf("endpoint: metrics server stopped: %v", err)
	}
}

// runShell reads "send <dest> <message>" lines from stdin; after each
// successful send it pops at most one pending delivery and prints it, so
// the binary is drivable without writing a second program.
func runShell(ep *endpoint.Endpoint, logger logging.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 3)
		if len(fields) != 3 || fields[0] != "send" {
			fmt.Println("usage: send <host:port> <message>")
			continue
		}
		if err := ep.Send([]byte(fields[2]), fields[1]); err != nil {
			logger.Warnf("send failed: %v", err)
			continue
		}
		if payload, senderAddr, ok := ep.Receive(); ok {
			fmt.Printf("delivered from %s: %s\n", senderAddr, payload)
		}
	}
}
