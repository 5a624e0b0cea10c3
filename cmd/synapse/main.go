// Command synapse is the batch/headless runner for the pulse-scheduler
// engine (spec.md §6).
//
// Grounded on the teacher's examples/health-monitor/main.go (flag/config ->
// resolve components -> start background workers -> os/signal graceful
// shutdown), adapted from resolving a DI scope to constructing an Engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	synapse "github.com/synapse-engine/synapse"
	"github.com/synapse-engine/synapse/extensions"
	"github.com/synapse-engine/synapse/nodes"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	graphPath := flag.String("graph", "", "path to a graph JSON file")
	startNode := flag.String("start", "", "id of the start node")
	trace := flag.Bool("trace", false, "emit the stdout trace protocol")
	headless := flag.Bool("headless", true, "run without the time-travel debugger")
	metricsAddr := flag.String("metrics-addr", "", "address to serve /metrics on, empty disables it")
	redisAddr := flag.String("redis-addr", "", "optional redis address for a shared Bridge backend")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	loader := synapse.NewConfigLoader(synapse.WithConfigPath(*configPath))
	cfg, err := loader.Load()
	if err != nil {
		log.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if *graphPath != "" {
		cfg.GraphPath = *graphPath
	}
	if *startNode != "" {
		cfg.StartNodeID = *startNode
	}
	if *trace {
		cfg.Trace = true
	}
	cfg.Headless = *headless
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *redisAddr != "" {
		cfg.RedisAddr = *redisAddr
	}

	if cfg.GraphPath == "" {
		log.Error("no graph path given (use -graph or a config file)")
		os.Exit(1)
	}

	gf, err := synapse.LoadGraphFile(cfg.GraphPath)
	if err != nil {
		log.Error("failed to load graph file", "path", cfg.GraphPath, "err", err)
		os.Exit(1)
	}

	nodeTable, wires, err := buildGraph(gf, log)
	if err != nil {
		log.Error("failed to build graph", "err", err)
		os.Exit(1)
	}

	var backend synapse.StorageBackend
	if redisCfg, ok := cfg.RedisBackend(); ok {
		rb, err := synapse.NewRedisBackend(redisCfg)
		if err != nil {
			log.Error("failed to connect to redis backend", "err", err)
			os.Exit(1)
		}
		backend = rb
	}

	bridge := synapse.NewBridge(synapse.ScopeRoot, backend, log)
	_ = bridge.Set(synapse.KeyHeadless, cfg.Headless, "main")
	_ = bridge.Set(synapse.KeyStopFile, cfg.StopFilePath, "main")
	_ = bridge.Set(synapse.KeyPauseFile, cfg.PauseFilePath, "main")
	_ = bridge.Set(synapse.KeyTraceEnabled, cfg.Trace, "main")
	_ = bridge.Set(synapse.KeyOSType, runtime.GOOS, "main")

	engine := synapse.NewEngine(cfg, nodeTable, wires, synapse.ScopeRoot, bridge, nil, "", log)

	exts := []synapse.Extension{}
	if cfg.Trace {
		exts = append(exts, extensions.NewTraceExtension())
	}
	names := make(map[string]string, len(nodeTable))
	for id, n := range nodeTable {
		names[id] = n.Name
	}
	exts = append(exts, extensions.NewGraphDebugExtension(log, synapse.BuildWireAdjacency(wires), names))

	var metrics *extensions.MetricsExtension
	if cfg.MetricsAddr != "" {
		metrics = extensions.NewMetricsExtension()
		exts = append(exts, metrics)
	}
	engine.UseExtensions(exts...)

	if metrics != nil {
		registry := prometheus.NewRegistry()
		for _, c := range metrics.Collectors() {
			registry.MustRegister(c)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			log.Info("serving metrics", "addr", cfg.MetricsAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed", "err", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		_ = bridge.Set(synapse.KeyStop, true, "main")
		cancel()
	}()

	startNodeID := cfg.StartNodeID
	if startNodeID == "" {
		startNodeID = gf.Nodes[0].ID
	}
	if err := engine.Run(ctx, startNodeID, []string{synapse.ScopeRoot}); err != nil {
		if errors.Is(err, synapse.ErrStopped) {
			log.Info("run stopped via external signal")
			os.Exit(2)
		}
		log.Error("engine run failed", "err", err)
		os.Exit(1)
	}
}

// buildGraph instantiates every graph-file node from the sample node
// library by its declared type name, then builds the Wire slice.
func buildGraph(gf *synapse.GraphFile, log *slog.Logger) (map[string]*synapse.Node, []*synapse.Wire, error) {
	nodeTable := make(map[string]*synapse.Node, len(gf.Nodes))
	for _, gn := range gf.Nodes {
		n, err := instantiateNode(gn, log)
		if err != nil {
			return nil, nil, err
		}
		for k, v := range gn.Properties {
			n.Properties[k] = v
		}
		nodeTable[gn.ID] = n
	}

	wires := make([]*synapse.Wire, 0, len(gf.Wires))
	for _, gw := range gf.Wires {
		wires = append(wires, &synapse.Wire{
			FromNode: gw.FromNode,
			FromPort: gw.FromPort,
			ToNode:   gw.ToNode,
			ToPort:   gw.ToPort,
		})
	}
	return nodeTable, wires, nil
}

func instantiateNode(gn synapse.GraphFileNode, log *slog.Logger) (*synapse.Node, error) {
	switch gn.Type {
	case "Start":
		return nodes.NewStart(gn.ID), nil
	case "Debug":
		return nodes.NewDebug(gn.ID, log), nil
	case "Return":
		return nodes.NewReturn(gn.ID), nil
	case "Divide":
		return nodes.NewDivide(gn.ID), nil
	case "While":
		return nodes.NewWhile(gn.ID), nil
	case "Provider":
		return nodes.NewProvider(gn.ID, log), nil
	case "Broadcast":
		return nodes.NewBroadcast(gn.ID), nil
	default:
		return nil, fmt.Errorf("synapse: unknown node type %q", gn.Type)
	}
}
