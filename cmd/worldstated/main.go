// Command worldstated serves the World State engine over the binary
// wire protocol: one goroutine per connection, each request dispatched
// through the shared worker pool and answered with one framed response.
package main

import (
	"flag"
	"log"
	"net"
	"net/http"
	_ "net/http/pprof"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	sysmem "github.com/pbnjay/memory"

	"github.com/ytrtdfkgf/merkle-worldstate/kv"
	"github.com/ytrtdfkgf/merkle-worldstate/kv/leveldb"
	kvmemory "github.com/ytrtdfkgf/merkle-worldstate/kv/memory"
	wrappedRedis "github.com/ytrtdfkgf/merkle-worldstate/kv/redis"
	prommetrics "github.com/ytrtdfkgf/merkle-worldstate/metrics/prometheus"
	"github.com/ytrtdfkgf/merkle-worldstate/wire"
	"github.com/ytrtdfkgf/merkle-worldstate/worldstate"

	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:7845", "address to serve the wire protocol on")
	metricsAddr := flag.String("metrics-addr", "127.0.0.1:7846", "address to serve /metrics and pprof on")
	backend := flag.String("backend", "memory", "kv backend: memory, leveldb, or redis")
	dataDir := flag.String("data-dir", "worldstate-data", "leveldb data directory (backend=leveldb only)")
	workers := flag.Uint("workers", 8, "shared worker pool size")
	flag.Parse()

	env, closeEnv, err := openBackend(*backend, *dataDir)
	if err != nil {
		log.Fatalf("worldstated: open backend: %v", err)
	}
	defer closeEnv()

	collector := prommetrics.NewCollector()

	e, err := worldstate.New(worldstate.Config{WorkerThreads: uint32(*workers), Metrics: collector}, env)
	if err != nil {
		log.Fatalf("worldstated: start engine: %v", err)
	}
	defer e.Close()

	dispatcher := wire.NewDispatcher(collector)
	wire.RegisterEngineHandlers(dispatcher, e)
	runner := wire.NewAsyncRunner(e.Pool(), dispatcher)

	go serveMetrics(*metricsAddr)

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("worldstated: listen on %s: %v", *addr, err)
	}
	log.Printf("worldstated: serving on %s (backend=%s)", *addr, *backend)

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Printf("worldstated: accept: %v", err)
			continue
		}
		go serveConn(conn, runner)
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/pprof/", http.DefaultServeMux)
	log.Printf("worldstated: metrics and pprof on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("worldstated: metrics server: %v", err)
	}
}

func serveConn(conn net.Conn, runner *wire.AsyncRunner) {
	defer conn.Close()
	for {
		header, body, err := wire.ReadFrame(conn)
		if err != nil {
			return
		}
		response := <-runner.Submit(header, body)
		if err := wire.WriteFrame(conn, header, response); err != nil {
			return
		}
	}
}

// openBackend builds the kv.Environment named by backend. redis spins up
// an in-process miniredis instance: a real redis deployment is reached
// the same way, by pointing Config.Addr at it instead.
func openBackend(backend, dataDir string) (kv.Environment, func(), error) {
	switch backend {
	case "memory":
		return kvmemory.New(), func() {}, nil
	case "leveldb":
		env, err := leveldb.Open(dataDir, leveldb.Options{CacheMB: leveldbCacheBudgetMB()})
		if err != nil {
			return nil, nil, err
		}
		return env, func() { env.Close() }, nil
	case "redis":
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, err
		}
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		env := wrappedRedis.NewFromClient(client)
		return env, func() { env.Close(); mr.Close() }, nil
	default:
		log.Fatalf("worldstated: unknown backend %q", backend)
		return nil, nil, nil
	}
}

// leveldbCacheBudgetMB sizes goleveldb's block cache to a fixed fraction
// of total system memory rather than a hardcoded constant, so the
// default scales sensibly across very different host sizes.
func leveldbCacheBudgetMB() int {
	const fraction = 16 // 1/16th of total memory
	total := sysmem.TotalMemory()
	if total == 0 {
		return 0 // unknown: let leveldb.Open fall back to its own minimum
	}
	return int(total / fraction / (1 << 20))
}
