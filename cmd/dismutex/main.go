package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/holmgr/go-dismutex/pkg/dismutex"
	"github.com/holmgr/go-dismutex/pkg/dismutex/definition"
	"github.com/holmgr/go-dismutex/pkg/dismutex/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"gopkg.in/alecthomas/kingpin.v2"
)

// Flags default to empty so the precedence is defaults, then the
// config file, then explicitly passed flags.
var (
	app         = kingpin.New("dismutex", "Replicated fortune store peer with distributed locking.")
	configPath  = app.Flag("config", "Optional configuration file.").String()
	peerType    = app.Flag("type", "Peer type registered with the name service (default fortune).").String()
	bind        = app.Flag("bind", "Listener address, host:port (default localhost:0).").String()
	nameService = app.Flag("name-service", "Name service address, host:port (default localhost:4242).").String()
	database    = app.Flag("database", "Record store file (default fortunes.db).").String()
	metricsBind = app.Flag("metrics", "Prometheus endpoint, host:port. Empty disables it.").String()
	debug       = app.Flag("debug", "Emit debug output.").Bool()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	conf := definition.DefaultConfiguration("fortune")
	if *configPath != "" {
		if err := definition.LoadConfiguration(*configPath, conf); err != nil {
			fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
			os.Exit(1)
		}
	}
	if err := applyFlags(conf); err != nil {
		fmt.Fprintf(os.Stderr, "flags: %v\n", err)
		os.Exit(1)
	}

	log := conf.Logger
	peer, err := dismutex.NewPeer(conf)
	if err != nil {
		log.Errorf("initialization failed: %v", err)
		os.Exit(1)
	}
	if err := peer.Start(); err != nil {
		log.Errorf("startup failed: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	if conf.MetricsBind != "" {
		group.Go(func() error {
			return serveMetrics(ctx, conf.MetricsBind, log)
		})
	}
	group.Go(func() error {
		defer cancel()
		runConsole(peer, log)
		return nil
	})

	if err := group.Wait(); err != nil {
		log.Errorf("shutdown error: %v", err)
	}
	peer.Destroy()
}

// applyFlags lets explicitly passed flags win over file values.
func applyFlags(conf *types.PeerConfiguration) error {
	if *peerType != "" {
		conf.Type = *peerType
	}
	if *bind != "" {
		addr, err := types.ParseAddress(*bind)
		if err != nil {
			return err
		}
		conf.Bind = addr
	}
	if *nameService != "" {
		addr, err := types.ParseAddress(*nameService)
		if err != nil {
			return err
		}
		conf.NameService = addr
	}
	if *database != "" {
		conf.DatabasePath = *database
	}
	if *metricsBind != "" {
		conf.MetricsBind = *metricsBind
	}
	if *debug {
		conf.Debug = true
	}
	return nil
}

func serveMetrics(ctx context.Context, addr string, log types.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe() }()
	log.Infof("metrics on http://%s/metrics", addr)

	select {
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	case err := <-done:
		return err
	}
}

// runConsole drives the peer from stdin until the operator exits.
func runConsole(peer *dismutex.Peer, log types.Logger) {
	usage := func() {
		fmt.Println("commands: peers, status, acquire, release, read, write <text>, help, exit")
	}
	usage()
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf("peer %d> ", peer.ID())
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		command := line
		argument := ""
		if i := strings.IndexByte(line, ' '); i >= 0 {
			command, argument = line[:i], strings.TrimSpace(line[i+1:])
		}

		switch command {
		case "":
		case "peers":
			peer.DisplayPeers()
		case "status":
			peer.DisplayStatus()
		case "acquire":
			peer.Acquire()
			fmt.Println("lock acquired")
		case "release":
			peer.Release()
			fmt.Println("lock released")
		case "read":
			record, ok := peer.Read()
			if !ok {
				fmt.Println("the store is empty")
				break
			}
			fmt.Println(record)
		case "write":
			if argument == "" {
				fmt.Println("usage: write <text>")
				break
			}
			if err := peer.Write(argument); err != nil {
				log.Errorf("write failed: %v", err)
			}
		case "help":
			usage()
		case "exit":
			return
		default:
			fmt.Printf("unknown command %q\n", command)
			usage()
		}
	}
}
