package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/holmgr/go-dismutex/pkg/dismutex/definition"
	"github.com/holmgr/go-dismutex/pkg/dismutex/nameservice"
	"github.com/holmgr/go-dismutex/pkg/dismutex/types"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	app   = kingpin.New("nameservice", "Name service for dismutex peers.")
	bind  = app.Flag("bind", "Listener address, host:port.").Default("localhost:4242").String()
	debug = app.Flag("debug", "Emit debug output.").Bool()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	log := definition.NewDefaultLogger("name_service")
	log.ToggleDebug(*debug)

	addr, err := types.ParseAddress(*bind)
	if err != nil {
		log.Errorf("bad bind address: %v", err)
		os.Exit(1)
	}
	server, err := nameservice.NewServer(addr, log)
	if err != nil {
		log.Errorf("initialization failed: %v", err)
		os.Exit(1)
	}
	server.Start()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-interrupt
	server.Close()
}
