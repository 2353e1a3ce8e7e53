// main.go - entry point: a single binary that re-execs itself into a
// worker role, self-reexec being how this runtime gets true OS-process
// crash isolation between the two render slots out of one compiled
// artifact.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/Norsninja/music-chronus/internal/audiodev"
	"github.com/Norsninja/music-chronus/internal/config"
	"github.com/Norsninja/music-chronus/internal/module"
	"github.com/Norsninja/music-chronus/internal/supervisor"
	"github.com/Norsninja/music-chronus/internal/transport"
	"github.com/Norsninja/music-chronus/internal/worker"
)

// exitInitFailure is returned when the runtime cannot come up at all:
// bad configuration, shared-memory allocation, worker spawn, or audio
// device open.
const exitInitFailure = 2

func main() {
	workerMode := pflag.Bool("worker", false, "internal: run as a render-worker subprocess")
	slot := pflag.Int("slot", 0, "internal: worker slot index (0 or 1)")
	shmPath := pflag.String("shm", "", "internal: shared-memory backing file path")
	httpAddr := pflag.String("http", "127.0.0.1:7070", "status/schema HTTP listen address")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Errorf("config: %v", err)
		os.Exit(exitInitFailure)
	}

	if *workerMode {
		if err := worker.Run(worker.Options{Slot: *slot, ShmPath: *shmPath, Cfg: cfg}, os.Stdin, os.Stdout); err != nil {
			log.Fatalf("worker: %v", err)
		}
		return
	}

	if err := runSupervisor(cfg, *httpAddr); err != nil {
		log.Errorf("supervisor: %v", err)
		os.Exit(exitInitFailure)
	}
}

func runSupervisor(cfg config.Config, httpAddr string) error {
	registry := module.NewRegistry()
	if err := module.RegisterBuiltins(registry); err != nil {
		return fmt.Errorf("register builtins: %w", err)
	}

	shmPath := fmt.Sprintf("%s/music-chronus-%d.shm", os.TempDir(), os.Getpid())
	defer os.Remove(shmPath)

	sup, err := supervisor.New(cfg, registry, shmPath)
	if err != nil {
		return err
	}

	device, err := newDevice(cfg, sup.Pull)
	if err != nil {
		return fmt.Errorf("audio device: %w", err)
	}
	if err := device.Start(); err != nil {
		return fmt.Errorf("start audio device: %w", err)
	}

	oscServer := transport.NewServer(cfg.OSCHost, cfg.OSCPort, sup)
	go func() {
		if err := oscServer.ListenAndServe(); err != nil {
			log.Errorf("osc server stopped: %v", err)
		}
	}()

	httpServer := &http.Server{Addr: httpAddr, Handler: transport.NewStatusHandler(sup)}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("status http server stopped: %v", err)
		}
	}()

	log.Infof("music-chronus: osc listening on %s:%d, status on %s", cfg.OSCHost, cfg.OSCPort, httpAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Infof("music-chronus: shutting down")
	device.Stop()
	device.Close()
	httpServer.Close()
	sup.Shutdown(1 * time.Second)
	return nil
}

func newDevice(cfg config.Config, pull audiodev.BlockSource) (audiodev.Device, error) {
	return newPlatformDevice(cfg, pull)
}
