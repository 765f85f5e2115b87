package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/achtungsoftware/alarik"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		addr        = flag.String("addr", ":9000", "address to listen on")
		storageRoot = flag.String("storage", "./data", "directory object data is stored under")
		accessKey   = flag.String("access-key", "", "seed access key (optional; leave empty to disable auth)")
		secretKey   = flag.String("secret-key", "", "seed secret key, paired with -access-key")
		verbose     = flag.Bool("verbose", false, "enable debug-level logging")
	)
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if err := os.MkdirAll(*storageRoot, 0o755); err != nil {
		log.Fatalf("create storage root: %v", err)
	}

	caches := alarik.NewAuthCaches()
	if *accessKey != "" {
		caches.SetKey(*accessKey, *secretKey, "root")
	}

	gw := alarik.NewGateway(*storageRoot, caches, alarik.WithLogger(alarik.LogrusLog(log)))

	srv := &http.Server{
		Addr:              *addr,
		Handler:           gw.Server(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("alarik listening on %s, storage root %s", *addr, *storageRoot)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	fmt.Fprintln(os.Stderr, "shutting down")
}
