package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/banshee-data/eventstream/internal/catalog"
)

var errCatalogUsage = errors.New("usage: eventstream catalog [-db path] [-listen addr] list | show <id> | schema | serve")

func handleCatalog(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("catalog", stdout)
	dbPath := fs.String("db", "eventstream.db", "Path to the SQLite catalog")
	listen := fs.String("listen", "localhost:8080", "HTTP listen address for serve")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errCatalogUsage
	}

	c, err := catalog.Open(*dbPath)
	if err != nil {
		return err
	}
	defer c.Close()

	switch fs.Arg(0) {
	case "serve":
		return serveCatalog(ctx, c, *listen, stdout)
	case "schema":
		version, dirty, err := c.MigrateVersion()
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "schema version %d (dirty=%t)\n", version, dirty)
		return nil
	case "list":
		recordings, err := c.List(ctx)
		if err != nil {
			return err
		}
		for _, rec := range recordings {
			fmt.Fprintf(stdout, "%s  %-7s %9d events  %s  %s\n",
				rec.ID, rec.Kind, rec.Events, rec.RecordedAt.Format(time.RFC3339), rec.Source)
		}
		return nil
	case "show":
		if fs.NArg() < 2 {
			return errCatalogUsage
		}
		rec, err := c.Get(ctx, fs.Arg(1))
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "id:        %s\n", rec.ID)
		fmt.Fprintf(stdout, "source:    %s\n", rec.Source)
		fmt.Fprintf(stdout, "version:   %s\n", rec.Version)
		fmt.Fprintf(stdout, "kind:      %s\n", rec.Kind)
		fmt.Fprintf(stdout, "size:      %dx%d\n", rec.Width, rec.Height)
		fmt.Fprintf(stdout, "events:    %d\n", rec.Events)
		fmt.Fprintf(stdout, "span:      %d us to %d us\n", rec.FirstT, rec.LastT)
		fmt.Fprintf(stdout, "rate:      %.1f ev/s\n", rec.EventRate)
		fmt.Fprintf(stdout, "interval:  mean %.2f us, stddev %.2f us\n", rec.MeanIntervalUs, rec.StdDevIntervalUs)
		fmt.Fprintf(stdout, "recorded:  %s\n", rec.RecordedAt.Format(time.RFC3339))
		return nil
	}
	return errCatalogUsage
}

// serveCatalog serves the catalog API and its debug pages until ctx is done.
func serveCatalog(ctx context.Context, c *catalog.Catalog, addr string, stdout io.Writer) error {
	mux := catalog.NewServer(c).ServeMux()
	if err := c.AttachAdminRoutes(mux); err != nil {
		return err
	}
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("got request %q", r.URL.Path)
		mux.ServeHTTP(w, r)
	})
	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- err
		}
		close(errs)
	}()
	fmt.Fprintf(stdout, "serving catalog on http://%s/api/recordings\n", addr)

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errs
}
