package main

import (
	"context"
	"crypto/tls"
	"embed"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime"
	"time"

	"golang.org/x/crypto/acme/autocert"

	"world-pulse-map/pkg/api"
	"world-pulse-map/pkg/boundaries"
	"world-pulse-map/pkg/capitals"
	"world-pulse-map/pkg/database"
	"world-pulse-map/pkg/eventbus"
	"world-pulse-map/pkg/firehose"
	"world-pulse-map/pkg/interactions"
	"world-pulse-map/pkg/navigation"
	"world-pulse-map/pkg/render"
)

//go:embed data/*
var content embed.FS

var CompileVersion = "dev"

var domain = flag.String("domain", "", "Use 80 and 443 ports. Automatic HTTPS cert via Let's Encrypt.")
var dbType = flag.String("db-type", "sqlite", "Type of the database driver: genji, sqlite, duckdb, or pgx (postgresql)")
var dbPath = flag.String("db-path", "", "Path to the database file (defaults to the current folder, applicable for genji, sqlite drivers.)")
var dbConn = flag.String("db-conn", "", "Raw database DSN (applicable for pgx driver; overrides host/port fields)")
var dbHost = flag.String("db-host", "127.0.0.1", "Database host (applicable for pgx driver)")
var dbPort = flag.Int("db-port", 5432, "Database port (applicable for pgx driver)")
var dbUser = flag.String("db-user", "postgres", "Database user (applicable for pgx driver)")
var dbPass = flag.String("db-pass", "", "Database password (applicable for pgx driver)")
var dbName = flag.String("db-name", "WorldPulseMap", "Database name (applicable for pgx driver)")
var pgSSLMode = flag.String("pg-ssl-mode", "prefer", "PostgreSQL SSL mode: disable, allow, prefer, require, verify-ca, or verify-full")
var port = flag.Int("port", 8765, "Port for running the server")
var version = flag.Bool("version", false, "Show the application version")
var liveURL = flag.String("live-url", "", "Live event feed URL (GeoJSON FeatureCollection of point events)")
var liveInterval = flag.Duration("live-interval", time.Minute, "Live feed polling interval")
var startupRetries = flag.Int("startup-retries", 5, "Bounded retry count for the world boundary fetch at startup")
var startupRetryDelay = flag.Duration("startup-retry-delay", 5*time.Second, "Delay between startup retries")
var cacheTTL = flag.Duration("cache-ttl", 15*time.Second, "TTL for cached live responses; 0 disables caching")
var drillCooldown = flag.Duration("drill-cooldown", 2*time.Second, "Per-IP cooldown between drill-down requests")
var shareBase = flag.String("share-base", "", "Base URL encoded into /share QR codes (defaults to the request host)")
var defaultLat = flag.Float64("default-lat", 20, "Default map latitude at world level")
var defaultLon = flag.Float64("default-lon", 0, "Default map longitude at world level")
var defaultZoom = flag.Int("default-zoom", 3, "Default map zoom level at world level")

// mustReadData loads one embedded JSON file or stops the process; a
// missing seed file is a packaging error, not a runtime condition.
func mustReadData(name string) []byte {
	payload, err := content.ReadFile("data/" + name)
	if err != nil {
		log.Fatalf("embedded %s: %v", name, err)
	}
	return payload
}

// withServerHeader wraps any http.Handler, adding a
// "Server: world-pulse-map/<CompileVersion>" header.
//
// A HEAD request to "/" answers 200 OK without a body so load
// balancers can see the service is alive.
func withServerHeader(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "world-pulse-map/"+CompileVersion)

		if r.Method == http.MethodHead && r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// serveWithDomain starts:
//   - :80  — ACME HTTP-01 challenges plus a 301 redirect to https://<domain>/…
//   - :443 — HTTPS with automatic Let's Encrypt certificates.
//
// If autocert cannot issue a certificate for a host or SNI, the server
// still serves the previously obtained fallback certificate, which
// silences "host not configured" noise for bare-IP requests.
// All errors are only logged.
func serveWithDomain(domain string, handler http.Handler) {
	certMgr := &autocert.Manager{
		Prompt: autocert.AcceptTOS,
		Cache:  autocert.DirCache("certs"),
		HostPolicy: func(ctx context.Context, host string) error {
			if host == domain || host == "www."+domain {
				return nil
			}
			// IP address: do not block, just skip certificate issuance.
			if net.ParseIP(host) != nil {
				return nil
			}
			return errors.New("acme/autocert: host not configured")
		},
	}

	go func() {
		mux80 := http.NewServeMux()
		mux80.Handle("/.well-known/acme-challenge/", certMgr.HTTPHandler(nil))
		mux80.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			target := "https://" + domain + r.URL.RequestURI()
			http.Redirect(w, r, target, http.StatusMovedPermanently)
		})

		log.Printf("HTTP  server (ACME+redirect) -> :80")
		if err := (&http.Server{
			Addr:              ":80",
			Handler:           mux80,
			ReadHeaderTimeout: 10 * time.Second,
		}).ListenAndServe(); err != nil {
			log.Printf("HTTP  server error: %v", err)
		}
	}()

	// Daily certificate renewal check.
	go func() {
		t := time.NewTicker(24 * time.Hour)
		defer t.Stop()
		for range t.C {
			if _, err := certMgr.GetCertificate(&tls.ClientHelloInfo{ServerName: domain}); err != nil {
				log.Printf("autocert renewal check: %v", err)
			}
		}
	}()

	tlsCfg := certMgr.TLSConfig()
	tlsCfg.MinVersion = tls.VersionTLS10
	tlsCfg.NextProtos = append([]string{"http/1.0"}, tlsCfg.NextProtos...)

	// Fallback certificate for bare IPs and odd SNI values.
	var defaultCert *tls.Certificate
	go func() {
		for defaultCert == nil {
			if c, err := certMgr.GetCertificate(&tls.ClientHelloInfo{ServerName: domain}); err == nil {
				defaultCert = c
			}
			time.Sleep(time.Minute)
		}
	}()
	tlsCfg.GetCertificate = func(chi *tls.ClientHelloInfo) (*tls.Certificate, error) {
		c, err := certMgr.GetCertificate(chi)
		if err == nil {
			return c, nil
		}
		if defaultCert != nil {
			return defaultCert, nil
		}
		return nil, err
	}

	log.Printf("HTTPS server for %s -> :443 (TLS >=1.0, ALPN h2/http1.1/1.0)", domain)
	if err := (&http.Server{
		Addr:              ":443",
		Handler:           handler,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}).ListenAndServeTLS("", ""); err != nil {
		log.Printf("HTTPS server error: %v", err)
	}
}

// main parses flags, initialises the DB and the navigation engine,
// then either (a) serves plain HTTP on a custom port, or (b) if
// -domain is given, serves ACME-backed HTTPS on 443 plus an
// ACME/redirect helper on 80.
//
// If any web server returns an error it is only logged; the
// application continues running.  A final `select{}` keeps the main
// goroutine alive without resorting to mutexes.
func main() {
	flag.Parse()

	if *version {
		fmt.Printf("world-pulse-map version %s\n", CompileVersion)
		return
	}

	if *domain != "" && runtime.GOOS != "windows" && os.Geteuid() != 0 {
		log.Println("Binding to :80 / :443 requires super-user rights; run with sudo or as root.")
	}

	db, err := database.NewDatabase(database.Config{
		DBType:    *dbType,
		DBPath:    *dbPath,
		DBConn:    *dbConn,
		DBHost:    *dbHost,
		DBPort:    *dbPort,
		DBUser:    *dbUser,
		DBPass:    *dbPass,
		DBName:    *dbName,
		PGSSLMode: *pgSSLMode,
		Port:      *port,
	})
	if err != nil {
		log.Fatalf("DB init: %v", err)
	}
	if err := db.InitSchema(); err != nil {
		log.Fatalf("DB schema: %v", err)
	}

	worldURL, countrySources, err := boundaries.LoadCountrySources(mustReadData("country_sources.json"))
	if err != nil {
		log.Fatalf("country sources: %v", err)
	}
	caps, err := capitals.Load(mustReadData("capitals.json"))
	if err != nil {
		log.Fatalf("capitals: %v", err)
	}
	var info struct {
		Neighbors map[string][]string `json:"neighbors"`
	}
	if err := json.Unmarshal(mustReadData("country_info.json"), &info); err != nil {
		log.Fatalf("country info: %v", err)
	}
	manifest, err := interactions.LoadManifest(mustReadData("interactions.json"))
	if err != nil {
		log.Fatalf("interactions manifest: %v", err)
	}
	coords, err := interactions.LoadCoords(mustReadData("country_coords.json"))
	if err != nil {
		log.Fatalf("country coords: %v", err)
	}

	bus := eventbus.NewBus()
	canvas := render.NewDisplayList()
	source := boundaries.NewSource(worldURL, countrySources, db, log.Printf)
	nav := navigation.NewController(source, canvas, bus, caps, info.Neighbors, log.Printf)
	nav.SetHomeView(render.View{Lat: *defaultLat, Lon: *defaultLon, Zoom: *defaultZoom})

	// The world layer must exist before anything renders; retry a
	// bounded number of times, then give up loudly.
	{
		ctx := context.Background()
		var loadErr error
		for attempt := 1; attempt <= *startupRetries; attempt++ {
			if loadErr = nav.LoadWorld(ctx); loadErr == nil {
				break
			}
			log.Printf("world layer attempt %d/%d: %v", attempt, *startupRetries, loadErr)
			time.Sleep(*startupRetryDelay)
		}
		if loadErr != nil {
			log.Fatalf("world layer unavailable: %v", loadErr)
		}
	}

	reg := interactions.NewRegistry(manifest, coords, bus, log.Printf)
	go reg.Run(context.Background())

	// Replay interactions persisted by earlier ingests so restarts
	// keep user-submitted relations.
	{
		ctx := context.Background()
		records, err := db.ListInteractions(ctx)
		if err != nil {
			log.Printf("stored interactions: %v", err)
		}
		for _, rec := range records {
			var in interactions.Interaction
			if err := json.Unmarshal(rec.Payload, &in); err != nil {
				log.Printf("stored interaction %s: %v", rec.ID, err)
				continue
			}
			reg.Upsert(ctx, in)
		}
	}

	// Without a feed URL the poller only restores the snapshot an
	// earlier run left in the database, so /api/live still answers.
	fire := firehose.NewPoller(*liveURL, *liveInterval, db, bus, log.Printf)
	go fire.Run(context.Background())
	if *liveURL == "" {
		log.Println("live feed polling disabled: no -live-url configured")
	}

	handler := api.NewHandler(nav, fire, reg, db, canvas, log.Printf)
	handler.Cache = api.NewResponseCache(*cacheTTL)
	handler.Limiter = api.NewRateLimiter(*drillCooldown)
	handler.ShareBase = *shareBase

	mux := http.NewServeMux()
	handler.Register(mux)
	rootHandler := withServerHeader(mux)

	if *domain != "" {
		go serveWithDomain(*domain, rootHandler)
	} else {
		addr := fmt.Sprintf(":%d", *port)
		go func() {
			log.Printf("HTTP server -> http://localhost%s", addr)
			if err := http.ListenAndServe(addr, rootHandler); err != nil {
				log.Printf("HTTP server error: %v", err)
			}
		}()
	}

	select {}
}
