package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/crypto/acme/autocert"

	"github.com/dj-oyu/esp32-detect-dashboard/dashboard-server/internal/logger"
)

// serveTLS serves srv's handler on :443 with certificates from Let's Encrypt.
// Port 80 answers ACME challenges and redirects everything else to HTTPS.
func serveTLS(srv *http.Server, domain, cacheDir string) error {
	certMgr := &autocert.Manager{
		Prompt: autocert.AcceptTOS,
		Cache:  autocert.DirCache(cacheDir),
		HostPolicy: func(ctx context.Context, host string) error {
			if host == domain || host == "www."+domain {
				return nil
			}
			return errors.New("acme/autocert: host not configured")
		},
	}

	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.Host)
			if err != nil {
				host = r.Host
			}
			http.Redirect(w, r, "https://"+host+r.URL.RequestURI(), http.StatusMovedPermanently)
		})

		logger.Info("Main", "ACME challenge and redirect listening on :80")
		redirect := &http.Server{
			Addr:              ":80",
			Handler:           certMgr.HTTPHandler(mux),
			ReadHeaderTimeout: 10 * time.Second,
		}
		if err := redirect.ListenAndServe(); err != nil {
			logger.Error("Main", "ACME listener: %v", err)
		}
	}()

	srv.Addr = ":443"
	srv.TLSConfig = certMgr.TLSConfig()
	logger.Info("Main", "HTTPS for %s listening on :443", domain)
	return srv.ListenAndServeTLS("", "")
}
