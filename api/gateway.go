package api

import (
	"fmt"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"

	"FinLedgerSaas/internal/config"
)

// createReverseProxy returns a reverse proxy handler for the given target URL.
func createReverseProxy(target string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := url.Parse(target)
		if err != nil {
			msg := fmt.Sprintf("[Gateway][ERROR] bad target URL %s for %s", target, r.URL.Path)
			log.Println(msg)
			http.Error(w, "Bad gateway target", http.StatusBadGateway)
			return
		}
		proxy := httputil.NewSingleHostReverseProxy(u)
		proxy.ErrorHandler = func(rw http.ResponseWriter, req *http.Request, err error) {
			log.Printf("[Gateway][ERROR] proxy to %s failed for %s: %v", target, req.URL.Path, err)
			RespondWithError(rw, http.StatusBadGateway, "Upstream service unavailable")
		}
		proxy.ServeHTTP(w, r)
	}
}

// StartGateway fronts the internal services on one public port. The auth
// layer sits in front of this in production and injects the identity
// headers the ingestion routes trust.
func StartGateway(cfg map[string]interface{}) {
	datasetTarget := "http://localhost" + config.DefaultDatasetPort
	if t, ok := cfg["dataset_target"].(string); ok && t != "" {
		datasetTarget = t
	}
	port := config.DefaultGatewayPort
	if p, ok := cfg["port"].(string); ok && p != "" {
		port = p
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/dataset/", createReverseProxy(datasetTarget))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	log.Println("Gateway started on", port)
	if err := http.ListenAndServe(port, mux); err != nil {
		log.Fatalf("Gateway failed: %v", err)
	}
}
