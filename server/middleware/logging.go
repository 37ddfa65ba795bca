package middleware

import (
	"log"
	"net/http"

	"humidstat.api/v0/internal/config"
)

func BasicLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if config.Verbose {
			log.Printf("[%s]%s from [Host:%s | IP:%s]\n", r.Method, r.RequestURI, r.Host, r.RemoteAddr)
		}
		next.ServeHTTP(w, r)
	})
}
