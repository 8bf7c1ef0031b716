// vnrec - VNDB Recommendation Engine
// Copyright 2026 vndb-tools
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vndb-tools/vnrec

// Package api provides the HTTP surface over the recommendation engine,
// routed with Chi.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vndb-tools/vnrec/internal/config"
)

// Router builds the HTTP handler tree.
type Router struct {
	handler *Handler
	cfg     *config.ServerConfig
}

// NewRouter returns a router serving the given engine.
func NewRouter(handler *Handler, cfg *config.ServerConfig) *Router {
	return &Router{handler: handler, cfg: cfg}
}

// Setup wires all routes and middleware and returns the root handler.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: rt.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(requestLogging)

	r.Route("/api/v1", func(r chi.Router) {
		// Health endpoints get a permissive limit so monitoring can poll.
		r.With(httprate.LimitByIP(1000, rt.cfg.RateLimitWindow)).
			Get("/health", rt.handler.Health)
		r.With(httprate.LimitByIP(1000, rt.cfg.RateLimitWindow)).
			Get("/status", rt.handler.Status)

		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(rt.cfg.RateLimitReqs, rt.cfg.RateLimitWindow))
			r.Use(prometheusMetrics)

			r.Get("/recommendations/{userID}", rt.handler.Recommendations)
			r.Get("/users/{userID}", rt.handler.User)
			r.Get("/titles/{titleID}", rt.handler.Title)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
