/*
Copyright © 2025 Odai <odai@gamenight.dev>
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

const timeout time.Duration = 10 * time.Second

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func serveHomePage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_, _ = io.WriteString(w, newPage("gamenight", "gamenight v"+releaseVersion))
	}
}

func serveHealthCheck(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, _ = w.Write([]byte("Ok\n"))
	}
}

func serveVersion(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("gamenight v" + releaseVersion + "\n"))
		if err != nil {
			return
		}

		log.Debug().
			Str("size", humanReadableSize(int64(written))).
			Str("ip", realIP(r)).
			Dur("elapsed", time.Since(startTime).Round(time.Microsecond)).
			Msg("SERVE: Version page")
	}
}

func serveRobots(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		data := "User-agent: *\nDisallow: /\n"

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, _ = w.Write([]byte(data))
	}
}

// serveRoomQR renders a PNG QR code for a room's join URL, so a host can
// hand the session to phones in the same room.
func serveRoomQR(srv *Server) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := ps.ByName("code")
		if _, ok := srv.store.Get(code); !ok {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + "/?join=" + code

		const qrSize = 320
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

// serveUser is the stub identity endpoint consumed by the client shell.
// There is no authentication; everyone is a guest.
func serveUser(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		securityHeaders(cfg, w)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":       "guest",
			"username": "guest",
			"guest":    true,
		})
	}
}

// serveCategories lists the word-pack categories available for room settings.
func serveCategories(cfg *Config, srv *Server) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		securityHeaders(cfg, w)

		_ = json.NewEncoder(w).Encode(map[string]any{"categories": srv.packs.Categories()})
	}
}

type leaderboardEntry struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
	Room   string `json:"room"`
}

// serveLeaderboard reports the top scorers across live rooms. Scores are
// ephemeral and die with their rooms.
func serveLeaderboard(cfg *Config, srv *Server) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		entries := []leaderboardEntry{}
		for _, room := range srv.store.Rooms() {
			room.lock()
			for _, p := range room.Players {
				if p.Points > 0 {
					entries = append(entries, leaderboardEntry{
						Name:   p.Name,
						Points: p.Points,
						Room:   room.Code,
					})
				}
			}
			room.unlock()
		}

		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Points > entries[j].Points
		})
		if len(entries) > 20 {
			entries = entries[:20]
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		securityHeaders(cfg, w)

		_ = json.NewEncoder(w).Encode(map[string]any{"leaders": entries})
	}
}

func ServePage(ctx context.Context, cfg *Config) error {
	log.Info().Str("version", releaseVersion).Msg("START: gamenight")

	srv, err := NewServer(cfg)
	if err != nil {
		return err
	}

	mux := httprouter.New()

	httpSrv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           mux,
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
	}

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		_, _ = io.WriteString(w, newPage("Server Error", "An error has occurred. Please try again."))
	}

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	mux.GET(cfg.prefix+"/", serveHomePage(cfg))
	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg))
	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg))
	mux.GET(cfg.prefix+"/version", serveVersion(cfg))
	mux.GET(cfg.prefix+"/ws", srv.serveWS())
	mux.GET(cfg.prefix+"/room/:code/qr", serveRoomQR(srv))
	mux.GET(cfg.prefix+"/api/user", serveUser(cfg))
	mux.GET(cfg.prefix+"/api/categories", serveCategories(cfg, srv))
	mux.GET(cfg.prefix+"/api/leaderboard", serveLeaderboard(cfg, srv))

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	go srv.reaper(ctx)

	go func() {
		log.Info().Str("addr", cfg.scheme()+"://"+httpSrv.Addr+cfg.prefix+"/").Msg("SERVE: Listening")

		var err error
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = httpSrv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("SERVE: Listener failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	return nil
}
