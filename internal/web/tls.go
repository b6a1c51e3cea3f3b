package web

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/sync/errgroup"
)

const defaultCertCache = "cert-cache"

// newCertManager issues certificates for domains over ACME, caching them in cacheDir.
func newCertManager(domains []string, cacheDir string) (*autocert.Manager, error) {
	if len(domains) == 0 {
		return nil, errors.New("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = defaultCertCache
	}
	return &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}, nil
}

// StartWithAutoTLS serves the API over HTTPS with ACME certificates. A second
// listener on :80 answers HTTP-01 challenges and redirects everything else.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	manager, err := newCertManager(domains, cacheDir)
	if err != nil {
		return err
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	challenge := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	api := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := challenge.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("acme listener shutdown", zap.Error(err))
		}
		return api.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := challenge.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "acme listener")
		}
		return nil
	})
	g.Go(func() error {
		s.logger.Info("https api listening", zap.String("addr", s.addr), zap.Strings("domains", domains))
		if err := api.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "https server")
		}
		return nil
	})
	return g.Wait()
}
