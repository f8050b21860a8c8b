package main

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quilldns/quill/internal/dns/common/log"
	"github.com/quilldns/quill/internal/dns/gateways/client"
	"github.com/quilldns/quill/internal/dns/gateways/transport"
	"github.com/quilldns/quill/internal/dns/gateways/web"
	"github.com/quilldns/quill/internal/dns/infra/config"
	"github.com/quilldns/quill/internal/dns/repos/authority"
	"github.com/quilldns/quill/internal/dns/repos/blocklist"
	"github.com/quilldns/quill/internal/dns/repos/cache"
	"github.com/quilldns/quill/internal/dns/repos/zonefile"
	"github.com/quilldns/quill/internal/dns/service/resolver"

	clockpkg "github.com/quilldns/quill/internal/dns/common/clock"
)

const (
	version = "0.1.0"

	defaultZoneTTL         = 300 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// newRootCommand builds the quill-dnsd command. Flags override the
// QUILL_* environment configuration.
func newRootCommand() *cobra.Command {
	var (
		flagPort          int
		flagAPIPort       int
		flagForward       string
		flagAuthorityOnly bool
		flagZoneDir       string
		flagZoneDB        string
		flagBlocklist     string
		flagLogLevel      string
	)

	cmd := &cobra.Command{
		Use:     "quill-dnsd",
		Short:   "quill-dnsd is a recursive, forwarding, and authoritative DNS server",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = flagPort
			}
			if cmd.Flags().Changed("api-port") {
				cfg.APIPort = flagAPIPort
			}
			if cmd.Flags().Changed("forward") {
				cfg.Forward = flagForward
			}
			if cmd.Flags().Changed("authority-only") {
				cfg.AuthorityOnly = flagAuthorityOnly
			}
			if cmd.Flags().Changed("zone-dir") {
				cfg.ZoneDir = flagZoneDir
			}
			if cmd.Flags().Changed("zone-db") {
				cfg.ZoneDB = flagZoneDB
			}
			if cmd.Flags().Changed("blocklist") {
				cfg.Blocklist = flagBlocklist
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = flagLogLevel
			}
			return run(cfg)
		},
	}

	cmd.Flags().IntVarP(&flagPort, "port", "p", 2053, "UDP port to serve DNS on")
	cmd.Flags().IntVar(&flagAPIPort, "api-port", 5380, "admin API port (0 disables)")
	cmd.Flags().StringVarP(&flagForward, "forward", "f", "", "forward all queries to this upstream (ip[:port])")
	cmd.Flags().BoolVarP(&flagAuthorityOnly, "authority-only", "a", false, "serve owned zones only, no outbound queries")
	cmd.Flags().StringVar(&flagZoneDir, "zone-dir", "", "directory of zone files to load at boot")
	cmd.Flags().StringVar(&flagZoneDB, "zone-db", "", "bbolt database for persisted zones")
	cmd.Flags().StringVar(&flagBlocklist, "blocklist", "", "hosts-format or plain blocklist file")
	cmd.Flags().StringVar(&flagLogLevel, "log-level", "info", "log verbosity")

	return cmd
}

func run(cfg *config.AppConfig) error {
	if err := log.Configure(cfg.Env, cfg.LogLevel); err != nil {
		return fmt.Errorf("logging configuration error: %w", err)
	}
	logger := log.GetLogger()

	mode := resolver.ModeRecursive
	var forward netip.AddrPort
	switch {
	case cfg.AuthorityOnly:
		mode = resolver.ModeAuthorityOnly
	case cfg.Forward != "":
		addr, err := parseForward(cfg.Forward)
		if err != nil {
			return err
		}
		mode = resolver.ModeForwarding
		forward = addr
	}

	log.Info(map[string]any{
		"version":    version,
		"mode":       mode.String(),
		"port":       cfg.Port,
		"api_port":   cfg.APIPort,
		"cache_size": cfg.CacheSize,
	}, "Starting quill-dnsd")

	// Authority store, optionally persisted and pre-seeded.
	var persist *authority.BoltStore
	if cfg.ZoneDB != "" {
		var err error
		persist, err = authority.OpenBolt(cfg.ZoneDB)
		if err != nil {
			return err
		}
		defer persist.Close()
	}
	auth := authority.NewStore(persistOrNil(persist))
	if persist != nil {
		if err := persist.LoadAll(auth); err != nil {
			return fmt.Errorf("load zone db: %w", err)
		}
	}
	if cfg.ZoneDir != "" {
		docs, err := zonefile.LoadDirectory(cfg.ZoneDir, defaultZoneTTL)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if err := auth.AddZone(doc.Apex, doc.MName, doc.RName, doc.Refresh, doc.Retry, doc.Expire, doc.Minimum); err != nil {
				return err
			}
			for _, rec := range doc.Records {
				if err := auth.UpsertRecord(doc.Apex, rec); err != nil {
					return err
				}
			}
		}
		log.Info(map[string]any{
			"zone_dir": cfg.ZoneDir,
			"zones":    len(docs),
		}, "Zone directory loaded")
	}

	recordCache, err := cache.New(cfg.CacheSize, clockpkg.RealClock{})
	if err != nil {
		return fmt.Errorf("create cache: %w", err)
	}

	var blocked *blocklist.Blocklist
	if cfg.Blocklist != "" {
		names, err := blocklist.LoadFile(cfg.Blocklist)
		if err != nil {
			return err
		}
		blocked = blocklist.New(names)
		log.Info(map[string]any{
			"path":  cfg.Blocklist,
			"names": blocked.Len(),
		}, "Blocklist loaded")
	}

	resolverService := resolver.New(resolver.Options{
		Mode:      mode,
		Forward:   forward,
		Authority: auth,
		Cache:     recordCache,
		Client:    client.New(client.Options{Logger: logger}),
		Blocklist: blocked,
		Logger:    logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	udp := transport.NewUDPTransport(fmt.Sprintf(":%d", cfg.Port), logger)
	if err := udp.Start(ctx, resolverService); err != nil {
		return err
	}

	var admin *web.Server
	if cfg.APIPort > 0 {
		admin = web.New(fmt.Sprintf(":%d", cfg.APIPort), auth, recordCache, logger)
		admin.Start()
	}

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer shutdownCancel()

	if err := udp.Stop(); err != nil {
		log.Warn(map[string]any{"error": err.Error()}, "Error stopping DNS transport")
	}
	if admin != nil {
		if err := admin.Stop(shutdownCtx); err != nil {
			log.Warn(map[string]any{"error": err.Error()}, "Error stopping admin API")
		}
	}

	log.Info(nil, "quill-dnsd stopped")
	return nil
}

// parseForward accepts "addr" or "addr:port", defaulting the port to 53.
func parseForward(s string) (netip.AddrPort, error) {
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap, nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("invalid forward server %q: %w", s, err)
	}
	return netip.AddrPortFrom(addr, 53), nil
}

// persistOrNil avoids handing the store a typed nil interface.
func persistOrNil(b *authority.BoltStore) authority.Persister {
	if b == nil {
		return nil
	}
	return b
}
