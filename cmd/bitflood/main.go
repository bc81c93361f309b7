package bitflood

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/bitflood/bitflood/internal/config"
	"github.com/bitflood/bitflood/internal/logger"
	"github.com/bitflood/bitflood/internal/store"
	"github.com/bitflood/bitflood/pkg/engine"
	"github.com/bitflood/bitflood/pkg/fetch"
	"github.com/bitflood/bitflood/pkg/model"
	"github.com/bitflood/bitflood/pkg/schedule"
	"github.com/bitflood/bitflood/pkg/server"
	"github.com/bitflood/bitflood/pkg/version"
	"github.com/bitflood/bitflood/pkg/watcher"
	"github.com/bitflood/bitflood/pkg/web"
)

func Start(ctx context.Context) error {
	if umaskStr := os.Getenv("UMASK"); umaskStr != "" {
		umask, err := strconv.ParseInt(umaskStr, 8, 32)
		if err != nil {
			return fmt.Errorf("invalid UMASK value: %s", umaskStr)
		}
		syscall.Umask(int(umask))
	}

	cfg := config.Get()
	var wg sync.WaitGroup
	errChan := make(chan error)

	_log := logger.Default()

	_log.Info().Msgf("Version: %s", version.GetInfo().String())
	_log.Debug().Msgf("Config Loaded: %s", cfg.JsonFile())
	_log.Info().Msgf("Default Log Level: %s", cfg.LogLevel)

	st := store.New(cfg.DBFile(), logger.New("store"))
	if err := st.Init(); err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}

	eng, err := engine.New(st)
	if err != nil {
		return fmt.Errorf("failed to start session engine: %w", err)
	}
	defer eng.Shutdown(5 * time.Second)
	eng.Restore(ctx)

	fetcher, err := fetch.New(cfg.SpoolDir(), cfg.Proxy)
	if err != nil {
		return fmt.Errorf("failed to set up torrent fetcher: %w", err)
	}

	table := model.NewTable()
	srv := server.New()
	srv.Mount("/", web.New(eng, table, fetcher).Routes())

	safeGo := func(f func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					stack := debug.Stack()
					_log.Error().
						Interface("panic", r).
						Str("stack", string(stack)).
						Msg("Recovered from panic in goroutine")

					errChan <- fmt.Errorf("panic: %v", r)
				}
			}()

			if err := f(); err != nil {
				errChan <- err
			}
		}()
	}

	safeGo(func() error {
		return srv.Start(ctx)
	})

	safeGo(func() error {
		return eng.Run(ctx)
	})

	safeGo(func() error {
		engine.Drain(ctx, eng.Alerts(), table, _log)
		return nil
	})

	safeGo(func() error {
		return schedule.NewApplier(eng).Start(ctx)
	})

	if cfg.WatchDir != "" {
		safeGo(func() error {
			return watcher.New(cfg.WatchDir, eng).Start(ctx)
		})
	}

	go func() {
		wg.Wait()
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
