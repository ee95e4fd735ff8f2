// main.go — sharectl, операторская утилита Share Module:
// миграции БД, разовая очистка сессий, выдача токенов, загрузка объектов.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/urfave/cli/v3"

	"github.com/bigkaa/goartstore/share-module/internal/config"
	"github.com/bigkaa/goartstore/share-module/internal/database"
	"github.com/bigkaa/goartstore/share-module/internal/objectstore"
	"github.com/bigkaa/goartstore/share-module/internal/repository"
	"github.com/bigkaa/goartstore/share-module/internal/service"
	"github.com/bigkaa/goartstore/share-module/internal/tokenstore"
)

func main() {
	cmd := &cli.Command{
		Name:    "sharectl",
		Usage:   "управление Share Module",
		Version: config.Version,
		Commands: []*cli.Command{
			migrateCommand(),
			sweepCommand(),
			tokenCommand(),
			objectCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "sharectl: %v\n", err)
		os.Exit(1)
	}
}

// setup загружает конфигурацию и логгер (общие для всех команд).
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("конфигурация: %w", err)
	}
	return cfg, config.SetupLogger(cfg), nil
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "миграции схемы БД",
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "применить все миграции",
				Action: func(_ context.Context, _ *cli.Command) error {
					cfg, logger, err := setup()
					if err != nil {
						return err
					}
					return database.Migrate(cfg, logger)
				},
			},
			{
				Name:  "down",
				Usage: "откатить миграции",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "steps", Value: 1, Usage: "количество откатываемых миграций"},
				},
				Action: func(_ context.Context, c *cli.Command) error {
					steps := c.Int("steps")
					if steps <= 0 {
						return errors.New("--steps должен быть > 0")
					}
					cfg, logger, err := setup()
					if err != nil {
						return err
					}
					return database.MigrateDown(cfg, steps, logger)
				},
			},
		},
	}
}

func sweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "деактивировать просроченные сессии и удалить старые неактивные",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "retention", Usage: "переопределить SM_RETENTION (0 — не удалять)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			retention := cfg.Retention
			if c.IsSet("retention") {
				retention = c.Duration("retention")
			}

			pool, err := database.Connect(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			repos := repository.NewRepos(pool)
			sweeper := service.NewExpirySweeper(repos.Sessions, nil, clockwork.NewRealClock(), 0, retention, logger)
			result := sweeper.RunOnce(ctx)

			fmt.Printf("деактивировано: %d, удалено: %d, ошибок: %d\n",
				result.Deactivated, result.Purged, result.Errors)
			if result.Errors > 0 {
				return errors.New("очистка завершилась с ошибками")
			}
			return nil
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "непрозрачные API-токены (требуется SM_TOKEN_STORE=redis)",
		Commands: []*cli.Command{
			{
				Name:  "issue",
				Usage: "выдать токен пользователю",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Required: true, Usage: "идентификатор пользователя"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					store, err := openTokenStore(ctx)
					if err != nil {
						return err
					}
					defer store.Close()

					token, err := store.Issue(ctx, c.String("user"))
					if err != nil {
						return err
					}
					fmt.Println(token)
					return nil
				},
			},
			{
				Name:      "revoke",
				Usage:     "отозвать токен",
				ArgsUsage: "<token>",
				Action: func(ctx context.Context, c *cli.Command) error {
					token := c.Args().First()
					if token == "" {
						return errors.New("не указан токен")
					}
					store, err := openTokenStore(ctx)
					if err != nil {
						return err
					}
					defer store.Close()
					return store.Revoke(ctx, token)
				},
			},
		},
	}
}

// openTokenStore открывает общее хранилище токенов. In-memory хранилище
// живёт только внутри процесса сервиса, поэтому здесь не поддерживается.
func openTokenStore(ctx context.Context) (tokenstore.Store, error) {
	cfg, _, err := setup()
	if err != nil {
		return nil, err
	}
	if cfg.TokenStore != config.TokenStoreRedis {
		return nil, fmt.Errorf("SM_TOKEN_STORE=%s: выдача токенов из CLI требует redis", cfg.TokenStore)
	}
	return tokenstore.FromConfig(ctx, cfg)
}

func objectCommand() *cli.Command {
	return &cli.Command{
		Name:  "object",
		Usage: "объекты локального хранилища (SM_STORAGE_BACKEND=dir)",
		Commands: []*cli.Command{
			{
				Name:  "put",
				Usage: "загрузить файл под ключом",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "key", Required: true, Usage: "storage_key объекта"},
					&cli.StringFlag{Name: "file", Required: true, Usage: "путь к локальному файлу"},
				},
				Action: func(_ context.Context, c *cli.Command) error {
					cfg, _, err := setup()
					if err != nil {
						return err
					}
					if cfg.StorageBackend != config.StorageBackendDir {
						return fmt.Errorf("SM_STORAGE_BACKEND=%s: команда работает только с dir", cfg.StorageBackend)
					}

					store, err := objectstore.NewDirStore(cfg.StorageDir)
					if err != nil {
						return err
					}
					f, err := os.Open(c.String("file"))
					if err != nil {
						return err
					}
					defer f.Close()

					n, err := store.Put(c.String("key"), f)
					if err != nil {
						return err
					}
					fmt.Printf("записано %d байт\n", n)
					return nil
				},
			},
		},
	}
}
