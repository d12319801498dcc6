package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/ETERNA-earkiv/ETERNA/internal/config"
	"github.com/ETERNA-earkiv/ETERNA/internal/domain"
	"github.com/ETERNA-earkiv/ETERNA/internal/logging"
	"github.com/ETERNA-earkiv/ETERNA/internal/repository/objectstore"
	"github.com/ETERNA-earkiv/ETERNA/internal/service"
)

var (
	cfgFile        string
	cfg            *config.Config
	resolver       *objectstore.Resolver
	storageService *service.ScatteredStorageService
)

var rootCmd = &cobra.Command{
	Use:   "eterna-storage",
	Short: "Manage a scattered archival storage tree",
	Long: "eterna-storage manages containers, directories and binaries in a filesystem " +
		"storage tree whose configured containers are scattered into fan-out directories.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if resolver != nil {
			if err := resolver.Close(); err != nil {
				log.Warnf("closing reference resolver: %v", err)
			}
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("base-path", "", "storage base path")
}

func initConfig() error {
	var err error
	cfg, err = config.LoadConfig(cfgFile, rootCmd)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logging.InitLogger(cfg)

	registry, err := cfg.Registry()
	if err != nil {
		return fmt.Errorf("invalid container configuration: %w", err)
	}

	fsys := afero.NewOsFs()
	resolver = objectstore.NewResolver(fsys, objectstore.WithS3Endpoint(cfg.S3Endpoint, cfg.S3PathStyle))

	opts := []service.Option{
		service.WithFs(fsys),
		service.WithRegistry(registry),
		service.WithResolver(resolver),
		service.WithManifestName(cfg.ManifestFile),
	}
	if trashRoot := cfg.TrashRoot(); trashRoot == "" {
		opts = append(opts, service.WithoutTrash())
	} else {
		opts = append(opts, service.WithTrashDir(trashRoot))
	}
	if !cfg.History {
		opts = append(opts, service.WithoutHistory())
	}

	storageService, err = service.New(cfg.BasePath, opts...)
	if err != nil {
		return fmt.Errorf("opening storage at %s: %w", cfg.BasePath, err)
	}
	return nil
}

// storagePath parses a slash separated storage path argument.
func storagePath(arg string) (domain.StoragePath, error) {
	sp, err := domain.ParseStoragePath(arg)
	if err != nil {
		return domain.StoragePath{}, fmt.Errorf("invalid storage path %q: %w", arg, err)
	}
	return sp, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
