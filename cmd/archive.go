package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/galerly/galerly/config"
	"github.com/galerly/galerly/database"
	"github.com/galerly/galerly/database/models"
	"github.com/galerly/galerly/database/repo/assets"
	"github.com/galerly/galerly/database/repo/galleries"
	"github.com/galerly/galerly/internal/archive"
	"github.com/galerly/galerly/storage"
	"github.com/galerly/galerly/utils/generator"
)

// archiveCmd rebuilds gallery download archives from the command line.
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Gallery archive maintenance",
}

var archiveRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild gallery download archives",
	Long: `Rebuild the ZIP download archive for one gallery, or for every
gallery in the database.

Examples:
  # Rebuild the archive of gallery 3
  galerly archive rebuild --gallery 3

  # Rebuild every gallery archive
  galerly archive rebuild --all`,
	Run: func(cmd *cobra.Command, args []string) {
		galleryID, _ := cmd.Flags().GetUint("gallery")
		all, _ := cmd.Flags().GetBool("all")

		if err := runArchiveRebuild(galleryID, all); err != nil {
			log.Fatalf("Archive rebuild failed: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.AddCommand(archiveRebuildCmd)

	archiveRebuildCmd.Flags().Uint("gallery", 0, "Gallery ID to rebuild")
	archiveRebuildCmd.Flags().Bool("all", false, "Rebuild archives for all galleries")
}

func runArchiveRebuild(galleryID uint, all bool) error {
	if galleryID == 0 && !all {
		return fmt.Errorf("either --gallery or --all is required")
	}

	config.InitConfig()
	cfg := config.Get()

	dbFactory, err := database.NewFactory(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() { _ = dbFactory.Close() }()

	storageFactory, err := storage.NewFactory(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	db := dbFactory.GetProvider().DB()
	builder := archive.NewBuilder(
		assets.NewRepository(db),
		galleries.NewArchiveRepository(db),
		storageFactory.GetDefault(),
		generator.NewPathGenerator(),
	)

	var ids []uint
	if all {
		if err := db.Model(&models.Gallery{}).Order("id").Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("failed to list galleries: %w", err)
		}
	} else {
		ids = []uint{galleryID}
	}

	ctx := context.Background()
	var failures int
	for _, id := range ids {
		report, err := builder.Build(ctx, id)
		if err != nil {
			log.Printf("Gallery %d: rebuild failed: %v", id, err)
			failures++
			continue
		}
		if report.EntryCount == 0 {
			log.Printf("Gallery %d: empty, archive removed", id)
			continue
		}
		log.Printf("Gallery %d: %d entries, %d bytes, %d skipped",
			id, report.EntryCount, report.ByteSize, len(report.Skipped))
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d rebuilds failed", failures, len(ids))
	}

	log.Printf("Rebuilt %d gallery archives", len(ids))
	return nil
}
