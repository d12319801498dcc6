package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ETERNA-earkiv/ETERNA/internal/domain"
	"github.com/ETERNA-earkiv/ETERNA/internal/service"
)

var quiet bool

var putCmd = &cobra.Command{
	Use:   "put [file-path] [storage-path]",
	Short: "Store a local file as a binary",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		filePath := args[0]
		sp, err := storagePath(args[1])
		if err != nil {
			return err
		}

		file, err := os.Open(filePath)
		if err != nil {
			return fmt.Errorf("opening file: %w", err)
		}
		defer file.Close()

		var reader io.Reader = file
		if !quiet {
			if stat, err := file.Stat(); err == nil {
				bar := progressbar.DefaultBytes(stat.Size(), "storing")
				pbReader := progressbar.NewReader(file, bar)
				reader = &pbReader
			}
		}

		ctx := context.Background()
		payload := domain.ReaderPayload{R: reader}
		random, _ := cmd.Flags().GetBool("random")
		var b *domain.Binary
		if random {
			b, err = storageService.CreateRandomBinary(ctx, sp, payload, false)
		} else {
			b, err = storageService.CreateBinary(ctx, sp, payload, false)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Binary stored: %s -> %s (%d bytes)\n", filePath, b.Path, b.SizeInBytes)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get [storage-path] [output-path]",
	Short: "Write the content of a binary to a local file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := storagePath(args[0])
		if err != nil {
			return err
		}
		outputPath := args[1]

		b, err := storageService.GetBinary(sp)
		if err != nil {
			return err
		}
		rc, err := b.Content.Open(context.Background())
		if err != nil {
			return fmt.Errorf("opening %s: %w", sp, err)
		}
		defer rc.Close()

		var reader io.Reader = rc
		if !quiet && b.SizeInBytes > 0 {
			bar := progressbar.DefaultBytes(b.SizeInBytes, "retrieving")
			pbReader := progressbar.NewReader(rc, bar)
			reader = &pbReader
		}

		if stat, err := os.Stat(outputPath); err == nil && stat.IsDir() {
			outputPath = filepath.Join(outputPath, sp.Name())
		}
		if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
		outFile, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer outFile.Close()

		if _, err := io.Copy(outFile, reader); err != nil {
			return fmt.Errorf("writing file: %w", err)
		}
		fmt.Printf("Binary retrieved: %s -> %s\n", sp, outputPath)
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm [storage-path]",
	Short: "Move a resource and its history to the trash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := storagePath(args[0])
		if err != nil {
			return err
		}
		if err := storageService.DeleteResource(sp); err != nil {
			return err
		}
		fmt.Printf("Deleted: %s\n", sp)
		return nil
	},
}

var statCmd = &cobra.Command{
	Use:   "stat [storage-path]",
	Short: "Describe the entity at a storage path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := storagePath(args[0])
		if err != nil {
			return err
		}
		kind, err := storageService.GetEntity(sp)
		if err != nil {
			return err
		}
		fmt.Printf("path:     %s\n", sp)
		fmt.Printf("kind:     %s\n", kind)
		fmt.Printf("physical: %s\n", storageService.Resolve(sp))
		if kind != domain.KindBinary {
			return nil
		}
		b, err := storageService.GetBinary(sp)
		if err != nil {
			return err
		}
		fmt.Printf("size:     %d\n", b.SizeInBytes)
		fmt.Printf("reference: %t\n", b.IsReference)
		return nil
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls [storage-path]",
	Short: "List the resources under a container, directory or manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := storagePath(args[0])
		if err != nil {
			return err
		}
		recursive, _ := cmd.Flags().GetBool("recursive")

		var it service.Resources
		kind, err := storageService.GetEntity(sp)
		if err != nil {
			return err
		}
		switch kind {
		case domain.KindContainer:
			it, err = storageService.ListResourcesUnderContainer(sp, recursive)
		case domain.KindDirectory:
			it, err = storageService.ListResourcesUnderDirectory(sp, recursive)
		default:
			it, err = storageService.ListResourcesUnderFile(sp)
		}
		if err != nil {
			return err
		}
		defer it.Close()

		for r := range it.All() {
			if r == nil {
				continue
			}
			if r.IsDirectory() {
				fmt.Printf("%s/\n", r.StoragePath())
				continue
			}
			fmt.Println(r.StoragePath())
		}
		return nil
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir [storage-path]",
	Short: "Create a directory, or a randomly named one below the path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := storagePath(args[0])
		if err != nil {
			return err
		}
		random, _ := cmd.Flags().GetBool("random")
		var d *domain.Directory
		if random {
			d, err = storageService.CreateRandomDirectory(sp)
		} else {
			d, err = storageService.CreateDirectory(sp)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Directory created: %s\n", d.Path)
		return nil
	},
}

var cpCmd = &cobra.Command{
	Use:   "cp [source] [target]",
	Short: "Copy a resource within the storage",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to, err := sourceAndTarget(args)
		if err != nil {
			return err
		}
		if err := storageService.Copy(context.Background(), storageService, from, to); err != nil {
			return err
		}
		fmt.Printf("Copied: %s -> %s\n", from, to)
		return nil
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv [source] [target]",
	Short: "Move a resource within the storage",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to, err := sourceAndTarget(args)
		if err != nil {
			return err
		}
		if err := storageService.Move(context.Background(), storageService, from, to); err != nil {
			return err
		}
		fmt.Printf("Moved: %s -> %s\n", from, to)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export [storage-path] [output-path]",
	Short: "Copy the files of a resource out of the storage",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := storagePath(args[0])
		if err != nil {
			return err
		}
		resource, _ := cmd.Flags().GetString("resource")
		if err := storageService.Export(sp, resource, args[1]); err != nil {
			return err
		}
		fmt.Printf("Exported: %s -> %s\n", sp, args[1])
		return nil
	},
}

func sourceAndTarget(args []string) (domain.StoragePath, domain.StoragePath, error) {
	from, err := storagePath(args[0])
	if err != nil {
		return domain.StoragePath{}, domain.StoragePath{}, err
	}
	to, err := storagePath(args[1])
	if err != nil {
		return domain.StoragePath{}, domain.StoragePath{}, err
	}
	return from, to, nil
}

func init() {
	putCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress bars")
	putCmd.Flags().Bool("random", false, "Store under a fresh id below the given path")
	getCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress bars")
	lsCmd.Flags().BoolP("recursive", "r", false, "List everything below the path")
	mkdirCmd.Flags().Bool("random", false, "Create a directory with a fresh id below the given path")
	exportCmd.Flags().String("resource", "", "Relative path inside the resource to export")
	rootCmd.AddCommand(putCmd, getCmd, rmCmd, statCmd, lsCmd, mkdirCmd, cpCmd, mvCmd, exportCmd)
}
