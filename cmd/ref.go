package main

import (
	"context"
	"fmt"
	"path"

	"github.com/spf13/cobra"

	"github.com/ETERNA-earkiv/ETERNA/internal/domain"
	"github.com/ETERNA-earkiv/ETERNA/internal/repository/objectstore"
)

var refCmd = &cobra.Command{
	Use:   "ref",
	Short: "Manage reference binaries recorded in manifests",
}

var refAddCmd = &cobra.Command{
	Use:   "add [manifest-path] [location]",
	Short: "Record an external object (file://, s3://, gs://) in a manifest",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeReference(cmd, args, false)
	},
}

var refUpdateCmd = &cobra.Command{
	Use:   "update [manifest-path] [location]",
	Short: "Replace or add the record of an external object in a manifest",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeReference(cmd, args, true)
	},
}

var refListCmd = &cobra.Command{
	Use:   "list [manifest-path]",
	Short: "List the references of a manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := storagePath(args[0])
		if err != nil {
			return err
		}
		it, err := storageService.ListResourcesUnderFile(sp)
		if err != nil {
			return err
		}
		defer it.Close()
		for r := range it.All() {
			b, ok := r.(*domain.Binary)
			if !ok {
				continue
			}
			location := ""
			if ref, ok := b.Content.(domain.ReferencePayload); ok {
				location = ref.File.Location
			}
			fmt.Printf("%s\t%d\t%s\n", b.Path, b.SizeInBytes, location)
		}
		return nil
	},
}

var refManifestsCmd = &cobra.Command{
	Use:   "manifests [container]",
	Short: "List the manifests of a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := storagePath(args[0])
		if err != nil {
			return err
		}
		manifests, err := storageService.ShallowFiles(sp)
		if err != nil {
			return err
		}
		for _, m := range manifests {
			fmt.Println(m)
		}
		return nil
	},
}

func writeReference(cmd *cobra.Command, args []string, update bool) error {
	sp, err := storagePath(args[0])
	if err != nil {
		return err
	}
	location := args[1]
	loc, err := objectstore.ParseLocation(location)
	if err != nil {
		return err
	}

	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = path.Base(loc.Key)
	}
	size, _ := cmd.Flags().GetInt64("size")
	ctx := context.Background()
	if size < 0 {
		if size, err = resolver.Size(ctx, location); err != nil {
			return fmt.Errorf("cannot determine the size of %s: %w", location, err)
		}
	}
	checksum, _ := cmd.Flags().GetString("checksum")
	algorithm, _ := cmd.Flags().GetString("checksum-algorithm")

	sf := domain.ShallowFile{
		Name:     name,
		Location: loc.String(),
		Size:     size,
		Checksum: checksum,
	}
	if checksum != "" {
		sf.ChecksumAlgorithm = algorithm
	}
	payload := domain.ManifestPayload{Files: []domain.ShallowFile{sf}}

	if update {
		b, err := storageService.UpdateBinaryContent(ctx, sp, payload, true, true)
		if err != nil {
			return err
		}
		fmt.Printf("Reference updated: %s -> %s\n", b.Path, sf.Location)
		return nil
	}
	if _, err := storageService.CreateBinary(ctx, sp, payload, true); err != nil {
		return err
	}
	fmt.Printf("Reference added: %s in %s -> %s\n", name, sp, sf.Location)
	return nil
}

func init() {
	for _, c := range []*cobra.Command{refAddCmd, refUpdateCmd} {
		c.Flags().String("name", "", "Name of the reference (default: last element of the location)")
		c.Flags().Int64("size", -1, "Size in bytes (default: read from the location)")
		c.Flags().String("checksum", "", "Checksum of the content")
		c.Flags().String("checksum-algorithm", "SHA-256", "Algorithm of --checksum")
	}
	refCmd.AddCommand(refAddCmd, refUpdateCmd, refListCmd, refManifestsCmd)
	rootCmd.AddCommand(refCmd)
}
