package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Manage binary versions",
}

var versionCreateCmd = &cobra.Command{
	Use:   "create [storage-path]",
	Short: "Snapshot the current content of a binary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := storagePath(args[0])
		if err != nil {
			return err
		}
		props, _ := cmd.Flags().GetStringToString("property")
		v, err := storageService.CreateBinaryVersion(sp, props)
		if err != nil {
			return err
		}
		if v == nil {
			fmt.Println("History is disabled, no version created")
			return nil
		}
		fmt.Printf("Version created: %s %s\n", sp, v.ID)
		return nil
	},
}

var versionListCmd = &cobra.Command{
	Use:   "list [storage-path]",
	Short: "List the versions of a binary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := storagePath(args[0])
		if err != nil {
			return err
		}
		it, err := storageService.ListBinaryVersions(sp)
		if err != nil {
			return err
		}
		defer it.Close()
		for v := range it.All() {
			if v == nil {
				continue
			}
			props := make([]string, 0, len(v.Properties))
			for k, val := range v.Properties {
				props = append(props, k+"="+val)
			}
			var size int64
			if v.Binary != nil {
				size = v.Binary.SizeInBytes
			}
			fmt.Printf("%s\t%s\t%d\t%s\n", v.ID, v.CreatedDate.Format(time.RFC3339), size, strings.Join(props, ","))
		}
		return nil
	},
}

var versionRevertCmd = &cobra.Command{
	Use:   "revert [storage-path] [version-id]",
	Short: "Restore a binary to one of its versions",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := storagePath(args[0])
		if err != nil {
			return err
		}
		if err := storageService.RevertBinaryVersion(sp, args[1]); err != nil {
			return err
		}
		fmt.Printf("Reverted: %s to %s\n", sp, args[1])
		return nil
	},
}

var versionDeleteCmd = &cobra.Command{
	Use:   "delete [storage-path] [version-id]",
	Short: "Move a version to the trash",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := storagePath(args[0])
		if err != nil {
			return err
		}
		if err := storageService.DeleteBinaryVersion(sp, args[1]); err != nil {
			return err
		}
		fmt.Printf("Version deleted: %s %s\n", sp, args[1])
		return nil
	},
}

func init() {
	versionCreateCmd.Flags().StringToString("property", nil, "Version property as key=value (repeatable)")
	versionCmd.AddCommand(versionCreateCmd, versionListCmd, versionRevertCmd, versionDeleteCmd)
	rootCmd.AddCommand(versionCmd)
}
