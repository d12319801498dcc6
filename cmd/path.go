package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pathCmd = &cobra.Command{
	Use:   "path",
	Short: "Translate between storage paths and physical paths",
}

var pathResolveCmd = &cobra.Command{
	Use:   "resolve [storage-path]",
	Short: "Print the physical location of a storage path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := storagePath(args[0])
		if err != nil {
			return err
		}
		fmt.Println(storageService.Resolve(sp))
		return nil
	},
}

var pathReverseCmd = &cobra.Command{
	Use:   "reverse [physical-path]",
	Short: "Print the storage path of a physical location",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := storageService.Reverse(args[0])
		if err != nil {
			return err
		}
		fmt.Println(sp)
		return nil
	},
}

func init() {
	pathCmd.AddCommand(pathResolveCmd, pathReverseCmd)
	rootCmd.AddCommand(pathCmd)
}
