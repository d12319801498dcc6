package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var containerCmd = &cobra.Command{
	Use:   "container",
	Short: "Manage containers",
}

var containerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List containers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		it, err := storageService.ListContainers()
		if err != nil {
			return err
		}
		defer it.Close()
		for c := range it.All() {
			if c == nil {
				continue
			}
			fmt.Println(c.Path)
		}
		return nil
	},
}

var containerCreateCmd = &cobra.Command{
	Use:   "create [container]",
	Short: "Create a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := storagePath(args[0])
		if err != nil {
			return err
		}
		c, err := storageService.CreateContainer(sp)
		if err != nil {
			return err
		}
		fmt.Printf("Container created: %s\n", c.Path)
		return nil
	},
}

var containerDeleteCmd = &cobra.Command{
	Use:   "delete [container]",
	Short: "Move a container and its history to the trash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := storagePath(args[0])
		if err != nil {
			return err
		}
		if err := storageService.DeleteContainer(sp); err != nil {
			return err
		}
		fmt.Printf("Container deleted: %s\n", sp)
		return nil
	},
}

var containerCountCmd = &cobra.Command{
	Use:   "count [container]",
	Short: "Count the resources of a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := storagePath(args[0])
		if err != nil {
			return err
		}
		recursive, _ := cmd.Flags().GetBool("recursive")
		n, err := storageService.CountResourcesUnderContainer(sp, recursive)
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	},
}

func init() {
	containerCountCmd.Flags().BoolP("recursive", "r", false, "Count everything below the container")
	containerCmd.AddCommand(containerListCmd, containerCreateCmd, containerDeleteCmd, containerCountCmd)
	rootCmd.AddCommand(containerCmd)
}
