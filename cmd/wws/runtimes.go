package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rafbgarcia/wws/internal/catalog"
)

const userAgent = "wws-cli"

func newRuntimesCommand() *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "runtimes",
		Short: "Manage installed language-pack runtimes",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if root == "" {
				root = "."
			}
		},
	}
	cmd.PersistentFlags().StringVarP(&root, "root", "r", ".", "project root holding .wws.toml")

	cmd.AddCommand(newRuntimesListCommand(&root))
	cmd.AddCommand(newRuntimesInstallCommand(&root))
	cmd.AddCommand(newRuntimesRemoveCommand(&root))
	return cmd
}

func newRuntimesListCommand(root *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List repositories and runtimes registered in .wws.toml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(*root)
			if err != nil {
				return err
			}
			for _, repo := range cat.Repositories {
				fmt.Printf("%s (%s)\n", repo.Name, repo.URL)
				for _, rt := range repo.Runtimes {
					installed := ""
					if catalog.IsInstalled(*root, repo.Name, rt) {
						installed = " [installed]"
					}
					fmt.Printf("  %s %s%s\n", rt.Name, rt.Version, installed)
				}
			}
			return nil
		},
	}
}

func newRuntimesInstallCommand(root *string) *cobra.Command {
	var indexURL string

	cmd := &cobra.Command{
		Use:   "install <runtime-name>",
		Short: "Fetch a remote index, register its repository, and install a runtime by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, warning, err := catalog.FetchIndex(indexURL, userAgent)
			if err != nil {
				return err
			}
			if warning != nil {
				fmt.Println("warning:", warning)
			}

			cat, err := catalog.Load(*root)
			if err != nil {
				return err
			}
			cat.Register(repo)

			var target *catalog.RuntimeDescriptor
			for i := range repo.Runtimes {
				if repo.Runtimes[i].Name == args[0] {
					target = &repo.Runtimes[i]
					break
				}
			}
			if target == nil {
				return fmt.Errorf("wws: no runtime named %q in index %s", args[0], indexURL)
			}

			if err := catalog.Install(*root, repo.Name, *target, userAgent); err != nil {
				return err
			}
			return cat.Save()
		},
	}
	cmd.Flags().StringVar(&indexURL, "index", "", "remote index URL")
	cmd.MarkFlagRequired("index")
	return cmd
}

func newRuntimesRemoveCommand(root *string) *cobra.Command {
	var repoName string
	var version string

	cmd := &cobra.Command{
		Use:   "remove <runtime-name>",
		Short: "Uninstall a runtime by exact name, narrowed by --repo/--version when several match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(*root)
			if err != nil {
				return err
			}

			var matchRepo string
			var match *catalog.RuntimeDescriptor
			for _, repo := range cat.Repositories {
				if repoName != "" && repo.Name != repoName {
					continue
				}
				for i, rt := range repo.Runtimes {
					if rt.Name != args[0] {
						continue
					}
					if version != "" && rt.Version != version {
						continue
					}
					if match != nil {
						return fmt.Errorf("wws: more than one runtime named %q matches; narrow it with --repo or --version", args[0])
					}
					matchRepo, match = repo.Name, &repo.Runtimes[i]
				}
			}
			if match == nil {
				return fmt.Errorf("wws: no installed runtime named %q found", args[0])
			}
			return catalog.Uninstall(*root, matchRepo, *match)
		},
	}
	cmd.Flags().StringVar(&repoName, "repo", "", "restrict removal to this repository")
	cmd.Flags().StringVar(&version, "version", "", "restrict removal to this exact version")
	return cmd
}
