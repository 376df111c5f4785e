// Command rno-g-find-config resolves a configuration name along the
// search path (design §4.1 / ice-common.c's find_config) and prints the
// resolved path, mirroring rno-g-find-config.c's diagnostic tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rno-g/rno-g-acq/internal/daqconfig"
)

func main() {
	var installDir string

	root := &cobra.Command{
		Use:   "rno-g-find-config [name]",
		Short: "resolve a configuration file name along the search path",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "acq.cfg"
			if len(args) > 0 {
				name = args[0]
			} else {
				fmt.Println("no config name passed, assuming acq.cfg")
			}

			found, err := daqconfig.Find(name, installDir)
			if err != nil {
				fmt.Println("not found!")
				return err
			}
			fmt.Printf("found: %s\n", found)
			return nil
		},
	}

	root.Flags().StringVar(&installDir, "install-dir", "/rno-g", "installation directory consulted for the config search path")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
