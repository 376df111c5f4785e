// Command rno-g-dump-config writes out a configuration as TOML: either the
// built-in defaults, or the effective configuration after loading and
// overlaying a named config file, mirroring make-default-rno-g-config.c's
// "write out an acq config" behavior generalized to also echo back what a
// given config file actually resolves to.
package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/rno-g/rno-g-acq/internal/daqconfig"
)

func main() {
	var (
		installDir string
		out        string
		defaults   bool
	)

	root := &cobra.Command{
		Use:   "rno-g-dump-config [name]",
		Short: "dump the default or effective acquisition configuration as TOML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg *daqconfig.Config
			if defaults || len(args) == 0 {
				cfg = daqconfig.Default()
			} else {
				found, err := daqconfig.Find(args[0], installDir)
				if err != nil {
					return fmt.Errorf("resolving %q: %w", args[0], err)
				}
				cfg, err = daqconfig.Load(found)
				if err != nil {
					return err
				}
			}

			w := os.Stdout
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return toml.NewEncoder(w).Encode(cfg)
		},
	}

	root.Flags().StringVar(&installDir, "install-dir", "/rno-g", "installation directory consulted for the config search path")
	root.Flags().StringVar(&out, "out", "", "output file (default: stdout)")
	root.Flags().BoolVar(&defaults, "defaults", false, "dump built-in defaults instead of loading a named config")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
