package main

import (
	"fmt"

	"github.com/contiv/fabnet/pkg/fattree"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	kFlag   int
	outFile string
)

var rootCmd = &cobra.Command{
	Use:   "topogen",
	Short: "Generate a fat-tree topology description",
	Long: `topogen builds a k-ary fat-tree topology and writes it out as a
topology description file. The output format is chosen by the file
extension: .yaml/.yml or .json.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		topo, err := fattree.New(kFlag)
		if err != nil {
			return err
		}

		desc := topo.BuildTopoDesc()
		if err := desc.WriteToFile(outFile); err != nil {
			return err
		}

		fmt.Printf("wrote k=%d fat-tree (%d switches, %d hosts, %d links) to %s\n",
			kFlag, len(desc.Switches), len(desc.Hosts), len(desc.Links), outFile)
		return nil
	},
}

func init() {
	rootCmd.Flags().IntVarP(&kFlag, "k", "k", 4, "fat-tree arity (even, >= 2)")
	rootCmd.Flags().StringVarP(&outFile, "out", "o", "topology.yaml", "output file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}
