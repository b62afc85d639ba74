// Command mrclient drives a single MapReduce job against a running
// mrserver: it applies for a job, stages the input and artifact, waits for
// the result, and copies it out locally.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mrcoordinator/internal/mapreduce"
	"mrcoordinator/internal/mrclient"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		serverAddr  string
		outputDir   string
		mapperNum   int
		reducerNum  int
		storageRoot string
	)

	cmd := &cobra.Command{
		Use:   "mrclient <input-file> <artifact.so>",
		Short: "Submit a single MapReduce job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputFile, artifactPath := args[0], args[1]

			logger := mapreduce.NewLogger("mrclient")
			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}

			c := &mrclient.Client{
				InputFile:    inputFile,
				ArtifactPath: artifactPath,
				ServerAddr:   serverAddr,
				OutputDir:    outputDir,
				MapperNum:    mapperNum,
				ReducerNum:   reducerNum,
				Storage:      mapreduce.NewStorage(storageRoot),
				Loader:       mapreduce.PluginLoader{},
				Logger:       logger,
			}
			return c.Execute()
		},
	}

	cmd.Flags().StringVar(&serverAddr, "server", "127.0.0.1:7878", "coordinator server address")
	cmd.Flags().StringVar(&outputDir, "output", "./result", "local directory to copy results into")
	cmd.Flags().IntVar(&mapperNum, "mappers", 4, "number of mapper shards to request")
	cmd.Flags().IntVar(&reducerNum, "reducers", 2, "number of reducer partitions to request")
	cmd.Flags().StringVar(&storageRoot, "storage-root", "./_hdfs_stub", "distributed-backend stub root, must match the server's")
	return cmd
}
