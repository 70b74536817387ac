// Package main provides the pdfprep command: the PDF processing HTTP service
// and its command-line helpers.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "pdfprep",
	Short: "PDF text extraction and preprocessing service",
	Long: "pdfprep accepts PDF uploads, extracts their text, removes English stopwords " +
		"and serves the processed text while reporting progress to polling clients.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a JSON config file overlaying the environment")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
