package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ArionMiles/trackmanager/pkg/client"
	"github.com/ArionMiles/trackmanager/pkg/config"
	"github.com/ArionMiles/trackmanager/pkg/export"
)

// runSetup authorizes the Google Sheets sink.
func (a *app) runSetup(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("setup", flag.ContinueOnError)
	force := fs.Bool("force", false, "re-authenticate even if a token exists")
	if err := fs.Parse(args); err != nil {
		return err
	}

	secretsPath := a.cfg.Sheets.ClientSecretFile
	tokenFile := a.cfg.Sheets.TokenFile

	fmt.Println("=== Trackmanager Setup ===")
	fmt.Println()

	if _, err := os.Stat(secretsPath); os.IsNotExist(err) {
		return fmt.Errorf("credentials file not found: %s\n\nTo get your credentials:\n"+
			"1. Go to https://console.cloud.google.com/apis/credentials\n"+
			"2. Create an OAuth 2.0 Client ID (Desktop application)\n"+
			"3. Download the JSON file and save it as '%s'", secretsPath, secretsPath)
	}

	if !*force {
		if _, err := os.Stat(tokenFile); err == nil {
			fmt.Printf("Already authenticated! Token file exists: %s\n", tokenFile)
			fmt.Println()
			fmt.Println("To re-authenticate, run: trackmanager setup -force")
			return nil
		}
	} else {
		if err := os.Remove(tokenFile); err != nil && !os.IsNotExist(err) {
			a.logger.Warn("failed to remove existing token", "error", err)
		}
		fmt.Println("Forcing re-authentication...")
		fmt.Println()
	}

	sink, err := export.DefaultRegistry().Get(config.SinkSheets)
	if err != nil {
		return err
	}

	fmt.Println("This will set up OAuth authentication with Google.")
	fmt.Println()
	fmt.Println("Required permissions:")
	fmt.Println("  - Sheets: Read and write spreadsheets (booking export)")
	fmt.Println()

	if _, err := client.New(ctx, client.Config{
		SecretFile: secretsPath,
		TokenFile:  tokenFile,
		Scopes:     sink.Scopes,
	}, a.logger.With("component", "oauth")); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	fmt.Println()
	fmt.Println("=== Setup Complete ===")
	fmt.Println()
	fmt.Printf("Token saved to: %s\n", tokenFile)
	fmt.Println()
	fmt.Println("Next step: run 'trackmanager export -sink sheets -accounts <ids>'")
	fmt.Println()

	return nil
}
