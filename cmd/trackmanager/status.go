package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ArionMiles/trackmanager/pkg/api"
	"github.com/ArionMiles/trackmanager/pkg/client"
	"github.com/ArionMiles/trackmanager/pkg/config"
	"github.com/ArionMiles/trackmanager/pkg/webservice"
)

// runStatus checks the configuration, the session and the API.
func (a *app) runStatus(ctx context.Context) error {
	fmt.Println("=== Trackmanager Status ===")
	fmt.Println()

	allGood := true

	a.checkConfig(&allGood)
	a.checkSession(&allGood)
	if a.cfg.Export.Sink == config.SinkSheets {
		a.checkToken(&allGood)
	}
	a.checkAPIConnectivity(ctx, &allGood)

	printFinalStatus(allGood)
	return nil
}

func (a *app) checkConfig(allGood *bool) {
	fmt.Print("Configuration: ")
	if err := a.cfg.Validate(); err != nil {
		fmt.Printf("✗ %v\n", err)
		*allGood = false
		return
	}
	fmt.Printf("✓ %s://%s (locale %s, sink %s)\n", a.cfg.APIScheme, a.cfg.APIHost, a.text.Language(), a.cfg.Export.Sink)
}

func (a *app) checkSession(allGood *bool) {
	fmt.Print("Session: ")
	switch {
	case a.cfg.SessionID != "":
		fmt.Println("✓ From TRACK_SESSION_ID")
	case a.cfg.SessionFileExists() && a.session.SessionID() != "":
		fmt.Printf("✓ From %s\n", a.cfg.SessionFile)
	default:
		fmt.Println("✗ None (run 'trackmanager session <PHPSESSID>')")
		*allGood = false
	}
}

func (a *app) checkToken(allGood *bool) {
	fmt.Printf("OAuth token (%s): ", a.cfg.Sheets.TokenFile)
	token, err := client.LoadToken(a.cfg.Sheets.TokenFile)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("✗ Not found (run 'trackmanager setup')")
		} else {
			fmt.Printf("✗ %v\n", err)
		}
		*allGood = false
		return
	}

	if token.Expiry.Before(time.Now()) {
		fmt.Println("⚠ Expired (will refresh on next run)")
	} else {
		fmt.Printf("✓ Valid (expires: %s)\n", token.Expiry.Format(time.RFC3339))
	}
}

// checkAPIConnectivity calls getUserAccounts without an indicator. Failures
// go to the error callback so no dialog is shown.
func (a *app) checkAPIConnectivity(ctx context.Context, allGood *bool) {
	fmt.Print("API: ")

	opts := api.DefaultOptions()
	opts.HideLoading = true
	res := <-a.svc.Execute(ctx, "status", webservice.EndpointGetUserAccounts, nil, func() {}, nil, &opts)

	if !res.OK() {
		fmt.Printf("✗ %v\n", res.Err)
		*allGood = false
		return
	}
	if accounts, ok := res.Payload.([]any); ok {
		fmt.Printf("✓ Connected (%d accounts)\n", len(accounts))
		return
	}
	fmt.Println("✓ Connected")
}

func printFinalStatus(allGood bool) {
	fmt.Println()
	if allGood {
		fmt.Println("Status: ✓ Ready")
		fmt.Println()
		fmt.Println("Run 'trackmanager accounts' to list your accounts.")
	} else {
		fmt.Println("Status: ✗ Configuration issues detected")
		fmt.Println()
		fmt.Println("Fix the issues above, then run 'trackmanager status' again.")
	}
}
