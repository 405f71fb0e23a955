package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/focusapp/focus/internal/config"
	"github.com/focusapp/focus/internal/persistence"
)

// runSubcommand handles the non-daemon admin verbs. They open the store
// directly, so run them against a stopped daemon or accept a moment of
// lock contention.
func runSubcommand(args []string) error {
	switch args[0] {
	case "user":
		return runUser(args[1:])
	case "token":
		return runToken(args[1:])
	case "status":
		return runStatus()
	case "help":
		printUsage()
		return nil
	default:
		return fmt.Errorf("unknown subcommand %q (see %s help)", args[0], os.Args[0])
	}
}

func openConfiguredStore() (*persistence.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return persistence.Open(cfg.DBPath)
}

func runUser(args []string) error {
	if len(args) < 2 || args[0] != "add" {
		return fmt.Errorf("usage: %s user add <email> [display name]", os.Args[0])
	}
	email := args[1]
	displayName := ""
	if len(args) > 2 {
		displayName = args[2]
	}

	store, err := openConfiguredStore()
	if err != nil {
		return err
	}
	defer store.Close()

	user, err := store.CreateUser(context.Background(), email, displayName)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Printf("created user %s (%s)\n", user.ID, user.Email)
	return nil
}

func runToken(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s token <create|list|revoke> ...", os.Args[0])
	}

	store, err := openConfiguredStore()
	if err != nil {
		return err
	}
	defer store.Close()
	ctx := context.Background()

	switch args[0] {
	case "create":
		if len(args) != 3 {
			return fmt.Errorf("usage: %s token create <email> <name>", os.Args[0])
		}
		user, err := store.GetUserByEmail(ctx, args[1])
		if err != nil {
			return fmt.Errorf("lookup user: %w", err)
		}
		record, cleartext, err := store.CreateAPIToken(ctx, user.ID, args[2])
		if err != nil {
			return fmt.Errorf("create token: %w", err)
		}
		fmt.Printf("token %s (%s) created for %s\n", record.ID, record.Name, user.Email)
		fmt.Printf("secret (shown once): %s\n", cleartext)
		return nil

	case "list":
		if len(args) != 2 {
			return fmt.Errorf("usage: %s token list <email>", os.Args[0])
		}
		user, err := store.GetUserByEmail(ctx, args[1])
		if err != nil {
			return fmt.Errorf("lookup user: %w", err)
		}
		tokens, err := store.ListAPITokens(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("list tokens: %w", err)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tLAST USED\tCREATED")
		for _, t := range tokens {
			lastUsed := "never"
			if t.LastUsedAt != nil {
				lastUsed = t.LastUsedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Name, lastUsed, t.CreatedAt.Format(time.RFC3339))
		}
		return tw.Flush()

	case "revoke":
		if len(args) != 2 {
			return fmt.Errorf("usage: %s token revoke <token-id>", os.Args[0])
		}
		if err := store.DeleteAPIToken(ctx, args[1]); err != nil {
			return fmt.Errorf("revoke token: %w", err)
		}
		fmt.Println("token revoked")
		return nil

	default:
		return fmt.Errorf("unknown token action %q", args[0])
	}
}

func runStatus() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + cfg.BindAddr + "/healthz")
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", cfg.BindAddr, err)
	}
	defer resp.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode health response: %w", err)
	}
	out, _ := json.MarshalIndent(payload, "", "  ")
	fmt.Println(string(out))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon unhealthy (HTTP %d)", resp.StatusCode)
	}
	return nil
}
