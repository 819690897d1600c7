package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/attendsync/attendsync/internal/schema"
	"github.com/attendsync/attendsync/internal/ui"
)

var configureCmd = &cobra.Command{
	Use:     "configure",
	GroupID: "sync",
	Short:   "Set the Gist ID and token used for sync",
	Long: `Store the remote document ID (the Gist ID) and the credential (a
GitHub token with the gist scope) in the local database.

Saving a configuration reloads data from the new document. Leaving either
value empty disables sync.

Without flags, an interactive form asks for both values. Pass --plain for
simple line prompts, or give both flags to skip prompting entirely.

Example usage:
  attend configure
  attend configure --document 0123abcd --credential ghp_xxx
  attend configure --show`,
	Run: func(cmd *cobra.Command, args []string) {
		show, _ := cmd.Flags().GetBool("show")
		plain, _ := cmd.Flags().GetBool("plain")

		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		current, err := a.store.SyncConfig(ctx)
		if err != nil {
			a.close()
			fatal("%v", err)
		}
		if show {
			printJSON(current.Redacted())
			return
		}

		next := current
		docSet := cmd.Flags().Changed("document")
		credSet := cmd.Flags().Changed("credential")
		if docSet {
			next.DocumentID, _ = cmd.Flags().GetString("document")
		}
		if credSet {
			next.Credential, _ = cmd.Flags().GetString("credential")
		}

		if !docSet || !credSet {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				a.close()
				fatal("not a terminal: pass --document and --credential")
			}
			if plain {
				err = promptPlain(&next, !docSet, !credSet)
			} else {
				err = promptForm(&next, !docSet, !credSet)
			}
			if err != nil {
				a.close()
				fatal("%v", err)
			}
		}

		a.driver.Start()
		if err := a.driver.Reconfigure(ctx, next); err != nil {
			a.close()
			fatal("%v", err)
		}

		if next.Enabled() {
			fmt.Printf("%s Sync configured for gist %s\n", ui.RenderPass("✓"), ui.RenderAccent(strings.TrimSpace(next.DocumentID)))
		} else {
			fmt.Printf("%s Sync disabled\n", ui.RenderWarn("○"))
		}
		a.finish(ctx)
	},
}

func promptForm(sc *schema.SyncConfig, askDoc, askCred bool) error {
	var cred string
	var fields []huh.Field
	if askDoc {
		fields = append(fields, huh.NewInput().
			Title("Gist ID").
			Description("The ID at the end of the gist URL").
			Value(&sc.DocumentID))
	}
	if askCred {
		fields = append(fields, huh.NewInput().
			Title("GitHub token").
			Description("Needs the gist scope. Leave empty to keep the current token.").
			EchoMode(huh.EchoModePassword).
			Value(&cred))
	}
	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return err
	}
	if cred = strings.TrimSpace(cred); cred != "" {
		sc.Credential = cred
	}
	return nil
}

func promptPlain(sc *schema.SyncConfig, askDoc, askCred bool) error {
	if askDoc {
		fmt.Printf("Gist ID [%s]: ", sc.DocumentID)
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read gist ID: %w", err)
		}
		if line = strings.TrimSpace(line); line != "" {
			sc.DocumentID = line
		}
	}
	if askCred {
		fmt.Print("GitHub token (input hidden, empty keeps current): ")
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read token: %w", err)
		}
		if s := strings.TrimSpace(string(b)); s != "" {
			sc.Credential = s
		}
	}
	return nil
}

func init() {
	configureCmd.Flags().String("document", "", "Gist ID")
	configureCmd.Flags().String("credential", "", "GitHub token with gist scope")
	configureCmd.Flags().Bool("plain", false, "Use line prompts instead of the form")
	configureCmd.Flags().Bool("show", false, "Print the current configuration (token redacted)")

	rootCmd.AddCommand(configureCmd)
}
