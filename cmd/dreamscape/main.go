package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/Manny1440/DreamScapers/internal/auth"
	"github.com/Manny1440/DreamScapers/internal/client"
	"github.com/Manny1440/DreamScapers/internal/imagedata"
)

const usage = `usage: dreamscape <command> [flags]

commands:
  generate   transform a yard photo through the gateway
  token      sign an identity token (needs AUTH_JWT_SECRET)
  styles     list the available styles
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "generate":
		err = runGenerate(os.Args[2:])
	case "token":
		err = runToken(os.Args[2:])
	case "styles":
		for _, id := range client.StyleIDs() {
			s := client.Styles[id]
			fmt.Printf("%-14s %s\n", id, s.Name)
		}
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "dreamscape: %v\n", err)
		os.Exit(1)
	}
}

func runGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	var (
		gateway = fs.String("gateway", envOr("DREAMSCAPE_GATEWAY", "http://localhost:8080"), "gateway base URL")
		email   = fs.String("email", client.DefaultIdentity, "identity charged for the generation")
		prompt  = fs.String("prompt", "", "what to change in the yard")
		style   = fs.String("style", client.DefaultStyle, "style id (see: dreamscape styles)")
		out     = fs.String("out", "", "output path (default <photo>-after.<ext>)")
		token   = fs.String("token", os.Getenv("DREAMSCAPE_TOKEN"), "bearer token")
		timeout = fs.Duration("timeout", 90*time.Second, "request timeout")
	)
	fs.Parse(args)

	if fs.NArg() != 1 {
		return errors.New("generate needs exactly one photo path")
	}
	if strings.TrimSpace(*prompt) == "" {
		return errors.New("-prompt is required")
	}
	s, ok := client.LookupStyle(*style)
	if !ok {
		return fmt.Errorf("unknown style %q (have %s)", *style, strings.Join(client.StyleIDs(), ", "))
	}

	photoPath := fs.Arg(0)
	photo, err := imagedata.ReadFile(photoPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := client.New(client.Options{BaseURL: *gateway, Token: *token, Timeout: *timeout})
	res, err := c.Generate(ctx, client.NewRequest(*email, *prompt, s.PromptModifier, photo))
	if err != nil {
		return err
	}

	img, err := res.Decode()
	if err != nil {
		return fmt.Errorf("decoding result: %w", err)
	}

	dest := *out
	if dest == "" {
		dest = afterPath(photoPath, img.MIMEType)
	}
	if err := os.WriteFile(dest, img.Data, 0o644); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}

	fmt.Printf("wrote %s (%d/%d used in %s)\n", dest, res.Used, res.Limit, res.WeekKey)
	return nil
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	var (
		email  = fs.String("email", "", "identity to sign")
		expiry = fs.Duration("expiry", 7*24*time.Hour, "token lifetime")
	)
	fs.Parse(args)

	secret := os.Getenv("AUTH_JWT_SECRET")
	if secret == "" {
		return errors.New("AUTH_JWT_SECRET is not set")
	}
	if strings.TrimSpace(*email) == "" {
		return errors.New("-email is required")
	}

	token, err := auth.NewTokenManager(secret, *expiry).Sign(*email)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func afterPath(photoPath, mimeType string) string {
	ext := ".png"
	if m := mimetype.Lookup(mimeType); m != nil && m.Extension() != "" {
		ext = m.Extension()
	}
	base := strings.TrimSuffix(photoPath, filepath.Ext(photoPath))
	return base + "-after" + ext
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
