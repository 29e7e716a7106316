package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
)

// ---- Health Commands ----

func (c *CLI) healthCommand(args []string) error {
	sub := "full"
	if len(args) > 0 {
		sub = args[0]
	}

	var path string
	switch sub {
	case "live":
		path = "/healthz"
	case "ready":
		path = "/ready"
	case "full":
		path = "/health"
	default:
		return fmt.Errorf("unknown health subcommand: %s", sub)
	}

	resp, err := c.get(path)
	if err != nil {
		return err
	}
	return c.prettyPrint(resp)
}

// ---- Captcha Commands ----

// captchaCommand loads a captcha, prints its id and writes the image to
// --out (captcha.png by default).
func (c *CLI) captchaCommand(args []string) error {
	opts := parseArgs(args)
	path := "/api/v1/captcha"
	if id, ok := opts["reload"]; ok {
		path = "/api/v1/captcha/reload?id=" + url.QueryEscape(id)
	}

	resp, err := c.get(path)
	if err != nil {
		return err
	}

	var captcha struct {
		ID  string `json:"id"`
		Img string `json:"img"`
	}
	if err := json.Unmarshal(resp, &captcha); err != nil {
		return err
	}
	png, err := base64.StdEncoding.DecodeString(captcha.Img)
	if err != nil {
		return err
	}

	out := opts["out"]
	if out == "" {
		out = "captcha.png"
	}
	if err := os.WriteFile(out, png, 0o644); err != nil {
		return err
	}

	fmt.Fprintf(c.Out, "id: %s\nimage: %s\n", captcha.ID, out)
	return nil
}

// ---- Account Commands ----

func (c *CLI) cancelDeletionCommand(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: accounts-cli cancel-deletion <token>")
	}

	if _, err := c.get("/api/v1/user/delete/cancel?token=" + url.QueryEscape(args[0])); err != nil {
		return err
	}
	fmt.Fprintln(c.Out, "Account deletion cancelled")
	return nil
}
