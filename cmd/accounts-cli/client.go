package main

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// CLI holds the client configuration
type CLI struct {
	BaseURL string
	Client  *http.Client
	Out     io.Writer
}

func newCLI() *CLI {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if getEnv("ACCOUNTS_INSECURE", "") == "true" {
		// Development servers run with self-signed certificates.
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &CLI{
		BaseURL: strings.TrimSuffix(getEnv("ACCOUNTS_URL", "https://127.0.0.1:8443"), "/"),
		Client:  &http.Client{Timeout: 30 * time.Second, Transport: transport},
		Out:     os.Stdout,
	}
}

// ---- HTTP Helpers ----

// get returns the body of a successful response. Any status from 400 up is
// an error carrying the body, which holds the error category and kind.
func (c *CLI) get(path string) ([]byte, error) {
	resp, err := c.Client.Get(c.BaseURL + path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	return data, nil
}

// ---- Utility Functions ----

func parseArgs(args []string) map[string]string {
	opts := make(map[string]string)
	for _, arg := range args {
		if strings.HasPrefix(arg, "--") {
			parts := strings.SplitN(strings.TrimPrefix(arg, "--"), "=", 2)
			if len(parts) == 2 {
				opts[parts[0]] = parts[1]
			} else {
				opts[parts[0]] = "true"
			}
		}
	}
	return opts
}

func (c *CLI) prettyPrint(data []byte) error {
	var obj interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		fmt.Fprintln(c.Out, string(data))
		return nil
	}
	out, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.Out, string(out))
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
