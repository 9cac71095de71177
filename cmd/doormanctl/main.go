// doormanctl: CLI admin contra los endpoints /admin de un doorman corriendo.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func (c *client) do(method, path string) (int, []byte, error) {
	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

func (c *client) print(status int, body []byte) {
	var v any
	if json.Unmarshal(body, &v) == nil {
		p, _ := json.MarshalIndent(v, "", "  ")
		fmt.Println(string(p))
		return
	}
	fmt.Printf("status=%d\n", status)
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	var (
		baseURL = envOr("DOORMAN_URL", "http://localhost:8080")
		token   = envOr("DOORMAN_TOKEN", "")
	)

	c := &client{HTTP: &http.Client{Timeout: 15 * time.Second}}

	root := &cobra.Command{
		Use:   "doormanctl",
		Short: "CLI admin para doorman (rate limits)",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				return fmt.Errorf("falta el token admin (flag --token o env DOORMAN_TOKEN)")
			}
			c.BaseURL, c.Token = baseURL, token
			return nil
		},
	}
	root.PersistentFlags().StringVar(&baseURL, "url", baseURL, "URL base del servicio (env DOORMAN_URL)")
	root.PersistentFlags().StringVar(&token, "token", token, "access token con scope admin (env DOORMAN_TOKEN)")

	rl := &cobra.Command{Use: "rate-limit", Short: "Operaciones sobre el rate limiter"}

	rl.AddCommand(&cobra.Command{
		Use:   "reset <identifier>",
		Short: "Borra los registros de un identificador en todas las estrategias",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := c.do(http.MethodPost, "/admin/rate-limit/reset/"+args[0])
			if err != nil {
				return err
			}
			c.print(status, body)
			if status != http.StatusOK {
				return fmt.Errorf("reset falló con status %d", status)
			}
			return nil
		},
	})

	rl.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Registros vivos por estrategia",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := c.do(http.MethodGet, "/admin/rate-limit/stats")
			if err != nil {
				return err
			}
			c.print(status, body)
			if status != http.StatusOK {
				return fmt.Errorf("stats falló con status %d", status)
			}
			return nil
		},
	})

	root.AddCommand(rl)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
