// ABOUTME: health and sessions commands that query a running gateway over HTTP
// ABOUTME: Sessions are rendered as a styled table with lipgloss

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	serverAddr    string
	sessionsLimit int
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	threadStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check gateway health and readiness",
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := gatewayURL()
		if err != nil {
			return err
		}

		if _, err := getBody(cmd.Context(), base+"/health"); err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		ready, err := getBody(cmd.Context(), base+"/health/ready")
		if err != nil {
			return fmt.Errorf("readiness check failed: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("healthy")+" "+dateStyle.Render(string(ready)))
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List chat sessions on a running gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := gatewayURL()
		if err != nil {
			return err
		}

		body, err := getBody(cmd.Context(), fmt.Sprintf("%s/api/sessions?limit=%d", base, sessionsLimit))
		if err != nil {
			return fmt.Errorf("listing sessions: %w", err)
		}

		var resp sessionList
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("decoding sessions: %w", err)
		}

		renderSessions(cmd.OutOrStdout(), resp.Sessions, time.Now())
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{healthCmd, sessionsCmd} {
		cmd.Flags().StringVar(&serverAddr, "addr", "", "gateway address (defaults to server.http_addr)")
	}
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 50, "maximum sessions to show")
}

type sessionRow struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ThreadID  string `json:"thread_id"`
	UpdatedAt string `json:"updated_at"`
}

type sessionList struct {
	Sessions []sessionRow `json:"sessions"`
}

// gatewayURL returns the base URL from --addr or the configured listen address.
func gatewayURL() (string, error) {
	addr := serverAddr
	if addr == "" {
		cfg, err := loadConfig()
		if err != nil {
			return "", err
		}
		addr = cfg.Server.HTTPAddr
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return strings.TrimRight(addr, "/"), nil
}

func getBody(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func renderSessions(out io.Writer, sessions []sessionRow, now time.Time) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, headerStyle.Render("No sessions found"))
		return
	}

	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("Found %d session(s)", len(sessions))))
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, titleStyle.Render("ID")+"\t"+titleStyle.Render("Name")+"\t"+titleStyle.Render("Thread")+"\t"+titleStyle.Render("Updated")+"\t")

	for _, s := range sessions {
		name := s.Name
		if runes := []rune(name); len(runes) > 40 {
			name = string(runes[:37]) + "..."
		}

		thread := dateStyle.Render("-")
		if s.ThreadID != "" {
			thread = threadStyle.Render(s.ThreadID)
		}

		fmt.Fprintln(w, idStyle.Render(s.ID)+"\t"+name+"\t"+thread+"\t"+dateStyle.Render(relativeTime(s.UpdatedAt, now))+"\t")
	}
	_ = w.Flush()
}

// relativeTime formats an RFC 3339 timestamp for the sessions table.
func relativeTime(ts string, now time.Time) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	switch diff := now.Sub(t); {
	case diff < 24*time.Hour:
		return t.Local().Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Local().Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Local().Format("Jan 02 15:04")
	default:
		return t.Local().Format("2006-01-02")
	}
}
