package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"schsync/internal/ir"
)

var (
	applyServer  string
	applyToken   string
	applyWatch   bool
	applyTimeout time.Duration
)

const watchDebounce = 250 * time.Millisecond

var applyCmd = &cobra.Command{
	Use:   "apply FILE",
	Short: "Send a description to a running schsync server",
	Long: `Validates FILE locally, then posts it to the server's /api/apply endpoint.

With --watch the file is re-applied every time it changes until interrupted.
Editors that save by renaming are handled by watching the parent directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringVar(&applyServer, "server", "http://127.0.0.1:8788", "schsync server base URL")
	applyCmd.Flags().StringVar(&applyToken, "token", "", "bearer token for the server")
	applyCmd.Flags().BoolVarP(&applyWatch, "watch", "w", false, "re-apply whenever the file changes")
	applyCmd.Flags().DurationVar(&applyTimeout, "timeout", 2*time.Minute, "request timeout")
}

func runApply(cmd *cobra.Command, args []string) error {
	path := args[0]
	client := &applyClient{base: strings.TrimRight(applyServer, "/"), token: applyToken, http: &http.Client{Timeout: applyTimeout}}

	if err := client.applyFile(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), path); err != nil && !applyWatch {
		return err
	}
	if !applyWatch {
		return nil
	}
	return watchFile(cmd.Context(), path, func() {
		// Errors are printed and the watch continues.
		_ = client.applyFile(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), path)
	})
}

type applyClient struct {
	base  string
	token string
	http  *http.Client
}

func (c *applyClient) applyFile(ctx context.Context, out, errOut io.Writer, path string) error {
	_, canonical, err := ir.ReadFile(path)
	if err != nil {
		return describeFault(errOut, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/apply", bytes.NewReader(canonical))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		fmt.Fprintf(errOut, "apply %s: %v\n", path, err)
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Code    string          `json:"code"`
			Error   string          `json:"error"`
			Details json.RawMessage `json:"details"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Code != "" {
			fmt.Fprintf(errOut, "%s: %s\n", apiErr.Code, apiErr.Error)
			if len(apiErr.Details) > 0 {
				fmt.Fprintf(errOut, "  %s\n", apiErr.Details)
			}
			return fmt.Errorf("apply %s: %s", path, apiErr.Code)
		}
		return fmt.Errorf("apply %s: server returned %s", path, resp.Status)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		_, err = out.Write(body)
		return err
	}
	_, err = pretty.WriteTo(out)
	return err
}

// watchFile calls fn after each change to path, coalescing bursts of events.
// It returns when ctx is done.
func watchFile(ctx context.Context, path string, fn func()) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(watchDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", path, err)
		case <-timer.C:
			fn()
		}
	}
}
