package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ocfcluster/rgmd/pkg/transport"
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

func apiURL(cmd *cobra.Command, path string) string {
	addr, _ := cmd.Flags().GetString("api")
	return "http://" + addr + path
}

func postJSON(url string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("%s", resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

var opCmd = &cobra.Command{
	Use:   "op <group> <start|stop|disable|enable|relocate|status|migrate>",
	Short: "Run an operation against a resource group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		group, op := args[0], args[1]
		target, _ := cmd.Flags().GetUint64("target")

		var resp struct {
			RequestID string `json:"request_id"`
			Accepted  bool   `json:"accepted"`
		}
		err := postJSON(apiURL(cmd, "/v1/groups/"+group+"/op"),
			map[string]interface{}{"op": op, "target": target}, &resp)
		if err != nil {
			return err
		}
		if resp.RequestID != "" {
			fmt.Printf("accepted %s %s (request %s)\n", op, group, resp.RequestID)
		} else {
			fmt.Printf("%s %s done\n", op, group)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of every resource group",
	RunE: func(cmd *cobra.Command, args []string) error {
		fast, _ := cmd.Flags().GetBool("fast")
		url := apiURL(cmd, "/v1/status")
		if fast {
			url += "?fast=true"
		}

		resp, err := httpClient.Get(url)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s", resp.Status)
		}

		fmt.Printf("%-24s %-14s %-8s %s\n", "GROUP", "STATE", "OWNER", "RESTARTS")
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			var entry struct {
				Group string              `json:"group"`
				State transport.WireState `json:"state"`
			}
			if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil || entry.Group == "" {
				continue
			}
			owner := "-"
			if entry.State.Owner != 0 {
				owner = fmt.Sprintf("%d", entry.State.Owner)
			}
			fmt.Printf("%-24s %-14s %-8s %d\n", entry.Group, entry.State.State, owner, entry.State.RestartCount)
		}
		return scanner.Err()
	},
}

var reconfigureCmd = &cobra.Command{
	Use:   "reconfigure",
	Short: "Reload the cluster configuration now",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Version int64 `json:"version"`
		}
		if err := postJSON(apiURL(cmd, "/v1/reconfigure"), map[string]string{}, &resp); err != nil {
			return err
		}
		fmt.Printf("reconfigured to version %d\n", resp.Version)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{opCmd, statusCmd, reconfigureCmd} {
		c.Flags().String("api", "localhost:8080", "Admin API address")
		rootCmd.AddCommand(c)
	}
	opCmd.Flags().Uint64("target", 0, "Target node ID for relocate/migrate")
	statusCmd.Flags().Bool("fast", false, "Report durable state without running fresh agent checks")
}
