package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Manage cluster nodes",
}

var nodeAddCmd = &cobra.Command{
	Use:   "add <node-id> <raft-address>",
	Short: "Add a node as a voter (run against the leader)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		err := postJSON(apiURL(cmd, "/v1/cluster/nodes"),
			map[string]string{"node_id": args[0], "address": args[1]}, nil)
		if err != nil {
			return err
		}
		fmt.Printf("node %s added\n", args[0])
		return nil
	},
}

var nodeRemoveCmd = &cobra.Command{
	Use:   "remove <node-id>",
	Short: "Remove a node from the cluster (run against the leader)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := http.NewRequest(http.MethodDelete, apiURL(cmd, "/v1/cluster/nodes/"+args[0]), nil)
		if err != nil {
			return err
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("%s", resp.Status)
		}
		fmt.Printf("node %s removed\n", args[0])
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{nodeAddCmd, nodeRemoveCmd} {
		c.Flags().String("api", "localhost:8080", "Admin API address")
		nodeCmd.AddCommand(c)
	}
	rootCmd.AddCommand(nodeCmd)
}
