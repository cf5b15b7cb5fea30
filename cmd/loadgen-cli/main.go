// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Command loadgen-cli is a command-line front end for a running
// loadgen-server's admin API (SPEC_FULL.md §4.9), grounded on the
// teacher's cmd/slurm-cli: one root command, persistent connection
// flags, and a subcommand tree per resource.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	authToken string
	outputFmt string

	rootCmd = &cobra.Command{
		Use:   "loadgen-cli",
		Short: "CLI for the loadgen coordinator's admin API",
		Long:  `A command-line interface for submitting and managing loadgen jobs against a running loadgen-server.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", envOrDefault("LOADGEN_CLI_URL", "http://localhost:8080"), "loadgen-server admin API URL (env: LOADGEN_CLI_URL)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("LOADGEN_CLI_TOKEN"), "worker auth token (env: LOADGEN_CLI_TOKEN)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json")

	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(optimizingCmd)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func client() *apiClient {
	return newAPIClient(serverURL, authToken)
}

func printOutput(data any) {
	if outputFmt != "json" {
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		log.Fatal(err)
	}
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	Run: func(cmd *cobra.Command, args []string) {
		states, _ := cmd.Flags().GetStringSlice("states")
		group, _ := cmd.Flags().GetString("group")

		jobs, err := client().ListJobs(context.Background(), states, group)
		if err != nil {
			log.Fatal(err)
		}

		if outputFmt == "json" {
			printOutput(jobs)
			return
		}
		fmt.Printf("%-24s %-20s %-15s %-8s %-6s\n", "JOB ID", "WORKLOAD", "STATE", "CLIENTS", "THREADS")
		fmt.Println(strings.Repeat("-", 80))
		for _, j := range jobs {
			fmt.Printf("%-24s %-20s %-15s %-8d %-6d\n", j.ID, j.WorkloadName, j.State, j.NumClients, j.ThreadsPerClient)
		}
		fmt.Printf("\nTotal: %d jobs\n", len(jobs))
	},
}

var jobsGetCmd = &cobra.Command{
	Use:   "get JOB_ID",
	Short: "Get job details",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		j, err := client().GetJob(context.Background(), args[0])
		if err != nil {
			log.Fatal(err)
		}

		if outputFmt == "json" {
			printOutput(j)
			return
		}
		fmt.Printf("Job ID:     %s\n", j.ID)
		fmt.Printf("Workload:   %s\n", j.WorkloadName)
		fmt.Printf("State:      %s\n", j.State)
		fmt.Printf("Clients:    %d\n", j.NumClients)
		fmt.Printf("Threads:    %d\n", j.ThreadsPerClient)
		if !j.StartedAt.IsZero() {
			fmt.Printf("Started:    %s\n", j.StartedAt.Format(time.DateTime))
		}
		if !j.StoppedAt.IsZero() {
			fmt.Printf("Stopped:    %s\n", j.StoppedAt.Format(time.DateTime))
		}
	},
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel JOB_ID",
	Short: "Cancel a running or pending job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := client().CancelJob(context.Background(), args[0]); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Job %s cancelled\n", args[0])
	},
}

var jobsSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a job",
	Run: func(cmd *cobra.Command, args []string) {
		workloadName, _ := cmd.Flags().GetString("workload")
		numClients, _ := cmd.Flags().GetInt("clients")
		threads, _ := cmd.Flags().GetInt("threads")
		group, _ := cmd.Flags().GetString("group")
		description, _ := cmd.Flags().GetString("description")
		params, _ := cmd.Flags().GetStringToString("param")

		if workloadName == "" {
			log.Fatal("workload is required (--workload)")
		}

		parameters := make(map[string]any, len(params))
		for k, v := range params {
			parameters[k] = v
		}

		id, err := client().SubmitJob(context.Background(), submitJobRequest{
			WorkloadName:     workloadName,
			NumClients:       numClients,
			ThreadsPerClient: threads,
			Group:            group,
			Description:      description,
			Parameters:       parameters,
		})
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Job submitted: %s\n", id)
	},
}

func init() {
	jobsListCmd.Flags().StringSliceP("states", "s", nil, "Filter by job states (comma-separated)")
	jobsListCmd.Flags().StringP("group", "g", "", "Filter by job group")

	jobsSubmitCmd.Flags().StringP("workload", "w", "", "Workload class name (required)")
	jobsSubmitCmd.Flags().IntP("clients", "c", 1, "Number of worker clients")
	jobsSubmitCmd.Flags().IntP("threads", "t", 1, "Threads per client")
	jobsSubmitCmd.Flags().StringP("group", "g", "", "Job group")
	jobsSubmitCmd.Flags().StringP("description", "d", "", "Job description")
	jobsSubmitCmd.Flags().StringToStringP("param", "p", nil, "Workload parameter key=value (repeatable)")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsGetCmd)
	jobsCmd.AddCommand(jobsCancelCmd)
	jobsCmd.AddCommand(jobsSubmitCmd)
}

var optimizingCmd = &cobra.Command{
	Use:   "optimizing",
	Short: "Manage optimizing jobs",
}

var optimizingSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit an optimizing job",
	Run: func(cmd *cobra.Command, args []string) {
		workloadName, _ := cmd.Flags().GetString("workload")
		numClients, _ := cmd.Flags().GetInt("clients")
		minThreads, _ := cmd.Flags().GetInt("min-threads")
		maxThreads, _ := cmd.Flags().GetInt("max-threads")
		increment, _ := cmd.Flags().GetInt("thread-increment")
		algorithmName, _ := cmd.Flags().GetString("algorithm")
		description, _ := cmd.Flags().GetString("description")

		if workloadName == "" {
			log.Fatal("workload is required (--workload)")
		}
		if algorithmName == "" {
			log.Fatal("algorithm is required (--algorithm)")
		}

		id, err := client().SubmitOptimizingJob(context.Background(), submitOptimizingJobRequest{
			WorkloadName:    workloadName,
			NumClients:      numClients,
			MinThreads:      minThreads,
			MaxThreads:      maxThreads,
			ThreadIncrement: increment,
			AlgorithmName:   algorithmName,
			Description:     description,
		})
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Optimizing job submitted: %s\n", id)
	},
}

var optimizingCancelCmd = &cobra.Command{
	Use:   "cancel OPTIMIZING_JOB_ID",
	Short: "Cancel an optimizing job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := client().CancelOptimizingJob(context.Background(), args[0]); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Optimizing job %s cancelled\n", args[0])
	},
}

func init() {
	optimizingSubmitCmd.Flags().StringP("workload", "w", "", "Workload class name (required)")
	optimizingSubmitCmd.Flags().IntP("clients", "c", 1, "Number of worker clients")
	optimizingSubmitCmd.Flags().Int("min-threads", 1, "Minimum threads per client")
	optimizingSubmitCmd.Flags().Int("max-threads", 0, "Maximum threads per client (0 = unbounded)")
	optimizingSubmitCmd.Flags().Int("thread-increment", 1, "Thread step between hill-climbing iterations")
	optimizingSubmitCmd.Flags().StringP("algorithm", "a", "", "Optimizing algorithm name (required)")
	optimizingSubmitCmd.Flags().StringP("description", "d", "", "Job description")

	optimizingCmd.AddCommand(optimizingSubmitCmd)
	optimizingCmd.AddCommand(optimizingCancelCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
