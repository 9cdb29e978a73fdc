package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/vinicius-ssantos/classroom-downloader-api/internal/domain"
)

var (
	serverURL string
	rootCmd   = &cobra.Command{
		Use:   "classroomctl",
		Short: "Classroom Downloader CLI - manage video download jobs",
		Long:  `A command-line interface for the classroom-downloader server: enqueue video downloads, inspect and cancel jobs, and browse synced courses.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8001", "Server URL")

	addCmd.Flags().String("user", "", "User ID owning the download")
	addCmd.Flags().String("course", "", "Course ID the video belongs to")
	addCmd.MarkFlagRequired("user")
	addCmd.MarkFlagRequired("course")

	listCmd.Flags().String("status", "", "Filter by status (pending, downloading, completed, failed, cancelled)")
	listCmd.Flags().String("course", "", "Filter by course ID")

	coursesCmd.Flags().String("user", "", "Filter by user ID")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(coursesCmd)
	rootCmd.AddCommand(videosCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var addCmd = &cobra.Command{
	Use:   "add [video-link-id]",
	Short: "Enqueue a download for a video link",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		userID, _ := cmd.Flags().GetString("user")
		courseID, _ := cmd.Flags().GetString("course")

		payload := map[string]string{
			"user_id":       userID,
			"course_id":     courseID,
			"video_link_id": args[0],
		}

		var job domain.DownloadJob
		postJSON("/api/v1/jobs", payload, &job)

		fmt.Printf("Download job enqueued\n")
		fmt.Printf("ID:     %s\n", job.ID)
		fmt.Printf("Status: %s\n", job.Status)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List download jobs",
	Run: func(cmd *cobra.Command, args []string) {
		status, _ := cmd.Flags().GetString("status")
		courseID, _ := cmd.Flags().GetString("course")

		path := "/api/v1/jobs"
		sep := "?"
		if status != "" {
			path += sep + "status=" + status
			sep = "&"
		}
		if courseID != "" {
			path += sep + "course_id=" + courseID
		}

		var jobs []*domain.DownloadJob
		getJSON(path, &jobs)

		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.SetStyle(table.StyleRounded)
		tw.AppendHeader(table.Row{"ID", "STATUS", "PROGRESS", "RETRIES", "CREATED", "ERROR"})
		for _, j := range jobs {
			tw.AppendRow(table.Row{
				truncate(j.ID, 8),
				j.Status,
				fmt.Sprintf("%d%%", j.ProgressPercent),
				j.RetryCount,
				j.CreatedAt.Format(time.RFC3339),
				truncate(j.ErrorMessage, 40),
			})
		}
		tw.Render()
	},
}

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Show one download job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var job domain.DownloadJob
		getJSON("/api/v1/jobs/"+args[0], &job)

		fmt.Printf("ID:            %s\n", job.ID)
		fmt.Printf("Status:        %s\n", job.Status)
		fmt.Printf("Progress:      %d%%\n", job.ProgressPercent)
		fmt.Printf("Downloaded:    %d bytes\n", job.DownloadedBytes)
		if job.TotalBytes != nil {
			fmt.Printf("Total:         %d bytes\n", *job.TotalBytes)
		}
		fmt.Printf("Retries:       %d\n", job.RetryCount)
		if job.ErrorMessage != "" {
			fmt.Printf("Last error:    %s\n", job.ErrorMessage)
		}
		if job.OutputPath != "" {
			fmt.Printf("Output:        %s\n", job.OutputPath)
		}
		fmt.Printf("Created:       %s\n", job.CreatedAt.Format(time.RFC3339))
		if job.StartedAt != nil {
			fmt.Printf("Started:       %s\n", job.StartedAt.Format(time.RFC3339))
		}
		if job.CompletedAt != nil {
			fmt.Printf("Completed:     %s\n", job.CompletedAt.Format(time.RFC3339))
		}
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a pending or downloading job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var job domain.DownloadJob
		postJSON("/api/v1/jobs/"+args[0]+"/cancel", nil, &job)
		fmt.Printf("Job %s cancelled\n", truncate(job.ID, 8))
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry [id]",
	Short: "Requeue a failed job with a fresh retry budget",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var job domain.DownloadJob
		postJSON("/api/v1/jobs/"+args[0]+"/retry", nil, &job)
		fmt.Printf("Job %s requeued\n", truncate(job.ID, 8))
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job queue statistics",
	Run: func(cmd *cobra.Command, args []string) {
		var stats domain.JobStats
		getJSON("/api/v1/jobs/stats", &stats)

		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.SetStyle(table.StyleRounded)
		tw.AppendHeader(table.Row{"STATUS", "COUNT"})
		tw.AppendRow(table.Row{"pending", stats.Pending})
		tw.AppendRow(table.Row{"downloading", stats.Downloading})
		tw.AppendRow(table.Row{"completed", stats.Completed})
		tw.AppendRow(table.Row{"failed", stats.Failed})
		tw.AppendRow(table.Row{"cancelled", stats.Cancelled})
		tw.AppendFooter(table.Row{"total", stats.Total})
		tw.Render()

		fmt.Printf("Downloaded: %s\n", formatBytes(stats.TotalBytesDownloaded))
	},
}

var coursesCmd = &cobra.Command{
	Use:   "courses",
	Short: "List synced courses",
	Run: func(cmd *cobra.Command, args []string) {
		userID, _ := cmd.Flags().GetString("user")

		path := "/api/v1/courses"
		if userID != "" {
			path += "?user_id=" + userID
		}

		var courses []*domain.Course
		getJSON(path, &courses)

		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.SetStyle(table.StyleRounded)
		tw.AppendHeader(table.Row{"ID", "NAME", "SECTION", "STATE", "LAST SYNCED"})
		for _, c := range courses {
			lastSynced := "-"
			if c.LastSyncedAt != nil {
				lastSynced = c.LastSyncedAt.Format(time.RFC3339)
			}
			tw.AppendRow(table.Row{
				truncate(c.ID, 8),
				truncate(c.Name, 40),
				c.Section,
				c.State,
				lastSynced,
			})
		}
		tw.Render()
	},
}

var videosCmd = &cobra.Command{
	Use:   "videos [course-id]",
	Short: "List video links in a course",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var links []*domain.VideoLink
		getJSON("/api/v1/courses/"+args[0]+"/videos", &links)

		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.SetStyle(table.StyleRounded)
		tw.AppendHeader(table.Row{"ID", "TITLE", "SOURCE", "URL", "DOWNLOADED"})
		for _, l := range links {
			downloaded := ""
			if l.IsDownloaded {
				downloaded = "yes"
			}
			tw.AppendRow(table.Row{
				truncate(l.ID, 8),
				truncate(l.Title, 30),
				l.SourceType,
				truncate(l.URL, 50),
				downloaded,
			})
		}
		tw.Render()
	},
}

func getJSON(path string, out interface{}) {
	resp, err := http.Get(serverURL + path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
		os.Exit(1)
	}
	if err := json.Unmarshal(body, out); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to parse response: %v\n", err)
		os.Exit(1)
	}
}

func postJSON(path string, payload interface{}, out interface{}) {
	var reqBody io.Reader
	if payload != nil {
		data, _ := json.Marshal(payload)
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	resp, err := http.Post(serverURL+path, "application/json", reqBody)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
		os.Exit(1)
	}
	if err := json.Unmarshal(body, out); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to parse response: %v\n", err)
		os.Exit(1)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
