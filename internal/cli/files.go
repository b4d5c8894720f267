package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"docsearch/internal/adapter/fs"
)

var (
	filesSession string
	filesJSON    bool
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Manage the documents of a session",
}

var filesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp := current.service.ListFiles(cmd.Context(), filesSession)
		if filesJSON {
			return printJSON(resp)
		}
		if len(resp.Files) == 0 {
			fmt.Println("No files.")
			return nil
		}
		for _, name := range resp.Files {
			fmt.Println(name)
		}
		return nil
	},
}

var filesUploadCmd = &cobra.Command{
	Use:   "upload <path>...",
	Short: "Add files that the session does not have yet",
	Long: `Add files to a session. Directories contribute their matching top-level
files. Names the session already stores are left untouched.

Examples:
  docsearch files upload -s demo ./notes
  docsearch files upload -s demo report.md minutes.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := collectFiles(args)
		if err != nil {
			return err
		}
		resp, err := current.service.UploadFiles(cmd.Context(), filesSession, files)
		if err != nil {
			return err
		}
		if filesJSON {
			return printJSON(resp)
		}
		color.Green("Accepted %d file(s) for session %s", len(resp.Files), resp.SessionID)
		return nil
	},
}

var filesSyncCmd = &cobra.Command{
	Use:   "sync <path>...",
	Short: "Make the session hold exactly the given files",
	Long: `Mirror a set of files into a session. Missing names are added and names
not in the set are removed. Names present on both sides are left untouched.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := collectFiles(args)
		if err != nil {
			return err
		}
		resp, err := current.service.SyncFiles(cmd.Context(), filesSession, files)
		if err != nil {
			return err
		}
		if filesJSON {
			return printJSON(resp)
		}
		color.Green("Session %s now holds %d file(s)", resp.SessionID, len(resp.Files))
		return nil
	},
}

var filesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove one document from a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := current.service.DeleteFile(cmd.Context(), filesSession, args[0])
		if err != nil {
			return err
		}
		if filesJSON {
			return printJSON(resp)
		}
		color.Yellow("Deleted %s from session %s", resp.File, resp.SessionID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(filesCmd)
	filesCmd.AddCommand(filesListCmd, filesUploadCmd, filesSyncCmd, filesDeleteCmd)
	filesCmd.PersistentFlags().StringVarP(&filesSession, "session", "s", "", "session id (required)")
	filesCmd.PersistentFlags().BoolVar(&filesJSON, "json", false, "output as JSON")
	_ = filesCmd.MarkPersistentFlagRequired("session")
}

// collectFiles reads the given files, and the matching files directly under
// the given directories, keyed by base name.
func collectFiles(paths []string) (map[string][]byte, error) {
	walker := fs.NewWalker(fs.NewMatcher(current.cfg.Storage.Includes, current.cfg.Storage.Excludes))

	var found []fs.FileInfo
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("path does not exist: %w", err)
		}
		if !info.IsDir() {
			abs, err := filepath.Abs(p)
			if err != nil {
				return nil, err
			}
			found = append(found, fs.FileInfo{Path: abs, Name: info.Name(), Size: info.Size()})
			continue
		}
		entries, err := walker.Walk(p)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", p, err)
		}
		found = append(found, entries...)
	}

	bar := progressbar.NewOptions(len(found),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("[cyan]Reading[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)

	files := make(map[string][]byte, len(found))
	for _, f := range found {
		if _, dup := files[f.Name]; dup {
			return nil, fmt.Errorf("duplicate file name %q", f.Name)
		}
		content, err := fs.ReadFile(f.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Path, err)
		}
		files[f.Name] = content
		_ = bar.Add(1)
	}
	return files, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
