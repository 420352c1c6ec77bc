package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold a definition tree and config",
	Long: `Initialize a mimeo project in the current directory.

This will:
  1. Write a config file and a vars.yaml
  2. Scaffold an example definition tree with a standalone syllabus
     and an ordered homework collection
  3. Demonstrate ${vars.*} references, smart due dates, the ready
     flag, and a release-timed solution

Examples:
  mimeo init
  mimeo init --non-interactive --input course --output publish`,
	RunE: runInit,
}

var (
	initTitle          string
	initInput          string
	initOutput         string
	initNonInteractive bool
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVar(&initTitle, "title", "Example Course", "course title written to vars.yaml")
	initCmd.Flags().StringVar(&initInput, "input", "course", "definition tree directory to scaffold")
	initCmd.Flags().StringVar(&initOutput, "output", "publish", "publish directory")
	initCmd.Flags().BoolVar(&initNonInteractive, "non-interactive", false, "run without prompts")
}

func runInit(cmd *cobra.Command, args []string) error {
	fmt.Println("Welcome to mimeo!")
	fmt.Println()

	// Check if config already exists
	if _, err := os.Stat(cfgFile); err == nil {
		fmt.Printf("Configuration file already exists: %s\n", cfgFile)
		if !confirm("Overwrite?") {
			fmt.Println("Aborted.")
			return nil
		}
	}

	reader := bufio.NewReader(os.Stdin)

	title := initTitle
	input := initInput
	output := initOutput
	if !initNonInteractive {
		title = prompt(reader, "Course title", title)
		input = prompt(reader, "Input directory", input)
		output = prompt(reader, "Output directory", output)
	}

	if err := os.WriteFile(cfgFile, []byte(generateConfig(input, output)), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Printf("\n%s Generated %s\n", checkMark, cfgFile)

	if err := os.WriteFile("vars.yaml", []byte(generateVars(title)), 0o644); err != nil {
		return fmt.Errorf("failed to write vars.yaml: %w", err)
	}
	fmt.Printf("%s Generated vars.yaml\n", checkMark)

	if _, err := os.Stat(input); err == nil {
		fmt.Printf("\nInput directory %s already exists, leaving it alone.\n", input)
	} else if err := scaffoldTree(input); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  mimeo publish   # build and publish released artifacts")
	fmt.Println("  mimeo status    # see what is released, pending, or overdue")
	fmt.Println("  mimeo serve     # preview at http://localhost:8080/")
	return nil
}

// scaffoldTree writes a small example tree under input: a standalone
// syllabus plus an ordered homework collection whose second entry is
// not ready and dates itself off the first.
func scaffoldTree(input string) error {
	firstDue := time.Now().AddDate(0, 0, 7).Format("2006-01-02")
	solutionAt := time.Now().AddDate(0, 0, 8).Format("2006-01-02")

	files := []struct {
		path    string
		content string
	}{
		{"syllabus/publication.yaml", `metadata:
  course: ${vars.course}
  instructor: ${vars.instructor}
artifacts:
  syllabus.md: {}
`},
		{"syllabus/syllabus.md", "# Syllabus\n\nWelcome to the course. Edit me.\n"},
		{"homeworks/collection.yaml", `publication_spec:
  required_artifacts: [handout.md]
  optional_artifacts: [solution.md]
  is_ordered: true
  metadata_schema:
    required_keys:
      due:
        type: date
`},
		{"homeworks/01-intro/publication.yaml", fmt.Sprintf(`metadata:
  due: %s
artifacts:
  handout.md: {}
  # The solution is withheld until its release time passes.
  solution.md:
    release_time: %s
`, firstDue, solutionAt)},
		{"homeworks/01-intro/handout.md", "# Homework 1\n\nEdit me.\n"},
		{"homeworks/01-intro/solution.md", "# Homework 1 solution\n\nEdit me.\n"},
		{"homeworks/02-vectors/publication.yaml", `# Flip ready to true when this one is done.
ready: false
metadata:
  due: 7 days after ${previous.metadata.due}
artifacts:
  handout.md: {}
`},
		{"homeworks/02-vectors/handout.md", "# Homework 2\n\nEdit me.\n"},
	}

	for _, f := range files {
		path := filepath.Join(input, f.path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to scaffold %s: %w", path, err)
		}
		if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
			return fmt.Errorf("failed to scaffold %s: %w", path, err)
		}
		fmt.Printf("%s Created %s\n", checkMark, path)
	}
	return nil
}

func prompt(reader *bufio.Reader, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("? %s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("? %s: ", label)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func confirm(message string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("? %s [y/N]: ", message)
	input, _ := reader.ReadString('\n')
	input = strings.ToLower(strings.TrimSpace(input))
	return input == "y" || input == "yes"
}

func generateConfig(input, output string) string {
	return fmt.Sprintf(`# Mimeo configuration
# Generated by 'mimeo init'

input: %s
output: %s
vars_file: vars.yaml

ledger: .mimeo/ledger.db

serve:
  addr: :8080
  watch: true

logging:
  level: info
  format: console

metrics:
  enabled: true

# Uncomment to mirror the published tree with 'mimeo sync':
#
# sync:
#   git:
#     url: git@example.com:course/site.git
#     branch: publish
#   s3:
#     endpoint: s3.amazonaws.com
#     bucket: course-materials
#     access_key: ${AWS_ACCESS_KEY_ID}
#     secret_key: ${AWS_SECRET_ACCESS_KEY}
`, input, output)
}

func generateVars(title string) string {
	return fmt.Sprintf(`# External variables, referenced as ${vars.name} in definitions.
course: %s
instructor: A. Instructor
`, title)
}
