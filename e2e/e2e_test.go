// Package e2e provides end-to-end tests for the complete publish flow.
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/courseops/mimeo/app"
	"github.com/courseops/mimeo/bootstrap"
	"github.com/courseops/mimeo/config"
	"github.com/courseops/mimeo/core/schema"
	"github.com/courseops/mimeo/domain/materials"
	"github.com/courseops/mimeo/ports"
	"github.com/courseops/mimeo/web"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// TestE2E_FullPublishFlow tests the complete pipeline:
//  1. Resolve a definition tree with vars and an ordered collection
//  2. Build and publish through the real bootstrap wiring
//  3. Verify the output tree, the manifest, and the run ledger
//  4. Publish again and verify nothing is reported changed
func TestE2E_FullPublishFlow(t *testing.T) {
	a, _ := setupTestApp(t)
	defer a.Shutdown()

	req := publishRequest(t, a)
	result, err := a.Publisher.Publish(context.Background(), req)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	// Released material is in the publish root, withheld material is not.
	publish := a.Config.Output
	assertContent(t, filepath.Join(publish, "default", "syllabus", "syllabus.md"), "# Syllabus\n")
	assertContent(t, filepath.Join(publish, "homeworks", "01", "handout.pdf"), "%PDF-1.4 homework one\n")
	assertAbsent(t, filepath.Join(publish, "homeworks", "01", "solution.pdf"))
	assertAbsent(t, filepath.Join(publish, "homeworks", "02"))

	if result.Built != 1 {
		t.Errorf("built = %d, want 1 (the recipe handout)", result.Built)
	}
	if result.Static != 1 {
		t.Errorf("static = %d, want 1 (the syllabus)", result.Static)
	}
	if result.Skipped != 2 {
		t.Errorf("skipped = %d, want 2 (future solution, unready homework)", result.Skipped)
	}
	if result.Artifacts != 2 {
		t.Errorf("artifacts = %d, want 2", result.Artifacts)
	}
	if result.Changed != 2 {
		t.Errorf("changed = %d, want 2 on a first publish", result.Changed)
	}

	// The manifest round-trips and carries resolved metadata.
	manifest := readManifest(t, publish)

	syl := getPublication(t, manifest, "default", "syllabus")
	if got := syl.Metadata["course"]; got != "Linear Algebra" {
		t.Errorf("syllabus course = %v, want the external variable value", got)
	}

	hw, ok := manifest.Get("homeworks")
	if !ok {
		t.Fatal("homeworks collection missing from manifest")
	}
	if got := hw.Keys(); !reflect.DeepEqual(got, []string{"01"}) {
		t.Fatalf("homework publications in manifest = %v, want [01]", got)
	}
	first, _ := hw.Get("01")
	if got, want := first.Metadata["due"], (schema.Date{Year: 2026, Month: 1, Day: 5}); got != want {
		t.Errorf("01 due = %v, want %v", got, want)
	}
	if _, ok := first.Get("solution.pdf"); ok {
		t.Error("withheld solution must not appear in the manifest")
	}

	// The ledger recorded the run with its artifact count.
	runs, err := a.Status.Runs(context.Background(), 10)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	if !runs[0].Succeeded {
		t.Errorf("run failed: %s", runs[0].Error)
	}
	if runs[0].Artifacts != 2 {
		t.Errorf("run artifacts = %d, want 2", runs[0].Artifacts)
	}

	// Nothing changed, so a second publish reports zero changes.
	second, err := a.Publisher.Publish(context.Background(), req)
	if err != nil {
		t.Fatalf("second publish: %v", err)
	}
	if second.Changed != 0 {
		t.Errorf("second publish changed = %d, want 0", second.Changed)
	}
	runs, err = a.Status.Runs(context.Background(), 10)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("runs after second publish = %d, want 2", len(runs))
	}
}

// TestE2E_IgnoreGates publishes everything regardless of ready flags
// and release times, the way a full-tree rebuild for staging works.
func TestE2E_IgnoreGates(t *testing.T) {
	a, _ := setupTestApp(t)
	defer a.Shutdown()

	req := publishRequest(t, a)
	req.IgnoreReady = true
	req.IgnoreReleaseTime = true

	result, err := a.Publisher.Publish(context.Background(), req)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	publish := a.Config.Output
	assertContent(t, filepath.Join(publish, "homeworks", "01", "solution.pdf"), "%PDF-1.4 solution\n")
	assertContent(t, filepath.Join(publish, "homeworks", "02", "handout.pdf"), "%PDF-1.4 homework two\n")

	if result.Skipped != 0 {
		t.Errorf("skipped = %d, want 0 with gates ignored", result.Skipped)
	}
	if result.Artifacts != 4 {
		t.Errorf("artifacts = %d, want 4", result.Artifacts)
	}

	// The second homework dates itself off the first.
	manifest := readManifest(t, publish)
	second := getPublication(t, manifest, "homeworks", "02")
	if got, want := second.Metadata["due"], (schema.Date{Year: 2026, Month: 1, Day: 12}); got != want {
		t.Errorf("02 due = %v, want %v (7 days after 01)", got, want)
	}
}

// TestE2E_PreviewServer publishes and then serves the output the way
// `mimeo serve` wires it: files at /, pipeline state at /api/status.
func TestE2E_PreviewServer(t *testing.T) {
	a, _ := setupTestApp(t)
	defer a.Shutdown()

	req := publishRequest(t, a)
	result, err := a.Publisher.Publish(context.Background(), req)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	report, err := a.Status.Report(app.StatusRequest{
		InputDir:        req.InputDir,
		SkipDirectories: req.SkipDirectories,
		Vars:            req.Vars,
		Cache:           req.Cache,
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}

	holder := app.NewHolder()
	holder.SetGood(report, result, time.Now())

	h := web.NewHandler(web.Deps{
		Holder: holder,
		Runs:   a.Status,
		Root:   a.Config.Output,
		Logger: a.Logger,
	})
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(srv.URL + "/homeworks/01/handout.pdf")
	if err != nil {
		t.Fatalf("get artifact: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("artifact status = %d, want 200", resp.StatusCode)
	}

	resp2, err := client.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp2.Body.Close()

	var status struct {
		Report struct {
			Tally materials.Tally `json:"tally"`
		} `json:"report"`
		LastRun struct {
			Artifacts int `json:"artifacts"`
		} `json:"last_run"`
	}
	if err := json.NewDecoder(resp2.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	want := materials.Tally{Released: 2, Pending: 1, Unready: 1}
	if status.Report.Tally != want {
		t.Errorf("tally = %+v, want %+v", status.Report.Tally, want)
	}
	if status.LastRun.Artifacts != 2 {
		t.Errorf("last run artifacts = %d, want 2", status.LastRun.Artifacts)
	}
}

// TestE2E_SyncToGitRemote publishes and mirrors the output into a
// fresh bare repository through the bootstrap target factory.
func TestE2E_SyncToGitRemote(t *testing.T) {
	a, dir := setupTestApp(t)
	defer a.Shutdown()

	remote := filepath.Join(dir, "remote.git")
	if _, err := gogit.PlainInit(remote, true); err != nil {
		t.Fatalf("init bare repo: %v", err)
	}
	a.Config.Sync.Git.URL = remote

	target, err := a.SyncTarget("git")
	if err != nil {
		t.Fatalf("sync target: %v", err)
	}

	req := publishRequest(t, a)
	if _, err := a.Publisher.Sync(context.Background(), req, []ports.SyncTarget{target}); err != nil {
		t.Fatalf("sync: %v", err)
	}

	mirror := filepath.Join(dir, "mirror")
	_, err = gogit.PlainClone(mirror, false, &gogit.CloneOptions{
		URL:           remote,
		ReferenceName: plumbing.NewBranchReferenceName("main"),
		SingleBranch:  true,
	})
	if err != nil {
		t.Fatalf("clone mirror: %v", err)
	}

	assertContent(t, filepath.Join(mirror, "homeworks", "01", "handout.pdf"), "%PDF-1.4 homework one\n")
	if _, err := os.Stat(filepath.Join(mirror, materials.ManifestName)); err != nil {
		t.Errorf("manifest missing from mirror: %v", err)
	}
}

// Helper functions

func setupTestApp(t *testing.T) (*bootstrap.App, string) {
	t.Helper()

	dir := t.TempDir()
	course := filepath.Join(dir, "course")

	writeTree(t, course, map[string]string{
		"syllabus/publication.yaml": `
metadata:
  course: ${vars.course}
artifacts:
  syllabus.md: {}
`,
		"syllabus/syllabus.md": "# Syllabus\n",
		"homeworks/collection.yaml": `
publication_spec:
  required_artifacts: [handout.pdf]
  optional_artifacts: [solution.pdf]
  is_ordered: true
  metadata_schema:
    required_keys:
      due:
        type: date
`,
		"homeworks/01/publication.yaml": `
metadata:
  due: 2026-01-05
artifacts:
  handout.pdf:
    recipe: cp handout.src handout.pdf
  solution.pdf:
    release_time: 2099-06-01 08:00:00
`,
		"homeworks/01/handout.src":  "%PDF-1.4 homework one\n",
		"homeworks/01/solution.pdf": "%PDF-1.4 solution\n",
		"homeworks/02/publication.yaml": `
ready: false
metadata:
  due: 7 days after ${previous.metadata.due}
artifacts:
  handout.pdf: {}
`,
		"homeworks/02/handout.pdf": "%PDF-1.4 homework two\n",
		// Malformed on purpose; skip_directories must keep it out.
		"drafts/publication.yaml": "this is not even yaml: [\n",
	})

	writeFile(t, filepath.Join(dir, "vars.yaml"), "course: Linear Algebra\n")

	configPath := filepath.Join(dir, "config.yaml")
	configContent := fmt.Sprintf(`
input: %s
output: %s
vars_file: %s
skip_directories: [drafts]

ledger: %s

logging:
  level: error
  format: json

metrics:
  enabled: false
`,
		course,
		filepath.Join(dir, "publish"),
		filepath.Join(dir, "vars.yaml"),
		filepath.Join(dir, ".mimeo", "ledger.db"),
	)
	writeFile(t, configPath, configContent)

	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	a, err := bootstrap.New(cfg)
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	return a, dir
}

func publishRequest(t *testing.T, a *bootstrap.App) app.PublishRequest {
	t.Helper()

	vars, err := a.Vars()
	if err != nil {
		t.Fatalf("load vars: %v", err)
	}
	return app.PublishRequest{
		InputDir:        a.Config.Input,
		OutputDir:       a.Config.Output,
		SkipDirectories: a.Config.SkipDirectories,
		Vars:            vars,
		Cache:           a.Cache,
	}
}

func readManifest(t *testing.T, publish string) *materials.Universe[materials.PublishedArtifact] {
	t.Helper()

	f, err := os.Open(filepath.Join(publish, materials.ManifestName))
	if err != nil {
		t.Fatalf("open manifest: %v", err)
	}
	defer f.Close()

	manifest, err := materials.DecodeManifest(f)
	if err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	return manifest
}

func getPublication(
	t *testing.T,
	u *materials.Universe[materials.PublishedArtifact],
	ck, pk string,
) *materials.Publication[materials.PublishedArtifact] {
	t.Helper()

	col, ok := u.Get(ck)
	if !ok {
		t.Fatalf("collection %q missing from manifest", ck)
	}
	pub, ok := col.Get(pk)
	if !ok {
		t.Fatalf("publication %q missing from collection %q", pk, ck)
	}
	return pub
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		writeFile(t, filepath.Join(root, rel), content)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func assertContent(t *testing.T, path, want string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if string(data) != want {
		t.Errorf("%s = %q, want %q", path, data, want)
	}
}

func assertAbsent(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("%s should not exist (err = %v)", path, err)
	}
}
