package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/opnlabs/gantry/pkg/models"
)

func declaredJobs() []models.Job {
	return []models.Job{{Name: "build"}, {Name: "test"}, {Name: "coverage"}}
}

func TestAggregateAllPassed(t *testing.T) {
	results := map[string]models.JobResult{
		"build":    {Name: "build", Status: models.StatusPassed},
		"test":     {Name: "test", Status: models.StatusPassed},
		"coverage": {Name: "coverage", Status: models.StatusPassed},
	}

	result := Aggregate(declaredJobs(), results)

	if result.Status != models.StatusPassed {
		t.Errorf("expected passed, got %s", result.Status)
	}
}

func TestAggregateAnyFailureFailsPipeline(t *testing.T) {
	failed := 0
	results := map[string]models.JobResult{
		"build":    {Name: "build", Status: models.StatusPassed},
		"test":     {Name: "test", Status: models.StatusFailed, FirstFailure: &failed},
		"coverage": {Name: "coverage", Status: models.StatusPassed},
	}

	result := Aggregate(declaredJobs(), results)

	if result.Status != models.StatusFailed {
		t.Errorf("expected failed, got %s", result.Status)
	}
}

func TestAggregateDeclarationOrder(t *testing.T) {
	results := map[string]models.JobResult{
		"coverage": {Name: "coverage", Status: models.StatusPassed},
		"build":    {Name: "build", Status: models.StatusPassed},
		"test":     {Name: "test", Status: models.StatusPassed},
	}

	result := Aggregate(declaredJobs(), results)

	names := make([]string, 0, len(result.Jobs))
	for _, j := range result.Jobs {
		names = append(names, j.Name)
	}
	if !reflect.DeepEqual(names, []string{"build", "test", "coverage"}) {
		t.Errorf("jobs not in declaration order: %v", names)
	}
}

func TestAggregateMissingJobIsSkipped(t *testing.T) {
	results := map[string]models.JobResult{
		"build": {Name: "build", Status: models.StatusPassed},
		"test":  {Name: "test", Status: models.StatusPassed},
	}

	result := Aggregate(declaredJobs(), results)

	if result.Jobs[2].Status != models.StatusSkipped {
		t.Errorf("expected coverage to be skipped, got %s", result.Jobs[2].Status)
	}
	if result.Status != models.StatusPassed {
		t.Errorf("a skipped job should not fail the pipeline, got %s", result.Status)
	}
}

func TestAggregateIdempotent(t *testing.T) {
	failed := 1
	results := map[string]models.JobResult{
		"build":    {Name: "build", Status: models.StatusFailed, FirstFailure: &failed},
		"test":     {Name: "test", Status: models.StatusPassed},
		"coverage": {Name: "coverage", Status: models.StatusPassed},
	}

	first := Aggregate(declaredJobs(), results)
	second := Aggregate(declaredJobs(), results)

	if !reflect.DeepEqual(first, second) {
		t.Error("aggregating the same results twice gave different verdicts")
	}
}

func TestApplyUploadPolicy(t *testing.T) {
	uploadErr := &UploadError{Sink: "test", Err: errors.New("boom")}

	strict := models.PipelineResult{Status: models.StatusPassed}
	ApplyUploadPolicy(&strict, uploadErr, true)
	if strict.Status != models.StatusFailed {
		t.Error("strict mode should fail the pipeline on upload errors")
	}

	lenient := models.PipelineResult{Status: models.StatusPassed}
	ApplyUploadPolicy(&lenient, uploadErr, false)
	if lenient.Status != models.StatusPassed {
		t.Error("upload errors should not fail the pipeline outside strict mode")
	}

	noErr := models.PipelineResult{Status: models.StatusPassed}
	ApplyUploadPolicy(&noErr, nil, true)
	if noErr.Status != models.StatusPassed {
		t.Error("a clean upload should never change the verdict")
	}
}

func TestRenderFailedJob(t *testing.T) {
	failed := 0
	result := models.PipelineResult{
		Status: models.StatusFailed,
		Jobs: []models.JobResult{
			{Name: "build", Status: models.StatusPassed},
			{
				Name:         "test",
				Status:       models.StatusFailed,
				FirstFailure: &failed,
				Steps: []models.StepResult{
					{Name: "Run tests", ExitCode: 1, Output: "assertion failed\n"},
				},
			},
		},
	}

	var b bytes.Buffer
	Render(&b, result)

	out := b.String()
	for _, want := range []string{"build", "test", "Run tests", "assertion failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered report missing %q:\n%s", want, out)
		}
	}
}

func TestFileSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	sink := NewFileSink(dir)

	result := models.PipelineResult{
		Status: models.StatusPassed,
		Jobs:   []models.JobResult{{Name: "build", Status: models.StatusPassed}},
	}

	if err := sink.Upload(context.Background(), result); err != nil {
		t.Fatal(err)
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Fatalf("expected one report file, got %d", len(files))
	}

	contents, err := os.ReadFile(filepath.Join(dir, files[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	var decoded models.PipelineResult
	if err := json.Unmarshal(contents, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Status != models.StatusPassed || len(decoded.Jobs) != 1 {
		t.Errorf("report round trip mismatch: %+v", decoded)
	}
}

func TestHTTPSink(t *testing.T) {
	var received models.PipelineResult
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()

	result := models.PipelineResult{Status: models.StatusPassed}
	if err := NewHTTPSink(ok.URL, nil).Upload(context.Background(), result); err != nil {
		t.Fatal(err)
	}
	if received.Status != models.StatusPassed {
		t.Errorf("server received %+v", received)
	}

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	err := NewHTTPSink(failing.URL, nil).Upload(context.Background(), result)
	if err == nil {
		t.Fatal("expected an error")
	}
	var uploadErr *UploadError
	if !errors.As(err, &uploadErr) {
		t.Errorf("expected an *UploadError, got %T", err)
	}
}
