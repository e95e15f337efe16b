package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/opnlabs/gantry/pkg/models"
)

// fakeEnv scripts step outcomes without spawning processes. Exit codes and
// delays are looked up by step name.
type fakeEnv struct {
	id     string
	exits  map[string]int
	delays map[string]time.Duration
}

func (f *fakeEnv) ID() string {
	return f.id
}

func (f *fakeEnv) Exec(ctx context.Context, step models.Step, stdout, stderr io.Writer) (int, error) {
	if delay := f.delays[step.Name]; delay > 0 {
		select {
		case <-ctx.Done():
			return -1, ctx.Err()
		case <-time.After(delay):
		}
	}
	fmt.Fprintf(stdout, "ran %s\n", step.Name)
	return f.exits[step.Name], nil
}

func (f *fakeEnv) Export(ctx context.Context, path, dst string) error {
	return os.WriteFile(filepath.Join(dst, filepath.Base(path)), []byte("artifact"), 0644)
}

func (f *fakeEnv) Close() error {
	return nil
}

// fakeFactory hands out fakeEnvs and counts acquires and releases so tests
// can assert every environment is released exactly once.
type fakeFactory struct {
	mu           sync.Mutex
	exits        map[string]map[string]int
	delays       map[string]map[string]time.Duration
	provisionErr map[string]error

	acquired int
	released int

	running    int
	maxRunning int
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		exits:        make(map[string]map[string]int),
		delays:       make(map[string]map[string]time.Duration),
		provisionErr: make(map[string]error),
	}
}

func (f *fakeFactory) Provision(ctx context.Context, job models.Job) (Environment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.provisionErr[job.Name]; err != nil {
		return nil, &ProvisionError{Job: job.Name, Err: err}
	}

	f.acquired++
	f.running++
	if f.running > f.maxRunning {
		f.maxRunning = f.running
	}

	return &countedEnv{
		fakeEnv: fakeEnv{
			id:     job.Name,
			exits:  f.exits[job.Name],
			delays: f.delays[job.Name],
		},
		factory: f,
	}, nil
}

func (f *fakeFactory) releases() (acquired, released int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquired, f.released
}

func (f *fakeFactory) peakConcurrency() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxRunning
}

type countedEnv struct {
	fakeEnv
	factory *fakeFactory
	once    sync.Once
}

// Close counts the first release only, so a double release would show up
// as released < acquired once every job has closed its environment.
func (c *countedEnv) Close() error {
	c.once.Do(func() {
		c.factory.mu.Lock()
		c.factory.released++
		c.factory.running--
		c.factory.mu.Unlock()
	})
	return nil
}
